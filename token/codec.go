// Package token implements the session core's credential tokens: the
// tamper-evident codec and the lifecycle manager handling issuance,
// rotation, revocation, and blacklisting.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campuslink/go-session-service/users"
)

// ErrTokenInvalid is the uniform external rejection for any token that
// fails a check. Which check failed is logged internally, never surfaced,
// so the error shape cannot be used as an oracle.
var ErrTokenInvalid = errors.New("token invalid")

// Payload is the signed token content. Immutable once signed; both the
// access and refresh variants carry the same shape and differ only in
// signing key and lifetime.
type Payload struct {
	SubjectID    string
	Email        string
	Role         users.RoleType
	TokenVersion int64
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Codec signs and verifies payloads with a single key. No side effects.
type Codec struct {
	signer  Signer
	nowFunc func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCodecNowFunc overrides the clock (primarily for testing).
func WithCodecNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec constructs a codec over the given signer.
func NewCodec(signer Signer, options ...CodecOption) *Codec {
	c := &Codec{
		signer:  signer,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Issue signs the payload with the given lifetime and returns the opaque,
// URL-safe token string.
func (c *Codec) Issue(p Payload, ttl time.Duration) (string, error) {
	now := c.nowFunc()
	claims := jwt.MapClaims{
		"sub":   p.SubjectID,
		"email": p.Email,
		"role":  string(p.Role),
		"tver":  p.TokenVersion,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"jti":   uuid.New().String(),
	}
	return c.signer.Sign(claims)
}

// Verify parses and validates a token string. It fails closed: any
// signature mismatch, malformed structure, or expired timestamp yields
// ErrTokenInvalid and never a partially-trusted payload.
func (c *Codec) Verify(raw string) (Payload, error) {
	tok, err := jwt.Parse(raw, c.signer.GetVerificationKey,
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return Payload{}, ErrTokenInvalid
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Payload{}, ErrTokenInvalid
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	tver, tverOK := claims["tver"].(float64)
	iat, iatOK := claims["iat"].(float64)
	exp, expOK := claims["exp"].(float64)

	if sub == "" || !tverOK || !iatOK || !expOK {
		return Payload{}, ErrTokenInvalid
	}

	return Payload{
		SubjectID:    sub,
		Email:        email,
		Role:         users.RoleType(role),
		TokenVersion: int64(tver),
		IssuedAt:     time.Unix(int64(iat), 0),
		ExpiresAt:    time.Unix(int64(exp), 0),
	}, nil
}

package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/campuslink/go-session-service/store"
	"github.com/campuslink/go-session-service/users"
)

const (
	refreshKeyPrefix   = "refreshtoken:"
	versionKeyPrefix   = "tokenversion:"
	blacklistKeyPrefix = "blacklist:"

	blacklistSentinel = "revoked"

	// minBlacklistTTL keeps an entry alive even when the token is at the
	// very end of its natural lifetime.
	minBlacklistTTL = time.Second
)

// Pair is an access/refresh token pair returned to the client.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Manager handles the token lifecycle: pair issuance, refresh rotation,
// access verification, bulk revocation, and the blacklist. All shared
// state lives in the ephemeral store so the manager itself is stateless
// and safe across replicas.
type Manager struct {
	store        store.Store
	accessCodec  *Codec
	refreshCodec *Codec
	accessTTL    time.Duration
	refreshTTL   time.Duration
	nowFunc      func() time.Time
	logger       zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTokenExpiry sets the access and refresh token lifetimes.
func WithTokenExpiry(accessTTL, refreshTTL time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTTL = accessTTL
		m.refreshTTL = refreshTTL
	}
}

// WithNowFunc overrides the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithLogger sets the logger used for internal audit of rejected checks.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager constructs a Manager. The access and refresh codecs must be
// built from distinct signing keys.
func NewManager(st store.Store, accessCodec, refreshCodec *Codec, options ...ManagerOption) *Manager {
	m := &Manager{
		store:        st,
		accessCodec:  accessCodec,
		refreshCodec: refreshCodec,
		accessTTL:    15 * time.Minute,
		refreshTTL:   7 * 24 * time.Hour,
		nowFunc:      time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// IssuePair issues an access/refresh pair embedding the subject's current
// token version, and stores a hash of the refresh token in the subject's
// refresh slot with a matching TTL.
//
// The slot is keyed by subject alone: one live refresh token per user. A
// login from a second device overwrites the slot and the first device is
// forced to re-login on its next rotation attempt.
func (m *Manager) IssuePair(ctx context.Context, subjectID, email string, role users.RoleType) (Pair, error) {
	version, err := m.currentVersion(ctx, subjectID)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Manager.IssuePair] currentVersion")
	}

	now := m.nowFunc()
	payload := Payload{
		SubjectID:    subjectID,
		Email:        email,
		Role:         role,
		TokenVersion: version,
		IssuedAt:     now,
	}

	accessToken, err := m.accessCodec.Issue(payload, m.accessTTL)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Manager.IssuePair] access Issue")
	}
	refreshToken, err := m.refreshCodec.Issue(payload, m.refreshTTL)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Manager.IssuePair] refresh Issue")
	}

	if err := m.store.Set(ctx, refreshKeyPrefix+subjectID, hashToken(refreshToken), m.refreshTTL); err != nil {
		return Pair{}, errors.Wrap(err, "[Manager.IssuePair] store refresh hash")
	}

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh rotates a refresh token: the presented token is validated,
// blacklisted, and replaced by a fresh pair. Each refresh token is
// single-use; presenting one that has already been rotated is treated as
// a replay and rejected. Every rejection returns the uniform
// ErrTokenInvalid; the failing check is only logged.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	payload, err := m.refreshCodec.Verify(refreshToken)
	if err != nil {
		m.audit("refresh", "", "signature or expiry check failed")
		return Pair{}, ErrTokenInvalid
	}

	blacklisted, err := m.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Manager.Refresh] IsBlacklisted")
	}
	if blacklisted {
		m.audit("refresh", payload.SubjectID, "token is blacklisted")
		return Pair{}, ErrTokenInvalid
	}

	version, err := m.currentVersion(ctx, payload.SubjectID)
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Manager.Refresh] currentVersion")
	}
	if payload.TokenVersion != version {
		m.audit("refresh", payload.SubjectID, "token version mismatch")
		return Pair{}, ErrTokenInvalid
	}

	storedHash, err := m.store.Get(ctx, refreshKeyPrefix+payload.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.audit("refresh", payload.SubjectID, "no live refresh slot")
			return Pair{}, ErrTokenInvalid
		}
		return Pair{}, errors.Wrap(err, "[Manager.Refresh] load refresh hash")
	}
	if storedHash != hashToken(refreshToken) {
		m.audit("refresh", payload.SubjectID, "stale or superseded token reuse")
		return Pair{}, ErrTokenInvalid
	}

	// Blacklist the presented token before issuing the new pair. SetNX
	// makes the rotation single-winner: a concurrent duplicate refresh
	// loses the write and is rejected, so one token can never yield two
	// valid pairs.
	won, err := m.store.SetNX(ctx, blacklistKeyPrefix+hashToken(refreshToken),
		blacklistSentinel, m.remainingLifetime(payload))
	if err != nil {
		return Pair{}, errors.Wrap(err, "[Manager.Refresh] blacklist presented token")
	}
	if !won {
		m.audit("refresh", payload.SubjectID, "lost concurrent rotation race")
		return Pair{}, ErrTokenInvalid
	}

	return m.IssuePair(ctx, payload.SubjectID, payload.Email, payload.Role)
}

// VerifyAccess validates an access token: signature, expiry, blacklist
// membership, and token version. Read-only; it runs on every
// authenticated request. Store failures fail closed.
func (m *Manager) VerifyAccess(ctx context.Context, accessToken string) (Payload, error) {
	payload, err := m.accessCodec.Verify(accessToken)
	if err != nil {
		m.audit("verify_access", "", "signature or expiry check failed")
		return Payload{}, ErrTokenInvalid
	}

	blacklisted, err := m.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return Payload{}, errors.Wrap(err, "[Manager.VerifyAccess] IsBlacklisted")
	}
	if blacklisted {
		m.audit("verify_access", payload.SubjectID, "token is blacklisted")
		return Payload{}, ErrTokenInvalid
	}

	version, err := m.currentVersion(ctx, payload.SubjectID)
	if err != nil {
		return Payload{}, errors.Wrap(err, "[Manager.VerifyAccess] currentVersion")
	}
	if payload.TokenVersion != version {
		m.audit("verify_access", payload.SubjectID, "token version mismatch")
		return Payload{}, ErrTokenInvalid
	}

	return payload, nil
}

// RevokeAll invalidates every outstanding token for the subject by
// incrementing the version counter and deleting the refresh slot. No
// enumeration of issued tokens is needed: refresh fails on the version
// check immediately, access fails on its next verification.
func (m *Manager) RevokeAll(ctx context.Context, subjectID string) error {
	if _, err := m.store.Incr(ctx, versionKeyPrefix+subjectID); err != nil {
		return errors.Wrap(err, "[Manager.RevokeAll] increment version")
	}
	if err := m.store.Del(ctx, refreshKeyPrefix+subjectID); err != nil {
		return errors.Wrap(err, "[Manager.RevokeAll] delete refresh slot")
	}
	m.audit("revoke_all", subjectID, "all tokens revoked")
	return nil
}

// Blacklist records a specific token as rejected for the given TTL, which
// should equal the token's remaining natural lifetime so the entry
// self-expires.
func (m *Manager) Blacklist(ctx context.Context, tok string, ttl time.Duration) error {
	if ttl < minBlacklistTTL {
		ttl = minBlacklistTTL
	}
	if err := m.store.Set(ctx, blacklistKeyPrefix+hashToken(tok), blacklistSentinel, ttl); err != nil {
		return errors.Wrap(err, "[Manager.Blacklist] store entry")
	}
	return nil
}

// IsBlacklisted reports whether the token has been blacklisted.
func (m *Manager) IsBlacklisted(ctx context.Context, tok string) (bool, error) {
	return m.store.Exists(ctx, blacklistKeyPrefix+hashToken(tok))
}

// SweepBlacklist removes blacklist entries the backing store's TTL
// mechanism did not reclaim (entries reporting no expiry). Pure cleanup:
// it never fails the caller, returning however many entries it removed
// before any error.
func (m *Manager) SweepBlacklist(ctx context.Context) int {
	keys, err := m.store.KeysMatching(ctx, blacklistKeyPrefix)
	if err != nil {
		m.logger.Warn().Err(err).Msg("blacklist sweep: listing keys failed")
		return 0
	}

	removed := 0
	for _, key := range keys {
		ttl, err := m.store.TTL(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // expired between listing and inspection
			}
			m.logger.Warn().Err(err).Str("key", key).Msg("blacklist sweep: ttl lookup failed")
			continue
		}
		if ttl != store.NoExpiry {
			continue
		}
		if err := m.store.Del(ctx, key); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("blacklist sweep: delete failed")
			continue
		}
		removed++
	}
	return removed
}

// RemainingLifetime returns how long the token stays naturally valid,
// floored at the minimum blacklist TTL. The codec must match the token
// variant being inspected.
func (m *Manager) RemainingLifetime(refreshToken string) time.Duration {
	payload, err := m.refreshCodec.Verify(refreshToken)
	if err != nil {
		return minBlacklistTTL
	}
	return m.remainingLifetime(payload)
}

func (m *Manager) remainingLifetime(payload Payload) time.Duration {
	remaining := payload.ExpiresAt.Sub(m.nowFunc())
	if remaining < minBlacklistTTL {
		return minBlacklistTTL
	}
	return remaining
}

// currentVersion reads the subject's token version, defaulting to 0 when
// no counter exists yet. Never cached beyond a single request.
func (m *Manager) currentVersion(ctx context.Context, subjectID string) (int64, error) {
	raw, err := m.store.Get(ctx, versionKeyPrefix+subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed version counter %q", raw)
	}
	return version, nil
}

func (m *Manager) audit(op, subjectID, reason string) {
	m.logger.Info().
		Str("op", op).
		Str("subject_id", subjectID).
		Str("reason", reason).
		Msg("token check")
}

func hashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

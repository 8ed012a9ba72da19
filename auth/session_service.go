// Package auth is the session façade: the only entry point the rest of the
// platform calls for login, refresh, logout, logout-everywhere, and access
// verification. It orchestrates the abuse guard, the credential store, and
// the token lifecycle manager.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/campuslink/go-session-service/guard"
	"github.com/campuslink/go-session-service/token"
	"github.com/campuslink/go-session-service/users"
)

// SessionService implements the produced interface of the session core.
// Every other module depends only on VerifyAccess and the payload's
// SubjectID/Role fields.
type SessionService struct {
	credentials users.CredentialRepo
	guard       *guard.Guard
	tokens      *token.Manager
	nowFunc     func() time.Time
	logger      zerolog.Logger
}

// SessionServiceOption configures a SessionService.
type SessionServiceOption func(*SessionService)

// WithNowFunc overrides the clock (primarily for testing).
func WithNowFunc(now func() time.Time) SessionServiceOption {
	return func(s *SessionService) {
		s.nowFunc = now
	}
}

// WithLogger sets the audit logger.
func WithLogger(logger zerolog.Logger) SessionServiceOption {
	return func(s *SessionService) {
		s.logger = logger
	}
}

// NewSessionService initializes the façade with its required dependencies.
func NewSessionService(
	credentials users.CredentialRepo,
	abuseGuard *guard.Guard,
	tokens *token.Manager,
	options ...SessionServiceOption,
) (*SessionService, error) {
	if credentials == nil {
		return nil, errors.New("[NewSessionService] credentials repo is required")
	}
	if abuseGuard == nil {
		return nil, errors.New("[NewSessionService] abuse guard is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewSessionService] token manager is required")
	}

	s := &SessionService{
		credentials: credentials,
		guard:       abuseGuard,
		tokens:      tokens,
		nowFunc:     time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login authenticates the credentials and returns a token pair. Gate
// order matters: IP throttle first, then account lockout (checked before
// the password comparison so a locked account leaks no timing signal),
// then the credential comparison, then the account-active flag. Inactive
// accounts are rejected distinctly without touching lockout counters:
// that is an authorization gate, not a credential failure.
func (s *SessionService) Login(ctx context.Context, email, password, ip, userAgent string) (token.Pair, error) {
	limited, err := s.guard.IsIPRateLimited(ctx, ip)
	if err != nil {
		return token.Pair{}, errors.Wrap(err, "[SessionService.Login] IsIPRateLimited")
	}
	if limited {
		s.audit("login", email, ip, "ip rate limited")
		return token.Pair{}, ErrRateLimited
	}

	locked, err := s.guard.IsAccountLocked(ctx, email)
	if err != nil {
		return token.Pair{}, errors.Wrap(err, "[SessionService.Login] IsAccountLocked")
	}
	if locked {
		// Still recorded as a failure for the audit trail.
		if err := s.guard.RecordAttempt(ctx, email, ip, userAgent, false); err != nil {
			return token.Pair{}, errors.Wrap(err, "[SessionService.Login] RecordAttempt locked")
		}
		s.audit("login", email, ip, "account locked")
		return token.Pair{}, ErrAccountLocked
	}

	u, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			if err := s.guard.RecordAttempt(ctx, email, ip, userAgent, false); err != nil {
				return token.Pair{}, errors.Wrap(err, "[SessionService.Login] RecordAttempt unknown email")
			}
			s.audit("login", email, ip, "unknown email")
			return token.Pair{}, ErrInvalidCredentials
		}
		return token.Pair{}, errors.Wrap(err, "[SessionService.Login] FindByEmail")
	}

	if !users.CheckPasswordHash(password, u.PasswordHash) {
		if err := s.guard.RecordAttempt(ctx, email, ip, userAgent, false); err != nil {
			return token.Pair{}, errors.Wrap(err, "[SessionService.Login] RecordAttempt bad password")
		}
		s.audit("login", email, ip, "password mismatch")
		return token.Pair{}, ErrInvalidCredentials
	}

	if !u.Active {
		s.audit("login", email, ip, "account inactive")
		return token.Pair{}, ErrAccountInactive
	}

	if err := s.guard.RecordAttempt(ctx, email, ip, userAgent, true); err != nil {
		return token.Pair{}, errors.Wrap(err, "[SessionService.Login] RecordAttempt success")
	}

	pair, err := s.tokens.IssuePair(ctx, u.ID, u.Email, u.Role)
	if err != nil {
		return token.Pair{}, errors.Wrap(err, "[SessionService.Login] IssuePair")
	}
	return pair, nil
}

// Refresh rotates a refresh token into a fresh pair.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout blacklists the specific refresh token for the rest of its natural
// lifetime. Other sessions and the user's access tokens are untouched.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	remaining := s.tokens.RemainingLifetime(refreshToken)
	if err := s.tokens.Blacklist(ctx, refreshToken, remaining); err != nil {
		return errors.Wrap(err, "[SessionService.Logout] Blacklist")
	}
	return nil
}

// LogoutAll revokes every outstanding token for the subject.
func (s *SessionService) LogoutAll(ctx context.Context, subjectID string) error {
	return s.tokens.RevokeAll(ctx, subjectID)
}

// VerifyAccess authorizes a request-bearing access token and returns its
// payload. Cheap and read-only; this runs on every authenticated request.
func (s *SessionService) VerifyAccess(ctx context.Context, accessToken string) (token.Payload, error) {
	return s.tokens.VerifyAccess(ctx, accessToken)
}

func (s *SessionService) audit(op, email, ip, reason string) {
	s.logger.Info().
		Str("op", op).
		Str("email", email).
		Str("ip", ip).
		Str("reason", reason).
		Msg("login gate")
}

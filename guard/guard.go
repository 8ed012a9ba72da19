// Package guard implements login abuse protection: per-account progressive
// lockout backed by the durable credential store, and per-IP throttling
// counted in the shared ephemeral store.
package guard

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/campuslink/go-session-service/store"
	"github.com/campuslink/go-session-service/users"
)

const ipFailKeyPrefix = "loginfail:ip:"

// Guard tracks login attempts and decides throttling. Account lockout is a
// small state machine (Normal -> Locked(until) -> Normal) persisted on the
// user record; IP throttling is stateless counting over a trailing window.
type Guard struct {
	credentials users.CredentialRepo
	store       store.Store
	maxAttempts int
	lockFor     time.Duration
	ipThreshold int64
	ipWindow    time.Duration
	nowFunc     func() time.Time
	logger      zerolog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithNowFunc overrides the clock (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(g *Guard) {
		g.nowFunc = now
	}
}

// WithLogger sets the logger for audit-append failures and lockouts.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithAccountLockout sets the consecutive-failure threshold and the
// lockout duration applied when it is reached.
func WithAccountLockout(maxAttempts int, lockFor time.Duration) Option {
	return func(g *Guard) {
		g.maxAttempts = maxAttempts
		g.lockFor = lockFor
	}
}

// WithIPThrottle sets the failed-attempt threshold for a single IP within
// the trailing window.
func WithIPThrottle(threshold int, window time.Duration) Option {
	return func(g *Guard) {
		g.ipThreshold = int64(threshold)
		g.ipWindow = window
	}
}

// New constructs a Guard with the observed production defaults: 5 failures
// lock an account for 30 minutes, 10 failures per hour throttle an IP.
func New(credentials users.CredentialRepo, st store.Store, options ...Option) *Guard {
	g := &Guard{
		credentials: credentials,
		store:       st,
		maxAttempts: 5,
		lockFor:     30 * time.Minute,
		ipThreshold: 10,
		ipWindow:    time.Hour,
		nowFunc:     time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// RecordAttempt appends an audit record and updates counters. On success
// the account's failure counter and lockout are cleared, even when a stale
// lockout timestamp is still present. On failure the counter is bumped
// atomically in the credential store; reaching the threshold locks the
// account, and the IP's failure bucket is incremented.
func (g *Guard) RecordAttempt(ctx context.Context, email, ip, userAgent string, success bool) error {
	// Audit is best-effort telemetry: never fail the login path over it.
	if err := g.credentials.AppendLoginAttempt(ctx, users.LoginAttempt{
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   success,
		Timestamp: g.nowFunc(),
	}); err != nil {
		g.logger.Warn().Err(err).Str("email", email).Msg("login attempt audit append failed")
	}

	if success {
		if err := g.credentials.ResetLockout(ctx, email); err != nil {
			return errors.Wrap(err, "[Guard.RecordAttempt] ResetLockout")
		}
		return nil
	}

	attempts, err := g.credentials.IncrementFailedLogins(ctx, email)
	if err != nil {
		// Failures for unknown accounts still count against the IP below.
		if !errors.Is(err, users.ErrNotFound) {
			return errors.Wrap(err, "[Guard.RecordAttempt] IncrementFailedLogins")
		}
	} else if attempts >= g.maxAttempts {
		until := g.nowFunc().Add(g.lockFor)
		if err := g.credentials.SetLockout(ctx, email, until); err != nil {
			return errors.Wrap(err, "[Guard.RecordAttempt] SetLockout")
		}
		g.logger.Info().
			Str("email", email).
			Int("attempts", attempts).
			Time("locked_until", until).
			Msg("account locked")
	}

	if err := g.bumpIPFailures(ctx, ip); err != nil {
		return errors.Wrap(err, "[Guard.RecordAttempt] bumpIPFailures")
	}
	return nil
}

// IsAccountLocked reports whether the account's lockout deadline is in the
// future. Callers must check this before comparing passwords so a locked
// account leaks no timing signal about password correctness.
func (g *Guard) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	u, err := g.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Guard.IsAccountLocked] FindByEmail")
	}
	return u.Locked(g.nowFunc()), nil
}

// IsIPRateLimited reports whether the IP accumulated enough failures in
// the trailing window to be throttled, regardless of which accounts the
// attempts targeted.
func (g *Guard) IsIPRateLimited(ctx context.Context, ip string) (bool, error) {
	raw, err := g.store.Get(ctx, ipFailKeyPrefix+ip)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Guard.IsIPRateLimited] Get")
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, errors.Wrapf(err, "[Guard.IsIPRateLimited] malformed counter %q", raw)
	}
	return count >= g.ipThreshold, nil
}

// bumpIPFailures increments the IP's failure bucket. The window TTL is
// attached on the first failure so the bucket self-expires.
func (g *Guard) bumpIPFailures(ctx context.Context, ip string) error {
	count, err := g.store.Incr(ctx, ipFailKeyPrefix+ip)
	if err != nil {
		return err
	}
	if count == 1 {
		if err := g.store.Expire(ctx, ipFailKeyPrefix+ip, g.ipWindow); err != nil {
			return err
		}
	}
	return nil
}

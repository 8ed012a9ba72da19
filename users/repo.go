package users

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no user exists for the given email or ID.
var ErrNotFound = errors.New("user not found")

// LoginAttempt is an append-only audit record of a single login attempt.
// Rows are only ever counted, never mutated.
type LoginAttempt struct {
	Email     string
	IPAddress string
	UserAgent string
	Success   bool
	Timestamp time.Time
}

// CredentialRepo is the durable credential store consumed by the session
// core. IncrementFailedLogins must be atomic at the store level so that
// concurrent failures cannot under-count.
type CredentialRepo interface {
	FindByEmail(ctx context.Context, email string) (*User, error)

	// IncrementFailedLogins adds one to the account's failure counter and
	// returns the post-increment value.
	IncrementFailedLogins(ctx context.Context, email string) (int, error)

	// SetLockout records the lockout deadline for the account.
	SetLockout(ctx context.Context, email string, until time.Time) error

	// ResetLockout zeroes the failure counter and clears any lockout.
	ResetLockout(ctx context.Context, email string) error

	// AppendLoginAttempt persists an audit record. Best-effort telemetry;
	// callers swallow and log failures.
	AppendLoginAttempt(ctx context.Context, attempt LoginAttempt) error
}

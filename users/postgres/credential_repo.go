package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campuslink/go-session-service/users"
)

// CredentialRepo implements users.CredentialRepo using PostgreSQL.
type CredentialRepo struct{ db *DB }

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

var _ users.CredentialRepo = (*CredentialRepo)(nil)

// FindByEmail selects the credential record for an email.
func (r *CredentialRepo) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	const q = `SELECT id, email, password_hash, role, active, failed_login_attempts, locked_until, created_at FROM users WHERE email=$1`
	row := r.db.Pool.QueryRow(ctx, q, email)
	var u users.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// IncrementFailedLogins bumps the failure counter in a single statement so
// concurrent failures cannot under-count.
func (r *CredentialRepo) IncrementFailedLogins(ctx context.Context, email string) (int, error) {
	const q = `UPDATE users SET failed_login_attempts = failed_login_attempts + 1 WHERE email=$1 RETURNING failed_login_attempts`
	var attempts int
	if err := r.db.Pool.QueryRow(ctx, q, email).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, users.ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// SetLockout records the lockout deadline.
func (r *CredentialRepo) SetLockout(ctx context.Context, email string, until time.Time) error {
	const q = `UPDATE users SET locked_until=$2 WHERE email=$1`
	tag, err := r.db.Pool.Exec(ctx, q, email, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

// ResetLockout zeroes the counter and clears the lockout.
func (r *CredentialRepo) ResetLockout(ctx context.Context, email string) error {
	const q = `UPDATE users SET failed_login_attempts=0, locked_until=NULL WHERE email=$1`
	tag, err := r.db.Pool.Exec(ctx, q, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

// AppendLoginAttempt inserts an audit row.
func (r *CredentialRepo) AppendLoginAttempt(ctx context.Context, attempt users.LoginAttempt) error {
	const q = `INSERT INTO login_attempts (email, ip_address, user_agent, success, attempted_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, attempt.Email, attempt.IPAddress, attempt.UserAgent,
		attempt.Success, attempt.Timestamp)
	return err
}

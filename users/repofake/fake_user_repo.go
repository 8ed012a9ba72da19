// Package userrepofake provides an in-memory users.CredentialRepo for tests.
package userrepofake

import (
	"context"
	"sync"
	"time"

	"github.com/campuslink/go-session-service/users"
)

var _ users.CredentialRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	lock     sync.RWMutex
	users    map[string]*users.User // keyed by email
	attempts []users.LoginAttempt
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

// Upsert stores a user for test setup.
func (r *FakeUserRepo) Upsert(u *users.User) {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *u
	r.users[u.Email] = &copied
}

func (r *FakeUserRepo) FindByEmail(_ context.Context, email string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	u, ok := r.users[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *FakeUserRepo) IncrementFailedLogins(_ context.Context, email string) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	u, ok := r.users[email]
	if !ok {
		return 0, users.ErrNotFound
	}
	u.FailedLoginAttempts++
	return u.FailedLoginAttempts, nil
}

func (r *FakeUserRepo) SetLockout(_ context.Context, email string, until time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	u, ok := r.users[email]
	if !ok {
		return users.ErrNotFound
	}
	u.LockedUntil = &until
	return nil
}

func (r *FakeUserRepo) ResetLockout(_ context.Context, email string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	u, ok := r.users[email]
	if !ok {
		return users.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (r *FakeUserRepo) AppendLoginAttempt(_ context.Context, attempt users.LoginAttempt) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

// Attempts returns a copy of the recorded audit log.
func (r *FakeUserRepo) Attempts() []users.LoginAttempt {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]users.LoginAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

package guard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuslink/go-session-service/guard"
	"github.com/campuslink/go-session-service/store/storefakes"
	"github.com/campuslink/go-session-service/users"
	userrepofake "github.com/campuslink/go-session-service/users/repofake"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type guardFixture struct {
	clock *fakeClock
	repo  *userrepofake.FakeUserRepo
	store *storefakes.FakeStore
	guard *guard.Guard
}

func setupGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	clock := newFakeClock()
	repo := userrepofake.NewFakeUserRepo()
	st := storefakes.NewFakeStore()
	st.SetNowFunc(clock.Now)

	g := guard.New(repo, st,
		guard.WithAccountLockout(5, 30*time.Minute),
		guard.WithIPThrottle(10, time.Hour),
		guard.WithNowFunc(clock.Now),
	)

	repo.Upsert(&users.User{
		ID:     "user-1",
		Email:  "a@x.edu",
		Role:   users.RoleMember,
		Active: true,
	})

	return &guardFixture{clock: clock, repo: repo, store: st, guard: g}
}

func TestGuard_LocksAccountAfterThreshold(t *testing.T) {
	f := setupGuardFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, f.guard.RecordAttempt(ctx, "a@x.edu", "203.0.113.7", "ua", false))
		locked, err := f.guard.IsAccountLocked(ctx, "a@x.edu")
		require.NoError(t, err)
		require.False(t, locked)
	}

	// Fifth consecutive failure trips the lockout.
	require.NoError(t, f.guard.RecordAttempt(ctx, "a@x.edu", "203.0.113.7", "ua", false))
	locked, err := f.guard.IsAccountLocked(ctx, "a@x.edu")
	require.NoError(t, err)
	require.True(t, locked)

	// The lock expires on its own.
	f.clock.Advance(31 * time.Minute)
	locked, err = f.guard.IsAccountLocked(ctx, "a@x.edu")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestGuard_SuccessResetsCountersEvenAfterStaleLock(t *testing.T) {
	f := setupGuardFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.guard.RecordAttempt(ctx, "a@x.edu", "203.0.113.7", "ua", false))
	}
	f.clock.Advance(31 * time.Minute)

	// Success after the lock expired clears both the counter and the
	// stale deadline, so a later failure starts from zero.
	require.NoError(t, f.guard.RecordAttempt(ctx, "a@x.edu", "203.0.113.7", "ua", true))

	u, err := f.repo.FindByEmail(ctx, "a@x.edu")
	require.NoError(t, err)
	require.Zero(t, u.FailedLoginAttempts)
	require.Nil(t, u.LockedUntil)

	require.NoError(t, f.guard.RecordAttempt(ctx, "a@x.edu", "203.0.113.7", "ua", false))
	locked, err := f.guard.IsAccountLocked(ctx, "a@x.edu")
	require.NoError(t, err)
	require.False(t, locked)
}

func TestGuard_IPThrottleCountsAcrossAccounts(t *testing.T) {
	f := setupGuardFixture(t)
	ctx := context.Background()

	f.repo.Upsert(&users.User{ID: "user-2", Email: "b@x.edu", Role: users.RoleMember, Active: true})

	emails := []string{"a@x.edu", "b@x.edu", "ghost@x.edu"}
	for i := 0; i < 9; i++ {
		require.NoError(t, f.guard.RecordAttempt(ctx, emails[i%len(emails)], "203.0.113.7", "ua", false))
	}

	limited, err := f.guard.IsIPRateLimited(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.False(t, limited)

	require.NoError(t, f.guard.RecordAttempt(ctx, "ghost@x.edu", "203.0.113.7", "ua", false))

	limited, err = f.guard.IsIPRateLimited(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.True(t, limited)

	// A different IP is unaffected.
	limited, err = f.guard.IsIPRateLimited(ctx, "198.51.100.9")
	require.NoError(t, err)
	require.False(t, limited)

	// The trailing window elapses and the bucket self-expires.
	f.clock.Advance(61 * time.Minute)
	limited, err = f.guard.IsIPRateLimited(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.False(t, limited)
}

func TestGuard_RecordAttemptAppendsAudit(t *testing.T) {
	f := setupGuardFixture(t)
	ctx := context.Background()

	require.NoError(t, f.guard.RecordAttempt(ctx, "a@x.edu", "203.0.113.7", "test-agent", false))
	require.NoError(t, f.guard.RecordAttempt(ctx, "a@x.edu", "203.0.113.7", "test-agent", true))

	attempts := f.repo.Attempts()
	require.Len(t, attempts, 2)
	require.False(t, attempts[0].Success)
	require.True(t, attempts[1].Success)
	require.Equal(t, "203.0.113.7", attempts[0].IPAddress)
	require.Equal(t, "test-agent", attempts[0].UserAgent)
}

func TestGuard_UnknownAccountStillCountsAgainstIP(t *testing.T) {
	f := setupGuardFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, f.guard.RecordAttempt(ctx, "ghost@x.edu", "203.0.113.7", "ua", false))
	}

	limited, err := f.guard.IsIPRateLimited(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.True(t, limited)

	locked, err := f.guard.IsAccountLocked(ctx, "ghost@x.edu")
	require.NoError(t, err)
	require.False(t, locked)
}

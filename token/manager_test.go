package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuslink/go-session-service/store"
	"github.com/campuslink/go-session-service/store/storefakes"
	"github.com/campuslink/go-session-service/token"
	"github.com/campuslink/go-session-service/users"
)

type managerFixture struct {
	clock   *fakeClock
	store   *storefakes.FakeStore
	manager *token.Manager
}

func setupManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	clock := newFakeClock()
	st := storefakes.NewFakeStore()
	st.SetNowFunc(clock.Now)

	accessCodec := token.NewCodec(token.NewHMACSigner("access-secret"), token.WithCodecNowFunc(clock.Now))
	refreshCodec := token.NewCodec(token.NewHMACSigner("refresh-secret"), token.WithCodecNowFunc(clock.Now))

	manager := token.NewManager(st, accessCodec, refreshCodec,
		token.WithTokenExpiry(15*time.Minute, 7*24*time.Hour),
		token.WithNowFunc(clock.Now),
	)

	return &managerFixture{clock: clock, store: st, manager: manager}
}

func TestManager_IssuePairAndVerifyAccess(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.IssuePair(ctx, "user-1", "a@x.edu", users.RoleMember)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	payload, err := f.manager.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", payload.SubjectID)
	require.Equal(t, users.RoleMember, payload.Role)

	// A refresh token is not an access token.
	_, err = f.manager.VerifyAccess(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestManager_RefreshRotatesAndRejectsReuse(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.IssuePair(ctx, "user-1", "a@x.edu", users.RoleMember)
	require.NoError(t, err)

	rotated, err := f.manager.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The presented token is single-use: replaying it fails even though
	// its signature and expiry are still valid.
	_, err = f.manager.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	// The rotated token keeps working.
	_, err = f.manager.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestManager_RefreshRejectsSupersededToken(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	first, err := f.manager.IssuePair(ctx, "user-1", "a@x.edu", users.RoleMember)
	require.NoError(t, err)

	// A second login overwrites the user's refresh slot.
	second, err := f.manager.IssuePair(ctx, "user-1", "a@x.edu", users.RoleMember)
	require.NoError(t, err)

	_, err = f.manager.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	_, err = f.manager.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestManager_RefreshRejectsExpiredToken(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.IssuePair(ctx, "user-1", "a@x.edu", users.RoleMember)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)

	_, err = f.manager.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestManager_RevokeAllInvalidatesOutstandingTokens(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	pair, err := f.manager.IssuePair(ctx, "user-1", "a@x.edu", users.RoleMember)
	require.NoError(t, err)

	require.NoError(t, f.manager.RevokeAll(ctx, "user-1"))

	// Both halves of the pair die instantly on the version check, with no
	// per-token blacklisting.
	_, err = f.manager.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
	_, err = f.manager.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	// New pairs issued after revocation carry the bumped version and work.
	fresh, err := f.manager.IssuePair(ctx, "user-1", "a@x.edu", users.RoleMember)
	require.NoError(t, err)
	payload, err := f.manager.VerifyAccess(ctx, fresh.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(1), payload.TokenVersion)
}

func TestManager_BlacklistExpiresWithTTL(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Blacklist(ctx, "some-token", time.Minute))

	blacklisted, err := f.manager.IsBlacklisted(ctx, "some-token")
	require.NoError(t, err)
	require.True(t, blacklisted)

	f.clock.Advance(2 * time.Minute)

	blacklisted, err = f.manager.IsBlacklisted(ctx, "some-token")
	require.NoError(t, err)
	require.False(t, blacklisted)
}

func TestManager_SweepBlacklistRemovesUnexpiringEntries(t *testing.T) {
	f := setupManagerFixture(t)
	ctx := context.Background()

	// An entry with a TTL is left for the store to reclaim.
	require.NoError(t, f.manager.Blacklist(ctx, "token-with-ttl", time.Hour))
	// An entry the backing store failed to give an expiry is swept.
	require.NoError(t, f.store.Set(ctx, "blacklist:stuck-entry", "revoked", 0))

	removed := f.manager.SweepBlacklist(ctx)
	require.Equal(t, 1, removed)

	exists, err := f.store.Exists(ctx, "blacklist:stuck-entry")
	require.NoError(t, err)
	require.False(t, exists)

	blacklisted, err := f.manager.IsBlacklisted(ctx, "token-with-ttl")
	require.NoError(t, err)
	require.True(t, blacklisted)
}

// unavailableStore fails every read to exercise fail-closed behavior.
type unavailableStore struct {
	*storefakes.FakeStore
}

func (s *unavailableStore) Exists(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}

func TestManager_VerifyAccessFailsClosedOnStoreError(t *testing.T) {
	clock := newFakeClock()
	st := &unavailableStore{FakeStore: storefakes.NewFakeStore()}
	st.SetNowFunc(clock.Now)

	accessCodec := token.NewCodec(token.NewHMACSigner("access-secret"), token.WithCodecNowFunc(clock.Now))
	refreshCodec := token.NewCodec(token.NewHMACSigner("refresh-secret"), token.WithCodecNowFunc(clock.Now))
	manager := token.NewManager(st, accessCodec, refreshCodec, token.WithNowFunc(clock.Now))

	raw, err := accessCodec.Issue(token.Payload{SubjectID: "user-1"}, 15*time.Minute)
	require.NoError(t, err)

	// A blacklist check that cannot complete must reject, not pass.
	_, err = manager.VerifyAccess(context.Background(), raw)
	require.ErrorIs(t, err, store.ErrUnavailable)
}

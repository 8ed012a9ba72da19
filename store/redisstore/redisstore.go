// Package redisstore implements store.Store on Redis via go-redis.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/campuslink/go-session-service/store"
)

const defaultOpTimeout = 2 * time.Second

var _ store.Store = (*RedisStore)(nil)

// RedisStore adapts a redis.UniversalClient to the store.Store contract.
// Every call runs under a bounded timeout so a slow Redis node cannot
// stall the request path; callers on security gates fail closed on error.
type RedisStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithOpTimeout overrides the per-operation timeout.
func WithOpTimeout(d time.Duration) Option {
	return func(s *RedisStore) {
		s.opTimeout = d
	}
}

// New constructs a Redis-backed store.
func New(client redis.UniversalClient, options ...Option) *RedisStore {
	s := &RedisStore{
		client:    client,
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *RedisStore) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err, "RedisStore.Set")
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	won, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable(err, "RedisStore.SetNX")
	}
	return won, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", unavailable(err, "RedisStore.Get")
	}
	return value, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return unavailable(err, "RedisStore.Del")
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err, "RedisStore.Exists")
	}
	return n > 0, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err, "RedisStore.Incr")
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return unavailable(err, "RedisStore.Expire")
	}
	return nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err, "RedisStore.TTL")
	}
	// go-redis reports -2s for a missing key and -1s for no expiry.
	if d == -2*time.Second {
		return 0, store.ErrNotFound
	}
	if d < 0 {
		return store.NoExpiry, nil
	}
	return d, nil
}

func (s *RedisStore) KeysMatching(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable(err, "RedisStore.KeysMatching")
	}
	return keys, nil
}

func unavailable(err error, op string) error {
	return errors.Wrapf(store.ErrUnavailable, "[%s] %v", op, err)
}

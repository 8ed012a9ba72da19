// Package store defines the shared ephemeral key-value store used for
// refresh-token hashes, blacklist entries, token-version counters, and
// rate-limit buckets. The service runs as multiple replicas, so all
// coordination happens through the store's atomic primitives rather than
// in-process locks.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the key does not exist (or has expired).
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable indicates a transient infrastructure failure. Callers
	// performing security checks must treat it as a failure of the whole
	// operation, never as "absent".
	ErrUnavailable = errors.New("store unavailable")
)

// NoExpiry is returned by TTL for keys that exist without an expiry set.
const NoExpiry = time.Duration(-1)

// Store is the ephemeral store contract. Implementations must make Incr
// and SetNX atomic across replicas.
type Store interface {
	// Set stores value under key with the given TTL (0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value only if key is absent. Returns true when this
	// caller won the write. This is the compare-and-set primitive that
	// makes refresh rotation single-winner under concurrency.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Del removes key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Incr atomically increments the integer at key (absent counts as 0)
	// and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key, NoExpiry if the key has
	// no expiry, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// KeysMatching returns all keys with the given prefix. Used only by
	// the maintenance sweep; never on the request path.
	KeysMatching(ctx context.Context, prefix string) ([]string, error)
}

// Package storefakes provides an in-memory store.Store for tests.
package storefakes

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campuslink/go-session-service/store"
)

var _ store.Store = (*FakeStore)(nil)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// FakeStore is a threadsafe in-memory store with real TTL semantics and an
// injectable clock so tests can advance time without sleeping.
type FakeStore struct {
	lock    sync.RWMutex
	entries map[string]entry
	nowFunc func() time.Time
}

// NewFakeStore constructs an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock.
func (f *FakeStore) SetNowFunc(now func() time.Time) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.nowFunc = now
}

// live returns the entry if present and unexpired. Caller holds the lock.
func (f *FakeStore) live(key string) (entry, bool) {
	e, ok := f.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !f.nowFunc().Before(e.expiresAt) {
		delete(f.entries, key)
		return entry{}, false
	}
	return e, true
}

func (f *FakeStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.entries[key] = f.newEntry(value, ttl)
	return nil
}

func (f *FakeStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if _, ok := f.live(key); ok {
		return false, nil
	}
	f.entries[key] = f.newEntry(value, ttl)
	return true, nil
}

func (f *FakeStore) Get(_ context.Context, key string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	e, ok := f.live(key)
	if !ok {
		return "", store.ErrNotFound
	}
	return e.value, nil
}

func (f *FakeStore) Del(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *FakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.live(key)
	return ok, nil
}

func (f *FakeStore) Incr(_ context.Context, key string) (int64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var n int64
	if e, ok := f.live(key); ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, store.ErrUnavailable
		}
		n = parsed
	}
	n++
	e := f.entries[key]
	e.value = strconv.FormatInt(n, 10)
	f.entries[key] = e
	return n, nil
}

func (f *FakeStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	e, ok := f.live(key)
	if !ok {
		return store.ErrNotFound
	}
	e.expiresAt = f.nowFunc().Add(ttl)
	f.entries[key] = e
	return nil
}

func (f *FakeStore) TTL(_ context.Context, key string) (time.Duration, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	e, ok := f.live(key)
	if !ok {
		return 0, store.ErrNotFound
	}
	if e.expiresAt.IsZero() {
		return store.NoExpiry, nil
	}
	return e.expiresAt.Sub(f.nowFunc()), nil
}

func (f *FakeStore) KeysMatching(_ context.Context, prefix string) ([]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	keys := make([]string, 0)
	for key := range f.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := f.live(key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *FakeStore) newEntry(value string, ttl time.Duration) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = f.nowFunc().Add(ttl)
	}
	return e
}

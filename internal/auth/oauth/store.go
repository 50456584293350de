package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/cache"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// TokenStore holds at most one token entry.
type TokenStore interface {
	// Get returns ErrNoEntry when nothing usable is stored.
	Get(ctx context.Context) (*Entry, error)

	// Set stores e; ttl is a hint for stores that expire entries.
	Set(ctx context.Context, e *Entry, ttl time.Duration) error

	// Clear drops the stored entry.
	Clear(ctx context.Context) error
}

// MemoryStore is the process-local tier. It keeps entries past expiry so
// fallback mode can serve them.
type MemoryStore struct {
	entry atomic.Pointer[Entry]
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored entry.
func (m *MemoryStore) Get(context.Context) (*Entry, error) {
	e := m.entry.Load()
	if e == nil {
		return nil, ErrNoEntry
	}
	c := *e
	return &c, nil
}

// Set replaces the stored entry.
func (m *MemoryStore) Set(_ context.Context, e *Entry, _ time.Duration) error {
	c := *e
	m.entry.Store(&c)
	return nil
}

// Clear drops the stored entry.
func (m *MemoryStore) Clear(context.Context) error {
	m.entry.Store(nil)
	return nil
}

// RemoteStore keeps the entry as JSON under a fixed key in a cache.Cache.
type RemoteStore struct {
	cache  cache.Cache
	key    string
	logger observability.Logger
}

// NewRemoteStore returns a RemoteStore for key.
func NewRemoteStore(c cache.Cache, key string, logger observability.Logger) *RemoteStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RemoteStore{cache: c, key: key, logger: logger}
}

// Key returns the cache key.
func (r *RemoteStore) Key() string {
	return r.key
}

// Get reads and decodes the entry. Misses, cache errors and malformed
// values all yield ErrNoEntry.
func (r *RemoteStore) Get(ctx context.Context) (*Entry, error) {
	raw, err := r.cache.Get(ctx, r.key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
			r.logger.Warn("distributed token cache read failed", observability.Error(err))
		}
		return nil, ErrNoEntry
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.logger.Error("ignoring malformed token cache entry",
			observability.String("key", r.key),
			observability.Error(err))
		return nil, ErrNoEntry
	}
	return &e, nil
}

// Set writes the entry with ttl.
func (r *RemoteStore) Set(ctx context.Context, e *Entry, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, r.key, raw, ttl)
}

// Clear deletes the entry.
func (r *RemoteStore) Clear(ctx context.Context) error {
	return r.cache.Delete(ctx, r.key)
}

// LayeredStore reads the local tier first and falls back to the remote
// tier, promoting remote entries that accept approves.
type LayeredStore struct {
	Local  *MemoryStore
	Remote TokenStore
	accept func(*Entry) bool
}

// NewLayeredStore composes local over remote.
func NewLayeredStore(local *MemoryStore, remote TokenStore, accept func(*Entry) bool) *LayeredStore {
	return &LayeredStore{Local: local, Remote: remote, accept: accept}
}

// Get returns the first accepted entry, local then remote.
func (l *LayeredStore) Get(ctx context.Context) (*Entry, error) {
	if e, err := l.Local.Get(ctx); err == nil && l.accept(e) {
		return e, nil
	}
	if l.Remote == nil {
		return nil, ErrNoEntry
	}

	e, err := l.Remote.Get(ctx)
	if err != nil || !l.accept(e) {
		return nil, ErrNoEntry
	}
	_ = l.Local.Set(ctx, e, 0)
	return e, nil
}

// Set writes the local tier, then the remote tier. Only a remote failure is
// returned; the local write cannot fail.
func (l *LayeredStore) Set(ctx context.Context, e *Entry, ttl time.Duration) error {
	_ = l.Local.Set(ctx, e, ttl)
	if l.Remote == nil {
		return nil
	}
	return l.Remote.Set(ctx, e, ttl)
}

// Clear drops both tiers.
func (l *LayeredStore) Clear(ctx context.Context) error {
	_ = l.Local.Clear(ctx)
	if l.Remote == nil {
		return nil
	}
	return l.Remote.Clear(ctx)
}

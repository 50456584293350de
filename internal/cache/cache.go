package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that no distributed cache is configured.
	ErrCacheDisabled = errors.New("cache disabled")
)

// Cache is a string-keyed byte cache with per-entry TTL.
type Cache interface {
	// Get returns ErrCacheMiss if the key is not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	Close() error
}

// New returns a Redis cache when cfg enables one, otherwise a disabled cache.
func New(cfg *config.RedisConfig, logger observability.Logger) (Cache, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if !cfg.Enabled() {
		logger.Info("distributed token cache disabled")
		return NewDisabled(), nil
	}
	c, err := NewRedis(cfg, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type disabledCache struct{}

// NewDisabled returns a cache whose operations do nothing and report
// ErrCacheDisabled.
func NewDisabled() Cache {
	return disabledCache{}
}

func (disabledCache) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (disabledCache) Set(context.Context, string, []byte, time.Duration) error {
	return ErrCacheDisabled
}

func (disabledCache) Delete(context.Context, string) error {
	return ErrCacheDisabled
}

func (disabledCache) Ping(context.Context) error {
	return ErrCacheDisabled
}

func (disabledCache) Close() error {
	return nil
}

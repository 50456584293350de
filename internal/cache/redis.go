package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
	"github.com/vyrodovalexey/sitegate/internal/retry"
)

const (
	backendRedis = "redis"
	startupPing  = 5 * time.Second
)

// redisRetryConfig keeps retries short; a slow cache must not stall token
// delivery.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError reports whether err is worth another attempt.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// RedisCache is a Cache backed by a single Redis endpoint.
type RedisCache struct {
	logger observability.Logger
	client *redis.Client
	tracer trace.Tracer
	retry  *retry.Config
}

// NewRedis connects to the Redis server in cfg. An unreachable server is
// logged but not fatal; go-redis reconnects on demand.
func NewRedis(cfg *config.RedisConfig, logger observability.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	applyRedisOptions(opts, cfg)

	c := NewRedisFromClient(redis.NewClient(opts), logger)

	ctx, cancel := context.WithTimeout(context.Background(), startupPing)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup; continuing with local token cache only",
			observability.String("addr", opts.Addr),
			observability.Error(err))
	} else {
		logger.Info("redis token cache initialized",
			observability.String("addr", opts.Addr),
			observability.Bool("tls", opts.TLSConfig != nil))
	}

	return c, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, logger observability.Logger) *RedisCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisCache{
		logger: logger,
		client: client,
		tracer: observability.Tracer("cache"),
		retry:  redisRetryConfig(),
	}
}

func applyRedisOptions(opts *redis.Options, cfg *config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration()
	}
	if cfg.TLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
}

// startSpan opens a client span for op. Keys are not recorded; they embed
// tenant and client identifiers only, but stay out of trace backends.
func (c *RedisCache) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.backend", backendRedis)),
	)
}

func (c *RedisCache) fail(span trace.Span, op, key string, err error) {
	GetCacheMetrics().errorsTotal.WithLabelValues(backendRedis, op).Inc()
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Warn("redis "+op+" failed",
		observability.String("key", key),
		observability.Error(err))
}

func (c *RedisCache) onRetry(op, key string) retry.Option {
	return retry.WithOnRetry(func(attempt int, err error, _ time.Duration) {
		c.logger.Debug("retrying redis "+op,
			observability.String("key", key),
			observability.Int("attempt", attempt),
			observability.Error(err))
	})
}

// Get retrieves a value with bounded retry.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.startSpan(ctx, "Get")
	defer span.End()
	defer observeDuration(backendRedis, "get", time.Now())

	var result []byte
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		val, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			result = val
		}
		return err
	}, retry.WithShouldRetry(isRetryableRedisError), c.onRetry("get", key))

	switch {
	case err == nil:
		GetCacheMetrics().hitsTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return result, nil
	case errors.Is(err, redis.Nil):
		GetCacheMetrics().missesTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	default:
		c.fail(span, "get", key, err)
		return nil, err
	}
}

// Set stores a value with bounded retry.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := c.startSpan(ctx, "Set")
	defer span.End()
	defer observeDuration(backendRedis, "set", time.Now())

	span.SetAttributes(
		attribute.Int("cache.value_size", len(value)),
		attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
	)

	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.client.Set(ctx, key, value, ttl).Err()
	}, retry.WithShouldRetry(isRetryableRedisError), c.onRetry("set", key))
	if err != nil {
		c.fail(span, "set", key, err)
		return err
	}

	c.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", ttl))
	return nil
}

// Delete removes a value with bounded retry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, span := c.startSpan(ctx, "Delete")
	defer span.End()
	defer observeDuration(backendRedis, "delete", time.Now())

	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.client.Del(ctx, key).Err()
	}, retry.WithShouldRetry(isRetryableRedisError), c.onRetry("delete", key))
	if err != nil {
		c.fail(span, "delete", key, err)
		return err
	}
	return nil
}

// Ping checks connectivity without retry.
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Ping")
	defer span.End()
	defer observeDuration(backendRedis, "ping", time.Now())

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.fail(span, "ping", "", err)
		return err
	}
	return nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

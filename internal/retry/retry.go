package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	DefaultMaxRetries     = 2
	DefaultInitialBackoff = 50 * time.Millisecond
	DefaultMaxBackoff     = 1 * time.Second
	DefaultJitterFactor   = 0.25
	MaxJitterFactor       = 1.0
)

// Config contains retry configuration parameters. Zero fields take defaults.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// JitterFactor (0.0 to 1.0) adds up to that fraction of randomness to each backoff.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (c *Config) maxRetries() int {
	if c == nil || c.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

func (c *Config) initialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

func (c *Config) maxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

func (c *Config) jitterFactor() float64 {
	switch {
	case c == nil || c.JitterFactor < 0:
		return DefaultJitterFactor
	case c.JitterFactor > MaxJitterFactor:
		return MaxJitterFactor
	default:
		return c.JitterFactor
	}
}

// Backoff returns the wait before retry number attempt (zero based).
func (c *Config) Backoff(attempt int) time.Duration {
	backoff := float64(c.initialBackoff()) * math.Pow(2, float64(attempt))

	//nolint:gosec // jitter for retry timing is not security-sensitive
	backoff += backoff * c.jitterFactor() * rand.Float64()

	if limit := float64(c.maxBackoff()); backoff > limit {
		backoff = limit
	}
	return time.Duration(backoff)
}

// Option customizes a single Do call.
type Option func(*options)

type options struct {
	shouldRetry func(error) bool
	onRetry     func(attempt int, err error, backoff time.Duration)
}

// WithShouldRetry limits retries to errors for which fn returns true.
func WithShouldRetry(fn func(error) bool) Option {
	return func(o *options) {
		o.shouldRetry = fn
	}
}

// WithOnRetry registers a callback invoked before each retry.
func WithOnRetry(fn func(attempt int, err error, backoff time.Duration)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Do calls fn until it succeeds, the error is not retryable, retries are
// exhausted or ctx ends. It returns the last error from fn, or ctx.Err().
func Do(ctx context.Context, cfg *Config, fn func(context.Context) error, opts ...Option) error {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	maxRetries := cfg.maxRetries()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if o.shouldRetry != nil && !o.shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		backoff := cfg.Backoff(attempt)
		if o.onRetry != nil {
			o.onRetry(attempt+1, lastErr, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

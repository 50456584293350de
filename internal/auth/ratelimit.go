package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// Limiter idle eviction bounds.
const (
	DefaultLimiterTTL  = 10 * time.Minute
	minCleanupInterval = 10 * time.Second
	maxCleanupInterval = time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// KeyLimiter applies an independent token bucket to each API key.
type KeyLimiter struct {
	rps    rate.Limit
	burst  int
	ttl    time.Duration
	logger observability.Logger

	mu      sync.Mutex
	entries map[string]*limiterEntry
	stopCh  chan struct{}
	stopped bool
}

// NewKeyLimiter creates a per-key limiter. A burst below one is raised to one.
func NewKeyLimiter(rps float64, burst int, logger observability.Logger) *KeyLimiter {
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &KeyLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     DefaultLimiterTTL,
		logger:  logger,
		entries: make(map[string]*limiterEntry),
		stopCh:  make(chan struct{}),
	}
}

// NewKeyLimiterFromConfig returns nil when rate limiting is disabled.
func NewKeyLimiterFromConfig(cfg *config.RateLimitConfig, logger observability.Logger) *KeyLimiter {
	if cfg == nil || !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return NewKeyLimiter(cfg.RequestsPerSecond, cfg.Burst, logger)
}

// Allow consumes one token from keyID's bucket.
func (l *KeyLimiter) Allow(keyID string) bool {
	now := time.Now()

	l.mu.Lock()
	entry, ok := l.entries[keyID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[keyID] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Cleanup drops buckets idle for longer than maxAge.
func (l *KeyLimiter) Cleanup(maxAge time.Duration) int {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, entry := range l.entries {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(l.entries, id)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("cleaned up idle rate limiter entries",
			observability.Int("removed", removed),
			observability.Int("remaining", len(l.entries)),
		)
	}
	return removed
}

// StartAutoCleanup evicts idle buckets periodically until Stop is called.
func (l *KeyLimiter) StartAutoCleanup() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	interval := min(max(l.ttl/2, minCleanupInterval), maxCleanupInterval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Cleanup(l.ttl)
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *KeyLimiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
}

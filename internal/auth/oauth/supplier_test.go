package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/sitegate/internal/cache"
	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// tokenServer is a scripted token endpoint.
type tokenServer struct {
	*httptest.Server
	calls  atomic.Int32
	fail   atomic.Bool
	gate   chan struct{}
	issued atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		if ts.gate != nil {
			<-ts.gate
		}
		if ts.fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"temporarily_unavailable","error_description":"try later"}`))
			return
		}
		n := ts.issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestSupplier(t *testing.T, endpoint string, clock *fakeClock, opts ...Option) *Supplier {
	t.Helper()

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s, err := NewSupplier(Config{
		TenantID:      "dir-1",
		ClientID:      "app-1",
		ClientSecret:  "client-secret",
		TokenEndpoint: endpoint,
		Scope:         "https://graph.microsoft.com/.default",
		KeyPrefix:     "sitegate",
	}, opts...)
	require.NoError(t, err)
	return s
}

func TestSupplier_AcquiresAndCachesLocally(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	clock := newFakeClock()
	s := newTestSupplier(t, ts.URL, clock)

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	clock.Advance(30 * time.Minute)
	tok, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, int32(1), ts.calls.Load())

	st := s.Stats()
	assert.True(t, st.HasToken)
	assert.Equal(t, t0.Add(time.Hour), st.ExpiresAt)
	assert.Equal(t, t0, st.CachedAt)
}

func TestSupplier_RefreshBuffer(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	clock := newFakeClock()
	s := newTestSupplier(t, ts.URL, clock)

	_, err := s.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour - 60*time.Second - time.Millisecond)
	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	clock.Advance(time.Millisecond)
	tok, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
}

func TestSupplier_FailuresThenSuccessResets(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	clock := newFakeClock()
	core, logs := observer.New(zap.DebugLevel)
	s := newTestSupplier(t, ts.URL, clock, WithLogger(observability.NewLoggerFromZap(zap.New(core))))

	ts.fail.Store(true)
	for i := 1; i <= 3; i++ {
		_, err := s.Token(context.Background())
		require.Error(t, err)

		var upstream *UpstreamError
		require.True(t, errors.As(err, &upstream))
		assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
		assert.Equal(t, "try later", upstream.Description)
		assert.ErrorIs(t, err, ErrTokenRequestFailed)
		assert.Equal(t, i, s.Stats().ConsecutiveFailures)
	}
	assert.Equal(t, 1, logs.FilterMessageSnippet("failing repeatedly").Len())
	assert.False(t, s.Stats().FallbackMode)

	ts.fail.Store(false)
	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	st := s.Stats()
	assert.Zero(t, st.ConsecutiveFailures)
	assert.False(t, st.FallbackMode)

	for _, entry := range logs.All() {
		assert.NotContains(t, fmt.Sprint(entry.ContextMap()), "client-secret")
		assert.NotContains(t, fmt.Sprint(entry.ContextMap()), "token-1")
	}
}

func TestSupplier_FallbackServesStaleToken(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	clock := newFakeClock()
	s := newTestSupplier(t, ts.URL, clock)

	_, err := s.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Minute)
	ts.fail.Store(true)

	for i := 1; i <= 4; i++ {
		_, err := s.Token(context.Background())
		require.Error(t, err, "attempt %d", i)
	}
	assert.False(t, s.Stats().FallbackMode)

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.True(t, s.Stats().FallbackMode)
	assert.Equal(t, 5, s.Stats().ConsecutiveFailures)

	// Fallback is sticky while failures continue.
	tok, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	// Beyond the window the stale token is no longer eligible.
	clock.Advance(DefaultFallbackWindow)
	_, err = s.Token(context.Background())
	require.Error(t, err)
	assert.True(t, s.Stats().FallbackMode)

	ts.fail.Store(false)
	tok, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.False(t, s.Stats().FallbackMode)
}

func TestSupplier_FallbackWithoutTokenFails(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	ts.fail.Store(true)
	s := newTestSupplier(t, ts.URL, newFakeClock())

	for i := 0; i < 6; i++ {
		_, err := s.Token(context.Background())
		require.Error(t, err)
	}
	assert.True(t, s.Stats().FallbackMode)
	assert.False(t, s.Stats().HasToken)
}

func TestSupplier_ConcurrentCallersShareOneAcquisition(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	ts.gate = make(chan struct{})
	s := newTestSupplier(t, ts.URL, newFakeClock())

	const callers = 50
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		tokens  = make([]string, callers)
		errs    = make([]error, callers)
	)
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			tokens[i], errs[i] = s.Token(context.Background())
		}(i)
	}

	started.Wait()
	require.Eventually(t, func() bool { return ts.calls.Load() >= 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(ts.gate)
	wg.Wait()

	assert.Equal(t, int32(1), ts.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "token-1", tokens[i])
	}
}

func TestSupplier_CallerCancellationDoesNotAbortAcquisition(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	ts.gate = make(chan struct{})
	s := newTestSupplier(t, ts.URL, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Token(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return ts.calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(ts.gate)
	require.Eventually(t, func() bool { return s.Stats().HasToken }, 5*time.Second, time.Millisecond)

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, int32(1), ts.calls.Load())
}

func newRedisCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := cache.NewRedis(&config.RedisConfig{URL: "redis://" + mr.Addr()}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSupplier_DistributedTierSharedBetweenInstances(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	clock := newFakeClock()
	rc, mr := newRedisCache(t)

	first := newTestSupplier(t, ts.URL, clock, WithCache(rc))
	tok, err := first.Token(context.Background())
	require.NoError(t, err)

	key := "sitegate:token:dir-1:app-1"
	require.True(t, mr.Exists(key))
	assert.Equal(t, DefaultMaxCacheAge, mr.TTL(key))

	var stored map[string]interface{}
	raw, err := mr.Get(key)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, tok, stored["token"])
	assert.EqualValues(t, t0.Add(time.Hour).UnixMilli(), stored["expiresAt"])
	assert.EqualValues(t, t0.UnixMilli(), stored["cachedAt"])

	second := newTestSupplier(t, ts.URL, clock, WithCache(rc))
	tok2, err := second.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, tok2)
	assert.Equal(t, int32(1), ts.calls.Load())
	assert.True(t, second.Stats().HasToken)
}

func TestSupplier_MalformedCacheEntryIsMiss(t *testing.T) {
	t.Parallel()

	values := []string{
		`not json`,
		`{"token":"x"}`,
		`{"expiresAt":1}`,
		`{"token":5,"expiresAt":1}`,
		`{"token":"x","expiresAt":"soon"}`,
		`[]`,
	}

	for _, v := range values {
		t.Run(v, func(t *testing.T) {
			t.Parallel()

			ts := newTokenServer(t)
			rc, mr := newRedisCache(t)
			require.NoError(t, mr.Set("sitegate:token:dir-1:app-1", v))

			s := newTestSupplier(t, ts.URL, newFakeClock(), WithCache(rc))
			tok, err := s.Token(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "token-1", tok)
			assert.Equal(t, int32(1), ts.calls.Load())
		})
	}
}

func TestSupplier_StaleCacheEntryIgnored(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	rc, mr := newRedisCache(t)
	stale := Entry{Token: "old", ExpiresAt: t0.Add(30 * time.Second), CachedAt: t0.Add(-time.Hour)}
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, mr.Set("sitegate:token:dir-1:app-1", string(raw)))

	s := newTestSupplier(t, ts.URL, newFakeClock(), WithCache(rc))
	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
}

func TestSupplier_RedisDownStillServes(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	rc, mr := newRedisCache(t)
	mr.Close()

	s := newTestSupplier(t, ts.URL, newFakeClock(), WithCache(rc))
	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
}

func TestSupplier_Invalidate(t *testing.T) {
	t.Parallel()

	ts := newTokenServer(t)
	rc, mr := newRedisCache(t)
	s := newTestSupplier(t, ts.URL, newFakeClock(), WithCache(rc))

	_, err := s.Token(context.Background())
	require.NoError(t, err)

	s.Invalidate(context.Background())
	assert.False(t, s.Stats().HasToken)
	assert.False(t, mr.Exists("sitegate:token:dir-1:app-1"))

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
}

func TestSupplier_RemoteTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := newTestSupplier(t, "http://unused", clock)

	tests := []struct {
		name      string
		expiresIn time.Duration
		want      time.Duration
	}{
		{name: "capped by max cache age", expiresIn: 2 * time.Hour, want: DefaultMaxCacheAge},
		{name: "remaining lifetime", expiresIn: 10 * time.Minute, want: 10 * time.Minute},
		{name: "floor", expiresIn: 10 * time.Second, want: minRemoteTTL},
		{name: "already expired", expiresIn: -time.Minute, want: minRemoteTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := &Entry{Token: "x", ExpiresAt: t0.Add(tt.expiresIn)}
			assert.Equal(t, tt.want, s.remoteTTL(e))
		})
	}
}

func TestNewSupplier_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSupplier(Config{ClientID: "a", ClientSecret: "b"})
	assert.ErrorIs(t, err, ErrMissingTokenEndpoint)

	_, err = NewSupplier(Config{TokenEndpoint: "http://x", ClientSecret: "b"})
	assert.ErrorIs(t, err, ErrMissingClientID)

	_, err = NewSupplier(Config{TokenEndpoint: "http://x", ClientID: "a"})
	assert.ErrorIs(t, err, ErrMissingClientSecret)
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "p:token:t:c", CacheKey("p", "t", "c"))
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/sitegate/internal/cache"
	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTokens struct{ err error }

func (f fakeTokens) Token(context.Context) (string, error) { return "tok", f.err }

type fakeAPI struct {
	graphErr, spErr error
	rootID          string
	paths           []string
}

func (f *fakeAPI) Graph(_ context.Context, req graph.Request, out any) error {
	f.paths = append(f.paths, req.Path+"?"+req.Query.Encode())
	if f.graphErr != nil {
		return f.graphErr
	}
	raw, _ := json.Marshal(map[string]string{"id": f.rootID})
	return json.Unmarshal(raw, out)
}

func (f *fakeAPI) SharePoint(_ context.Context, host string, req graph.Request, _ any) error {
	f.paths = append(f.paths, host+req.Path+"?"+req.Query.Encode())
	return f.spErr
}

func newTestHandler(checks ...HealthCheck) *Handler {
	h := NewHandler(Info{Version: "1.2.3", Environment: "test"}, observability.NopLogger(),
		WithMetrics(NewHealthMetrics("test")))
	for _, c := range checks {
		h.AddCheck(c)
	}
	return h
}

func serve(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	engine := gin.New()
	h.RegisterRoutes(engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	h := newTestHandler(NewHealthCheckFunc("broken", func(context.Context) error {
		return errors.New("down")
	}))
	h.startTime = time.Now().Add(-90 * time.Second)

	w, body := serve(t, h, "/healthz")

	assert.Equal(t, http.StatusOK, w.Code, "liveness ignores dependency checks")
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, "1m30s", body["uptime"])
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	pass := NewHealthCheckFunc("a", func(context.Context) error { return nil })
	skip := NewHealthCheckFunc("b", func(context.Context) error { return ErrSkipped })
	fail := NewHealthCheckFunc("c", func(context.Context) error { return errors.New("boom") })

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
		wantChecks []string
	}{
		{"no checks", nil, http.StatusOK, StatusReady, []string{}},
		{"pass and skipped", []HealthCheck{pass, skip}, http.StatusOK, StatusReady, []string{StatusPass, StatusSkipped}},
		{"one failing", []HealthCheck{pass, fail, skip}, http.StatusServiceUnavailable, StatusDegraded,
			[]string{StatusPass, StatusFail, StatusSkipped}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w, body := serve(t, newTestHandler(tt.checks...), "/readyz")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Contains(t, body, "overall_latency_ms")

			checks, ok := body["checks"].([]any)
			require.True(t, ok)
			got := make([]string, 0, len(checks))
			for _, c := range checks {
				entry := c.(map[string]any)
				got = append(got, entry["status"].(string))
				assert.Contains(t, entry, "latency_ms")
				assert.Contains(t, entry, "updated_at")
			}
			assert.Equal(t, tt.wantChecks, got)
		})
	}
}

func TestReadiness_MessagesAndTimeout(t *testing.T) {
	t.Parallel()

	h := NewHandler(Info{}, nil, WithTimeout(20*time.Millisecond), WithMetrics(NewHealthMetrics("test")))
	h.AddCheck(NewHealthCheckFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	h.AddCheck(RedisCheck(nil))

	status := h.Readiness(context.Background())

	require.Len(t, status.Checks, 2)
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusFail, status.Checks[0].Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks[0].Message)
	assert.Equal(t, StatusSkipped, status.Checks[1].Status)
	assert.Equal(t, "redis not configured", status.Checks[1].Message)
}

func TestRemoveCheck(t *testing.T) {
	t.Parallel()

	h := newTestHandler(
		NewHealthCheckFunc("a", func(context.Context) error { return nil }),
		NewHealthCheckFunc("b", func(context.Context) error { return nil }),
	)
	h.RemoveCheck("a")
	h.RemoveCheck("missing")

	status := h.Readiness(context.Background())
	require.Len(t, status.Checks, 1)
	assert.Equal(t, "b", status.Checks[0].Name)
}

func TestGraphCheck(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{rootID: "root-1"}
	require.NoError(t, GraphCheck(fakeTokens{}, api).Check(context.Background()))
	assert.Equal(t, []string{"/sites/root?%24select=id"}, api.paths)

	err := GraphCheck(fakeTokens{err: errors.New("no token")}, &fakeAPI{}).Check(context.Background())
	assert.ErrorContains(t, err, "token acquisition failed")

	err = GraphCheck(fakeTokens{}, &fakeAPI{graphErr: &graph.HTTPError{StatusCode: http.StatusForbidden}}).
		Check(context.Background())
	assert.True(t, graph.IsStatus(err, http.StatusForbidden))

	assert.Error(t, GraphCheck(fakeTokens{}, &fakeAPI{}).Check(context.Background()))
}

func TestSharePointCheck(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	assert.ErrorIs(t, SharePointCheck("", api).Check(context.Background()), ErrSkipped)
	assert.Empty(t, api.paths)

	require.NoError(t, SharePointCheck("https://contoso.sharepoint.com", api).Check(context.Background()))
	assert.Equal(t, []string{"https://contoso.sharepoint.com/_api/web?%24select=Id"}, api.paths)

	api.spErr = errors.New("unreachable")
	assert.ErrorContains(t, SharePointCheck("https://contoso.sharepoint.com", api).Check(context.Background()), "unreachable")
}

func TestRedisCheck(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, RedisCheck(cache.NewDisabled()).Check(context.Background()), ErrSkipped)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := cache.NewRedisFromClient(client, observability.NopLogger())
	require.NoError(t, RedisCheck(rc).Check(context.Background()))

	mr.Close()
	err := RedisCheck(rc).Check(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipped)
}

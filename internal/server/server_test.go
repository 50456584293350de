package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/sitegate/internal/apierror"
	"github.com/vyrodovalexey/sitegate/internal/auth"
	"github.com/vyrodovalexey/sitegate/internal/auth/apikey"
	"github.com/vyrodovalexey/sitegate/internal/auth/oauth"
	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/health"
	"github.com/vyrodovalexey/sitegate/internal/observability"
	"github.com/vyrodovalexey/sitegate/internal/provision"
	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const validKey = "valid-key"

var testTenant = &tenant.Tenant{ID: "t1", Name: "Tenant One", Active: true}

// keyAuth accepts validKey only.
type keyAuth struct{}

func (keyAuth) Authenticate(candidate string) apikey.Result {
	if candidate != validKey {
		return apikey.Result{Code: apikey.CodeInvalid, Message: "Invalid API key"}
	}
	return apikey.Result{
		OK:       true,
		Tenant:   testTenant,
		Key:      &apikey.Key{ID: "k1", TenantID: "t1", Active: true},
		TenantID: "t1",
		KeyID:    "k1",
	}
}

// fakeService records requests and returns canned results or err.
type fakeService struct {
	err       error
	panicWith any
	tenant    *tenant.Tenant
	provision provision.ProvisionRequest
	list      provision.ListRequest
	share     provision.ShareRequest
}

func (f *fakeService) Provision(_ context.Context, t *tenant.Tenant, req provision.ProvisionRequest) (*provision.ProvisionResult, error) {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	f.tenant, f.provision = t, req
	if f.err != nil {
		return nil, f.err
	}
	return &provision.ProvisionResult{TenantID: t.ID, SiteContext: provision.SiteContext{SiteID: "s1", SiteType: "team"}}, nil
}

func (f *fakeService) List(_ context.Context, t *tenant.Tenant, req provision.ListRequest) (*provision.ListResult, error) {
	f.tenant, f.list = t, req
	if f.err != nil {
		return nil, f.err
	}
	return &provision.ListResult{TenantID: t.ID, Items: []provision.DriveItem{{ID: "i1", Name: "a.txt"}}, SiteID: "s1"}, nil
}

func (f *fakeService) Share(_ context.Context, t *tenant.Tenant, req provision.ShareRequest) (*provision.ShareResult, error) {
	f.tenant, f.share = t, req
	if f.err != nil {
		return nil, f.err
	}
	return &provision.ShareResult{TenantID: t.ID, Link: "https://share/x", SiteID: "s1"}, nil
}

func newTestServer(svc Provisioner) *Server {
	logger := observability.NopLogger()
	gate := auth.NewGate(keyAuth{}, auth.WithLogger(logger), auth.WithMetrics(auth.NewMetrics("test")))
	h := health.NewHandler(health.Info{Version: "v1", Environment: "test"}, logger,
		health.WithMetrics(health.NewHealthMetrics("test")))

	return New(config.ServerConfig{WriteTimeout: config.Duration(time.Second)},
		Deps{Health: h, Gate: gate, Service: svc},
		WithLogger(logger), WithMetrics(NewMetrics("test")))
}

func do(t *testing.T, s *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func authed(extra ...string) map[string]string {
	h := map[string]string{"X-Api-Key": validKey}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) apierror.Envelope {
	t.Helper()
	var env apierror.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealthEndpointsArePublic(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeService{})

	w := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"environment":"test"`)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)
}

func TestAPIRequiresKey(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	s := newTestServer(svc)

	tests := []struct {
		name   string
		method string
		target string
		header map[string]string
		want   int
	}{
		{"provision without key", http.MethodPost, "/provision", nil, http.StatusUnauthorized},
		{"list with bad key", http.MethodGet, "/list?libraryName=Data", map[string]string{"X-Api-Key": "nope"}, http.StatusUnauthorized},
		{"unknown route without key", http.MethodGet, "/nope", nil, http.StatusUnauthorized},
		{"unknown route with key", http.MethodGet, "/nope", authed(), http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/provision", authed(), http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := do(t, s, tt.method, tt.target, "", tt.header)
			assert.Equal(t, tt.want, w.Code)
			env := envelope(t, w)
			assert.Equal(t, apierror.NameForStatus(tt.want), env.Error)
			assert.Equal(t, w.Header().Get(RequestIDHeader), env.RequestID)
		})
	}
	assert.Nil(t, svc.tenant)
}

func TestProvisionEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	s := newTestServer(svc)

	w := do(t, s, http.MethodPost, "/provision", "", authed(RequestIDHeader, "req-42"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"tenantId":"t1","siteId":"s1","siteType":"team"}`, w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "t1", w.Header().Get(auth.HeaderTenantID))
	assert.Same(t, testTenant, svc.tenant)

	w = do(t, s, http.MethodPost, "/provision", `{"siteType":"communication","displayName":"Hub"}`, authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, provision.ProvisionRequest{SiteType: "communication", DisplayName: "Hub"}, svc.provision)

	w = do(t, s, http.MethodPost, "/provision", `{"siteType":"wiki"}`, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := envelope(t, w)
	assert.Equal(t, apierror.BadRequest, env.Error)
	assert.Equal(t, []any{"SiteType"}, env.Details["fields"])

	w = do(t, s, http.MethodPost, "/provision", `{"siteType":`, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	s := newTestServer(svc)

	w := do(t, s, http.MethodGet, "/list?libraryName=Legal+%26+Finance&path=/Contracts", "", authed())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, provision.ListRequest{LibraryName: "Legal & Finance", Path: "/Contracts"}, svc.list)
	assert.Contains(t, w.Body.String(), `"a.txt"`)

	w = do(t, s, http.MethodGet, "/list", "", authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{"LibraryName"}, envelope(t, w).Details["fields"])
}

func TestShareEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	s := newTestServer(svc)

	future := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	body := fmt.Sprintf(`{"path":"report.pdf","type":"edit","expiresAt":%q}`, future.Format(time.RFC3339))
	w := do(t, s, http.MethodPost, "/share", body, authed())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"tenantId":"t1","link":"https://share/x","siteId":"s1"}`, w.Body.String())
	require.NotNil(t, svc.share.ExpiresAt)
	assert.True(t, future.Equal(*svc.share.ExpiresAt))

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing path", `{"type":"view"}`},
		{"bad type", `{"path":"a","type":"own"}`},
		{"bad time", `{"path":"a","expiresAt":"tomorrow"}`},
		{"past expiry", `{"path":"a","expiresAt":"2000-01-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := do(t, s, http.MethodPost, "/share", tt.body, authed())
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, apierror.BadRequest, envelope(t, w).Error)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"invalid request", fmt.Errorf("%w: bad", provision.ErrInvalidRequest), http.StatusBadRequest, "invalid request: bad"},
		{"no host", provision.ErrNoHost, http.StatusBadRequest, ""},
		{"drive missing", fmt.Errorf("%w: Data", provision.ErrDriveNotFound), http.StatusNotFound, ""},
		{"item missing", provision.ErrItemNotFound, http.StatusNotFound, ""},
		{"breaker open", fmt.Errorf("graph: %w", graph.ErrCircuitOpen), http.StatusServiceUnavailable, "Upstream temporarily unavailable"},
		{"site timeout", provision.ErrSiteTimeout, http.StatusGatewayTimeout, "Timed out waiting for upstream"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
		{"graph error", &graph.HTTPError{StatusCode: http.StatusForbidden, Body: "denied"}, http.StatusBadGateway, "Upstream request failed"},
		{"token error", &oauth.UpstreamError{StatusCode: http.StatusUnauthorized, Status: "401"}, http.StatusBadGateway, "Failed to acquire upstream access token"},
		{"creation failed", provision.ErrSiteCreationFailed, http.StatusBadGateway, ""},
		{"unknown", errors.New("kaboom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(&fakeService{err: tt.err})
			w := do(t, s, http.MethodPost, "/provision", "", authed())

			assert.Equal(t, tt.wantStatus, w.Code)
			env := envelope(t, w)
			assert.Equal(t, apierror.NameForStatus(tt.wantStatus), env.Error)
			assert.Equal(t, "/provision", env.Path)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Message)
			}
			assert.NotContains(t, env.Message, "kaboom")
		})
	}
}

func TestClassify_GraphDetails(t *testing.T) {
	t.Parallel()

	status, _, details := classify(&graph.HTTPError{
		StatusCode: http.StatusNotFound,
		Body:       map[string]any{"error": map[string]any{"message": "gone"}},
	})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, map[string]any{"upstreamStatus": http.StatusNotFound, "upstreamMessage": "gone"}, details)
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeService{panicWith: "boom"})
	w := do(t, s, http.MethodPost, "/provision", "", authed())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := envelope(t, w)
	assert.Equal(t, apierror.InternalServerError, env.Error)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeService{})
	body := `{"path":"` + strings.Repeat("a", DefaultMaxRequestBodySize) + `"}`
	w := do(t, s, http.MethodPost, "/share", body, authed())

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, apierror.PayloadTooLarge, envelope(t, w).Error)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := NewMetrics("test")
	metrics.MustRegister(registry)
	metrics.MustRegister(registry)

	s := New(config.ServerConfig{}, Deps{}, WithMetrics(metrics), WithGatherer(registry))
	do(t, s, http.MethodGet, "/missing", "", nil)

	w := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()

	s := New(config.ServerConfig{
		Address:         "127.0.0.1:0",
		MetricsAddress:  "127.0.0.1:0",
		ShutdownTimeout: config.Duration(time.Second),
	}, Deps{}, WithMetrics(NewMetrics("test")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.Error(t, s.Run(context.Background()), "a server runs once")
}

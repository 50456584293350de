package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
	"github.com/vyrodovalexey/sitegate/internal/secrets"
)

const testConfig = `
environment: test
identity:
  tenantId: dir-1
  clientId: app-1
  clientSecret:
    value: client-secret
sharepoint:
  siteDisplayName: Shared Workspace
tenants:
  - id: acme
    name: Acme Corp
    sharepoint:
      host: https://acme.sharepoint.com
apiKeys:
  - id: acme-primary
    tenantId: acme
    roles: [provisioner]
    secrets:
      - id: v1
        value: acme-key
auth:
  rateLimit:
    enabled: true
    requestsPerSecond: 5
    burst: 5
`

func loadTestConfig(t *testing.T, raw string) *config.Config {
	t.Helper()

	cfg, err := config.LoadConfigFromReader(strings.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, config.ValidateConfig(cfg))
	return cfg
}

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		setEnv       bool
		expected     string
	}{
		{
			name:         "returns default when env not set",
			key:          "SITEGATE_TEST_GETENV_NOTSET",
			defaultValue: "default-value",
			expected:     "default-value",
		},
		{
			name:         "returns env value when set",
			key:          "SITEGATE_TEST_GETENV_SET",
			defaultValue: "default-value",
			envValue:     "env-value",
			setEnv:       true,
			expected:     "env-value",
		},
		{
			name:         "returns default when env is empty string",
			key:          "SITEGATE_TEST_GETENV_EMPTY",
			defaultValue: "default-value",
			setEnv:       true,
			expected:     "default-value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			} else {
				require.NoError(t, os.Unsetenv(tt.key))
			}

			assert.Equal(t, tt.expected, getEnvOrDefault(tt.key, tt.defaultValue))
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
	assert.Equal(t, "", firstNonEmpty())
}

func TestResolveClientSecret(t *testing.T) {
	t.Parallel()

	value := "shh"
	got, err := resolveClientSecret(secrets.Source{Value: &value})
	require.NoError(t, err)
	assert.Equal(t, "shh", got)

	_, err = resolveClientSecret(secrets.Source{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve client secret")
}

func TestNewApplication(t *testing.T) {
	t.Parallel()

	cfg := loadTestConfig(t, testConfig)
	reg := prometheus.NewRegistry()

	app, err := newApplication(cfg, observability.NopLogger(), reg, reg)
	require.NoError(t, err)
	t.Cleanup(app.close)

	assert.Equal(t, 1, app.tenants.Len())
	assert.Empty(t, app.keys.Skipped())
	assert.Equal(t, 1, app.keys.Len())
	assert.NotNil(t, app.limiter)
	assert.Equal(t, "https://acme.sharepoint.com", app.probeHost())

	handler := app.server.Handler()

	t.Run("liveness is public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"environment":"test"`)
	})

	t.Run("api requires a key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/list", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/list", nil)
		req.Header.Set(config.DefaultAPIKeyHeader, "wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewApplication_DropsInlineSecrets(t *testing.T) {
	t.Parallel()

	cfg := loadTestConfig(t, testConfig)
	require.NotNil(t, cfg.Identity.ClientSecret.Value)
	require.NotNil(t, cfg.APIKeys[0].Secrets[0].Value)
	reg := prometheus.NewRegistry()

	app, err := newApplication(cfg, observability.NopLogger(), reg, reg)
	require.NoError(t, err)
	t.Cleanup(app.close)

	assert.Nil(t, app.config.Identity.ClientSecret.Value)
	for _, key := range app.config.APIKeys {
		for _, s := range key.Secrets {
			assert.Nil(t, s.Value, "key %s secret %s", key.ID, s.ID)
		}
	}

	// Keys were hashed before the values were dropped.
	assert.Equal(t, 1, app.keys.Len())
	assert.True(t, app.keys.Authenticate("acme-key").OK)
}

func TestNewApplication_GlobalHostWins(t *testing.T) {
	t.Parallel()

	cfg := loadTestConfig(t, testConfig)
	cfg.SharePoint.Host = "https://contoso.sharepoint.com"
	reg := prometheus.NewRegistry()

	app, err := newApplication(cfg, observability.NopLogger(), reg, reg)
	require.NoError(t, err)
	t.Cleanup(app.close)

	assert.Equal(t, "https://contoso.sharepoint.com", app.probeHost())
}

func TestNewApplication_MissingSecret(t *testing.T) {
	t.Parallel()

	cfg := loadTestConfig(t, testConfig)
	cfg.Identity.ClientSecret = secrets.Source{}

	_, err := newApplication(cfg, observability.NopLogger(), prometheus.NewRegistry(), prometheus.NewRegistry())
	require.Error(t, err)
}

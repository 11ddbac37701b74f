package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Empty(t, cfg.Upstream.GQLv2Token)
	assert.Empty(t, cfg.Upstream.GQLv3Token)
	assert.True(t, cfg.Upstream.SSLVerify)
	assert.Equal(t, 30*time.Second, cfg.Upstream.RequestTimeout)

	assert.Equal(t, 30*time.Second, cfg.Orchestrator.EnvelopeTimeout)

	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2000, cfg.Cache.LocalMaxSize)

	assert.Equal(t, 30, cfg.RateLimit.PerUserRPM)
	assert.Equal(t, 1, cfg.RateLimit.SearchOpPerSec)

	assert.Equal(t, 90, cfg.Metrics.RetentionDays)
	assert.Equal(t, 100, cfg.Metrics.MaxSizeMB)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.False(t, cfg.HasGQLv2())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

upstream:
  gql_v2_token: "tok-v2"
  gql_v3_token: "tok-v3"
  webhook_url: "https://relay.example.com/search"

cache:
  cache_ttl_s: 600s

rate_limit:
  per_user_rpm: 60

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "tok-v2", cfg.Upstream.GQLv2Token)
	assert.Equal(t, "tok-v3", cfg.Upstream.GQLv3Token)
	assert.Equal(t, "https://relay.example.com/search", cfg.Upstream.WebhookURL)
	assert.True(t, cfg.HasGQLv2())
	assert.True(t, cfg.HasGQLv3())
	assert.True(t, cfg.HasWebhook())

	assert.Equal(t, 600*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 60, cfg.RateLimit.PerUserRPM)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"SEARCH_SERVER_HTTP_PORT":       "7777",
		"SEARCH_UPSTREAM_GQL_V2_TOKEN":  "env-token",
		"SEARCH_RATE_LIMIT_PER_USER_RPM": "45",
		"SEARCH_LOG_LEVEL":              "warn",
	}
	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "env-token", cfg.Upstream.GQLv2Token)
	assert.Equal(t, 45, cfg.RateLimit.PerUserRPM)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
upstream:
  gql_v2_token: "yaml-token"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	os.Setenv("SEARCH_SERVER_HTTP_PORT", "9999")
	defer os.Unsetenv("SEARCH_SERVER_HTTP_PORT")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "yaml-token", cfg.Upstream.GQLv2Token)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	defer os.Unsetenv("MYAPP_SERVER_HTTP_PORT")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	os.Setenv("SEARCH_SERVER_HTTP_PORT", "80")
	defer os.Unsetenv("SEARCH_SERVER_HTTP_PORT")

	_, err := NewLoader().WithValidator(validator).Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}, wantErr: false},
		{name: "invalid HTTP port (negative)", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: true},
		{name: "invalid HTTP port (too large)", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: true},
		{name: "invalid per_user_rpm", modify: func(c *Config) { c.RateLimit.PerUserRPM = 0 }, wantErr: true},
		{name: "invalid request timeout", modify: func(c *Config) { c.Upstream.RequestTimeout = 0 }, wantErr: true},
		{name: "invalid envelope timeout", modify: func(c *Config) { c.Orchestrator.EnvelopeTimeout = 0 }, wantErr: true},
		{name: "invalid retention days", modify: func(c *Config) { c.Metrics.RetentionDays = 0 }, wantErr: true},
		{name: "invalid max size", modify: func(c *Config) { c.Metrics.MaxSizeMB = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpstreamGates(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.HasGQLv2())
	assert.False(t, cfg.HasGQLv3())
	assert.False(t, cfg.HasWebhook())
	assert.False(t, cfg.HasBilling())

	cfg.Upstream.GQLv2Token = "x"
	cfg.Upstream.GQLv3Token = "y"
	cfg.Upstream.WebhookURL = "https://example.com"
	cfg.Billing.URL = "https://billing.example.com"

	assert.True(t, cfg.HasGQLv2())
	assert.True(t, cfg.HasGQLv3())
	assert.True(t, cfg.HasWebhook())
	assert.True(t, cfg.HasBilling())
}

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8080\n"), 0644))

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: [yaml"), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("SEARCH_UPSTREAM_GQL_V2_TOKEN", "env-only-token")
	defer os.Unsetenv("SEARCH_UPSTREAM_GQL_V2_TOKEN")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-token", cfg.Upstream.GQLv2Token)
}

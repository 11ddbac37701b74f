package config

import "time"

// DefaultConfig returns the compiled-in baseline, overridden by an optional
// YAML file and then by environment variables.
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Upstream:    DefaultUpstreamConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Cache:       DefaultCacheConfig(),
		RateLimit:   DefaultRateLimitConfig(),
		Billing:     DefaultBillingConfig(),
		Metrics:     DefaultMetricsConfig(),
		Log:         DefaultLogConfig(),
	}
}

// DefaultServerConfig targets a local HTTP ingress with modest timeouts.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultUpstreamConfig leaves every token/URL empty: each upstream client
// is only constructed when its credential is present (spec.md §6).
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		GQLv2Token:       "",
		GQLv3Token:       "",
		WebhookURL:       "",
		RequestTimeout:   30 * time.Second,
		SSLVerify:        true,
	}
}

// DefaultOrchestratorConfig sets the total per-request budget to match the
// per-upstream timeout.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		EnvelopeTimeout: 30 * time.Second,
	}
}

// DefaultCacheConfig matches the two-tier cache's defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:           5 * time.Minute,
		LocalMaxSize:  2000,
		RedisAddr:     "",
		RedisPassword: "",
		RedisDB:       0,
	}
}

// DefaultRateLimitConfig matches spec.md §4.6's per-user window.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerUserRPM:       30,
		SearchOpPerSec:   1,
	}
}

// DefaultBillingConfig leaves the quota service URL empty (disabled /
// fail-open by default until configured).
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		URL:        "",
		FailClosed: false,
		Timeout:    5 * time.Second,
	}
}

// DefaultMetricsConfig matches spec.md §6's retention defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		DatabasePath:   "search_metrics.db",
		RetentionDays:  90,
		MaxSizeMB:      100,
		CleanupOnStart: false,
	}
}

// DefaultLogConfig returns the baseline Zap logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

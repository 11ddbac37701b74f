// Package config loads the search service's configuration from compiled-in
// defaults, an optional YAML file, and environment variables, in that
// precedence order (lowest to highest).
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SEARCH").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the search service.
type Config struct {
	Server       ServerConfig       `yaml:"server" env:"SERVER"`
	Upstream     UpstreamConfig     `yaml:"upstream" env:"UPSTREAM"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Cache        CacheConfig        `yaml:"cache" env:"CACHE"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" env:"RATE_LIMIT"`
	Billing      BillingConfig      `yaml:"billing" env:"BILLING"`
	Metrics      MetricsConfig      `yaml:"metrics" env:"METRICS"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP ingress (cmd/searchd).
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// UpstreamConfig holds the credentials and transport knobs for the four
// federated-search clients. A missing token/URL disables the corresponding
// client (spec.md §6): `gql_v2_token`, `gql_v3_token`, `webhook_url`.
type UpstreamConfig struct {
	GQLv2Token     string        `yaml:"gql_v2_token" env:"GQL_V2_TOKEN"`
	GQLv3Token     string        `yaml:"gql_v3_token" env:"GQL_V3_TOKEN"`
	WebhookURL     string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout_s" env:"REQUEST_TIMEOUT_S"`
	SSLVerify      bool          `yaml:"ssl_verify" env:"SSL_VERIFY"`
}

// OrchestratorConfig bounds the total per-request search budget.
type OrchestratorConfig struct {
	EnvelopeTimeout time.Duration `yaml:"orchestrator_envelope_s" env:"ORCHESTRATOR_ENVELOPE_S"`
}

// CacheConfig configures the two-tier search-result cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"cache_ttl_s" env:"CACHE_TTL_S"`
	LocalMaxSize  int           `yaml:"local_max_size" env:"LOCAL_MAX_SIZE"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
}

// RateLimitConfig configures the per-user sliding windows.
type RateLimitConfig struct {
	PerUserRPM     int `yaml:"per_user_rpm" env:"PER_USER_RPM"`
	SearchOpPerSec int `yaml:"search_op_per_sec" env:"SEARCH_OP_PER_SEC"`
}

// BillingConfig points at the external quota service.
type BillingConfig struct {
	URL        string        `yaml:"billing_url" env:"BILLING_URL"`
	FailClosed bool          `yaml:"fail_closed" env:"FAIL_CLOSED"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// MetricsConfig configures the append-only search_metrics store.
type MetricsConfig struct {
	DatabasePath   string `yaml:"database_path" env:"DATABASE_PATH"`
	RetentionDays  int    `yaml:"metrics_retention_days" env:"METRICS_RETENTION_DAYS"`
	MaxSizeMB      int    `yaml:"metrics_max_size_mb" env:"METRICS_MAX_SIZE_MB"`
	CleanupOnStart bool   `yaml:"cleanup_on_start" env:"CLEANUP_ON_START"`
}

// LogConfig configures the Zap logger.
type LogConfig struct {
	Level        string   `yaml:"level" env:"LEVEL"`
	Format       string   `yaml:"format" env:"FORMAT"`
	OutputPaths  []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// Loader builds a Config via the Builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader defaulting to the SEARCH_ env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SEARCH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets an optional YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers an additional validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load merges defaults, the YAML file (if any), and the environment, then
// runs validation.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(value); err == nil {
				field.SetInt(int64(d))
				return nil
			}
			// bare integers in a duration field are seconds (cache_ttl_s, request_timeout_s, ...)
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(int64(time.Duration(secs) * time.Second))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the config from path, panicking on failure. Intended for
// cmd/searchd's startup path where a bad config is unrecoverable.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads defaults overridden purely by environment variables.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate enforces the invariants spec.md §6 implies: a valid http_port
// (metrics_port is not checked), a positive per-user limit, and positive
// request timeout, envelope timeout, metrics retention and metrics size.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid http_port")
	}
	if c.RateLimit.PerUserRPM <= 0 {
		errs = append(errs, "per_user_rpm must be positive")
	}
	if c.Upstream.RequestTimeout <= 0 {
		errs = append(errs, "request_timeout_s must be positive")
	}
	if c.Orchestrator.EnvelopeTimeout <= 0 {
		errs = append(errs, "orchestrator_envelope_s must be positive")
	}
	if c.Metrics.RetentionDays <= 0 {
		errs = append(errs, "metrics_retention_days must be positive")
	}
	if c.Metrics.MaxSizeMB <= 0 {
		errs = append(errs, "metrics_max_size_mb must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HasGQLv2 reports whether the GQL v2 client should be constructed.
func (c *Config) HasGQLv2() bool { return c.Upstream.GQLv2Token != "" }

// HasGQLv3 reports whether the GQL v3 and REST v3 clients should be
// constructed (spec.md §6: one token gates both).
func (c *Config) HasGQLv3() bool { return c.Upstream.GQLv3Token != "" }

// HasWebhook reports whether the webhook relay client should be constructed.
func (c *Config) HasWebhook() bool { return c.Upstream.WebhookURL != "" }

// HasBilling reports whether the quota client should be wired in.
func (c *Config) HasBilling() bool { return c.Billing.URL != "" }

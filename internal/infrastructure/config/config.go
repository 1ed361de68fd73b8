// Package config loads the immutable configuration snapshot. Values
// come from config.toml with environment overrides; the snapshot is
// never mutated after Load, administrative reloads swap a new snapshot
// into Store atomically.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration snapshot.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Token     TokenConfig
	Cache     CacheConfig
	Tenant    TenantConfig
	Audit     AuditConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds primary data-store connection settings.
type DatabaseConfig struct {
	URL             string
	PoolSize        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	URL      string
	PoolSize int
}

// TokenConfig holds bearer-token settings.
type TokenConfig struct {
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	// Leeway tolerates clock skew between token issuer and verifier.
	Leeway time.Duration
	// MaxRefreshes caps rotation depth per login session; 0 disables
	// the cap.
	MaxRefreshes int
}

// CacheConfig holds cache-layer tuning.
type CacheConfig struct {
	// CompressionThresholdBytes: payloads larger than this are
	// compressed before storage.
	CompressionThresholdBytes int
	// CircuitCooldown disables the cache after repeated errors.
	CircuitCooldown time.Duration
	// TenantMemoryCeilingBytes is a soft per-tenant ceiling; oldest
	// keys under the tenant prefix are trimmed when exceeded.
	TenantMemoryCeilingBytes int64
}

// TenantConfig holds tenant-resolution settings.
type TenantConfig struct {
	// HostSuffix parses "{slug}.<suffix>" into a tenant slug.
	HostSuffix string
}

// AuditConfig holds audit-trail settings.
type AuditConfig struct {
	// SensitiveReads records flagged read-access events when true.
	SensitiveReads bool
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestDeadline time.Duration
	TrustedProxies  []string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables (reserved names like TOKEN_SIGNING_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Missing config file is fine, env vars and defaults apply.
	}

	bindReservedEnv(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			PoolSize:        v.GetInt("database.pool_size"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			URL:      v.GetString("redis.url"),
			PoolSize: v.GetInt("redis.pool_size"),
		},
		Token: TokenConfig{
			SigningKey:   v.GetString("token.signing_key"),
			AccessTTL:    v.GetDuration("token.access_ttl"),
			RefreshTTL:   v.GetDuration("token.refresh_ttl"),
			Issuer:       v.GetString("token.issuer"),
			Leeway:       v.GetDuration("token.leeway"),
			MaxRefreshes: v.GetInt("token.max_refreshes"),
		},
		Cache: CacheConfig{
			CompressionThresholdBytes: v.GetInt("cache.compression_threshold_bytes"),
			CircuitCooldown:           v.GetDuration("cache.circuit_cooldown"),
			TenantMemoryCeilingBytes:  v.GetInt64("cache.tenant_memory_ceiling_bytes"),
		},
		Tenant: TenantConfig{
			HostSuffix: v.GetString("tenant.host_suffix"),
		},
		Audit: AuditConfig{
			SensitiveReads: v.GetBool("audit.sensitive_reads"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			RequestDeadline: time.Duration(v.GetInt64("http.request_deadline_ms")) * time.Millisecond,
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindReservedEnv maps the reserved environment option set onto viper
// keys. These names are part of the deployment contract.
func bindReservedEnv(v *viper.Viper) {
	bindings := map[string]string{
		"token.signing_key":                 "TOKEN_SIGNING_KEY",
		"token.access_ttl":                  "TOKEN_ACCESS_TTL",
		"token.refresh_ttl":                 "TOKEN_REFRESH_TTL",
		"database.url":                      "DB_URL",
		"database.pool_size":                "DB_POOL_SIZE",
		"redis.url":                         "REDIS_URL",
		"redis.pool_size":                   "REDIS_POOL_SIZE",
		"cache.compression_threshold_bytes": "CACHE_COMPRESSION_THRESHOLD_BYTES",
		"cache.circuit_cooldown":            "CACHE_CIRCUIT_COOLDOWN_SECONDS",
		"tenant.host_suffix":                "TENANT_HOST_SUFFIX",
		"audit.sensitive_reads":             "AUDIT_SENSITIVE_READS",
		"http.request_deadline_ms":          "REQUEST_DEADLINE_MS",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "saasbooks"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.PoolSize == 0 {
		cfg.Database.PoolSize = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 10 * time.Minute
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Token.AccessTTL == 0 {
		cfg.Token.AccessTTL = 15 * time.Minute
	}
	if cfg.Token.RefreshTTL == 0 {
		cfg.Token.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = "saasbooks"
	}
	if cfg.Token.Leeway == 0 {
		cfg.Token.Leeway = 60 * time.Second
	}
	if cfg.Token.MaxRefreshes == 0 {
		cfg.Token.MaxRefreshes = 50
	}
	if cfg.Cache.CompressionThresholdBytes == 0 {
		cfg.Cache.CompressionThresholdBytes = 8192
	}
	if cfg.Cache.CircuitCooldown == 0 {
		cfg.Cache.CircuitCooldown = 30 * time.Second
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RequestDeadline == 0 {
		cfg.HTTP.RequestDeadline = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
}

// Validate checks required configuration. A failure here is a
// deployment error, not a runtime condition.
func (c *Config) Validate() error {
	if c.Token.SigningKey == "" {
		return fmt.Errorf("config: TOKEN_SIGNING_KEY is required")
	}
	if len(c.Token.SigningKey) < 32 && c.App.Env == "production" {
		return fmt.Errorf("config: TOKEN_SIGNING_KEY must be at least 32 bytes in production")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("config: DB_URL is required")
	}
	return nil
}

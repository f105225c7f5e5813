// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the pluggable components.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Canonical   CanonicalConfig   `mapstructure:"canonical"`
	Extract     ExtractConfig     `mapstructure:"extract"`
	Pool        PoolConfig        `mapstructure:"pool"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Blob        BlobConfig        `mapstructure:"blob"`
	Workspace   WorkspaceConfig   `mapstructure:"workspace"`
	Operator    OperatorConfig    `mapstructure:"operator"`
	Events      EventsConfig      `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CanonicalConfig controls the redirect probe.
type CanonicalConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// CommandConfig is one extraction program. {url} and {dir} in Args are
// substituted per job.
type CommandConfig struct {
	Binary string   `mapstructure:"binary"`
	Args   []string `mapstructure:"args"`
}

// ExtractConfig overrides the extraction programs per mode (video, audio,
// gallery). Modes left out keep the built-in commands.
type ExtractConfig struct {
	Timeout  time.Duration            `mapstructure:"timeout"`
	Commands map[string]CommandConfig `mapstructure:"commands"`
}

// PoolConfig sizes the extraction worker pool.
type PoolConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// RateLimitConfig paces extraction jobs per source host.
type RateLimitConfig struct {
	DefaultRPS   float64        `mapstructure:"default_rps"`
	DefaultBurst int            `mapstructure:"default_burst"`
	Hosts        []HostRateRule `mapstructure:"hosts"`
}

// HostRateRule overrides the default rate for one host. Hosts are a list
// rather than a map because viper splits map keys on dots.
type HostRateRule struct {
	Host string  `mapstructure:"host"`
	RPS  float64 `mapstructure:"rps"`
}

// HostRPS returns the overrides keyed by host.
func (c RateLimitConfig) HostRPS() map[string]float64 {
	out := make(map[string]float64, len(c.Hosts))
	for _, h := range c.Hosts {
		out[strings.ToLower(h.Host)] = h.RPS
	}
	return out
}

// CacheConfig selects and tunes the artifact cache backend.
type CacheConfig struct {
	Backend   string         `mapstructure:"backend"`
	Retention time.Duration  `mapstructure:"retention"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Redis     RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig controls the Postgres cache connection.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// RedisConfig selects the Redis endpoint for the cache.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PreferencesConfig chooses where the preference document lives.
type PreferencesConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
}

// BlobConfig chooses where delivered artifacts are uploaded.
type BlobConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// WorkspaceConfig controls scratch directories.
type WorkspaceConfig struct {
	BaseDir      string        `mapstructure:"base_dir"`
	CleanupGrace time.Duration `mapstructure:"cleanup_grace"`
}

// OperatorConfig names where unexpected failures are reported.
type OperatorConfig struct {
	ChatID string `mapstructure:"chat_id"`
}

// EventsConfig selects the delivery event publisher.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKLOADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("canonical.probe_timeout", "5s")
	v.SetDefault("canonical.user_agent", "Mozilla/5.0 (compatible; linkloader/0.1)")
	v.SetDefault("extract.timeout", "5m")
	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.queue_size", 64)
	v.SetDefault("pool.job_timeout", "10m")
	v.SetDefault("rate_limit.default_rps", 1.0)
	v.SetDefault("rate_limit.default_burst", 2)
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.retention", "72h")
	v.SetDefault("cache.postgres.table", "media_cache")
	v.SetDefault("cache.postgres.max_conns", 4)
	v.SetDefault("cache.postgres.min_conns", 0)
	v.SetDefault("cache.postgres.max_conn_lifetime", "30m")
	v.SetDefault("cache.postgres.ensure_schema", true)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.key_prefix", "linkloader:cache:")
	v.SetDefault("preferences.backend", BackendFile)
	v.SetDefault("preferences.path", "user_settings.json")
	v.SetDefault("preferences.gcs_object", "user_settings.json")
	v.SetDefault("blob.backend", BackendLocal)
	v.SetDefault("blob.local_dir", "artifacts")
	v.SetDefault("blob.prefix", "artifacts")
	v.SetDefault("workspace.base_dir", "downloads")
	v.SetDefault("workspace.cleanup_grace", "2s")
	v.SetDefault("operator.chat_id", "")
	v.SetDefault("events.backend", BackendMemory)
	v.SetDefault("events.topic_name", "delivery-events")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be > 0")
	}
	if c.Cache.Retention <= 0 {
		return fmt.Errorf("cache.retention must be > 0")
	}
	if c.Workspace.BaseDir == "" {
		return fmt.Errorf("workspace.base_dir is required")
	}
	if c.Workspace.CleanupGrace < 0 {
		return fmt.Errorf("workspace.cleanup_grace must be >= 0")
	}
	for mode := range c.Extract.Commands {
		switch mode {
		case "video", "audio", "gallery":
		default:
			return fmt.Errorf("extract.commands: unknown mode %q", mode)
		}
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}

	switch c.Preferences.Backend {
	case BackendFile:
		if c.Preferences.Path == "" {
			return fmt.Errorf("preferences.path is required for the file backend")
		}
	case BackendGCS:
		if c.Preferences.GCSBucket == "" || c.Preferences.GCSObject == "" {
			return fmt.Errorf("preferences.gcs_bucket and preferences.gcs_object are required for the gcs backend")
		}
	default:
		return fmt.Errorf("preferences.backend %q is not supported", c.Preferences.Backend)
	}

	switch c.Blob.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Blob.LocalDir == "" {
			return fmt.Errorf("blob.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("blob.backend %q is not supported", c.Blob.Backend)
	}

	switch c.Events.Backend {
	case BackendMemory:
	case BackendPubSub:
		if c.Events.ProjectID == "" || c.Events.TopicName == "" {
			return fmt.Errorf("events.project_id and events.topic_name are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("events.backend %q is not supported", c.Events.Backend)
	}
	return nil
}

// NeedsGCS reports whether any component is backed by Cloud Storage.
func (c Config) NeedsGCS() bool {
	return c.Blob.Backend == BackendGCS || c.Preferences.Backend == BackendGCS
}

// Package config loads server configuration from defaults, an optional YAML
// file and WARDEN_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "WARDEN"

const devSigningKey = "dev-signing-key-change-me-0123456789abcdef"

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	DeviceCookie    string        `mapstructure:"device_cookie"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	// Backend selects durable storage: "memory" or "postgres".
	Backend string `mapstructure:"backend"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Brokers         string        `mapstructure:"brokers"`
	AlertTopic      string        `mapstructure:"alert_topic"`
	Acks            string        `mapstructure:"acks"`
	Retries         int           `mapstructure:"retries"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type WebAuthnConfig struct {
	RPID             string        `mapstructure:"rp_id"`
	RPName           string        `mapstructure:"rp_name"`
	Origins          []string      `mapstructure:"origins"`
	ChallengeTTL     time.Duration `mapstructure:"challenge_ttl"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserVerification string        `mapstructure:"user_verification"`
}

type TokenConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   string        `mapstructure:"audience"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type SessionConfig struct {
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	NewDeviceWindow time.Duration `mapstructure:"new_device_window"`
	TravelWindow    time.Duration `mapstructure:"travel_window"`
}

type RateLimitConfig struct {
	// Backend selects counter storage: "memory", "postgres" or "redis".
	Backend string        `mapstructure:"backend"`
	Max     int           `mapstructure:"max"`
	Window  time.Duration `mapstructure:"window"`
}

type ImpersonationConfig struct {
	ContextTTL time.Duration `mapstructure:"context_ttl"`
}

type MFAConfig struct {
	Issuer            string `mapstructure:"issuer"`
	RecoveryCodeCount int    `mapstructure:"recovery_code_count"`
}

type WorkersConfig struct {
	ReaperInterval           time.Duration `mapstructure:"reaper_interval"`
	RateLimitCleanupInterval time.Duration `mapstructure:"ratelimit_cleanup_interval"`
	AnomalySweepSchedule     string        `mapstructure:"anomaly_sweep_schedule"`
	AnomalySweepLookback     time.Duration `mapstructure:"anomaly_sweep_lookback"`
}

type SeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the root configuration tree.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	WebAuthn      WebAuthnConfig      `mapstructure:"webauthn"`
	Tokens        TokenConfig         `mapstructure:"tokens"`
	Session       SessionConfig       `mapstructure:"session"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Impersonation ImpersonationConfig `mapstructure:"impersonation"`
	MFA           MFAConfig           `mapstructure:"mfa"`
	Workers       WorkersConfig       `mapstructure:"workers"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.device_cookie", "__Host-warden-device")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("storage.backend", "memory")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.alert_topic", "warden.security-alerts")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.retries", 3)
	v.SetDefault("kafka.delivery_timeout", 30*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("webauthn.rp_id", "localhost")
	v.SetDefault("webauthn.rp_name", "Warden")
	v.SetDefault("webauthn.origins", []string{"http://localhost:8080"})
	v.SetDefault("webauthn.challenge_ttl", 5*time.Minute)
	v.SetDefault("webauthn.timeout", 60*time.Second)
	v.SetDefault("webauthn.user_verification", "preferred")

	v.SetDefault("tokens.signing_key", "")
	v.SetDefault("tokens.issuer", "warden")
	v.SetDefault("tokens.audience", "warden")
	v.SetDefault("tokens.access_ttl", 15*time.Minute)
	v.SetDefault("tokens.refresh_ttl", 30*24*time.Hour)

	v.SetDefault("session.stale_after", 30*24*time.Hour)
	v.SetDefault("session.max_concurrent", 5)
	v.SetDefault("session.new_device_window", 24*time.Hour)
	v.SetDefault("session.travel_window", time.Hour)

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.max", 10)
	v.SetDefault("ratelimit.window", 15*time.Minute)

	v.SetDefault("impersonation.context_ttl", 8*time.Hour)

	v.SetDefault("mfa.issuer", "Warden")
	v.SetDefault("mfa.recovery_code_count", 10)

	v.SetDefault("workers.reaper_interval", time.Minute)
	v.SetDefault("workers.ratelimit_cleanup_interval", 5*time.Minute)
	v.SetDefault("workers.anomaly_sweep_schedule", "*/5 * * * *")
	v.SetDefault("workers.anomaly_sweep_lookback", time.Hour)

	v.SetDefault("seed.enabled", false)
}

// Load reads configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsDev reports whether dev-only conveniences (seeding, default keys) apply.
func (c *Config) IsDev() bool {
	return c.Server.Environment == "dev" || c.Server.Environment == "test"
}

// Sanitize fills dev-only values and rejects unusable combinations.
func (c *Config) Sanitize() error {
	if c.Tokens.SigningKey == "" {
		if !c.IsDev() {
			return errors.New("tokens.signing_key is required outside dev")
		}
		c.Tokens.SigningKey = devSigningKey
	}
	if len(c.Tokens.SigningKey) < 32 {
		return errors.New("tokens.signing_key must be at least 32 bytes")
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for postgres rate limiting")
		}
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for redis rate limiting")
		}
	default:
		return fmt.Errorf("unknown ratelimit.backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("ratelimit.max and ratelimit.window must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be within [0, 1]")
	}
	if c.WebAuthn.ChallengeTTL <= 0 {
		return errors.New("webauthn.challenge_ttl must be positive")
	}
	if len(c.WebAuthn.Origins) == 0 {
		return errors.New("webauthn.origins must list at least one origin")
	}
	return nil
}

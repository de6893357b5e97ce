// Package config defines the top-level configuration for the settlement
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SETTLED_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Oracle    OracleConfig    `toml:"oracle"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Engine    EngineConfig    `toml:"engine"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for settlement
// archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig identifies this engine deployment for attestation purposes and
// holds the local attestation signing key, if this deployment also acts as an
// oracle authority.
type OracleConfig struct {
	// EngineID is the deployment identity bound into every attestation
	// message. Attestations produced for a different engine never verify here.
	EngineID string `toml:"engine_id"`

	// SigningKey is a hex-encoded secp256k1 private key. Prefer
	// EncryptedKeyPath in production.
	SigningKey       string `toml:"signing_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PriceFeedConfig holds the websocket price feed endpoint and subscriptions.
type PriceFeedConfig struct {
	WsURL string   `toml:"ws_url"`
	Feeds []string `toml:"feeds"`
}

// EngineConfig holds settlement timing parameters.
type EngineConfig struct {
	// PriceStaleness bounds how old a reading may be relative to a market's
	// end time and still decide it.
	PriceStaleness duration `toml:"price_staleness"`

	// PriceHorizon is the outer window after a market's end time during which
	// a usable price may still arrive; past it the market settles void.
	PriceHorizon duration `toml:"price_horizon"`

	// ResolveInterval is the resolver daemon's tick.
	ResolveInterval duration `toml:"resolve_interval"`

	// ResolveBatch caps how many due markets one tick works through.
	ResolveBatch int `toml:"resolve_batch"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	WebhookURL     string   `toml:"webhook_url"`
	WebhookSecret  string   `toml:"webhook_secret"`
	Events         []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "settled",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settled-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			EngineID: "settled-dev",
		},
		PriceFeed: PriceFeedConfig{
			WsURL: "",
			Feeds: []string{},
		},
		Engine: EngineConfig{
			PriceStaleness:  duration{5 * time.Minute},
			PriceHorizon:    duration{24 * time.Hour},
			ResolveInterval: duration{30 * time.Second},
			ResolveBatch:    20,
		},
		Notify: NotifyConfig{
			Events: []string{"market_settled", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"mirror": true,
	"feed":   true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, mirror, feed, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Oracle
	if c.Oracle.EngineID == "" {
		errs = append(errs, "oracle: engine_id must not be empty")
	}
	if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
		errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
	}

	// PriceFeed is required when the feed loop runs.
	needsFeed := c.Mode == "feed" || c.Mode == "full"
	if needsFeed && c.PriceFeed.WsURL == "" {
		errs = append(errs, "pricefeed: ws_url must not be empty for mode "+c.Mode)
	}

	// Engine
	if c.Engine.PriceStaleness.Duration <= 0 {
		errs = append(errs, "engine: price_staleness must be > 0")
	}
	if c.Engine.PriceHorizon.Duration <= c.Engine.PriceStaleness.Duration {
		errs = append(errs, "engine: price_horizon must exceed price_staleness")
	}
	if c.Engine.ResolveInterval.Duration <= 0 {
		errs = append(errs, "engine: resolve_interval must be > 0")
	}
	if c.Engine.ResolveBatch < 1 {
		errs = append(errs, "engine: resolve_batch must be >= 1")
	}

	// Notify: both webhook fields must be set together, or both empty.
	wu := c.Notify.WebhookURL != ""
	ws := c.Notify.WebhookSecret != ""
	if wu != ws {
		errs = append(errs, "notify: webhook_url and webhook_secret must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

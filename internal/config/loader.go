package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SETTLED_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SETTLED_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SETTLED_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SETTLED_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SETTLED_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SETTLED_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SETTLED_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SETTLED_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SETTLED_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SETTLED_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SETTLED_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SETTLED_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SETTLED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETTLED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETTLED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SETTLED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SETTLED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SETTLED_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SETTLED_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SETTLED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLED_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETTLED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLED_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SETTLED_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SETTLED_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.EngineID, "SETTLED_ORACLE_ENGINE_ID")
	setStr(&cfg.Oracle.SigningKey, "SETTLED_ORACLE_SIGNING_KEY")
	setStr(&cfg.Oracle.EncryptedKeyPath, "SETTLED_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "SETTLED_ORACLE_KEY_PASSWORD")

	// ── PriceFeed ──
	setStr(&cfg.PriceFeed.WsURL, "SETTLED_PRICEFEED_WS_URL")
	setStringSlice(&cfg.PriceFeed.Feeds, "SETTLED_PRICEFEED_FEEDS")

	// ── Engine ──
	setDuration(&cfg.Engine.PriceStaleness, "SETTLED_ENGINE_PRICE_STALENESS")
	setDuration(&cfg.Engine.PriceHorizon, "SETTLED_ENGINE_PRICE_HORIZON")
	setDuration(&cfg.Engine.ResolveInterval, "SETTLED_ENGINE_RESOLVE_INTERVAL")
	setInt(&cfg.Engine.ResolveBatch, "SETTLED_ENGINE_RESOLVE_BATCH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SETTLED_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SETTLED_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.WebhookURL, "SETTLED_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "SETTLED_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "SETTLED_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SETTLED_MODE")
	setStr(&cfg.LogLevel, "SETTLED_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

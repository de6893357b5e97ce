package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	// Full mode requires a feed endpoint, which has no sensible default.
	cfg.PriceFeed.WsURL = "wss://feed.example.com/ws"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "settled", cfg.Postgres.Database)
	assert.Equal(t, 5*time.Minute, cfg.Engine.PriceStaleness.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Engine.PriceHorizon.Duration)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "turbo" },
			wantMsg: "unknown mode",
		},
		{
			name:    "missing engine id",
			mutate:  func(c *Config) { c.Oracle.EngineID = "" },
			wantMsg: "engine_id must not be empty",
		},
		{
			name: "horizon inside staleness window",
			mutate: func(c *Config) {
				c.Engine.PriceStaleness = duration{time.Hour}
				c.Engine.PriceHorizon = duration{time.Minute}
			},
			wantMsg: "price_horizon must exceed price_staleness",
		},
		{
			name:    "webhook url without secret",
			mutate:  func(c *Config) { c.Notify.WebhookURL = "https://hooks.example.com" },
			wantMsg: "webhook_url and webhook_secret must be set together",
		},
		{
			name:    "feed mode without ws url",
			mutate:  func(c *Config) { c.Mode = "feed"; c.PriceFeed.WsURL = "" },
			wantMsg: "ws_url must not be empty",
		},
		{
			name: "s3 enabled without bucket",
			mutate: func(c *Config) {
				c.S3.Enabled = true
				c.S3.Bucket = ""
			},
			wantMsg: "s3: bucket must not be empty",
		},
		{
			name:    "encrypted key path without password",
			mutate:  func(c *Config) { c.Oracle.EncryptedKeyPath = "/etc/settled/key.json" },
			wantMsg: "key_password is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.PriceFeed.WsURL = "wss://feed.example.com/ws"
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "engine"
log_level = "debug"

[postgres]
host = "db.internal"
database = "markets"

[engine]
price_staleness = "2m"
resolve_batch = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "markets", cfg.Postgres.Database)
	assert.Equal(t, 2*time.Minute, cfg.Engine.PriceStaleness.Duration)
	assert.Equal(t, 5, cfg.Engine.ResolveBatch)

	// Untouched fields keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 24*time.Hour, cfg.Engine.PriceHorizon.Duration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SETTLED_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("SETTLED_REDIS_DB", "3")
	t.Setenv("SETTLED_S3_ENABLED", "true")
	t.Setenv("SETTLED_ENGINE_PRICE_HORIZON", "48h")
	t.Setenv("SETTLED_PRICEFEED_FEEDS", "eth-usd, btc-usd")
	t.Setenv("SETTLED_MODE", "mirror")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Engine.PriceHorizon.Duration)
	assert.Equal(t, []string{"eth-usd", "btc-usd"}, cfg.PriceFeed.Feeds)
	assert.Equal(t, "mirror", cfg.Mode)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pgpass"
	cfg.Redis.Password = "redispass"
	cfg.Oracle.SigningKey = "deadbeef"
	cfg.Notify.WebhookSecret = "shh"

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.Oracle.SigningKey)
	assert.Equal(t, "***", out.Notify.WebhookSecret)

	// Original is untouched.
	assert.Equal(t, "pgpass", cfg.Postgres.Password)

	// Empty fields stay empty rather than showing a placeholder.
	assert.Empty(t, out.S3.AccessKey)
}

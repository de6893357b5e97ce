// Command settled is the entry point for the parimutuel settlement engine. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/parimutuel/internal/app"
	"github.com/alanyoungcy/parimutuel/internal/config"
	"github.com/alanyoungcy/parimutuel/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKeyPath := flag.String("encrypt-key", "", "encrypt the configured oracle signing key to this path and exit")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Key-encryption utility mode: write the encrypted key file and exit.
	if *encryptKeyPath != "" {
		if err := encryptOracleKey(cfg, *encryptKeyPath); err != nil {
			logger.Error("encrypt key failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("oracle key encrypted", slog.String("path", *encryptKeyPath))
		return
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("settlement engine starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("settlement engine stopped")
}

// encryptOracleKey encrypts oracle.signing_key with oracle.key_password and
// writes the JSON blob to path with owner-only permissions.
func encryptOracleKey(cfg *config.Config, path string) error {
	if cfg.Oracle.SigningKey == "" {
		return fmt.Errorf("oracle.signing_key must be set (or SETTLED_ORACLE_SIGNING_KEY)")
	}
	if cfg.Oracle.KeyPassword == "" {
		return fmt.Errorf("oracle.key_password must be set (or SETTLED_ORACLE_KEY_PASSWORD)")
	}

	blob, err := crypto.EncryptKey(cfg.Oracle.SigningKey, cfg.Oracle.KeyPassword)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}

package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/parimutuel/internal/blob/s3"
	"github.com/alanyoungcy/parimutuel/internal/cache/redis"
	"github.com/alanyoungcy/parimutuel/internal/config"
	"github.com/alanyoungcy/parimutuel/internal/crypto"
	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/notify"
	"github.com/alanyoungcy/parimutuel/internal/oracle"
	"github.com/alanyoungcy/parimutuel/internal/pricefeed"
	"github.com/alanyoungcy/parimutuel/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence
	UoW    domain.UnitOfWork
	Views  domain.MarketViewStore
	Events domain.EventStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Resolution
	PriceSource domain.PriceSource
	Verifier    *oracle.AttestationVerifier
	Resolver    oracle.PriceResolver

	// Oracle authority signing key, present only when this deployment also
	// produces attestations.
	Signer *crypto.AttestationSigner

	// Blob storage (optional)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "engine", "mirror", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.UoW = postgres.NewUnitOfWork(pool)
		deps.Views = postgres.NewMarketViewStore(pool)
		deps.Events = postgres.NewEventStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.PriceSource = pricefeed.NewCachedSource(deps.PriceCache)

	// --- Resolution components ---
	deps.Verifier = oracle.NewAttestationVerifier(cfg.Oracle.EngineID)
	deps.Resolver = oracle.NewPriceResolver(
		cfg.Engine.PriceStaleness.Duration,
		cfg.Engine.PriceHorizon.Duration,
	)

	// --- Oracle authority signer (optional) ---
	if cfg.Oracle.SigningKey != "" || cfg.Oracle.EncryptedKeyPath != "" {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Oracle.SigningKey,
			EncryptedKeyPath: cfg.Oracle.EncryptedKeyPath,
			KeyPassword:      cfg.Oracle.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle key: %w", err)
		}
		signer, err := crypto.NewAttestationSigner(keyHex)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle signer: %w", err)
		}
		deps.Signer = signer
		logger.Info("oracle authority signer loaded",
			slog.String("public_key", signer.PublicKeyHex()),
		)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewSettlementArchiver(writer, deps.Events)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(
			cfg.Notify.WebhookURL,
			cfg.Notify.WebhookSecret,
		))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/parimutuel/internal/mirror"
	"github.com/alanyoungcy/parimutuel/internal/pricefeed"
	"github.com/alanyoungcy/parimutuel/internal/service"
)

// buildServices constructs the operation surface over wired dependencies.
func buildServices(deps *Dependencies, logger *slog.Logger) *Services {
	return &Services{
		Markets: service.NewMarketService(deps.UoW, deps.MarketCache, deps.SignalBus, logger),
		Resolution: service.NewResolutionService(
			deps.UoW,
			deps.MarketCache,
			deps.SignalBus,
			deps.LockManager,
			deps.PriceSource,
			deps.Verifier,
			deps.Resolver,
			deps.Archiver,
			deps.Notifier,
			logger,
		),
		Claims: service.NewClaimService(deps.UoW, deps.SignalBus, logger),
	}
}

// EngineMode runs the resolver daemon: a periodic tick that resolves every
// due deterministic market from its price feed.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")
	return a.runResolveLoop(ctx)
}

// MirrorMode runs only the read-model mirror.
func (a *App) MirrorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mirror mode")
	return a.newMirror(deps).Run(ctx)
}

// FeedMode runs only the price feeder.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")
	return a.newFeeder(deps).Run(ctx)
}

// FullMode runs the resolver daemon, the read-model mirror, and the price
// feeder together. If any goroutine fails with a non-context error, the
// errgroup cancels the shared context and FullMode returns that error.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.runResolveLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("resolver: %w", err)
	})

	g.Go(func() error {
		err := a.newMirror(deps).Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("mirror: %w", err)
	})

	if a.cfg.PriceFeed.WsURL != "" {
		g.Go(func() error {
			err := a.newFeeder(deps).Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("price feeder: %w", err)
		})
	}

	return g.Wait()
}

// runResolveLoop ticks the resolution service until the context is cancelled.
func (a *App) runResolveLoop(ctx context.Context) error {
	interval := a.cfg.Engine.ResolveInterval.Duration
	batch := a.cfg.Engine.ResolveBatch

	a.logger.InfoContext(ctx, "resolver loop starting",
		slog.Duration("interval", interval),
		slog.Int("batch", batch),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("resolver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.svc.Resolution.ResolveDue(ctx, batch); err != nil {
				a.logger.ErrorContext(ctx, "resolve tick failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (a *App) newMirror(deps *Dependencies) *mirror.Mirror {
	return mirror.New(
		deps.SignalBus,
		deps.UoW,
		deps.Views,
		service.EventStream,
		mirrorConsumerName(),
		a.logger,
	)
}

func (a *App) newFeeder(deps *Dependencies) *pricefeed.Feeder {
	client := pricefeed.NewWSClient(a.cfg.PriceFeed.WsURL)
	return pricefeed.NewFeeder(client, deps.PriceCache, a.cfg.PriceFeed.Feeds, a.logger)
}

// mirrorConsumerName derives a stable per-host consumer name so redeliveries
// after a crash land on the restarted process.
func mirrorConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "mirror-1"
	}
	return "mirror-" + host
}

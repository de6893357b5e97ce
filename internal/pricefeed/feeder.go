package pricefeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Feeder connects the websocket client to the price cache: every reading
// received on a subscribed feed overwrites that feed's cached latest reading.
type Feeder struct {
	client *WSClient
	cache  domain.PriceCache
	feeds  []string
	logger *slog.Logger
}

// NewFeeder creates a Feeder for the given feed IDs.
func NewFeeder(client *WSClient, cache domain.PriceCache, feeds []string, logger *slog.Logger) *Feeder {
	return &Feeder{
		client: client,
		cache:  cache,
		feeds:  feeds,
		logger: logger.With(slog.String("component", "price_feeder")),
	}
}

// Run connects, subscribes, and blocks until the context is cancelled. The
// websocket client handles reconnection internally; Run only returns when the
// caller shuts down.
func (f *Feeder) Run(ctx context.Context) error {
	f.client.OnReading(func(r domain.PriceReading) {
		if err := f.cache.SetReading(ctx, r); err != nil {
			f.logger.Warn("price_feeder: cache write failed",
				slog.String("feed_id", r.FeedID),
				slog.String("error", err.Error()),
			)
		}
	})

	if err := f.client.Connect(ctx); err != nil {
		return fmt.Errorf("pricefeed: feeder connect: %w", err)
	}
	if err := f.client.Subscribe(ctx, f.feeds); err != nil {
		return fmt.Errorf("pricefeed: feeder subscribe: %w", err)
	}

	f.logger.Info("price_feeder: started", slog.Int("feeds", len(f.feeds)))
	defer f.logger.Info("price_feeder: stopped")

	<-ctx.Done()
	_ = f.client.Close()
	return ctx.Err()
}

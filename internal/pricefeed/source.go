package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// CachedSource implements domain.PriceSource on top of the price cache the
// feeder maintains. The resolver never talks to the feed endpoint directly.
type CachedSource struct {
	cache domain.PriceCache
}

// NewCachedSource creates a CachedSource over the given cache.
func NewCachedSource(cache domain.PriceCache) *CachedSource {
	return &CachedSource{cache: cache}
}

// Latest returns the newest cached reading for a feed, rejecting readings
// older than maxAge with domain.ErrStalePrice.
func (s *CachedSource) Latest(ctx context.Context, feedID string, maxAge time.Duration) (domain.PriceReading, error) {
	r, err := s.cache.GetReading(ctx, feedID)
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("pricefeed: latest %s: %w", feedID, err)
	}
	if maxAge > 0 && time.Since(r.Timestamp) > maxAge {
		return domain.PriceReading{}, fmt.Errorf("pricefeed: reading for %s from %s: %w",
			feedID, r.Timestamp.Format(time.RFC3339), domain.ErrStalePrice)
	}
	return r, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*CachedSource)(nil)

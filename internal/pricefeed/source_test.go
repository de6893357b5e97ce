package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

type stubPriceCache struct {
	readings map[string]domain.PriceReading
}

func (s *stubPriceCache) SetReading(_ context.Context, r domain.PriceReading) error {
	if s.readings == nil {
		s.readings = map[string]domain.PriceReading{}
	}
	s.readings[r.FeedID] = r
	return nil
}

func (s *stubPriceCache) GetReading(_ context.Context, feedID string) (domain.PriceReading, error) {
	r, ok := s.readings[feedID]
	if !ok {
		return domain.PriceReading{}, domain.ErrNotFound
	}
	return r, nil
}

func TestCachedSourceLatest(t *testing.T) {
	cache := &stubPriceCache{}
	require.NoError(t, cache.SetReading(context.Background(), domain.PriceReading{
		FeedID:    "eth-usd",
		Price:     3200_000000,
		Expo:      -6,
		Timestamp: time.Now().Add(-time.Minute),
	}))

	src := NewCachedSource(cache)

	r, err := src.Latest(context.Background(), "eth-usd", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3200_000000), r.Price)
	assert.Equal(t, int32(-6), r.Expo)
}

func TestCachedSourceStale(t *testing.T) {
	cache := &stubPriceCache{}
	require.NoError(t, cache.SetReading(context.Background(), domain.PriceReading{
		FeedID:    "eth-usd",
		Price:     3200_000000,
		Timestamp: time.Now().Add(-time.Hour),
	}))

	src := NewCachedSource(cache)

	_, err := src.Latest(context.Background(), "eth-usd", 5*time.Minute)
	assert.ErrorIs(t, err, domain.ErrStalePrice)

	// maxAge of zero disables the staleness check.
	_, err = src.Latest(context.Background(), "eth-usd", 0)
	assert.NoError(t, err)
}

func TestCachedSourceMissingFeed(t *testing.T) {
	src := NewCachedSource(&stubPriceCache{})

	_, err := src.Latest(context.Background(), "no-such-feed", time.Minute)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

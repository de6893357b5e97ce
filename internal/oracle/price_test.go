package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

var priceEnd = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func thresholdMarket(cmp domain.Comparator, lo, hi uint64) *domain.Market {
	return &domain.Market{
		ID: "mkt-det",
		Resolution: domain.Resolution{
			Mode:       domain.ResolutionDeterministic,
			FeedID:     "eth-usd",
			Comparator: cmp,
			BoundLo:    lo,
			BoundHi:    hi,
		},
		Outcomes: []domain.Outcome{{Name: "Yes"}, {Name: "No"}},
		EndTime:  priceEnd,
		Status:   domain.MarketStatusOpen,
	}
}

func reading(price int64, at time.Time) domain.PriceReading {
	return domain.PriceReading{FeedID: "eth-usd", Price: price, Expo: -6, Timestamp: at}
}

func TestDecideThreshold(t *testing.T) {
	r := NewPriceResolver(0, 0)
	now := priceEnd.Add(time.Minute)

	tests := []struct {
		name   string
		cmp    domain.Comparator
		lo, hi uint64
		price  int64
		want   int
	}{
		{name: "gt above bound", cmp: domain.ComparatorGT, lo: 100_000000, price: 100_500000, want: OutcomeYes},
		{name: "gt below bound", cmp: domain.ComparatorGT, lo: 100_000000, price: 99_999999, want: OutcomeNo},
		{name: "gt exactly at bound", cmp: domain.ComparatorGT, lo: 100_000000, price: 100_000000, want: OutcomeNo},
		{name: "gte at bound", cmp: domain.ComparatorGTE, lo: 100_000000, price: 100_000000, want: OutcomeYes},
		{name: "lt below", cmp: domain.ComparatorLT, lo: 100_000000, price: 99_000000, want: OutcomeYes},
		{name: "lte at bound", cmp: domain.ComparatorLTE, lo: 100_000000, price: 100_000000, want: OutcomeYes},
		{name: "range inside", cmp: domain.ComparatorRange, lo: 90_000000, hi: 110_000000, price: 100_000000, want: OutcomeYes},
		{name: "range outside", cmp: domain.ComparatorRange, lo: 90_000000, hi: 110_000000, price: 120_000000, want: OutcomeNo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := thresholdMarket(tt.cmp, tt.lo, tt.hi)
			w, price, err := r.Decide(m, reading(tt.price, priceEnd), now)
			require.NoError(t, err)
			assert.Equal(t, domain.WinnersSingle, w.Kind)
			assert.Equal(t, tt.want, w.Single)
			assert.Equal(t, uint64(tt.price), price)
		})
	}
}

func TestDecideStaleReading(t *testing.T) {
	r := NewPriceResolver(5*time.Minute, 0)
	m := thresholdMarket(domain.ComparatorGT, 100_000000, 0)

	// Reading taken 10 minutes before end exceeds the staleness window.
	_, _, err := r.Decide(m, reading(100_500000, priceEnd.Add(-10*time.Minute)), priceEnd.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrStalePrice)

	// Within the window is fine.
	_, _, err = r.Decide(m, reading(100_500000, priceEnd.Add(-time.Minute)), priceEnd.Add(time.Minute))
	assert.NoError(t, err)
}

func TestDecideGuards(t *testing.T) {
	r := NewPriceResolver(0, 0)
	m := thresholdMarket(domain.ComparatorGT, 100_000000, 0)

	_, _, err := r.Decide(m, reading(1, priceEnd), priceEnd.Add(-time.Minute))
	assert.ErrorIs(t, err, domain.ErrTooEarly)

	wrong := reading(1, priceEnd)
	wrong.FeedID = "btc-usd"
	_, _, err = r.Decide(m, wrong, priceEnd.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrInvalidPriceFeed)
}

func TestPastHorizon(t *testing.T) {
	r := NewPriceResolver(time.Minute, 2*time.Hour)
	m := thresholdMarket(domain.ComparatorGT, 1, 0)

	assert.False(t, r.PastHorizon(m, priceEnd.Add(time.Hour)))
	assert.True(t, r.PastHorizon(m, priceEnd.Add(3*time.Hour)))
}

package domain

import (
	"context"
	"time"
)

// PriceScale is the fixed-point scale for normalized prices: 1e6 base units
// per whole unit (100_000000 == $100.00).
const PriceScale = 1_000_000

// PriceReading is a single observation from a price source.
type PriceReading struct {
	FeedID    string
	Price     int64 // raw mantissa from the source
	Expo      int32 // decimal exponent: value = Price * 10^Expo
	Timestamp time.Time
}

// PriceSource provides price readings for a feed, rejecting readings older
// than the caller-specified staleness bound.
type PriceSource interface {
	Latest(ctx context.Context, feedID string, maxAge time.Duration) (PriceReading, error)
}

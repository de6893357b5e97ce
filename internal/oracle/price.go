// Package oracle implements the two resolution paths of the settlement
// engine: the deterministic price-comparator resolver and the signed
// attestation verifier.
package oracle

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/fixmath"
)

// Outcome slot convention for deterministic markets: slot 0 wins when the
// configured condition holds, slot 1 otherwise.
const (
	OutcomeYes = 0
	OutcomeNo  = 1
)

// Default time bounds for the deterministic path.
const (
	// DefaultStaleness is how far before the market end time a price reading
	// may have been taken and still decide the market.
	DefaultStaleness = 5 * time.Minute
	// DefaultHorizon is the outer window after market end within which a
	// usable price must be obtained; past it the market settles void.
	DefaultHorizon = 24 * time.Hour
)

// PriceResolver decides deterministic markets from a single price reading.
type PriceResolver struct {
	Staleness time.Duration
	Horizon   time.Duration
}

// NewPriceResolver returns a resolver with the given windows, falling back
// to defaults for zero values.
func NewPriceResolver(staleness, horizon time.Duration) PriceResolver {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return PriceResolver{Staleness: staleness, Horizon: horizon}
}

// PastHorizon reports whether the outer resolution window has elapsed, in
// which case the market settles void instead of resolving on price.
func (r PriceResolver) PastHorizon(m *domain.Market, now time.Time) bool {
	return now.After(m.EndTime.Add(r.Horizon))
}

// Decide returns the winning outcome for a deterministic market given a
// price reading, along with the normalized price that decided it.
//
// This path always yields exactly one winner between exactly two outcomes.
func (r PriceResolver) Decide(m *domain.Market, reading domain.PriceReading, now time.Time) (domain.Winners, uint64, error) {
	res := m.Resolution
	if res.Mode != domain.ResolutionDeterministic {
		return domain.Winners{}, 0, fmt.Errorf("oracle: market %s is not deterministic: %w", m.ID, domain.ErrInvalidPriceFeed)
	}
	if m.OutcomeCount() != 2 {
		return domain.Winners{}, 0, fmt.Errorf("oracle: deterministic market %s has %d outcomes: %w", m.ID, m.OutcomeCount(), domain.ErrBadConfiguration)
	}
	if reading.FeedID != res.FeedID {
		return domain.Winners{}, 0, fmt.Errorf("oracle: reading for feed %q, market wants %q: %w", reading.FeedID, res.FeedID, domain.ErrInvalidPriceFeed)
	}
	if now.Before(m.EndTime) {
		return domain.Winners{}, 0, fmt.Errorf("oracle: market %s ends at %s: %w", m.ID, m.EndTime, domain.ErrTooEarly)
	}

	// The reading must be no older than the staleness window relative to the
	// market end time.
	if reading.Timestamp.Before(m.EndTime.Add(-r.Staleness)) {
		return domain.Winners{}, 0, fmt.Errorf("oracle: reading at %s predates window for end %s: %w",
			reading.Timestamp, m.EndTime, domain.ErrStalePrice)
	}

	price, err := fixmath.NormalizePrice(reading.Price, reading.Expo)
	if err != nil {
		return domain.Winners{}, 0, err
	}

	yes, err := compare(res.Comparator, price, res.BoundLo, res.BoundHi)
	if err != nil {
		return domain.Winners{}, 0, err
	}

	winner := OutcomeNo
	if yes {
		winner = OutcomeYes
	}
	return domain.Winners{Kind: domain.WinnersSingle, Single: winner}, price, nil
}

func compare(cmp domain.Comparator, price, lo, hi uint64) (bool, error) {
	switch cmp {
	case domain.ComparatorGT:
		return price > lo, nil
	case domain.ComparatorLT:
		return price < lo, nil
	case domain.ComparatorGTE:
		return price >= lo, nil
	case domain.ComparatorLTE:
		return price <= lo, nil
	case domain.ComparatorRange:
		return lo <= price && price <= hi, nil
	default:
		return false, fmt.Errorf("oracle: unknown comparator %q: %w", cmp, domain.ErrBadConfiguration)
	}
}

package domain

import "time"

// Position records a single user's stake in a market, one row per
// user x market. Stakes is indexed by outcome slot and only ever grows;
// a claim pays out of custody without reducing the recorded stake.
type Position struct {
	ID       string
	MarketID string
	User     string
	Stakes   []uint64

	// Claimed flips false -> true exactly once, atomically with the payout
	// transfer. A position is logically dead once claimed.
	Claimed   bool
	ClaimedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StakeOn returns the user's stake on outcome idx, zero if out of range.
func (p *Position) StakeOn(idx int) uint64 {
	if idx < 0 || idx >= len(p.Stakes) {
		return 0
	}
	return p.Stakes[idx]
}

// HasStake reports whether the position holds any stake at all.
func (p *Position) HasStake() bool {
	for _, s := range p.Stakes {
		if s > 0 {
			return true
		}
	}
	return false
}

package domain

import "time"

// Pool is the custody balance for one outcome of one market. It is owned by
// the market/outcome pair, never by an individual user, and is addressed by a
// deterministically derived handle rather than a stored pointer.
type Pool struct {
	Handle    string // derived via escrow.DeriveHandle
	MarketID  string
	Outcome   int
	Balance   uint64
	UpdatedAt time.Time
}

// FeeBreakdown reports where the pot went at settlement time.
type FeeBreakdown struct {
	Pot      uint64 // sum of all outcome pools at settlement
	Protocol uint64 // paid to the fee treasury
	Resolver uint64 // paid to the resolver
	Creator  uint64 // paid to the market creator
	Payout   uint64 // total finalized payout across winning pools
}

// Fees returns the combined fee/tip disbursement.
func (f FeeBreakdown) Fees() uint64 {
	return f.Protocol + f.Resolver + f.Creator
}

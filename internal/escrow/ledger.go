// Package escrow implements per-outcome custody pools for a single market.
// Funds only move through the three operations below: user deposits, the
// settlement sweep of losing pools into winning pools, and bounds-checked
// payouts to fee recipients and claimants. Every mutation is validated
// against the current balance; no operation may drive a pool negative.
package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/fixmath"
)

// handleTag is the domain-separation prefix for pool handle derivation.
const handleTag = "parimutuel/pool/v1"

// DeriveHandle deterministically names the custody pool for one outcome of
// one market, so pools are addressable without stored pointers. The handle is
// the hex keccak256 of a tagged (market, outcome) encoding.
func DeriveHandle(marketID string, outcome int) string {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(outcome))
	sum := ethcrypto.Keccak256([]byte(handleTag), []byte(marketID), idx[:])
	return hex.EncodeToString(sum)
}

// Ledger holds the custody balances of every outcome pool of one market.
// It is a pure in-memory structure; persistence is the caller's concern.
type Ledger struct {
	marketID string
	balances []uint64
}

// NewLedger creates an empty ledger with one pool per outcome.
func NewLedger(marketID string, outcomes int) *Ledger {
	return &Ledger{
		marketID: marketID,
		balances: make([]uint64, outcomes),
	}
}

// LoadLedger rebuilds a ledger from persisted pool rows. Missing outcomes
// default to a zero balance.
func LoadLedger(marketID string, outcomes int, pools []domain.Pool) *Ledger {
	l := NewLedger(marketID, outcomes)
	for _, p := range pools {
		if p.Outcome >= 0 && p.Outcome < outcomes {
			l.balances[p.Outcome] = p.Balance
		}
	}
	return l
}

// MarketID returns the owning market id.
func (l *Ledger) MarketID() string { return l.marketID }

// Outcomes returns the number of pools.
func (l *Ledger) Outcomes() int { return len(l.balances) }

// Balance returns the current balance of the given outcome pool.
func (l *Ledger) Balance(outcome int) uint64 {
	if outcome < 0 || outcome >= len(l.balances) {
		return 0
	}
	return l.balances[outcome]
}

// Total returns the checked sum of all pool balances.
func (l *Ledger) Total() (uint64, error) {
	return fixmath.Sum(l.balances...)
}

// Deposit adds amount to the given outcome pool.
func (l *Ledger) Deposit(outcome int, amount uint64) error {
	if err := l.check(outcome); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("escrow: deposit of zero: %w", domain.ErrInvalidAmount)
	}
	next, err := fixmath.Add(l.balances[outcome], amount)
	if err != nil {
		return err
	}
	l.balances[outcome] = next
	return nil
}

// Sweep moves amount from one outcome pool into another. It is used only by
// settlement to fold losing pools into winning pools. The amount is clamped
// against the source balance implicitly by the bounds check.
func (l *Ledger) Sweep(from, to int, amount uint64) error {
	if err := l.check(from); err != nil {
		return err
	}
	if err := l.check(to); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if amount > l.balances[from] {
		return fmt.Errorf("escrow: sweep %d from pool %d holding %d: %w",
			amount, from, l.balances[from], domain.ErrInsufficientPool)
	}
	next, err := fixmath.Add(l.balances[to], amount)
	if err != nil {
		return err
	}
	l.balances[from] -= amount
	l.balances[to] = next
	return nil
}

// Payout deducts up to amount from the given outcome pool and returns the
// amount actually paid. The cap against the live balance tolerates the
// bounded rounding dust that accumulates across claimants; the caller decides
// whether a short payment is acceptable.
func (l *Ledger) Payout(outcome int, amount uint64) (uint64, error) {
	if err := l.check(outcome); err != nil {
		return 0, err
	}
	paid := amount
	if paid > l.balances[outcome] {
		paid = l.balances[outcome]
	}
	l.balances[outcome] -= paid
	return paid, nil
}

// Pools exports the ledger as persistable pool rows.
func (l *Ledger) Pools() []domain.Pool {
	out := make([]domain.Pool, len(l.balances))
	for i, b := range l.balances {
		out[i] = domain.Pool{
			Handle:   DeriveHandle(l.marketID, i),
			MarketID: l.marketID,
			Outcome:  i,
			Balance:  b,
		}
	}
	return out
}

func (l *Ledger) check(outcome int) error {
	if outcome < 0 || outcome >= len(l.balances) {
		return fmt.Errorf("escrow: outcome %d of %d: %w", outcome, len(l.balances), domain.ErrInvalidOutcome)
	}
	return nil
}

package engine

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
	"github.com/alanyoungcy/parimutuel/internal/fixmath"
)

// Claim pays a position its proportional share of the finalized payout pool
// and marks it claimed. The share formula uses the stake totals frozen at
// settlement, so every claimant's amount is independent of claim order; the
// transfer itself is capped at the live pool balance, so cumulative rounding
// dust lands on the last claimant only.
//
// The claimed flag flips before funds move in the caller's transaction, so a
// retried claim fails with ErrAlreadyClaimed rather than double paying.
func Claim(m *domain.Market, l *escrow.Ledger, pos *domain.Position, now time.Time) (uint64, error) {
	if !m.Settled() {
		return 0, fmt.Errorf("engine: market %s: %w", m.ID, domain.ErrMarketNotResolved)
	}
	if pos.Claimed {
		return 0, fmt.Errorf("engine: position %s: %w", pos.ID, domain.ErrAlreadyClaimed)
	}

	var total uint64
	var err error
	switch m.Winners.Kind {
	case domain.WinnersVoid:
		total, err = claimVoid(l, pos)
	case domain.WinnersSingle:
		total, err = claimOutcome(m, l, pos, m.Winners.Single)
	case domain.WinnersMulti:
		total, err = claimMulti(m, l, pos)
	default:
		return 0, fmt.Errorf("engine: market %s: %w", m.ID, domain.ErrMarketNotResolved)
	}
	if err != nil {
		return 0, err
	}

	claimedAt := now
	pos.Claimed = true
	pos.ClaimedAt = &claimedAt
	pos.UpdatedAt = now
	return total, nil
}

// claimVoid refunds the position's own stake on every outcome, each paid from
// that outcome's untouched pool.
func claimVoid(l *escrow.Ledger, pos *domain.Position) (uint64, error) {
	if !pos.HasStake() {
		return 0, fmt.Errorf("engine: position %s holds no stake: %w", pos.ID, domain.ErrNoWinningBet)
	}
	var total uint64
	for idx, stake := range pos.Stakes {
		if stake == 0 {
			continue
		}
		paid, err := l.Payout(idx, stake)
		if err != nil {
			return 0, err
		}
		total, err = fixmath.Add(total, paid)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// claimOutcome pays the position's proportional share of one winning pool.
func claimOutcome(m *domain.Market, l *escrow.Ledger, pos *domain.Position, idx int) (uint64, error) {
	stake := pos.StakeOn(idx)
	if stake == 0 {
		return 0, fmt.Errorf("engine: position %s has no stake on outcome %d: %w", pos.ID, idx, domain.ErrNoWinningBet)
	}
	if idx >= len(m.PayoutPools) || idx >= len(m.StakeSnapshot) {
		return 0, fmt.Errorf("engine: market %s missing settlement snapshot: %w", m.ID, domain.ErrMarketNotResolved)
	}
	totalStake := m.StakeSnapshot[idx]
	if totalStake == 0 {
		return 0, fmt.Errorf("engine: outcome %d had no stake at settlement: %w", idx, domain.ErrNoWinningBet)
	}
	amount, err := fixmath.MulDiv(m.PayoutPools[idx], stake, totalStake)
	if err != nil {
		return 0, err
	}
	return l.Payout(idx, amount)
}

func claimMulti(m *domain.Market, l *escrow.Ledger, pos *domain.Position) (uint64, error) {
	var total uint64
	won := false
	for _, idx := range m.Winners.Multi {
		if pos.StakeOn(idx) == 0 {
			continue
		}
		won = true
		paid, err := claimOutcome(m, l, pos, idx)
		if err != nil {
			return 0, err
		}
		total, err = fixmath.Add(total, paid)
		if err != nil {
			return 0, err
		}
	}
	if !won {
		return 0, fmt.Errorf("engine: position %s holds no winning stake: %w", pos.ID, domain.ErrNoWinningBet)
	}
	return total, nil
}

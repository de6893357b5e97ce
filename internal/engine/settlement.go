// Package engine drives the market settlement state machine and the per-user
// claim protocol. It is pure: it mutates the domain structs and escrow ledger
// passed in and never touches storage, so the service layer can wrap every
// transition in a database transaction and keep it all-or-nothing.
package engine

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
	"github.com/alanyoungcy/parimutuel/internal/fixmath"
)

// ValidateFees enforces the creation-time fee bound so settlement never has
// to clamp: the three basis-point shares may not exceed the whole pot.
func ValidateFees(f domain.FeeSnapshot) error {
	if f.TotalBps() > domain.BpsDenominator {
		return fmt.Errorf("engine: fee shares sum to %d bps: %w", f.TotalBps(), domain.ErrBadConfiguration)
	}
	return nil
}

// MarkTentative records the oracle's winner set without moving funds. The
// tentative state separates "oracle said X" from "funds moved" on the
// attested path so an audit window is possible before irreversible movement.
func MarkTentative(m *domain.Market, w domain.Winners, now time.Time) error {
	if m.Settled() {
		return fmt.Errorf("engine: market %s: %w", m.ID, domain.ErrAlreadySettled)
	}
	m.Winners = w
	m.Status = domain.MarketStatusTentative
	m.UpdatedAt = now
	return nil
}

// MarkVoid records a void resolution: no counterparty exists to pay from, so
// every position becomes eligible for a 1:1 refund at claim time.
func MarkVoid(m *domain.Market, now time.Time) error {
	return MarkTentative(m, domain.Winners{Kind: domain.WinnersVoid}, now)
}

// Settle performs the single irreversible settlement transition: it sweeps
// losing pools into winning pools, extracts the frozen fee shares, and
// finalizes the per-outcome payout pools. A second call on the same market
// fails with ErrAlreadySettled.
func Settle(m *domain.Market, l *escrow.Ledger, now time.Time) (domain.FeeBreakdown, error) {
	if m.Settled() {
		return domain.FeeBreakdown{}, fmt.Errorf("engine: market %s: %w", m.ID, domain.ErrAlreadySettled)
	}
	if m.Winners.Kind == domain.WinnersNone {
		return domain.FeeBreakdown{}, fmt.Errorf("engine: market %s: %w", m.ID, domain.ErrMarketNotResolved)
	}
	if now.Before(m.EndTime) {
		return domain.FeeBreakdown{}, fmt.Errorf("engine: market %s ends %s: %w", m.ID, m.EndTime, domain.ErrTooEarly)
	}

	pot, err := l.Total()
	if err != nil {
		return domain.FeeBreakdown{}, err
	}

	// Deterministic markets with an empty side settle void: there is no
	// opposing stake to pay winners from.
	if m.Winners.Kind == domain.WinnersSingle &&
		m.Resolution.Mode == domain.ResolutionDeterministic {
		for i := 0; i < m.OutcomeCount(); i++ {
			if l.Balance(i) == 0 {
				m.Winners = domain.Winners{Kind: domain.WinnersVoid}
				break
			}
		}
	}

	// On any path, a single winner nobody staked on also settles void:
	// sweeping losing pools into it would leave the pot behind claims that
	// can never pay out.
	if m.Winners.Kind == domain.WinnersSingle &&
		m.ValidOutcome(m.Winners.Single) && l.Balance(m.Winners.Single) == 0 {
		m.Winners = domain.Winners{Kind: domain.WinnersVoid}
	}

	var fees domain.FeeBreakdown
	switch m.Winners.Kind {
	case domain.WinnersVoid:
		fees, err = settleVoid(m, l, pot)
	case domain.WinnersSingle:
		fees, err = settleSingle(m, l, pot)
	case domain.WinnersMulti:
		fees, err = settleMulti(m, l, pot)
	default:
		return domain.FeeBreakdown{}, fmt.Errorf("engine: market %s: %w", m.ID, domain.ErrMarketNotResolved)
	}
	if err != nil {
		return domain.FeeBreakdown{}, err
	}

	snap := make([]uint64, m.OutcomeCount())
	for i, o := range m.Outcomes {
		snap[i] = o.Stake
	}
	m.StakeSnapshot = snap

	settledAt := now
	m.Status = domain.MarketStatusSettled
	m.SettledAt = &settledAt
	m.UpdatedAt = now
	return fees, nil
}

// settleVoid finalizes a void market: no fees, no redistribution, every pool
// keeps its own deposits for 1:1 refunds.
func settleVoid(m *domain.Market, l *escrow.Ledger, pot uint64) (domain.FeeBreakdown, error) {
	pools := make([]uint64, m.OutcomeCount())
	for i := range pools {
		pools[i] = l.Balance(i)
	}
	m.PayoutPools = pools
	return domain.FeeBreakdown{Pot: pot, Payout: pot}, nil
}

func settleSingle(m *domain.Market, l *escrow.Ledger, pot uint64) (domain.FeeBreakdown, error) {
	winner := m.Winners.Single
	if !m.ValidOutcome(winner) {
		return domain.FeeBreakdown{}, fmt.Errorf("engine: winner %d: %w", winner, domain.ErrInvalidOutcome)
	}

	// Fold every losing pool into the winning pool.
	for i := 0; i < m.OutcomeCount(); i++ {
		if i == winner {
			continue
		}
		if err := l.Sweep(i, winner, l.Balance(i)); err != nil {
			return domain.FeeBreakdown{}, err
		}
	}

	fees, err := computeFees(m.Fees, pot)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}
	if err := payFees(l, winner, &fees); err != nil {
		return domain.FeeBreakdown{}, err
	}

	// The finalized payout pool is bounded by the actual vault balance so
	// integer rounding in fee math can never promise more than is held.
	computed, err := fixmath.Sub(pot, fees.Fees())
	if err != nil {
		return domain.FeeBreakdown{}, err
	}
	payout := computed
	if bal := l.Balance(winner); bal < payout {
		payout = bal
	}

	pools := make([]uint64, m.OutcomeCount())
	pools[winner] = payout
	m.PayoutPools = pools
	fees.Payout = payout
	return fees, nil
}

func settleMulti(m *domain.Market, l *escrow.Ledger, pot uint64) (domain.FeeBreakdown, error) {
	winners := m.Winners.Multi
	if len(winners) == 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("engine: empty winner set: %w", domain.ErrNoWinningBet)
	}
	winning := make(map[int]bool, len(winners))
	for _, idx := range winners {
		if !m.ValidOutcome(idx) {
			return domain.FeeBreakdown{}, fmt.Errorf("engine: winner %d: %w", idx, domain.ErrInvalidOutcome)
		}
		winning[idx] = true
	}

	totalWinStake, err := winnerStakeTotal(m, winners)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}
	if totalWinStake == 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("engine: no stake on winning outcomes: %w", domain.ErrNoWinningBet)
	}

	// Split each losing pool across the winning pools in proportion to each
	// winner's share of total winning stake. The last winning pool absorbs
	// the integer-division remainder so the shares sum exactly to the losing
	// balance; no dust is silently dropped.
	for i := 0; i < m.OutcomeCount(); i++ {
		if winning[i] {
			continue
		}
		losing := l.Balance(i)
		if losing == 0 {
			continue
		}
		var distributed uint64
		for wi, idx := range winners {
			var share uint64
			if wi == len(winners)-1 {
				share = losing - distributed
			} else {
				share, err = fixmath.MulDiv(losing, m.Outcomes[idx].Stake, totalWinStake)
				if err != nil {
					return domain.FeeBreakdown{}, err
				}
			}
			if err := l.Sweep(i, idx, share); err != nil {
				return domain.FeeBreakdown{}, err
			}
			distributed += share
		}
	}

	fees, err := computeFees(m.Fees, pot)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}

	// Charge the combined fee proportionally across winning pools by their
	// post-redistribution balances, last pool absorbing the remainder.
	totalFees := fees.Fees()
	if totalFees > 0 {
		postBal := make([]uint64, len(winners))
		var sumBal uint64
		for wi, idx := range winners {
			postBal[wi] = l.Balance(idx)
			sumBal, err = fixmath.Add(sumBal, postBal[wi])
			if err != nil {
				return domain.FeeBreakdown{}, err
			}
		}
		if totalFees > sumBal {
			totalFees = sumBal
		}
		var charged uint64
		for wi, idx := range winners {
			var cut uint64
			if wi == len(winners)-1 {
				cut = totalFees - charged
			} else {
				cut, err = fixmath.MulDiv(totalFees, postBal[wi], sumBal)
				if err != nil {
					return domain.FeeBreakdown{}, err
				}
			}
			if _, err := l.Payout(idx, cut); err != nil {
				return domain.FeeBreakdown{}, err
			}
			charged += cut
		}
	}

	// In multi-winner mode there is no single payout-pool scalar: each
	// winning pool's post-fee balance is what its claimants share.
	pools := make([]uint64, m.OutcomeCount())
	var totalPayout uint64
	for _, idx := range winners {
		pools[idx] = l.Balance(idx)
		totalPayout, err = fixmath.Add(totalPayout, pools[idx])
		if err != nil {
			return domain.FeeBreakdown{}, err
		}
	}
	m.PayoutPools = pools
	fees.Payout = totalPayout
	return fees, nil
}

func winnerStakeTotal(m *domain.Market, winners []int) (uint64, error) {
	var total uint64
	for _, idx := range winners {
		var err error
		total, err = fixmath.Add(total, m.Outcomes[idx].Stake)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// computeFees derives the three basis-point shares of the pot with
// multiply-then-divide so dust never accumulates asymmetrically.
func computeFees(f domain.FeeSnapshot, pot uint64) (domain.FeeBreakdown, error) {
	protocol, err := fixmath.BpsShare(pot, f.ProtocolBps)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}
	resolver, err := fixmath.BpsShare(pot, f.ResolverBps)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}
	creator, err := fixmath.BpsShare(pot, f.CreatorBps)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}
	return domain.FeeBreakdown{Pot: pot, Protocol: protocol, Resolver: resolver, Creator: creator}, nil
}

// payFees disburses the fee shares out of the winning pool, clamping each to
// the remaining balance. Short payments adjust the reported breakdown.
func payFees(l *escrow.Ledger, from int, fees *domain.FeeBreakdown) error {
	var err error
	if fees.Protocol, err = l.Payout(from, fees.Protocol); err != nil {
		return err
	}
	if fees.Resolver, err = l.Payout(from, fees.Resolver); err != nil {
		return err
	}
	if fees.Creator, err = l.Payout(from, fees.Creator); err != nil {
		return err
	}
	return nil
}

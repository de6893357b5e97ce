package engine

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
	"github.com/alanyoungcy/parimutuel/internal/fixmath"
)

// compressedPubKeyLen is the byte length of a compressed secp256k1 key.
const compressedPubKeyLen = 33

// ValidateMarket checks a market definition at creation time. Settlement
// relies on these bounds holding and never re-validates them.
func ValidateMarket(m *domain.Market, now time.Time) error {
	if n := m.OutcomeCount(); n < 2 || n > domain.MaxOutcomes {
		return fmt.Errorf("engine: %d outcomes (want 2..%d): %w", n, domain.MaxOutcomes, domain.ErrBadConfiguration)
	}
	for i, o := range m.Outcomes {
		if o.Name == "" {
			return fmt.Errorf("engine: outcome %d unnamed: %w", i, domain.ErrBadConfiguration)
		}
	}
	if m.Asset == "" {
		return fmt.Errorf("engine: missing settlement asset: %w", domain.ErrBadConfiguration)
	}
	if !m.EndTime.After(now) {
		return fmt.Errorf("engine: end time %s not in the future: %w", m.EndTime, domain.ErrBadConfiguration)
	}
	if err := ValidateFees(m.Fees); err != nil {
		return err
	}

	switch m.Resolution.Mode {
	case domain.ResolutionDeterministic:
		if m.OutcomeCount() != 2 {
			return fmt.Errorf("engine: deterministic markets are binary: %w", domain.ErrBadConfiguration)
		}
		if m.Resolution.FeedID == "" {
			return fmt.Errorf("engine: missing price feed id: %w", domain.ErrBadConfiguration)
		}
		switch m.Resolution.Comparator {
		case domain.ComparatorGT, domain.ComparatorLT, domain.ComparatorGTE, domain.ComparatorLTE:
		case domain.ComparatorRange:
			if m.Resolution.BoundLo > m.Resolution.BoundHi {
				return fmt.Errorf("engine: range bounds inverted: %w", domain.ErrBadConfiguration)
			}
		default:
			return fmt.Errorf("engine: unknown comparator %q: %w", m.Resolution.Comparator, domain.ErrBadConfiguration)
		}
	case domain.ResolutionAttested:
		key, err := hex.DecodeString(m.Resolution.OracleKey)
		if err != nil || len(key) != compressedPubKeyLen {
			return fmt.Errorf("engine: oracle key must be a hex compressed pubkey: %w", domain.ErrBadConfiguration)
		}
	default:
		return fmt.Errorf("engine: unknown resolution mode %q: %w", m.Resolution.Mode, domain.ErrBadConfiguration)
	}
	return nil
}

// Deposit adds stake to one outcome, updating the custody pool, the user's
// position, and the market's accumulated stake counter together. The caller
// persists all three in one transaction. The deposit's denomination must
// match the market's settlement asset.
func Deposit(m *domain.Market, l *escrow.Ledger, pos *domain.Position, outcome int, amount uint64, asset string, now time.Time) error {
	if m.Settled() || m.Status == domain.MarketStatusTentative {
		return fmt.Errorf("engine: market %s is %s: %w", m.ID, m.Status, domain.ErrTooLateToBet)
	}
	if !now.Before(m.EndTime) {
		return fmt.Errorf("engine: market %s ended %s: %w", m.ID, m.EndTime, domain.ErrTooLateToBet)
	}
	if asset != m.Asset {
		return fmt.Errorf("engine: deposit denominated in %q on a %q market: %w", asset, m.Asset, domain.ErrWrongAsset)
	}
	if amount == 0 {
		return fmt.Errorf("engine: zero deposit: %w", domain.ErrInvalidAmount)
	}
	if !m.ValidOutcome(outcome) {
		return fmt.Errorf("engine: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	if len(pos.Stakes) < m.OutcomeCount() {
		grown := make([]uint64, m.OutcomeCount())
		copy(grown, pos.Stakes)
		pos.Stakes = grown
	}

	newStake, err := fixmath.Add(pos.Stakes[outcome], amount)
	if err != nil {
		return err
	}
	newTotal, err := fixmath.Add(m.Outcomes[outcome].Stake, amount)
	if err != nil {
		return err
	}
	if err := l.Deposit(outcome, amount); err != nil {
		return err
	}

	pos.Stakes[outcome] = newStake
	pos.UpdatedAt = now
	m.Outcomes[outcome].Stake = newTotal
	m.UpdatedAt = now
	return nil
}

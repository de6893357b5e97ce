package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusTentative MarketStatus = "tentative"
	MarketStatusSettled   MarketStatus = "settled"
)

// ResolutionMode selects how a market's winner is determined.
type ResolutionMode string

const (
	// ResolutionDeterministic resolves from a numeric price reading compared
	// against the market's configured bound(s).
	ResolutionDeterministic ResolutionMode = "deterministic"
	// ResolutionAttested resolves from a signed oracle attestation.
	ResolutionAttested ResolutionMode = "attested"
)

// Comparator is the price comparison operator for deterministic markets.
type Comparator string

const (
	ComparatorGT    Comparator = "gt"
	ComparatorLT    Comparator = "lt"
	ComparatorGTE   Comparator = "gte"
	ComparatorLTE   Comparator = "lte"
	ComparatorRange Comparator = "range"
)

// BpsDenominator is the basis-point scale used for all fee arithmetic.
const BpsDenominator = 10_000

// MaxOutcomes bounds the number of outcome slots a market may declare.
const MaxOutcomes = 5

// DefaultAsset is the settlement denomination markets custody when creation
// names none.
const DefaultAsset = "usdc"

// FeeSnapshot is the fee configuration frozen at market creation. Later
// fee-policy changes never affect an already-open market.
type FeeSnapshot struct {
	ProtocolBps uint16
	ResolverBps uint16
	CreatorBps  uint16
	Treasury    string
}

// TotalBps returns the combined fee rate of all three shares.
func (f FeeSnapshot) TotalBps() uint32 {
	return uint32(f.ProtocolBps) + uint32(f.ResolverBps) + uint32(f.CreatorBps)
}

// Resolution describes the resolution path configured for a market. Exactly
// one of the two mode-specific field groups is meaningful.
type Resolution struct {
	Mode ResolutionMode

	// Deterministic path.
	FeedID     string
	Comparator Comparator
	BoundLo    uint64 // fixed-point, PriceScale units
	BoundHi    uint64 // range markets only

	// Attested path: hex-encoded compressed secp256k1 public key of the
	// oracle authority.
	OracleKey string
}

// Outcome is one mutually-exclusive resolution branch of a market.
type Outcome struct {
	Name  string
	Stake uint64 // accumulated stake across all positions
}

// WinnersKind tags the Winners variant.
type WinnersKind string

const (
	WinnersNone   WinnersKind = ""
	WinnersSingle WinnersKind = "single"
	WinnersMulti  WinnersKind = "multi"
	WinnersVoid   WinnersKind = "void"
)

// Winners is the resolved winner set of a market. Single and Multi are
// mutually exclusive; Void means every position refunds 1:1.
type Winners struct {
	Kind   WinnersKind
	Single int
	Multi  []int // sorted, de-duplicated outcome indices
}

// Contains reports whether outcome idx is a winning outcome.
func (w Winners) Contains(idx int) bool {
	switch w.Kind {
	case WinnersSingle:
		return idx == w.Single
	case WinnersMulti:
		for _, i := range w.Multi {
			if i == idx {
				return true
			}
		}
	}
	return false
}

// Market is a parimutuel prediction market with per-outcome custody pools.
type Market struct {
	ID       string
	Creator  string
	Resolver string // recipient of the resolver tip
	Question string
	Slug     string

	// Asset is the settlement denomination; pools, stakes, and payouts are
	// integer base units of it, and every deposit must match.
	Asset string

	Fees       FeeSnapshot
	Resolution Resolution
	Outcomes   []Outcome
	EndTime    time.Time

	Status  MarketStatus
	Winners Winners

	// ResolvedPrice holds the normalized price that decided a deterministic
	// market; nil for attested and unresolved markets.
	ResolvedPrice *uint64

	// PayoutPools is the finalized post-fee pool per outcome, written once at
	// settlement. StakeSnapshot freezes per-outcome stake totals at the same
	// instant so claim shares are independent of claim order.
	PayoutPools   []uint64
	StakeSnapshot []uint64

	CreatedAt time.Time
	UpdatedAt time.Time
	SettledAt *time.Time
}

// Settled reports whether the market has completed its write-once settlement.
func (m *Market) Settled() bool {
	return m.Status == MarketStatusSettled
}

// OutcomeCount returns the number of outcome slots.
func (m *Market) OutcomeCount() int {
	return len(m.Outcomes)
}

// ValidOutcome reports whether idx addresses one of the market's outcomes.
func (m *Market) ValidOutcome(idx int) bool {
	return idx >= 0 && idx < len(m.Outcomes)
}

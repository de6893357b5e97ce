package domain

import "time"

// EventType enumerates the append-only notifications the engine emits.
type EventType string

const (
	EventDepositAccepted EventType = "deposit_accepted"
	EventMarketTentative EventType = "market_tentative"
	EventMarketSettled   EventType = "market_settled"
	EventMarketVoided    EventType = "market_voided"
	EventClaimPaid       EventType = "claim_paid"
)

// Event is one append-only engine notification. The read-model mirror
// consumes these to maintain denormalized views; payloads are JSON.
type Event struct {
	ID        string
	Type      EventType
	MarketID  string
	Payload   []byte
	CreatedAt time.Time
}

// DepositAcceptedPayload is the JSON body of a deposit_accepted event.
type DepositAcceptedPayload struct {
	User    string `json:"user"`
	Outcome int    `json:"outcome"`
	Amount  uint64 `json:"amount"`
}

// MarketSettledPayload is the JSON body of a market_settled event.
type MarketSettledPayload struct {
	Pot      uint64 `json:"pot"`
	Protocol uint64 `json:"protocol_fee"`
	Resolver uint64 `json:"resolver_tip"`
	Creator  uint64 `json:"creator_tip"`
	Payout   uint64 `json:"payout_pool"`
	Void     bool   `json:"void"`
}

// ClaimPaidPayload is the JSON body of a claim_paid event.
type ClaimPaidPayload struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
}

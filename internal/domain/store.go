package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetBySlug(ctx context.Context, slug string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	// ListResolvable returns open deterministic markets whose end time has
	// passed, for the resolver daemon to work through.
	ListResolvable(ctx context.Context, now time.Time, opts ListOpts) ([]Market, error)
	// Delete removes a settled market (administrative close only).
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists per-user stakes.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	Get(ctx context.Context, marketID, user string) (Position, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
	// CountUnclaimed counts positions with stake that have not claimed yet,
	// used to decide whether a settled market can be closed.
	CountUnclaimed(ctx context.Context, marketID string) (int64, error)
	DeleteByMarket(ctx context.Context, marketID string) error
}

// PoolStore persists escrow custody balances.
type PoolStore interface {
	Upsert(ctx context.Context, pool Pool) error
	UpsertBatch(ctx context.Context, pools []Pool) error
	Get(ctx context.Context, handle string) (Pool, error)
	GetByMarket(ctx context.Context, marketID string) ([]Pool, error)
	DeleteByMarket(ctx context.Context, marketID string) error
}

// EventStore persists the append-only engine event log.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Event, error)
	List(ctx context.Context, opts ListOpts) ([]Event, error)
}

// MarketView is the denormalized read-model row maintained by the mirror.
type MarketView struct {
	MarketID    string
	Question    string
	Status      string
	Pot         uint64
	FeesPaid    uint64
	Winners     string // "", "single:2", "multi:1,3", "void"
	ClaimCount  int64
	ClaimVolume uint64
	UpdatedAt   time.Time
}

// MarketViewStore persists read-model rows for display surfaces.
type MarketViewStore interface {
	Upsert(ctx context.Context, v MarketView) error
	Get(ctx context.Context, marketID string) (MarketView, error)
	List(ctx context.Context, opts ListOpts) ([]MarketView, error)
}

// Stores bundles every store participating in one engine operation.
type Stores struct {
	Markets   MarketStore
	Positions PositionStore
	Pools     PoolStore
	Events    EventStore
}

// UnitOfWork runs fn against stores bound to a single database transaction,
// giving each public engine operation the all-or-nothing guarantee the
// settlement state machine depends on.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Stores) error) error
}

package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest reading per feed.
type PriceCache interface {
	SetReading(ctx context.Context, r PriceReading) error
	GetReading(ctx context.Context, feedID string) (PriceReading, error)
}

// MarketCache provides fast market lookups in front of the persistent store.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides distributed locking. Settlement takes a per-market
// lock so concurrent settle attempts on one market serialize.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error)
	StreamAck(ctx context.Context, stream, group string, ids ...string) error
	EnsureGroup(ctx context.Context, stream, group string) error
}

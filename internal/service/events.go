// Package service orchestrates the settlement engine over persistent stores:
// each public operation runs the pure engine transition inside one database
// transaction, then publishes the resulting events and maintains caches.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// EventChannel is the pub/sub channel engine events are published on. The
// durable copy goes to EventStream for the read-model mirror.
const (
	EventChannel = "settled:events"
	EventStream  = "settled:event-stream"
)

// newEvent builds an append-only engine event with a JSON payload.
func newEvent(typ domain.EventType, marketID string, payload any) (domain.Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      typ,
		MarketID:  marketID,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// busEnvelope is the wire form published on the signal bus.
type busEnvelope struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	MarketID string          `json:"market_id"`
	Payload  json.RawMessage `json:"payload"`
}

// publishEvent pushes an already-persisted event to the bus, both the
// ephemeral channel and the durable stream. Publish failures are logged and
// swallowed: the store copy is the source of truth.
func publishEvent(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, ev domain.Event) {
	if bus == nil {
		return
	}
	body, err := json.Marshal(busEnvelope{
		ID:       ev.ID,
		Type:     string(ev.Type),
		MarketID: ev.MarketID,
		Payload:  ev.Payload,
	})
	if err != nil {
		logger.ErrorContext(ctx, "event: marshal envelope", slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, EventChannel, body); err != nil {
		logger.WarnContext(ctx, "event: publish failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := bus.StreamAppend(ctx, EventStream, body); err != nil {
		logger.WarnContext(ctx, "event: stream append failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

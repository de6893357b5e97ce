package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The event log is
// append-only; rows are never updated or deleted.
type EventStore struct {
	db querier
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{db: pool}
}

// Append writes one engine event.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	const query = `
		INSERT INTO events (id, type, market_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, query,
		ev.ID, string(ev.Type), ev.MarketID, ev.Payload, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

// ListByMarket returns a market's events in emission order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	const query = `
		SELECT id, type, market_id, payload, created_at
		FROM events
		WHERE market_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	limit, offset := pageBounds(opts)
	rows, err := s.db.Query(ctx, query, marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// List returns events across all markets, newest first, optionally bounded by
// the Since/Until window.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	const query = `
		SELECT id, type, market_id, payload, created_at
		FROM events
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	limit, offset := pageBounds(opts)
	rows, err := s.db.Query(ctx, query, opts.Since, opts.Until, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			ev  domain.Event
			typ string
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.MarketID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

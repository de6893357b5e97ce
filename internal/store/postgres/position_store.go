package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db querier
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{db: pool}
}

// Upsert inserts or updates a position, keyed by (market_id, user_name).
func (s *PositionStore) Upsert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, market_id, user_name, stakes, claimed, claimed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)
		ON CONFLICT (market_id, user_name) DO UPDATE SET
			stakes     = EXCLUDED.stakes,
			claimed    = EXCLUDED.claimed,
			claimed_at = EXCLUDED.claimed_at,
			updated_at = NOW()`

	stakes, err := json.Marshal(pos.Stakes)
	if err != nil {
		return fmt.Errorf("postgres: encode position %s: %w", pos.ID, err)
	}
	_, err = s.db.Exec(ctx, query,
		pos.ID, pos.MarketID, pos.User, stakes,
		pos.Claimed, pos.ClaimedAt, pos.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", pos.ID, err)
	}
	return nil
}

const positionColumns = `
	id, market_id, user_name, stakes, claimed, claimed_at, created_at, updated_at`

// Get retrieves one user's position in a market.
func (s *PositionStore) Get(ctx context.Context, marketID, user string) (domain.Position, error) {
	const query = `SELECT ` + positionColumns + `
		FROM positions WHERE market_id = $1 AND user_name = $2`

	pos, err := scanPosition(s.db.QueryRow(ctx, query, marketID, user))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, user, err)
	}
	return pos, nil
}

// ListByMarket returns every position in a market, ordered by creation time.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	const query = `SELECT ` + positionColumns + `
		FROM positions
		WHERE market_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	limit, offset := pageBounds(opts)
	rows, err := s.db.Query(ctx, query, marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", marketID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return positions, nil
}

// CountUnclaimed counts staked positions that have not claimed yet. Zero-stake
// rows do not block an administrative close.
func (s *PositionStore) CountUnclaimed(ctx context.Context, marketID string) (int64, error) {
	const query = `
		SELECT COUNT(*) FROM positions
		WHERE market_id = $1 AND NOT claimed AND stakes::text <> '[]'
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(stakes) AS s WHERE s::bigint > 0
		  )`

	var n int64
	if err := s.db.QueryRow(ctx, query, marketID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count unclaimed for %s: %w", marketID, err)
	}
	return n, nil
}

// DeleteByMarket removes every position in a market.
func (s *PositionStore) DeleteByMarket(ctx context.Context, marketID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM positions WHERE market_id = $1`, marketID); err != nil {
		return fmt.Errorf("postgres: delete positions for %s: %w", marketID, err)
	}
	return nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		pos    domain.Position
		stakes []byte
	)
	err := row.Scan(
		&pos.ID, &pos.MarketID, &pos.User, &stakes,
		&pos.Claimed, &pos.ClaimedAt, &pos.CreatedAt, &pos.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	if err := json.Unmarshal(stakes, &pos.Stakes); err != nil {
		return domain.Position{}, fmt.Errorf("decode stakes: %w", err)
	}
	return pos, nil
}

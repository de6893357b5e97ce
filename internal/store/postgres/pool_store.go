package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL. Balances are the
// custody source of truth; every mutation goes through the owning engine
// transaction.
type PoolStore struct {
	db querier
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{db: pool}
}

const poolUpsertQuery = `
	INSERT INTO pools (handle, market_id, outcome, balance, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (handle) DO UPDATE SET
		balance    = EXCLUDED.balance,
		updated_at = NOW()`

// Upsert writes a single custody pool balance.
func (s *PoolStore) Upsert(ctx context.Context, pool domain.Pool) error {
	_, err := s.db.Exec(ctx, poolUpsertQuery,
		pool.Handle, pool.MarketID, pool.Outcome, int64(pool.Balance),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %s: %w", pool.Handle, err)
	}
	return nil
}

// UpsertBatch writes multiple pool balances in one batch, typically every
// outcome pool of a market after an engine transition.
func (s *PoolStore) UpsertBatch(ctx context.Context, pools []domain.Pool) error {
	if len(pools) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(poolUpsertQuery, p.Handle, p.MarketID, p.Outcome, int64(p.Balance))
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range pools {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert pool batch item %d: %w", i, err)
		}
	}
	return nil
}

// Get retrieves one pool by its derived handle.
func (s *PoolStore) Get(ctx context.Context, handle string) (domain.Pool, error) {
	const query = `
		SELECT handle, market_id, outcome, balance, updated_at
		FROM pools WHERE handle = $1`

	var (
		p       domain.Pool
		balance int64
	)
	err := s.db.QueryRow(ctx, query, handle).Scan(
		&p.Handle, &p.MarketID, &p.Outcome, &balance, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool %s: %w", handle, err)
	}
	p.Balance = uint64(balance)
	return p, nil
}

// GetByMarket returns every outcome pool of a market, ordered by outcome slot.
func (s *PoolStore) GetByMarket(ctx context.Context, marketID string) ([]domain.Pool, error) {
	const query = `
		SELECT handle, market_id, outcome, balance, updated_at
		FROM pools WHERE market_id = $1
		ORDER BY outcome ASC`

	rows, err := s.db.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools for %s: %w", marketID, err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var (
			p       domain.Pool
			balance int64
		)
		if err := rows.Scan(&p.Handle, &p.MarketID, &p.Outcome, &balance, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		p.Balance = uint64(balance)
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate pools: %w", err)
	}
	return pools, nil
}

// DeleteByMarket removes every pool of a market.
func (s *PoolStore) DeleteByMarket(ctx context.Context, marketID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM pools WHERE market_id = $1`, marketID); err != nil {
		return fmt.Errorf("postgres: delete pools for %s: %w", marketID, err)
	}
	return nil
}

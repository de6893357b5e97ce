package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// MarketViewStore implements domain.MarketViewStore using PostgreSQL. Rows
// are maintained by the read-model mirror, not by the engine transactions.
type MarketViewStore struct {
	db querier
}

// NewMarketViewStore creates a new MarketViewStore backed by the given pool.
func NewMarketViewStore(pool *pgxpool.Pool) *MarketViewStore {
	return &MarketViewStore{db: pool}
}

// Upsert writes one denormalized view row.
func (s *MarketViewStore) Upsert(ctx context.Context, v domain.MarketView) error {
	const query = `
		INSERT INTO market_views (
			market_id, question, status, pot, fees_paid,
			winners, claim_count, claim_volume, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW()
		)
		ON CONFLICT (market_id) DO UPDATE SET
			question     = EXCLUDED.question,
			status       = EXCLUDED.status,
			pot          = EXCLUDED.pot,
			fees_paid    = EXCLUDED.fees_paid,
			winners      = EXCLUDED.winners,
			claim_count  = EXCLUDED.claim_count,
			claim_volume = EXCLUDED.claim_volume,
			updated_at   = NOW()`

	_, err := s.db.Exec(ctx, query,
		v.MarketID, v.Question, v.Status, int64(v.Pot), int64(v.FeesPaid),
		v.Winners, v.ClaimCount, int64(v.ClaimVolume),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market view %s: %w", v.MarketID, err)
	}
	return nil
}

const viewColumns = `
	market_id, question, status, pot, fees_paid,
	winners, claim_count, claim_volume, updated_at`

// Get retrieves one view row by market ID.
func (s *MarketViewStore) Get(ctx context.Context, marketID string) (domain.MarketView, error) {
	const query = `SELECT ` + viewColumns + ` FROM market_views WHERE market_id = $1`

	v, err := scanMarketView(s.db.QueryRow(ctx, query, marketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketView{}, domain.ErrNotFound
		}
		return domain.MarketView{}, fmt.Errorf("postgres: get market view %s: %w", marketID, err)
	}
	return v, nil
}

// List returns view rows, most recently updated first.
func (s *MarketViewStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketView, error) {
	const query = `SELECT ` + viewColumns + `
		FROM market_views
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`

	limit, offset := pageBounds(opts)
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market views: %w", err)
	}
	defer rows.Close()

	var views []domain.MarketView
	for rows.Next() {
		v, err := scanMarketView(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market view: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate market views: %w", err)
	}
	return views, nil
}

func scanMarketView(row pgx.Row) (domain.MarketView, error) {
	var (
		v           domain.MarketView
		pot         int64
		feesPaid    int64
		claimVolume int64
	)
	err := row.Scan(
		&v.MarketID, &v.Question, &v.Status, &pot, &feesPaid,
		&v.Winners, &v.ClaimCount, &claimVolume, &v.UpdatedAt,
	)
	if err != nil {
		return domain.MarketView{}, err
	}
	v.Pot = uint64(pot)
	v.FeesPaid = uint64(feesPaid)
	v.ClaimVolume = uint64(claimVolume)
	return v, nil
}

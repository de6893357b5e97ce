package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	db querier
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{db: pool}
}

const marketColumns = `
	id, creator, resolver, question, slug, asset,
	protocol_bps, resolver_bps, creator_bps, treasury,
	mode, feed_id, comparator, bound_lo, bound_hi, oracle_key,
	outcomes, end_time, status, winners, resolved_price,
	payout_pools, stake_snapshot,
	created_at, updated_at, settled_at`

// Create inserts a new market row. A duplicate id or slug maps to
// domain.ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator, resolver, question, slug, asset,
			protocol_bps, resolver_bps, creator_bps, treasury,
			mode, feed_id, comparator, bound_lo, bound_hi, oracle_key,
			outcomes, end_time, status, winners, resolved_price,
			payout_pools, stake_snapshot,
			created_at, updated_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23,
			$24, NOW(), $25
		)
		ON CONFLICT DO NOTHING`

	args, err := marketArgs(m)
	if err != nil {
		return fmt.Errorf("postgres: encode market %s: %w", m.ID, err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// Update rewrites an existing market row.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			creator        = $2,
			resolver       = $3,
			question       = $4,
			slug           = $5,
			asset          = $6,
			protocol_bps   = $7,
			resolver_bps   = $8,
			creator_bps    = $9,
			treasury       = $10,
			mode           = $11,
			feed_id        = $12,
			comparator     = $13,
			bound_lo       = $14,
			bound_hi       = $15,
			oracle_key     = $16,
			outcomes       = $17,
			end_time       = $18,
			status         = $19,
			winners        = $20,
			resolved_price = $21,
			payout_pools   = $22,
			stake_snapshot = $23,
			created_at     = $24,
			updated_at     = NOW(),
			settled_at     = $25
		WHERE id = $1`

	args, err := marketArgs(m)
	if err != nil {
		return fmt.Errorf("postgres: encode market %s: %w", m.ID, err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a market by its ID.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	const query = `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`
	m, err := scanMarket(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetBySlug retrieves a market by its URL slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	const query = `SELECT ` + marketColumns + ` FROM markets WHERE slug = $1`
	m, err := scanMarket(s.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market slug %q: %w", slug, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by slug %q: %w", slug, err)
	}
	return m, nil
}

// ListOpen returns open markets ordered by end time, soonest first.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	const query = `
		SELECT ` + marketColumns + `
		FROM markets
		WHERE status = 'open'
		ORDER BY end_time ASC
		LIMIT $1 OFFSET $2`

	limit, offset := pageBounds(opts)
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// ListResolvable returns open deterministic markets whose end time has
// passed, oldest first, for the resolver daemon to work through.
func (s *MarketStore) ListResolvable(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	const query = `
		SELECT ` + marketColumns + `
		FROM markets
		WHERE status = 'open' AND mode = 'deterministic' AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2 OFFSET $3`

	limit, offset := pageBounds(opts)
	rows, err := s.db.Query(ctx, query, now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolvable markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// Delete removes a market row.
func (s *MarketStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete market %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// outcomeJSON is the JSONB wire form of one outcome slot.
type outcomeJSON struct {
	Name  string `json:"name"`
	Stake uint64 `json:"stake"`
}

// winnersJSON is the JSONB wire form of the resolved winner set.
type winnersJSON struct {
	Kind   string `json:"kind"`
	Single int    `json:"single,omitempty"`
	Multi  []int  `json:"multi,omitempty"`
}

func marketArgs(m domain.Market) ([]any, error) {
	outcomes := make([]outcomeJSON, len(m.Outcomes))
	for i, o := range m.Outcomes {
		outcomes[i] = outcomeJSON{Name: o.Name, Stake: o.Stake}
	}
	outcomesBody, err := json.Marshal(outcomes)
	if err != nil {
		return nil, err
	}

	var winnersBody []byte
	if m.Winners.Kind != domain.WinnersNone {
		winnersBody, err = json.Marshal(winnersJSON{
			Kind:   string(m.Winners.Kind),
			Single: m.Winners.Single,
			Multi:  m.Winners.Multi,
		})
		if err != nil {
			return nil, err
		}
	}

	var resolvedPrice *int64
	if m.ResolvedPrice != nil {
		p := int64(*m.ResolvedPrice)
		resolvedPrice = &p
	}

	payoutBody, err := marshalUints(m.PayoutPools)
	if err != nil {
		return nil, err
	}
	snapshotBody, err := marshalUints(m.StakeSnapshot)
	if err != nil {
		return nil, err
	}

	return []any{
		m.ID, m.Creator, m.Resolver, m.Question, m.Slug, m.Asset,
		int32(m.Fees.ProtocolBps), int32(m.Fees.ResolverBps), int32(m.Fees.CreatorBps), m.Fees.Treasury,
		string(m.Resolution.Mode), m.Resolution.FeedID, string(m.Resolution.Comparator),
		int64(m.Resolution.BoundLo), int64(m.Resolution.BoundHi), m.Resolution.OracleKey,
		outcomesBody, m.EndTime, string(m.Status), winnersBody, resolvedPrice,
		payoutBody, snapshotBody,
		m.CreatedAt, m.SettledAt,
	}, nil
}

func marshalUints(vals []uint64) ([]byte, error) {
	if vals == nil {
		return nil, nil
	}
	return json.Marshal(vals)
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m             domain.Market
		protocolBps   int32
		resolverBps   int32
		creatorBps    int32
		mode          string
		comparator    string
		boundLo       int64
		boundHi       int64
		status        string
		outcomesBody  []byte
		winnersBody   []byte
		resolvedPrice *int64
		payoutBody    []byte
		snapshotBody  []byte
	)
	err := row.Scan(
		&m.ID, &m.Creator, &m.Resolver, &m.Question, &m.Slug, &m.Asset,
		&protocolBps, &resolverBps, &creatorBps, &m.Fees.Treasury,
		&mode, &m.Resolution.FeedID, &comparator, &boundLo, &boundHi, &m.Resolution.OracleKey,
		&outcomesBody, &m.EndTime, &status, &winnersBody, &resolvedPrice,
		&payoutBody, &snapshotBody,
		&m.CreatedAt, &m.UpdatedAt, &m.SettledAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Fees.ProtocolBps = uint16(protocolBps)
	m.Fees.ResolverBps = uint16(resolverBps)
	m.Fees.CreatorBps = uint16(creatorBps)
	m.Resolution.Mode = domain.ResolutionMode(mode)
	m.Resolution.Comparator = domain.Comparator(comparator)
	m.Resolution.BoundLo = uint64(boundLo)
	m.Resolution.BoundHi = uint64(boundHi)
	m.Status = domain.MarketStatus(status)

	var outcomes []outcomeJSON
	if err := json.Unmarshal(outcomesBody, &outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("decode outcomes: %w", err)
	}
	m.Outcomes = make([]domain.Outcome, len(outcomes))
	for i, o := range outcomes {
		m.Outcomes[i] = domain.Outcome{Name: o.Name, Stake: o.Stake}
	}

	if len(winnersBody) > 0 {
		var w winnersJSON
		if err := json.Unmarshal(winnersBody, &w); err != nil {
			return domain.Market{}, fmt.Errorf("decode winners: %w", err)
		}
		m.Winners = domain.Winners{
			Kind:   domain.WinnersKind(w.Kind),
			Single: w.Single,
			Multi:  w.Multi,
		}
	}

	if resolvedPrice != nil {
		p := uint64(*resolvedPrice)
		m.ResolvedPrice = &p
	}
	if len(payoutBody) > 0 {
		if err := json.Unmarshal(payoutBody, &m.PayoutPools); err != nil {
			return domain.Market{}, fmt.Errorf("decode payout pools: %w", err)
		}
	}
	if len(snapshotBody) > 0 {
		if err := json.Unmarshal(snapshotBody, &m.StakeSnapshot); err != nil {
			return domain.Market{}, fmt.Errorf("decode stake snapshot: %w", err)
		}
	}
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return markets, nil
}

func pageBounds(opts domain.ListOpts) (int, int) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// querier is the query surface shared by *pgxpool.Pool and pgx.Tx, letting
// every store run either standalone or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// UnitOfWork implements domain.UnitOfWork over a pgx connection pool. Each
// call runs fn against stores bound to one database transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork creates a UnitOfWork backed by the given connection pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithinTx begins a transaction, hands transaction-bound stores to fn, and
// commits on nil error or rolls back otherwise.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(tx domain.Stores) error) error {
	err := pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(storesFor(tx))
	})
	if err != nil {
		return fmt.Errorf("postgres: tx: %w", err)
	}
	return nil
}

func storesFor(q querier) domain.Stores {
	return domain.Stores{
		Markets:   &MarketStore{db: q},
		Positions: &PositionStore{db: q},
		Pools:     &PoolStore{db: q},
		Events:    &EventStore{db: q},
	}
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/engine"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
)

// ClaimService pays settled entitlements out to individual positions.
type ClaimService struct {
	uow    domain.UnitOfWork
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewClaimService creates a ClaimService.
func NewClaimService(uow domain.UnitOfWork, bus domain.SignalBus, logger *slog.Logger) *ClaimService {
	return &ClaimService{uow: uow, bus: bus, logger: logger}
}

// Claim pays the caller their proportional share of the finalized payout
// pool (or their 1:1 refund on a void market) exactly once. The claimed flag
// and the pool decrement commit in the same transaction, so a retry after
// success fails with ErrAlreadyClaimed and a retry after failure sees no
// partial effect.
func (s *ClaimService) Claim(ctx context.Context, marketID, user string) (uint64, error) {
	now := time.Now().UTC()

	var (
		paid uint64
		ev   domain.Event
	)
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err := tx.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		pos, err := tx.Positions.Get(ctx, marketID, user)
		if err != nil {
			return err
		}
		pools, err := tx.Pools.GetByMarket(ctx, marketID)
		if err != nil {
			return err
		}
		ledger := escrow.LoadLedger(marketID, m.OutcomeCount(), pools)

		paid, err = engine.Claim(&m, ledger, &pos, now)
		if err != nil {
			return err
		}

		if err := tx.Positions.Upsert(ctx, pos); err != nil {
			return err
		}
		if err := tx.Pools.UpsertBatch(ctx, ledger.Pools()); err != nil {
			return err
		}

		ev, err = newEvent(domain.EventClaimPaid, marketID, domain.ClaimPaidPayload{
			User:   user,
			Amount: paid,
		})
		if err != nil {
			return err
		}
		return tx.Events.Append(ctx, ev)
	})
	if err != nil {
		return 0, fmt.Errorf("claim_service: claim %s by %s: %w", marketID, user, err)
	}

	publishEvent(ctx, s.bus, s.logger, ev)

	s.logger.InfoContext(ctx, "claim_service: claim paid",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.Uint64("amount", paid),
	)
	return paid, nil
}

// Position returns the caller's position in a market.
func (s *ClaimService) Position(ctx context.Context, marketID, user string) (domain.Position, error) {
	var pos domain.Position
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		var err error
		pos, err = tx.Positions.Get(ctx, marketID, user)
		return err
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("claim_service: position %s/%s: %w", marketID, user, err)
	}
	return pos, nil
}

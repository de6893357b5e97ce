package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/engine"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
	"github.com/alanyoungcy/parimutuel/internal/notify"
	"github.com/alanyoungcy/parimutuel/internal/oracle"
)

// settleLockTTL bounds how long a settlement lock may be held; a crashed
// settler releases the market after this.
const settleLockTTL = 30 * time.Second

// ResolutionService drives markets from open wagering to settled: it applies
// both resolution paths and performs the irreversible settlement transition.
type ResolutionService struct {
	uow      domain.UnitOfWork
	cache    domain.MarketCache
	bus      domain.SignalBus
	locks    domain.LockManager
	prices   domain.PriceSource
	verifier *oracle.AttestationVerifier
	resolver oracle.PriceResolver
	archiver domain.Archiver  // optional
	notifier *notify.Notifier // optional
	logger   *slog.Logger
}

// NewResolutionService creates a ResolutionService. The archiver and
// notifier may be nil; everything else is required.
func NewResolutionService(
	uow domain.UnitOfWork,
	cache domain.MarketCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	prices domain.PriceSource,
	verifier *oracle.AttestationVerifier,
	resolver oracle.PriceResolver,
	archiver domain.Archiver,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		uow:      uow,
		cache:    cache,
		bus:      bus,
		locks:    locks,
		prices:   prices,
		verifier: verifier,
		resolver: resolver,
		archiver: archiver,
		notifier: notifier,
		logger:   logger,
	}
}

// ResolveDeterministic resolves a price-comparator market from the supplied
// reading and settles it in the same transaction: the deterministic path has
// no challenge window, so funds move immediately on the happy path.
func (s *ResolutionService) ResolveDeterministic(ctx context.Context, marketID string, reading domain.PriceReading) (domain.FeeBreakdown, error) {
	now := time.Now().UTC()

	unlock, err := s.locks.Acquire(ctx, "settle:"+marketID, settleLockTTL)
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: resolve %s: %w", marketID, err)
	}
	defer unlock()

	var (
		fees   domain.FeeBreakdown
		events []domain.Event
	)
	err = s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err := tx.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Settled() {
			return domain.ErrAlreadySettled
		}

		winners, price, err := s.resolver.Decide(&m, reading, now)
		if err != nil {
			return err
		}
		if err := engine.MarkTentative(&m, winners, now); err != nil {
			return err
		}
		m.ResolvedPrice = &price

		fees, events, err = s.settleLocked(ctx, tx, &m, now)
		return err
	})
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: resolve %s: %w", marketID, err)
	}

	s.afterSettlement(ctx, marketID, fees, events)
	return fees, nil
}

// ResolveFromFeed pulls the latest reading for the market's configured feed
// and resolves with it. A market whose price cannot be obtained within the
// outer horizon settles void instead.
func (s *ResolutionService) ResolveFromFeed(ctx context.Context, marketID string) (domain.FeeBreakdown, error) {
	var m domain.Market
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		var err error
		m, err = tx.Markets.GetByID(ctx, marketID)
		return err
	})
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: resolve %s: %w", marketID, err)
	}

	maxAge := s.resolver.Staleness + time.Since(m.EndTime)
	reading, err := s.prices.Latest(ctx, m.Resolution.FeedID, maxAge)
	if err != nil {
		if s.resolver.PastHorizon(&m, time.Now().UTC()) {
			s.logger.WarnContext(ctx, "resolution_service: price unobtainable past horizon, voiding",
				slog.String("market_id", marketID),
				slog.String("feed_id", m.Resolution.FeedID),
			)
			return s.SettleVoid(ctx, marketID)
		}
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: fetch price for %s: %w", marketID, err)
	}
	return s.ResolveDeterministic(ctx, marketID, reading)
}

// ResolveAttested validates a signed oracle attestation and moves the market
// to the tentative state. Funds do not move until Settle.
func (s *ResolutionService) ResolveAttested(ctx context.Context, marketID string, msg, sig, signerKey []byte) error {
	now := time.Now().UTC()

	var ev domain.Event
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err := tx.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}

		att, err := s.verifier.Verify(&m, msg, sig, signerKey, now)
		if err != nil {
			return err
		}
		if err := engine.MarkTentative(&m, att.Winners, now); err != nil {
			return err
		}
		if err := tx.Markets.Update(ctx, m); err != nil {
			return err
		}

		ev, err = newEvent(domain.EventMarketTentative, marketID, map[string]any{
			"winners": m.Winners,
			"nonce":   att.Nonce,
		})
		if err != nil {
			return err
		}
		return tx.Events.Append(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("resolution_service: attest %s: %w", marketID, err)
	}

	publishEvent(ctx, s.bus, s.logger, ev)
	s.invalidate(ctx, marketID)

	s.logger.InfoContext(ctx, "resolution_service: market tentatively resolved",
		slog.String("market_id", marketID),
	)
	return nil
}

// Settle finalizes a tentatively-resolved market: fees come out, losing
// pools fold into winning pools, and the payout pools freeze. Exactly one
// Settle per market can ever succeed.
func (s *ResolutionService) Settle(ctx context.Context, marketID string) (domain.FeeBreakdown, error) {
	now := time.Now().UTC()

	unlock, err := s.locks.Acquire(ctx, "settle:"+marketID, settleLockTTL)
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: settle %s: %w", marketID, err)
	}
	defer unlock()

	var (
		fees   domain.FeeBreakdown
		events []domain.Event
	)
	err = s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err := tx.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		fees, events, err = s.settleLocked(ctx, tx, &m, now)
		return err
	})
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: settle %s: %w", marketID, err)
	}

	s.afterSettlement(ctx, marketID, fees, events)
	return fees, nil
}

// SettleVoid voids an unresolvable market so every position can refund 1:1.
func (s *ResolutionService) SettleVoid(ctx context.Context, marketID string) (domain.FeeBreakdown, error) {
	now := time.Now().UTC()

	unlock, err := s.locks.Acquire(ctx, "settle:"+marketID, settleLockTTL)
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: void %s: %w", marketID, err)
	}
	defer unlock()

	var (
		fees   domain.FeeBreakdown
		events []domain.Event
	)
	err = s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err := tx.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := engine.MarkVoid(&m, now); err != nil {
			return err
		}
		fees, events, err = s.settleLocked(ctx, tx, &m, now)
		return err
	})
	if err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("resolution_service: void %s: %w", marketID, err)
	}

	s.afterSettlement(ctx, marketID, fees, events)
	return fees, nil
}

// settleLocked runs the settlement transition against the stores of the
// current transaction. The caller holds the per-market lock.
func (s *ResolutionService) settleLocked(ctx context.Context, tx domain.Stores, m *domain.Market, now time.Time) (domain.FeeBreakdown, []domain.Event, error) {
	pools, err := tx.Pools.GetByMarket(ctx, m.ID)
	if err != nil {
		return domain.FeeBreakdown{}, nil, err
	}
	ledger := escrow.LoadLedger(m.ID, m.OutcomeCount(), pools)

	fees, err := engine.Settle(m, ledger, now)
	if err != nil {
		return domain.FeeBreakdown{}, nil, err
	}

	if err := tx.Markets.Update(ctx, *m); err != nil {
		return domain.FeeBreakdown{}, nil, err
	}
	if err := tx.Pools.UpsertBatch(ctx, ledger.Pools()); err != nil {
		return domain.FeeBreakdown{}, nil, err
	}

	evType := domain.EventMarketSettled
	if m.Winners.Kind == domain.WinnersVoid {
		evType = domain.EventMarketVoided
	}
	ev, err := newEvent(evType, m.ID, domain.MarketSettledPayload{
		Pot:      fees.Pot,
		Protocol: fees.Protocol,
		Resolver: fees.Resolver,
		Creator:  fees.Creator,
		Payout:   fees.Payout,
		Void:     m.Winners.Kind == domain.WinnersVoid,
	})
	if err != nil {
		return domain.FeeBreakdown{}, nil, err
	}
	if err := tx.Events.Append(ctx, ev); err != nil {
		return domain.FeeBreakdown{}, nil, err
	}
	return fees, []domain.Event{ev}, nil
}

// afterSettlement performs the best-effort post-commit work: event
// publication, cache invalidation, audit archiving, and notifications.
func (s *ResolutionService) afterSettlement(ctx context.Context, marketID string, fees domain.FeeBreakdown, events []domain.Event) {
	for _, ev := range events {
		publishEvent(ctx, s.bus, s.logger, ev)
	}
	s.invalidate(ctx, marketID)

	var m domain.Market
	if err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		var err error
		m, err = tx.Markets.GetByID(ctx, marketID)
		return err
	}); err != nil {
		s.logger.WarnContext(ctx, "resolution_service: reload for archive failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.archiver != nil {
		path, err := s.archiver.ArchiveSettlement(ctx, domain.SettlementRecord{
			MarketID:   m.ID,
			Question:   m.Question,
			Winners:    m.Winners,
			Fees:       fees,
			Pools:      m.PayoutPools,
			Stakes:     m.StakeSnapshot,
			ResolvedAt: time.Now().UTC(),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "resolution_service: archive failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.DebugContext(ctx, "resolution_service: settlement archived",
				slog.String("market_id", marketID),
				slog.String("path", path),
			)
		}
	}

	if s.notifier != nil {
		title := "Market settled"
		if m.Winners.Kind == domain.WinnersVoid {
			title = "Market voided"
		}
		msg := fmt.Sprintf("%s\npot=%d fees=%d payout=%d", m.Question, fees.Pot, fees.Fees(), fees.Payout)
		if err := s.notifier.Notify(ctx, "market_settled", title, msg); err != nil {
			s.logger.WarnContext(ctx, "resolution_service: notify failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "resolution_service: market settled",
		slog.String("market_id", marketID),
		slog.Uint64("pot", fees.Pot),
		slog.Uint64("fees", fees.Fees()),
		slog.Uint64("payout", fees.Payout),
	)
}

func (s *ResolutionService) invalidate(ctx context.Context, marketID string) {
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "resolution_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// ResolveDue walks open deterministic markets whose end time has passed and
// resolves each from its feed. It is the resolver daemon's periodic tick.
func (s *ResolutionService) ResolveDue(ctx context.Context, limit int) error {
	now := time.Now().UTC()

	var due []domain.Market
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		var err error
		due, err = tx.Markets.ListResolvable(ctx, now, domain.ListOpts{Limit: limit})
		return err
	})
	if err != nil {
		return fmt.Errorf("resolution_service: list due: %w", err)
	}

	for _, m := range due {
		if _, err := s.ResolveFromFeed(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "resolution_service: resolve due failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/engine"
	"github.com/alanyoungcy/parimutuel/internal/escrow"
)

// CreateMarketParams carries everything needed to open a new market.
type CreateMarketParams struct {
	Creator    string
	Resolver   string
	Question   string
	Slug       string
	Asset      string // settlement denomination; defaults to domain.DefaultAsset
	Outcomes   []string
	Resolution domain.Resolution
	EndTime    time.Time
	Fees       domain.FeeSnapshot
}

// MarketService handles market creation, stake deposits, and lookups.
type MarketService struct {
	uow    domain.UnitOfWork
	cache  domain.MarketCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	uow domain.UnitOfWork,
	cache domain.MarketCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		uow:    uow,
		cache:  cache,
		bus:    bus,
		logger: logger,
	}
}

// CreateMarket validates and persists a new market with its empty custody
// pools. The fee snapshot is frozen here; the sum bound is enforced now so
// settlement never needs to clamp.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	now := time.Now().UTC()

	outcomes := make([]domain.Outcome, len(p.Outcomes))
	for i, name := range p.Outcomes {
		outcomes[i] = domain.Outcome{Name: name}
	}
	slug := p.Slug
	if slug == "" {
		slug = slugify(p.Question)
	}
	asset := p.Asset
	if asset == "" {
		asset = domain.DefaultAsset
	}

	m := domain.Market{
		ID:         uuid.New().String(),
		Creator:    p.Creator,
		Resolver:   p.Resolver,
		Question:   p.Question,
		Slug:       slug,
		Asset:      asset,
		Fees:       p.Fees,
		Resolution: p.Resolution,
		Outcomes:   outcomes,
		EndTime:    p.EndTime.UTC().Truncate(time.Second),
		Status:     domain.MarketStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := engine.ValidateMarket(&m, now); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		if err := tx.Markets.Create(ctx, m); err != nil {
			return err
		}
		ledger := escrow.NewLedger(m.ID, len(m.Outcomes))
		return tx.Pools.UpsertBatch(ctx, ledger.Pools())
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create %q: %w", m.Slug, err)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("slug", m.Slug),
		slog.String("mode", string(m.Resolution.Mode)),
		slog.Int("outcomes", len(m.Outcomes)),
	)
	return m, nil
}

// Deposit places stake on an outcome, atomically updating the custody pool,
// the caller's position, and the market's stake counter. The asset names the
// denomination of the transferred funds; a mismatch with the market's
// settlement asset is rejected before any state changes.
func (s *MarketService) Deposit(ctx context.Context, marketID string, outcome int, user string, amount uint64, asset string) error {
	now := time.Now().UTC()

	var ev domain.Event
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err := tx.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}

		pos, err := tx.Positions.Get(ctx, marketID, user)
		if err != nil {
			if err != domain.ErrNotFound {
				return err
			}
			pos = domain.Position{
				ID:        uuid.New().String(),
				MarketID:  marketID,
				User:      user,
				Stakes:    make([]uint64, m.OutcomeCount()),
				CreatedAt: now,
			}
		}

		pools, err := tx.Pools.GetByMarket(ctx, marketID)
		if err != nil {
			return err
		}
		ledger := escrow.LoadLedger(marketID, m.OutcomeCount(), pools)

		if err := engine.Deposit(&m, ledger, &pos, outcome, amount, asset, now); err != nil {
			return err
		}

		if err := tx.Markets.Update(ctx, m); err != nil {
			return err
		}
		if err := tx.Positions.Upsert(ctx, pos); err != nil {
			return err
		}
		if err := tx.Pools.UpsertBatch(ctx, ledger.Pools()); err != nil {
			return err
		}

		ev, err = newEvent(domain.EventDepositAccepted, marketID, domain.DepositAcceptedPayload{
			User:    user,
			Outcome: outcome,
			Amount:  amount,
		})
		if err != nil {
			return err
		}
		return tx.Events.Append(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("market_service: deposit to %s: %w", marketID, err)
	}

	publishEvent(ctx, s.bus, s.logger, ev)
	s.invalidate(ctx, marketID)

	s.logger.InfoContext(ctx, "market_service: deposit accepted",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.Int("outcome", outcome),
		slog.Uint64("amount", amount),
	)
	return nil
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a cache miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	err = s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err = tx.Markets.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListOpen returns open markets directly from the persistent store.
func (s *MarketService) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	var markets []domain.Market
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		var err error
		markets, err = tx.Markets.ListOpen(ctx, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list open: %w", err)
	}
	return markets, nil
}

// CloseMarket removes a settled market once every staked position has
// claimed. This administrative cleanup is the only way market rows die.
func (s *MarketService) CloseMarket(ctx context.Context, marketID string) error {
	err := s.uow.WithinTx(ctx, func(tx domain.Stores) error {
		m, err := tx.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if !m.Settled() {
			return fmt.Errorf("market %s is %s: %w", marketID, m.Status, domain.ErrMarketNotResolved)
		}
		unclaimed, err := tx.Positions.CountUnclaimed(ctx, marketID)
		if err != nil {
			return err
		}
		if unclaimed > 0 {
			return fmt.Errorf("%d positions still unclaimed: %w", unclaimed, domain.ErrTooEarly)
		}
		if err := tx.Positions.DeleteByMarket(ctx, marketID); err != nil {
			return err
		}
		if err := tx.Pools.DeleteByMarket(ctx, marketID); err != nil {
			return err
		}
		return tx.Markets.Delete(ctx, marketID)
	})
	if err != nil {
		return fmt.Errorf("market_service: close %s: %w", marketID, err)
	}

	s.invalidate(ctx, marketID)
	s.logger.InfoContext(ctx, "market_service: market closed",
		slog.String("market_id", marketID),
	)
	return nil
}

func (s *MarketService) invalidate(ctx context.Context, marketID string) {
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func slugify(question string) string {
	s := strings.ToLower(strings.TrimSpace(question))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Package mirror maintains the denormalized read model. It consumes the
// durable engine event stream through a consumer group and rebuilds one view
// row per market, so display surfaces never query the settlement tables.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

const (
	// Group is the consumer group the mirror reads the event stream with.
	Group = "mirror"

	readCount = 64
	readBlock = 5 * time.Second
)

// envelope mirrors the wire form events are published in.
type envelope struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	MarketID string          `json:"market_id"`
	Payload  json.RawMessage `json:"payload"`
}

// Mirror consumes engine events and maintains market view rows.
type Mirror struct {
	bus      domain.SignalBus
	uow      domain.UnitOfWork
	views    domain.MarketViewStore
	stream   string
	consumer string
	logger   *slog.Logger
}

// New creates a Mirror reading the given stream as the named consumer.
func New(bus domain.SignalBus, uow domain.UnitOfWork, views domain.MarketViewStore, stream, consumer string, logger *slog.Logger) *Mirror {
	return &Mirror{
		bus:      bus,
		uow:      uow,
		views:    views,
		stream:   stream,
		consumer: consumer,
		logger:   logger.With(slog.String("component", "mirror")),
	}
}

// Run consumes the event stream until the context is cancelled. Messages are
// acknowledged only after the view row is written, so a crash replays them.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.bus.EnsureGroup(ctx, m.stream, Group); err != nil {
		return fmt.Errorf("mirror: %w", err)
	}

	m.logger.Info("mirror: started", slog.String("stream", m.stream))
	defer m.logger.Info("mirror: stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := m.bus.StreamRead(ctx, m.stream, Group, m.consumer, readCount, readBlock)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			m.logger.Warn("mirror: stream read failed", slog.String("error", err.Error()))
			continue
		}

		for _, msg := range msgs {
			if err := m.apply(ctx, msg.Payload); err != nil {
				m.logger.Error("mirror: apply event failed",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				// Leave unacked for redelivery.
				continue
			}
			if err := m.bus.StreamAck(ctx, m.stream, Group, msg.ID); err != nil {
				m.logger.Warn("mirror: ack failed",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// apply folds one event into the market's view row. Market-shaped fields are
// rebuilt from the store; claim counters accumulate from claim_paid events.
func (m *Mirror) apply(ctx context.Context, raw []byte) error {
	var ev envelope
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if ev.MarketID == "" {
		return nil
	}

	view, err := m.views.Get(ctx, ev.MarketID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		view = domain.MarketView{MarketID: ev.MarketID}
	}

	var market domain.Market
	err = m.uow.WithinTx(ctx, func(tx domain.Stores) error {
		var err error
		market, err = tx.Markets.GetByID(ctx, ev.MarketID)
		return err
	})
	switch {
	case err == nil:
		view.Question = market.Question
		view.Status = string(market.Status)
		view.Pot = stakeTotal(&market)
		view.Winners = winnersLabel(market.Winners)
	case errors.Is(err, domain.ErrNotFound):
		// Market already closed administratively; keep the last known shape.
	default:
		return err
	}

	switch domain.EventType(ev.Type) {
	case domain.EventMarketSettled, domain.EventMarketVoided:
		var p domain.MarketSettledPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode settled payload: %w", err)
		}
		view.Pot = p.Pot
		view.FeesPaid = p.Protocol + p.Resolver + p.Creator
		if p.Void {
			view.Winners = "void"
		}
	case domain.EventClaimPaid:
		var p domain.ClaimPaidPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode claim payload: %w", err)
		}
		view.ClaimCount++
		view.ClaimVolume += p.Amount
	}

	return m.views.Upsert(ctx, view)
}

func stakeTotal(m *domain.Market) uint64 {
	var total uint64
	for _, o := range m.Outcomes {
		total += o.Stake
	}
	return total
}

func winnersLabel(w domain.Winners) string {
	switch w.Kind {
	case domain.WinnersSingle:
		return "single:" + strconv.Itoa(w.Single)
	case domain.WinnersMulti:
		parts := make([]string, len(w.Multi))
		for i, idx := range w.Multi {
			parts[i] = strconv.Itoa(idx)
		}
		return "multi:" + strings.Join(parts, ",")
	case domain.WinnersVoid:
		return "void"
	}
	return ""
}

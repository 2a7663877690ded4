// Package service orchestrates the settlement engine against persistence,
// caching, the signal bus and operator notifications. The engine is the
// in-memory source of truth; services write through to PostgreSQL after each
// successful mutation and treat cache, bus and notification failures as
// non-fatal.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/engine"
	"github.com/quorumlabs/settled/internal/notify"
)

// SettlementArchiver receives the final report for a settled market. The S3
// blob store implements it; tests use a stub.
type SettlementArchiver interface {
	ArchiveSettlement(ctx context.Context, report SettlementReport) error
}

// SettlementReport is the archived record of one finalized market.
type SettlementReport struct {
	Market      domain.Market         `json:"market"`
	Balances    []domain.ClaimBalance `json:"balances"`
	Disputes    []domain.Dispute      `json:"disputes"`
	FinalizedAt time.Time             `json:"finalized_at"`
}

// MarketService handles market registration and lifecycle transitions.
type MarketService struct {
	eng      *engine.Engine
	markets  domain.MarketStore
	disputes domain.DisputeStore
	cache    domain.MarketCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	archiver SettlementArchiver
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
// The archiver may be nil, in which case finalized markets are not archived.
func NewMarketService(
	eng *engine.Engine,
	markets domain.MarketStore,
	disputes domain.DisputeStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	archiver SettlementArchiver,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		eng:      eng,
		markets:  markets,
		disputes: disputes,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// Register creates a new market in the engine and persists it.
func (s *MarketService) Register(ctx context.Context, p engine.RegisterParams) (domain.Market, error) {
	m, err := s.eng.RegisterMarket(ctx, p)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist market %s: %w", m.ID, err)
	}

	s.afterChange(ctx, m, domain.EventMarketRegistered, domain.ChannelMarkets, map[string]any{
		"market_id":     m.ID,
		"event_time":    m.EventTime,
		"outcome_count": m.OutcomeCount,
		"creator":       m.Creator.Hex(),
	})

	s.logger.InfoContext(ctx, "market registered",
		slog.String("market_id", m.ID),
		slog.Time("event_time", m.EventTime),
		slog.Int("outcomes", m.OutcomeCount),
	)
	return m, nil
}

// Resolve pulls the oracle answer and settles the market outcome.
func (s *MarketService) Resolve(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.eng.ResolveMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist market %s: %w", id, err)
	}

	s.afterChange(ctx, m, domain.EventMarketResolved, domain.ChannelMarkets, map[string]any{
		"market_id":       m.ID,
		"winning_outcome": m.WinningOutcome,
	})
	s.notifyEvent(ctx, domain.EventMarketResolved,
		"Market resolved",
		fmt.Sprintf("Market %s resolved to outcome %d", m.ID, m.WinningOutcome))

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", m.ID),
		slog.Int("winning_outcome", m.WinningOutcome),
	)
	return m, nil
}

// Finalize closes the dispute window and locks the market outcome forever.
// The persisted dispute rows are checked alongside the engine's own gate, so
// a market never finalizes past a challenge another instance has durably
// recorded. The settlement report is archived once the new state is durable.
func (s *MarketService) Finalize(ctx context.Context, id string) (domain.Market, error) {
	open, err := s.disputes.ListUnresolved(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: list open disputes %s: %w", id, err)
	}
	if len(open) > 0 {
		return domain.Market{}, domain.ErrUnresolvedDisputes
	}

	m, err := s.eng.FinalizeMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist market %s: %w", id, err)
	}

	s.afterChange(ctx, m, domain.EventMarketFinalized, domain.ChannelMarkets, map[string]any{
		"market_id":       m.ID,
		"winning_outcome": m.WinningOutcome,
	})
	s.notifyEvent(ctx, domain.EventMarketFinalized,
		"Market finalized",
		fmt.Sprintf("Market %s finalized with outcome %d", m.ID, m.WinningOutcome))

	s.archive(ctx, m)

	s.logger.InfoContext(ctx, "market finalized",
		slog.String("market_id", m.ID),
		slog.Int("winning_outcome", m.WinningOutcome),
	)
	return m, nil
}

// Get retrieves a market snapshot. Live markets come straight from the
// engine; unknown IDs fall back to cache and store so reads work in
// server-only deployments that have not rehydrated.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	if m, err := s.eng.Market(id); err == nil {
		return m, nil
	}

	if m, err := s.cache.Get(ctx, id); err == nil {
		return m, nil
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// List returns every market held by the engine.
func (s *MarketService) List(ctx context.Context) []domain.Market {
	return s.eng.Markets()
}

// ListStored returns persisted markets with pagination.
func (s *MarketService) ListStored(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.List(ctx, opts)
}

// Count returns the total number of persisted markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	return s.markets.Count(ctx)
}

// Status derives the lifecycle state of a market at the given time.
func (s *MarketService) Status(id string, now time.Time) (domain.MarketStatus, error) {
	m, err := s.eng.Market(id)
	if err != nil {
		return "", err
	}
	return m.Status(now), nil
}

// IsTradeable reports whether trades may still execute against a market.
func (s *MarketService) IsTradeable(id string) (bool, error) {
	return s.eng.IsTradeable(id)
}

// TimeUntilEvent returns the remaining time before a market's event.
func (s *MarketService) TimeUntilEvent(id string) (time.Duration, error) {
	return s.eng.TimeUntilEvent(id)
}

// CollateralBalance returns the vault custody attributable to a market.
func (s *MarketService) CollateralBalance(id string) (*big.Int, error) {
	return s.eng.CollateralBalance(id)
}

// afterChange refreshes the cache, records the audit entry and publishes the
// event to the signal bus. All three are best-effort.
func (s *MarketService) afterChange(ctx context.Context, m domain.Market, event, channel string, detail map[string]any) {
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(map[string]any{"event": event, "detail": detail})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) notifyEvent(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) archive(ctx context.Context, m domain.Market) {
	if s.archiver == nil {
		return
	}

	balances, err := s.eng.ClaimBalances(m.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "archive: load claim balances failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	disputes, err := s.eng.Disputes(m.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "archive: load disputes failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	report := SettlementReport{
		Market:      m,
		Balances:    balances,
		Disputes:    disputes,
		FinalizedAt: m.UpdatedAt,
	}
	if err := s.archiver.ArchiveSettlement(ctx, report); err != nil {
		s.logger.WarnContext(ctx, "archive settlement failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

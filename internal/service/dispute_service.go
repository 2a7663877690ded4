package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/engine"
	"github.com/quorumlabs/settled/internal/notify"
)

// DisputeService handles stake-gated outcome challenges and their
// adjudication.
type DisputeService struct {
	eng      *engine.Engine
	disputes domain.DisputeStore
	markets  domain.MarketStore
	fees     domain.FeeBalanceStore
	cache    domain.MarketCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewDisputeService creates a DisputeService with all required dependencies.
func NewDisputeService(
	eng *engine.Engine,
	disputes domain.DisputeStore,
	markets domain.MarketStore,
	fees domain.FeeBalanceStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *DisputeService {
	return &DisputeService{
		eng:      eng,
		disputes: disputes,
		markets:  markets,
		fees:     fees,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "dispute_service")),
	}
}

// Submit raises a staked challenge against a market's stored outcome.
func (s *DisputeService) Submit(ctx context.Context, marketID string, challenger common.Address, proposedOutcome int, stake *big.Int) (domain.Dispute, error) {
	d, err := s.eng.SubmitDispute(ctx, marketID, challenger, proposedOutcome, stake)
	if err != nil {
		return domain.Dispute{}, err
	}

	if err := s.disputes.Insert(ctx, d); err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute_service: persist dispute %s: %w", d.ID, err)
	}

	s.record(ctx, domain.EventDisputeSubmitted, map[string]any{
		"dispute_id":       d.ID,
		"market_id":        d.MarketID,
		"challenger":       d.Challenger.Hex(),
		"proposed_outcome": d.ProposedOutcome,
		"stake":            d.Stake.String(),
	})
	s.notifyEvent(ctx, domain.EventDisputeSubmitted,
		"Dispute submitted",
		fmt.Sprintf("Market %s: outcome %d challenged, outcome %d proposed with stake %s",
			d.MarketID, d.ChallengedOutcome, d.ProposedOutcome, d.Stake))

	s.logger.InfoContext(ctx, "dispute submitted",
		slog.String("dispute_id", d.ID),
		slog.String("market_id", d.MarketID),
		slog.Int("proposed_outcome", d.ProposedOutcome),
		slog.String("stake", d.Stake.String()),
	)
	return d, nil
}

// Adjudicate records the verdict for a dispute. An accepted dispute
// overwrites the market's winning outcome, so the market row is re-persisted
// and its cache entry refreshed.
func (s *DisputeService) Adjudicate(ctx context.Context, caller common.Address, marketID, disputeID string, accepted bool) (domain.Dispute, error) {
	d, err := s.eng.ResolveDispute(ctx, caller, marketID, disputeID, accepted)
	if err != nil {
		return domain.Dispute{}, err
	}

	if err := s.disputes.MarkResolved(ctx, d.ID, d.Accepted); err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute_service: persist verdict %s: %w", d.ID, err)
	}

	m, err := s.eng.Market(marketID)
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute_service: reload market %s: %w", marketID, err)
	}
	if err := s.markets.Upsert(ctx, m); err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute_service: persist market %s: %w", marketID, err)
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	s.persistFeeBalance(ctx, m.Collateral)

	verdict := "rejected"
	if d.Accepted {
		verdict = "accepted"
	}
	s.record(ctx, domain.EventDisputeResolved, map[string]any{
		"dispute_id": d.ID,
		"market_id":  d.MarketID,
		"verdict":    verdict,
	})
	s.notifyEvent(ctx, domain.EventDisputeResolved,
		"Dispute "+verdict,
		fmt.Sprintf("Market %s: dispute %s %s", d.MarketID, d.ID, verdict))

	s.logger.InfoContext(ctx, "dispute adjudicated",
		slog.String("dispute_id", d.ID),
		slog.String("market_id", d.MarketID),
		slog.Bool("accepted", d.Accepted),
	)
	return d, nil
}

// List returns every dispute raised against a market.
func (s *DisputeService) List(marketID string) ([]domain.Dispute, error) {
	return s.eng.Disputes(marketID)
}

// Get returns one dispute by ID. Markets this instance has not loaded fall
// back to the persisted dispute row.
func (s *DisputeService) Get(ctx context.Context, marketID, disputeID string) (domain.Dispute, error) {
	d, err := s.eng.Dispute(marketID, disputeID)
	if errors.Is(err, domain.ErrMarketNotFound) {
		stored, storeErr := s.disputes.GetByID(ctx, disputeID)
		if storeErr != nil {
			return domain.Dispute{}, storeErr
		}
		if stored.MarketID != marketID {
			return domain.Dispute{}, domain.ErrDisputeNotFound
		}
		return stored, nil
	}
	return d, err
}

func (s *DisputeService) persistFeeBalance(ctx context.Context, asset common.Address) {
	bal := s.eng.FeeBalance(asset)
	if err := s.fees.Upsert(ctx, domain.FeeBalance{Asset: asset, Balance: bal}); err != nil {
		s.logger.WarnContext(ctx, "persist fee balance failed",
			slog.String("asset", asset.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *DisputeService) record(ctx context.Context, event string, detail map[string]any) {
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
	if err := s.bus.Publish(ctx, domain.ChannelDisputes, payload); err != nil {
		s.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", domain.ChannelDisputes),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.ChannelDisputes, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", domain.ChannelDisputes),
			slog.String("error", err.Error()),
		)
	}
}

func (s *DisputeService) notifyEvent(ctx context.Context, event, title, message string) {
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

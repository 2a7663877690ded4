package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/engine"
)

// FeeService handles venue trade reporting, fee quoting and protocol fee
// withdrawal.
type FeeService struct {
	eng     *engine.Engine
	fees    domain.FeeBalanceStore
	markets domain.MarketStore
	cache   domain.MarketCache
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewFeeService creates a FeeService with all required dependencies.
func NewFeeService(
	eng *engine.Engine,
	fees domain.FeeBalanceStore,
	markets domain.MarketStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *FeeService {
	return &FeeService{
		eng:     eng,
		fees:    fees,
		markets: markets,
		cache:   cache,
		bus:     bus,
		audit:   audit,
		logger:  logger.With(slog.String("component", "fee_service")),
	}
}

// QuoteMultiplier returns the current fee multiplier for a market: the
// venue's base fee scales with proximity to event time.
func (s *FeeService) QuoteMultiplier(marketID string, now time.Time) (float64, error) {
	return s.eng.CurrentFeeMultiplier(marketID, now)
}

// ReportTrade processes a venue's post-trade callback: the protocol skims its
// share of the swap fee and accounts the trade volume.
func (s *FeeService) ReportTrade(ctx context.Context, report domain.TradeReport) error {
	if err := s.eng.ReportTrade(ctx, report); err != nil {
		return err
	}

	m, err := s.eng.Market(report.MarketID)
	if err != nil {
		return fmt.Errorf("fee_service: reload market %s: %w", report.MarketID, err)
	}
	if err := s.markets.Upsert(ctx, m); err != nil {
		return fmt.Errorf("fee_service: persist market %s: %w", report.MarketID, err)
	}
	s.persistFeeBalance(ctx, m.Collateral)

	// The cached snapshot still carries the pre-trade volume.
	if err := s.cache.Invalidate(ctx, m.ID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.DebugContext(ctx, "trade reported",
		slog.String("market_id", report.MarketID),
		slog.String("venue", report.Venue.Hex()),
		slog.String("output", report.OutputAmount.String()),
		slog.Int64("fee_rate_bps", report.FeeRateBps),
	)
	return nil
}

// Withdraw moves accrued protocol fees to the recipient. Only the configured
// owner may withdraw.
func (s *FeeService) Withdraw(ctx context.Context, caller, asset, recipient common.Address, amount *big.Int) error {
	if err := s.eng.WithdrawFees(ctx, caller, asset, recipient, amount); err != nil {
		return err
	}

	s.persistFeeBalance(ctx, asset)

	detail := map[string]any{
		"asset":     asset.Hex(),
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
	}
	if err := s.audit.Log(ctx, domain.EventFeesWithdrawn, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", domain.EventFeesWithdrawn),
			slog.String("error", err.Error()),
		)
	}
	if payload, err := json.Marshal(map[string]any{"event": domain.EventFeesWithdrawn, "detail": detail}); err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
			s.logger.WarnContext(ctx, "bus publish failed",
				slog.String("channel", domain.ChannelSettlements),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "fees withdrawn",
		slog.String("asset", asset.Hex()),
		slog.String("recipient", recipient.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Balance returns the accrued protocol fee balance for one asset.
func (s *FeeService) Balance(asset common.Address) *big.Int {
	return s.eng.FeeBalance(asset)
}

// StoredBalance returns the durably persisted fee balance for one asset. A
// gap against Balance means a write-through was lost and needs operator
// attention. Assets never persisted report zero.
func (s *FeeService) StoredBalance(ctx context.Context, asset common.Address) (*big.Int, error) {
	b, err := s.fees.Get(ctx, asset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return b.Balance, nil
}

// Balances returns the accrued fee balances for every asset.
func (s *FeeService) Balances() []domain.FeeBalance {
	return s.eng.FeeBalances()
}

func (s *FeeService) persistFeeBalance(ctx context.Context, asset common.Address) {
	bal := s.eng.FeeBalance(asset)
	if err := s.fees.Upsert(ctx, domain.FeeBalance{Asset: asset, Balance: bal}); err != nil {
		s.logger.WarnContext(ctx, "persist fee balance failed",
			slog.String("asset", asset.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

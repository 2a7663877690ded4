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
)

// LedgerService handles complete-set minting, burning and redemption, and
// persists the claim-balance table after each mutation.
type LedgerService struct {
	eng     *engine.Engine
	claims  domain.ClaimBalanceStore
	markets domain.MarketStore
	fees    domain.FeeBalanceStore
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewLedgerService creates a LedgerService with all required dependencies.
func NewLedgerService(
	eng *engine.Engine,
	claims domain.ClaimBalanceStore,
	markets domain.MarketStore,
	fees domain.FeeBalanceStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		eng:     eng,
		claims:  claims,
		markets: markets,
		fees:    fees,
		bus:     bus,
		audit:   audit,
		logger:  logger.With(slog.String("component", "ledger_service")),
	}
}

// Mint locks caller collateral and credits one claim per outcome.
func (s *LedgerService) Mint(ctx context.Context, marketID string, caller common.Address, amount *big.Int) error {
	if err := s.eng.MintSet(ctx, marketID, caller, amount); err != nil {
		return err
	}

	if err := s.persistHolder(ctx, marketID, caller); err != nil {
		return fmt.Errorf("ledger_service: persist mint %s: %w", marketID, err)
	}

	s.record(ctx, domain.EventSetMinted, map[string]any{
		"market_id": marketID,
		"holder":    caller.Hex(),
		"amount":    amount.String(),
	})

	s.logger.InfoContext(ctx, "complete set minted",
		slog.String("market_id", marketID),
		slog.String("holder", caller.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Burn debits one claim per outcome and releases the caller's collateral.
func (s *LedgerService) Burn(ctx context.Context, marketID string, caller common.Address, amount *big.Int) error {
	if err := s.eng.BurnSet(ctx, marketID, caller, amount); err != nil {
		return err
	}

	if err := s.persistHolder(ctx, marketID, caller); err != nil {
		return fmt.Errorf("ledger_service: persist burn %s: %w", marketID, err)
	}

	s.record(ctx, domain.EventSetBurned, map[string]any{
		"market_id": marketID,
		"holder":    caller.Hex(),
		"amount":    amount.String(),
	})

	s.logger.InfoContext(ctx, "complete set burned",
		slog.String("market_id", marketID),
		slog.String("holder", caller.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Redeem pays out winning claims after finalization, net of the resolution
// fee. It returns the payout amount.
func (s *LedgerService) Redeem(ctx context.Context, marketID string, holder common.Address, amount *big.Int) (*big.Int, error) {
	payout, err := s.eng.RedeemWinningTokens(ctx, marketID, holder, amount)
	if err != nil {
		return nil, err
	}

	// Redemption debits only the winning outcome, so a single-row write is
	// enough. The resolution fee landed in the fee book and must reach the
	// durable balance too, or a restart replays a stale figure.
	m, err := s.eng.Market(marketID)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: reload market %s: %w", marketID, err)
	}
	bal, err := s.eng.OutcomeBalance(marketID, m.WinningOutcome, holder)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: reload balance %s: %w", marketID, err)
	}
	err = s.claims.Upsert(ctx, domain.ClaimBalance{
		MarketID: marketID,
		Outcome:  m.WinningOutcome,
		Holder:   holder,
		Balance:  bal,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger_service: persist redemption %s: %w", marketID, err)
	}
	s.persistFeeBalance(ctx, m.Collateral)

	s.record(ctx, domain.EventRedemption, map[string]any{
		"market_id": marketID,
		"holder":    holder.Hex(),
		"amount":    amount.String(),
		"payout":    payout.String(),
	})

	s.logger.InfoContext(ctx, "winning claims redeemed",
		slog.String("market_id", marketID),
		slog.String("holder", holder.Hex()),
		slog.String("amount", amount.String()),
		slog.String("payout", payout.String()),
	)
	return payout, nil
}

// OutcomeBalance returns a holder's balance of one outcome claim.
func (s *LedgerService) OutcomeBalance(marketID string, outcome int, holder common.Address) (*big.Int, error) {
	return s.eng.OutcomeBalance(marketID, outcome, holder)
}

// CompleteSetBalance returns the number of complete sets a holder could burn.
func (s *LedgerService) CompleteSetBalance(marketID string, holder common.Address) (*big.Int, error) {
	return s.eng.CompleteSetBalance(marketID, holder)
}

// OutcomeClaimRef returns the stable claim identifier for one outcome.
func (s *LedgerService) OutcomeClaimRef(marketID string, outcome int) (domain.OutcomeClaim, error) {
	return s.eng.OutcomeClaimRef(marketID, outcome)
}

// Balances returns a snapshot of every claim balance row for a market.
func (s *LedgerService) Balances(marketID string) ([]domain.ClaimBalance, error) {
	return s.eng.ClaimBalances(marketID)
}

// HolderBalances returns one holder's per-outcome balances. Live markets come
// from the engine; unknown IDs fall back to the persisted table so reads work
// for markets this instance has not loaded.
func (s *LedgerService) HolderBalances(ctx context.Context, marketID string, holder common.Address) ([]domain.ClaimBalance, error) {
	n, err := s.eng.OutcomeCount(marketID)
	if errors.Is(err, domain.ErrMarketNotFound) {
		return s.claims.ListByHolder(ctx, marketID, holder)
	}
	if err != nil {
		return nil, err
	}

	rows := make([]domain.ClaimBalance, 0, n)
	for outcome := 0; outcome < n; outcome++ {
		bal, err := s.eng.OutcomeBalance(marketID, outcome, holder)
		if err != nil {
			return nil, err
		}
		rows = append(rows, domain.ClaimBalance{
			MarketID: marketID,
			Outcome:  outcome,
			Holder:   holder,
			Balance:  bal,
		})
	}
	return rows, nil
}

// persistHolder writes the holder's current per-outcome balances through to
// the claim-balance table in one batch.
func (s *LedgerService) persistHolder(ctx context.Context, marketID string, holder common.Address) error {
	n, err := s.eng.OutcomeCount(marketID)
	if err != nil {
		return err
	}

	rows := make([]domain.ClaimBalance, 0, n)
	for outcome := 0; outcome < n; outcome++ {
		bal, err := s.eng.OutcomeBalance(marketID, outcome, holder)
		if err != nil {
			return err
		}
		rows = append(rows, domain.ClaimBalance{
			MarketID: marketID,
			Outcome:  outcome,
			Holder:   holder,
			Balance:  bal,
		})
	}
	return s.claims.UpsertBatch(ctx, rows)
}

func (s *LedgerService) persistFeeBalance(ctx context.Context, asset common.Address) {
	bal := s.eng.FeeBalance(asset)
	if err := s.fees.Upsert(ctx, domain.FeeBalance{Asset: asset, Balance: bal}); err != nil {
		s.logger.WarnContext(ctx, "persist fee balance failed",
			slog.String("asset", asset.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// record writes the audit entry and publishes the event on the settlements
// channel. Both are best-effort.
func (s *LedgerService) record(ctx context.Context, event string, detail map[string]any) {
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
	if err := s.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
		s.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", domain.ChannelSettlements),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.ChannelSettlements, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", domain.ChannelSettlements),
			slog.String("error", err.Error()),
		)
	}
}

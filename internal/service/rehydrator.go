package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quorumlabs/settled/internal/collateral"
	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/engine"
	"github.com/quorumlabs/settled/internal/oracle"
)

// Rehydrator reloads persisted engine state on startup: the collateral vault,
// markets with their claim balances and disputes, then the per-asset fee
// balances. Markets whose oracle reference is not registered are skipped with
// a warning; finalized markets no longer need a live oracle and rehydrate
// with a nil handle.
type Rehydrator struct {
	eng      *engine.Engine
	vault    *collateral.Bank
	markets  domain.MarketStore
	claims   domain.ClaimBalanceStore
	disputes domain.DisputeStore
	fees     domain.FeeBalanceStore
	oracles  *oracle.Registry
	logger   *slog.Logger
}

// NewRehydrator creates a Rehydrator with all required dependencies.
func NewRehydrator(
	eng *engine.Engine,
	vault *collateral.Bank,
	markets domain.MarketStore,
	claims domain.ClaimBalanceStore,
	disputes domain.DisputeStore,
	fees domain.FeeBalanceStore,
	oracles *oracle.Registry,
	logger *slog.Logger,
) *Rehydrator {
	return &Rehydrator{
		eng:      eng,
		vault:    vault,
		markets:  markets,
		claims:   claims,
		disputes: disputes,
		fees:     fees,
		oracles:  oracles,
		logger:   logger.With(slog.String("component", "rehydrator")),
	}
}

// Run restores the vault, loads every persisted market into the engine and
// restores the fee balances. It returns the number of markets restored.
func (r *Rehydrator) Run(ctx context.Context) (int, error) {
	if err := r.vault.Load(ctx); err != nil {
		return 0, fmt.Errorf("rehydrate: vault: %w", err)
	}

	markets, err := r.markets.List(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("rehydrate: list markets: %w", err)
	}

	restored := 0
	for _, m := range markets {
		orc, err := r.oracles.Lookup(m.OracleRef)
		if err != nil {
			if !m.Finalized {
				r.logger.WarnContext(ctx, "skipping market with unknown oracle",
					slog.String("market_id", m.ID),
					slog.String("oracle_ref", m.OracleRef.Hex()),
				)
				continue
			}
			// Finalized markets never consult the oracle again.
			orc = nil
		}

		claims, err := r.claims.ListByMarket(ctx, m.ID)
		if err != nil {
			return restored, fmt.Errorf("rehydrate: claims for %s: %w", m.ID, err)
		}
		disputes, err := r.disputes.ListByMarket(ctx, m.ID)
		if err != nil {
			return restored, fmt.Errorf("rehydrate: disputes for %s: %w", m.ID, err)
		}

		if err := r.eng.RestoreMarket(m, orc, claims, disputes); err != nil {
			if errors.Is(err, domain.ErrMarketExists) {
				continue
			}
			return restored, fmt.Errorf("rehydrate: restore %s: %w", m.ID, err)
		}
		restored++
	}

	fees, err := r.fees.List(ctx)
	if err != nil {
		return restored, fmt.Errorf("rehydrate: list fee balances: %w", err)
	}
	r.eng.RestoreFees(fees)

	r.logger.InfoContext(ctx, "engine state rehydrated",
		slog.Int("markets", restored),
		slog.Int("fee_assets", len(fees)),
	)
	return restored, nil
}

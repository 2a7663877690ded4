package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/quorumlabs/settled/internal/server"
	"github.com/quorumlabs/settled/internal/server/handler"
	"github.com/quorumlabs/settled/internal/server/ws"
	"github.com/quorumlabs/settled/internal/service"
)

// rehydrateLockTTL bounds how long the startup lock is held if an instance
// dies mid-rehydration.
const rehydrateLockTTL = 2 * time.Minute

// ServerMode runs the HTTP and WebSocket API without settlement report
// archival.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.serve(ctx, deps)
}

// FullMode runs the HTTP and WebSocket API with settlement report archival
// to object storage.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.serve(ctx, deps)
}

// serve rehydrates the engine from the store, builds the service and handler
// stack, and runs the HTTP server and WebSocket hub until the context is
// cancelled.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	if err := a.rehydrate(ctx, deps); err != nil {
		return fmt.Errorf("app: rehydrate: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// A nil *Archiver must stay a nil interface so the market service skips
	// archival instead of calling through a nil pointer.
	var archiver service.SettlementArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	adjudicator := common.HexToAddress(a.cfg.Engine.Adjudicator)
	owner := common.HexToAddress(a.cfg.Engine.Owner)

	marketSvc := service.NewMarketService(
		deps.Engine, deps.MarketStore, deps.DisputeStore, deps.MarketCache,
		deps.SignalBus, deps.AuditStore, deps.Notifier, archiver, a.logger,
	)
	ledgerSvc := service.NewLedgerService(
		deps.Engine, deps.ClaimStore, deps.MarketStore, deps.FeeStore,
		deps.SignalBus, deps.AuditStore, a.logger,
	)
	disputeSvc := service.NewDisputeService(
		deps.Engine, deps.DisputeStore, deps.MarketStore, deps.FeeStore,
		deps.MarketCache, deps.SignalBus, deps.AuditStore, deps.Notifier, a.logger,
	)
	feeSvc := service.NewFeeService(
		deps.Engine, deps.FeeStore, deps.MarketStore, deps.MarketCache,
		deps.SignalBus, deps.AuditStore, a.logger,
	)
	oracleSvc := service.NewOracleService(
		deps.Oracles, adjudicator, owner, deps.AuditStore, a.logger,
	)
	collateralSvc := service.NewCollateralService(
		deps.Vault, owner, deps.AuditStore, a.logger,
	)

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Markets:    handler.NewMarketHandler(marketSvc, deps.Oracles, a.logger),
		Ledger:     handler.NewLedgerHandler(ledgerSvc, a.logger),
		Disputes:   handler.NewDisputeHandler(disputeSvc, a.logger),
		Fees:       handler.NewFeeHandler(feeSvc, a.logger),
		Oracles:    handler.NewOracleHandler(oracleSvc, a.logger),
		Collateral: handler.NewCollateralHandler(collateralSvc, a.logger),
		Audit:      handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.Reports != nil {
		handlers.Settlements = handler.NewSettlementHandler(deps.Reports, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		RatePerMinute: a.cfg.Server.RatePerMinute,
		VenueSecret:   a.cfg.Server.VenueSecret,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// rehydrate replays persisted markets, claims, disputes and fee balances into
// the engine. A distributed startup lock keeps concurrent instances from
// replaying at the same time.
func (a *App) rehydrate(ctx context.Context, deps *Dependencies) error {
	unlock, err := deps.LockManager.Acquire(ctx, "startup:rehydrate", rehydrateLockTTL)
	if err != nil {
		return fmt.Errorf("acquire startup lock: %w", err)
	}
	defer unlock()

	rehydrator := service.NewRehydrator(
		deps.Engine, deps.Vault, deps.MarketStore, deps.ClaimStore,
		deps.DisputeStore, deps.FeeStore, deps.Oracles, a.logger,
	)

	restored, err := rehydrator.Run(ctx)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "engine state rehydrated",
		slog.Int("markets", restored),
	)
	return nil
}

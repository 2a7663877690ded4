// Package server provides the HTTP and WebSocket API for the settlement
// engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quorumlabs/settled/internal/crypto"
	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/server/handler"
	"github.com/quorumlabs/settled/internal/server/middleware"
	"github.com/quorumlabs/settled/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	RatePerMinute int    // if zero, rate limiting is disabled
	VenueSecret   string // if empty, venue report signatures are not checked
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Ledger     *handler.LedgerHandler
	Disputes   *handler.DisputeHandler
	Fees       *handler.FeeHandler
	Oracles    *handler.OracleHandler
	Collateral *handler.CollateralHandler
	Audit      *handler.AuditHandler

	// Settlements is nil when no blob store is configured; the archived
	// report routes are then not registered.
	Settlements *handler.SettlementHandler
}

// Server is the headless HTTP + WebSocket API server for the settlement
// engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. The limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.RegisterMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/status", handlers.Markets.GetMarketStatus)
	mux.HandleFunc("GET /api/markets/{id}/collateral", handlers.Markets.GetCollateral)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/finalize", handlers.Markets.FinalizeMarket)

	// Claim ledger.
	mux.HandleFunc("POST /api/markets/{id}/mint", handlers.Ledger.MintSet)
	mux.HandleFunc("POST /api/markets/{id}/burn", handlers.Ledger.BurnSet)
	mux.HandleFunc("POST /api/markets/{id}/redeem", handlers.Ledger.Redeem)
	mux.HandleFunc("GET /api/markets/{id}/balances", handlers.Ledger.ListBalances)
	mux.HandleFunc("GET /api/markets/{id}/claims/{outcome}", handlers.Ledger.GetClaim)

	// Disputes.
	mux.HandleFunc("GET /api/markets/{id}/disputes", handlers.Disputes.ListDisputes)
	mux.HandleFunc("POST /api/markets/{id}/disputes", handlers.Disputes.SubmitDispute)
	mux.HandleFunc("GET /api/markets/{id}/disputes/{disputeID}", handlers.Disputes.GetDispute)
	mux.HandleFunc("POST /api/markets/{id}/disputes/{disputeID}/adjudicate", handlers.Disputes.AdjudicateDispute)

	// Oracles.
	mux.HandleFunc("GET /api/oracles", handlers.Oracles.ListOracles)
	mux.HandleFunc("POST /api/oracles/{ref}/settle", handlers.Oracles.SettleOracle)

	// Collateral vault.
	mux.HandleFunc("POST /api/collateral/deposit", handlers.Collateral.Deposit)
	mux.HandleFunc("GET /api/collateral/{asset}/custody", handlers.Collateral.GetCustody)
	mux.HandleFunc("GET /api/collateral/{asset}/{holder}", handlers.Collateral.GetBalance)

	// Fees and venue callbacks.
	mux.HandleFunc("GET /api/markets/{id}/fee-multiplier", handlers.Fees.GetFeeMultiplier)
	mux.HandleFunc("GET /api/fees", handlers.Fees.ListFeeBalances)
	mux.HandleFunc("GET /api/fees/{asset}", handlers.Fees.GetFeeBalance)
	mux.HandleFunc("POST /api/fees/withdraw", handlers.Fees.WithdrawFees)

	mux.HandleFunc("GET /api/venue/quote", handlers.Fees.QuoteFee)

	// Venue callbacks carry their own HMAC signature when a shared secret is
	// configured.
	var reportRoute http.Handler = http.HandlerFunc(handlers.Fees.ReportTrade)
	if cfg.VenueSecret != "" {
		auth := &crypto.VenueAuth{Secret: cfg.VenueSecret}
		reportRoute = middleware.VenueSignature(auth)(reportRoute)
	}
	mux.Handle("POST /api/venue/report", reportRoute)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAuditEntries)

	// Archived settlement reports.
	if handlers.Settlements != nil {
		mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListReports)
		mux.HandleFunc("GET /api/settlements/{id}", handlers.Settlements.GetReport)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting.
	if limiter != nil && cfg.RatePerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RatePerMinute, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0 // allow all if none specified
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/engine"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Register(ctx context.Context, p engine.RegisterParams) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	ListStored(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Resolve(ctx context.Context, id string) (domain.Market, error)
	Finalize(ctx context.Context, id string) (domain.Market, error)
	Status(id string, now time.Time) (domain.MarketStatus, error)
	IsTradeable(id string) (bool, error)
	TimeUntilEvent(id string) (time.Duration, error)
	CollateralBalance(id string) (*big.Int, error)
}

// OracleDirectory resolves oracle reference addresses to live oracle handles.
type OracleDirectory interface {
	Lookup(ref common.Address) (domain.Oracle, error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	oracles OracleDirectory
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given dependencies.
func NewMarketHandler(markets MarketService, oracles OracleDirectory, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		oracles: oracles,
		logger:  logger,
	}
}

// registerMarketRequest is the POST /api/markets payload.
type registerMarketRequest struct {
	ID           string    `json:"id"`
	EventTime    time.Time `json:"event_time"`
	OracleRef    string    `json:"oracle_ref"`
	OutcomeCount int       `json:"outcome_count"`
	Creator      string    `json:"creator"`
	Collateral   string    `json:"collateral"`
}

// RegisterMarket creates a new market.
// POST /api/markets
func (h *MarketHandler) RegisterMarket(w http.ResponseWriter, r *http.Request) {
	var req registerMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	oracleRef, err := parseAddress(req.OracleRef)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creator, err := parseAddress(req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateral, err := parseAddress(req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orc, err := h.oracles.Lookup(oracleRef)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown oracle reference")
		return
	}

	m, err := h.markets.Register(r.Context(), engine.RegisterParams{
		ID:           req.ID,
		EventTime:    req.EventTime,
		Oracle:       orc,
		OutcomeCount: req.OutcomeCount,
		Creator:      creator,
		Collateral:   collateral,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns persisted markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListStored(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.markets.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// GetMarketStatus returns the derived lifecycle state plus trading info.
// GET /api/markets/{id}/status
func (h *MarketHandler) GetMarketStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	status, err := h.markets.Status(id, time.Now())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	tradeable, err := h.markets.IsTradeable(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	remaining, err := h.markets.TimeUntilEvent(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":          id,
		"status":             status,
		"tradeable":          tradeable,
		"seconds_until_event": int64(remaining.Seconds()),
	})
}

// GetCollateral returns the vault custody attributable to a market.
// GET /api/markets/{id}/collateral
func (h *MarketHandler) GetCollateral(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	bal, err := h.markets.CollateralBalance(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":  id,
		"collateral": bal.String(),
	})
}

// ResolveMarket settles the market outcome from its oracle.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	m, err := h.markets.Resolve(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// FinalizeMarket closes the dispute window and locks the outcome.
// POST /api/markets/{id}/finalize
func (h *MarketHandler) FinalizeMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	m, err := h.markets.Finalize(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// FeeService defines the methods the fee handler requires from the service
// layer.
type FeeService interface {
	QuoteMultiplier(marketID string, now time.Time) (float64, error)
	ReportTrade(ctx context.Context, report domain.TradeReport) error
	Withdraw(ctx context.Context, caller, asset, recipient common.Address, amount *big.Int) error
	Balances() []domain.FeeBalance
	Balance(asset common.Address) *big.Int
	StoredBalance(ctx context.Context, asset common.Address) (*big.Int, error)
}

// FeeHandler serves fee quoting, venue reporting and withdrawal endpoints.
type FeeHandler struct {
	fees   FeeService
	logger *slog.Logger
}

// NewFeeHandler creates a FeeHandler with the given service and logger.
func NewFeeHandler(fees FeeService, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{
		fees:   fees,
		logger: logger,
	}
}

// GetFeeMultiplier quotes the current fee multiplier for a market.
// GET /api/markets/{id}/fee-multiplier
func (h *FeeHandler) GetFeeMultiplier(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	mult, err := h.fees.QuoteMultiplier(id, time.Now())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":  id,
		"multiplier": mult,
	})
}

// QuoteFee is the venue-facing fee quote: same multiplier as the market
// route, addressed by query parameter so venues need no path templating.
// GET /api/venue/quote?market_id=...
func (h *FeeHandler) QuoteFee(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("market_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "market_id query parameter is required")
		return
	}

	mult, err := h.fees.QuoteMultiplier(id, time.Now())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":  id,
		"multiplier": mult,
	})
}

// tradeReportRequest is the venue's post-trade callback payload.
type tradeReportRequest struct {
	MarketID     string `json:"market_id"`
	Venue        string `json:"venue"`
	OutputAmount string `json:"output_amount"`
	FeeRateBps   int64  `json:"fee_rate_bps"`
}

// ReportTrade processes a venue's post-trade callback.
// POST /api/venue/report
func (h *FeeHandler) ReportTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	venue, err := parseAddress(req.Venue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	output, err := parseAmount(req.OutputAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.fees.ReportTrade(r.Context(), domain.TradeReport{
		MarketID:     req.MarketID,
		Venue:        venue,
		OutputAmount: output,
		FeeRateBps:   req.FeeRateBps,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "recorded"})
}

// feeBalanceView renders a fee balance with a string amount.
type feeBalanceView struct {
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

// ListFeeBalances returns the accrued protocol fee balances.
// GET /api/fees
func (h *FeeHandler) ListFeeBalances(w http.ResponseWriter, r *http.Request) {
	balances := h.fees.Balances()

	views := make([]feeBalanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, feeBalanceView{
			Asset:   b.Asset.Hex(),
			Balance: b.Balance.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"fees": views})
}

// GetFeeBalance returns the live and durably stored fee balance for one
// asset, so operators can spot a write-through that was lost.
// GET /api/fees/{asset}
func (h *FeeHandler) GetFeeBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(pathParam(r, "asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.fees.StoredBalance(r.Context(), asset)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":          asset.Hex(),
		"balance":        h.fees.Balance(asset).String(),
		"stored_balance": stored.String(),
	})
}

// withdrawRequest is the fee withdrawal payload.
type withdrawRequest struct {
	Caller    string `json:"caller"`
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// WithdrawFees moves accrued protocol fees to the recipient.
// POST /api/fees/withdraw
func (h *FeeHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.fees.Withdraw(r.Context(), caller, asset, recipient, amount); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":     asset.Hex(),
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
	})
}

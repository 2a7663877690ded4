package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// LedgerService defines the methods the ledger handler requires from the
// service layer.
type LedgerService interface {
	Mint(ctx context.Context, marketID string, caller common.Address, amount *big.Int) error
	Burn(ctx context.Context, marketID string, caller common.Address, amount *big.Int) error
	Redeem(ctx context.Context, marketID string, holder common.Address, amount *big.Int) (*big.Int, error)
	Balances(marketID string) ([]domain.ClaimBalance, error)
	HolderBalances(ctx context.Context, marketID string, holder common.Address) ([]domain.ClaimBalance, error)
	CompleteSetBalance(marketID string, holder common.Address) (*big.Int, error)
	OutcomeClaimRef(marketID string, outcome int) (domain.OutcomeClaim, error)
}

// LedgerHandler serves complete-set mint/burn/redeem endpoints.
type LedgerHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler with the given service and logger.
func NewLedgerHandler(ledger LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		logger: logger,
	}
}

// setRequest is the shared payload for mint, burn and redeem.
type setRequest struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

func (h *LedgerHandler) decodeSetRequest(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, bool) {
	var req setRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, nil, false
	}

	holder, err := parseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, nil, false
	}
	return holder, amount, true
}

// MintSet locks collateral and credits a full set of outcome claims.
// POST /api/markets/{id}/mint
func (h *LedgerHandler) MintSet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	holder, amount, ok := h.decodeSetRequest(w, r)
	if !ok {
		return
	}

	if err := h.ledger.Mint(r.Context(), id, holder, amount); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"holder":    holder.Hex(),
		"minted":    amount.String(),
	})
}

// BurnSet debits a full set of outcome claims and releases collateral.
// POST /api/markets/{id}/burn
func (h *LedgerHandler) BurnSet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	holder, amount, ok := h.decodeSetRequest(w, r)
	if !ok {
		return
	}

	if err := h.ledger.Burn(r.Context(), id, holder, amount); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"holder":    holder.Hex(),
		"burned":    amount.String(),
	})
}

// Redeem pays out winning claims after finalization.
// POST /api/markets/{id}/redeem
func (h *LedgerHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	holder, amount, ok := h.decodeSetRequest(w, r)
	if !ok {
		return
	}

	payout, err := h.ledger.Redeem(r.Context(), id, holder, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"holder":    holder.Hex(),
		"redeemed":  amount.String(),
		"payout":    payout.String(),
	})
}

// claimBalanceView renders a claim balance row with a string amount.
type claimBalanceView struct {
	MarketID string `json:"market_id"`
	Outcome  int    `json:"outcome"`
	Holder   string `json:"holder"`
	Balance  string `json:"balance"`
}

// ListBalances returns a market's claim balances, optionally filtered by
// holder.
// GET /api/markets/{id}/balances?holder=0x...
func (h *LedgerHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var (
		balances []domain.ClaimBalance
		err      error
	)
	if s := r.URL.Query().Get("holder"); s != "" {
		holder, parseErr := parseAddress(s)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		balances, err = h.ledger.HolderBalances(r.Context(), id, holder)
	} else {
		balances, err = h.ledger.Balances(id)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]claimBalanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, claimBalanceView{
			MarketID: b.MarketID,
			Outcome:  b.Outcome,
			Holder:   b.Holder.Hex(),
			Balance:  b.Balance.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"balances":  views,
	})
}

// GetClaim returns the stable claim identifier for one outcome.
// GET /api/markets/{id}/claims/{outcome}
func (h *LedgerHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	outcome, err := parseOutcome(pathParam(r, "outcome"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claim, err := h.ledger.OutcomeClaimRef(id, outcome)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

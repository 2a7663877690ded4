package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralService defines the methods the collateral handler requires from
// the service layer.
type CollateralService interface {
	Deposit(ctx context.Context, caller, asset, holder common.Address, amount *big.Int) error
	Balance(asset, holder common.Address) *big.Int
	Custody(ctx context.Context, asset common.Address) (*big.Int, error)
}

// CollateralHandler serves vault funding and balance endpoints.
type CollateralHandler struct {
	collateral CollateralService
	logger     *slog.Logger
}

// NewCollateralHandler creates a CollateralHandler with the given service and
// logger.
func NewCollateralHandler(collateral CollateralService, logger *slog.Logger) *CollateralHandler {
	return &CollateralHandler{
		collateral: collateral,
		logger:     logger,
	}
}

// depositRequest is the vault funding payload.
type depositRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

// Deposit credits a holder's vault account.
// POST /api/collateral/deposit
func (h *CollateralHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
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
	holder, err := parseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.collateral.Deposit(r.Context(), caller, asset, holder, amount); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":   asset.Hex(),
		"holder":  holder.Hex(),
		"balance": h.collateral.Balance(asset, holder).String(),
	})
}

// GetBalance returns a holder's free balance of an asset.
// GET /api/collateral/{asset}/{holder}
func (h *CollateralHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(pathParam(r, "asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	holder, err := parseAddress(pathParam(r, "holder"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":   asset.Hex(),
		"holder":  holder.Hex(),
		"balance": h.collateral.Balance(asset, holder).String(),
	})
}

// GetCustody returns the engine custody total for an asset.
// GET /api/collateral/{asset}/custody
func (h *CollateralHandler) GetCustody(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(pathParam(r, "asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	custody, err := h.collateral.Custody(r.Context(), asset)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":   asset.Hex(),
		"custody": custody.String(),
	})
}

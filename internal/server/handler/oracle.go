package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OracleService defines the methods the oracle handler requires from the
// service layer.
type OracleService interface {
	Refs() []common.Address
	Settle(ctx context.Context, caller, ref common.Address, answer int64, settledAt time.Time) error
}

// OracleHandler serves oracle listing and manual settlement endpoints.
type OracleHandler struct {
	oracles OracleService
	logger  *slog.Logger
}

// NewOracleHandler creates an OracleHandler with the given service and logger.
func NewOracleHandler(oracles OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracles: oracles,
		logger:  logger,
	}
}

// ListOracles returns every registered oracle reference.
// GET /api/oracles
func (h *OracleHandler) ListOracles(w http.ResponseWriter, r *http.Request) {
	refs := h.oracles.Refs()

	views := make([]string, 0, len(refs))
	for _, ref := range refs {
		views = append(views, ref.Hex())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"oracles": views,
		"total":   len(views),
	})
}

// settleOracleRequest is the manual settlement payload. SettledAt defaults to
// the current time when omitted.
type settleOracleRequest struct {
	Caller    string     `json:"caller"`
	Answer    int64      `json:"answer"`
	SettledAt *time.Time `json:"settled_at"`
}

// SettleOracle records the observed outcome on a manual oracle.
// POST /api/oracles/{ref}/settle
func (h *OracleHandler) SettleOracle(w http.ResponseWriter, r *http.Request) {
	ref, err := parseAddress(pathParam(r, "ref"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req settleOracleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	settledAt := time.Now().UTC()
	if req.SettledAt != nil {
		settledAt = *req.SettledAt
	}

	if err := h.oracles.Settle(r.Context(), caller, ref, req.Answer, settledAt); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"oracle_ref": ref.Hex(),
		"answer":     req.Answer,
		"settled_at": settledAt,
	})
}

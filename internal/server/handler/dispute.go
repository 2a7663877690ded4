package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// DisputeService defines the methods the dispute handler requires from the
// service layer.
type DisputeService interface {
	Submit(ctx context.Context, marketID string, challenger common.Address, proposedOutcome int, stake *big.Int) (domain.Dispute, error)
	Adjudicate(ctx context.Context, caller common.Address, marketID, disputeID string, accepted bool) (domain.Dispute, error)
	List(marketID string) ([]domain.Dispute, error)
	Get(ctx context.Context, marketID, disputeID string) (domain.Dispute, error)
}

// DisputeHandler serves dispute submission and adjudication endpoints.
type DisputeHandler struct {
	disputes DisputeService
	logger   *slog.Logger
}

// NewDisputeHandler creates a DisputeHandler with the given service and logger.
func NewDisputeHandler(disputes DisputeService, logger *slog.Logger) *DisputeHandler {
	return &DisputeHandler{
		disputes: disputes,
		logger:   logger,
	}
}

// submitDisputeRequest is the POST /api/markets/{id}/disputes payload.
type submitDisputeRequest struct {
	Challenger      string `json:"challenger"`
	ProposedOutcome int    `json:"proposed_outcome"`
	Stake           string `json:"stake"`
}

// SubmitDispute raises a staked challenge against a market's outcome.
// POST /api/markets/{id}/disputes
func (h *DisputeHandler) SubmitDispute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req submitDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	challenger, err := parseAddress(req.Challenger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stake, err := parseAmount(req.Stake)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.disputes.Submit(r.Context(), id, challenger, req.ProposedOutcome, stake)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

// ListDisputes returns every dispute raised against a market.
// GET /api/markets/{id}/disputes
func (h *DisputeHandler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	disputes, err := h.disputes.List(id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"disputes":  disputes,
	})
}

// GetDispute returns one dispute by ID.
// GET /api/markets/{id}/disputes/{disputeID}
func (h *DisputeHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	disputeID := pathParam(r, "disputeID")

	d, err := h.disputes.Get(r.Context(), id, disputeID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// adjudicateRequest is the adjudication payload.
type adjudicateRequest struct {
	Caller   string `json:"caller"`
	Accepted bool   `json:"accepted"`
}

// AdjudicateDispute records the verdict for a dispute.
// POST /api/markets/{id}/disputes/{disputeID}/adjudicate
func (h *DisputeHandler) AdjudicateDispute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	disputeID := pathParam(r, "disputeID")

	var req adjudicateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.disputes.Adjudicate(r.Context(), caller, id, disputeID, req.Accepted)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/quorumlabs/settled/internal/domain"
)

// SettlementReports defines the archived-report access the settlement
// handler requires. The S3 report reader satisfies it.
type SettlementReports interface {
	GetReport(ctx context.Context, marketID string) (io.ReadCloser, error)
	ListReports(ctx context.Context) ([]domain.BlobInfo, error)
}

// SettlementHandler serves archived settlement reports for finalized markets.
type SettlementHandler struct {
	reports SettlementReports
	logger  *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(reports SettlementReports, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		reports: reports,
		logger:  logger,
	}
}

// ListReports returns metadata for all archived settlement reports.
// GET /api/settlements
func (h *SettlementHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reports.ListReports(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": infos,
		"total":   len(infos),
	})
}

// GetReport streams the archived settlement report for a market.
// GET /api/settlements/{id}
func (h *SettlementHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "market id is required")
		return
	}

	body, err := h.reports.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no settlement report for market")
			return
		}
		writeDomainError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream settlement report failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

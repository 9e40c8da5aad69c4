package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/engine"
)

// RebalanceService defines the methods that the rebalance handler requires.
type RebalanceService interface {
	NeedsRebalancing(participant domain.Address) bool
	Rebalance(ctx context.Context, participant domain.Address) (engine.Result, error)
}

// RebalanceHandler serves rebalance-related HTTP endpoints.
type RebalanceHandler struct {
	rebalance RebalanceService
	logger    *slog.Logger
}

// NewRebalanceHandler creates a RebalanceHandler with the given service and logger.
func NewRebalanceHandler(rebalance RebalanceService, logger *slog.Logger) *RebalanceHandler {
	return &RebalanceHandler{
		rebalance: rebalance,
		logger:    logHandler(logger, "rebalance"),
	}
}

// Check reports whether any asset class deviates beyond the policy threshold.
// GET /api/portfolio/{participant}/rebalance
func (h *RebalanceHandler) Check(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"participant": participant.Hex(),
		"needed":      h.rebalance.NeedsRebalancing(participant),
	})
}

// adjustmentResponse is the JSON shape of one per-class rebalance adjustment.
type adjustmentResponse struct {
	Class         string `json:"class"`
	AdjustmentUSD int64  `json:"adjustment_usd"`
	OpenedID      uint64 `json:"opened_id,omitempty"`
	ReducedUSD    int64  `json:"reduced_usd,omitempty"`
	ShortfallUSD  int64  `json:"shortfall_usd,omitempty"`
}

// Trigger runs a full rebalance cycle for the participant.
// POST /api/portfolio/{participant}/rebalance
func (h *RebalanceHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	result, err := h.rebalance.Rebalance(r.Context(), participant)
	if err != nil {
		status := serviceErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "rebalance failed",
				slog.String("participant", participant.Hex()),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "rebalance failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	adjustments := make([]adjustmentResponse, 0, len(result.Adjustments))
	for _, a := range result.Adjustments {
		adjustments = append(adjustments, adjustmentResponse{
			Class:         string(a.Class),
			AdjustmentUSD: a.AdjustmentUSD,
			OpenedID:      a.OpenedID,
			ReducedUSD:    a.ReducedUSD,
			ShortfallUSD:  a.ShortfallUSD,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"adjustments": adjustments,
		"summary":     toSummaryResponse(result.Summary),
	})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/basislabs/hedgerd/internal/domain"
)

// PortfolioService defines the methods that the portfolio handler requires.
type PortfolioService interface {
	Deposit(ctx context.Context, participant domain.Address, class domain.AssetClass, amount int64) (domain.YieldPosition, error)
	OpenHedge(ctx context.Context, participant domain.Address, class domain.AssetClass, amount int64, maxSlippageBps int64) (uint64, error)
	DeployStable(ctx context.Context, participant domain.Address, venue domain.Address, amount int64) (domain.StablePosition, error)
	Summary(participant domain.Address) domain.PortfolioSummary
	EstimatedAPR(ctx context.Context, participant domain.Address) (int64, error)
	HedgePositions(participant domain.Address) []domain.HedgePosition
}

// PortfolioHandler serves portfolio-related HTTP endpoints.
type PortfolioHandler struct {
	portfolio PortfolioService
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and logger.
func NewPortfolioHandler(portfolio PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolio: portfolio,
		logger:    logHandler(logger, "portfolio"),
	}
}

// summaryResponse is the JSON shape of a portfolio summary.
type summaryResponse struct {
	Participant    string `json:"participant"`
	TotalValueUSD  int64  `json:"total_value_usd"`
	ETHExposureUSD int64  `json:"eth_exposure_usd"`
	BTCExposureUSD int64  `json:"btc_exposure_usd"`
	USDExposureUSD int64  `json:"usd_exposure_usd"`
}

func toSummaryResponse(s domain.PortfolioSummary) summaryResponse {
	return summaryResponse{
		Participant:    s.Participant.Hex(),
		TotalValueUSD:  s.TotalValueUSD,
		ETHExposureUSD: s.ETHExposureUSD,
		BTCExposureUSD: s.BTCExposureUSD,
		USDExposureUSD: s.USDExposureUSD,
	}
}

// GetSummary returns the participant's exposure summary.
// GET /api/portfolio/{participant}/summary
func (h *PortfolioHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(h.portfolio.Summary(participant)))
}

// GetAPR returns the estimated blended portfolio APR in basis points.
// GET /api/portfolio/{participant}/apr
func (h *PortfolioHandler) GetAPR(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	apr, err := h.portfolio.EstimatedAPR(r.Context(), participant)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "estimate apr failed",
			slog.String("participant", participant.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to estimate apr")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"participant": participant.Hex(),
		"apr_bps":     apr,
	})
}

// hedgePositionResponse is the JSON shape of a hedge position.
type hedgePositionResponse struct {
	ID          uint64 `json:"id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	ValueUSD    int64  `json:"value_usd"`
	Short       bool   `json:"short"`
	FundingRate int64  `json:"funding_rate"`
	OpenedAt    string `json:"opened_at"`
}

// ListHedges returns the participant's open hedge positions.
// GET /api/portfolio/{participant}/hedges
func (h *PortfolioHandler) ListHedges(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	positions := h.portfolio.HedgePositions(participant)
	out := make([]hedgePositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, hedgePositionResponse{
			ID:          p.ID,
			Asset:       p.Asset.Hex(),
			Amount:      p.Amount,
			ValueUSD:    p.ValueUSD,
			Short:       p.Short,
			FundingRate: p.FundingRate,
			OpenedAt:    p.OpenedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"hedges": out})
}

// depositRequest is the JSON body for a deposit.
type depositRequest struct {
	Class  string `json:"class"`
	Amount int64  `json:"amount"`
}

// Deposit routes a yield deposit through the configured issuer.
// POST /api/portfolio/{participant}/deposit
func (h *PortfolioHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pos, err := h.portfolio.Deposit(r.Context(), participant, domain.AssetClass(req.Class), req.Amount)
	if err != nil {
		h.writeServiceError(w, r, "deposit", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"asset":     pos.Asset.Hex(),
		"class":     string(pos.Class),
		"amount":    pos.Amount,
		"value_usd": pos.ValueUSD,
	})
}

// openHedgeRequest is the JSON body for opening a hedge.
type openHedgeRequest struct {
	Class          string `json:"class"`
	Amount         int64  `json:"amount"`
	MaxSlippageBps int64  `json:"max_slippage_bps"`
}

// OpenHedge opens a short hedge on the active hedge venue.
// POST /api/portfolio/{participant}/hedges
func (h *PortfolioHandler) OpenHedge(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	var req openHedgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.portfolio.OpenHedge(r.Context(), participant, domain.AssetClass(req.Class), req.Amount, req.MaxSlippageBps)
	if err != nil {
		h.writeServiceError(w, r, "open hedge", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// deployStableRequest is the JSON body for a stable deployment.
type deployStableRequest struct {
	Venue  string `json:"venue"`
	Amount int64  `json:"amount"`
}

// DeployStable deposits stable value into an approved venue.
// POST /api/portfolio/{participant}/stable
func (h *PortfolioHandler) DeployStable(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	var req deployStableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	venue, ok := parseAddress(req.Venue)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid venue address")
		return
	}

	pos, err := h.portfolio.DeployStable(r.Context(), participant, venue, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, "deploy stable", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"asset":     pos.Asset.Hex(),
		"venue":     pos.Venue.Hex(),
		"amount":    pos.Amount,
		"value_usd": pos.ValueUSD,
	})
}

// writeServiceError maps domain errors to HTTP status codes.
func (h *PortfolioHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := serviceErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, "failed to "+op)
		return
	}
	writeError(w, status, err.Error())
}

// serviceErrorStatus maps well-known domain errors to HTTP status codes.
// Unknown errors map to 500.
func serviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownAssetClass),
		errors.Is(err, domain.ErrStableHedgeDisallowed),
		errors.Is(err, domain.ErrInvalidAllocation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrVenueNotApproved),
		errors.Is(err, domain.ErrNoHedgeVenue):
		return http.StatusConflict
	case errors.Is(err, domain.ErrReentrantCall),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

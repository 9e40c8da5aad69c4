package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/basislabs/hedgerd/internal/domain"
)

// AdminService defines the methods that the policy handler requires.
type AdminService interface {
	Policy() domain.AllocationPolicy
	ApprovedVenues() []domain.Address
	ActiveHedgeVenue() domain.Address
	UpdatePolicy(ctx context.Context, caller domain.Address, policy domain.AllocationPolicy) error
	ApproveVenue(ctx context.Context, caller domain.Address, venue domain.Address) error
	RevokeVenue(ctx context.Context, caller domain.Address, venue domain.Address) error
	SetHedgeVenue(ctx context.Context, caller domain.Address, venue domain.Address) error
}

// PolicyHandler serves the owner-gated policy and venue endpoints. The acting
// account is taken from the X-Caller-Address header; non-owner callers are
// rejected by the service.
type PolicyHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewPolicyHandler creates a PolicyHandler with the given service and logger.
func NewPolicyHandler(admin AdminService, logger *slog.Logger) *PolicyHandler {
	return &PolicyHandler{
		admin:  admin,
		logger: logHandler(logger, "policy"),
	}
}

// policyBody is the JSON shape of an allocation policy.
type policyBody struct {
	TargetETHBps   int64 `json:"target_eth_bps"`
	TargetBTCBps   int64 `json:"target_btc_bps"`
	TargetUSDBps   int64 `json:"target_usd_bps"`
	ThresholdBps   int64 `json:"threshold_bps"`
	MaxSlippageBps int64 `json:"max_slippage_bps"`
}

// GetPolicy returns the current allocation policy.
// GET /api/policy
func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p := h.admin.Policy()
	writeJSON(w, http.StatusOK, policyBody{
		TargetETHBps:   p.TargetETHBps,
		TargetBTCBps:   p.TargetBTCBps,
		TargetUSDBps:   p.TargetUSDBps,
		ThresholdBps:   p.ThresholdBps,
		MaxSlippageBps: p.MaxSlippageBps,
	})
}

// UpdatePolicy replaces the allocation policy.
// PUT /api/policy
func (h *PolicyHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}

	var body policyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	policy := domain.AllocationPolicy{
		TargetETHBps:   body.TargetETHBps,
		TargetBTCBps:   body.TargetBTCBps,
		TargetUSDBps:   body.TargetUSDBps,
		ThresholdBps:   body.ThresholdBps,
		MaxSlippageBps: body.MaxSlippageBps,
	}

	if err := h.admin.UpdatePolicy(r.Context(), caller, policy); err != nil {
		h.writeAdminError(w, r, "update policy", err)
		return
	}

	writeJSON(w, http.StatusOK, body)
}

// ListVenues returns the approved stable venues and the active hedge venue.
// GET /api/venues
func (h *PolicyHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	approved := h.admin.ApprovedVenues()
	venues := make([]string, 0, len(approved))
	for _, v := range approved {
		venues = append(venues, v.Hex())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"approved":    venues,
		"hedge_venue": h.admin.ActiveHedgeVenue().Hex(),
	})
}

// venueRequest is the JSON body naming a venue address.
type venueRequest struct {
	Venue string `json:"venue"`
}

func (h *PolicyHandler) venueFromBody(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	var req venueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return domain.Address{}, false
	}
	venue, ok := parseAddress(req.Venue)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid venue address")
		return domain.Address{}, false
	}
	return venue, true
}

// ApproveVenue adds a stable venue to the approved registry.
// POST /api/venues
func (h *PolicyHandler) ApproveVenue(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	venue, ok := h.venueFromBody(w, r)
	if !ok {
		return
	}

	if err := h.admin.ApproveVenue(r.Context(), caller, venue); err != nil {
		h.writeAdminError(w, r, "approve venue", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"venue": venue.Hex()})
}

// RevokeVenue removes a stable venue from the approved registry.
// DELETE /api/venues/{venue}
func (h *PolicyHandler) RevokeVenue(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	venue, ok := parseAddress(r.PathValue("venue"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid venue address")
		return
	}

	if err := h.admin.RevokeVenue(r.Context(), caller, venue); err != nil {
		h.writeAdminError(w, r, "revoke venue", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"venue": venue.Hex()})
}

// SetHedgeVenue switches the active hedging venue.
// PUT /api/venues/hedge
func (h *PolicyHandler) SetHedgeVenue(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	venue, ok := h.venueFromBody(w, r)
	if !ok {
		return
	}

	if err := h.admin.SetHedgeVenue(r.Context(), caller, venue); err != nil {
		h.writeAdminError(w, r, "set hedge venue", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"hedge_venue": venue.Hex()})
}

func (h *PolicyHandler) writeAdminError(w http.ResponseWriter, r *http.Request, op string, err error) {
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

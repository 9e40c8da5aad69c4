package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/basislabs/hedgerd/internal/domain"
)

// LedgerHandler serves the journal history endpoint backed by the PostgreSQL
// write-behind journal.
type LedgerHandler struct {
	journal domain.LedgerJournal
	logger  *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler with the given journal and logger.
func NewLedgerHandler(journal domain.LedgerJournal, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		journal: journal,
		logger:  logHandler(logger, "ledger"),
	}
}

// journalEventResponse is the JSON shape of a journal row.
type journalEventResponse struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Class       string `json:"class"`
	AmountDelta int64  `json:"amount_delta"`
	ValueDelta  int64  `json:"value_delta"`
	PositionID  uint64 `json:"position_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ListJournal returns a participant's ledger mutation history, newest first.
// GET /api/portfolio/{participant}/journal?limit=&offset=&since=&until=
func (h *LedgerHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	participant, ok := participantParam(w, r)
	if !ok {
		return
	}

	events, err := h.journal.List(r.Context(), participant, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list journal failed",
			slog.String("participant", participant.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list journal")
		return
	}

	out := make([]journalEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, journalEventResponse{
			ID:          ev.ID,
			Kind:        ev.Kind,
			Participant: ev.Participant.Hex(),
			Asset:       ev.Asset.Hex(),
			Class:       string(ev.Class),
			AmountDelta: ev.AmountDelta,
			ValueDelta:  ev.ValueDelta,
			PositionID:  ev.PositionID,
			CreatedAt:   ev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

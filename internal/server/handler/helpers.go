// Package handler contains the HTTP handlers for the hedgerd API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/basislabs/hedgerd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination and time-range parameters from
// the query string. Defaults: limit=50 (max 500), offset=0. Time bounds use
// RFC 3339.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}

	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = &t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Until = &t
		}
	}

	return opts
}

// parseAddress validates and parses a hex address from a path or query value.
// The second return value is false when the input is not a valid address.
func parseAddress(s string) (domain.Address, bool) {
	if !common.IsHexAddress(s) {
		return domain.Address{}, false
	}
	return common.HexToAddress(s), true
}

// participantParam extracts and validates the {participant} path parameter.
// It writes a 400 response and returns false when the parameter is invalid.
func participantParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, ok := parseAddress(r.PathValue("participant"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return domain.Address{}, false
	}
	return addr, true
}

// callerHeader reads the X-Caller-Address header used by owner-gated
// endpoints to identify the acting account.
func callerHeader(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, ok := parseAddress(r.Header.Get("X-Caller-Address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Caller-Address header")
		return domain.Address{}, false
	}
	return addr, true
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

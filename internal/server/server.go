// Package server provides the headless HTTP + WebSocket API for hedgerd.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/server/handler"
	"github.com/basislabs/hedgerd/internal/server/middleware"
	"github.com/basislabs/hedgerd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimitPerMin int    // if zero, rate limiting is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Ledger and Audit may be nil when the corresponding store is not configured;
// their routes are skipped in that case.
type Handlers struct {
	Health    *handler.HealthHandler
	Portfolio *handler.PortfolioHandler
	Rebalance *handler.RebalanceHandler
	Policy    *handler.PolicyHandler
	Ledger    *handler.LedgerHandler
	Audit     *handler.AuditHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required beyond the global chain).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Portfolio endpoints.
	mux.HandleFunc("GET /api/portfolio/{participant}/summary", handlers.Portfolio.GetSummary)
	mux.HandleFunc("GET /api/portfolio/{participant}/apr", handlers.Portfolio.GetAPR)
	mux.HandleFunc("GET /api/portfolio/{participant}/hedges", handlers.Portfolio.ListHedges)
	mux.HandleFunc("POST /api/portfolio/{participant}/deposit", handlers.Portfolio.Deposit)
	mux.HandleFunc("POST /api/portfolio/{participant}/hedges", handlers.Portfolio.OpenHedge)
	mux.HandleFunc("POST /api/portfolio/{participant}/stable", handlers.Portfolio.DeployStable)

	// Rebalance endpoints.
	mux.HandleFunc("GET /api/portfolio/{participant}/rebalance", handlers.Rebalance.Check)
	mux.HandleFunc("POST /api/portfolio/{participant}/rebalance", handlers.Rebalance.Trigger)

	// Policy and venue endpoints.
	mux.HandleFunc("GET /api/policy", handlers.Policy.GetPolicy)
	mux.HandleFunc("PUT /api/policy", handlers.Policy.UpdatePolicy)
	mux.HandleFunc("GET /api/venues", handlers.Policy.ListVenues)
	mux.HandleFunc("POST /api/venues", handlers.Policy.ApproveVenue)
	mux.HandleFunc("PUT /api/venues/hedge", handlers.Policy.SetHedgeVenue)
	mux.HandleFunc("DELETE /api/venues/{venue}", handlers.Policy.RevokeVenue)

	// Journal history (requires the Postgres journal).
	if handlers.Ledger != nil {
		mux.HandleFunc("GET /api/portfolio/{participant}/journal", handlers.Ledger.ListJournal)
	}

	// Audit log (requires the Postgres audit store).
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when a limiter is configured.
	if limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0 // allow all if none specified
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Caller-Address")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/server"
	"github.com/basislabs/hedgerd/internal/server/handler"
	"github.com/basislabs/hedgerd/internal/server/ws"
)

// rebalanceLockKey fences the auto-rebalancer so only one replica runs a
// corrective pass at a time.
const rebalanceLockKey = "rebalance"

// ServeMode runs the HTTP + WebSocket API with live rate refresh but no
// automatic rebalancing; corrective passes are triggered through the API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRateRefresh(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// RebalanceMode runs everything serve mode runs plus the automatic rebalance
// loop and, when archival is configured, the periodic journal archiver.
func (a *App) RebalanceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting rebalance mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRateRefresh(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	if a.cfg.Rebalancer.Enabled {
		g.Go(func() error {
			return a.rebalanceLoop(ctx, deps)
		})
	}
	if deps.Archiver != nil && a.cfg.Rebalancer.ArchiveInterval.Duration > 0 {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// OnceMode refreshes rates, runs a single corrective pass over every
// participant, and exits.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	if deps.Live != nil {
		if err := deps.Live.Refresh(ctx); err != nil {
			a.logger.WarnContext(ctx, "rate refresh failed, using seed rates",
				slog.String("error", err.Error()),
			)
		}
	}
	return a.rebalancePass(ctx, deps)
}

// SimMode walks the full deposit / hedge / rebalance cycle against the
// simulated collaborators and prints the resulting exposure at each step. No
// external infrastructure is touched.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode",
		slog.String("owner", deps.Owner.Hex()),
	)
	participant := deps.Owner

	// One unit of each yield asset plus a stable deployment.
	unit := domain.ValueScale
	for _, class := range domain.AssetClasses {
		pos, err := deps.Portfolio.Deposit(ctx, participant, class, unit)
		if err != nil {
			return fmt.Errorf("sim: deposit %s: %w", class, err)
		}
		a.logger.InfoContext(ctx, "sim deposit",
			slog.String("class", string(class)),
			slog.Int64("minted", pos.Amount),
			slog.Int64("value_usd", pos.ValueUSD),
		)
	}
	if _, err := deps.Portfolio.DeployStable(ctx, participant, simStableAddr, unit/2); err != nil {
		return fmt.Errorf("sim: deploy stable: %w", err)
	}

	a.logSummary(ctx, "sim exposure before rebalance", deps.Portfolio.Summary(participant))
	a.logger.InfoContext(ctx, "sim rebalance check",
		slog.Bool("needed", deps.Portfolio.NeedsRebalancing(participant)),
	)

	result, err := deps.Portfolio.Rebalance(ctx, participant)
	if err != nil {
		return fmt.Errorf("sim: rebalance: %w", err)
	}
	for _, adj := range result.Adjustments {
		a.logger.InfoContext(ctx, "sim adjustment",
			slog.String("class", string(adj.Class)),
			slog.Int64("adjustment_usd", adj.AdjustmentUSD),
			slog.Uint64("opened_id", adj.OpenedID),
			slog.Int64("reduced_usd", adj.ReducedUSD),
			slog.Int64("shortfall_usd", adj.ShortfallUSD),
		)
	}
	a.logSummary(ctx, "sim exposure after rebalance", result.Summary)

	apr, err := deps.Portfolio.EstimatedAPR(ctx, participant)
	if err != nil {
		return fmt.Errorf("sim: estimated apr: %w", err)
	}
	a.logger.InfoContext(ctx, "sim estimated net yield", slog.Int64("apr_bps", apr))
	return nil
}

// startRateRefresh adds the live valuation refresh loop to the errgroup when
// a rate cache is wired.
func (a *App) startRateRefresh(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Live == nil || a.cfg.Rebalancer.RateRefresh.Duration <= 0 {
		return
	}
	g.Go(func() error {
		deps.Live.RefreshLoop(ctx, a.cfg.Rebalancer.RateRefresh.Duration)
		return ctx.Err()
	})
}

// startHTTPServer adds the HTTP server goroutine to the given errgroup. It
// registers the WebSocket hub plus the REST handlers available for the wired
// stores, and shuts the server down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Portfolio: handler.NewPortfolioHandler(deps.Portfolio, a.logger),
		Rebalance: handler.NewRebalanceHandler(deps.Portfolio, a.logger),
		Policy:    handler.NewPolicyHandler(deps.Admin, a.logger),
	}
	if deps.Journal != nil {
		handlers.Ledger = handler.NewLedgerHandler(deps.Journal, a.logger)
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// rebalanceLoop periodically runs a corrective pass over every participant.
func (a *App) rebalanceLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Rebalancer.Interval.Duration
	a.logger.InfoContext(ctx, "auto-rebalancer started",
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.rebalancePass(ctx, deps); err != nil {
				a.logger.ErrorContext(ctx, "rebalance pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// rebalancePass runs one corrective pass over every participant with open
// positions. When a lock manager is wired the pass is fenced so concurrent
// replicas skip instead of double-hedging.
func (a *App) rebalancePass(ctx context.Context, deps *Dependencies) error {
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, rebalanceLockKey, a.cfg.Rebalancer.LockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.DebugContext(ctx, "rebalance pass skipped, lock held elsewhere")
				return nil
			}
			return fmt.Errorf("app: acquire rebalance lock: %w", err)
		}
		defer unlock()
	}

	for _, participant := range deps.Ledger.Participants() {
		if !deps.Engine.NeedsRebalancing(participant) {
			continue
		}
		result, err := deps.Portfolio.Rebalance(ctx, participant)
		if err != nil {
			a.logger.ErrorContext(ctx, "rebalance failed",
				slog.String("participant", participant.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "rebalanced",
			slog.String("participant", participant.Hex()),
			slog.Int("adjustments", len(result.Adjustments)),
			slog.Int64("total_value_usd", result.Summary.TotalValueUSD),
		)
	}
	return nil
}

// archiveLoop periodically moves journal and audit rows older than the
// retention window into object storage.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Rebalancer.ArchiveInterval.Duration
	retention := a.cfg.Rebalancer.ArchiveRetentionDays

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", retention),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -retention)
			journalRows, err := deps.Archiver.ArchiveJournal(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "journal archive failed",
					slog.String("error", err.Error()),
				)
			}
			auditRows, err := deps.Archiver.ArchiveAudit(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "audit archive failed",
					slog.String("error", err.Error()),
				)
			}
			if journalRows > 0 || auditRows > 0 {
				a.logger.InfoContext(ctx, "archive pass complete",
					slog.Int64("journal_rows", journalRows),
					slog.Int64("audit_rows", auditRows),
				)
			}
		}
	}
}

// logSummary logs one participant's exposure snapshot.
func (a *App) logSummary(ctx context.Context, msg string, s domain.PortfolioSummary) {
	a.logger.InfoContext(ctx, msg,
		slog.Int64("total_value_usd", s.TotalValueUSD),
		slog.Int64("eth_exposure_usd", s.ETHExposureUSD),
		slog.Int64("btc_exposure_usd", s.BTCExposureUSD),
		slog.Int64("usd_exposure_usd", s.USDExposureUSD),
	)
}

// Package service exposes the externally triggered operations of the hedged
// portfolio: deposits, hedge opens, stable deployments, rebalancing, and the
// ownership-gated configuration surface. Every mutating entry point runs
// inside the participant guard; collaborator failure aborts the operation
// with no retained ledger mutation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/engine"
	"github.com/basislabs/hedgerd/internal/ledger"
	"github.com/basislabs/hedgerd/internal/notify"
)

// Event channel names published on the signal bus.
const (
	ChannelLedger    = "ledger"
	ChannelRebalance = "rebalance"
)

// PortfolioService orchestrates participant operations against the ledger,
// the rebalance engine, and the external collaborators.
type PortfolioService struct {
	ledger    *ledger.Ledger
	engine    *engine.Engine
	estimator *engine.Estimator
	issuers   map[domain.AssetClass]domain.YieldIssuer
	stables   map[domain.Address]domain.StableVenue
	venues    engine.VenueSource
	guard     *Guard

	journal  domain.LedgerJournal // optional
	audit    domain.AuditStore    // optional
	bus      domain.SignalBus     // optional
	notifier *notify.Notifier     // optional
	logger   *slog.Logger
}

// PortfolioDeps bundles the dependencies of a PortfolioService. Journal,
// Audit, Bus, and Notifier may be nil; the corresponding side channel is
// skipped.
type PortfolioDeps struct {
	Ledger    *ledger.Ledger
	Engine    *engine.Engine
	Estimator *engine.Estimator
	Issuers   map[domain.AssetClass]domain.YieldIssuer
	Stables   map[domain.Address]domain.StableVenue
	Venues    engine.VenueSource
	Guard     *Guard
	Journal   domain.LedgerJournal
	Audit     domain.AuditStore
	Bus       domain.SignalBus
	Notifier  *notify.Notifier
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(deps PortfolioDeps, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{
		ledger:    deps.Ledger,
		engine:    deps.Engine,
		estimator: deps.Estimator,
		issuers:   deps.Issuers,
		stables:   deps.Stables,
		venues:    deps.Venues,
		guard:     deps.Guard,
		journal:   deps.Journal,
		audit:     deps.Audit,
		bus:       deps.Bus,
		notifier:  deps.Notifier,
		logger:    logger.With(slog.String("component", "portfolio_service")),
	}
}

// Deposit places amount of underlying into the class's yield issuer and
// records the minted position.
func (s *PortfolioService) Deposit(ctx context.Context, participant domain.Address, class domain.AssetClass, amount int64) (domain.YieldPosition, error) {
	if amount <= 0 {
		return domain.YieldPosition{}, domain.ErrInvalidAmount
	}
	issuer, ok := s.issuers[class]
	if !ok {
		return domain.YieldPosition{}, domain.ErrUnknownAssetClass
	}
	asset, ok := s.ledger.Asset(class)
	if !ok {
		return domain.YieldPosition{}, domain.ErrUnknownAssetClass
	}

	gctx, release, err := s.guard.Enter(ctx, participant)
	if err != nil {
		return domain.YieldPosition{}, err
	}
	defer release()

	minted, err := issuer.Deposit(gctx, amount)
	if err != nil {
		return domain.YieldPosition{}, fmt.Errorf("portfolio_service: issuer deposit: %w", err)
	}
	if minted <= 0 {
		return domain.YieldPosition{}, domain.ErrIssuerMint
	}

	pos, err := s.ledger.RecordYieldDeposit(gctx, participant, class, asset, minted)
	if err != nil {
		return domain.YieldPosition{}, err
	}

	s.record(gctx, domain.LedgerEvent{
		Kind:        "deposit",
		Participant: participant,
		Asset:       asset,
		Class:       class,
		AmountDelta: minted,
		ValueDelta:  pos.ValueUSD,
	})
	s.emit(gctx, ChannelLedger, "deposit_recorded", "Deposit recorded",
		fmt.Sprintf("%s deposited %d into %s (value %d)", participant.Hex(), amount, class, pos.ValueUSD),
		map[string]any{
			"event":       "deposit_recorded",
			"participant": participant.Hex(),
			"class":       class,
			"minted":      minted,
			"value_usd":   pos.ValueUSD,
		})
	return pos, nil
}

// OpenHedge opens a short on the class's asset through the configured
// hedging venue and records the resulting position.
func (s *PortfolioService) OpenHedge(ctx context.Context, participant domain.Address, class domain.AssetClass, amount int64, maxSlippageBps int64) (uint64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	if class == domain.ClassUSD {
		return 0, domain.ErrStableHedgeDisallowed
	}
	asset, ok := s.ledger.Asset(class)
	if !ok {
		return 0, domain.ErrUnknownAssetClass
	}
	venue := s.venues.HedgeVenue()
	if venue == nil {
		return 0, domain.ErrNoHedgeVenue
	}

	gctx, release, err := s.guard.Enter(ctx, participant)
	if err != nil {
		return 0, err
	}
	defer release()

	venueID, executed, err := venue.OpenShort(gctx, asset, amount, maxSlippageBps)
	if err != nil {
		return 0, fmt.Errorf("portfolio_service: open short: %w", err)
	}
	fundingRate, err := venue.GetFundingRate(gctx, asset)
	if err != nil {
		return 0, fmt.Errorf("portfolio_service: funding rate: %w", err)
	}

	id, err := s.ledger.RecordHedgeOpen(gctx, participant, asset, executed, fundingRate, venueID)
	if err != nil {
		return 0, err
	}

	pos, _ := s.ledger.HedgePosition(id)
	s.record(gctx, domain.LedgerEvent{
		Kind:        "hedge_open",
		Participant: participant,
		Asset:       asset,
		Class:       class,
		AmountDelta: executed,
		ValueDelta:  pos.ValueUSD,
		PositionID:  id,
	})
	s.emit(gctx, ChannelLedger, "hedge_opened", "Hedge opened",
		fmt.Sprintf("%s opened short %d on %s (value %d)", participant.Hex(), id, class, pos.ValueUSD),
		map[string]any{
			"event":       "hedge_opened",
			"participant": participant.Hex(),
			"class":       class,
			"position_id": id,
			"executed":    executed,
			"value_usd":   pos.ValueUSD,
		})
	return id, nil
}

// DeployStable moves stable yield-token capital into an approved stable
// venue and records the deployment.
func (s *PortfolioService) DeployStable(ctx context.Context, participant domain.Address, venueAddr domain.Address, amount int64) (domain.StablePosition, error) {
	if amount <= 0 {
		return domain.StablePosition{}, domain.ErrInvalidAmount
	}
	if !s.ledger.Venues().IsApproved(venueAddr) {
		return domain.StablePosition{}, domain.ErrVenueNotApproved
	}
	venue, ok := s.stables[venueAddr]
	if !ok {
		return domain.StablePosition{}, domain.ErrVenueNotApproved
	}
	asset, ok := s.ledger.Asset(domain.ClassUSD)
	if !ok {
		return domain.StablePosition{}, domain.ErrUnknownAssetClass
	}

	gctx, release, err := s.guard.Enter(ctx, participant)
	if err != nil {
		return domain.StablePosition{}, err
	}
	defer release()

	shares, err := venue.Deposit(gctx, asset, amount)
	if err != nil {
		return domain.StablePosition{}, fmt.Errorf("portfolio_service: stable venue deposit: %w", err)
	}

	pos, err := s.ledger.RecordStableDeploy(gctx, participant, venueAddr, amount)
	if err != nil {
		return domain.StablePosition{}, err
	}

	s.record(gctx, domain.LedgerEvent{
		Kind:        "stable_deploy",
		Participant: participant,
		Asset:       asset,
		Class:       domain.ClassUSD,
		AmountDelta: amount,
		ValueDelta:  pos.ValueUSD,
	})
	s.emit(gctx, ChannelLedger, "stable_deployed", "Stable capital deployed",
		fmt.Sprintf("%s deployed %d to venue %s (%d shares)", participant.Hex(), amount, venueAddr.Hex(), shares),
		map[string]any{
			"event":       "stable_deployed",
			"participant": participant.Hex(),
			"venue":       venueAddr.Hex(),
			"amount":      amount,
			"shares":      shares,
			"value_usd":   pos.ValueUSD,
		})
	return pos, nil
}

// Rebalance runs one corrective pass for the participant.
func (s *PortfolioService) Rebalance(ctx context.Context, participant domain.Address) (engine.Result, error) {
	gctx, release, err := s.guard.Enter(ctx, participant)
	if err != nil {
		return engine.Result{}, err
	}
	defer release()

	result, err := s.engine.Rebalance(gctx, participant)
	if err != nil {
		return engine.Result{}, err
	}

	if len(result.Adjustments) > 0 {
		s.record(gctx, domain.LedgerEvent{
			Kind:        "rebalance",
			Participant: participant,
		})
	}
	s.emit(gctx, ChannelRebalance, "rebalanced", "Rebalance completed",
		fmt.Sprintf("%s rebalanced: eth %d, btc %d, usd %d", participant.Hex(),
			result.Summary.ETHExposureUSD, result.Summary.BTCExposureUSD, result.Summary.USDExposureUSD),
		map[string]any{
			"event":            "rebalanced",
			"participant":      participant.Hex(),
			"adjustments":      result.Adjustments,
			"eth_exposure_usd": result.Summary.ETHExposureUSD,
			"btc_exposure_usd": result.Summary.BTCExposureUSD,
			"usd_exposure_usd": result.Summary.USDExposureUSD,
		})
	return result, nil
}

// Summary returns the participant's freshly computed exposure view.
func (s *PortfolioService) Summary(participant domain.Address) domain.PortfolioSummary {
	return s.ledger.Summary(participant)
}

// NeedsRebalancing reports whether the participant's allocation deviates
// beyond the policy threshold.
func (s *PortfolioService) NeedsRebalancing(participant domain.Address) bool {
	return s.engine.NeedsRebalancing(participant)
}

// EstimatedAPR returns the participant's estimated net yield in basis
// points.
func (s *PortfolioService) EstimatedAPR(ctx context.Context, participant domain.Address) (int64, error) {
	return s.estimator.EstimatedAPR(ctx, participant)
}

// HedgePositions lists the participant's open hedge positions.
func (s *PortfolioService) HedgePositions(participant domain.Address) []domain.HedgePosition {
	return s.ledger.HedgePositions(participant)
}

// record appends to the journal best-effort: journal failures are logged,
// never propagated, because the in-memory ledger has already committed.
func (s *PortfolioService) record(ctx context.Context, ev domain.LedgerEvent) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "journal append failed",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()),
		)
	}
}

// emit publishes a JSON event on the bus, logs it to the audit store, and
// notifies operator channels, all best-effort.
func (s *PortfolioService) emit(ctx context.Context, channel, event, title, message string, detail map[string]any) {
	if s.bus != nil {
		if payload, err := json.Marshal(detail); err == nil {
			if pubErr := s.bus.Publish(ctx, channel, payload); pubErr != nil {
				s.logger.WarnContext(ctx, "event publish failed",
					slog.String("event", event),
					slog.String("error", pubErr.Error()),
				)
			}
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event, title, message); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Package engine implements the rebalancing controller and the yield
// estimator on top of the position ledger. The controller is level
// triggered: every pass re-derives the portfolio summary and corrects
// whatever deviation it finds, with no memory of earlier passes.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/ledger"
	"github.com/basislabs/hedgerd/internal/valuation"
)

// hedgedClasses are the classes with a short-hedge instrument. The stable
// class is never hedge-adjusted.
var hedgedClasses = []domain.AssetClass{domain.ClassETH, domain.ClassBTC}

// PolicySource yields the current allocation policy.
type PolicySource interface {
	Policy() domain.AllocationPolicy
}

// VenueSource yields the currently configured hedging venue, which the owner
// can swap at runtime.
type VenueSource interface {
	HedgeVenue() domain.HedgeVenue
}

// ClassAdjustment describes what one rebalance pass did for a single class.
type ClassAdjustment struct {
	Class         domain.AssetClass `json:"class"`
	AdjustmentUSD int64             `json:"adjustment_usd"`
	OpenedID      uint64            `json:"opened_id,omitempty"`
	ReducedUSD    int64             `json:"reduced_usd,omitempty"`
	ShortfallUSD  int64             `json:"shortfall_usd,omitempty"`
}

// Result is the outcome of one rebalance pass.
type Result struct {
	Adjustments []ClassAdjustment       `json:"adjustments"`
	Summary     domain.PortfolioSummary `json:"summary"`
}

// Engine compares current allocations against policy targets and issues
// corrective hedge mutations through the ledger primitives.
type Engine struct {
	ledger   *ledger.Ledger
	valuer   valuation.Service
	policies PolicySource
	venues   VenueSource
	logger   *slog.Logger
}

// New creates an Engine.
func New(l *ledger.Ledger, valuer valuation.Service, policies PolicySource, venues VenueSource, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:   l,
		valuer:   valuer,
		policies: policies,
		venues:   venues,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// allocationBps returns the current allocation of a class in basis points.
// Net-short ETH/BTC exposure floors to zero allocation; the USD class is
// unfloored.
func allocationBps(s domain.PortfolioSummary, class domain.AssetClass) int64 {
	exposure := s.Exposure(class)
	if class != domain.ClassUSD && exposure < 0 {
		exposure = 0
	}
	return domain.MulDiv(exposure, domain.BpsDenominator, s.TotalValueUSD)
}

// NeedsRebalancing reports whether any class's current allocation deviates
// from its target by strictly more than the policy threshold. An empty
// portfolio never needs rebalancing.
func (e *Engine) NeedsRebalancing(participant domain.Address) bool {
	s := e.ledger.Summary(participant)
	if s.TotalValueUSD == 0 {
		return false
	}
	policy := e.policies.Policy()
	for _, class := range domain.AssetClasses {
		deviation := allocationBps(s, class) - policy.Target(class)
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > policy.ThresholdBps {
			return true
		}
	}
	return false
}

// Rebalance corrects each hedged class independently: exposure above target
// opens a new short for the excess, exposure below target reduces existing
// shorts. A pass over an empty portfolio succeeds without touching anything.
func (e *Engine) Rebalance(ctx context.Context, participant domain.Address) (Result, error) {
	s := e.ledger.Summary(participant)
	if s.TotalValueUSD == 0 {
		return Result{Summary: s}, nil
	}

	policy := e.policies.Policy()
	venue := e.venues.HedgeVenue()
	if venue == nil {
		return Result{}, domain.ErrNoHedgeVenue
	}

	var adjustments []ClassAdjustment
	for _, class := range hedgedClasses {
		targetValue := domain.MulDiv(s.TotalValueUSD, policy.Target(class), domain.BpsDenominator)
		adjustment := targetValue - s.Exposure(class)

		switch {
		case adjustment < 0:
			id, err := e.openHedge(ctx, participant, class, -adjustment, policy.MaxSlippageBps, venue)
			if err != nil {
				return Result{}, err
			}
			adjustments = append(adjustments, ClassAdjustment{
				Class:         class,
				AdjustmentUSD: adjustment,
				OpenedID:      id,
			})

		case adjustment > 0:
			reduced, err := e.ledger.RecordHedgeReduce(ctx, participant, class, adjustment, policy.MaxSlippageBps, venue)
			if err != nil {
				return Result{}, err
			}
			shortfall := adjustment - reduced
			if shortfall > 0 {
				e.logger.WarnContext(ctx, "hedge reduction under-fulfilled",
					slog.String("participant", participant.Hex()),
					slog.String("class", string(class)),
					slog.Int64("requested_usd", adjustment),
					slog.Int64("shortfall_usd", shortfall),
				)
			}
			adjustments = append(adjustments, ClassAdjustment{
				Class:         class,
				AdjustmentUSD: adjustment,
				ReducedUSD:    reduced,
				ShortfallUSD:  shortfall,
			})
		}
	}

	result := Result{
		Adjustments: adjustments,
		Summary:     e.ledger.Summary(participant),
	}
	e.logger.InfoContext(ctx, "rebalance completed",
		slog.String("participant", participant.Hex()),
		slog.Int("adjustments", len(adjustments)),
		slog.Int64("eth_exposure_usd", result.Summary.ETHExposureUSD),
		slog.Int64("btc_exposure_usd", result.Summary.BTCExposureUSD),
		slog.Int64("usd_exposure_usd", result.Summary.USDExposureUSD),
	)
	return result, nil
}

// openHedge converts excessUSD into asset units, executes a short on the
// venue, and records the resulting position. Always a new ledger line; an
// existing position is never topped up.
func (e *Engine) openHedge(ctx context.Context, participant domain.Address, class domain.AssetClass, excessUSD int64, maxSlippageBps int64, venue domain.HedgeVenue) (uint64, error) {
	asset, ok := e.ledger.Asset(class)
	if !ok {
		return 0, domain.ErrUnknownAssetClass
	}

	amount := e.valuer.AmountFor(asset, excessUSD)
	if amount == 0 {
		return 0, nil
	}

	venueID, executed, err := venue.OpenShort(ctx, asset, amount, maxSlippageBps)
	if err != nil {
		return 0, fmt.Errorf("engine: open short %s: %w", class, err)
	}
	fundingRate, err := venue.GetFundingRate(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("engine: funding rate %s: %w", class, err)
	}

	return e.ledger.RecordHedgeOpen(ctx, participant, asset, executed, fundingRate, venueID)
}

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/ledger"
)

// Estimator aggregates issuer-reported yields and nets them against funding
// accrued on open hedges, producing an annualized basis-point estimate.
type Estimator struct {
	ledger  *ledger.Ledger
	issuers map[domain.AssetClass]domain.YieldIssuer
	logger  *slog.Logger
}

// NewEstimator creates an Estimator over the given per-class issuers.
func NewEstimator(l *ledger.Ledger, issuers map[domain.AssetClass]domain.YieldIssuer, logger *slog.Logger) *Estimator {
	cp := make(map[domain.AssetClass]domain.YieldIssuer, len(issuers))
	for c, i := range issuers {
		cp[c] = i
	}
	return &Estimator{
		ledger:  l,
		issuers: cp,
		logger:  logger.With(slog.String("component", "estimator")),
	}
}

// EstimatedAPR returns the participant's net annualized yield in basis
// points: issuer APRs weighted by held value, netted against funding on open
// hedges, floored at zero. An empty portfolio estimates to zero.
func (e *Estimator) EstimatedAPR(ctx context.Context, participant domain.Address) (int64, error) {
	s := e.ledger.Summary(participant)
	if s.TotalValueUSD == 0 {
		return 0, nil
	}

	var totalYield int64
	for _, class := range domain.AssetClasses {
		issuer, ok := e.issuers[class]
		if !ok {
			continue
		}
		held := e.ledger.YieldValue(participant, class)
		if held == 0 {
			continue
		}
		apr, err := issuer.CurrentAPR(ctx)
		if err != nil {
			return 0, fmt.Errorf("estimator: issuer apr %s: %w", class, err)
		}
		totalYield += domain.MulDiv(held, apr, domain.BpsDenominator)
	}

	// Positive funding credits the short; negative funding costs it.
	for _, pos := range e.ledger.HedgePositions(participant) {
		totalYield += domain.MulDiv(pos.FundingRate, pos.ValueUSD, domain.FundingScale)
	}
	if totalYield < 0 {
		totalYield = 0
	}

	aprBps := domain.MulDiv(totalYield, domain.BpsDenominator, s.TotalValueUSD)
	e.logger.DebugContext(ctx, "apr estimated",
		slog.String("participant", participant.Hex()),
		slog.Int64("apr_bps", aprBps),
	)
	return aprBps, nil
}

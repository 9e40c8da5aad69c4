package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/ledger"
	"github.com/basislabs/hedgerd/internal/valuation"
	"github.com/basislabs/hedgerd/internal/venue/sim"
)

func newTestEstimator(t *testing.T, aprBps int64) (*Estimator, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valuer := valuation.NewStatic(map[domain.Address]int64{
		ethAsset: 3_000 * domain.ValueScale,
		usdAsset: 1 * domain.ValueScale,
	})
	assets := map[domain.AssetClass]domain.Address{
		domain.ClassETH: ethAsset,
		domain.ClassUSD: usdAsset,
	}
	l := ledger.New(valuer, assets, ledger.NewVenueRegistry(), logger)
	issuers := map[domain.AssetClass]domain.YieldIssuer{
		domain.ClassETH: sim.NewIssuer(ethAsset, 0, aprBps),
	}
	return NewEstimator(l, issuers, logger), l
}

func TestEstimator_EmptyPortfolio(t *testing.T) {
	e, _ := newTestEstimator(t, 500)

	apr, err := e.EstimatedAPR(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), apr)
}

func TestEstimator_YieldOnly(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEstimator(t, 500)

	// A single position earns exactly the issuer's reported rate.
	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)

	apr, err := e.EstimatedAPR(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(500), apr)
}

func TestEstimator_FundingNetsAgainstYield(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEstimator(t, 500)

	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)

	// A half-unit short paying -10% funding costs 150 USD/yr against the
	// 150 USD/yr yield: net zero.
	_, err = l.RecordHedgeOpen(ctx, alice, ethAsset, domain.ValueScale/2, -100_000, 1)
	require.NoError(t, err)

	apr, err := e.EstimatedAPR(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), apr)
}

func TestEstimator_PositiveFundingCredits(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEstimator(t, 500)

	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)
	_, err = l.RecordHedgeOpen(ctx, alice, ethAsset, domain.ValueScale/2, 100_000, 1)
	require.NoError(t, err)

	// Yield 150 + funding credit 150 over 3000 total = 1000 bps.
	apr, err := e.EstimatedAPR(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), apr)
}

func TestEstimator_FlooredAtZero(t *testing.T) {
	ctx := context.Background()
	e, l := newTestEstimator(t, 100)

	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)

	// Funding cost exceeds yield; the estimate floors at zero rather than
	// going negative.
	_, err = l.RecordHedgeOpen(ctx, alice, ethAsset, domain.ValueScale, -200_000, 1)
	require.NoError(t, err)

	apr, err := e.EstimatedAPR(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), apr)
}

func TestEstimator_IssuerFailurePropagates(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valuer := valuation.NewStatic(map[domain.Address]int64{
		ethAsset: 3_000 * domain.ValueScale,
	})
	l := ledger.New(valuer, map[domain.AssetClass]domain.Address{
		domain.ClassETH: ethAsset,
	}, ledger.NewVenueRegistry(), logger)

	issuer := &failingIssuer{}
	e := NewEstimator(l, map[domain.AssetClass]domain.YieldIssuer{
		domain.ClassETH: issuer,
	}, logger)

	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)

	_, err = e.EstimatedAPR(ctx, alice)
	assert.ErrorIs(t, err, assert.AnError)
}

// failingIssuer errors on CurrentAPR.
type failingIssuer struct{}

func (f *failingIssuer) Deposit(ctx context.Context, amount int64) (int64, error) { return amount, nil }
func (f *failingIssuer) Withdraw(ctx context.Context, amount int64) (int64, error) {
	return amount, nil
}
func (f *failingIssuer) ExchangeRate(ctx context.Context) (int64, error) {
	return domain.ValueScale, nil
}
func (f *failingIssuer) CurrentAPR(ctx context.Context) (int64, error) { return 0, assert.AnError }
func (f *failingIssuer) UnderlyingAsset() domain.Address               { return ethAsset }

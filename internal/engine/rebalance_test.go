package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/ledger"
	"github.com/basislabs/hedgerd/internal/valuation"
	"github.com/basislabs/hedgerd/internal/venue/sim"
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")

	ethAsset = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	btcAsset = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdAsset = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

type stubPolicy struct{ p domain.AllocationPolicy }

func (s stubPolicy) Policy() domain.AllocationPolicy { return s.p }

type stubVenues struct{ v domain.HedgeVenue }

func (s stubVenues) HedgeVenue() domain.HedgeVenue { return s.v }

func defaultPolicy() domain.AllocationPolicy {
	return domain.AllocationPolicy{
		TargetETHBps:   4_000,
		TargetBTCBps:   3_000,
		TargetUSDBps:   3_000,
		ThresholdBps:   200,
		MaxSlippageBps: 50,
	}
}

// newTestEngine builds an engine over a fresh ledger and sim hedge venue.
func newTestEngine(t *testing.T, policy domain.AllocationPolicy) (*Engine, *ledger.Ledger, *sim.HedgeVenue) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valuer := valuation.NewStatic(map[domain.Address]int64{
		ethAsset: 3_000 * domain.ValueScale,
		btcAsset: 60_000 * domain.ValueScale,
		usdAsset: 1 * domain.ValueScale,
	})
	assets := map[domain.AssetClass]domain.Address{
		domain.ClassETH: ethAsset,
		domain.ClassBTC: btcAsset,
		domain.ClassUSD: usdAsset,
	}
	l := ledger.New(valuer, assets, ledger.NewVenueRegistry(), logger)
	venue := sim.NewHedgeVenue()
	e := New(l, valuer, stubPolicy{policy}, stubVenues{venue}, logger)
	return e, l, venue
}

func TestEngine_NeedsRebalancing_EmptyPortfolio(t *testing.T) {
	e, _, _ := newTestEngine(t, defaultPolicy())
	assert.False(t, e.NeedsRebalancing(alice))
}

func TestEngine_NeedsRebalancing_ThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	// 5250 USD of ETH and 4750 USD of stable against a 50/0/50 target puts
	// every deviation at exactly 250 bps.
	policy := domain.AllocationPolicy{
		TargetETHBps: 5_000,
		TargetBTCBps: 0,
		TargetUSDBps: 5_000,
		ThresholdBps: 250,
	}
	seed := func(t *testing.T, l *ledger.Ledger) {
		_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale*7/4)
		require.NoError(t, err)
		_, err = l.RecordYieldDeposit(ctx, alice, domain.ClassUSD, usdAsset, 4_750*domain.ValueScale)
		require.NoError(t, err)
	}

	// Deviation equal to the threshold does not trigger.
	e, l, _ := newTestEngine(t, policy)
	seed(t, l)
	assert.False(t, e.NeedsRebalancing(alice))

	// One basis point tighter does.
	policy.ThresholdBps = 249
	e, l, _ = newTestEngine(t, policy)
	seed(t, l)
	assert.True(t, e.NeedsRebalancing(alice))
}

func TestEngine_NeedsRebalancing_NetShortFloorsToZero(t *testing.T) {
	ctx := context.Background()
	e, l, _ := newTestEngine(t, defaultPolicy())

	// A hedge larger than the long position drives ETH exposure negative;
	// the class counts as 0% allocated, which deviates 4000 bps from target.
	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassUSD, usdAsset, 1_000*domain.ValueScale)
	require.NoError(t, err)
	_, err = l.RecordHedgeOpen(ctx, alice, ethAsset, domain.ValueScale, 0, 1)
	require.NoError(t, err)

	assert.True(t, e.NeedsRebalancing(alice))
}

func TestEngine_Rebalance_EmptyPortfolioIsNoOp(t *testing.T) {
	e, l, _ := newTestEngine(t, defaultPolicy())

	result, err := e.Rebalance(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, result.Adjustments)
	assert.Equal(t, int64(0), result.Summary.TotalValueUSD)
	assert.Empty(t, l.HedgePositions(alice))
}

func TestEngine_Rebalance_ThreeClassDeposit(t *testing.T) {
	ctx := context.Background()
	e, l, _ := newTestEngine(t, defaultPolicy())

	// 3000 USD in each class, all long, no hedges.
	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)
	_, err = l.RecordYieldDeposit(ctx, alice, domain.ClassBTC, btcAsset, domain.ValueScale/20)
	require.NoError(t, err)
	_, err = l.RecordYieldDeposit(ctx, alice, domain.ClassUSD, usdAsset, 3_000*domain.ValueScale)
	require.NoError(t, err)

	before := l.Summary(alice)
	require.Equal(t, 9_000*domain.ValueScale, before.TotalValueUSD)
	require.True(t, e.NeedsRebalancing(alice))

	result, err := e.Rebalance(ctx, alice)
	require.NoError(t, err)

	// BTC sits at 3333 bps against a 3000 target: above, so a short was
	// opened bringing its exposure down to exactly the target value.
	after := result.Summary
	assert.NotEqual(t, before.BTCExposureUSD, after.BTCExposureUSD)
	assert.Equal(t, 2_700*domain.ValueScale, after.BTCExposureUSD)
	assert.Positive(t, after.ETHExposureUSD)
	assert.Positive(t, after.USDExposureUSD)

	// ETH is below its 4000 target with no shorts to unwind: the shortfall
	// is reported, not silently swallowed.
	var eth ClassAdjustment
	for _, adj := range result.Adjustments {
		if adj.Class == domain.ClassETH {
			eth = adj
		}
	}
	assert.Equal(t, 600*domain.ValueScale, eth.AdjustmentUSD)
	assert.Equal(t, int64(0), eth.ReducedUSD)
	assert.Equal(t, 600*domain.ValueScale, eth.ShortfallUSD)

	// Hedges stay out of total value.
	assert.Equal(t, 9_000*domain.ValueScale, after.TotalValueUSD)
}

func TestEngine_Rebalance_ReducesExistingShorts(t *testing.T) {
	ctx := context.Background()
	e, l, venue := newTestEngine(t, defaultPolicy())

	// 3000 USD long ETH fully hedged, 7000 USD stable. ETH exposure is 0
	// against a 2800 USD target, so the pass unwinds short value.
	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)
	_, err = l.RecordYieldDeposit(ctx, alice, domain.ClassUSD, usdAsset, 7_000*domain.ValueScale)
	require.NoError(t, err)

	venueID, executed, err := venue.OpenShort(ctx, ethAsset, domain.ValueScale, 50)
	require.NoError(t, err)
	_, err = l.RecordHedgeOpen(ctx, alice, ethAsset, executed, 0, venueID)
	require.NoError(t, err)
	require.Equal(t, int64(0), l.Summary(alice).ETHExposureUSD)

	result, err := e.Rebalance(ctx, alice)
	require.NoError(t, err)

	// Target ETH value is 40% of 10000 = 4000 USD; only 3000 USD of short
	// existed, so 3000 is reduced and 1000 reported as shortfall.
	var eth ClassAdjustment
	for _, adj := range result.Adjustments {
		if adj.Class == domain.ClassETH {
			eth = adj
		}
	}
	assert.Equal(t, 4_000*domain.ValueScale, eth.AdjustmentUSD)
	assert.Equal(t, 3_000*domain.ValueScale, eth.ReducedUSD)
	assert.Equal(t, 1_000*domain.ValueScale, eth.ShortfallUSD)
	assert.Equal(t, 3_000*domain.ValueScale, result.Summary.ETHExposureUSD)
	assert.Empty(t, l.HedgePositions(alice))
}

func TestEngine_Rebalance_VenueFailureAborts(t *testing.T) {
	ctx := context.Background()
	e, l, venue := newTestEngine(t, defaultPolicy())

	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)

	venue.FailOpensWith(assert.AnError)
	_, err = e.Rebalance(ctx, alice)
	require.Error(t, err)
	assert.Empty(t, l.HedgePositions(alice))
}

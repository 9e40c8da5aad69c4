package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basislabs/hedgerd/internal/domain"
)

func TestLedger_Summary_DepositWithIssuanceFee(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// One unit of ETH deposited through an issuer charging a 2% fee mints
	// 0.98 units, valued at 2940 USD.
	minted := domain.ValueScale * 9_800 / 10_000
	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, minted)
	require.NoError(t, err)

	s := l.Summary(alice)
	assert.Equal(t, 2_940*domain.ValueScale, s.TotalValueUSD)
	assert.Positive(t, s.ETHExposureUSD)
	assert.Equal(t, int64(0), s.BTCExposureUSD)
	assert.Equal(t, int64(0), s.USDExposureUSD)
}

func TestLedger_Summary_HedgeOvershoot(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	minted := domain.ValueScale * 9_800 / 10_000
	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, minted)
	require.NoError(t, err)

	// A full 1-unit short (no fee on the hedge side) overshoots the fee-
	// reduced long position by 60 USD.
	_, err = l.RecordHedgeOpen(ctx, alice, ethAsset, domain.ValueScale, 0, 1)
	require.NoError(t, err)

	s := l.Summary(alice)
	assert.Equal(t, -60*domain.ValueScale, s.ETHExposureUSD)

	// Hedge value never counts toward total value.
	assert.Equal(t, 2_940*domain.ValueScale, s.TotalValueUSD)
}

func TestLedger_Summary_Additivity(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	deposits := []int64{domain.ValueScale, domain.ValueScale / 4, 3 * domain.ValueScale}
	hedges := []int64{domain.ValueScale / 2, domain.ValueScale / 5}

	var wantExposure int64
	for _, amount := range deposits {
		pos, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, amount)
		require.NoError(t, err)
		wantExposure += pos.ValueUSD
	}
	for i, amount := range hedges {
		id, err := l.RecordHedgeOpen(ctx, alice, ethAsset, amount, 0, uint64(i))
		require.NoError(t, err)
		pos, err := l.HedgePosition(id)
		require.NoError(t, err)
		wantExposure -= pos.ValueUSD
	}

	assert.Equal(t, wantExposure, l.Summary(alice).ETHExposureUSD)
}

func TestLedger_Summary_StableCountsTowardUSD(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassUSD, usdAsset, 1_000*domain.ValueScale)
	require.NoError(t, err)
	_, err = l.RecordStableDeploy(ctx, alice, venueAddr, 500*domain.ValueScale)
	require.NoError(t, err)

	s := l.Summary(alice)
	assert.Equal(t, 1_500*domain.ValueScale, s.USDExposureUSD)
	assert.Equal(t, 1_500*domain.ValueScale, s.TotalValueUSD)
}

func TestLedger_Summary_IsolatedPerParticipant(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.RecordYieldDeposit(ctx, alice, domain.ClassETH, ethAsset, domain.ValueScale)
	require.NoError(t, err)

	assert.Equal(t, int64(0), l.Summary(bob).TotalValueUSD)
}

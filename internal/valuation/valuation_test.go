package valuation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basislabs/hedgerd/internal/domain"
)

var (
	ethAsset = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	btcAsset = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdAsset = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	oddAsset = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func testRates() map[domain.Address]int64 {
	return map[domain.Address]int64{
		ethAsset: 3_000 * domain.ValueScale,
		btcAsset: 60_000 * domain.ValueScale,
		usdAsset: 1 * domain.ValueScale,
		oddAsset: 1_500_000, // 1.5 USD per unit, exercises truncation
	}
}

func TestStaticService_ValueOf(t *testing.T) {
	svc := NewStatic(testRates())

	assert.Equal(t, 3_000*domain.ValueScale, svc.ValueOf(ethAsset, domain.ValueScale))
	assert.Equal(t, 60_000*domain.ValueScale, svc.ValueOf(btcAsset, domain.ValueScale))
	assert.Equal(t, domain.ValueScale, svc.ValueOf(usdAsset, domain.ValueScale))

	// 1 base unit at 1.5 USD/unit truncates toward zero.
	assert.Equal(t, int64(1), svc.ValueOf(oddAsset, 1))

	// Unknown asset silently values to zero.
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	assert.Equal(t, int64(0), svc.ValueOf(unknown, domain.ValueScale))
	assert.Equal(t, int64(0), svc.AmountFor(unknown, domain.ValueScale))
}

func TestStaticService_LargeHoldings(t *testing.T) {
	svc := NewStatic(testRates())

	// Whale-sized holdings: the amount-times-rate product exceeds int64, so
	// the conversion must carry full intermediate precision.
	assert.Equal(t, 12_000_000*domain.ValueScale, svc.ValueOf(ethAsset, 4_000*domain.ValueScale))
	assert.Equal(t, 600_000_000*domain.ValueScale, svc.ValueOf(btcAsset, 10_000*domain.ValueScale))

	assert.Equal(t, 4_000*domain.ValueScale, svc.AmountFor(ethAsset, 12_000_000*domain.ValueScale))
	assert.Equal(t, 10_000*domain.ValueScale, svc.AmountFor(btcAsset, 600_000_000*domain.ValueScale))
}

func TestStaticService_InverseLaw(t *testing.T) {
	svc := NewStatic(testRates())

	amounts := []int64{1, 10, 1_000, domain.ValueScale, 7 * domain.ValueScale, 123_456_789}
	for _, asset := range []domain.Address{ethAsset, btcAsset, usdAsset} {
		for _, x := range amounts {
			got := svc.AmountFor(asset, svc.ValueOf(asset, x))
			// Exact for every rate that divides ValueScale evenly; within one
			// base unit otherwise.
			assert.InDelta(t, x, got, 1,
				"asset %s amount %d", asset.Hex(), x)
		}
	}
}

// fakeRateCache is an in-memory domain.RateCache.
type fakeRateCache struct {
	rates map[domain.Address]int64
	err   error
}

func (f *fakeRateCache) SetRate(ctx context.Context, asset domain.Address, rate int64, ts time.Time) error {
	f.rates[asset] = rate
	return nil
}

func (f *fakeRateCache) GetRate(ctx context.Context, asset domain.Address) (int64, time.Time, error) {
	r, ok := f.rates[asset]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return r, time.Now(), nil
}

func (f *fakeRateCache) GetRates(ctx context.Context, assets []domain.Address) (map[domain.Address]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[domain.Address]int64)
	for _, a := range assets {
		if r, ok := f.rates[a]; ok {
			out[a] = r
		}
	}
	return out, nil
}

func TestLiveService_Refresh(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakeRateCache{rates: map[domain.Address]int64{
		ethAsset: 4_000 * domain.ValueScale,
	}}
	svc := NewLive(cache, testRates(), logger)

	// Before refresh the seed rates apply.
	assert.Equal(t, 3_000*domain.ValueScale, svc.ValueOf(ethAsset, domain.ValueScale))

	require.NoError(t, svc.Refresh(context.Background()))

	// ETH picked up the live rate; BTC was absent from the cache and keeps
	// its seed.
	assert.Equal(t, 4_000*domain.ValueScale, svc.ValueOf(ethAsset, domain.ValueScale))
	assert.Equal(t, 60_000*domain.ValueScale, svc.ValueOf(btcAsset, domain.ValueScale))
}

func TestLiveService_RefreshError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := &fakeRateCache{rates: map[domain.Address]int64{}, err: assert.AnError}
	svc := NewLive(cache, testRates(), logger)

	require.Error(t, svc.Refresh(context.Background()))

	// A failed refresh leaves the snapshot untouched.
	assert.Equal(t, 3_000*domain.ValueScale, svc.ValueOf(ethAsset, domain.ValueScale))
}

package service

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
	"github.com/basislabs/hedgerd/internal/engine"
	"github.com/basislabs/hedgerd/internal/ledger"
	"github.com/basislabs/hedgerd/internal/valuation"
	"github.com/basislabs/hedgerd/internal/venue/sim"
)

var (
	testAlice = common.HexToAddress("0x000000000000000000000000000000000000a11c")

	testETHAsset = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	testBTCAsset = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testUSDAsset = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	testVenue    = common.HexToAddress("0x00000000000000000000000000000000000000f2")
)

type stubPolicy struct{ policy domain.AllocationPolicy }

func (p *stubPolicy) Policy() domain.AllocationPolicy { return p.policy }

type stubVenueSource struct{ venue domain.HedgeVenue }

func (v *stubVenueSource) HedgeVenue() domain.HedgeVenue { return v.venue }

type captureJournal struct {
	events []domain.LedgerEvent
	err    error
}

func (j *captureJournal) Append(context.Context, domain.LedgerEvent) error { return j.err }
func (j *captureJournal) List(context.Context, domain.Address, domain.ListOpts) ([]domain.LedgerEvent, error) {
	return j.events, nil
}
func (j *captureJournal) ListBefore(context.Context, time.Time) ([]domain.LedgerEvent, error) {
	return nil, nil
}
func (j *captureJournal) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type portfolioFixture struct {
	svc       *PortfolioService
	ledger    *ledger.Ledger
	ethIssuer *sim.Issuer
	hedge     *sim.HedgeVenue
	stable    *sim.StableVenue
}

func newPortfolioFixture(t *testing.T) *portfolioFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valuer := valuation.NewStatic(map[domain.Address]int64{
		testETHAsset: 3_000 * domain.ValueScale,
		testBTCAsset: 60_000 * domain.ValueScale,
		testUSDAsset: 1 * domain.ValueScale,
	})
	assets := map[domain.AssetClass]domain.Address{
		domain.ClassETH: testETHAsset,
		domain.ClassBTC: testBTCAsset,
		domain.ClassUSD: testUSDAsset,
	}
	l := ledger.New(valuer, assets, ledger.NewVenueRegistry(testVenue), logger)

	hedge := sim.NewHedgeVenue()
	hedge.SetFundingRate(testETHAsset, 10_000)
	hedge.SetFundingRate(testBTCAsset, 10_000)
	stable := sim.NewStableVenue(600)
	ethIssuer := sim.NewIssuer(testETHAsset, 200, 350)

	issuers := map[domain.AssetClass]domain.YieldIssuer{
		domain.ClassETH: ethIssuer,
		domain.ClassBTC: sim.NewIssuer(testBTCAsset, 0, 150),
		domain.ClassUSD: sim.NewIssuer(testUSDAsset, 0, 450),
	}
	policy := &stubPolicy{policy: domain.AllocationPolicy{
		TargetETHBps:   4_000,
		TargetBTCBps:   3_000,
		TargetUSDBps:   3_000,
		ThresholdBps:   200,
		MaxSlippageBps: 50,
	}}
	venues := &stubVenueSource{venue: hedge}
	eng := engine.New(l, valuer, policy, venues, logger)

	svc := NewPortfolioService(PortfolioDeps{
		Ledger:    l,
		Engine:    eng,
		Estimator: engine.NewEstimator(l, issuers, logger),
		Issuers:   issuers,
		Stables:   map[domain.Address]domain.StableVenue{testVenue: stable},
		Venues:    venues,
		Guard:     NewGuard(),
	}, logger)

	return &portfolioFixture{svc: svc, ledger: l, ethIssuer: ethIssuer, hedge: hedge, stable: stable}
}

func TestPortfolioService_Deposit(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	// The issuer takes its 2% fee before minting; the recorded position
	// reflects the minted amount, not the gross deposit.
	pos, err := f.svc.Deposit(ctx, testAlice, domain.ClassETH, domain.ValueScale)
	require.NoError(t, err)
	assert.Equal(t, int64(980_000), pos.Amount)
	assert.Equal(t, int64(2_940*domain.ValueScale), pos.ValueUSD)

	s := f.svc.Summary(testAlice)
	assert.Equal(t, int64(2_940*domain.ValueScale), s.TotalValueUSD)
}

func TestPortfolioService_Deposit_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	_, err := f.svc.Deposit(ctx, testAlice, domain.ClassETH, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// A negative deposit would push the portfolio total below zero.
	_, err = f.svc.Deposit(ctx, testAlice, domain.ClassETH, -domain.ValueScale)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, int64(0), f.svc.Summary(testAlice).TotalValueUSD)

	_, err = f.svc.Deposit(ctx, testAlice, domain.AssetClass("doge"), domain.ValueScale)
	assert.ErrorIs(t, err, domain.ErrUnknownAssetClass)
}

func TestPortfolioService_Deposit_NegativeMintRejected(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewPortfolioService(PortfolioDeps{
		Ledger:  f.ledger,
		Issuers: map[domain.AssetClass]domain.YieldIssuer{domain.ClassETH: &shortMintIssuer{minted: -domain.ValueScale}},
		Guard:   NewGuard(),
	}, logger)

	_, err := svc.Deposit(ctx, testAlice, domain.ClassETH, domain.ValueScale)
	assert.ErrorIs(t, err, domain.ErrIssuerMint)
	assert.Equal(t, int64(0), svc.Summary(testAlice).TotalValueUSD)
}

func TestPortfolioService_Deposit_IssuerFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)
	f.ethIssuer.FailDepositsWith(assert.AnError)

	_, err := f.svc.Deposit(ctx, testAlice, domain.ClassETH, domain.ValueScale)
	assert.ErrorIs(t, err, assert.AnError)

	// Nothing was retained.
	assert.Equal(t, int64(0), f.svc.Summary(testAlice).TotalValueUSD)
}

func TestPortfolioService_OpenHedge(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	id, err := f.svc.OpenHedge(ctx, testAlice, domain.ClassETH, domain.ValueScale/2, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	positions := f.svc.HedgePositions(testAlice)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(1_500*domain.ValueScale), positions[0].ValueUSD)
	assert.Equal(t, int64(10_000), positions[0].FundingRate)
}

func TestPortfolioService_OpenHedge_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	_, err := f.svc.OpenHedge(ctx, testAlice, domain.ClassUSD, domain.ValueScale, 50)
	assert.ErrorIs(t, err, domain.ErrStableHedgeDisallowed)

	_, err = f.svc.OpenHedge(ctx, testAlice, domain.ClassETH, 0, 50)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// A negative short would book positive exposure instead of a hedge.
	_, err = f.svc.OpenHedge(ctx, testAlice, domain.ClassETH, -domain.ValueScale, 50)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, int64(0), f.svc.Summary(testAlice).ETHExposureUSD)
	assert.Empty(t, f.svc.HedgePositions(testAlice))
}

func TestPortfolioService_OpenHedge_NoVenue(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewPortfolioService(PortfolioDeps{
		Ledger: f.ledger,
		Venues: &stubVenueSource{},
		Guard:  NewGuard(),
	}, logger)

	_, err := svc.OpenHedge(ctx, testAlice, domain.ClassETH, domain.ValueScale, 50)
	assert.ErrorIs(t, err, domain.ErrNoHedgeVenue)
}

func TestPortfolioService_DeployStable(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	pos, err := f.svc.DeployStable(ctx, testAlice, testVenue, 500*domain.ValueScale)
	require.NoError(t, err)
	assert.Equal(t, int64(500*domain.ValueScale), pos.ValueUSD)

	s := f.svc.Summary(testAlice)
	assert.Equal(t, int64(500*domain.ValueScale), s.USDExposureUSD)
}

func TestPortfolioService_DeployStable_UnapprovedVenue(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000f3")

	_, err := f.svc.DeployStable(ctx, testAlice, other, 500*domain.ValueScale)
	assert.ErrorIs(t, err, domain.ErrVenueNotApproved)
}

func TestPortfolioService_DeployStable_NegativeAmountRejected(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	_, err := f.svc.DeployStable(ctx, testAlice, testVenue, -domain.ValueScale)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPortfolioService_Rebalance(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	// All value in BTC against a 40/30/30 policy: the pass shorts BTC down
	// to its target.
	_, err := f.svc.Deposit(ctx, testAlice, domain.ClassBTC, domain.ValueScale/20)
	require.NoError(t, err)
	require.True(t, f.svc.NeedsRebalancing(testAlice))

	result, err := f.svc.Rebalance(ctx, testAlice)
	require.NoError(t, err)
	require.NotEmpty(t, result.Adjustments)

	// 3000 total, BTC target 30% = 900: a 2100 short was opened.
	assert.Equal(t, int64(900*domain.ValueScale), result.Summary.BTCExposureUSD)
}

func TestPortfolioService_Rebalance_EmptyPortfolio(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	result, err := f.svc.Rebalance(ctx, testAlice)
	require.NoError(t, err)
	assert.Empty(t, result.Adjustments)
}

func TestPortfolioService_EstimatedAPR(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	_, err := f.svc.Deposit(ctx, testAlice, domain.ClassUSD, 1_000*domain.ValueScale)
	require.NoError(t, err)

	apr, err := f.svc.EstimatedAPR(ctx, testAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(450), apr)
}

func TestPortfolioService_ReentrantCollaboratorRejected(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)

	// An issuer that calls back into Deposit mid-operation must be refused
	// before it can observe intermediate state.
	reentrant := &reentrantIssuer{svc: f.svc}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewPortfolioService(PortfolioDeps{
		Ledger:  f.ledger,
		Issuers: map[domain.AssetClass]domain.YieldIssuer{domain.ClassETH: reentrant},
		Guard:   NewGuard(),
	}, logger)
	reentrant.svc = svc

	_, err := svc.Deposit(ctx, testAlice, domain.ClassETH, domain.ValueScale)
	assert.ErrorIs(t, err, domain.ErrReentrantCall)
	assert.ErrorIs(t, reentrant.observed, domain.ErrReentrantCall)
}

func TestPortfolioService_JournalFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	f := newPortfolioFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	journal := &captureJournal{err: assert.AnError}
	svc := NewPortfolioService(PortfolioDeps{
		Ledger: f.ledger,
		Issuers: map[domain.AssetClass]domain.YieldIssuer{
			domain.ClassETH: sim.NewIssuer(testETHAsset, 0, 350),
		},
		Guard:   NewGuard(),
		Journal: journal,
	}, logger)

	// The ledger committed before the journal write; the deposit succeeds
	// even though the append failed.
	pos, err := svc.Deposit(ctx, testAlice, domain.ClassETH, domain.ValueScale)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000*domain.ValueScale), pos.ValueUSD)
}

// reentrantIssuer re-enters the service from inside Deposit and reports the
// error it observed.
type reentrantIssuer struct {
	svc      *PortfolioService
	observed error
}

func (r *reentrantIssuer) Deposit(ctx context.Context, amount int64) (int64, error) {
	_, r.observed = r.svc.Deposit(ctx, testAlice, domain.ClassETH, amount)
	return 0, r.observed
}

func (r *reentrantIssuer) Withdraw(ctx context.Context, amount int64) (int64, error) {
	return amount, nil
}
func (r *reentrantIssuer) ExchangeRate(ctx context.Context) (int64, error) {
	return domain.ValueScale, nil
}
func (r *reentrantIssuer) CurrentAPR(ctx context.Context) (int64, error) { return 0, nil }
func (r *reentrantIssuer) UnderlyingAsset() domain.Address               { return testETHAsset }

// shortMintIssuer reports a fixed mint result regardless of the deposit.
type shortMintIssuer struct {
	minted int64
}

func (s *shortMintIssuer) Deposit(ctx context.Context, amount int64) (int64, error) {
	return s.minted, nil
}

func (s *shortMintIssuer) Withdraw(ctx context.Context, amount int64) (int64, error) {
	return amount, nil
}
func (s *shortMintIssuer) ExchangeRate(ctx context.Context) (int64, error) {
	return domain.ValueScale, nil
}
func (s *shortMintIssuer) CurrentAPR(ctx context.Context) (int64, error) { return 0, nil }
func (s *shortMintIssuer) UnderlyingAsset() domain.Address               { return testETHAsset }

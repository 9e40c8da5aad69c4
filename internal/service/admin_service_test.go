package service

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
	"github.com/basislabs/hedgerd/internal/venue/sim"
)

var (
	testOwner    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	testStranger = common.HexToAddress("0x0000000000000000000000000000000000005716")

	testHedgeAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func validPolicy() domain.AllocationPolicy {
	return domain.AllocationPolicy{
		TargetETHBps:   4_000,
		TargetBTCBps:   3_000,
		TargetUSDBps:   3_000,
		ThresholdBps:   200,
		MaxSlippageBps: 50,
	}
}

func newTestAdmin(t *testing.T) *AdminService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hedgeVenues := map[domain.Address]domain.HedgeVenue{
		testHedgeAddr: sim.NewHedgeVenue(),
	}
	svc, err := NewAdminService(testOwner, validPolicy(), ledger.NewVenueRegistry(testVenue),
		hedgeVenues, testHedgeAddr, nil, nil, logger)
	require.NoError(t, err)
	return svc
}

func TestNewAdminService_RejectsInvalidPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := validPolicy()
	policy.TargetUSDBps = 2_000

	_, err := NewAdminService(testOwner, policy, ledger.NewVenueRegistry(), nil,
		domain.Address{}, nil, nil, logger)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)
}

func TestAdminService_UpdatePolicy(t *testing.T) {
	ctx := context.Background()
	svc := newTestAdmin(t)

	next := validPolicy()
	next.TargetETHBps = 5_000
	next.TargetUSDBps = 2_000
	require.NoError(t, svc.UpdatePolicy(ctx, testOwner, next))
	assert.Equal(t, next, svc.Policy())
}

func TestAdminService_UpdatePolicy_Rejections(t *testing.T) {
	ctx := context.Background()
	svc := newTestAdmin(t)

	err := svc.UpdatePolicy(ctx, testStranger, validPolicy())
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	// Targets must sum to exactly 10000 bps.
	bad := validPolicy()
	bad.TargetBTCBps = 3_500
	err = svc.UpdatePolicy(ctx, testOwner, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	bad = validPolicy()
	bad.TargetBTCBps = -1_000
	bad.TargetUSDBps = 7_000
	err = svc.UpdatePolicy(ctx, testOwner, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	// The failed updates left the policy untouched.
	assert.Equal(t, validPolicy(), svc.Policy())
}

func TestAdminService_VenueApproval(t *testing.T) {
	ctx := context.Background()
	svc := newTestAdmin(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000f3")

	assert.ErrorIs(t, svc.ApproveVenue(ctx, testStranger, other), domain.ErrNotOwner)

	require.NoError(t, svc.ApproveVenue(ctx, testOwner, other))
	assert.Equal(t, []domain.Address{testVenue, other}, svc.ApprovedVenues())

	require.NoError(t, svc.RevokeVenue(ctx, testOwner, testVenue))
	assert.Equal(t, []domain.Address{other}, svc.ApprovedVenues())

	// Revoking a venue that is not approved is reported, not ignored.
	assert.ErrorIs(t, svc.RevokeVenue(ctx, testOwner, testVenue), domain.ErrNotFound)
}

func TestAdminService_SetHedgeVenue(t *testing.T) {
	ctx := context.Background()
	svc := newTestAdmin(t)
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000f4")

	assert.ErrorIs(t, svc.SetHedgeVenue(ctx, testStranger, testHedgeAddr), domain.ErrNotOwner)
	assert.ErrorIs(t, svc.SetHedgeVenue(ctx, testOwner, unknown), domain.ErrNotFound)

	require.NoError(t, svc.SetHedgeVenue(ctx, testOwner, testHedgeAddr))
	assert.Equal(t, testHedgeAddr, svc.ActiveHedgeVenue())
	assert.NotNil(t, svc.HedgeVenue())
}

package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/basislabs/hedgerd/internal/domain"
)

// HedgeVenue simulates a perpetual-short venue. Opens execute in full;
// closes execute a configurable fraction of the requested amount so tests
// can exercise under-fulfilled reductions.
type HedgeVenue struct {
	mu           sync.Mutex
	nextID       uint64
	positions    map[uint64]domain.HedgePositionInfo
	fundingRates map[domain.Address]int64
	closeFillBps int64
	openErr      error
	closeErr     error
}

// NewHedgeVenue creates a HedgeVenue that fills closes in full.
func NewHedgeVenue() *HedgeVenue {
	return &HedgeVenue{
		nextID:       1,
		positions:    make(map[uint64]domain.HedgePositionInfo),
		fundingRates: make(map[domain.Address]int64),
		closeFillBps: domain.BpsDenominator,
	}
}

// SetFundingRate sets the funding rate reported for an asset.
func (v *HedgeVenue) SetFundingRate(asset domain.Address, rate int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fundingRates[asset] = rate
}

// SetCloseFillBps makes CloseShort execute only fillBps/10000 of each
// requested amount.
func (v *HedgeVenue) SetCloseFillBps(fillBps int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeFillBps = fillBps
}

// FailOpensWith makes every subsequent OpenShort return err. Pass nil to
// clear.
func (v *HedgeVenue) FailOpensWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openErr = err
}

// FailClosesWith makes every subsequent CloseShort return err. Pass nil to
// clear.
func (v *HedgeVenue) FailClosesWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeErr = err
}

// OpenShort opens a simulated short, executing the full requested amount.
func (v *HedgeVenue) OpenShort(ctx context.Context, asset domain.Address, amount int64, maxSlippageBps int64) (uint64, int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.openErr != nil {
		return 0, 0, v.openErr
	}
	id := v.nextID
	v.nextID++
	v.positions[id] = domain.HedgePositionInfo{
		Asset:       asset,
		Size:        amount,
		Collateral:  amount,
		Leverage:    1,
		FundingRate: v.fundingRates[asset],
	}
	return id, amount, nil
}

// CloseShort closes up to the requested amount, scaled by the configured
// fill fraction.
func (v *HedgeVenue) CloseShort(ctx context.Context, venueID uint64, amount int64, maxSlippageBps int64) (int64, int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closeErr != nil {
		return 0, 0, v.closeErr
	}
	pos, ok := v.positions[venueID]
	if !ok {
		return 0, 0, domain.ErrNotFound
	}
	closed := domain.MulDiv(amount, v.closeFillBps, domain.BpsDenominator)
	if closed > pos.Size {
		closed = pos.Size
	}
	pos.Size -= closed
	if pos.Size == 0 {
		delete(v.positions, venueID)
	} else {
		v.positions[venueID] = pos
	}
	return closed, 0, nil
}

// GetPositionInfo returns the venue-side view of a position.
func (v *HedgeVenue) GetPositionInfo(ctx context.Context, venueID uint64) (domain.HedgePositionInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[venueID]
	if !ok {
		return domain.HedgePositionInfo{}, domain.ErrNotFound
	}
	return pos, nil
}

// GetFundingRate returns the configured funding rate for an asset.
func (v *HedgeVenue) GetFundingRate(ctx context.Context, asset domain.Address) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fundingRates[asset], nil
}

// AddCollateral credits collateral to a position.
func (v *HedgeVenue) AddCollateral(ctx context.Context, venueID uint64, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[venueID]
	if !ok {
		return domain.ErrNotFound
	}
	pos.Collateral += amount
	v.positions[venueID] = pos
	return nil
}

// RemoveCollateral debits collateral from a position.
func (v *HedgeVenue) RemoveCollateral(ctx context.Context, venueID uint64, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[venueID]
	if !ok {
		return domain.ErrNotFound
	}
	if amount > pos.Collateral {
		return fmt.Errorf("sim: remove %d exceeds collateral %d", amount, pos.Collateral)
	}
	pos.Collateral -= amount
	v.positions[venueID] = pos
	return nil
}

// Compile-time interface check.
var _ domain.HedgeVenue = (*HedgeVenue)(nil)

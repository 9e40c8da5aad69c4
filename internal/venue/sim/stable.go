package sim

import (
	"context"
	"sync"

	"github.com/basislabs/hedgerd/internal/domain"
)

// StableVenue simulates an external stable yield venue minting shares 1:1
// against deposits.
type StableVenue struct {
	mu         sync.Mutex
	aprBps     int64
	tvl        int64
	balances   map[domain.Address]int64
	depositErr error
}

// NewStableVenue creates a StableVenue reporting aprBps.
func NewStableVenue(aprBps int64) *StableVenue {
	return &StableVenue{
		aprBps:   aprBps,
		balances: make(map[domain.Address]int64),
	}
}

// FailDepositsWith makes every subsequent Deposit return err. Pass nil to
// clear.
func (v *StableVenue) FailDepositsWith(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.depositErr = err
}

// Deposit accepts stable capital and mints shares 1:1.
func (v *StableVenue) Deposit(ctx context.Context, asset domain.Address, amount int64) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.depositErr != nil {
		return 0, v.depositErr
	}
	v.tvl += amount
	v.balances[asset] += amount
	return amount, nil
}

// Withdraw burns shares and releases stable capital 1:1.
func (v *StableVenue) Withdraw(ctx context.Context, asset domain.Address, shares int64) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	held := v.balances[asset]
	if shares > held {
		shares = held
	}
	v.balances[asset] -= shares
	v.tvl -= shares
	return shares, nil
}

// GetBalance returns the share balance held for an owner.
func (v *StableVenue) GetBalance(ctx context.Context, owner domain.Address) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[owner], nil
}

// GetCurrentAPR returns the venue's reported APR in basis points.
func (v *StableVenue) GetCurrentAPR(ctx context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.aprBps, nil
}

// GetTVL returns total value locked.
func (v *StableVenue) GetTVL(ctx context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tvl, nil
}

// Compile-time interface check.
var _ domain.StableVenue = (*StableVenue)(nil)

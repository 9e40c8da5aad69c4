// Package sim provides in-process implementations of the external
// collaborators: the yield-token issuer, the hedging venue, and the stable
// yield venue. Sim mode runs the full daemon against them; the test harness
// uses them for failure injection.
package sim

import (
	"context"
	"sync"

	"github.com/basislabs/hedgerd/internal/domain"
)

// Issuer simulates a yield-bearing asset issuer with a flat issuance fee and
// a fixed reported APR.
type Issuer struct {
	underlying domain.Address

	mu           sync.Mutex
	exchangeRate int64 // yield token per underlying, ValueScale fixed point
	feeBps       int64
	aprBps       int64
	totalMinted  int64
	depositErr   error
}

// NewIssuer creates an Issuer minting 1:1 minus feeBps, reporting aprBps.
func NewIssuer(underlying domain.Address, feeBps, aprBps int64) *Issuer {
	return &Issuer{
		underlying:   underlying,
		exchangeRate: domain.ValueScale,
		feeBps:       feeBps,
		aprBps:       aprBps,
	}
}

// FailDepositsWith makes every subsequent Deposit return err. Pass nil to
// clear.
func (i *Issuer) FailDepositsWith(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.depositErr = err
}

// Deposit mints yield tokens for amount of underlying, net of the issuance
// fee.
func (i *Issuer) Deposit(ctx context.Context, amount int64) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.depositErr != nil {
		return 0, i.depositErr
	}
	net := domain.MulDiv(amount, domain.BpsDenominator-i.feeBps, domain.BpsDenominator)
	minted := domain.MulDiv(net, domain.ValueScale, i.exchangeRate)
	i.totalMinted += minted
	return minted, nil
}

// Withdraw redeems yield tokens back into underlying at the current rate.
func (i *Issuer) Withdraw(ctx context.Context, amount int64) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if amount > i.totalMinted {
		amount = i.totalMinted
	}
	i.totalMinted -= amount
	return domain.MulDiv(amount, i.exchangeRate, domain.ValueScale), nil
}

// ExchangeRate returns the current yield-token exchange rate.
func (i *Issuer) ExchangeRate(ctx context.Context) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exchangeRate, nil
}

// SetExchangeRate updates the simulated exchange rate.
func (i *Issuer) SetExchangeRate(rate int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.exchangeRate = rate
}

// CurrentAPR returns the reported APR in basis points.
func (i *Issuer) CurrentAPR(ctx context.Context) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.aprBps, nil
}

// UnderlyingAsset returns the underlying asset address.
func (i *Issuer) UnderlyingAsset() domain.Address {
	return i.underlying
}

// Compile-time interface check.
var _ domain.YieldIssuer = (*Issuer)(nil)

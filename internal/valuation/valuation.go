// Package valuation converts asset amounts to USD values and back. It is the
// designated seam for price integration: the ledger and rebalance engine only
// see the Service interface, so the static rate table can be swapped for a
// live source without touching either.
package valuation

import (
	"github.com/basislabs/hedgerd/internal/domain"
)

// Service values an (asset, amount) pair in USD and inverts that conversion.
// Implementations must be deterministic for a given rate snapshot and must
// truncate toward zero. An unknown asset values to zero; callers that care
// must check asset identity before trusting a zero.
type Service interface {
	// ValueOf returns the USD value of amount units of asset, ValueScale
	// fixed point.
	ValueOf(asset domain.Address, amount int64) int64
	// AmountFor returns the asset amount worth usdValue, ValueScale fixed
	// point. Zero when the asset is unknown or its rate is zero.
	AmountFor(asset domain.Address, usdValue int64) int64
}

// StaticService is a Service backed by a fixed rate table: micro-USD per
// whole token unit. It stands in for a live oracle.
type StaticService struct {
	rates map[domain.Address]int64
}

// NewStatic creates a StaticService from the given rate table. The table is
// copied so later mutations by the caller are not observed.
func NewStatic(rates map[domain.Address]int64) *StaticService {
	cp := make(map[domain.Address]int64, len(rates))
	for a, r := range rates {
		cp[a] = r
	}
	return &StaticService{rates: cp}
}

// ValueOf converts amount units of asset into USD. Integer division
// truncates toward zero.
func (s *StaticService) ValueOf(asset domain.Address, amount int64) int64 {
	rate, ok := s.rates[asset]
	if !ok {
		return 0
	}
	return domain.MulDiv(amount, rate, domain.ValueScale)
}

// AmountFor converts usdValue into asset units at the current rate.
func (s *StaticService) AmountFor(asset domain.Address, usdValue int64) int64 {
	rate, ok := s.rates[asset]
	if !ok || rate == 0 {
		return 0
	}
	return domain.MulDiv(usdValue, domain.ValueScale, rate)
}

// Compile-time interface check.
var _ Service = (*StaticService)(nil)

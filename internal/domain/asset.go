// Package domain defines the core entities of the hedged portfolio: asset
// classes, positions, allocation policy, and the interfaces implemented by
// external collaborators and infrastructure adapters.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetClass partitions portfolio exposure into the three classes the
// allocation policy targets.
type AssetClass string

const (
	ClassETH AssetClass = "eth"
	ClassBTC AssetClass = "btc"
	ClassUSD AssetClass = "usd"
)

// AssetClasses lists all classes in policy order.
var AssetClasses = []AssetClass{ClassETH, ClassBTC, ClassUSD}

// Valid reports whether c is one of the three known classes.
func (c AssetClass) Valid() bool {
	switch c {
	case ClassETH, ClassBTC, ClassUSD:
		return true
	}
	return false
}

// Address aliases the Ethereum address type used to identify participants,
// yield-bearing assets, and venues.
type Address = common.Address

const (
	// ValueScale is the fixed-point scale for token amounts and USD values.
	// An amount of 1_000_000 is one whole token unit; a value of 1_000_000
	// is one US dollar. Conversion rates are micro-USD per whole unit.
	ValueScale int64 = 1_000_000

	// BpsDenominator is the basis-point denominator: 10_000 bps = 100%.
	BpsDenominator int64 = 10_000

	// FundingScale is the fixed-point scale for funding rates.
	FundingScale int64 = 1_000_000
)

// MulDiv returns a*b/den with full intermediate precision, truncating
// toward zero. Fixed-point conversions must route through this: a*b on
// int64 overflows well inside realistic portfolio sizes.
func MulDiv(a, b, den int64) int64 {
	p := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	p.Quo(p, big.NewInt(den))
	return p.Int64()
}

package domain

import "time"

// YieldPosition is one unit of capital placed into a yield-bearing asset.
// Positions are immutable once recorded: ValueUSD is the valuation snapshot
// taken at deposit time and is never refreshed in place.
type YieldPosition struct {
	Asset     Address
	Amount    int64 // token amount, ValueScale fixed point
	ValueUSD  int64 // USD value at creation, ValueScale fixed point
	Class     AssetClass
	CreatedAt time.Time
}

// HedgePosition is one open short position offsetting long exposure. Amount
// and ValueUSD are only ever updated together: any amount mutation must be
// followed by a valuation recomputation before the position is observable.
type HedgePosition struct {
	ID          uint64
	VenueID     uint64
	Asset       Address
	Amount      int64
	ValueUSD    int64
	Short       bool
	FundingRate int64 // signed, FundingScale fixed point
	OpenedAt    time.Time
}

// StablePosition is capital deployed from the stable yield-bearing asset
// into an approved external stable yield venue.
type StablePosition struct {
	Asset      Address
	Amount     int64
	ValueUSD   int64
	Venue      Address
	DeployedAt time.Time
}

// PortfolioSummary is the derived exposure view of one participant. It is
// recomputed from the ledger on every query and never cached. Hedge value is
// an offset to exposure, not capital under management, so it is excluded
// from TotalValueUSD.
type PortfolioSummary struct {
	Participant    Address `json:"participant"`
	TotalValueUSD  int64   `json:"total_value_usd"`
	ETHExposureUSD int64   `json:"eth_exposure_usd"`
	BTCExposureUSD int64   `json:"btc_exposure_usd"`
	USDExposureUSD int64   `json:"usd_exposure_usd"`
}

// Exposure returns the signed exposure for the given class.
func (s PortfolioSummary) Exposure(class AssetClass) int64 {
	switch class {
	case ClassETH:
		return s.ETHExposureUSD
	case ClassBTC:
		return s.BTCExposureUSD
	case ClassUSD:
		return s.USDExposureUSD
	}
	return 0
}

// AllocationPolicy holds the rebalancing targets and tolerances. Targets are
// expressed in basis points and must sum to exactly BpsDenominator.
type AllocationPolicy struct {
	TargetETHBps   int64 `json:"target_eth_bps"`
	TargetBTCBps   int64 `json:"target_btc_bps"`
	TargetUSDBps   int64 `json:"target_usd_bps"`
	ThresholdBps   int64 `json:"threshold_bps"`
	MaxSlippageBps int64 `json:"max_slippage_bps"`
}

// Target returns the target allocation in bps for the given class.
func (p AllocationPolicy) Target(class AssetClass) int64 {
	switch class {
	case ClassETH:
		return p.TargetETHBps
	case ClassBTC:
		return p.TargetBTCBps
	case ClassUSD:
		return p.TargetUSDBps
	}
	return 0
}

// Validate checks the policy invariants: targets sum to 100% and the
// tolerances are non-negative.
func (p AllocationPolicy) Validate() error {
	if p.TargetETHBps < 0 || p.TargetBTCBps < 0 || p.TargetUSDBps < 0 {
		return ErrInvalidAllocation
	}
	if p.TargetETHBps+p.TargetBTCBps+p.TargetUSDBps != BpsDenominator {
		return ErrInvalidAllocation
	}
	if p.ThresholdBps < 0 || p.MaxSlippageBps < 0 {
		return ErrInvalidAllocation
	}
	return nil
}

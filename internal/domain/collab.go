package domain

import "context"

// YieldIssuer mints and redeems a yield-bearing asset against its underlying.
// Amounts use ValueScale fixed point; rates are micro-USD per whole unit.
type YieldIssuer interface {
	// Deposit converts amount of underlying into the yield-bearing asset and
	// returns the minted token amount (net of any issuance fee).
	Deposit(ctx context.Context, amount int64) (minted int64, err error)
	// Withdraw redeems amount of the yield-bearing asset and returns the
	// underlying amount released.
	Withdraw(ctx context.Context, amount int64) (withdrawn int64, err error)
	// ExchangeRate returns the current yield-token to underlying rate,
	// ValueScale fixed point.
	ExchangeRate(ctx context.Context) (int64, error)
	// CurrentAPR returns the issuer-reported APR in basis points.
	CurrentAPR(ctx context.Context) (int64, error)
	// UnderlyingAsset returns the address of the underlying asset.
	UnderlyingAsset() Address
}

// HedgePositionInfo is the venue-side view of an open short.
type HedgePositionInfo struct {
	Asset            Address
	Size             int64
	Collateral       int64
	Leverage         int64
	LiquidationPrice int64
	FundingRate      int64
}

// HedgeVenue opens and closes leveraged short positions.
type HedgeVenue interface {
	// OpenShort opens a short and returns the venue position id and the
	// amount actually executed, which may be less than requested.
	OpenShort(ctx context.Context, asset Address, amount int64, maxSlippageBps int64) (venueID uint64, executed int64, err error)
	// CloseShort partially or fully closes a short and returns the amount
	// actually closed along with realized pnl.
	CloseShort(ctx context.Context, venueID uint64, amount int64, maxSlippageBps int64) (closed int64, pnl int64, err error)
	GetPositionInfo(ctx context.Context, venueID uint64) (HedgePositionInfo, error)
	GetFundingRate(ctx context.Context, asset Address) (int64, error)
	AddCollateral(ctx context.Context, venueID uint64, amount int64) error
	RemoveCollateral(ctx context.Context, venueID uint64, amount int64) error
}

// StableVenue is an external stable yield venue holding deployed capital
// against minted shares.
type StableVenue interface {
	Deposit(ctx context.Context, asset Address, amount int64) (shares int64, err error)
	Withdraw(ctx context.Context, asset Address, shares int64) (amount int64, err error)
	GetBalance(ctx context.Context, owner Address) (int64, error)
	GetCurrentAPR(ctx context.Context) (int64, error)
	GetTVL(ctx context.Context) (int64, error)
}

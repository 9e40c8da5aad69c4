package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrUnknownAssetClass     = errors.New("unknown asset class")
	ErrVenueNotApproved      = errors.New("venue not approved")
	ErrStableHedgeDisallowed = errors.New("hedging the stable class is disallowed")
	ErrInvalidAllocation     = errors.New("allocation targets must sum to 10000 bps")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrReentrantCall         = errors.New("reentrant call rejected")
	ErrIssuerMint            = errors.New("issuer minted zero tokens")
	ErrNoHedgeVenue          = errors.New("hedge venue not configured")
	ErrLockHeld              = errors.New("lock already held")
)

package ledger

import "errors"

var (
	// ErrUnknownMarket is returned when the collateral type was never listed.
	ErrUnknownMarket = errors.New("unknown collateral market")
	// ErrNotListed gates new deposits; existing positions stay redeemable.
	ErrNotListed = errors.New("collateral market is not listed")
	// ErrEmptyInput rejects a deposit with no items.
	ErrEmptyInput = errors.New("item list is empty")
	// ErrUnauthorizedCaller rejects a liquidation or verification call
	// from an identity that maps to no registered market.
	ErrUnauthorizedCaller = errors.New("caller is not a registered market")
	// ErrAmbiguousRedemptionArgs rejects a verification where not exactly
	// one of the two output amounts is nonzero.
	ErrAmbiguousRedemptionArgs = errors.New("exactly one redemption amount must be nonzero")
	// ErrInsufficientBacking rejects a redemption that would leave the
	// account unable to back its still-held collateral items.
	ErrInsufficientBacking = errors.New("remaining balance would not back held items")
	// ErrMarketAlreadyListed rejects listing the same collateral type twice.
	ErrMarketAlreadyListed = errors.New("collateral market already listed")

	// ErrInvalidPermit rejects a permit whose signature does not recover
	// to the redeeming owner.
	ErrInvalidPermit = errors.New("permit signature does not match owner")
	// ErrPermitExpired rejects a permit past its deadline.
	ErrPermitExpired = errors.New("permit deadline has passed")
)

package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CollateralMarket describes one collateral type listed on the ledger.
// Listed gates new deposits only: positions under an unlisted market stay
// redeemable and liquidatable.
type CollateralMarket struct {
	ReceiptToken         common.Address
	ShareToken           common.Address
	ItemsPerShare        decimal.Decimal
	LiquidationThreshold decimal.Decimal
	Listed               bool
}

// Validate checks the listing invariants.
func (m CollateralMarket) Validate() error {
	if !m.ItemsPerShare.IsPositive() || !m.ItemsPerShare.Equal(m.ItemsPerShare.Floor()) {
		return ErrBadItemsPerShare
	}
	if m.LiquidationThreshold.IsNegative() || m.LiquidationThreshold.GreaterThanOrEqual(m.ItemsPerShare) {
		return ErrBadThreshold
	}
	return nil
}

package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/pawnfi/lending-go/internal/domain"
)

// Custody moves and approves individual collateral items. A failed call
// aborts the enclosing ledger operation with no state change.
type Custody interface {
	TransferIn(ctx context.Context, item domain.ItemID, from common.Address) error
	TransferOut(ctx context.Context, item domain.ItemID, to common.Address) error
	Approve(ctx context.Context, item domain.ItemID, spender common.Address) error
}

// Wrapper is the fractionalization mechanism turning items into fungible
// shares and back. Convert is the irreversible liquidation path.
type Wrapper interface {
	Wrap(ctx context.Context, items []domain.ItemID) (decimal.Decimal, error)
	Unwrap(ctx context.Context, items []domain.ItemID) (decimal.Decimal, error)
	Convert(ctx context.Context, items []domain.ItemID) error
	SharesPerItem(ctx context.Context) (decimal.Decimal, error)
	Permit(ctx context.Context, owner, spender common.Address, amount decimal.Decimal, deadline int64, signature []byte) error
	Address() common.Address
}

// ReceiptToken is the collateral-backed receipt minted against wrapped
// items.
type ReceiptToken interface {
	BalanceOf(ctx context.Context, account common.Address) (decimal.Decimal, error)
	Transfer(ctx context.Context, to common.Address, amount decimal.Decimal) error
	TransferFrom(ctx context.Context, from, to common.Address, amount decimal.Decimal) error
}

// MarketRisk is the lending market's risk surface for one collateral
// type. The ledger never prices collateral itself: liquidation sizing is
// driven entirely by the balance this market reports.
type MarketRisk interface {
	AccrueInterest(ctx context.Context) error
	ExchangeRate(ctx context.Context) (decimal.Decimal, error)
	BalanceOf(ctx context.Context, account common.Address) (decimal.Decimal, error)
}

// Collaborators bundles the external contracts serving one collateral
// type.
type Collaborators struct {
	Custody Custody
	Wrapper Wrapper
	Receipt ReceiptToken
	Market  MarketRisk
}

package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pawnfi/lending-go/internal/access"
	"github.com/pawnfi/lending-go/internal/domain"
	"github.com/pawnfi/lending-go/internal/events"
)

var (
	admin       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ledgerSelf  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	bob         = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	collateral  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	receiptAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	shareAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	wrapperAddr = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type stubCustody struct {
	in, out, approved []domain.ItemID
	failTransferIn    bool
}

func (c *stubCustody) TransferIn(_ context.Context, item domain.ItemID, from common.Address) error {
	if c.failTransferIn {
		return errors.New("custody refused")
	}
	c.in = append(c.in, item)
	return nil
}

func (c *stubCustody) TransferOut(_ context.Context, item domain.ItemID, to common.Address) error {
	c.out = append(c.out, item)
	return nil
}

func (c *stubCustody) Approve(_ context.Context, item domain.ItemID, spender common.Address) error {
	c.approved = append(c.approved, item)
	return nil
}

type stubReceipt struct {
	self     common.Address
	balances map[common.Address]decimal.Decimal
}

func newStubReceipt(self common.Address) *stubReceipt {
	return &stubReceipt{self: self, balances: make(map[common.Address]decimal.Decimal)}
}

func (r *stubReceipt) BalanceOf(_ context.Context, account common.Address) (decimal.Decimal, error) {
	return r.balances[account], nil
}

func (r *stubReceipt) Transfer(_ context.Context, to common.Address, amount decimal.Decimal) error {
	r.balances[r.self] = r.balances[r.self].Sub(amount)
	r.balances[to] = r.balances[to].Add(amount)
	return nil
}

func (r *stubReceipt) TransferFrom(_ context.Context, from, to common.Address, amount decimal.Decimal) error {
	r.balances[from] = r.balances[from].Sub(amount)
	r.balances[to] = r.balances[to].Add(amount)
	return nil
}

type stubWrapper struct {
	receipt       *stubReceipt
	mintTo        common.Address
	sharesPerItem decimal.Decimal

	converted []domain.ItemID
	unwrapped []domain.ItemID
	permits   int
}

func (w *stubWrapper) Wrap(_ context.Context, items []domain.ItemID) (decimal.Decimal, error) {
	minted := w.sharesPerItem.Mul(decimal.NewFromInt(int64(len(items))))
	w.receipt.balances[w.mintTo] = w.receipt.balances[w.mintTo].Add(minted)
	return minted, nil
}

func (w *stubWrapper) Unwrap(_ context.Context, items []domain.ItemID) (decimal.Decimal, error) {
	w.unwrapped = append(w.unwrapped, items...)
	return w.sharesPerItem.Mul(decimal.NewFromInt(int64(len(items)))), nil
}

func (w *stubWrapper) Convert(_ context.Context, items []domain.ItemID) error {
	w.converted = append(w.converted, items...)
	return nil
}

func (w *stubWrapper) SharesPerItem(context.Context) (decimal.Decimal, error) {
	return w.sharesPerItem, nil
}

func (w *stubWrapper) Permit(_ context.Context, owner, spender common.Address, amount decimal.Decimal, deadline int64, sig []byte) error {
	w.permits++
	return nil
}

func (w *stubWrapper) Address() common.Address { return wrapperAddr }

type stubMarket struct {
	balances map[common.Address]decimal.Decimal
	rate     decimal.Decimal
	accruals int
}

func (m *stubMarket) AccrueInterest(context.Context) error {
	m.accruals++
	return nil
}

func (m *stubMarket) ExchangeRate(context.Context) (decimal.Decimal, error) {
	return m.rate, nil
}

func (m *stubMarket) BalanceOf(_ context.Context, account common.Address) (decimal.Decimal, error) {
	return m.balances[account], nil
}

type memJournal struct {
	events []events.Event
}

func (m *memJournal) Append(e events.Event) error {
	m.events = append(m.events, e)
	return nil
}

type fixture struct {
	ledger  *Ledger
	custody *stubCustody
	wrapper *stubWrapper
	receipt *stubReceipt
	market  *stubMarket
	journal *memJournal
}

// newFixture lists one collateral market with itemsPerShare=100 and
// liquidation threshold 50.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	acl := access.NewController(admin, zap.NewNop())
	j := &memJournal{}
	g := New(ledgerSelf, acl, j, zap.NewNop())

	custody := &stubCustody{}
	receipt := newStubReceipt(ledgerSelf)
	wrapper := &stubWrapper{receipt: receipt, mintTo: ledgerSelf, sharesPerItem: decimal.NewFromInt(100)}
	market := &stubMarket{balances: make(map[common.Address]decimal.Decimal), rate: decimal.New(1, 0)}

	cfg := domain.CollateralMarket{
		ReceiptToken:         receiptAddr,
		ShareToken:           shareAddr,
		ItemsPerShare:        decimal.NewFromInt(100),
		LiquidationThreshold: decimal.NewFromInt(50),
		Listed:               true,
	}
	require.NoError(t, g.ListMarket(admin, collateral, cfg, Collaborators{
		Custody: custody,
		Wrapper: wrapper,
		Receipt: receipt,
		Market:  market,
	}))

	return &fixture{ledger: g, custody: custody, wrapper: wrapper, receipt: receipt, market: market, journal: j}
}

func (f *fixture) deposit(t *testing.T, owner common.Address, items ...domain.ItemID) decimal.Decimal {
	t.Helper()
	delta, err := f.ledger.Deposit(context.Background(), owner, collateral, items)
	require.NoError(t, err)
	return delta
}

func TestDepositForwardsReceiptDelta(t *testing.T) {
	f := newFixture(t)

	delta := f.deposit(t, alice, 10, 11, 12)
	require.True(t, delta.Equal(decimal.NewFromInt(300)), "3 items at 100 shares each")
	require.True(t, f.receipt.balances[alice].Equal(decimal.NewFromInt(300)))
	require.Equal(t, []domain.ItemID{10, 11, 12}, f.ledger.Sequence(collateral, alice))
	require.Equal(t, []domain.ItemID{10, 11, 12}, f.custody.approved, "every item approved to the wrapper")
}

func TestDepositGates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Deposit(ctx, alice, collateral, nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = f.ledger.Deposit(ctx, alice, common.HexToAddress("0xdead"), []domain.ItemID{1})
	require.ErrorIs(t, err, ErrUnknownMarket)

	require.NoError(t, f.ledger.SetListed(admin, collateral, false))
	_, err = f.ledger.Deposit(ctx, alice, collateral, []domain.ItemID{1})
	require.ErrorIs(t, err, ErrNotListed)
}

func TestDepositCollaboratorFailureLeavesNoState(t *testing.T) {
	f := newFixture(t)
	f.custody.failTransferIn = true

	_, err := f.ledger.Deposit(context.Background(), alice, collateral, []domain.ItemID{1, 2})
	require.Error(t, err)
	require.Empty(t, f.ledger.Sequence(collateral, alice), "failed transfer mutates nothing")
	require.Empty(t, f.journal.events[1:], "no deposit event emitted") // events[0] is the listing
}

func TestRedeemSelectedIndexes(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 10, 11, 12)

	got, err := f.ledger.Redeem(context.Background(), alice, collateral, []int{0, 2})
	require.NoError(t, err)
	require.Equal(t, []domain.ItemID{10, 12}, got, "exactly the items at the original positions 0 and 2")
	require.Equal(t, []domain.ItemID{11}, f.ledger.Sequence(collateral, alice))

	require.True(t, f.receipt.balances[alice].Equal(decimal.NewFromInt(100)), "200 shares burned for 2 items")
	require.Equal(t, []domain.ItemID{10, 12}, f.wrapper.unwrapped)
	require.Equal(t, []domain.ItemID{10, 12}, f.custody.out)
}

func TestRedeemAllEmptiesSequence(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 1, 2, 3)

	_, err := f.ledger.Redeem(context.Background(), alice, collateral, []int{0, 1, 2})
	require.NoError(t, err)
	require.Empty(t, f.ledger.Sequence(collateral, alice))

	// emptied, not destroyed: deposits keep working
	f.deposit(t, alice, 9)
	require.Equal(t, []domain.ItemID{9}, f.ledger.Sequence(collateral, alice))
}

func TestRedeemValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, alice, 1, 2, 3)

	_, err := f.ledger.Redeem(ctx, alice, collateral, []int{1, 1})
	require.ErrorIs(t, err, domain.ErrInvalidIndexOrder)

	_, err = f.ledger.Redeem(ctx, alice, collateral, []int{0, 5})
	require.ErrorIs(t, err, domain.ErrIndexOutOfBounds)

	require.Equal(t, []domain.ItemID{1, 2, 3}, f.ledger.Sequence(collateral, alice))
	require.True(t, f.receipt.balances[alice].Equal(decimal.NewFromInt(300)), "rejected call burns nothing")
}

func TestAdjustOrderThenRedeem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, alice, 100, 200, 300)

	require.NoError(t, f.ledger.AdjustOrder(ctx, alice, collateral, []int{2, 0, 1}))
	require.Equal(t, []domain.ItemID{300, 100, 200}, f.ledger.Sequence(collateral, alice))

	got, err := f.ledger.Redeem(ctx, alice, collateral, []int{0})
	require.NoError(t, err)
	require.Equal(t, []domain.ItemID{300}, got, "redemption targets the new positions")
}

func TestAdjustOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, alice, 1, 2, 3)

	require.ErrorIs(t, f.ledger.AdjustOrder(ctx, alice, collateral, []int{0, 1}), domain.ErrLengthMismatch)
	require.ErrorIs(t, f.ledger.AdjustOrder(ctx, alice, collateral, []int{0, 0, 1}), domain.ErrDuplicateIndex)
	require.ErrorIs(t, f.ledger.AdjustOrder(ctx, alice, collateral, []int{0, 1, 7}), domain.ErrIndexOutOfBounds)
}

func TestLiquidateUnauthorizedCaller(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Liquidate(context.Background(), alice, bob)
	require.ErrorIs(t, err, ErrUnauthorizedCaller)
}

func TestLiquidateSeizesTailDeficit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, bob, 1, 2, 3, 4)

	// balance covers 2 items, remainder 30 < threshold 50: deficit 2
	f.market.balances[bob] = decimal.NewFromInt(230)

	seized, err := f.ledger.Liquidate(ctx, receiptAddr, bob)
	require.NoError(t, err)
	require.Equal(t, []domain.ItemID{3, 4}, seized, "always the tail of the sequence")
	require.Equal(t, []domain.ItemID{1, 2}, f.ledger.Sequence(collateral, bob))
	require.Equal(t, []domain.ItemID{3, 4}, f.wrapper.converted, "no return path for seized items")
	require.Equal(t, 1, f.market.accruals)
}

func TestLiquidateThresholdKeepsMarginalItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, bob, 1, 2, 3, 4)

	// remainder 50 meets the threshold: the marginal item stays covered
	f.market.balances[bob] = decimal.NewFromInt(250)

	seized, err := f.ledger.Liquidate(ctx, receiptAddr, bob)
	require.NoError(t, err)
	require.Equal(t, []domain.ItemID{4}, seized)
	require.Equal(t, []domain.ItemID{1, 2, 3}, f.ledger.Sequence(collateral, bob))
}

func TestLiquidateFullyCollateralizedIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, bob, 1, 2)

	f.market.balances[bob] = decimal.NewFromInt(200)
	eventsBefore := len(f.journal.events)

	seized, err := f.ledger.Liquidate(ctx, receiptAddr, bob)
	require.NoError(t, err)
	require.Empty(t, seized)
	require.Equal(t, []domain.ItemID{1, 2}, f.ledger.Sequence(collateral, bob))
	require.Len(t, f.journal.events, eventsBefore, "a no-op liquidation emits nothing")
	require.Empty(t, f.wrapper.converted)
}

func TestLiquidateAfterAdjustOrderProtectsItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, bob, 1, 2, 3)

	// bob shields item 3 by moving it off the tail
	require.NoError(t, f.ledger.AdjustOrder(ctx, bob, collateral, []int{2, 0, 1}))

	f.market.balances[bob] = decimal.NewFromInt(200)
	seized, err := f.ledger.Liquidate(ctx, receiptAddr, bob)
	require.NoError(t, err)
	require.Equal(t, []domain.ItemID{2}, seized)
	require.Equal(t, []domain.ItemID{3, 1}, f.ledger.Sequence(collateral, bob))
}

func TestRedeemVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.deposit(t, alice, 1, 2, 3)

	f.market.balances[alice] = decimal.NewFromInt(400)

	// both zero and both nonzero are ambiguous
	err := f.ledger.RedeemVerify(ctx, receiptAddr, alice, decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, ErrAmbiguousRedemptionArgs)
	err = f.ledger.RedeemVerify(ctx, receiptAddr, alice, decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrAmbiguousRedemptionArgs)

	// 400 - 100 = 300 still backs 3 items at 100 each
	require.NoError(t, f.ledger.RedeemVerify(ctx, receiptAddr, alice, decimal.Zero, decimal.NewFromInt(100)))
	require.NoError(t, f.ledger.RedeemVerify(ctx, receiptAddr, alice, decimal.NewFromInt(100), decimal.Zero))

	// 400 - 101 < 300: rejected
	err = f.ledger.RedeemVerify(ctx, receiptAddr, alice, decimal.Zero, decimal.NewFromInt(101))
	require.ErrorIs(t, err, ErrInsufficientBacking)

	err = f.ledger.RedeemVerify(ctx, alice, alice, decimal.Zero, decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrUnauthorizedCaller)
}

func TestResolveCollateralType(t *testing.T) {
	f := newFixture(t)

	got, err := f.ledger.ResolveCollateralType(receiptAddr)
	require.NoError(t, err)
	require.Equal(t, collateral, got)

	_, err = f.ledger.ResolveCollateralType(alice)
	require.ErrorIs(t, err, ErrUnauthorizedCaller)
}

func TestListMarketValidation(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.ListMarket(admin, collateral, domain.CollateralMarket{
		ReceiptToken:  receiptAddr,
		ItemsPerShare: decimal.NewFromInt(100),
		Listed:        true,
	}, Collaborators{})
	require.ErrorIs(t, err, ErrMarketAlreadyListed)

	err = f.ledger.ListMarket(admin, common.HexToAddress("0xbeef"), domain.CollateralMarket{
		ReceiptToken:         common.HexToAddress("0xb1"),
		ItemsPerShare:        decimal.NewFromInt(10),
		LiquidationThreshold: decimal.NewFromInt(10),
	}, Collaborators{})
	require.ErrorIs(t, err, domain.ErrBadThreshold)

	err = f.ledger.ListMarket(alice, common.HexToAddress("0xbeef"), domain.CollateralMarket{
		ReceiptToken:  common.HexToAddress("0xb1"),
		ItemsPerShare: decimal.NewFromInt(10),
	}, Collaborators{})
	require.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestSetLiquidationThreshold(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.ledger.SetLiquidationThreshold(admin, collateral, decimal.NewFromInt(100)), domain.ErrBadThreshold)
	require.NoError(t, f.ledger.SetLiquidationThreshold(admin, collateral, decimal.NewFromInt(99)))

	last := f.journal.events[len(f.journal.events)-1]
	require.Equal(t, events.TypeThresholdChanged, last.Type)
	require.Equal(t, "50", last.Attrs["old"])
	require.Equal(t, "99", last.Attrs["new"])
}

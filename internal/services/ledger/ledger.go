// Package ledger implements the fractional-NFT collateral ledger: the
// per-user, per-collateral-type ordered item sequences, deposit and
// redemption through the wrapping mechanism, deterministic tail-first
// liquidation sizing, and the client-controlled reordering that lets a
// holder shield specific items from seizure.
package ledger

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pawnfi/lending-go/internal/access"
	"github.com/pawnfi/lending-go/internal/domain"
	"github.com/pawnfi/lending-go/internal/events"
)

type journal interface {
	Append(events.Event) error
}

type marketState struct {
	cfg    domain.CollateralMarket
	collab Collaborators
}

type seqKey struct {
	collateral common.Address
	owner      common.Address
}

// Ledger owns every user collateral sequence. All operations run to
// completion under one mutex, mirroring the single-serialization-point
// execution model the ordering invariants were designed for. State is
// mutated only after every collaborator call has succeeded, so a failed
// transfer or wrap leaves no partial change behind.
type Ledger struct {
	mu sync.Mutex

	l       *zap.Logger
	acl     *access.Controller
	journal journal

	// self is the ledger's own identity with the custody and receipt
	// contracts.
	self common.Address

	markets   map[common.Address]*marketState
	byCaller  map[common.Address]common.Address // market contract -> collateral type
	sequences map[seqKey]*domain.CollateralSequence
}

// New builds an empty ledger operating under the given identity.
func New(self common.Address, acl *access.Controller, j journal, l *zap.Logger) *Ledger {
	return &Ledger{
		l:         l,
		acl:       acl,
		journal:   j,
		self:      self,
		markets:   make(map[common.Address]*marketState),
		byCaller:  make(map[common.Address]common.Address),
		sequences: make(map[seqKey]*domain.CollateralSequence),
	}
}

// ListMarket registers a collateral type with its configuration and
// external collaborators. The market contract identity (the receipt
// token) becomes the only caller allowed to liquidate this type.
func (g *Ledger) ListMarket(caller, collateralType common.Address, cfg domain.CollateralMarket, collab Collaborators) error {
	if err := g.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.markets[collateralType]; ok {
		return ErrMarketAlreadyListed
	}

	g.markets[collateralType] = &marketState{cfg: cfg, collab: collab}
	g.byCaller[cfg.ReceiptToken] = collateralType

	g.emit(events.New(events.TypeMarketListed, map[string]string{
		"collateral":      collateralType.Hex(),
		"receipt":         cfg.ReceiptToken.Hex(),
		"items_per_share": cfg.ItemsPerShare.String(),
		"threshold":       cfg.LiquidationThreshold.String(),
	}))
	return nil
}

// SetListed flips the deposit gate. Unlisting never strands positions:
// redemption and liquidation keep working.
func (g *Ledger) SetListed(caller, collateralType common.Address, listed bool) error {
	if err := g.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ms, ok := g.markets[collateralType]
	if !ok {
		return ErrUnknownMarket
	}

	g.emit(events.New(events.TypeListingChanged, map[string]string{
		"collateral": collateralType.Hex(),
		"old":        strconv.FormatBool(ms.cfg.Listed),
		"new":        strconv.FormatBool(listed),
	}))
	ms.cfg.Listed = listed
	return nil
}

// SetLiquidationThreshold replaces the anti-dust rounding threshold.
func (g *Ledger) SetLiquidationThreshold(caller, collateralType common.Address, threshold decimal.Decimal) error {
	if err := g.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ms, ok := g.markets[collateralType]
	if !ok {
		return ErrUnknownMarket
	}
	next := ms.cfg
	next.LiquidationThreshold = threshold
	if err := next.Validate(); err != nil {
		return err
	}

	g.emit(events.New(events.TypeThresholdChanged, map[string]string{
		"collateral": collateralType.Hex(),
		"old":        ms.cfg.LiquidationThreshold.String(),
		"new":        threshold.String(),
	}))
	ms.cfg = next
	return nil
}

// Deposit wraps the caller's items into fungible shares: custody takes
// each item in and approves the wrapper, the whole batch is wrapped in
// one call, and the resulting receipt-token balance delta is forwarded
// to the caller. Returns the forwarded delta.
func (g *Ledger) Deposit(ctx context.Context, caller, collateralType common.Address, items []domain.ItemID) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms, ok := g.markets[collateralType]
	if !ok {
		return decimal.Zero, ErrUnknownMarket
	}
	if !ms.cfg.Listed {
		return decimal.Zero, ErrNotListed
	}
	if len(items) == 0 {
		return decimal.Zero, ErrEmptyInput
	}

	before, err := ms.collab.Receipt.BalanceOf(ctx, g.self)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "receipt balance before wrap")
	}

	for _, item := range items {
		if err := ms.collab.Custody.TransferIn(ctx, item, caller); err != nil {
			return decimal.Zero, errors.Wrapf(err, "transfer in item %d", item)
		}
		if err := ms.collab.Custody.Approve(ctx, item, ms.collab.Wrapper.Address()); err != nil {
			return decimal.Zero, errors.Wrapf(err, "approve item %d", item)
		}
	}

	// batched for efficiency, not semantics: one wrap per deposit
	if _, err := ms.collab.Wrapper.Wrap(ctx, items); err != nil {
		return decimal.Zero, errors.Wrap(err, "wrap items")
	}

	after, err := ms.collab.Receipt.BalanceOf(ctx, g.self)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "receipt balance after wrap")
	}

	delta := after.Sub(before)
	if delta.IsPositive() {
		if err := ms.collab.Receipt.Transfer(ctx, caller, delta); err != nil {
			return decimal.Zero, errors.Wrap(err, "forward receipt delta")
		}
	}

	// every collaborator succeeded: commit the only internal state change
	g.sequence(collateralType, caller).Append(items...)

	g.emit(events.New(events.TypeDeposited, map[string]string{
		"collateral": collateralType.Hex(),
		"owner":      caller.Hex(),
		"items":      strconv.Itoa(len(items)),
		"receipts":   delta.String(),
	}))
	return delta, nil
}

// Redeem unwraps the items at the given strictly-increasing indexes of
// the caller's sequence and transfers them back. The share cost is
// count*itemsPerShare, pulled from the caller before unwrapping.
func (g *Ledger) Redeem(ctx context.Context, caller, collateralType common.Address, indexes []int) ([]domain.ItemID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.redeem(ctx, caller, collateralType, indexes)
}

// RedeemWithPermit verifies a signature-based allowance for the share
// amount, grants it through the wrapper, then performs the redemption.
func (g *Ledger) RedeemWithPermit(ctx context.Context, caller, collateralType common.Address, indexes []int, p Permit) ([]domain.ItemID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms, ok := g.markets[collateralType]
	if !ok {
		return nil, ErrUnknownMarket
	}
	if time.Now().After(p.Deadline) {
		return nil, ErrPermitExpired
	}

	signer, err := recoverPermitSigner(caller, g.self, p)
	if err != nil {
		return nil, err
	}
	if signer != caller {
		return nil, ErrInvalidPermit
	}

	amount := ms.cfg.ItemsPerShare.Mul(decimal.NewFromInt(int64(len(indexes))))
	if !amount.Equal(p.Amount) {
		return nil, ErrInvalidPermit
	}
	if err := ms.collab.Wrapper.Permit(ctx, caller, g.self, p.Amount, p.Deadline.Unix(), p.Signature); err != nil {
		return nil, errors.Wrap(err, "wrapper permit")
	}

	return g.redeem(ctx, caller, collateralType, indexes)
}

func (g *Ledger) redeem(ctx context.Context, caller, collateralType common.Address, indexes []int) ([]domain.ItemID, error) {
	ms, ok := g.markets[collateralType]
	if !ok {
		return nil, ErrUnknownMarket
	}

	seq := g.sequence(collateralType, caller)
	if err := seq.CheckAscending(indexes); err != nil {
		return nil, err
	}
	selected := seq.ItemsAt(indexes)

	redeemAmount := ms.cfg.ItemsPerShare.Mul(decimal.NewFromInt(int64(len(indexes))))
	if err := ms.collab.Receipt.TransferFrom(ctx, caller, g.self, redeemAmount); err != nil {
		return nil, errors.Wrap(err, "retrieve shares")
	}
	if _, err := ms.collab.Wrapper.Unwrap(ctx, selected); err != nil {
		return nil, errors.Wrap(err, "unwrap items")
	}
	for _, item := range selected {
		if err := ms.collab.Custody.TransferOut(ctx, item, caller); err != nil {
			return nil, errors.Wrapf(err, "transfer out item %d", item)
		}
	}

	// validated above, cannot fail now
	if _, err := seq.RemoveAscending(indexes); err != nil {
		return nil, err
	}

	g.emit(events.New(events.TypeRedeemed, map[string]string{
		"collateral": collateralType.Hex(),
		"owner":      caller.Hex(),
		"items":      strconv.Itoa(len(selected)),
		"shares":     redeemAmount.String(),
	}))
	return selected, nil
}

// Liquidate seizes the minimum number of the borrower's items needed to
// restore solvency, always from the tail of the sequence. Only the
// registered market contract for a collateral type may call it. Sizing:
// covered = floor(balance/itemsPerShare), plus one item when the
// remainder meets the liquidation threshold (rounding in the borrower's
// favor); the deficit beyond that is converted irreversibly. A deficit
// of zero or less is a no-op: no state change, no notification.
func (g *Ledger) Liquidate(ctx context.Context, caller, borrower common.Address) ([]domain.ItemID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	collateralType, ok := g.byCaller[caller]
	if !ok {
		return nil, ErrUnauthorizedCaller
	}
	ms := g.markets[collateralType]

	seq := g.sequence(collateralType, borrower)
	held := seq.Len()
	if held == 0 {
		return nil, nil
	}

	if err := ms.collab.Market.AccrueInterest(ctx); err != nil {
		return nil, errors.Wrap(err, "accrue interest")
	}
	balance, err := ms.collab.Market.BalanceOf(ctx, borrower)
	if err != nil {
		return nil, errors.Wrap(err, "borrower balance")
	}

	covered := balance.Div(ms.cfg.ItemsPerShare).Floor()
	remainder := balance.Sub(covered.Mul(ms.cfg.ItemsPerShare))
	if remainder.IsPositive() && remainder.GreaterThanOrEqual(ms.cfg.LiquidationThreshold) {
		covered = covered.Add(decimal.New(1, 0))
	}

	deficit := int64(held) - covered.IntPart()
	if deficit <= 0 {
		return nil, nil
	}

	seized := seq.Tail(int(deficit))
	if err := ms.collab.Wrapper.Convert(ctx, seized); err != nil {
		return nil, errors.Wrap(err, "convert seized items")
	}
	seq.TakeTail(int(deficit))

	g.emit(events.New(events.TypeLiquidated, map[string]string{
		"collateral": collateralType.Hex(),
		"borrower":   borrower.Hex(),
		"seized":     strconv.FormatInt(deficit, 10),
	}))
	return seized, nil
}

// AdjustOrder lets a holder reorder their own sequence so specific items
// sit away from the tail-first liquidation path. perm must be a
// bijection on [0, length).
func (g *Ledger) AdjustOrder(ctx context.Context, caller, collateralType common.Address, perm []int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.markets[collateralType]; !ok {
		return ErrUnknownMarket
	}

	seq := g.sequence(collateralType, caller)
	if err := seq.Reorder(perm); err != nil {
		return err
	}

	g.emit(events.New(events.TypeOrderAdjusted, map[string]string{
		"collateral": collateralType.Hex(),
		"owner":      caller.Hex(),
		"length":     strconv.Itoa(seq.Len()),
	}))
	return nil
}

// RedeemVerify accepts a proposed receipt redemption only if the
// account's post-redemption underlying balance still backs every item it
// holds. Exactly one of redeemTokens and redeemAmount must be nonzero.
func (g *Ledger) RedeemVerify(ctx context.Context, caller, account common.Address, redeemTokens, redeemAmount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	collateralType, ok := g.byCaller[caller]
	if !ok {
		return ErrUnauthorizedCaller
	}
	ms := g.markets[collateralType]

	if redeemTokens.IsZero() == redeemAmount.IsZero() {
		return ErrAmbiguousRedemptionArgs
	}

	rate, err := ms.collab.Market.ExchangeRate(ctx)
	if err != nil {
		return errors.Wrap(err, "exchange rate")
	}
	balance, err := ms.collab.Market.BalanceOf(ctx, account)
	if err != nil {
		return errors.Wrap(err, "account balance")
	}

	out := redeemAmount
	if !redeemTokens.IsZero() {
		out = redeemTokens.Mul(rate)
	}

	held := decimal.NewFromInt(int64(g.sequence(collateralType, account).Len()))
	required := ms.cfg.ItemsPerShare.Mul(held)
	remaining := balance.Mul(rate).Sub(out)
	if remaining.LessThan(required) {
		return ErrInsufficientBacking
	}
	return nil
}

// ResolveCollateralType maps a market contract identity back to its
// collateral type.
func (g *Ledger) ResolveCollateralType(market common.Address) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	collateralType, ok := g.byCaller[market]
	if !ok {
		return common.Address{}, ErrUnauthorizedCaller
	}
	return collateralType, nil
}

// Sequence returns a snapshot of one owner's current item ordering.
func (g *Ledger) Sequence(collateralType, owner common.Address) []domain.ItemID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.sequence(collateralType, owner).Items()
}

func (g *Ledger) sequence(collateralType, owner common.Address) *domain.CollateralSequence {
	key := seqKey{collateral: collateralType, owner: owner}
	seq := g.sequences[key]
	if seq == nil {
		seq = &domain.CollateralSequence{}
		g.sequences[key] = seq
	}
	return seq
}

func (g *Ledger) emit(e events.Event) {
	if g.journal == nil {
		return
	}
	if err := g.journal.Append(e); err != nil {
		g.l.Error("failed to journal event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

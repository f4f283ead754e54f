// Package oracle implements the aggregated price oracle: per-asset
// push-report round history blended with a pool-derived time-weighted
// price under configurable weights.
package oracle

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

type roundStore interface {
	Append(asset common.Address, id uint64, r domain.PriceRound) error
	Replay(fn func(asset common.Address, id uint64, r domain.PriceRound) error) error
}

// assetRounds is the in-memory blend window: round ids advance forward
// only, and only the two most recent rounds are kept hot. Full history
// lives in the round store.
type assetRounds struct {
	id       uint64
	latest   domain.PriceRound
	previous domain.PriceRound
}

// AggregatedOracle blends push-reported rounds with a pool TWAP.
// Every exported operation runs under one mutex: the single global
// serialization point, no partial interleaving is observable.
type AggregatedOracle struct {
	mu sync.Mutex

	l       *zap.Logger
	acl     *access.Controller
	store   roundStore
	journal journal
	finder  PoolFinder

	// numeraire is the reference token pool prices are quoted against.
	numeraire common.Address
	poolFee   uint32

	twapInterval time.Duration
	blend        domain.FeedWeights
	feedWeights  map[common.Address]decimal.Decimal
	rounds       map[common.Address]*assetRounds
}

// Config carries the oracle's construction parameters.
type Config struct {
	Numeraire    common.Address
	PoolFee      uint32
	TwapInterval time.Duration
	Blend        domain.FeedWeights
}

// New builds the oracle and rebuilds its blend window from the round
// store. finder may be nil when no pool source is configured: every pool
// price then reads as unavailable.
func New(cfg Config, acl *access.Controller, store roundStore, j journal, finder PoolFinder, l *zap.Logger) (*AggregatedOracle, error) {
	if err := cfg.Blend.Validate(); err != nil {
		return nil, err
	}
	if cfg.TwapInterval < time.Second {
		return nil, ErrBadInterval
	}

	o := &AggregatedOracle{
		l:            l,
		acl:          acl,
		store:        store,
		journal:      j,
		finder:       finder,
		numeraire:    cfg.Numeraire,
		poolFee:      cfg.PoolFee,
		twapInterval: cfg.TwapInterval,
		blend:        cfg.Blend,
		feedWeights:  make(map[common.Address]decimal.Decimal),
		rounds:       make(map[common.Address]*assetRounds),
	}

	if err := o.recover(); err != nil {
		return nil, err
	}
	return o, nil
}

// recover replays the round store into the in-memory window.
func (o *AggregatedOracle) recover() error {
	if o.store == nil {
		return nil
	}
	return o.store.Replay(func(asset common.Address, id uint64, r domain.PriceRound) error {
		ar := o.rounds[asset]
		if ar == nil {
			ar = &assetRounds{}
			o.rounds[asset] = ar
		}
		if id <= ar.id {
			return errors.Errorf("round store corrupt: round %d for %s does not advance past %d", id, asset.Hex(), ar.id)
		}
		ar.previous = ar.latest
		ar.latest = r
		ar.id = id
		return nil
	})
}

// Report appends a new round for asset. Trusted reporters only.
func (o *AggregatedOracle) Report(ctx context.Context, caller, asset common.Address, price decimal.Decimal) error {
	if err := o.acl.Require(caller, access.OpReport); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	return o.report(asset, price)
}

// ReportBatch reports several assets in one call. A length mismatch
// fails the whole call before any write; otherwise each asset's append
// is applied in order under the same critical section.
func (o *AggregatedOracle) ReportBatch(ctx context.Context, caller common.Address, assets []common.Address, prices []decimal.Decimal) error {
	if err := o.acl.Require(caller, access.OpReport); err != nil {
		return err
	}
	if len(assets) != len(prices) {
		return ErrBatchLengthMismatch
	}
	// the batch is one call: a bad price anywhere rejects it whole,
	// before any round is persisted
	for i, asset := range assets {
		if !prices[i].IsPositive() {
			return errors.Wrapf(ErrNonPositivePrice, "batch report for %s", asset.Hex())
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for i, asset := range assets {
		if err := o.report(asset, prices[i]); err != nil {
			return errors.Wrapf(err, "batch report for %s", asset.Hex())
		}
	}
	return nil
}

func (o *AggregatedOracle) report(asset common.Address, price decimal.Decimal) error {
	if !price.IsPositive() {
		return ErrNonPositivePrice
	}

	ar := o.rounds[asset]
	if ar == nil {
		ar = &assetRounds{}
		o.rounds[asset] = ar
	}

	round := domain.PriceRound{Price: price, ObservedAt: time.Now().UTC()}
	next := ar.id + 1

	// persist before mutating the window so a store failure leaves no trace
	if o.store != nil {
		if err := o.store.Append(asset, next, round); err != nil {
			return err
		}
	}

	ar.previous = ar.latest
	ar.latest = round
	ar.id = next

	o.emit(events.New(events.TypePriceReported, map[string]string{
		"asset": asset.Hex(),
		"round": u64s(next),
		"price": price.String(),
	}))
	return nil
}

// LatestBlendedPushPrice returns the weighted blend of the two most
// recent rounds. With fewer than two rounds the single latest price is
// returned unmodified; with none, zero (unavailable).
func (o *AggregatedOracle) LatestBlendedPushPrice(asset common.Address) decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.blendedPushPrice(asset)
}

func (o *AggregatedOracle) blendedPushPrice(asset common.Address) decimal.Decimal {
	ar := o.rounds[asset]
	if ar == nil || ar.id == 0 {
		return decimal.Zero
	}
	if ar.id < 2 {
		return ar.latest.Price
	}
	return ar.latest.Price.Mul(o.blend.Latest).Add(ar.previous.Price.Mul(o.blend.Previous))
}

// PoolTwapPrice derives a time-weighted price for asset from its pool
// against the reference numeraire. Zero means unavailable, never
// worthless: no pool, no finder, or a failed observation all degrade to
// zero rather than erroring (availability over strict failure).
func (o *AggregatedOracle) PoolTwapPrice(ctx context.Context, asset common.Address) decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.poolTwapPrice(ctx, asset)
}

func (o *AggregatedOracle) poolTwapPrice(ctx context.Context, asset common.Address) decimal.Decimal {
	if o.finder == nil {
		return decimal.Zero
	}

	pool, ok, err := o.finder.FindPool(ctx, asset, o.numeraire, o.poolFee)
	if err != nil || !ok {
		if err != nil {
			o.l.Warn("pool lookup failed", zap.String("asset", asset.Hex()), zap.Error(err))
		}
		return decimal.Zero
	}

	ticks, err := pool.Observe(ctx, twapSecondsAgo(o.twapInterval))
	if err != nil {
		o.l.Warn("pool observation failed", zap.String("asset", asset.Hex()), zap.Error(err))
		return decimal.Zero
	}

	price := twapFromTicks(ticks, o.twapInterval)
	if price.IsZero() {
		return decimal.Zero
	}

	// the raw ratio prices the quote-side token; invert so the result is
	// always "asset priced in the numeraire"
	if asset != pool.QuoteToken() {
		price = decimal.New(1, 0).Div(price)
	}
	return price
}

// AssetPrice blends the push price with the pool TWAP under the asset's
// feed weight. A feed weight of 1 never touches the pool; an unavailable
// (zero) pool price leaves the push price standing alone.
func (o *AggregatedOracle) AssetPrice(ctx context.Context, asset common.Address) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	push := o.blendedPushPrice(asset)

	fw, ok := o.feedWeights[asset]
	if !ok {
		fw = decimal.New(1, 0)
	}
	if fw.Equal(decimal.New(1, 0)) {
		return push, nil
	}

	twap := o.poolTwapPrice(ctx, asset)
	if twap.IsZero() {
		return push, nil
	}
	return push.Mul(fw).Add(twap.Mul(decimal.New(1, 0).Sub(fw))), nil
}

// SetFeedWeight sets asset's push-vs-pool weight, bounded to [0, 1].
func (o *AggregatedOracle) SetFeedWeight(caller, asset common.Address, w decimal.Decimal) error {
	if err := o.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}
	if w.IsNegative() || w.GreaterThan(decimal.New(1, 0)) {
		return ErrBadFeedWeight
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	old, ok := o.feedWeights[asset]
	if !ok {
		old = decimal.New(1, 0)
	}
	o.emit(events.New(events.TypeFeedWeightChanged, map[string]string{
		"asset": asset.Hex(),
		"old":   old.String(),
		"new":   w.String(),
	}))
	o.feedWeights[asset] = w
	return nil
}

// SetBlendWeights replaces the process-wide latest/previous round pair.
// The pair must sum to exactly 1.
func (o *AggregatedOracle) SetBlendWeights(caller common.Address, w domain.FeedWeights) error {
	if err := o.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.emit(events.New(events.TypeBlendWeightsChanged, map[string]string{
		"old_latest":   o.blend.Latest.String(),
		"old_previous": o.blend.Previous.String(),
		"new_latest":   w.Latest.String(),
		"new_previous": w.Previous.String(),
	}))
	o.blend = w
	return nil
}

// SetTwapInterval replaces the pool sampling interval.
func (o *AggregatedOracle) SetTwapInterval(caller common.Address, d time.Duration) error {
	if err := o.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}
	// observation offsets are whole seconds: anything shorter collapses
	// every offset to zero
	if d < time.Second {
		return ErrBadInterval
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.emit(events.New(events.TypeTwapIntervalChanged, map[string]string{
		"old": o.twapInterval.String(),
		"new": d.String(),
	}))
	o.twapInterval = d
	return nil
}

// SetReporter grants or revokes the reporting capability.
func (o *AggregatedOracle) SetReporter(caller, reporter common.Address, trusted bool) error {
	if err := o.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}

	o.emit(events.New(events.TypeReporterChanged, map[string]string{
		"reporter": reporter.Hex(),
		"old":      boolString(o.acl.Holds(reporter, access.OpReport)),
		"new":      boolString(trusted),
	}))

	if trusted {
		return o.acl.Grant(caller, access.OpReport, reporter)
	}
	return o.acl.Revoke(caller, access.OpReport, reporter)
}

func (o *AggregatedOracle) emit(e events.Event) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(e); err != nil {
		o.l.Error("failed to journal event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

func u64s(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

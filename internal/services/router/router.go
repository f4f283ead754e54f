// Package router implements the price router: per-asset feed bindings,
// USD conversion and per-market underlying price resolution on top of
// the aggregated oracle.
package router

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pawnfi/lending-go/internal/access"
	"github.com/pawnfi/lending-go/internal/domain"
	"github.com/pawnfi/lending-go/internal/events"
)

// Feed is one push-oracle price source. A zero or negative report means
// "no usable report".
type Feed interface {
	LatestReport(ctx context.Context) (int64, error)
	Decimals(ctx context.Context) (int32, error)
}

// FallbackOracle supplies a price when no direct feed binding resolves.
// Its prices are denominated in the native reference numeraire. The
// aggregated oracle satisfies this interface.
type FallbackOracle interface {
	AssetPrice(ctx context.Context, asset common.Address) (decimal.Decimal, error)
}

type journal interface {
	Append(events.Event) error
}

type binding struct {
	cfg  domain.AssetSourceBinding
	feed Feed
}

type marketInfo struct {
	underlying common.Address
	decimals   int32
	symbol     string
}

// Router resolves market underlyings to USD prices. Reads tolerate
// administrative state changing between calls; each call observes one
// consistent snapshot under the lock.
type Router struct {
	mu sync.RWMutex

	l        *zap.Logger
	acl      *access.Controller
	journal  journal
	fallback FallbackOracle

	// native is the native-wrapped asset; its own binding must terminate
	// in a direct USD feed (checked when the binding is set).
	native common.Address
	// wrappedNativeSymbol overrides underlying resolution: a market
	// registered under this symbol maps to the native-wrapped asset
	// instead of its declared underlying.
	wrappedNativeSymbol string

	bindings map[common.Address]binding
	markets  map[common.Address]marketInfo
}

// New builds a router pricing against the given native-wrapped asset.
func New(native common.Address, wrappedNativeSymbol string, fallback FallbackOracle, acl *access.Controller, j journal, l *zap.Logger) *Router {
	return &Router{
		l:                   l,
		acl:                 acl,
		journal:             j,
		fallback:            fallback,
		native:              native,
		wrappedNativeSymbol: wrappedNativeSymbol,
		bindings:            make(map[common.Address]binding),
		markets:             make(map[common.Address]marketInfo),
	}
}

// RegisterMarket records a market's underlying asset and decimal
// precision so UnderlyingPrice can resolve it.
func (r *Router) RegisterMarket(caller, market, underlying common.Address, decimals int32, symbol string) error {
	if err := r.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.markets[market] = marketInfo{underlying: underlying, decimals: decimals, symbol: symbol}
	r.l.Info("market registered",
		zap.String("market", market.Hex()),
		zap.String("underlying", underlying.Hex()),
		zap.String("symbol", symbol))
	return nil
}

// SetAssetBinding binds asset to a push feed. The native asset may only carry a
// direct USD binding: the conversion recursion is one level deep and
// this is its base case, enforced here instead of being an unchecked
// administrative contract.
func (r *Router) SetAssetBinding(caller, asset common.Address, cfg domain.AssetSourceBinding, feed Feed) error {
	if err := r.acl.Require(caller, access.OpConfigure); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if asset == r.native && feed != nil && cfg.Unit != domain.UnitUSD {
		return ErrNativeBindingNotUSD
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, had := r.bindings[asset]
	attrs := map[string]string{
		"asset":    asset.Hex(),
		"new_feed": cfg.Feed.Hex(),
		"new_unit": cfg.Unit.String(),
	}
	if had {
		attrs["old_feed"] = old.cfg.Feed.Hex()
		attrs["old_unit"] = old.cfg.Unit.String()
	}
	r.emit(events.New(events.TypeBindingChanged, attrs))

	// a nil feed (zero feed identifier) keeps the binding's scaling
	// fragment but routes every lookup through the fallback oracle
	r.bindings[asset] = binding{cfg: cfg, feed: feed}
	return nil
}

// UnderlyingPrice resolves market's underlying asset and returns its USD
// price per smallest base unit (multiplying a raw integer balance by the
// result yields USD). The wrapped-native market maps to the
// native-wrapped asset rather than its declared underlying.
func (r *Router) UnderlyingPrice(ctx context.Context, market common.Address) (decimal.Decimal, error) {
	r.mu.RLock()
	mi, ok := r.markets[market]
	native := r.native
	override := r.wrappedNativeSymbol
	r.mu.RUnlock()

	if !ok {
		return decimal.Zero, ErrAssetNotFound
	}

	underlying := mi.underlying
	if override != "" && mi.symbol == override {
		underlying = native
	}
	if underlying == (common.Address{}) {
		return decimal.Zero, ErrAssetNotFound
	}

	price, err := r.AssetPrice(ctx, underlying)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Shift(-mi.decimals), nil
}

// AssetPrice returns asset's USD price. A direct USD binding with a
// usable report answers immediately; a native-denominated binding or a
// fallback-oracle price is converted through the native asset's own USD
// feed. Feed unavailability is a silent fallback, never an error.
func (r *Router) AssetPrice(ctx context.Context, asset common.Address) (decimal.Decimal, error) {
	r.mu.RLock()
	b, bound := r.bindings[asset]
	r.mu.RUnlock()

	scale := decimal.New(1, 0)
	if bound {
		scale = b.cfg.ScalingFragment
	}

	if bound {
		if price, ok := r.readFeed(ctx, b.feed); ok {
			if b.cfg.Unit == domain.UnitUSD {
				return price.Div(scale), nil
			}
			// native-denominated feed: one conversion hop
			nativeUSD, err := r.nativeUSDPrice(ctx)
			if err != nil {
				return decimal.Zero, err
			}
			return nativeUSD.Mul(price).Div(scale), nil
		}
	}

	// no binding, zero feed, or non-positive report: fallback oracle,
	// scaled by the binding's fragment
	price, err := r.fallback.AssetPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fallback price for %s", asset.Hex())
	}
	price = price.Mul(scale)

	nativeUSD, err := r.nativeUSDPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return nativeUSD.Mul(price).Div(scale), nil
}

// nativeUSDPrice reads the native asset's own binding, which is
// guaranteed at configuration time to be a direct USD feed.
func (r *Router) nativeUSDPrice(ctx context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	b, bound := r.bindings[r.native]
	r.mu.RUnlock()

	if !bound || b.cfg.Unit != domain.UnitUSD {
		return decimal.Zero, ErrNativePriceUnavailable
	}

	price, ok := r.readFeed(ctx, b.feed)
	if !ok {
		return decimal.Zero, ErrNativePriceUnavailable
	}
	return price.Div(b.cfg.ScalingFragment), nil
}

// readFeed returns the feed's latest report rescaled to a natural-unit
// decimal, or false when the feed has no usable (strictly positive)
// report.
func (r *Router) readFeed(ctx context.Context, f Feed) (decimal.Decimal, bool) {
	if f == nil {
		return decimal.Zero, false
	}

	raw, err := f.LatestReport(ctx)
	if err != nil || raw <= 0 {
		if err != nil {
			r.l.Warn("feed report failed", zap.Error(err))
		}
		return decimal.Zero, false
	}

	dec, err := f.Decimals(ctx)
	if err != nil {
		r.l.Warn("feed decimals failed", zap.Error(err))
		return decimal.Zero, false
	}
	return decimal.New(raw, -dec), true
}

func (r *Router) emit(e events.Event) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(e); err != nil {
		r.l.Error("failed to journal event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

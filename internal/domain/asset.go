package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Unit says which numeraire a push feed reports its price in.
type Unit int

const (
	// UnitUSD means the feed reports a USD price directly.
	UnitUSD Unit = iota
	// UnitNative means the feed reports a price denominated in the
	// native-wrapped asset and needs a native/USD conversion.
	UnitNative
)

func (u Unit) String() string {
	switch u {
	case UnitUSD:
		return "usd"
	case UnitNative:
		return "native"
	default:
		return "unknown"
	}
}

// AssetSourceBinding ties an asset to its push feed. A zero Feed address
// signals "no direct feed, use the fallback oracle".
type AssetSourceBinding struct {
	ScalingFragment decimal.Decimal
	Feed            common.Address
	Unit            Unit
}

// Validate checks the binding invariants that hold regardless of which
// asset it is attached to.
func (b AssetSourceBinding) Validate() error {
	if !b.ScalingFragment.IsPositive() {
		return ErrBadScalingFragment
	}
	return nil
}

// PriceRound is one immutable, sequentially-numbered price report for an
// asset. Rounds are numbered from 1; round 0 is reserved empty so an
// unreported asset can never be confused with a reported one.
type PriceRound struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// FeedWeights is the process-wide pair blending the two most recent push
// rounds into one figure.
type FeedWeights struct {
	Latest   decimal.Decimal
	Previous decimal.Decimal
}

// Validate rejects any pair that does not sum to exactly 1.
func (w FeedWeights) Validate() error {
	if w.Latest.IsNegative() || w.Previous.IsNegative() {
		return ErrBadBlendWeights
	}
	if !w.Latest.Add(w.Previous).Equal(decimal.New(1, 0)) {
		return ErrBadBlendWeights
	}
	return nil
}

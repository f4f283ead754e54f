package oracle

import (
	"context"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// twapSubIntervals is the number of per-interval instantaneous prices
// averaged into the pool price: 6 observation points, 5 deltas.
const twapSubIntervals = 5

// Pool is one liquidity pool able to report cumulative tick observations.
type Pool interface {
	// Observe returns cumulative ticks at the given offsets into the past,
	// ordered the same way as secondsAgo.
	Observe(ctx context.Context, secondsAgo []uint32) ([]int64, error)
	// QuoteToken returns the pool token the raw tick ratio is quoted in.
	QuoteToken() common.Address
}

// PoolFinder locates the pool pairing an asset with the reference
// numeraire, if one exists.
type PoolFinder interface {
	FindPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (Pool, bool, error)
}

// twapFromTicks converts cumulative tick observations spaced interval
// seconds apart into the mean of the per-interval instantaneous prices.
// Each sub-interval's average tick t maps to the price ratio 1.0001^t.
func twapFromTicks(ticks []int64, interval time.Duration) decimal.Decimal {
	secs := interval.Seconds()
	if secs <= 0 || len(ticks) != twapSubIntervals+1 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for k := 0; k < twapSubIntervals; k++ {
		avgTick := float64(ticks[k+1]-ticks[k]) / secs
		sum = sum.Add(decimal.NewFromFloat(math.Pow(1.0001, avgTick)))
	}
	return sum.Div(decimal.NewFromInt(twapSubIntervals))
}

// twapSecondsAgo builds the 6-point observation offsets for the
// configured interval: oldest first, newest (0 seconds ago) last.
func twapSecondsAgo(interval time.Duration) []uint32 {
	secs := uint32(interval.Seconds())
	out := make([]uint32, twapSubIntervals+1)
	for i := range out {
		out[i] = secs * uint32(twapSubIntervals-i)
	}
	return out
}

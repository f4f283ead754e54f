package router

import "errors"

var (
	// ErrAssetNotFound is returned when a market's underlying asset cannot
	// be resolved (resolution yields the zero identifier).
	ErrAssetNotFound = errors.New("asset not found")
	// ErrNativeBindingNotUSD rejects, at configuration time, a binding
	// for the native-wrapped asset that does not terminate in a direct
	// USD feed. Native conversion recurses exactly one level deep and the
	// native binding is its base case.
	ErrNativeBindingNotUSD = errors.New("native asset binding must be a direct USD feed")
	// ErrNativePriceUnavailable is returned when a conversion needs the
	// native/USD price and the native feed has no usable report.
	ErrNativePriceUnavailable = errors.New("native asset price unavailable")
)

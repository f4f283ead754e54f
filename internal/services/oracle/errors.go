package oracle

import "errors"

var (
	// ErrBatchLengthMismatch rejects a batch report whose asset and price
	// slices differ in length, before any round is written.
	ErrBatchLengthMismatch = errors.New("batch assets and prices length mismatch")
	// ErrNonPositivePrice rejects a report that would store an unusable round.
	ErrNonPositivePrice = errors.New("reported price must be positive")
	// ErrBadFeedWeight rejects a per-asset feed weight outside [0, 1].
	ErrBadFeedWeight = errors.New("feed weight must be in [0, 1]")
	// ErrBadInterval rejects a TWAP sampling interval shorter than the
	// one-second observation granularity.
	ErrBadInterval = errors.New("twap interval must be at least one second")
)

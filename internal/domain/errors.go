package domain

import "errors"

var (
	// ErrInvalidIndexOrder is returned when a removal index set is not
	// strictly increasing.
	ErrInvalidIndexOrder = errors.New("indexes must be strictly increasing")
	// ErrIndexOutOfBounds is returned when an index is outside [0, len).
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	// ErrDuplicateIndex is returned when a permutation repeats a target index.
	ErrDuplicateIndex = errors.New("duplicate index in permutation")
	// ErrLengthMismatch is returned when a permutation does not cover the
	// whole sequence.
	ErrLengthMismatch = errors.New("permutation length mismatch")

	ErrBadScalingFragment = errors.New("scaling fragment must be positive")
	ErrBadBlendWeights    = errors.New("blend weights must sum to exactly 1")
	ErrBadItemsPerShare   = errors.New("items-per-share must be a positive integer")
	ErrBadThreshold       = errors.New("liquidation threshold must be in [0, itemsPerShare)")
)

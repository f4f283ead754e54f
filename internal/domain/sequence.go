package domain

// ItemID identifies one non-fungible collateral item.
type ItemID uint64

// CollateralSequence is the ordered, duplicate-free list of item ids one
// owner has deposited for one collateral type. Deposits append at the
// tail; removal shrinks from the tail via swap-and-pop; the order is
// user-significant because liquidation always seizes from the tail.
//
// The zero value is an empty, usable sequence. A fully redeemed sequence
// is emptied, not destroyed.
type CollateralSequence struct {
	items []ItemID
}

// Len returns the number of items currently held.
func (s *CollateralSequence) Len() int { return len(s.items) }

// Items returns a copy of the current ordering.
func (s *CollateralSequence) Items() []ItemID {
	out := make([]ItemID, len(s.items))
	copy(out, s.items)
	return out
}

// Append adds items at the tail, in the given order.
func (s *CollateralSequence) Append(items ...ItemID) {
	s.items = append(s.items, items...)
}

// CheckAscending validates a removal index set without mutating: every
// index in [0, Len) and strictly increasing. Ties reject with
// ErrInvalidIndexOrder so a duplicate can never remove two items.
func (s *CollateralSequence) CheckAscending(indexes []int) error {
	prev := -1
	for _, idx := range indexes {
		if idx < 0 || idx >= len(s.items) {
			return ErrIndexOutOfBounds
		}
		if idx <= prev {
			return ErrInvalidIndexOrder
		}
		prev = idx
	}
	return nil
}

// ItemsAt returns the items at the given indexes as of now, in index
// order. Indexes must already be validated.
func (s *CollateralSequence) ItemsAt(indexes []int) []ItemID {
	out := make([]ItemID, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, s.items[idx])
	}
	return out
}

// RemoveAscending removes the items at the given strictly-increasing
// indexes and returns them in index order. Swap-and-pop is applied from
// the highest index down so earlier pops never invalidate later indexes.
func (s *CollateralSequence) RemoveAscending(indexes []int) ([]ItemID, error) {
	if err := s.CheckAscending(indexes); err != nil {
		return nil, err
	}
	removed := s.ItemsAt(indexes)
	for i := len(indexes) - 1; i >= 0; i-- {
		idx := indexes[i]
		last := len(s.items) - 1
		s.items[idx] = s.items[last]
		s.items = s.items[:last]
	}
	return removed, nil
}

// Reorder replaces the current ordering with result[i] = old[perm[i]].
// perm must be a bijection on [0, Len).
func (s *CollateralSequence) Reorder(perm []int) error {
	if len(perm) != len(s.items) {
		return ErrLengthMismatch
	}
	seen := make([]bool, len(s.items))
	for _, idx := range perm {
		if idx < 0 || idx >= len(s.items) {
			return ErrIndexOutOfBounds
		}
		if seen[idx] {
			return ErrDuplicateIndex
		}
		seen[idx] = true
	}
	reordered := make([]ItemID, len(s.items))
	for i, idx := range perm {
		reordered[i] = s.items[idx]
	}
	s.items = reordered
	return nil
}

// Tail returns a copy of the last n items without removing them.
func (s *CollateralSequence) Tail(n int) []ItemID {
	if n <= 0 {
		return nil
	}
	if n > len(s.items) {
		n = len(s.items)
	}
	out := make([]ItemID, n)
	copy(out, s.items[len(s.items)-n:])
	return out
}

// TakeTail removes and returns the last n items. The returned slice keeps
// the sequence order.
func (s *CollateralSequence) TakeTail(n int) []ItemID {
	out := s.Tail(n)
	s.items = s.items[:len(s.items)-len(out)]
	return out
}

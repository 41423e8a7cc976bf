package exchange

import "math"

// MinCapacity is the smallest per-rank-pair chunk capacity: one slot for
// data or an INVALID sentinel, one for a COMPLETE sentinel.
const MinCapacity = 2

// A SizePolicy decides the per-rank-pair chunk capacity between rounds. It
// is mutated by exactly one thread at a barrier; growth is mandatory for
// correctness while shrinking is an opportunistic memory/bandwidth saving
// with hysteresis so that capacity does not oscillate.
type SizePolicy struct {
	capacity    int
	shrinkLimit float64
	shrinkSpare float64
	growExtra   float64
}

// NewSizePolicy starts the policy at the given capacity, raised to
// MinCapacity if needed.
func NewSizePolicy(initial int, shrinkLimit, shrinkSpare, growExtra float64) *SizePolicy {
	if initial < MinCapacity {
		initial = MinCapacity
	}
	return &SizePolicy{
		capacity:    initial,
		shrinkLimit: shrinkLimit,
		shrinkSpare: shrinkSpare,
		growExtra:   growExtra,
	}
}

// Capacity is the current per-rank-pair capacity in slots.
func (s *SizePolicy) Capacity() int {
	return s.capacity
}

// MaybeShrink applies the shrink rule given the largest slot demand any
// rank pair observed in the finished round, and reports whether capacity
// changed. Shrinking only triggers when the round stayed below shrinkLimit
// of capacity, and keeps shrinkSpare headroom above the observed demand.
func (s *SizePolicy) MaybeShrink(observedMax int) bool {
	if float64(observedMax) >= s.shrinkLimit*float64(s.capacity) {
		return false
	}
	next := int(math.Ceil((1 + s.shrinkSpare) * float64(observedMax)))
	if next < MinCapacity {
		next = MinCapacity
	}
	if next >= s.capacity {
		return false
	}
	s.capacity = next
	return true
}

// Grow raises capacity past the signaled demand with growExtra headroom and
// returns the new capacity. The result strictly exceeds both the demand and
// the previous capacity, so the retry loop converges.
func (s *SizePolicy) Grow(needed int) int {
	next := int(math.Ceil((1 + s.growExtra) * float64(needed)))
	if next <= needed {
		next = needed + 1
	}
	if next <= s.capacity {
		next = s.capacity + 1
	}
	s.capacity = next
	return next
}

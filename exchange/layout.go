package exchange

import "fmt"

// A ChunkLayout tracks one thread's write cursors into the flat send
// buffer. The buffer holds one chunk of capacity slots per destination
// rank; destination ranks are partitioned across threads, and a layout only
// admits writes to the ranks assigned to its thread. Accessing any other
// rank is a wiring bug and panics.
type ChunkLayout struct {
	beginRank int
	endRank   int
	capacity  int
	idx       []int
}

// NewChunkLayout creates cursors for the destination ranks [beginRank,
// endRank) at the given per-rank slot capacity.
func NewChunkLayout(beginRank, endRank, capacity int) *ChunkLayout {
	if beginRank < 0 || endRank < beginRank {
		panic(fmt.Sprintf("exchange: invalid rank range [%d,%d)", beginRank, endRank))
	}
	if capacity < MinCapacity {
		panic(fmt.Sprintf("exchange: chunk capacity %d below minimum %d", capacity, MinCapacity))
	}
	l := &ChunkLayout{
		beginRank: beginRank,
		endRank:   endRank,
		capacity:  capacity,
		idx:       make([]int, endRank-beginRank),
	}
	l.Reset()
	return l
}

// Reset moves every cursor back to the start of its chunk.
func (l *ChunkLayout) Reset() {
	for i := range l.idx {
		l.idx[i] = (l.beginRank + i) * l.capacity
	}
}

// Ranks returns the assigned destination rank range [begin, end).
func (l *ChunkLayout) Ranks() (begin, end int) {
	return l.beginRank, l.endRank
}

// Capacity is the per-rank chunk capacity in slots.
func (l *ChunkLayout) Capacity() int {
	return l.capacity
}

// Begin is the first slot index of a rank's chunk.
func (l *ChunkLayout) Begin(rank int) int {
	l.check(rank)
	return rank * l.capacity
}

// End is one past the last slot index of a rank's chunk.
func (l *ChunkLayout) End(rank int) int {
	l.check(rank)
	return rank*l.capacity + l.capacity
}

// Idx is the rank's current write cursor, Begin(rank) <= Idx(rank) <=
// End(rank).
func (l *ChunkLayout) Idx(rank int) int {
	return l.idx[l.check(rank)]
}

// IsChunkFilled reports whether the rank's chunk has no room left.
func (l *ChunkLayout) IsChunkFilled(rank int) bool {
	return l.idx[l.check(rank)] == rank*l.capacity+l.capacity
}

// Increase advances the rank's cursor past a written slot.
func (l *ChunkLayout) Increase(rank int) {
	i := l.check(rank)
	if l.idx[i] == rank*l.capacity+l.capacity {
		panic(fmt.Sprintf("exchange: write past filled chunk for rank %d", rank))
	}
	l.idx[i]++
}

// AreAllChunksFilled reports whether every assigned chunk is full.
func (l *ChunkLayout) AreAllChunksFilled() bool {
	for i, idx := range l.idx {
		if idx != (l.beginRank+i)*l.capacity+l.capacity {
			return false
		}
	}
	return true
}

func (l *ChunkLayout) check(rank int) int {
	if rank < l.beginRank || rank >= l.endRank {
		panic(fmt.Sprintf("exchange: rank %d outside assigned range [%d,%d)",
			rank, l.beginRank, l.endRank))
	}
	return rank - l.beginRank
}

package transport

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// A Group connects n in-process ranks through a shared rendezvous. Each
// collective runs in generations: every rank deposits its contribution,
// the last arrival releases the generation, and each rank assembles its
// result from the deposits. Deposits are double-buffered by generation
// parity so that a fast rank may enter the next collective while slow
// ranks are still assembling the previous one.
type Group struct {
	id   uuid.UUID
	size int

	mu   sync.Mutex
	cond *sync.Cond

	a2a rendezvous
	max rendezvous
}

type rendezvous struct {
	generation int
	arrived    int

	// Indexed by generation parity, then rank.
	bufs  [2][][]uint64
	words [2][]int
}

// NewGroup creates an in-process group of the given size.
func NewGroup(size int) *Group {
	if size < 1 {
		panic(fmt.Sprintf("transport: group size %d", size))
	}
	g := &Group{id: uuid.New(), size: size}
	g.cond = sync.NewCond(&g.mu)
	for parity := 0; parity < 2; parity++ {
		g.a2a.bufs[parity] = make([][]uint64, size)
		g.a2a.words[parity] = make([]int, size)
		g.max.bufs[parity] = make([][]uint64, size)
		g.max.words[parity] = make([]int, size)
	}
	return g
}

// ID identifies the group in diagnostics.
func (g *Group) ID() string {
	return g.id.String()
}

// Locals returns one handle per rank. Handles must not be shared between
// goroutines.
func (g *Group) Locals() []*Local {
	locals := make([]*Local, g.size)
	for i := range locals {
		locals[i] = &Local{group: g, rank: i}
	}
	return locals
}

// SpawnLocal creates a group of n ranks, runs f for each rank in its own
// goroutine, and blocks until every f returns.
func SpawnLocal(n int, f func(l *Local)) *Group {
	g := NewGroup(n)
	var wg sync.WaitGroup
	for _, l := range g.Locals() {
		wg.Add(1)
		l := l
		go func() {
			defer wg.Done()
			f(l)
		}()
	}
	wg.Wait()
	return g
}

// A Local is one rank's view of a Group.
type Local struct {
	group *Group
	rank  int
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.group.size }

// AllToAll implements the Collective contract over the shared rendezvous.
func (l *Local) AllToAll(send []uint64, sliceWords int) ([]uint64, error) {
	g := l.group
	if sliceWords <= 0 || len(send) != g.size*sliceWords {
		panic(fmt.Sprintf("transport: group %s rank %d: send buffer has %d words, want %d slices of %d",
			g.ID(), l.rank, len(send), g.size, sliceWords))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	parity := g.deposit(&g.a2a, l.rank, send, sliceWords)

	for r := 0; r < g.size; r++ {
		if w := g.a2a.words[parity][r]; w != sliceWords {
			panic(fmt.Sprintf("transport: group %s: rank %d exchanged slices of %d words, rank %d of %d",
				g.ID(), l.rank, sliceWords, r, w))
		}
	}

	recv := make([]uint64, g.size*sliceWords)
	for r := 0; r < g.size; r++ {
		mine := g.a2a.bufs[parity][r][l.rank*sliceWords : (l.rank+1)*sliceWords]
		copy(recv[r*sliceWords:], mine)
	}
	return recv, nil
}

// MaxAll implements the Collective contract over the shared rendezvous.
func (l *Local) MaxAll(v uint64) (uint64, error) {
	g := l.group

	g.mu.Lock()
	defer g.mu.Unlock()

	parity := g.deposit(&g.max, l.rank, []uint64{v}, 1)

	max := uint64(0)
	for r := 0; r < g.size; r++ {
		if x := g.max.bufs[parity][r][0]; x > max {
			max = x
		}
	}
	return max, nil
}

// deposit stores a rank's contribution, waits for the rest of the group,
// and returns the parity under which the generation's deposits live.
// Called with g.mu held.
func (g *Group) deposit(rv *rendezvous, rank int, data []uint64, words int) int {
	gen := rv.generation
	parity := gen & 1
	rv.bufs[parity][rank] = append(rv.bufs[parity][rank][:0], data...)
	rv.words[parity][rank] = words

	rv.arrived++
	if rv.arrived == g.size {
		rv.arrived = 0
		rv.generation++
		g.cond.Broadcast()
	} else {
		for gen == rv.generation {
			g.cond.Wait()
		}
	}
	return parity
}

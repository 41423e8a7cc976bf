package exchange

import (
	"fmt"
	"sync"
)

// A Barrier synchronizes a fixed set of worker threads at the phase
// transitions of an exchange round. It is reusable: the last arrival of a
// phase releases the rest and opens the next phase.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	phase   int
}

// NewBarrier creates a barrier for the given number of threads.
func NewBarrier(parties int) *Barrier {
	if parties < 1 {
		panic(fmt.Sprintf("exchange: barrier for %d parties", parties))
	}
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until every party has arrived at the current phase. The
// barrier's lock hand-off doubles as the memory fence between phases:
// writes made before Await by any party are visible to every party after.
func (b *Barrier) Await() {
	b.mu.Lock()
	phase := b.phase
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
	} else {
		for phase == b.phase {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}

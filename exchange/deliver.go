package exchange

import (
	"github.com/unixpickle/essentials"

	"github.com/telmok/synfire/routing"
	"github.com/telmok/synfire/wire"
)

// deliveryBatch is how many slots a scan unpacks per inner loop. Purely a
// pipelining tuning constant.
const deliveryBatch = 8

// A Deliverer converts received chunks back into deliveries for one worker
// thread. Every thread scans the whole receive buffer and filters by the
// embedded thread id, because senders cannot predict per-thread volume;
// chunks are read in source-rank order, which is deterministic per run but
// must not be relied upon across ranks.
type Deliverer struct {
	codec    wire.Codec
	router   routing.Router
	ranks    int
	minDelay int
	expander routing.Expander // non-nil iff compressed spikes are enabled
}

// NewDeliverer creates a deliverer. expander must be non-nil exactly when
// compressed spikes are enabled.
func NewDeliverer(codec wire.Codec, router routing.Router, ranks, minDelay int, expander routing.Expander) *Deliverer {
	return &Deliverer{
		codec:    codec,
		router:   router,
		ranks:    ranks,
		minDelay: minDelay,
		expander: expander,
	}
}

// Deliver dispatches every received slot owned by thread tid and returns
// the number of deliveries made. clock is the step the current window
// starts at; each slot's timestamp is clock plus its lag, computed once per
// lag value.
func (d *Deliverer) Deliver(tid int, recv []uint64, capacity int, clock routing.Step) int {
	words := d.codec.Words()

	steps := make([]routing.Step, d.minDelay)
	for lag := range steps {
		steps[lag] = clock + routing.Step(lag)
	}

	delivered := 0
	for rank := 0; rank < d.ranks; rank++ {
		base := rank * capacity
		if d.codec.Marker(recv[base*words:]) == wire.MarkerInvalid {
			continue
		}
		delivered += d.scanChunk(tid, recv, base, capacity, steps)
	}
	return delivered
}

func (d *Deliverer) scanChunk(tid int, recv []uint64, base, capacity int, steps []routing.Step) int {
	words := d.codec.Words()
	delivered := 0
	for i := base; i < base+capacity; {
		batchEnd := essentials.MinInt(i+deliveryBatch, base+capacity)
		for ; i < batchEnd; i++ {
			slot := d.codec.Unpack(recv[i*words:])
			if slot.Marker == wire.MarkerComplete {
				// Size sentinel, carries no spike.
				return delivered
			}
			delivered += d.dispatch(tid, slot, steps)
			if slot.Marker == wire.MarkerEnd {
				return delivered
			}
		}
	}
	return delivered
}

func (d *Deliverer) dispatch(tid int, slot wire.Slot, steps []routing.Step) int {
	step := steps[slot.Lag]
	if d.expander != nil {
		// Compressed slots are not addressed to a thread; every thread
		// expands its own share of the entry.
		conns := d.expander.Expand(tid, slot.SynType, slot.ConnID)
		for _, conn := range conns {
			d.router.Deliver(tid, slot.SynType, conn, step, slot.Offset)
		}
		return len(conns)
	}
	if slot.Thread != tid {
		return 0
	}
	d.router.Deliver(tid, slot.SynType, slot.ConnID, step, slot.Offset)
	return 1
}

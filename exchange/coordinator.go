package exchange

import (
	"fmt"
	"sync"

	"github.com/unixpickle/essentials"

	"github.com/telmok/synfire/config"
	"github.com/telmok/synfire/routing"
	"github.com/telmok/synfire/transport"
	"github.com/telmok/synfire/wire"
)

// Stats counts what the kernel has done since construction.
type Stats struct {
	// Rounds is the number of completed exchange rounds.
	Rounds int

	// Retries counts collate→exchange repetitions forced by overflow.
	Retries int

	// Grows and Shrinks count capacity changes.
	Grows   int
	Shrinks int

	// Delivered is the total number of deliveries dispatched.
	Delivered int64

	// Capacity is the per-rank-pair capacity after the last round.
	Capacity int
}

// A Coordinator orchestrates one full spike exchange per min-delay window
// for one rank. It owns the per-thread emission logs, the send buffer and
// its per-thread chunk layouts, and the adaptive size policy; the transport
// and the routing collaborator are injected at construction and shared with
// nothing else.
//
// A round walks the phases collate → exchange → (resize → collate)* →
// deliver. Worker threads move between phases through a shared barrier;
// the only rank-wide mutable state, the communication buffers, is
// partitioned so that no two threads write the same chunk, and the size
// policy is touched by thread 0 alone between barriers.
type Coordinator struct {
	codec  wire.Codec
	group  transport.Collective
	router routing.Router

	threads  int
	ranks    int
	minDelay int

	logs      []*EmissionLog
	layouts   []*ChunkLayout
	collator  *Collator
	deliverer *Deliverer
	sizer     *SizePolicy
	barrier   *Barrier

	demand    []int
	delivered []int
	sendBuf   []uint64
	recvBuf   []uint64

	// Round state, written by thread 0 between barriers.
	roundErr      error
	roundComplete bool
	roundNeeded   int

	stats Stats
}

// NewCoordinator wires a kernel for one rank. When compressed spikes are
// enabled the router must also implement routing.Expander.
func NewCoordinator(cfg config.Config, group transport.Collective, router routing.Router) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := wire.New(wire.Limits{
		Threads:        cfg.Threads,
		SynTypes:       cfg.MaxSynapseTypes,
		DelaySteps:     cfg.MinDelaySteps,
		ConnsPerThread: cfg.MaxConnectionsPerThread,
	}, cfg.OffGridSpiking)
	if err != nil {
		return nil, err
	}

	var expander routing.Expander
	if cfg.UseCompressedSpikes {
		var ok bool
		if expander, ok = router.(routing.Expander); !ok {
			return nil, fmt.Errorf("exchange: compressed spikes need a router implementing routing.Expander")
		}
	}

	c := &Coordinator{
		codec:     codec,
		group:     group,
		router:    router,
		threads:   cfg.Threads,
		ranks:     group.Size(),
		minDelay:  cfg.MinDelaySteps,
		collator:  NewCollator(codec, router),
		deliverer: NewDeliverer(codec, router, group.Size(), cfg.MinDelaySteps, expander),
		sizer: NewSizePolicy(cfg.InitialCapacity,
			cfg.ShrinkLimit, cfg.ShrinkSpare, cfg.GrowExtra),
		barrier:   NewBarrier(cfg.Threads),
		demand:    make([]int, group.Size()),
		delivered: make([]int, cfg.Threads),
	}
	c.logs = make([]*EmissionLog, cfg.Threads)
	for i := range c.logs {
		c.logs[i] = &EmissionLog{}
	}
	c.resize()
	return c, nil
}

// Log returns the emission log of one worker thread. Model code appends to
// it during update() and must not touch it while a round is in flight.
func (c *Coordinator) Log(tid int) *EmissionLog {
	return c.logs[tid]
}

// Capacity is the current per-rank-pair chunk capacity in slots.
func (c *Coordinator) Capacity() int {
	return c.sizer.Capacity()
}

// Stats returns a snapshot of the kernel's counters. Only valid between
// rounds.
func (c *Coordinator) Stats() Stats {
	return c.stats
}

// resize rebuilds the send buffer and the per-thread layouts for the
// current capacity. Runs on one thread between barriers, never while any
// thread is mid-write.
func (c *Coordinator) resize() {
	capacity := c.sizer.Capacity()
	c.sendBuf = make([]uint64, c.ranks*capacity*c.codec.Words())
	c.layouts = make([]*ChunkLayout, c.threads)
	for tid := range c.layouts {
		begin, end := c.rankRange(tid)
		c.layouts[tid] = NewChunkLayout(begin, end, capacity)
	}
}

// rankRange partitions the destination ranks evenly across threads.
func (c *Coordinator) rankRange(tid int) (begin, end int) {
	return tid * c.ranks / c.threads, (tid + 1) * c.ranks / c.threads
}

// RoundTrip runs one exchange round for worker thread tid. Every worker of
// the rank must call it concurrently with the same clock, after finishing
// its share of the window's neuron updates; the call returns once this
// thread's deliveries are done and the round is closed.
//
// A non-nil error is fatal for the whole run: overflow is handled
// internally by growing and retrying, so the only errors that surface are
// transport failures and resource exhaustion, after which buffer state for
// the in-flight round is unrecoverable.
func (c *Coordinator) RoundTrip(tid int, clock routing.Step) error {
	c.barrier.Await() // every worker has finished updating
	if tid == 0 {
		c.roundErr = nil
		for _, log := range c.logs {
			log.seal()
		}
	}

	for {
		c.collator.CollateWrite(c.layouts[tid], c.logs, c.sendBuf, c.demand)
		c.barrier.Await() // demand fully counted across threads

		globalMax := maxInts(c.demand)
		c.collator.CollateMark(c.layouts[tid], c.sendBuf, globalMax)
		c.barrier.Await() // chunks sealed, buffer ready to ship

		if tid == 0 {
			// Collectives are not reentrant per-thread: exactly one
			// thread per rank issues the call while the rest park at
			// the next barrier.
			recv, err := c.group.AllToAll(c.sendBuf, c.sizer.Capacity()*c.codec.Words())
			if err != nil {
				c.roundErr = fmt.Errorf("spike exchange: %w", err)
			} else {
				c.recvBuf = recv
				c.roundComplete, c.roundNeeded = c.scanCompletions(recv)
			}
		}
		c.barrier.Await() // exchange finished

		if c.roundErr != nil {
			return c.roundErr
		}
		if !c.roundComplete {
			break
		}
		if tid == 0 {
			// Backpressure: some rank's chunks overflowed. Grow past
			// the signaled demand and repeat the exchange without
			// clearing the logs. Every rank saw the same sentinels,
			// so every rank resizes identically.
			c.sizer.Grow(c.roundNeeded)
			c.resize()
			c.stats.Retries++
			c.stats.Grows++
		}
		c.barrier.Await() // new buffer in place on every thread
	}

	c.delivered[tid] = c.deliverer.Deliver(tid, c.recvBuf, c.sizer.Capacity(), clock)
	c.barrier.Await() // all deliveries done, receive buffer is dead

	c.logs[tid].Clear()
	c.logs[tid].unseal()
	if tid == 0 {
		c.closeRound()
	}
	c.barrier.Await() // round closed
	return c.roundErr
}

// closeRound gathers the round's global demand maximum, applies the shrink
// rule for the next round, and rolls up stats. Runs on thread 0 between
// the last two barriers of a round.
func (c *Coordinator) closeRound() {
	max, err := c.group.MaxAll(uint64(maxInts(c.demand)))
	if err != nil {
		c.roundErr = fmt.Errorf("spike exchange: gathering buffer usage: %w", err)
		return
	}
	if c.sizer.MaybeShrink(int(max)) {
		c.resize()
		c.stats.Shrinks++
	}
	c.stats.Rounds++
	for _, n := range c.delivered {
		c.stats.Delivered += int64(n)
	}
	c.stats.Capacity = c.sizer.Capacity()
}

// scanCompletions inspects the last slot of every received chunk for a
// COMPLETE sentinel and returns the largest signaled demand.
func (c *Coordinator) scanCompletions(recv []uint64) (complete bool, needed int) {
	words := c.codec.Words()
	capacity := c.sizer.Capacity()
	for rank := 0; rank < c.ranks; rank++ {
		last := (rank*capacity + capacity - 1) * words
		if c.codec.Marker(recv[last:]) == wire.MarkerComplete {
			complete = true
			needed = essentials.MaxInt(needed, c.codec.CompleteSize(recv[last:]))
		}
	}
	return
}

// Run executes one exchange round, forking one goroutine per worker
// thread. It is the fork-join convenience over RoundTrip for callers that
// do not keep their own worker pool.
func (c *Coordinator) Run(clock routing.Step) error {
	errs := make([]error, c.threads)
	var wg sync.WaitGroup
	for tid := 0; tid < c.threads; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			errs[tid] = c.RoundTrip(tid, clock)
		}(tid)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func maxInts(xs []int) int {
	max := 0
	for _, x := range xs {
		max = essentials.MaxInt(max, x)
	}
	return max
}

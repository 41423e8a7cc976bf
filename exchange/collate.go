package exchange

import (
	"github.com/telmok/synfire/routing"
	"github.com/telmok/synfire/wire"
)

// A Collator drains the emission logs of every thread into the send buffer
// chunks assigned to one thread's layout, and finishes each chunk with the
// sentinel protocol. Collation runs on all threads concurrently; because
// destination ranks are partitioned across layouts, no two threads ever
// touch the same chunk.
//
// Collation happens in two phases separated by a barrier: CollateWrite
// fills the chunks and counts true demand, CollateMark places the
// sentinels, which requires the demand maximum across every thread.
type Collator struct {
	codec  wire.Codec
	router routing.Router
}

// NewCollator creates a collator over the simulation's codec and router.
func NewCollator(codec wire.Codec, router routing.Router) *Collator {
	return &Collator{codec: codec, router: router}
}

// CollateWrite fills the assigned chunks of buf from the logs and records
// each assigned rank's true slot demand in demand. Logs are visited in
// thread order and records in emission order, so chunk contents do not
// depend on scheduling. A full chunk stops absorbing slots but keeps
// counting: the surplus is what the COMPLETE sentinel later reports, and
// the skipped spikes are re-collated after the buffer has grown.
func (c *Collator) CollateWrite(layout *ChunkLayout, logs []*EmissionLog, buf []uint64, demand []int) {
	words := c.codec.Words()
	begin, end := layout.Ranks()

	layout.Reset()
	for rank := begin; rank < end; rank++ {
		demand[rank] = 0
		// A stale COMPLETE from an earlier, fuller round must not
		// survive into this one.
		c.codec.SetMarker(buf[(layout.End(rank)-1)*words:], wire.MarkerDefault)
	}

	for tid, log := range logs {
		for _, rec := range log.Drain() {
			for _, tg := range c.router.RemoteTargets(tid, rec.Source) {
				if tg.Rank < begin || tg.Rank >= end {
					continue
				}
				demand[tg.Rank]++
				if layout.IsChunkFilled(tg.Rank) {
					continue
				}
				c.codec.Pack(wire.Slot{
					Thread:  tg.Thread,
					SynType: tg.SynType,
					ConnID:  tg.ConnID,
					Lag:     rec.Lag,
					Offset:  rec.Offset,
				}, buf[layout.Idx(tg.Rank)*words:])
				layout.Increase(tg.Rank)
			}
		}
	}
}

// CollateMark places the sentinels for the assigned chunks. globalMax is
// the largest demand any thread of this rank observed for any destination;
// when it exceeds capacity, every chunk's last slot becomes a COMPLETE
// sentinel carrying it, so each receiving rank can diagnose the overflow
// and the required size without a second coordination message.
func (c *Collator) CollateMark(layout *ChunkLayout, buf []uint64, globalMax int) {
	words := c.codec.Words()
	begin, end := layout.Ranks()
	overflow := globalMax > layout.Capacity()

	for rank := begin; rank < end; rank++ {
		if layout.Idx(rank) == layout.Begin(rank) {
			c.codec.SetMarker(buf[layout.Begin(rank)*words:], wire.MarkerInvalid)
		} else {
			c.codec.SetMarker(buf[(layout.Idx(rank)-1)*words:], wire.MarkerEnd)
		}
		if overflow {
			c.codec.PackComplete(buf[(layout.End(rank)-1)*words:], globalMax)
		}
	}
}

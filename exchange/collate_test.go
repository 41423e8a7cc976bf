package exchange

import (
	"testing"

	"github.com/telmok/synfire/routing"
	"github.com/telmok/synfire/wire"
)

func collateCodec(t *testing.T) wire.Codec {
	t.Helper()
	codec, err := wire.New(wire.Limits{
		Threads:        2,
		SynTypes:       2,
		DelaySteps:     4,
		ConnsPerThread: 64,
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	return codec
}

// Three destination ranks, capacity 4: rank 0 receives nothing, rank 1 two
// spikes, rank 2 six (overflowing). Sentinels per the protocol: INVALID on
// the empty chunk's first slot, END on the last written slot, and on
// overflow a COMPLETE carrying the demand on every chunk's final slot.
func TestCollateSentinels(t *testing.T) {
	codec := collateCodec(t)
	table := routing.NewStaticTable(nil)
	table.AddTarget(0, 0, routing.Target{Rank: 1, Thread: 0, SynType: 0, ConnID: 1})
	table.AddTarget(0, 0, routing.Target{Rank: 1, Thread: 1, SynType: 1, ConnID: 2})
	for conn := 0; conn < 6; conn++ {
		table.AddTarget(0, 1, routing.Target{Rank: 2, Thread: 0, SynType: 0, ConnID: conn})
	}

	log := &EmissionLog{}
	log.Record(0, 3)
	log.Record(1, 0)

	const capacity = 4
	layout := NewChunkLayout(0, 3, capacity)
	buf := make([]uint64, 3*capacity*codec.Words())
	demand := make([]int, 3)

	collator := NewCollator(codec, table)
	collator.CollateWrite(layout, []*EmissionLog{log}, buf, demand)

	for rank, want := range []int{0, 2, 6} {
		if demand[rank] != want {
			t.Errorf("demand[%d] is %d, want %d", rank, demand[rank], want)
		}
	}
	if !layout.IsChunkFilled(2) {
		t.Error("overflowing chunk not filled")
	}

	globalMax := 6
	collator.CollateMark(layout, buf, globalMax)

	slotMarker := func(slot int) wire.Marker {
		return codec.Marker(buf[slot*codec.Words():])
	}

	if m := slotMarker(layout.Begin(0)); m != wire.MarkerInvalid {
		t.Errorf("empty chunk's first slot is %v, want INVALID", m)
	}
	if m := slotMarker(layout.Begin(1) + 1); m != wire.MarkerEnd {
		t.Errorf("last written slot of rank 1 is %v, want END", m)
	}
	for rank := 0; rank < 3; rank++ {
		last := layout.End(rank) - 1
		if m := slotMarker(last); m != wire.MarkerComplete {
			t.Errorf("final slot of rank %d is %v, want COMPLETE", rank, m)
			continue
		}
		if n := codec.CompleteSize(buf[last*codec.Words():]); n != globalMax {
			t.Errorf("COMPLETE for rank %d encodes %d, want %d", rank, n, globalMax)
		}
	}

	// The written payload survives under the END marker.
	first := codec.Unpack(buf[layout.Begin(1)*codec.Words():])
	if first.ConnID != 1 || first.Lag != 3 || first.Thread != 0 {
		t.Errorf("first slot of rank 1 is %+v", first)
	}
}

func TestCollateNoOverflowLeavesNoComplete(t *testing.T) {
	codec := collateCodec(t)
	table := routing.NewStaticTable(nil)
	table.AddTarget(0, 0, routing.Target{Rank: 0, Thread: 0, SynType: 0, ConnID: 0})

	log := &EmissionLog{}
	log.Record(0, 0)

	const capacity = 4
	layout := NewChunkLayout(0, 1, capacity)
	buf := make([]uint64, capacity*codec.Words())
	demand := make([]int, 1)

	collator := NewCollator(codec, table)

	// Plant a stale COMPLETE where a bigger previous round left one.
	codec.PackComplete(buf[(capacity-1)*codec.Words():], 99)

	collator.CollateWrite(layout, []*EmissionLog{log}, buf, demand)
	collator.CollateMark(layout, buf, maxInts(demand))

	if m := codec.Marker(buf[(capacity-1)*codec.Words():]); m != wire.MarkerDefault {
		t.Errorf("stale marker survived collation: %v", m)
	}
	if m := codec.Marker(buf[0:]); m != wire.MarkerEnd {
		t.Errorf("single written slot is %v, want END", m)
	}
}

// Re-collating the same logs after a resize must reproduce the spikes
// exactly: the retry path rewrites the buffer instead of appending.
func TestCollateRewriteIsIdempotent(t *testing.T) {
	codec := collateCodec(t)
	table := routing.NewStaticTable(nil)
	for conn := 0; conn < 3; conn++ {
		table.AddTarget(0, 0, routing.Target{Rank: 0, Thread: 0, SynType: 0, ConnID: conn})
	}

	log := &EmissionLog{}
	log.Record(0, 1)
	logs := []*EmissionLog{log}
	collator := NewCollator(codec, table)

	// First pass at capacity 2 overflows.
	small := NewChunkLayout(0, 1, 2)
	smallBuf := make([]uint64, 2*codec.Words())
	demand := make([]int, 1)
	collator.CollateWrite(small, logs, smallBuf, demand)
	if demand[0] != 3 {
		t.Fatalf("demand is %d, want 3", demand[0])
	}

	// Retry at capacity 5: all three conns, once each, in target order.
	grown := NewChunkLayout(0, 1, 5)
	grownBuf := make([]uint64, 5*codec.Words())
	collator.CollateWrite(grown, logs, grownBuf, demand)
	collator.CollateMark(grown, grownBuf, maxInts(demand))

	if got := grown.Idx(0) - grown.Begin(0); got != 3 {
		t.Fatalf("wrote %d slots on retry, want 3", got)
	}
	for i := 0; i < 3; i++ {
		slot := codec.Unpack(grownBuf[i*codec.Words():])
		if slot.ConnID != i || slot.Lag != 1 {
			t.Errorf("slot %d is %+v", i, slot)
		}
	}
	if m := codec.Marker(grownBuf[2*codec.Words():]); m != wire.MarkerEnd {
		t.Errorf("retry's last written slot is %v, want END", m)
	}
}

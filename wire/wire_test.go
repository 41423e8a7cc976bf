package wire

import (
	"fmt"
	"testing"
)

func TestPackUnpack(t *testing.T) {
	lim := Limits{Threads: 4, SynTypes: 3, DelaySteps: 5, ConnsPerThread: 1000}
	slots := []Slot{
		{},
		{Thread: 3, SynType: 2, ConnID: 999, Lag: 4, Marker: MarkerEnd},
		{Thread: 1, SynType: 0, ConnID: 512, Lag: 0, Marker: MarkerDefault},
	}
	for _, offGrid := range []bool{false, true} {
		codec, err := New(lim, offGrid)
		if err != nil {
			t.Fatal(err)
		}
		for _, slot := range slots {
			t.Run(fmt.Sprintf("OffGrid=%v,Conn=%d", offGrid, slot.ConnID), func(t *testing.T) {
				if offGrid {
					slot.Offset = 0.125
				}
				buf := make([]uint64, codec.Words())
				codec.Pack(slot, buf)
				got := codec.Unpack(buf)
				if got != slot {
					t.Errorf("got %+v but packed %+v", got, slot)
				}
				if m := codec.Marker(buf); m != slot.Marker {
					t.Errorf("marker is %v but packed %v", m, slot.Marker)
				}
			})
		}
	}
}

func TestGridSlotFitsMachineWord(t *testing.T) {
	lim := Limits{Threads: 4, SynTypes: 3, DelaySteps: 5, ConnsPerThread: 1000}
	codec, err := New(lim, false)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]uint64, 1)
	codec.Pack(Slot{Thread: 3, SynType: 2, ConnID: 999, Lag: 4, Marker: MarkerInvalid}, buf)
	if buf[0]>>32 != 0 {
		t.Errorf("grid slot spills past 32 bits: %#x", buf[0])
	}
}

func TestFieldWidthOverflow(t *testing.T) {
	lim := Limits{Threads: 1 << 10, SynTypes: 1 << 10, DelaySteps: 1 << 10, ConnsPerThread: 1 << 10}
	if _, err := New(lim, false); err == nil {
		t.Error("expected an error for 40 payload bits")
	}
}

func TestSetMarkerKeepsPayload(t *testing.T) {
	codec, err := New(Limits{Threads: 2, SynTypes: 2, DelaySteps: 4, ConnsPerThread: 64}, false)
	if err != nil {
		t.Fatal(err)
	}
	slot := Slot{Thread: 1, SynType: 1, ConnID: 63, Lag: 3}
	buf := make([]uint64, 1)
	codec.Pack(slot, buf)
	codec.SetMarker(buf, MarkerEnd)
	got := codec.Unpack(buf)
	slot.Marker = MarkerEnd
	if got != slot {
		t.Errorf("got %+v after SetMarker, want %+v", got, slot)
	}
	codec.SetMarker(buf, MarkerDefault)
	if m := codec.Marker(buf); m != MarkerDefault {
		t.Errorf("marker is %v after reset", m)
	}
}

func TestCompleteSentinel(t *testing.T) {
	codec, err := New(Limits{Threads: 2, SynTypes: 2, DelaySteps: 4, ConnsPerThread: 64}, false)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]uint64, 1)

	codec.PackComplete(buf, 17)
	if m := codec.Marker(buf); m != MarkerComplete {
		t.Errorf("marker is %v, want COMPLETE", m)
	}
	if n := codec.CompleteSize(buf); n != 17 {
		t.Errorf("encoded size is %d, want 17", n)
	}

	// Demands past the field width saturate rather than wrap.
	codec.PackComplete(buf, codec.MaxConnID()+100)
	if n := codec.CompleteSize(buf); n != codec.MaxConnID() {
		t.Errorf("saturated size is %d, want %d", n, codec.MaxConnID())
	}
}

func TestPackRangePanics(t *testing.T) {
	codec, err := New(Limits{Threads: 2, SynTypes: 2, DelaySteps: 4, ConnsPerThread: 64}, false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for an out-of-range connection id")
		}
	}()
	codec.Pack(Slot{ConnID: 64}, make([]uint64, 1))
}

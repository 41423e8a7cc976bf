package exchange

import "testing"

func TestChunkLayoutCursors(t *testing.T) {
	l := NewChunkLayout(2, 5, 4)

	if begin, end := l.Ranks(); begin != 2 || end != 5 {
		t.Fatalf("rank range is [%d,%d)", begin, end)
	}
	if l.Begin(3) != 12 || l.End(3) != 16 {
		t.Errorf("chunk 3 spans [%d,%d)", l.Begin(3), l.End(3))
	}
	if l.Idx(3) != l.Begin(3) {
		t.Errorf("fresh cursor is %d, want %d", l.Idx(3), l.Begin(3))
	}

	for i := 0; i < 4; i++ {
		if l.IsChunkFilled(3) {
			t.Fatalf("chunk filled after %d writes", i)
		}
		l.Increase(3)
	}
	if !l.IsChunkFilled(3) {
		t.Error("chunk not filled at capacity")
	}
	if l.AreAllChunksFilled() {
		t.Error("all chunks reported filled with two chunks untouched")
	}

	l.Reset()
	if l.Idx(3) != l.Begin(3) {
		t.Errorf("cursor is %d after reset", l.Idx(3))
	}
}

func TestChunkLayoutAllFilled(t *testing.T) {
	l := NewChunkLayout(0, 2, 2)
	for rank := 0; rank < 2; rank++ {
		l.Increase(rank)
		l.Increase(rank)
	}
	if !l.AreAllChunksFilled() {
		t.Error("expected all chunks filled")
	}
}

func TestChunkLayoutOutOfRangePanics(t *testing.T) {
	l := NewChunkLayout(2, 5, 4)
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for an unassigned rank")
		}
	}()
	l.Idx(1)
}

func TestChunkLayoutOverfillPanics(t *testing.T) {
	l := NewChunkLayout(0, 1, 2)
	l.Increase(0)
	l.Increase(0)
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a write past a filled chunk")
		}
	}()
	l.Increase(0)
}

package wire

import (
	"fmt"
	"math"
	"math/bits"
)

// payloadBits is the number of bits available to the address fields of a
// packed slot. The two bits above them hold the marker, keeping the whole
// on-grid slot within a 32-bit word.
const payloadBits = 30

const markerShift = payloadBits

// Limits bounds the values a slot must be able to address. Field bit widths
// are derived from these at codec construction time.
type Limits struct {
	// Threads is the number of worker threads per rank.
	Threads int

	// SynTypes is the number of registered synapse types.
	SynTypes int

	// DelaySteps is the number of steps in the min-delay window; a slot's
	// lag is always below it.
	DelaySteps int

	// ConnsPerThread is the largest thread-local connection count.
	ConnsPerThread int
}

// A Codec packs slots into buffer words and back. A simulation selects one
// codec at setup and uses it for every buffer it ever exchanges; mixing
// codecs within one exchange is a protocol violation.
type Codec interface {
	// Words is the number of 64-bit buffer words one slot occupies.
	Words() int

	// Pack writes the slot into dst[:Words()].
	Pack(s Slot, dst []uint64)

	// Unpack reads the slot at src[:Words()].
	Unpack(src []uint64) Slot

	// Marker reads only the status marker of the slot at src.
	Marker(src []uint64) Marker

	// SetMarker rewrites the status marker of the slot at dst, leaving
	// the payload fields untouched.
	SetMarker(dst []uint64, m Marker)

	// PackComplete writes a COMPLETE sentinel carrying the sender's true
	// chunk demand in the connection-id field. Demands beyond MaxConnID
	// saturate.
	PackComplete(dst []uint64, needed int)

	// CompleteSize reads the demand encoded by PackComplete.
	CompleteSize(src []uint64) int

	// MaxConnID is the largest encodable connection id (and therefore the
	// largest demand a COMPLETE sentinel can report).
	MaxConnID() int
}

// New returns the codec for a simulation: the two-word precise codec when
// offGrid is set, the single-word grid codec otherwise.
func New(lim Limits, offGrid bool) (Codec, error) {
	fl, err := newFieldLayout(lim)
	if err != nil {
		return nil, err
	}
	if offGrid {
		return &PreciseCodec{fl}, nil
	}
	return &GridCodec{fl}, nil
}

// fieldLayout holds the shift/mask arithmetic shared by both codecs.
// Field order from the least significant bit: connection id, lag, thread,
// synapse type. The marker sits in bits 30-31.
type fieldLayout struct {
	connShift, lagShift, threadShift, synShift uint
	connMask, lagMask, threadMask, synMask     uint64
}

func newFieldLayout(lim Limits) (fieldLayout, error) {
	if lim.Threads < 1 || lim.SynTypes < 1 || lim.DelaySteps < 1 || lim.ConnsPerThread < 1 {
		return fieldLayout{}, fmt.Errorf("wire: limits must all be positive: %+v", lim)
	}
	connBits := bitsFor(lim.ConnsPerThread)
	lagBits := bitsFor(lim.DelaySteps)
	threadBits := bitsFor(lim.Threads)
	synBits := bitsFor(lim.SynTypes)
	total := connBits + lagBits + threadBits + synBits
	if total > payloadBits {
		return fieldLayout{}, fmt.Errorf(
			"wire: slot fields need %d bits (conn %d, lag %d, thread %d, syn %d) but only %d fit",
			total, connBits, lagBits, threadBits, synBits, payloadBits)
	}
	fl := fieldLayout{
		connShift:   0,
		lagShift:    connBits,
		threadShift: connBits + lagBits,
		synShift:    connBits + lagBits + threadBits,
	}
	fl.connMask = mask(connBits)
	fl.lagMask = mask(lagBits)
	fl.threadMask = mask(threadBits)
	fl.synMask = mask(synBits)
	return fl, nil
}

// bitsFor returns the width needed to represent the values 0..n-1.
func bitsFor(n int) uint {
	if n <= 1 {
		return 1
	}
	return uint(bits.Len(uint(n - 1)))
}

func mask(width uint) uint64 {
	return (1 << width) - 1
}

func (f *fieldLayout) pack(s Slot) uint64 {
	if uint64(s.ConnID) > f.connMask || s.ConnID < 0 {
		panic(fmt.Sprintf("wire: connection id %d exceeds field width", s.ConnID))
	}
	if uint64(s.Lag) > f.lagMask || s.Lag < 0 {
		panic(fmt.Sprintf("wire: lag %d exceeds field width", s.Lag))
	}
	if uint64(s.Thread) > f.threadMask || s.Thread < 0 {
		panic(fmt.Sprintf("wire: thread id %d exceeds field width", s.Thread))
	}
	if uint64(s.SynType) > f.synMask || s.SynType < 0 {
		panic(fmt.Sprintf("wire: synapse type %d exceeds field width", s.SynType))
	}
	return uint64(s.ConnID)<<f.connShift |
		uint64(s.Lag)<<f.lagShift |
		uint64(s.Thread)<<f.threadShift |
		uint64(s.SynType)<<f.synShift |
		uint64(s.Marker)<<markerShift
}

func (f *fieldLayout) unpack(w uint64) Slot {
	return Slot{
		ConnID:  int((w >> f.connShift) & f.connMask),
		Lag:     int((w >> f.lagShift) & f.lagMask),
		Thread:  int((w >> f.threadShift) & f.threadMask),
		SynType: int((w >> f.synShift) & f.synMask),
		Marker:  Marker((w >> markerShift) & 3),
	}
}

func (f *fieldLayout) marker(src []uint64) Marker {
	return Marker((src[0] >> markerShift) & 3)
}

func (f *fieldLayout) setMarker(dst []uint64, m Marker) {
	dst[0] = dst[0]&^(3<<markerShift) | uint64(m)<<markerShift
}

func (f *fieldLayout) packComplete(needed int) uint64 {
	if needed < 0 {
		panic(fmt.Sprintf("wire: negative chunk demand %d", needed))
	}
	n := uint64(needed)
	if n > f.connMask {
		n = f.connMask
	}
	return n<<f.connShift | uint64(MarkerComplete)<<markerShift
}

func (f *fieldLayout) completeSize(src []uint64) int {
	return int((src[0] >> f.connShift) & f.connMask)
}

func (f *fieldLayout) maxConnID() int {
	return int(f.connMask)
}

// GridCodec packs an on-grid spike into a single buffer word; the payload is
// statically confined to the low 32 bits.
type GridCodec struct {
	fieldLayout
}

func (g *GridCodec) Words() int { return 1 }

func (g *GridCodec) Pack(s Slot, dst []uint64) {
	dst[0] = g.pack(s)
}

func (g *GridCodec) Unpack(src []uint64) Slot {
	return g.unpack(src[0])
}

func (g *GridCodec) Marker(src []uint64) Marker       { return g.marker(src) }
func (g *GridCodec) SetMarker(dst []uint64, m Marker) { g.setMarker(dst, m) }

func (g *GridCodec) PackComplete(dst []uint64, needed int) {
	dst[0] = g.packComplete(needed)
}

func (g *GridCodec) CompleteSize(src []uint64) int { return g.completeSize(src) }
func (g *GridCodec) MaxConnID() int                { return g.maxConnID() }

// PreciseCodec packs an off-grid spike into two buffer words: the packed
// address word followed by the IEEE-754 bits of the sub-step offset.
type PreciseCodec struct {
	fieldLayout
}

func (p *PreciseCodec) Words() int { return 2 }

func (p *PreciseCodec) Pack(s Slot, dst []uint64) {
	dst[0] = p.pack(s)
	dst[1] = math.Float64bits(s.Offset)
}

func (p *PreciseCodec) Unpack(src []uint64) Slot {
	s := p.unpack(src[0])
	s.Offset = math.Float64frombits(src[1])
	return s
}

func (p *PreciseCodec) Marker(src []uint64) Marker       { return p.marker(src) }
func (p *PreciseCodec) SetMarker(dst []uint64, m Marker) { p.setMarker(dst, m) }

func (p *PreciseCodec) PackComplete(dst []uint64, needed int) {
	dst[0] = p.packComplete(needed)
	dst[1] = 0
}

func (p *PreciseCodec) CompleteSize(src []uint64) int { return p.completeSize(src) }
func (p *PreciseCodec) MaxConnID() int                { return p.maxConnID() }

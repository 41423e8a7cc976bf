// Package wire defines the packed representation of a spike as it crosses
// the network: a fixed-width slot holding the target address, the lag within
// the current min-delay window, and a two-bit status marker.
//
// The packing is defined by explicit shift/mask arithmetic rather than by
// struct layout, so that every implementation of the protocol produces
// byte-identical buffers.
package wire

// Marker is the two-bit status field carried by every slot.
type Marker uint8

const (
	// MarkerDefault tags an ordinary payload slot.
	MarkerDefault Marker = iota

	// MarkerEnd tags the last payload slot a rank wrote into a chunk.
	MarkerEnd

	// MarkerComplete tags the final slot of a chunk when the sender's
	// demand exceeded the chunk capacity. The slot carries no spike;
	// its connection-id field holds the demand instead.
	MarkerComplete

	// MarkerInvalid tags the first slot of a chunk that holds no data.
	MarkerInvalid
)

func (m Marker) String() string {
	switch m {
	case MarkerDefault:
		return "DEFAULT"
	case MarkerEnd:
		return "END"
	case MarkerComplete:
		return "COMPLETE"
	case MarkerInvalid:
		return "INVALID"
	}
	return "UNKNOWN"
}

// A Slot is the unpacked form of one communication-buffer entry.
//
// Offset is only meaningful under the precise codec; the grid codec drops
// it on Pack and leaves it zero on Unpack.
type Slot struct {
	Thread  int
	SynType int
	ConnID  int
	Lag     int
	Marker  Marker
	Offset  float64
}

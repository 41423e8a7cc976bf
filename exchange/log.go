// Package exchange implements the distributed spike-exchange kernel: spikes
// buffered per worker thread are collated into fixed-size per-rank chunks,
// exchanged with every other rank through an all-to-all collective, and
// delivered to their local targets. Chunk capacity adapts to traffic:
// overflow is signaled in-band through a COMPLETE sentinel and resolved by
// growing the buffer and repeating the exchange within the same round.
package exchange

import "fmt"

// A Record is one spike emitted during the current min-delay window, still
// addressed by its local source. The routing collaborator resolves the
// source to its remote targets during collation.
type Record struct {
	// Source is the thread-local id of the emitting neuron.
	Source int

	// Lag is the spike's step offset within the window.
	Lag int

	// Offset is the sub-step offset of an off-grid spike.
	Offset float64
}

// logGrowth caps a single capacity increment of an emission log so that a
// burst does not double an already huge backing array.
const logGrowth = 1 << 20

// An EmissionLog buffers the spikes one worker thread emits during a window.
// Exactly one thread appends to a given log, so it needs no locking. The
// backing array survives Clear, avoiding reallocation across rounds.
type EmissionLog struct {
	records []Record
	sealed  bool
}

// Record appends an on-grid spike.
func (l *EmissionLog) Record(source, lag int) {
	l.append(Record{Source: source, Lag: lag})
}

// RecordPrecise appends an off-grid spike with its sub-step offset.
func (l *EmissionLog) RecordPrecise(source, lag int, offset float64) {
	l.append(Record{Source: source, Lag: lag, Offset: offset})
}

func (l *EmissionLog) append(r Record) {
	if l.sealed {
		panic("exchange: spike recorded while an exchange round is in flight")
	}
	if len(l.records) == cap(l.records) {
		grow := cap(l.records)
		if grow == 0 {
			grow = 64
		} else if grow > logGrowth {
			grow = logGrowth
		}
		next := make([]Record, len(l.records), cap(l.records)+grow)
		copy(next, l.records)
		l.records = next
	}
	l.records = append(l.records, r)
}

// Drain returns a read-only view of the buffered records. The view is
// invalidated by the next Record or Clear call.
func (l *EmissionLog) Drain() []Record {
	return l.records
}

// Clear resets the log without releasing its backing storage. Clearing an
// empty log is a no-op.
func (l *EmissionLog) Clear() {
	l.records = l.records[:0]
}

// Len is the number of buffered records.
func (l *EmissionLog) Len() int {
	return len(l.records)
}

// seal blocks appends for the duration of an exchange round; model code
// must not emit between resize retries.
func (l *EmissionLog) seal()   { l.sealed = true }
func (l *EmissionLog) unseal() { l.sealed = false }

func (l *EmissionLog) String() string {
	return fmt.Sprintf("EmissionLog(%d records)", len(l.records))
}

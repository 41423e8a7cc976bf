// Package transport provides the collective-communication seam of the
// spike-exchange kernel: the contract every process-group implementation
// must satisfy, and an in-process implementation used by tests, benchmarks,
// and single-machine simulations.
package transport

// A Collective is one rank's handle on a process group.
//
// Every rank of a group must issue the same sequence of collective calls;
// the calls are rank-synchronous and block until the whole group has
// participated. A hung peer therefore hangs the collective, which is the
// intended behavior: the simulation cannot proceed without it.
type Collective interface {
	// Rank is this participant's index, 0 <= Rank() < Size().
	Rank() int

	// Size is the number of participants in the group.
	Size() int

	// AllToAll exchanges a flat buffer partitioned into Size() slices of
	// sliceWords words each. Slice placement is deterministic: slice i of
	// the result holds what rank i placed into its slice addressed to the
	// caller. Word order within a slice is preserved.
	AllToAll(send []uint64, sliceWords int) ([]uint64, error)

	// MaxAll returns the maximum of every rank's contribution.
	MaxAll(v uint64) (uint64, error)
}

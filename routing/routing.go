// Package routing defines the seam between the spike-exchange kernel and
// the connection infrastructure: how a local spike source is resolved to its
// remote targets, and how a received slot is handed to the code owning the
// target connection.
package routing

// Step is a simulation time step.
type Step int64

// Target addresses one remote connection of a spike source.
type Target struct {
	// Rank is the destination process.
	Rank int

	// Thread is the worker thread owning the connection on that rank.
	Thread int

	// SynType selects the synapse type the connection belongs to.
	SynType int

	// ConnID is the thread-local connection id. Under compressed spikes
	// it is instead an index into the receiver's expansion table.
	ConnID int
}

// A Router is the connection collaborator consumed by the exchange kernel.
//
// RemoteTargets must return the targets of a source in a fixed order that
// does not depend on thread scheduling; the kernel relies on this for
// reproducible buffer contents.
//
// Deliver is called from the worker goroutine owning the target thread, and
// never concurrently for the same thread id.
type Router interface {
	RemoteTargets(tid, source int) []Target

	Deliver(tid, synType, connID int, step Step, offset float64)
}

// An Expander resolves a compressed slot into the connection ids owned by
// one thread. Routers must implement it when compressed spikes are enabled;
// threads with no share of the entry return an empty slice.
type Expander interface {
	Expand(tid, synType, index int) []int
}

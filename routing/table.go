package routing

import "fmt"

type sourceKey struct {
	tid    int
	source int
}

type expandKey struct {
	synType int
	index   int
}

// A StaticTable is an in-memory Router for tests, benchmarks, and small
// simulations. It is populated once during setup and read-only afterwards,
// matching the kernel's assumption that routing never changes mid-exchange.
type StaticTable struct {
	targets map[sourceKey][]Target
	expand  map[int]map[expandKey][]int
	sink    DeliverFunc
}

// DeliverFunc receives every delivery dispatched through the table.
type DeliverFunc func(tid, synType, connID int, step Step, offset float64)

// NewStaticTable creates an empty table delivering into sink.
func NewStaticTable(sink DeliverFunc) *StaticTable {
	return &StaticTable{
		targets: map[sourceKey][]Target{},
		expand:  map[int]map[expandKey][]int{},
		sink:    sink,
	}
}

// AddTarget appends a remote target for a local source. Targets are replayed
// in insertion order.
func (s *StaticTable) AddTarget(tid, source int, t Target) {
	key := sourceKey{tid, source}
	s.targets[key] = append(s.targets[key], t)
}

// AddExpansion registers the connection ids a thread owns under one
// compressed index.
func (s *StaticTable) AddExpansion(tid, synType, index int, connIDs []int) {
	byKey := s.expand[tid]
	if byKey == nil {
		byKey = map[expandKey][]int{}
		s.expand[tid] = byKey
	}
	byKey[expandKey{synType, index}] = connIDs
}

func (s *StaticTable) RemoteTargets(tid, source int) []Target {
	return s.targets[sourceKey{tid, source}]
}

func (s *StaticTable) Expand(tid, synType, index int) []int {
	return s.expand[tid][expandKey{synType, index}]
}

func (s *StaticTable) Deliver(tid, synType, connID int, step Step, offset float64) {
	if s.sink == nil {
		panic(fmt.Sprintf("routing: delivery to thread %d with no sink wired", tid))
	}
	s.sink(tid, synType, connID, step, offset)
}

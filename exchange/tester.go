package exchange

import (
	"fmt"
	"sync"
	"testing"

	"github.com/telmok/synfire/config"
	"github.com/telmok/synfire/routing"
	"github.com/telmok/synfire/transport"
)

// A GroupFactory creates the collective handles for an n-rank process
// group.
type GroupFactory func(n int) []transport.Collective

// Test-network geometry. Small enough to run quickly, busy enough to
// exercise chunk overflow at low capacities.
const (
	testerNeurons  = 60
	testerFanout   = 3
	testerRounds   = 6
	testerMinDelay = 4
	testerSynTypes = 3
)

// RunExchangeTests runs a battery of tests on a transport implementation:
// the same emission schedule is replayed over every combination of rank
// count, thread count, and starting capacity, and the multiset of
// deliveries per (target, synapse type, step) must always equal the one the
// schedule predicts. This covers both no-loss (nothing dropped or
// duplicated, however many resize retries occurred) and determinism (the
// outcome does not depend on how the network is partitioned).
func RunExchangeTests(t *testing.T, factory GroupFactory) {
	expected := expectedDeliveries()

	for _, initialCapacity := range []int{2, 64} {
		for _, numRanks := range []int{1, 2} {
			for _, numThreads := range []int{1, 2, 4} {
				name := fmt.Sprintf("Ranks=%d,Threads=%d,Cap=%d", numRanks, numThreads, initialCapacity)
				t.Run(name, func(t *testing.T) {
					got, stats := runTestNetwork(t, factory, numRanks, numThreads, initialCapacity)
					compareDeliveries(t, expected, got)
					if initialCapacity == 2 && stats.Grows == 0 {
						t.Error("capacity 2 survived the schedule without growing")
					}
					if stats.Rounds != testerRounds*numRanks {
						t.Errorf("completed %d rank-rounds, want %d", stats.Rounds, testerRounds*numRanks)
					}
				})
			}
		}
	}
}

// eventKey identifies one delivery in the logical network, independent of
// how neurons are assigned to ranks and threads.
type eventKey struct {
	target  int
	synType int
	step    routing.Step
}

// testHash drives the schedule and the wiring; everything downstream of it
// is deterministic.
func testHash(a, b, salt int) uint32 {
	x := uint32(a)*2654435761 + uint32(b)*40503 + uint32(salt)*9973
	x ^= x >> 13
	x *= 0x85ebca6b
	x ^= x >> 16
	return x
}

func testerFires(round, neuron int) bool {
	return testHash(round, neuron, 0)%3 == 0
}

func testerLag(round, neuron int) int {
	return int(testHash(round, neuron, 1) % testerMinDelay)
}

// testerEdge returns the j-th outgoing edge of a neuron.
func testerEdge(neuron, j int) (target, synType int) {
	target = int(testHash(neuron, j, 2) % testerNeurons)
	synType = int(testHash(neuron, j, 3) % testerSynTypes)
	return
}

// expectedDeliveries replays the schedule over the logical network without
// any kernel involvement.
func expectedDeliveries() map[eventKey]int {
	expected := map[eventKey]int{}
	for round := 0; round < testerRounds; round++ {
		clock := routing.Step(round * testerMinDelay)
		for n := 0; n < testerNeurons; n++ {
			if !testerFires(round, n) {
				continue
			}
			step := clock + routing.Step(testerLag(round, n))
			for j := 0; j < testerFanout; j++ {
				target, synType := testerEdge(n, j)
				expected[eventKey{target, synType, step}]++
			}
		}
	}
	return expected
}

// runTestNetwork maps the logical network onto numRanks*numThreads workers,
// replays the schedule through real coordinators, and returns the observed
// delivery multiset plus the ranks' summed stats.
func runTestNetwork(t *testing.T, factory GroupFactory, numRanks, numThreads, initialCapacity int) (map[eventKey]int, Stats) {
	group := factory(numRanks)

	rankOf := func(n int) int { return n % numRanks }
	tidOf := func(n int) int { return (n / numRanks) % numThreads }

	// Register every edge: the receiving side assigns connection ids in
	// registration order, the sending side records the full remote
	// address. connTargets lets the delivery sink translate a connection
	// id back into the logical target neuron.
	type connKey struct {
		tid     int
		synType int
	}
	tables := make([]*routing.StaticTable, numRanks)
	events := make([][]map[eventKey]int, numRanks)
	connTargets := make([]map[connKey][]int, numRanks)
	for r := range tables {
		connTargets[r] = map[connKey][]int{}
		events[r] = make([]map[eventKey]int, numThreads)
		for tid := range events[r] {
			events[r][tid] = map[eventKey]int{}
		}
		r := r
		tables[r] = routing.NewStaticTable(func(tid, synType, connID int, step routing.Step, offset float64) {
			target := connTargets[r][connKey{tid, synType}][connID]
			events[r][tid][eventKey{target, synType, step}]++
		})
	}
	for n := 0; n < testerNeurons; n++ {
		for j := 0; j < testerFanout; j++ {
			target, synType := testerEdge(n, j)
			r, tid := rankOf(target), tidOf(target)
			key := connKey{tid, synType}
			connID := len(connTargets[r][key])
			connTargets[r][key] = append(connTargets[r][key], target)
			tables[rankOf(n)].AddTarget(tidOf(n), n, routing.Target{
				Rank:    r,
				Thread:  tid,
				SynType: synType,
				ConnID:  connID,
			})
		}
	}

	cfg := config.Default()
	cfg.Threads = numThreads
	cfg.MinDelaySteps = testerMinDelay
	cfg.MaxDelaySteps = testerMinDelay
	cfg.InitialCapacity = initialCapacity
	cfg.MaxSynapseTypes = testerSynTypes
	cfg.MaxConnectionsPerThread = testerNeurons * testerFanout

	coords := make([]*Coordinator, numRanks)
	for r := range coords {
		coord, err := NewCoordinator(cfg, group[r], tables[r])
		if err != nil {
			t.Fatal(err)
		}
		coords[r] = coord
	}

	var wg sync.WaitGroup
	for r := range coords {
		wg.Add(1)
		r := r
		go func() {
			defer wg.Done()
			for round := 0; round < testerRounds; round++ {
				for n := 0; n < testerNeurons; n++ {
					if rankOf(n) != r || !testerFires(round, n) {
						continue
					}
					coords[r].Log(tidOf(n)).Record(n, testerLag(round, n))
				}
				if err := coords[r].Run(routing.Step(round * testerMinDelay)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got := map[eventKey]int{}
	var stats Stats
	for r := range coords {
		for tid := range events[r] {
			for key, count := range events[r][tid] {
				got[key] += count
			}
		}
		s := coords[r].Stats()
		stats.Rounds += s.Rounds
		stats.Retries += s.Retries
		stats.Grows += s.Grows
		stats.Shrinks += s.Shrinks
		stats.Delivered += s.Delivered
	}
	return got, stats
}

func compareDeliveries(t *testing.T, expected, got map[eventKey]int) {
	for key, want := range expected {
		if got[key] != want {
			t.Errorf("target %d syn %d step %d: delivered %d times, want %d",
				key.target, key.synType, key.step, got[key], want)
		}
	}
	for key, count := range got {
		if expected[key] == 0 {
			t.Errorf("target %d syn %d step %d: %d spurious deliveries",
				key.target, key.synType, key.step, count)
		}
	}
}

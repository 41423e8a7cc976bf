// Command bench_exchange drives the spike-exchange kernel over an
// in-process transport with a randomly wired network and reports round
// timing, retry counts, and the capacity trajectory.
package main

import (
	"flag"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unixpickle/essentials"

	"github.com/telmok/synfire/config"
	"github.com/telmok/synfire/exchange"
	"github.com/telmok/synfire/routing"
	"github.com/telmok/synfire/transport"
)

func main() {
	var (
		ranks    = flag.Int("ranks", 4, "number of simulated ranks")
		neurons  = flag.Int("neurons", 10000, "number of neurons")
		fanout   = flag.Int("fanout", 100, "outgoing connections per neuron")
		rounds   = flag.Int("rounds", 50, "exchange rounds to run")
		rate     = flag.Float64("rate", 0.05, "per-neuron firing probability per round")
		seed     = flag.Int64("seed", 1, "wiring and schedule seed")
		cfgPath  = flag.String("config", "", "kernel config JSON (defaults used when empty)")
		threads  = flag.Int("threads", 2, "worker threads per rank (ignored with -config)")
		capacity = flag.Int("capacity", 16, "initial chunk capacity (ignored with -config)")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		essentials.Must(err)
	} else {
		cfg.Threads = *threads
		cfg.InitialCapacity = *capacity
		cfg.MaxConnectionsPerThread = *neurons * *fanout
	}

	group := transport.NewGroup(*ranks)
	log.Printf("process group %s: %d ranks x %d threads, %d neurons, fanout %d",
		group.ID(), *ranks, cfg.Threads, *neurons, *fanout)

	rng := rand.New(rand.NewSource(*seed))
	rankOf := func(n int) int { return n % *ranks }
	tidOf := func(n int) int { return (n / *ranks) % cfg.Threads }

	// Wire the network: connection ids are handed out per receiving
	// (rank, thread, synapse type) in registration order.
	tables := make([]*routing.StaticTable, *ranks)
	delivered := make([]int64, *ranks)
	for r := range tables {
		r := r
		tables[r] = routing.NewStaticTable(func(tid, synType, connID int, step routing.Step, offset float64) {
			// The sink is intentionally trivial: the benchmark
			// measures the kernel, not the model.
			atomic.AddInt64(&delivered[r], 1)
		})
	}
	nextConn := map[[3]int]int{}
	for n := 0; n < *neurons; n++ {
		for j := 0; j < *fanout; j++ {
			target := rng.Intn(*neurons)
			synType := rng.Intn(cfg.MaxSynapseTypes)
			key := [3]int{rankOf(target), tidOf(target), synType}
			connID := nextConn[key]
			nextConn[key]++
			tables[rankOf(n)].AddTarget(tidOf(n), n, routing.Target{
				Rank:    rankOf(target),
				Thread:  tidOf(target),
				SynType: synType,
				ConnID:  connID,
			})
		}
	}

	coords := make([]*exchange.Coordinator, *ranks)
	locals := group.Locals()
	for r := range coords {
		coord, err := exchange.NewCoordinator(cfg, locals[r], tables[r])
		essentials.Must(err)
		coords[r] = coord
	}

	// Pre-draw the schedule so rank goroutines need no shared RNG.
	fires := make([][][]int, *rounds)
	for round := range fires {
		fires[round] = make([][]int, *ranks)
		for n := 0; n < *neurons; n++ {
			if rng.Float64() < *rate {
				r := rankOf(n)
				fires[round][r] = append(fires[round][r], n)
			}
		}
	}

	start := time.Now()
	var wg sync.WaitGroup
	for r := range coords {
		wg.Add(1)
		r := r
		go func() {
			defer wg.Done()
			for round := 0; round < *rounds; round++ {
				for _, n := range fires[round][r] {
					coords[r].Log(tidOf(n)).Record(n, round%cfg.MinDelaySteps)
				}
				clock := routing.Step(round * cfg.MinDelaySteps)
				if err := coords[r].Run(clock); err != nil {
					log.Fatalf("rank %d: %v", r, err)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	var total int64
	for r, coord := range coords {
		stats := coord.Stats()
		total += stats.Delivered
		log.Printf("rank %d: rounds=%d retries=%d grows=%d shrinks=%d delivered=%d capacity=%d",
			r, stats.Rounds, stats.Retries, stats.Grows, stats.Shrinks, stats.Delivered, stats.Capacity)
	}
	log.Printf("%d rounds in %v (%.1f us/round/rank), %d deliveries",
		*rounds, elapsed,
		float64(elapsed.Microseconds())/float64(*rounds**ranks), total)
}

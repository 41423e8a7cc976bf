package exchange

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBarrierPhases(t *testing.T) {
	const parties = 4
	const phases = 100

	b := NewBarrier(parties)
	var counter int64
	var wg sync.WaitGroup

	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for phase := 0; phase < phases; phase++ {
				atomic.AddInt64(&counter, 1)
				b.Await()
				// Every party must observe the full phase count.
				if n := atomic.LoadInt64(&counter); n != int64((phase+1)*parties) {
					t.Errorf("phase %d: counter is %d, want %d", phase, n, (phase+1)*parties)
					return
				}
				b.Await()
			}
		}()
	}
	wg.Wait()
}

func TestBarrierSingleParty(t *testing.T) {
	b := NewBarrier(1)
	// Must not block.
	b.Await()
	b.Await()
}

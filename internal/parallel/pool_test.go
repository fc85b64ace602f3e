package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/tilesync/tile"
)

// =============================================================================
// Pool Tests
// =============================================================================

func TestPool_Create(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero uses GOMAXPROCS", 0, runtime.GOMAXPROCS(0)},
		{"negative uses GOMAXPROCS", -5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(tt.workers)
			defer p.Close()
			if p.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", p.Workers(), tt.want)
			}
			if !p.IsRunning() {
				t.Error("pool should be running after creation")
			}
		})
	}
}

func TestPool_Run(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	p.Run(work)

	if got := counter.Load(); got != 100 {
		t.Errorf("counter = %d, want 100", got)
	}
}

func TestPool_RunNil(t *testing.T) {
	var p *Pool
	var counter atomic.Int64
	work := make([]func(), 10)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	p.Run(work)
	if got := counter.Load(); got != 10 {
		t.Errorf("counter = %d, want 10", got)
	}
	p.Close() // no-op
	if p.IsRunning() {
		t.Error("nil pool must not report running")
	}
}

func TestPool_RunAfterCloseRunsInline(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close() // idempotent

	ran := 0
	p.Run([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
}

func TestPool_ConcurrentRun(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work := make([]func(), 50)
			for i := range work {
				work[i] = func() { counter.Add(1) }
			}
			p.Run(work)
		}()
	}
	wg.Wait()
	if got := counter.Load(); got != 400 {
		t.Errorf("counter = %d, want 400", got)
	}
}

// =============================================================================
// Tile fan-out Tests
// =============================================================================

func TestForRange_Blocks(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		grain int
	}{
		{"empty", 0, 64},
		{"single block", 10, 64},
		{"exact blocks", 128, 64},
		{"ragged", 1000, 64},
		{"grain one", 7, 1},
		{"zero grain", 5, 0},
	}
	p := NewPool(3)
	defer p.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := make([]atomic.Int32, tt.n)
			ForRange(p, tt.n, tt.grain, func(lo, hi int) {
				if hi-lo > max(tt.grain, 1) {
					t.Errorf("block [%d,%d) larger than grain %d", lo, hi, tt.grain)
				}
				for i := lo; i < hi; i++ {
					hits[i].Add(1)
				}
			})
			for i := range hits {
				if hits[i].Load() != 1 {
					t.Fatalf("index %d visited %d times", i, hits[i].Load())
				}
			}
		})
	}
}

func TestForTiles_All(t *testing.T) {
	const tiles = 500
	hits := make([]atomic.Int32, tiles)
	ForTiles(nil, tiles, nil, func(i int) { hits[i].Add(1) })
	for i := range hits {
		if hits[i].Load() != 1 {
			t.Fatalf("tile %d visited %d times", i, hits[i].Load())
		}
	}
}

func TestForTiles_Subset(t *testing.T) {
	const tiles = 200
	tb := tile.TableOf(tiles, 3, 7, 64, 199)

	p := NewPool(2)
	defer p.Close()

	var mu sync.Mutex
	seen := map[int]int{}
	ForTiles(p, tiles, tb, func(i int) {
		mu.Lock()
		seen[i]++
		mu.Unlock()
	})
	if len(seen) != 4 {
		t.Fatalf("visited %v, want 4 tiles", seen)
	}
	for _, id := range []int{3, 7, 64, 199} {
		if seen[id] != 1 {
			t.Errorf("tile %d visited %d times", id, seen[id])
		}
	}
}

func BenchmarkForTiles(b *testing.B) {
	p := NewPool(0)
	defer p.Close()
	const tiles = 240 * 135 // 1920x1080
	data := make([]uint64, tiles)

	b.ReportAllocs()
	for b.Loop() {
		ForTiles(p, tiles, nil, func(i int) { data[i]++ })
	}
}

package parallel

import "github.com/gogpu/tilesync/tile"

// Block sizes for tile fan-out. Whole-buffer passes group many tiles per
// block; passes over an explicit tile list are sparser and use smaller
// blocks to limit imbalance.
const (
	FullGrain    = 64
	PartialGrain = 16
)

// ForRange splits [0, n) into blocks of grain items and calls fn(lo, hi)
// for each block on the pool. It returns when every block is done.
func ForRange(p *Pool, n, grain int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	grain = max(grain, 1)
	if n <= grain {
		fn(0, n)
		return
	}

	work := make([]func(), 0, (n+grain-1)/grain)
	for lo := 0; lo < n; lo += grain {
		hi := min(lo+grain, n)
		work = append(work, func() { fn(lo, hi) })
	}
	p.Run(work)
}

// ForTiles calls fn for every tile of a tiles-sized buffer, or only for
// the tiles in t when t is not nil. Tiles are visited in no particular
// order, each exactly once.
func ForTiles(p *Pool, tiles int, t *tile.Table, fn func(tileIdx int)) {
	if t == nil {
		ForRange(p, tiles, FullGrain, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				fn(i)
			}
		})
		return
	}

	ids := t.IDs()
	ForRange(p, len(ids), PartialGrain, func(lo, hi int) {
		for _, id := range ids[lo:hi] {
			if id < tiles {
				fn(id)
			}
		}
	})
}

package tilesync

import (
	"github.com/gogpu/tilesync/internal/parallel"
	"github.com/gogpu/tilesync/recording"
	"github.com/gogpu/tilesync/snapshot"
	"github.com/gogpu/tilesync/tile"
)

// Option configures a FrameBufferSet or a Frame during creation.
//
// Example:
//
//	pool := tilesync.NewWorkerPool(8)
//	defer pool.Close()
//
//	master := tilesync.NewFrameBufferSet(1920, 1080, tilesync.WithPool(pool))
//	client := tilesync.NewFrameBufferSet(1920, 1080,
//	    tilesync.WithPool(pool),
//	    tilesync.WithDiffStrategy(snapshot.BitwiseName))
type Option func(*options)

type options struct {
	workers  int
	pool     *WorkerPool
	strategy string
	recorder *recording.Recorder
	debug    bool
}

// WithWorkers gives the set its own pool of n tile workers, released by
// Close. Without a pool, tile blocks run on short lived goroutines.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithPool shares an existing worker pool. It takes precedence over
// WithWorkers. The caller keeps ownership of the pool.
func WithPool(p *WorkerPool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithDiffStrategy selects the snapshot diff implementation by registry
// name (see snapshot.Available). Unknown names fall back to the default
// strategy with a warning.
func WithDiffStrategy(name string) Option {
	return func(o *options) {
		o.strategy = name
	}
}

// WithRecorder attaches a recorder that receives the beauty delta mask of
// every snapshot.
func WithRecorder(r *recording.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithDebugChecks enables buffer size and format assertions on every tile
// operation. Violations panic with a "tilesync:" message.
func WithDebugChecks(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

// WorkerPool is a pool of tile workers that can be shared between sets.
type WorkerPool struct {
	p *parallel.Pool
}

// NewWorkerPool starts a pool with n workers. If n <= 0, GOMAXPROCS is used.
func NewWorkerPool(n int) *WorkerPool {
	return &WorkerPool{p: parallel.NewPool(n)}
}

// Workers returns the number of workers.
func (w *WorkerPool) Workers() int { return w.p.Workers() }

// Close stops the workers. Sets still using the pool run their tile
// blocks inline afterwards.
func (w *WorkerPool) Close() { w.p.Close() }

// engine is the execution context shared by the operations of one set or
// frame: the worker pool, the diff kernels and the optional observers.
type engine struct {
	pool     *parallel.Pool
	ownPool  bool
	differ   snapshot.Differ
	recorder *recording.Recorder
	debug    bool
}

func newEngine(opts []Option) engine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := engine{recorder: o.recorder, debug: o.debug}
	switch {
	case o.pool != nil:
		e.pool = o.pool.p
	case o.workers > 0:
		e.pool = parallel.NewPool(o.workers)
		e.ownPool = true
	}

	e.differ = snapshot.Default()
	if o.strategy != "" {
		d, err := snapshot.Get(o.strategy)
		if err != nil {
			Logger().Warn("tilesync: using default diff strategy", "requested", o.strategy, "err", err)
		} else {
			e.differ = d
		}
	}
	return e
}

func (e *engine) forTiles(tiles int, t *tile.Table, fn func(tileIdx int)) {
	parallel.ForTiles(e.pool, tiles, t, fn)
}

func (e *engine) close() {
	if e.ownPool {
		e.pool.Close()
		e.ownPool = false
	}
}

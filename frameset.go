package tilesync

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/tilesync/tile"
	"github.com/gogpu/tilesync/wire"
)

// FrameBufferSet is the merge tier view of an image: the fixed channels
// plus a table of named output channels, all sharing one tile geometry.
//
// Tile operations on a set run in parallel over disjoint tiles. A set must
// not be the destination of two operations at the same time; sources are
// only read and may be shared. Channel is safe to call from tile workers.
type FrameBufferSet struct {
	geom tile.Geometry
	eng  engine

	fixed [kindCount]*Channel

	mu    sync.Mutex
	named map[string]*Channel
	nodes map[int]*FrameBufferSet // per render node state, see MergeFrom
}

// NewFrameBufferSet creates a set for a width x height image. Only the
// beauty channel is allocated; the others are allocated on first use.
func NewFrameBufferSet(width, height int, opts ...Option) *FrameBufferSet {
	s := &FrameBufferSet{
		geom:  tile.NewGeometry(width, height),
		eng:   newEngine(opts),
		named: make(map[string]*Channel),
	}
	for k := KindBeauty; k < kindCount; k++ {
		s.fixed[k] = newChannel(kindNames[k], k, s.geom)
	}
	s.fixed[KindBeauty].Enable()
	return s
}

// Close releases the worker pool created by WithWorkers.
func (s *FrameBufferSet) Close() { s.eng.close() }

// Geometry returns the tile layout.
func (s *FrameBufferSet) Geometry() tile.Geometry { return s.geom }

// Width returns the logical width.
func (s *FrameBufferSet) Width() int { return s.geom.Width() }

// Height returns the logical height.
func (s *FrameBufferSet) Height() int { return s.geom.Height() }

// Beauty returns the primary color channel.
func (s *FrameBufferSet) Beauty() *Channel { return s.fixed[KindBeauty] }

// BeautyOdd returns the odd sample color channel.
func (s *FrameBufferSet) BeautyOdd() *Channel { return s.fixed[KindBeautyOdd] }

// PixelInfo returns the depth channel.
func (s *FrameBufferSet) PixelInfo() *Channel { return s.fixed[KindPixelInfo] }

// HeatMap returns the render time channel.
func (s *FrameBufferSet) HeatMap() *Channel { return s.fixed[KindHeatMap] }

// Weight returns the sample weight channel.
func (s *FrameBufferSet) Weight() *Channel { return s.fixed[KindWeight] }

// Fixed returns the fixed channel of kind k, or nil for KindNamed.
func (s *FrameBufferSet) Fixed(k Kind) *Channel {
	if k == KindNamed || k >= kindCount {
		return nil
	}
	return s.fixed[k]
}

// Channel returns the channel called name, creating an empty named
// channel on first reference. Names are NFC normalized; the fixed channel
// names return the fixed channels. Channel is safe for concurrent use.
func (s *FrameBufferSet) Channel(name string) *Channel {
	name = wire.NormalizeName(name)
	if k := kindByName(name); k != KindNamed {
		return s.fixed[k]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.named[name]
	if !ok {
		c = newChannel(name, KindNamed, s.geom)
		c.active = true
		s.named[name] = c
	}
	return c
}

// FindChannel returns the channel called name, or nil. It never creates.
func (s *FrameBufferSet) FindChannel(name string) *Channel {
	name = wire.NormalizeName(name)
	if k := kindByName(name); k != KindNamed {
		return s.fixed[k]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.named[name]
}

// Channels returns the named channels sorted by name.
func (s *FrameBufferSet) Channels() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Channel, 0, len(s.named))
	for _, c := range s.named {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Channel) int { return cmp.Compare(a.name, b.name) })
	return out
}

// channels returns every channel, fixed first.
func (s *FrameBufferSet) channels() []*Channel {
	out := make([]*Channel, 0, int(kindCount)+len(s.named))
	for k := KindBeauty; k < kindCount; k++ {
		out = append(out, s.fixed[k])
	}
	return append(out, s.Channels()...)
}

// Setup resizes the set. Storage is kept when the size is unchanged and
// the function returns false; otherwise every allocated channel is
// reallocated zeroed, the render node states are dropped and the function
// returns true.
func (s *FrameBufferSet) Setup(width, height int) bool {
	g := tile.NewGeometry(width, height)
	if g.SameSize(s.geom) {
		return false
	}
	Logger().Debug("tilesync: resize",
		"from", fmt.Sprintf("%dx%d", s.geom.Width(), s.geom.Height()),
		"to", fmt.Sprintf("%dx%d", width, height))
	s.geom = g
	for _, c := range s.channels() {
		c.resize(g)
	}
	s.dropNodes()
	return true
}

// Reset clears the masks, values and sample counts of every channel and
// forgets the render node states.
func (s *FrameBufferSet) Reset() {
	for _, c := range s.channels() {
		c.reset()
	}
	s.dropNodes()
}

func (s *FrameBufferSet) dropNodes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.nodes)
}

// ResetTiles clears only the tiles in t, leaving every other tile's mask
// and values untouched. A nil table resets everything.
func (s *FrameBufferSet) ResetTiles(t *tile.Table) {
	if t == nil {
		s.Reset()
		return
	}
	chs := s.channels()
	s.ForTiles(t, func(tileIdx int) {
		for _, c := range chs {
			c.resetTile(tileIdx)
		}
	})
}

// GarbageCollect releases the storage of inactive channels and drops
// inactive named reference channels.
func (s *FrameBufferSet) GarbageCollect() {
	for k := KindBeauty; k < kindCount; k++ {
		if c := s.fixed[k]; !c.active && c.Allocated() {
			c.free()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	freed := 0
	for name, c := range s.named {
		if c.active {
			continue
		}
		switch {
		case c.IsReference():
			delete(s.named, name)
		case c.Allocated():
			c.free()
		default:
			continue
		}
		freed++
	}
	if freed > 0 {
		Logger().Debug("tilesync: garbage collected channels", "count", freed)
	}
}

// ForTiles calls fn for every tile, or only the tiles in t when t is not
// nil, spread over the worker pool. Whole passes use blocks of
// parallel.FullGrain tiles, subsets blocks of parallel.PartialGrain.
func (s *FrameBufferSet) ForTiles(t *tile.Table, fn func(tileIdx int)) {
	s.eng.forTiles(s.geom.Tiles(), t, fn)
}

// ActiveTiles returns a table of the tiles active in any enabled channel.
func (s *FrameBufferSet) ActiveTiles() *tile.Table {
	t := tile.NewTable(s.geom.Tiles())
	for _, c := range s.channels() {
		if c.enabled() {
			t.MarkMask(c.mask)
		}
	}
	return t
}

func (s *FrameBufferSet) sizeError(other tile.Geometry) error {
	return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch,
		s.geom.Width(), s.geom.Height(), other.Width(), other.Height())
}

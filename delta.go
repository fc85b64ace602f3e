package tilesync

import (
	"cmp"
	"maps"
	"slices"

	"github.com/gogpu/tilesync/tile"
	"github.com/gogpu/tilesync/wire"
)

// DeltaMasks holds the per-channel masks of the pixels a snapshot found
// new or changed. A DeltaMasks is reused across snapshots to avoid
// reallocating its masks.
type DeltaMasks struct {
	coarse bool
	geom   tile.Geometry
	masks  map[string]*tile.Mask
}

// NewDeltaMasks returns an empty set of delta masks.
func NewDeltaMasks() *DeltaMasks {
	return &DeltaMasks{masks: make(map[string]*tile.Mask)}
}

// Coarse reports whether the snapshot belongs to a coarse pass.
func (d *DeltaMasks) Coarse() bool { return d.coarse }

// Geometry returns the tile layout of the masks.
func (d *DeltaMasks) Geometry() tile.Geometry { return d.geom }

// Mask returns the delta mask of a channel, or nil if the last snapshot
// did not cover it. Names are NFC normalized as in FrameBufferSet.Channel.
func (d *DeltaMasks) Mask(name string) *tile.Mask {
	return d.masks[wire.NormalizeName(name)]
}

// Names returns the channels covered by the last snapshot, sorted.
func (d *DeltaMasks) Names() []string {
	return slices.SortedFunc(maps.Keys(d.masks), cmp.Compare[string])
}

// ActivePixels returns the number of changed pixels over all channels.
func (d *DeltaMasks) ActivePixels() int {
	n := 0
	for _, m := range d.masks {
		n += m.ActivePixels()
	}
	return n
}

// IsEmpty reports whether no channel changed.
func (d *DeltaMasks) IsEmpty() bool {
	for _, m := range d.masks {
		if !m.IsEmpty() {
			return false
		}
	}
	return true
}

// Table returns the tiles changed in any channel.
func (d *DeltaMasks) Table() *tile.Table {
	t := tile.NewTable(d.geom.Tiles())
	for _, m := range d.masks {
		t.MarkMask(m)
	}
	return t
}

// begin prepares the masks for a snapshot over geometry g. Masks of
// channels not listed are dropped; listed ones are reused and cleared.
func (d *DeltaMasks) begin(g tile.Geometry, coarse bool, names []string) {
	if d.masks == nil {
		d.masks = make(map[string]*tile.Mask)
	}
	d.coarse = coarse
	d.geom = g
	keep := make(map[string]*tile.Mask, len(names))
	for _, name := range names {
		m := d.masks[name]
		if m == nil {
			m = tile.NewMask(g.Width(), g.Height())
		} else {
			m.Init(g.Width(), g.Height())
			m.Reset()
		}
		keep[name] = m
	}
	d.masks = keep
}

// SnapshotDelta brings dst up to date with s and records in out which
// pixels that took. For every enabled channel, a pixel is copied and
// reported when it is active in s and its value or sample count differs
// from dst, or it was not yet active in dst.
//
// coarse tags the snapshot for encoding at coarse precision. The beauty
// delta mask is passed to the recorder, if any.
func (s *FrameBufferSet) SnapshotDelta(dst *FrameBufferSet, out *DeltaMasks, coarse bool) error {
	if !s.geom.SameSize(dst.geom) {
		return s.sizeError(dst.geom)
	}
	ps, err := dst.pairs(s, true)
	if err != nil {
		return err
	}

	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.src.name
	}
	out.begin(s.geom, coarse, names)
	deltas := make([]*tile.Mask, len(ps))
	for i, p := range ps {
		deltas[i] = out.masks[p.src.name]
	}

	differ := s.eng.differ
	s.ForTiles(nil, func(tileIdx int) {
		for i, p := range ps {
			deltas[i].SetTileMask(tileIdx, p.diff(differ, tileIdx))
		}
	})

	if r := s.eng.recorder; r != nil {
		if m := out.Mask(NameBeauty); m != nil {
			r.Record(m, coarse)
		}
	}
	Logger().Debug("tilesync: snapshot delta",
		"strategy", differ.Name(), "channels", len(ps), "pixels", out.ActivePixels(), "coarse", coarse)
	return nil
}

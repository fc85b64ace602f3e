package tilesync

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/tilesync/tile"
	"github.com/gogpu/tilesync/wire"
)

// Encode appends a message holding the full state of every enabled
// channel to dst. Named reference channels are written as references.
func (s *FrameBufferSet) Encode(dst []byte, opts ...wire.EncoderOption) ([]byte, error) {
	enc := s.encoder(false, opts)
	for _, c := range s.channels() {
		switch {
		case c.kind == KindNamed && c.active && c.IsReference():
		case !c.enabled():
			continue
		}
		if err := enc.Add(c.entry(c.mask)); err != nil {
			return dst, err
		}
	}
	return enc.Encode(dst)
}

// EncodeDelta appends a message holding only the pixels in masks, as
// produced by SnapshotDelta, to dst. Channels without a delta mask are
// left out. Values are read from s, which must hold the state the
// snapshot copied.
func (s *FrameBufferSet) EncodeDelta(masks *DeltaMasks, dst []byte, opts ...wire.EncoderOption) ([]byte, error) {
	if !s.geom.SameSize(masks.geom) {
		return dst, s.sizeError(masks.geom)
	}
	enc := s.encoder(masks.coarse, opts)
	for _, name := range masks.Names() {
		c := s.FindChannel(name)
		if c == nil || !c.Allocated() {
			continue
		}
		if err := enc.Add(c.entry(masks.Mask(name))); err != nil {
			return dst, err
		}
	}
	for _, c := range s.Channels() {
		if c.active && c.IsReference() {
			if err := enc.Add(c.entry(nil)); err != nil {
				return dst, err
			}
		}
	}
	return enc.Encode(dst)
}

func (s *FrameBufferSet) encoder(coarse bool, opts []wire.EncoderOption) *wire.Encoder {
	all := make([]wire.EncoderOption, 0, len(opts)+2)
	all = append(all, wire.WithCoarsePass(coarse), wire.WithLogger(Logger()))
	return wire.NewEncoder(append(all, opts...)...)
}

// Decode loads a full snapshot: every channel the message carries is
// cleared and then filled from the message, taking its format. Channels
// the message does not mention keep their state. On error s is left
// unchanged.
func (s *FrameBufferSet) Decode(msg *wire.Message) error {
	frag, t, err := s.fragment(msg)
	if err != nil {
		return err
	}
	ps, err := s.pairs(frag, true)
	if err != nil {
		return err
	}
	for _, p := range ps {
		p.dst.reset()
	}
	s.copyPairs(ps, t)
	return nil
}

// Apply copies the pixels of an incremental message into s, keeping
// every pixel the message does not carry. On error s is left unchanged.
func (s *FrameBufferSet) Apply(msg *wire.Message) error {
	frag, t, err := s.fragment(msg)
	if err != nil {
		return err
	}
	return s.Copy(frag, t)
}

// Merge decodes an encoded fragment, optionally in a compressed envelope,
// and accumulates it into s. A fragment that fails to decode or does not
// fit is dropped with a warning and s keeps its previous state.
//
// Every call adds its samples to s, so the fragments must carry disjoint
// samples. Updates that repeat the running state of a node, such as
// successive Frame.EncodeDelta messages, go through MergeFrom.
func (s *FrameBufferSet) Merge(data []byte) error {
	err := s.merge(data)
	if err != nil {
		Logger().Warn("tilesync: dropped fragment", "bytes", len(data), "err", err)
	}
	return err
}

func (s *FrameBufferSet) merge(data []byte) error {
	msg, err := decodeFragment(data)
	if err != nil {
		return err
	}
	frag, t, err := s.fragment(msg)
	if err != nil {
		return err
	}
	return s.Accumulate(frag, t)
}

// MergeFrom folds an update from a render node into s. The latest
// state of each node is kept apart: the update is copied into the state
// of its node, then the tiles it touches are cleared in s and rebuilt by
// accumulating every node. A node sending its running average twice
// therefore counts once.
//
// s is owned by the nodes once MergeFrom is used: rebuilt tiles lose
// anything Merge or Accumulate put there. Errors are handled as in Merge.
func (s *FrameBufferSet) MergeFrom(node int, data []byte) error {
	err := s.mergeFrom(node, data)
	if err != nil {
		Logger().Warn("tilesync: dropped fragment", "node", node, "bytes", len(data), "err", err)
	}
	return err
}

func (s *FrameBufferSet) mergeFrom(node int, data []byte) error {
	msg, err := decodeFragment(data)
	if err != nil {
		return err
	}
	frag, t, err := s.fragment(msg)
	if err != nil {
		return err
	}
	if err := s.checkFormats(frag); err != nil {
		return err
	}
	if err := s.nodeSet(node).Copy(frag, t); err != nil {
		return err
	}
	return s.rebuild(t)
}

// DropNode forgets the state of a render node and rebuilds the tiles it
// had contributed to from the remaining nodes.
func (s *FrameBufferSet) DropNode(node int) error {
	s.mu.Lock()
	ns, ok := s.nodes[node]
	delete(s.nodes, node)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	Logger().Debug("tilesync: node dropped", "node", node)
	return s.rebuild(ns.ActiveTiles())
}

// Nodes returns the render nodes merged with MergeFrom, sorted.
func (s *FrameBufferSet) Nodes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.nodes))
}

// nodeSet returns the state of a render node, creating it on first use.
func (s *FrameBufferSet) nodeSet(node int) *FrameBufferSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.nodes[node]; ok {
		return ns
	}
	if s.nodes == nil {
		s.nodes = make(map[int]*FrameBufferSet)
	}
	ns := &FrameBufferSet{
		geom:  s.geom,
		eng:   engine{pool: s.eng.pool, differ: s.eng.differ, debug: s.eng.debug},
		named: make(map[string]*Channel),
	}
	for k := KindBeauty; k < kindCount; k++ {
		ns.fixed[k] = newChannel(kindNames[k], k, s.geom)
	}
	s.nodes[node] = ns
	Logger().Debug("tilesync: node added", "node", node)
	return ns
}

// rebuild clears the tiles of t in s and accumulates every node over them
// in node order.
func (s *FrameBufferSet) rebuild(t *tile.Table) error {
	s.ResetTiles(t)
	for _, id := range s.Nodes() {
		s.mu.Lock()
		ns := s.nodes[id]
		s.mu.Unlock()
		if err := s.Accumulate(ns, t); err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
	}
	return nil
}

func decodeFragment(data []byte) (*wire.Message, error) {
	if wire.IsCompressed(data) {
		raw, err := wire.Decompress(nil, data)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return wire.Decode(data, wire.WithDecodeLogger(Logger()))
}

// fragment builds a set holding the entries of msg, sharing their
// storage, and the table of tiles they touch. Entries without sample
// counts get them from the Weight entry of the message at the same pixel,
// or 1 where it has none.
func (s *FrameBufferSet) fragment(msg *wire.Message) (*FrameBufferSet, *tile.Table, error) {
	frag := &FrameBufferSet{
		geom:  s.geom,
		eng:   engine{pool: s.eng.pool, differ: s.eng.differ},
		named: make(map[string]*Channel),
	}
	for k := KindBeauty; k < kindCount; k++ {
		frag.fixed[k] = newChannel(kindNames[k], k, s.geom)
		frag.fixed[k].active = false
	}

	var weight *wire.Entry
	for _, e := range msg.Entries {
		if e.Type == wire.TypeReference {
			continue
		}
		if !e.Mask.Geometry().SameSize(s.geom) {
			return nil, nil, fmt.Errorf("entry %q: %w", e.Name, s.sizeError(e.Mask.Geometry()))
		}
		if e.Type == wire.TypeWeight && weight == nil {
			weight = e
		}
	}

	t := tile.NewTable(s.geom.Tiles())
	for _, e := range msg.Entries {
		if e.Type == wire.TypeReference {
			if kindByName(e.Name) != KindNamed {
				return nil, nil, fmt.Errorf("%w: reference entry %q", ErrChannelConflict, e.Name)
			}
			frag.Channel(e.Name).SetReference(e.Reference)
			continue
		}

		c, err := frag.target(e)
		if err != nil {
			return nil, nil, err
		}
		c.adopt(e, weight)
		t.MarkMask(e.Mask)
	}
	return frag, t, nil
}

// target returns the channel of frag an entry is stored in.
func (s *FrameBufferSet) target(e *wire.Entry) (*Channel, error) {
	var k Kind
	switch e.Type {
	case wire.TypeBeauty, wire.TypeBeautyWithNumSample:
		k = KindBeauty
	case wire.TypeBeautyOdd, wire.TypeBeautyOddWithNumSample:
		k = KindBeautyOdd
	case wire.TypePixelInfo:
		k = KindPixelInfo
	case wire.TypeHeatMap, wire.TypeHeatMapWithNumSample:
		k = KindHeatMap
	case wire.TypeWeight:
		k = KindWeight
	default:
		if kindByName(e.Name) != KindNamed {
			return nil, fmt.Errorf("%w: %v entry named %q", ErrChannelConflict, e.Type, e.Name)
		}
		return s.Channel(e.Name), nil
	}
	if c := s.fixed[k]; !c.Allocated() {
		return c, nil
	}
	return nil, fmt.Errorf("%w: second %v entry", ErrChannelConflict, k)
}

// adopt takes over the storage of a decoded entry.
func (c *Channel) adopt(e *wire.Entry, weight *wire.Entry) {
	c.values = e.Values
	c.mask = e.Mask
	c.active = true
	c.Reference = wire.RefUndef
	c.DefaultValue = e.DefaultValue
	c.ClosestFilter = e.ClosestFilter
	if e.Precision != wire.PrecisionRuntime {
		c.Precision = e.Precision
	}
	c.CoarsePrecision = e.CoarsePrecision
	c.FinePrecision = e.FinePrecision

	switch {
	case !c.kind.numSample():
		c.samples = nil
	case e.NumSample != nil:
		c.samples = e.NumSample
	default:
		c.samples = samplesFromWeight(e.Mask, weight)
	}
}

func samplesFromWeight(m *tile.Mask, weight *wire.Entry) []uint32 {
	out := make([]uint32, m.Geometry().PixelCount())
	var w []float32
	if weight != nil {
		w = weight.Values.Float1()
	}
	m.CrawlPixels(func(i int) {
		n := uint32(1)
		if w != nil && weight.Mask.IsActive(i) {
			switch v := w[i]; {
			case v >= 1<<32:
				n = 1<<32 - 1
			case v >= 1:
				n = uint32(v)
			}
		}
		out[i] = n
	})
	return out
}

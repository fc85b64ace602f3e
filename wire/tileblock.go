package wire

import (
	"math/bits"

	"github.com/gogpu/tilesync/tile"
)

// Version2 tile block layout.
//
// One mode byte precedes the block: the low nibble says how active tile
// ids are stored, the high nibble how their pixel masks are stored.
const (
	tileModeSkip     byte = 0x0 // every tile is active, ids implicit
	tileModeFullDump byte = 0x1 // one bit per tile
	tileModeDelta    byte = 0x2 // VLUInt gaps between ascending ids

	pixModeSkip    byte = 0x00 // every active tile is fully active
	pixModeAllMask byte = 0x10 // 8-byte mask per tile
	pixModeAllID   byte = 0x20 // count + pixel indices per tile
	pixModeRunLen  byte = 0x30 // runs of id or mask encoded tiles

	runLenID     byte = 0x80
	runLenMax         = 128
	idThreshold       = 7 // tiles with fewer active pixels use ids
	tileModeMask      = 0x0f
	pixModeMask       = 0xf0
)

type activeTile struct {
	id   int
	mask uint64
}

func collectTiles(m *tile.Mask) []activeTile {
	out := make([]activeTile, 0, m.ActiveTiles())
	m.CrawlTiles(func(id int, mask uint64) bool {
		out = append(out, activeTile{id, mask})
		return true
	})
	return out
}

// putTilesV1 writes every active tile as VLUInt id + 8-byte mask.
func (w *writer) putTilesV1(active []activeTile) {
	for _, t := range active {
		w.uvarint(uint64(t.id))
		w.uint64(t.mask)
	}
}

func (r *reader) tilesV1(m *tile.Mask, n int) {
	prev := -1
	for range n {
		id := r.count(m.Tiles() - 1)
		mask := r.uint64()
		if r.err != nil {
			return
		}
		if id <= prev || mask == 0 {
			r.fail(ErrCorrupt)
			return
		}
		m.SetTileMask(id, mask)
		prev = id
	}
}

// putTilesV2 writes the tile block with the smallest id and mask layout.
func (w *writer) putTilesV2(active []activeTile, tiles int) {
	idMode := tileModeSkip
	if len(active) != tiles {
		idMode = tileModeFullDump
		if deltaSize(active) < (tiles+7)/8 {
			idMode = tileModeDelta
		}
	}

	pixMode := pixModeSkip
	for _, t := range active {
		if t.mask != tile.Full {
			pixMode = pixModeAllMask
			break
		}
	}
	if pixMode != pixModeSkip {
		best := 8 * len(active)
		if s := allIDSize(active); s < best {
			pixMode, best = pixModeAllID, s
		}
		if s := runLenSize(active); s < best {
			pixMode = pixModeRunLen
		}
	}

	w.byte(idMode | pixMode)

	switch idMode {
	case tileModeFullDump:
		bitmap := make([]byte, (tiles+7)/8)
		for _, t := range active {
			bitmap[t.id>>3] |= 1 << (t.id & 7)
		}
		w.bytes(bitmap)
	case tileModeDelta:
		prev := -1
		for _, t := range active {
			w.uvarint(uint64(t.id - prev - 1))
			prev = t.id
		}
	}

	switch pixMode {
	case pixModeAllMask:
		for _, t := range active {
			w.uint64(t.mask)
		}
	case pixModeAllID:
		for _, t := range active {
			w.putIDs(t.mask)
		}
	case pixModeRunLen:
		w.putRunLen(active)
	}
}

func (w *writer) putIDs(mask uint64) {
	w.byte(byte(bits.OnesCount64(mask)))
	tile.Crawl(mask, func(pix int) { w.byte(byte(pix)) })
}

func (w *writer) putRunLen(active []activeTile) {
	for start := 0; start < len(active); {
		useID := useIDs(active[start].mask)
		end := start + 1
		for end < len(active) && end-start < runLenMax && useIDs(active[end].mask) == useID {
			end++
		}
		ctrl := byte(end - start - 1)
		if useID {
			ctrl |= runLenID
		}
		w.byte(ctrl)
		for _, t := range active[start:end] {
			if useID {
				w.putIDs(t.mask)
			} else {
				w.uint64(t.mask)
			}
		}
		start = end
	}
}

func useIDs(mask uint64) bool { return bits.OnesCount64(mask) < idThreshold }

func deltaSize(active []activeTile) int {
	size, prev := 0, -1
	for _, t := range active {
		size += uvarintLen(uint64(t.id - prev - 1))
		prev = t.id
	}
	return size
}

func allIDSize(active []activeTile) int {
	size := 0
	for _, t := range active {
		size += 1 + bits.OnesCount64(t.mask)
	}
	return size
}

func runLenSize(active []activeTile) int {
	size := 0
	for start := 0; start < len(active); {
		useID := useIDs(active[start].mask)
		end := start
		for end < len(active) && end-start < runLenMax && useIDs(active[end].mask) == useID {
			if useID {
				size += 1 + bits.OnesCount64(active[end].mask)
			} else {
				size += 8
			}
			end++
		}
		size++ // control byte
		start = end
	}
	return size
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// tilesV2 decodes a Version2 tile block holding n active tiles into m.
func (r *reader) tilesV2(m *tile.Mask, n int) {
	mode := r.byte()
	if r.err != nil {
		return
	}
	tiles := m.Tiles()

	ids := make([]int, 0, n)
	switch mode & tileModeMask {
	case tileModeSkip:
		if n != tiles {
			r.fail(ErrCorrupt)
			return
		}
		for i := range tiles {
			ids = append(ids, i)
		}
	case tileModeFullDump:
		bitmap := r.take((tiles + 7) / 8)
		for i := 0; i < tiles && bitmap != nil; i++ {
			if bitmap[i>>3]&(1<<(i&7)) != 0 {
				ids = append(ids, i)
			}
		}
	case tileModeDelta:
		prev := -1
		for range n {
			id := prev + 1 + r.count(tiles)
			if r.err != nil {
				return
			}
			if id >= tiles {
				r.fail(ErrCorrupt)
				return
			}
			ids = append(ids, id)
			prev = id
		}
	default:
		r.fail(ErrCorrupt)
		return
	}
	if r.err != nil {
		return
	}
	if len(ids) != n {
		r.fail(ErrCorrupt)
		return
	}

	switch mode & pixModeMask {
	case pixModeSkip:
		for _, id := range ids {
			m.SetTileMask(id, tile.Full)
		}
	case pixModeAllMask:
		for _, id := range ids {
			m.SetTileMask(id, r.uint64())
		}
	case pixModeAllID:
		for _, id := range ids {
			m.SetTileMask(id, r.ids())
		}
	case pixModeRunLen:
		for i := 0; i < len(ids) && r.err == nil; {
			ctrl := r.byte()
			run := int(ctrl&^runLenID) + 1
			if i+run > len(ids) {
				r.fail(ErrCorrupt)
				return
			}
			for _, id := range ids[i : i+run] {
				if ctrl&runLenID != 0 {
					m.SetTileMask(id, r.ids())
				} else {
					m.SetTileMask(id, r.uint64())
				}
			}
			i += run
		}
	default:
		r.fail(ErrCorrupt)
		return
	}

	if r.err == nil {
		for _, id := range ids {
			if m.TileMask(id) == 0 {
				r.fail(ErrCorrupt)
				return
			}
		}
	}
}

// ids reads a count byte followed by that many distinct pixel indices.
func (r *reader) ids() uint64 {
	n := int(r.byte())
	idx := r.take(n)
	if idx == nil && n > 0 {
		return 0
	}
	var mask uint64
	for _, pix := range idx {
		if pix >= tile.Pixels {
			r.fail(ErrCorrupt)
			return 0
		}
		mask |= 1 << pix
	}
	if bits.OnesCount64(mask) != n {
		r.fail(ErrCorrupt)
		return 0
	}
	return mask
}

// AppendMask appends a standalone encoding of m to dst: width, height and
// active tile count as VLUInts followed by the tile block of version v.
func AppendMask(dst []byte, m *tile.Mask, v Version) []byte {
	w := writer{buf: dst}
	active := collectTiles(m)
	w.uvarint(uint64(m.Width()))
	w.uvarint(uint64(m.Height()))
	w.uvarint(uint64(len(active)))
	if len(active) == 0 {
		return w.buf
	}
	if v == Version1 {
		w.putTilesV1(active)
	} else {
		w.putTilesV2(active, m.Tiles())
	}
	return w.buf
}

// ReadMask decodes a mask written by AppendMask and returns it with the
// number of bytes consumed.
func ReadMask(data []byte, v Version) (*tile.Mask, int, error) {
	if v != Version1 && v != Version2 {
		return nil, 0, ErrUnsupportedVersion
	}
	r := newReader(data)
	width := r.count(MaxDimension)
	height := r.count(MaxDimension)
	if r.err != nil {
		return nil, 0, r.err
	}
	m := tile.NewMask(width, height)
	n := r.count(m.Tiles())
	if n > 0 {
		if v == Version1 {
			r.tilesV1(m, n)
		} else {
			r.tilesV2(m, n)
		}
	}
	if r.err != nil {
		return nil, 0, r.err
	}
	return m, r.off, nil
}

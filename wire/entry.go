package wire

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/tilesync/pixel"
	"github.com/gogpu/tilesync/tile"
)

// MaxDimension bounds the width and height accepted by the decoder.
const MaxDimension = 1 << 15

// Entry is one named buffer of a message: an active mask plus the values
// (and optionally sample counts) of its active pixels.
type Entry struct {
	// Name identifies the channel. Names are NFC normalized on encode.
	Name string

	Type      DataType
	Reference ReferenceType

	// Mask holds the active pixels and the logical width and height.
	// It is nil for TypeReference entries.
	Mask *tile.Mask

	// Values has the format given by Type.Format().
	Values pixel.Buffer

	// NumSample holds one count per pixel for *WithNumSample types.
	NumSample []uint32

	DefaultValue  float32
	ClosestFilter bool

	// Precision is the precision requested for this entry. After decoding
	// it is the precision the values were written with.
	Precision Precision

	// CoarsePrecision and FinePrecision resolve PrecisionRuntime.
	CoarsePrecision Precision
	FinePrecision   Precision
}

// NormalizeName returns the canonical form of a channel name.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

func (e *Entry) validate() error {
	if !e.Type.Known() {
		return fmt.Errorf("%w: data type %v", ErrInvalidEntry, e.Type)
	}
	if len(e.Name) > maxNameLen {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidEntry, maxNameLen)
	}
	if e.Type == TypeReference {
		if e.Reference == RefUndef {
			return fmt.Errorf("%w: reference entry without target", ErrInvalidEntry)
		}
		return nil
	}
	if e.Mask == nil {
		return fmt.Errorf("%w: %v entry without mask", ErrInvalidEntry, e.Type)
	}
	if w, h := e.Mask.Width(), e.Mask.Height(); w > MaxDimension || h > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidEntry, w, h, MaxDimension)
	}
	pixels := e.Mask.Geometry().PixelCount()
	if e.Values.Format() != e.Type.Format() || e.Values.Len() != pixels {
		return fmt.Errorf("%w: %v needs %v[%d], have %v[%d]", ErrInvalidEntry,
			e.Type, e.Type.Format(), pixels, e.Values.Format(), e.Values.Len())
	}
	if e.Type.HasNumSample() && len(e.NumSample) != pixels {
		return fmt.Errorf("%w: %v needs %d sample counts, have %d", ErrInvalidEntry,
			e.Type, pixels, len(e.NumSample))
	}
	return nil
}

// resolvePrecision returns the precision values of e are written with.
func (e *Entry) resolvePrecision(coarse bool) Precision {
	if e.Type.exact() {
		return F32
	}
	p := e.Precision
	if p == PrecisionRuntime {
		p = e.FinePrecision
		if coarse {
			p = e.CoarsePrecision
		}
	}
	if !p.valid() {
		return F32
	}
	return p
}

// putEntry writes the body of e: header, tile block and payload.
func (w *writer) putEntry(e *Entry, v Version, coarse bool) {
	p := e.resolvePrecision(coarse)

	w.uvarint(uint64(e.Type))
	w.uvarint(uint64(e.Reference))
	if e.Type == TypeReference {
		return
	}

	g := e.Mask.Geometry()
	w.uvarint(uint64(g.Width()))
	w.uvarint(uint64(g.Height()))
	active := collectTiles(e.Mask)
	w.uvarint(uint64(len(active)))
	w.uvarint(uint64(e.Mask.ActivePixels()))
	w.float32(e.DefaultValue)
	w.byte(byte(p))
	w.bool(e.ClosestFilter)
	w.byte(byte(e.CoarsePrecision))
	w.byte(byte(e.FinePrecision))

	if len(active) == 0 {
		return
	}
	if v == Version1 {
		w.putTilesV1(active)
	} else {
		w.putTilesV2(active, g.Tiles())
	}

	comps := e.Type.Format().Components()
	withN := e.Type.HasNumSample()
	for _, t := range active {
		base := t.id << 6
		tile.Crawl(t.mask, func(pix int) {
			i := base + pix
			for c := range comps {
				w.putValue(e.Values.Component(i, c), p)
			}
			if withN {
				w.uvarint(uint64(e.NumSample[i]))
			}
		})
	}
}

// entry decodes an entry body. ok is false for data types this decoder
// does not know; the caller skips those.
func (r *reader) entry(name string, v Version) (e *Entry, ok bool) {
	raw := r.uvarint()
	if r.err != nil || raw >= uint64(typeCount) {
		return nil, false
	}
	t := DataType(raw)
	if !t.Known() {
		return nil, false
	}
	e = &Entry{Name: name, Type: t}
	e.Reference = ReferenceType(r.uvarint())
	if t == TypeReference {
		return e, true
	}

	width := r.count(MaxDimension)
	height := r.count(MaxDimension)
	if r.err != nil {
		return e, true
	}
	e.Mask = tile.NewMask(width, height)
	g := e.Mask.Geometry()

	activeTiles := r.count(g.Tiles())
	activePixels := r.count(g.PixelCount())
	e.DefaultValue = r.float32()
	e.Precision = Precision(r.byte())
	e.ClosestFilter = r.bool()
	e.CoarsePrecision = Precision(r.byte())
	e.FinePrecision = Precision(r.byte())
	if r.err != nil {
		return e, true
	}
	if !e.Precision.valid() || activePixels < activeTiles || activePixels > activeTiles*tile.Pixels {
		r.fail(ErrCorrupt)
		return e, true
	}

	e.Values.Setup(t.Format(), g.PixelCount())
	if t.HasNumSample() {
		e.NumSample = make([]uint32, g.PixelCount())
	}
	if activeTiles == 0 {
		return e, true
	}

	if v == Version1 {
		r.tilesV1(e.Mask, activeTiles)
	} else {
		r.tilesV2(e.Mask, activeTiles)
	}
	if r.err != nil {
		return e, true
	}
	if e.Mask.ActiveTiles() != activeTiles || e.Mask.ActivePixels() != activePixels {
		r.fail(ErrCorrupt)
		return e, true
	}

	comps := t.Format().Components()
	withN := t.HasNumSample()
	need := activePixels * comps * e.Precision.Size()
	if withN {
		need += activePixels // at least one byte per count
	}
	if need > r.remaining() {
		r.fail(ErrTruncated)
		return e, true
	}
	e.Mask.CrawlPixels(func(i int) {
		for c := range comps {
			e.Values.SetComponent(i, c, r.value(e.Precision))
		}
		if withN {
			e.NumSample[i] = r.sampleCount()
		}
	})
	return e, true
}

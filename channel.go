package tilesync

import (
	"fmt"

	"github.com/gogpu/tilesync/pixel"
	"github.com/gogpu/tilesync/tile"
	"github.com/gogpu/tilesync/wire"
)

// Kind identifies the role of a channel in a FrameBufferSet.
type Kind uint8

const (
	// KindNamed is an arbitrary output channel created by name.
	KindNamed Kind = iota

	// KindBeauty is the primary color: Float4 with sample counts.
	KindBeauty

	// KindBeautyOdd holds the color of odd samples only, used for
	// noise estimation: Float4 with sample counts.
	KindBeautyOdd

	// KindPixelInfo is the Float1 depth of the closest hit.
	KindPixelInfo

	// KindHeatMap is the Float1 render time in seconds with sample counts.
	KindHeatMap

	// KindWeight is the Float1 accumulated sample weight.
	KindWeight

	kindCount
)

// Names of the fixed channels. Channel returns the fixed channel for
// these names instead of creating a named one.
const (
	NameBeauty    = "beauty"
	NameBeautyOdd = "beautyOdd"
	NamePixelInfo = "pixelInfo"
	NameHeatMap   = "heatMap"
	NameWeight    = "weight"
)

var kindNames = [kindCount]string{
	KindNamed:     "named",
	KindBeauty:    NameBeauty,
	KindBeautyOdd: NameBeautyOdd,
	KindPixelInfo: NamePixelInfo,
	KindHeatMap:   NameHeatMap,
	KindWeight:    NameWeight,
}

// String returns the kind name.
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

func (k Kind) format() pixel.Format {
	switch k {
	case KindBeauty, KindBeautyOdd:
		return pixel.FormatFloat4
	case KindPixelInfo, KindHeatMap, KindWeight:
		return pixel.FormatFloat1
	}
	return pixel.FormatUndef
}

func (k Kind) numSample() bool {
	switch k {
	case KindNamed, KindBeauty, KindBeautyOdd, KindHeatMap:
		return true
	}
	return false
}

func kindByName(name string) Kind {
	for k := KindBeauty; k < kindCount; k++ {
		if kindNames[k] == name {
			return k
		}
	}
	return KindNamed
}

// Channel is one logical buffer of a FrameBufferSet: tiled values, an
// optional sample count per pixel and the active mask.
//
// A named channel may instead alias a standard channel (Reference is set);
// it then has no storage of its own.
type Channel struct {
	name string
	kind Kind
	geom tile.Geometry

	values  pixel.Buffer
	samples []uint32
	mask    *tile.Mask
	active  bool

	// DefaultValue is the value of pixels without samples.
	DefaultValue float32

	// ClosestFilter selects closest-depth merging instead of averaging.
	ClosestFilter bool

	// Reference marks the channel as an alias of a standard channel.
	Reference wire.ReferenceType

	// Precision, CoarsePrecision and FinePrecision choose the wire
	// precision of encoded values (see wire.Entry).
	Precision       wire.Precision
	CoarsePrecision wire.Precision
	FinePrecision   wire.Precision
}

func newChannel(name string, kind Kind, g tile.Geometry) *Channel {
	c := &Channel{
		name:      name,
		kind:      kind,
		geom:      g,
		mask:      tile.NewMask(g.Width(), g.Height()),
		active:    kind == KindBeauty,
		Precision: wire.F32,
	}
	if kind == KindBeauty || kind == KindBeautyOdd {
		c.Precision = wire.PrecisionRuntime
		c.CoarsePrecision = wire.H16
		c.FinePrecision = wire.F32
	}
	return c
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Kind returns the channel role.
func (c *Channel) Kind() Kind { return c.kind }

// Format returns the value format, FormatUndef without storage.
func (c *Channel) Format() pixel.Format { return c.values.Format() }

// HasNumSample reports whether the channel keeps sample counts.
func (c *Channel) HasNumSample() bool { return c.samples != nil }

// Values returns the tiled values.
func (c *Channel) Values() *pixel.Buffer { return &c.values }

// NumSample returns the per-pixel sample counts, or nil.
func (c *Channel) NumSample() []uint32 { return c.samples }

// Mask returns the active mask.
func (c *Channel) Mask() *tile.Mask { return c.mask }

// IsActive reports whether the channel is in use. Inactive channels are
// released by GarbageCollect.
func (c *Channel) IsActive() bool { return c.active }

// SetActive marks the channel as used or unused.
func (c *Channel) SetActive(active bool) { c.active = active }

// IsReference reports whether the channel aliases a standard channel.
func (c *Channel) IsReference() bool { return c.Reference != wire.RefUndef }

// Allocated reports whether the channel has value storage.
func (c *Channel) Allocated() bool { return c.values.Format() != pixel.FormatUndef }

// Setup prepares a named channel for values of the given float format.
// Storage is kept when the format is unchanged and the function returns
// false; otherwise it is reallocated zeroed with an empty mask. Setup
// clears Reference and marks the channel active.
func (c *Channel) Setup(format pixel.Format) bool {
	if c.kind != KindNamed {
		panic(fmt.Sprintf("tilesync: Setup on fixed channel %s", c.name))
	}
	if !format.IsFloat() {
		panic(fmt.Sprintf("tilesync: channel %q needs a float format, got %v", c.name, format))
	}
	c.Reference = wire.RefUndef
	return c.allocate(format)
}

// Enable allocates the storage of a fixed channel and marks it active.
// For named channels it reallocates the last format set up.
func (c *Channel) Enable() bool {
	format := c.kind.format()
	if c.kind == KindNamed {
		format = c.values.Format()
		if format == pixel.FormatUndef {
			panic(fmt.Sprintf("tilesync: Enable on channel %q without format", c.name))
		}
	}
	return c.allocate(format)
}

func (c *Channel) allocate(format pixel.Format) bool {
	c.active = true
	n := c.geom.PixelCount()
	realloc := c.values.Setup(format, n)
	if c.kind.numSample() && (realloc || len(c.samples) != n) {
		c.samples = make([]uint32, n)
		realloc = true
	}
	if realloc {
		c.mask.Init(c.geom.Width(), c.geom.Height())
		c.mask.Reset()
		Logger().Debug("tilesync: channel allocated",
			"channel", c.name, "format", format, "pixels", n)
	}
	return realloc
}

// SetReference turns a named channel into an alias of a standard channel
// and releases its storage.
func (c *Channel) SetReference(ref wire.ReferenceType) {
	if c.kind != KindNamed {
		panic(fmt.Sprintf("tilesync: SetReference on fixed channel %s", c.name))
	}
	c.free()
	c.Reference = ref
	c.active = true
}

func (c *Channel) free() {
	c.values.Free()
	c.samples = nil
	c.mask.Reset()
}

// resize follows a new set geometry, reallocating storage only when the
// channel has any.
func (c *Channel) resize(g tile.Geometry) {
	c.geom = g
	c.mask.Init(g.Width(), g.Height())
	if !c.Allocated() {
		return
	}
	format := c.values.Format()
	c.values.Free()
	c.samples = nil
	c.allocate(format)
}

func (c *Channel) reset() {
	c.mask.Reset()
	c.values.Clear()
	clear(c.samples)
}

func (c *Channel) resetTile(tileIdx int) {
	c.mask.SetTileMask(tileIdx, 0)
	if !c.Allocated() {
		return
	}
	v := c.values.Tile(tileIdx)
	v.Clear()
	if c.samples != nil {
		clear(tileSlice(c.samples, tileIdx))
	}
}

// enabled reports whether the channel takes part in set-wide operations.
func (c *Channel) enabled() bool { return c.active && c.Allocated() }

// dataType returns the wire type of a full channel.
func (c *Channel) dataType() wire.DataType {
	switch c.kind {
	case KindBeauty:
		return wire.TypeBeautyWithNumSample
	case KindBeautyOdd:
		return wire.TypeBeautyOddWithNumSample
	case KindPixelInfo:
		return wire.TypePixelInfo
	case KindHeatMap:
		return wire.TypeHeatMapWithNumSample
	case KindWeight:
		return wire.TypeWeight
	}
	if c.IsReference() {
		return wire.TypeReference
	}
	return wire.FloatType(c.values.Format().Components(), true)
}

// entry describes the channel for the wire encoder, limited to mask.
func (c *Channel) entry(mask *tile.Mask) *wire.Entry {
	e := &wire.Entry{
		Name:            c.name,
		Type:            c.dataType(),
		Reference:       c.Reference,
		DefaultValue:    c.DefaultValue,
		ClosestFilter:   c.ClosestFilter,
		Precision:       c.Precision,
		CoarsePrecision: c.CoarsePrecision,
		FinePrecision:   c.FinePrecision,
	}
	if e.Type == wire.TypeReference {
		return e
	}
	e.Mask = mask
	e.Values = c.values
	e.NumSample = c.samples
	return e
}

func tileSlice[T any](s []T, tileIdx int) []T {
	lo := tileIdx << 6
	return s[lo : lo+tile.Pixels : lo+tile.Pixels]
}

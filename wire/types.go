package wire

import (
	"fmt"

	"github.com/gogpu/tilesync/pixel"
)

// Version selects the tile block layout of a message.
type Version uint8

const (
	// Version1 writes every active tile as id + 64-bit mask.
	Version1 Version = 1

	// Version2 picks the smallest of several tile id and pixel mask
	// layouts per entry.
	Version2 Version = 2

	// CurrentVersion is the version written by default.
	CurrentVersion = Version2
)

// DataType identifies the payload shape of an entry.
type DataType uint8

// Payload shapes. Values are part of the wire format.
const (
	TypeUndef DataType = iota
	TypeBeautyWithNumSample
	TypeBeauty
	TypePixelInfo
	TypeHeatMapWithNumSample
	TypeHeatMap
	TypeFloat1WithNumSample
	TypeFloat1
	TypeFloat2WithNumSample
	TypeFloat2
	TypeFloat3WithNumSample
	TypeFloat3
	TypeReference
	TypeWeight
	TypeBeautyOddWithNumSample
	TypeBeautyOdd
	TypeFloat4WithNumSample
	TypeFloat4

	typeCount
)

var dataTypeNames = [...]string{
	TypeUndef:                  "Undef",
	TypeBeautyWithNumSample:    "BeautyWithNumSample",
	TypeBeauty:                 "Beauty",
	TypePixelInfo:              "PixelInfo",
	TypeHeatMapWithNumSample:   "HeatMapWithNumSample",
	TypeHeatMap:                "HeatMap",
	TypeFloat1WithNumSample:    "Float1WithNumSample",
	TypeFloat1:                 "Float1",
	TypeFloat2WithNumSample:    "Float2WithNumSample",
	TypeFloat2:                 "Float2",
	TypeFloat3WithNumSample:    "Float3WithNumSample",
	TypeFloat3:                 "Float3",
	TypeReference:              "Reference",
	TypeWeight:                 "Weight",
	TypeBeautyOddWithNumSample: "BeautyOddWithNumSample",
	TypeBeautyOdd:              "BeautyOdd",
	TypeFloat4WithNumSample:    "Float4WithNumSample",
	TypeFloat4:                 "Float4",
}

// String returns the data type name.
func (t DataType) String() string {
	if t < typeCount {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", t)
}

// Known reports whether this decoder understands t.
func (t DataType) Known() bool {
	return t > TypeUndef && t < typeCount
}

// HasNumSample reports whether each active pixel carries a sample count.
func (t DataType) HasNumSample() bool {
	switch t {
	case TypeBeautyWithNumSample, TypeHeatMapWithNumSample, TypeFloat1WithNumSample,
		TypeFloat2WithNumSample, TypeFloat3WithNumSample, TypeBeautyOddWithNumSample,
		TypeFloat4WithNumSample:
		return true
	}
	return false
}

// Format returns the buffer format holding the values of t.
// TypeReference and TypeUndef have no buffer and return FormatUndef.
func (t DataType) Format() pixel.Format {
	switch t {
	case TypeBeautyWithNumSample, TypeBeauty, TypeBeautyOddWithNumSample, TypeBeautyOdd,
		TypeFloat4WithNumSample, TypeFloat4:
		return pixel.FormatFloat4
	case TypePixelInfo, TypeHeatMapWithNumSample, TypeHeatMap, TypeWeight,
		TypeFloat1WithNumSample, TypeFloat1:
		return pixel.FormatFloat1
	case TypeFloat2WithNumSample, TypeFloat2:
		return pixel.FormatFloat2
	case TypeFloat3WithNumSample, TypeFloat3:
		return pixel.FormatFloat3
	}
	return pixel.FormatUndef
}

// exact reports whether values of t ignore the requested precision and are
// always written as 32-bit floats.
func (t DataType) exact() bool {
	switch t {
	case TypePixelInfo, TypeHeatMapWithNumSample, TypeHeatMap, TypeWeight:
		return true
	}
	return false
}

// FloatType returns the FloatN data type for n components.
func FloatType(n int, numSample bool) DataType {
	var t DataType
	switch n {
	case 1:
		t = TypeFloat1
	case 2:
		t = TypeFloat2
	case 3:
		t = TypeFloat3
	case 4:
		t = TypeFloat4
	default:
		panic(fmt.Sprintf("wire: no float data type with %d components", n))
	}
	if numSample {
		t-- // every WithNumSample variant directly precedes its plain type
	}
	return t
}

// ReferenceType names the standard channel a TypeReference entry aliases.
type ReferenceType uint8

// Reference targets. Values are part of the wire format.
const (
	RefUndef ReferenceType = iota
	RefBeauty
	RefAlpha
	RefHeatMap
	RefWeight
	RefBeautyAux
	RefAlphaAux
)

// String returns the reference target name.
func (r ReferenceType) String() string {
	switch r {
	case RefUndef:
		return "Undef"
	case RefBeauty:
		return "Beauty"
	case RefAlpha:
		return "Alpha"
	case RefHeatMap:
		return "HeatMap"
	case RefWeight:
		return "Weight"
	case RefBeautyAux:
		return "BeautyAux"
	case RefAlphaAux:
		return "AlphaAux"
	}
	return fmt.Sprintf("ReferenceType(%d)", r)
}

// Precision is the numeric width of encoded float values.
type Precision uint8

const (
	// PrecisionRuntime defers the choice to the pass: the coarse
	// precision during coarse passes, the fine precision otherwise.
	PrecisionRuntime Precision = iota

	// F32 writes full 32-bit floats.
	F32

	// H16 writes IEEE 754 half floats.
	H16

	// UC8 writes one byte per component, v*255 clamped to [0, 255].
	UC8
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case PrecisionRuntime:
		return "Runtime"
	case F32:
		return "F32"
	case H16:
		return "H16"
	case UC8:
		return "UC8"
	}
	return fmt.Sprintf("Precision(%d)", p)
}

// Size returns the encoded size of one component in bytes.
func (p Precision) Size() int {
	switch p {
	case F32:
		return 4
	case H16:
		return 2
	case UC8:
		return 1
	}
	return 0
}

func (p Precision) valid() bool { return p >= F32 && p <= UC8 }

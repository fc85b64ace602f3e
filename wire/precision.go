package wire

import (
	"math"

	"github.com/x448/float16"
)

// putValue writes one float component at precision p.
func (w *writer) putValue(v float32, p Precision) {
	switch p {
	case H16:
		w.uint16(float16.Fromfloat32(v).Bits())
	case UC8:
		w.byte(toUC8(v))
	default:
		w.float32(v)
	}
}

// value reads one float component written at precision p.
func (r *reader) value(p Precision) float32 {
	switch p {
	case H16:
		return float16.Frombits(r.uint16()).Float32()
	case UC8:
		return fromUC8(r.byte())
	default:
		return r.float32()
	}
}

// toUC8 quantizes v to [0, 255] by truncation, matching the 8-bit
// transfer of the render nodes. NaN maps to 0.
func toUC8(v float32) byte {
	if !(v > 0) {
		return 0
	}
	q := v * 255
	if q >= 255 {
		return 255
	}
	return byte(q)
}

func fromUC8(b byte) float32 {
	return float32(b) / 255
}

// MaxError returns the largest absolute difference between a value v and
// its round trip through precision p, for v in the range the precision
// can represent ([0, 1] for UC8, normal half range for H16).
func MaxError(p Precision, v float32) float32 {
	switch p {
	case H16:
		// 11 significant bits, round to nearest
		return float32(math.Abs(float64(v))) * (1.0 / 2048)
	case UC8:
		return 1.0 / 255
	}
	return 0
}

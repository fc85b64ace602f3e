package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/gogpu/tilesync/pixel"
	"github.com/gogpu/tilesync/tile"
)

// gen is a small deterministic xorshift source.
type gen uint64

func (g *gen) next() uint64 {
	x := uint64(*g)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*g = gen(x)
	return x
}

// unit returns a value in [0.25, 1).
func (g *gen) unit() float32 {
	return 0.25 + float32(g.next()>>40)/float32(1<<24)*0.75
}

// randomEntry builds an entry of type typ with a pseudo random mask that
// leaves some tiles empty, some full and some sparse.
func randomEntry(typ DataType, w, h int, seed uint64, p Precision) *Entry {
	g := gen(seed | 1)
	m := tile.NewMask(w, h)
	valid := m.Geometry().ValidMask
	for id := range m.Tiles() {
		var mask uint64
		switch g.next() % 4 {
		case 0:
		case 1:
			mask = tile.Full
		case 2:
			mask = 1 << (g.next() % 64)
		default:
			mask = g.next()
		}
		m.SetTileMask(id, mask&valid(id))
	}

	e := &Entry{Name: typ.String(), Type: typ, Mask: m, Precision: p}
	n := m.Geometry().PixelCount()
	e.Values.Setup(typ.Format(), n)
	if typ.HasNumSample() {
		e.NumSample = make([]uint32, n)
	}
	m.CrawlPixels(func(i int) {
		for c := range typ.Format().Components() {
			e.Values.SetComponent(i, c, g.unit())
		}
		if e.NumSample != nil {
			e.NumSample[i] = uint32(g.next() % 1000)
		}
	})
	return e
}

func encode(t *testing.T, opts []EncoderOption, entries ...*Entry) []byte {
	t.Helper()
	enc := NewEncoder(opts...)
	for _, e := range entries {
		if err := enc.Add(e); err != nil {
			t.Fatalf("Add(%s): %v", e.Name, err)
		}
	}
	data, err := enc.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

// checkEntry compares a decoded entry against the encoded one, allowing
// the quantization error of precision p.
func checkEntry(t *testing.T, want, got *Entry, p Precision) {
	t.Helper()
	if got.Type != want.Type {
		t.Fatalf("type = %v, want %v", got.Type, want.Type)
	}
	if !got.Mask.Equal(want.Mask) {
		t.Fatalf("mask differs after round trip")
	}
	comps := want.Type.Format().Components()
	for i := range want.Values.Len() {
		for c := range comps {
			gv := got.Values.Component(i, c)
			if !want.Mask.IsActive(i) {
				if gv != 0 {
					t.Fatalf("inactive pixel %d component %d = %v, want 0", i, c, gv)
				}
				continue
			}
			wv := want.Values.Component(i, c)
			if d := float32(math.Abs(float64(gv - wv))); d > MaxError(p, wv)+1e-6 {
				t.Fatalf("pixel %d component %d = %v, want %v (±%v)", i, c, gv, wv, MaxError(p, wv))
			}
		}
		if want.NumSample != nil && want.Mask.IsActive(i) && got.NumSample[i] != want.NumSample[i] {
			t.Fatalf("pixel %d numSample = %d, want %d", i, got.NumSample[i], want.NumSample[i])
		}
	}
}

// =============================================================================
// Round trip
// =============================================================================

func TestRoundTrip_SinglePixel(t *testing.T) {
	m := tile.NewMask(16, 16)
	m.SetTileMask(0, 1<<10) // (2, 1)
	e := &Entry{Name: "beauty", Type: TypeBeauty, Mask: m, Precision: F32}
	e.Values.Setup(pixel.FormatFloat4, m.Geometry().PixelCount())
	e.Values.Float4()[10] = [4]float32{1, 0, 0, 1}

	msg, err := Decode(encode(t, nil, e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(msg.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(msg.Entries))
	}
	got := msg.Entry("beauty")
	if got == nil {
		t.Fatal("entry beauty missing")
	}
	if got.Mask.ActivePixels() != 1 || !got.Mask.IsActive(10) {
		t.Fatalf("mask = %#x, want bit 10", got.Mask.TileMask(0))
	}
	if v := got.Values.Float4()[10]; v != e.Values.Float4()[10] {
		t.Errorf("pixel 10 = %v, want %v", v, e.Values.Float4()[10])
	}
	if got.Mask.Width() != 16 || got.Mask.Height() != 16 {
		t.Errorf("size = %dx%d, want 16x16", got.Mask.Width(), got.Mask.Height())
	}
}

func TestRoundTrip_AllTypes(t *testing.T) {
	for _, v := range []Version{Version1, Version2} {
		for typ := TypeBeautyWithNumSample; typ < typeCount; typ++ {
			if typ == TypeReference {
				continue
			}
			for _, p := range []Precision{F32, H16, UC8} {
				t.Run(fmt.Sprintf("v%d/%v/%v", v, typ, p), func(t *testing.T) {
					e := randomEntry(typ, 37, 21, uint64(typ)*31+uint64(p), p)
					msg, err := Decode(encode(t, []EncoderOption{WithVersion(v)}, e))
					if err != nil {
						t.Fatalf("Decode: %v", err)
					}
					if msg.Version != v {
						t.Errorf("version = %d, want %d", msg.Version, v)
					}
					want := p
					if typ.exact() {
						want = F32
					}
					got := msg.Entries[0]
					if got.Precision != want {
						t.Errorf("precision = %v, want %v", got.Precision, want)
					}
					checkEntry(t, e, got, want)
				})
			}
		}
	}
}

func TestRoundTrip_EmptyEntry(t *testing.T) {
	e := randomEntry(TypeFloat2, 20, 20, 7, F32)
	e.Mask.Reset()
	msg, err := Decode(encode(t, nil, e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := msg.Entries[0]
	if !got.Mask.IsEmpty() {
		t.Error("decoded mask not empty")
	}
	if got.Values.Len() != e.Values.Len() {
		t.Errorf("values = %d, want %d", got.Values.Len(), e.Values.Len())
	}
}

func TestRoundTrip_Reference(t *testing.T) {
	e := &Entry{Name: "alpha", Type: TypeReference, Reference: RefAlpha}
	msg, err := Decode(encode(t, nil, e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := msg.Entries[0]
	if got.Type != TypeReference || got.Reference != RefAlpha || got.Mask != nil {
		t.Errorf("got %v/%v mask=%v, want Reference/Alpha/nil", got.Type, got.Reference, got.Mask)
	}
}

func TestRoundTrip_HeaderFields(t *testing.T) {
	e := randomEntry(TypeFloat1, 8, 8, 3, PrecisionRuntime)
	e.DefaultValue = 0.5
	e.ClosestFilter = true
	e.CoarsePrecision = UC8
	e.FinePrecision = H16

	tests := []struct {
		name   string
		coarse bool
		want   Precision
	}{
		{"fine", false, H16},
		{"coarse", true, UC8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(encode(t, []EncoderOption{WithCoarsePass(tt.coarse)}, e))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			got := msg.Entries[0]
			if got.Precision != tt.want {
				t.Errorf("precision = %v, want %v", got.Precision, tt.want)
			}
			if got.DefaultValue != 0.5 || !got.ClosestFilter {
				t.Errorf("default/closest = %v/%v, want 0.5/true", got.DefaultValue, got.ClosestFilter)
			}
			if got.CoarsePrecision != UC8 || got.FinePrecision != H16 {
				t.Errorf("coarse/fine = %v/%v, want UC8/H16", got.CoarsePrecision, got.FinePrecision)
			}
			checkEntry(t, e, got, tt.want)
		})
	}
}

func TestRoundTrip_NameNormalized(t *testing.T) {
	e := randomEntry(TypeFloat1, 8, 8, 5, F32)
	e.Name = "cafe\u0301"
	msg, err := Decode(encode(t, nil, e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := msg.Entries[0].Name; got != "caf\u00e9" {
		t.Errorf("name = %q, want NFC form", got)
	}
	if msg.Entry("cafe\u0301") == nil {
		t.Error("lookup by decomposed name failed")
	}
}

func TestEncoder_Reset(t *testing.T) {
	enc := NewEncoder()
	if err := enc.Add(randomEntry(TypeFloat1, 8, 8, 1, F32)); err != nil {
		t.Fatal(err)
	}
	enc.Reset()
	if enc.Len() != 0 {
		t.Fatalf("Len = %d after Reset", enc.Len())
	}
	data, err := enc.Encode([]byte("prefix"))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(data[len("prefix"):])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(msg.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(msg.Entries))
	}
}

func TestEncoder_RejectsInvalidEntries(t *testing.T) {
	good := randomEntry(TypeFloat3WithNumSample, 8, 8, 1, F32)
	tests := []struct {
		name string
		e    *Entry
	}{
		{"undef type", &Entry{Type: TypeUndef}},
		{"unknown type", &Entry{Type: DataType(99)}},
		{"reference without target", &Entry{Type: TypeReference}},
		{"no mask", &Entry{Type: TypeFloat1}},
		{"wrong format", &Entry{Type: TypeFloat2, Mask: good.Mask, Values: good.Values}},
		{"missing counts", &Entry{Type: good.Type, Mask: good.Mask, Values: good.Values}},
		{"too large", &Entry{Type: TypeFloat1, Mask: tile.NewMask(MaxDimension+1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewEncoder().Add(tt.e); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Add = %v, want ErrInvalidEntry", err)
			}
		})
	}
	if _, err := NewEncoder(WithVersion(9)).Encode(nil); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Encode with version 9 = %v, want ErrUnsupportedVersion", err)
	}
}

// =============================================================================
// Malformed input
// =============================================================================

// frame wraps raw entry bodies into a message.
func frame(v Version, names []string, bodies ...[]byte) []byte {
	var w writer
	w.bytes(make([]byte, HashSize))
	w.uvarint(uint64(v))
	w.uvarint(uint64(len(bodies)))
	for i, b := range bodies {
		w.string(names[i])
		w.uvarint(uint64(len(b)))
		w.bytes(b)
	}
	return w.buf
}

func body(e *Entry, v Version) []byte {
	var w writer
	w.putEntry(e, v, false)
	return w.buf
}

func TestDecode_SkipsUnknownType(t *testing.T) {
	known := randomEntry(TypeFloat4, 16, 8, 11, F32)
	data := frame(Version2, []string{"future", "undef", "color"},
		[]byte{0x7f, 0xaa, 0xbb, 0xcc},
		[]byte{byte(TypeUndef)},
		body(known, Version2),
	)
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(msg.Entries) != 1 || msg.Entries[0].Name != "color" {
		t.Fatalf("entries = %d, want only color", len(msg.Entries))
	}
	checkEntry(t, known, msg.Entries[0], F32)
	want := []Skipped{{"future", 4}, {"undef", 1}}
	if len(msg.Skipped) != len(want) {
		t.Fatalf("skipped = %v, want %v", msg.Skipped, want)
	}
	for i := range want {
		if msg.Skipped[i] != want[i] {
			t.Errorf("skipped[%d] = %v, want %v", i, msg.Skipped[i], want[i])
		}
	}
}

func TestDecode_Truncated(t *testing.T) {
	data := encode(t, nil,
		randomEntry(TypeBeautyWithNumSample, 24, 16, 2, H16),
		randomEntry(TypeWeight, 24, 16, 3, F32),
	)
	for n := range len(data) {
		if _, err := Decode(data[:n]); !errors.Is(err, ErrTruncated) {
			t.Fatalf("Decode(%d of %d bytes) = %v, want ErrTruncated", n, len(data), err)
		}
	}
}

func TestDecode_Version(t *testing.T) {
	for _, v := range []Version{0, 3, 200} {
		if _, err := Decode(frame(v, nil)); !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("version %d: err = %v, want ErrUnsupportedVersion", v, err)
		}
	}
}

// header writes a Float1 entry header for an 8x8 buffer.
func header(w *writer, tiles, pixels int, p Precision) {
	w.uvarint(uint64(TypeFloat1))
	w.uvarint(0)
	w.uvarint(8)
	w.uvarint(8)
	w.uvarint(uint64(tiles))
	w.uvarint(uint64(pixels))
	w.float32(0)
	w.byte(byte(p))
	w.bool(false)
	w.byte(0)
	w.byte(0)
}

func TestDecode_Corrupt(t *testing.T) {
	tests := []struct {
		name  string
		v     Version
		build func(w *writer)
	}{
		{"pixel count mismatch", Version1, func(w *writer) {
			header(w, 1, 2, F32)
			w.uvarint(0)
			w.uint64(1)
			w.float32(1)
			w.float32(2)
		}},
		{"zero tile mask", Version1, func(w *writer) {
			header(w, 1, 1, F32)
			w.uvarint(0)
			w.uint64(0)
			w.float32(1)
		}},
		{"tile id out of range", Version1, func(w *writer) {
			header(w, 1, 1, F32)
			w.uvarint(1)
			w.uint64(1)
			w.float32(1)
		}},
		{"bad precision", Version1, func(w *writer) {
			header(w, 0, 0, Precision(9))
		}},
		{"more pixels than tiles hold", Version1, func(w *writer) {
			header(w, 1, 65, F32)
		}},
		{"trailing bytes", Version1, func(w *writer) {
			header(w, 1, 1, F32)
			w.uvarint(0)
			w.uint64(1)
			w.float32(1)
			w.byte(0)
		}},
		{"bad tile mode", Version2, func(w *writer) {
			header(w, 1, 1, F32)
			w.byte(0x0f)
		}},
		{"duplicate pixel id", Version2, func(w *writer) {
			header(w, 1, 2, F32)
			w.byte(tileModeSkip | pixModeAllID)
			w.byte(2)
			w.byte(5)
			w.byte(5)
			w.float32(1)
			w.float32(2)
		}},
		{"run longer than tiles", Version2, func(w *writer) {
			header(w, 1, 1, F32)
			w.byte(tileModeSkip | pixModeRunLen)
			w.byte(runLenID | 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w writer
			tt.build(&w)
			_, err := Decode(frame(tt.v, []string{"x"}, w.buf))
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Decode = %v, want ErrCorrupt", err)
			}
		})
	}
}

// =============================================================================
// Hash
// =============================================================================

func TestVerifyHash(t *testing.T) {
	e := randomEntry(TypeFloat3, 16, 16, 9, F32)

	hashed := encode(t, []EncoderOption{WithHash(true)}, e)
	if ok, err := VerifyHash(hashed); !ok || err != nil {
		t.Fatalf("VerifyHash = %v, %v; want true, nil", ok, err)
	}
	if _, err := Decode(hashed); err != nil {
		t.Fatalf("Decode hashed: %v", err)
	}

	tampered := bytes.Clone(hashed)
	tampered[len(tampered)-1] ^= 0xff
	if ok, err := VerifyHash(tampered); ok || err != nil {
		t.Errorf("tampered VerifyHash = %v, %v; want false, nil", ok, err)
	}

	plain := encode(t, nil, e)
	if !bytes.Equal(plain[:HashSize], make([]byte, HashSize)) {
		t.Error("hash slot not zero without WithHash")
	}
	if _, err := VerifyHash(plain); !errors.Is(err, ErrNoHash) {
		t.Errorf("VerifyHash without hash = %v, want ErrNoHash", err)
	}
	if !bytes.Equal(plain[HashSize:], hashed[HashSize:]) {
		t.Error("hash option changed the message body")
	}
	if _, err := VerifyHash(plain[:3]); !errors.Is(err, ErrTruncated) {
		t.Errorf("VerifyHash short = %v, want ErrTruncated", err)
	}
}

// =============================================================================
// Tile block
// =============================================================================

func roundTripTiles(t *testing.T, m *tile.Mask) byte {
	t.Helper()
	active := collectTiles(m)
	var w writer
	w.putTilesV2(active, m.Tiles())

	got := tile.NewMask(m.Width(), m.Height())
	r := newReader(w.buf)
	r.tilesV2(got, len(active))
	if r.err != nil {
		t.Fatalf("tilesV2: %v", r.err)
	}
	if r.remaining() != 0 {
		t.Fatalf("%d bytes left after tile block", r.remaining())
	}
	if !got.Equal(m) {
		t.Fatal("tile block round trip changed the mask")
	}
	return w.buf[0]
}

// dense has 10 active pixels.
const dense uint64 = 0x3ff

func TestTilesV2_Modes(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		masks map[int]uint64
		all   uint64 // applied to every tile when non-zero
		want  byte
	}{
		{"all full", 32, 32, nil, tile.Full, tileModeSkip | pixModeSkip},
		{"all dense", 32, 32, nil, dense, tileModeSkip | pixModeAllMask},
		{"one sparse tile", 64, 64, map[int]uint64{5: 0b101}, 0, tileModeDelta | pixModeAllID},
		{"mixed", 16, 16, map[int]uint64{0: dense, 1: 1}, 0, tileModeFullDump | pixModeRunLen},
		{"every other full", 64, 64, everyOther(64), 0, tileModeFullDump | pixModeSkip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tile.NewMask(tt.w, tt.h)
			for id := range m.Tiles() {
				if tt.all != 0 {
					m.SetTileMask(id, tt.all)
				}
			}
			for id, mask := range tt.masks {
				m.SetTileMask(id, mask)
			}
			if mode := roundTripTiles(t, m); mode != tt.want {
				t.Errorf("mode = %#02x, want %#02x", mode, tt.want)
			}
		})
	}
}

func everyOther(tiles int) map[int]uint64 {
	out := make(map[int]uint64)
	for id := 0; id < tiles; id += 2 {
		out[id] = tile.Full
	}
	return out
}

func TestTilesV2_LongRuns(t *testing.T) {
	// 130 dense tiles then one sparse: run length splits at 128.
	m := tile.NewMask(128, 128)
	for id := range 130 {
		m.SetTileMask(id, dense)
	}
	m.SetTileMask(130, 1)
	if mode := roundTripTiles(t, m); mode&pixModeMask != pixModeRunLen {
		t.Errorf("pixel mode = %#02x, want run length", mode&pixModeMask)
	}
}

func TestTilesV2_NeverLargerThanV1(t *testing.T) {
	for seed := range uint64(20) {
		e := randomEntry(TypeFloat1, 100, 60, seed+1, F32)
		active := collectTiles(e.Mask)
		var v1, v2 writer
		v1.putTilesV1(active)
		v2.putTilesV2(active, e.Mask.Tiles())
		if len(v2.buf) > len(v1.buf)+1 {
			t.Errorf("seed %d: v2 block %d bytes, v1 %d", seed, len(v2.buf), len(v1.buf))
		}
	}
}

// =============================================================================
// Precision
// =============================================================================

func TestUC8(t *testing.T) {
	tests := []struct {
		in   float32
		want byte
	}{
		{0, 0},
		{-1, 0},
		{float32(math.NaN()), 0},
		{0.5, 127},
		{1, 255},
		{7, 255},
		{float32(math.Inf(1)), 255},
	}
	for _, tt := range tests {
		if got := toUC8(tt.in); got != tt.want {
			t.Errorf("toUC8(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := fromUC8(255); got != 1 {
		t.Errorf("fromUC8(255) = %v, want 1", got)
	}
}

func TestH16_ErrorBound(t *testing.T) {
	for _, v := range []float32{0.25, 0.3, 1, 1.0 / 3, 17.77, 1000.5, -2.2} {
		var w writer
		w.putValue(v, H16)
		got := newReader(w.buf).value(H16)
		if d := float32(math.Abs(float64(got - v))); d > MaxError(H16, v) {
			t.Errorf("H16(%v) = %v, error %v > %v", v, got, d, MaxError(H16, v))
		}
	}
}

// =============================================================================
// Envelope
// =============================================================================

func TestEnvelope(t *testing.T) {
	data := encode(t, nil, randomEntry(TypeBeautyWithNumSample, 64, 64, 4, F32))
	packed := Compress(nil, data)
	if !IsCompressed(packed) {
		t.Fatal("IsCompressed = false for envelope")
	}
	if IsCompressed(data) {
		t.Fatal("IsCompressed = true for raw message")
	}
	got, err := Decompress(nil, packed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("envelope round trip changed the message")
	}
	if _, err := Decompress(nil, data); !errors.Is(err, ErrNotCompressed) {
		t.Errorf("Decompress raw = %v, want ErrNotCompressed", err)
	}
	if _, err := Decompress(nil, append(bytes.Clone(envelopeMagic), 1, 2, 3)); err == nil {
		t.Error("Decompress garbage succeeded")
	}
}

func TestAppendMask(t *testing.T) {
	for _, v := range []Version{Version1, Version2} {
		t.Run(fmt.Sprintf("v%d", v), func(t *testing.T) {
			m := randomEntry(TypeFloat1, 45, 30, 13, F32).Mask
			data := AppendMask([]byte{0xee}, m, v)
			got, n, err := ReadMask(append(data[1:], 0x01), v)
			if err != nil {
				t.Fatalf("ReadMask: %v", err)
			}
			if n != len(data)-1 {
				t.Errorf("consumed %d bytes, want %d", n, len(data)-1)
			}
			if !got.Equal(m) || got.Width() != 45 || got.Height() != 30 {
				t.Error("mask changed in round trip")
			}
			if _, _, err := ReadMask(data[1:len(data)-1], v); !errors.Is(err, ErrTruncated) {
				t.Errorf("short ReadMask = %v, want ErrTruncated", err)
			}
		})
	}
}

package pixel

import (
	"strings"
	"testing"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilesync/tile"
)

func TestFormat_Components(t *testing.T) {
	tests := []struct {
		f    Format
		want int
		name string
	}{
		{FormatUndef, 0, "Undef"},
		{FormatFloat1, 1, "Float1"},
		{FormatFloat2, 2, "Float2"},
		{FormatFloat3, 3, "Float3"},
		{FormatFloat4, 4, "Float4"},
		{FormatUint32, 1, "Uint32"},
		{FormatUint64, 1, "Uint64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Components(); got != tt.want {
				t.Errorf("Components() = %d, want %d", got, tt.want)
			}
			if got := tt.f.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
		})
	}
	if got := Format(42).String(); got != "Format(42)" {
		t.Errorf("String() = %q", got)
	}
	for n := 1; n <= 4; n++ {
		if FloatFormat(n).Components() != n {
			t.Errorf("FloatFormat(%d) = %v", n, FloatFormat(n))
		}
	}
}

func TestBuffer_SetupReuse(t *testing.T) {
	var b Buffer
	if !b.Setup(FormatFloat3, 128) {
		t.Fatal("first Setup() should allocate")
	}
	b.Float3()[5] = f32.Vec3{1, 2, 3}

	if b.Setup(FormatFloat3, 128) {
		t.Error("Setup() with same format and size should reuse")
	}
	if b.Float3()[5] != (f32.Vec3{1, 2, 3}) {
		t.Error("reused storage must keep data")
	}

	if !b.Setup(FormatFloat4, 128) {
		t.Error("Setup() with new format should reallocate")
	}
	if b.Float4()[5] != (f32.Vec4{}) {
		t.Error("reallocated storage must be zero")
	}
}

func TestBuffer_AccessorMismatchPanics(t *testing.T) {
	b := New(FormatFloat2, 64)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Float3() on Float2 buffer did not panic")
		}
		if msg, _ := r.(string); !strings.Contains(msg, "Float3 accessor on Float2 buffer") {
			t.Errorf("panic = %v", r)
		}
	}()
	_ = b.Float3()
}

func TestBuffer_TileViewSharesStorage(t *testing.T) {
	b := New(FormatFloat1, 4*tile.Pixels)
	v := b.Tile(2)
	if v.Len() != tile.Pixels {
		t.Fatalf("Tile().Len() = %d", v.Len())
	}
	v.Float1()[3] = 7
	if b.Float1()[2*64+3] != 7 {
		t.Error("tile view does not share storage")
	}
}

func TestBuffer_ClearTiles(t *testing.T) {
	b := New(FormatUint64, 16*tile.Pixels)
	for i := range b.Uint64() {
		b.Uint64()[i] = uint64(i + 1)
	}
	b.ClearTiles(tile.TableOf(16, 3, 7))

	for i, v := range b.Uint64() {
		tileIdx := i >> 6
		if tileIdx == 3 || tileIdx == 7 {
			if v != 0 {
				t.Fatalf("pixel %d = %d, want 0", i, v)
			}
			continue
		}
		if v != uint64(i+1) {
			t.Fatalf("pixel %d = %d, want %d", i, v, i+1)
		}
	}
}

func TestBuffer_Components(t *testing.T) {
	b := New(FormatFloat4, 64)
	b.SetComponent(9, 3, 0.5)
	if got := b.Float4()[9][3]; got != 0.5 {
		t.Errorf("SetComponent() wrote %v", got)
	}
	if got := b.Component(9, 3); got != 0.5 {
		t.Errorf("Component() = %v", got)
	}
	b.Fill(2)
	if b.Float4()[63] != (f32.Vec4{2, 2, 2, 2}) {
		t.Errorf("Fill() = %v", b.Float4()[63])
	}
}

func TestCopyTile(t *testing.T) {
	src := New(FormatFloat2, 2*tile.Pixels)
	dst := New(FormatFloat2, 2*tile.Pixels)
	src.Float2()[70] = f32.Vec2{1, 2}
	src.Float2()[5] = f32.Vec2{3, 4}

	CopyTile(&dst, &src, 1)
	if dst.Float2()[70] != (f32.Vec2{1, 2}) {
		t.Error("tile 1 not copied")
	}
	if dst.Float2()[5] != (f32.Vec2{}) {
		t.Error("tile 0 must be untouched")
	}
}

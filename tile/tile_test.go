package tile

import (
	"sync"
	"testing"
)

// =============================================================================
// Geometry Tests
// =============================================================================

func TestGeometry_Init(t *testing.T) {
	tests := []struct {
		name          string
		w, h          int
		alignedW      int
		alignedH      int
		tilesX, tiles int
	}{
		{"exact", 16, 16, 16, 16, 2, 4},
		{"padded", 17, 9, 24, 16, 3, 6},
		{"single pixel", 1, 1, 8, 8, 1, 1},
		{"empty", 0, 0, 0, 0, 0, 0},
		{"negative", -4, 10, 0, 16, 0, 0},
		{"wide", 1920, 1080, 1920, 1080, 240, 240 * 135},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGeometry(tt.w, tt.h)
			if g.AlignedWidth() != tt.alignedW || g.AlignedHeight() != tt.alignedH {
				t.Errorf("aligned = %dx%d, want %dx%d",
					g.AlignedWidth(), g.AlignedHeight(), tt.alignedW, tt.alignedH)
			}
			if g.TilesX() != tt.tilesX {
				t.Errorf("TilesX() = %d, want %d", g.TilesX(), tt.tilesX)
			}
			if g.Tiles() != tt.tiles {
				t.Errorf("Tiles() = %d, want %d", g.Tiles(), tt.tiles)
			}
			if g.PixelCount() != tt.tiles*Pixels {
				t.Errorf("PixelCount() = %d, want %d", g.PixelCount(), tt.tiles*Pixels)
			}
		})
	}
}

func TestGeometry_LinearToTiled(t *testing.T) {
	g := NewGeometry(20, 12) // 3x2 tiles

	tests := []struct {
		x, y int
		want int
	}{
		{0, 0, 0},
		{2, 1, 10},
		{7, 7, 63},
		{8, 0, 64},
		{19, 0, 2*64 + 3},
		{0, 8, 3 * 64},
		{19, 11, 5*64 + 3*8 + 3},
	}
	for _, tt := range tests {
		if got := g.LinearToTiled(tt.x, tt.y); got != tt.want {
			t.Errorf("LinearToTiled(%d, %d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestGeometry_RoundTrip(t *testing.T) {
	g := NewGeometry(21, 13)
	seen := make(map[int]bool)
	for y := range g.Height() {
		for x := range g.Width() {
			off := g.LinearToTiled(x, y)
			if seen[off] {
				t.Fatalf("offset %d produced twice", off)
			}
			seen[off] = true
			gx, gy, ok := g.TiledToLinear(off)
			if !ok || gx != x || gy != y {
				t.Fatalf("TiledToLinear(%d) = (%d, %d, %v), want (%d, %d, true)", off, gx, gy, ok, x, y)
			}
		}
	}
	// Every other offset must be padding.
	padding := 0
	for off := range g.PixelCount() {
		if _, _, ok := g.TiledToLinear(off); !ok {
			padding++
		}
	}
	if want := g.PixelCount() - g.Width()*g.Height(); padding != want {
		t.Errorf("padding offsets = %d, want %d", padding, want)
	}
	if _, _, ok := g.TiledToLinear(-1); ok {
		t.Error("TiledToLinear(-1) should fail")
	}
	if _, _, ok := g.TiledToLinear(g.PixelCount()); ok {
		t.Error("TiledToLinear(PixelCount) should fail")
	}
}

func TestGeometry_ValidMask(t *testing.T) {
	g := NewGeometry(10, 9) // 2x2 tiles, right column 2 wide, bottom row 1 high
	if got := g.ValidMask(0); got != Full {
		t.Errorf("ValidMask(0) = %#x, want Full", got)
	}
	if got, want := g.ValidMask(1), uint64(0x0303030303030303); got != want {
		t.Errorf("ValidMask(1) = %#x, want %#x", got, want)
	}
	if got, want := g.ValidMask(2), uint64(0xff); got != want {
		t.Errorf("ValidMask(2) = %#x, want %#x", got, want)
	}
	if got, want := g.ValidMask(3), uint64(0x03); got != want {
		t.Errorf("ValidMask(3) = %#x, want %#x", got, want)
	}
}

// =============================================================================
// Mask Tests
// =============================================================================

func TestMask_InitKeepsBitsWhenSizeUnchanged(t *testing.T) {
	m := NewMask(16, 16)
	m.SetTileMask(2, 0xf0)

	m.Init(16, 16)
	if m.TileMask(2) != 0xf0 {
		t.Error("Init with same size must keep bits")
	}

	m.Init(24, 16)
	if m.Tiles() != 6 {
		t.Fatalf("Tiles() = %d, want 6", m.Tiles())
	}
	if !m.IsEmpty() {
		t.Error("Init with new size must clear")
	}
}

func TestMask_Counts(t *testing.T) {
	m := NewMask(16, 16)
	m.SetTileMask(0, 0x1)
	m.SetTileMask(3, Full)
	m.OrTile(0, 0x100)

	if got := m.ActiveTiles(); got != 2 {
		t.Errorf("ActiveTiles() = %d, want 2", got)
	}
	if got := m.ActivePixels(); got != 66 {
		t.Errorf("ActivePixels() = %d, want 66", got)
	}
	if !m.IsActive(8) || m.IsActive(9) {
		t.Error("IsActive mismatch in tile 0")
	}
	if !m.IsActive(3*64 + 63) {
		t.Error("IsActive(255) = false, want true")
	}
}

func TestMask_Or(t *testing.T) {
	a := NewMask(16, 8)
	b := NewMask(16, 8)
	a.SetTileMask(0, 0b0101)
	b.SetTileMask(0, 0b1010)
	b.SetTileMask(1, 0x80)

	if err := a.Or(b); err != nil {
		t.Fatalf("Or() error = %v", err)
	}
	if a.TileMask(0) != 0b1111 || a.TileMask(1) != 0x80 {
		t.Errorf("Or() = %#x %#x", a.TileMask(0), a.TileMask(1))
	}

	c := NewMask(8, 8)
	if err := a.Or(c); err != ErrSizeMismatch {
		t.Errorf("Or() with other size error = %v, want ErrSizeMismatch", err)
	}
}

func TestMask_ResetTiles(t *testing.T) {
	m := NewMask(32, 32) // 16 tiles
	for i := range m.Tiles() {
		m.SetTileMask(i, uint64(i+1)*0x0101)
	}

	m.ResetTiles(TableOf(m.Tiles(), 3, 7))

	for i := range m.Tiles() {
		got := m.TileMask(i)
		switch i {
		case 3, 7:
			if got != 0 {
				t.Errorf("tile %d = %#x, want 0", i, got)
			}
		default:
			if want := uint64(i+1) * 0x0101; got != want {
				t.Errorf("tile %d = %#x, want %#x", i, got, want)
			}
		}
	}

	m.ResetTiles(nil)
	if !m.IsEmpty() {
		t.Error("ResetTiles(nil) must clear every tile")
	}
}

func TestMask_CloneEqual(t *testing.T) {
	m := NewMask(9, 9)
	m.SetTileMask(3, 0xdead)
	c := m.Clone()
	if !m.Equal(c) {
		t.Fatal("Clone() not Equal")
	}
	c.SetTileMask(3, 0)
	if m.Equal(c) {
		t.Error("Equal() after change = true")
	}
	if m.Equal(NewMask(10, 9)) {
		t.Error("Equal() across sizes = true")
	}
}

func TestMask_CrawlTilesEarlyExit(t *testing.T) {
	m := NewMask(32, 8)
	m.SetTileMask(1, 1)
	m.SetTileMask(2, 1)
	m.SetTileMask(3, 1)

	var visited []int
	m.CrawlTiles(func(tileIdx int, _ uint64) bool {
		visited = append(visited, tileIdx)
		return tileIdx < 2
	})
	if len(visited) != 2 || visited[0] != 1 || visited[1] != 2 {
		t.Errorf("visited = %v, want [1 2]", visited)
	}
}

// =============================================================================
// Crawl Tests
// =============================================================================

func TestCrawl_Order(t *testing.T) {
	tests := []struct {
		name string
		mask uint64
		want []int
	}{
		{"empty", 0, nil},
		{"first", 1, []int{0}},
		{"last", 1 << 63, []int{63}},
		{"pixel (2,1)", 1 << 10, []int{10}},
		{"scanline gaps", 1<<3 | 1<<17 | 1<<40, []int{3, 17, 40}},
		{"row 0", 0xff, []int{0, 1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			Crawl(tt.mask, func(pix int) { got = append(got, pix) })
			if len(got) != len(tt.want) {
				t.Fatalf("Crawl() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Crawl() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestCrawl_Full(t *testing.T) {
	n := 0
	prev := -1
	Crawl(Full, func(pix int) {
		if pix <= prev {
			t.Fatalf("pixel %d after %d", pix, prev)
		}
		prev = pix
		n++
	})
	if n != Pixels {
		t.Errorf("Crawl(Full) visited %d, want %d", n, Pixels)
	}
}

func TestMask_CrawlPixels(t *testing.T) {
	m := NewMask(16, 8)
	m.SetTileMask(0, 1<<5)
	m.SetTileMask(1, 1<<0|1<<63)
	var got []int
	m.CrawlPixels(func(off int) { got = append(got, off) })
	want := []int{5, 64, 127}
	if len(got) != len(want) {
		t.Fatalf("CrawlPixels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CrawlPixels() = %v, want %v", got, want)
		}
	}
}

// =============================================================================
// Table Tests
// =============================================================================

func TestTable_Basic(t *testing.T) {
	tb := NewTable(130)
	tb.Mark(0)
	tb.Mark(64)
	tb.Mark(129)
	tb.Mark(130) // ignored
	tb.Mark(-1)  // ignored

	if got := tb.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	ids := tb.IDs()
	want := []int{0, 64, 129}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
	if !tb.Has(64) || tb.Has(65) {
		t.Error("Has() mismatch")
	}

	tb.MarkAll()
	if got := tb.Count(); got != 130 {
		t.Errorf("Count() after MarkAll = %d, want 130", got)
	}
	tb.Clear()
	if got := tb.Count(); got != 0 {
		t.Errorf("Count() after Clear = %d, want 0", got)
	}
	if NewTable(-1) != nil {
		t.Error("NewTable(-1) should be nil")
	}
	if TableOf(-1, 0, 1) != nil {
		t.Error("TableOf(-1) should be nil")
	}
}

func TestTable_MarkMask(t *testing.T) {
	m := NewMask(24, 16)
	m.SetTileMask(1, 1)
	m.SetTileMask(4, 1<<9)
	tb := NewTable(m.Tiles())
	tb.MarkMask(m)
	if tb.Count() != 2 || !tb.Has(1) || !tb.Has(4) {
		t.Errorf("MarkMask() = %v, want [1 4]", tb.IDs())
	}
}

func TestTable_ConcurrentMark(t *testing.T) {
	const n = 4096
	tb := NewTable(n)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += 8 {
				tb.Mark(i)
			}
		}(w)
	}
	wg.Wait()

	if got := tb.Count(); got != n {
		t.Errorf("Count() = %d, want %d", got, n)
	}
}

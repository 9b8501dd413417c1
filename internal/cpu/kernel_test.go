package cpu

import (
	"testing"

	"github.com/gogpu/mandelbrot/internal/shader"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name   string
		cx, cy float32
		max    uint32
		want   uint32
	}{
		{"origin never escapes", 0, 0, 100, 100},
		{"far point escapes after one step", 2, 2, 100, 1},
		{"cardioid center", -0.65, 0, 1000, 1000},
		{"zero iterations", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape(tt.cx, tt.cy, tt.max); got != tt.want {
				t.Errorf("Escape(%v, %v, %d) = %d, want %d", tt.cx, tt.cy, tt.max, got, tt.want)
			}
		})
	}
}

func TestShade(t *testing.T) {
	tests := []struct {
		n, max uint32
		want   uint32
	}{
		{1000, 1000, 0xFF000000},
		{0, 1000, 0x00000000},
		{500, 1000, 0x7F8FEF87},
	}
	for _, tt := range tests {
		if got := Shade(tt.n, tt.max); got != tt.want {
			t.Errorf("Shade(%d, %d) = 0x%08X, want 0x%08X", tt.n, tt.max, got, tt.want)
		}
	}
}

func TestShadeBandReservesInterior(t *testing.T) {
	for _, limit := range []uint32{1, 2, 255, 256, 1000} {
		for n := range limit {
			if band := Shade(n, limit) >> 24; band == InteriorBand {
				t.Fatalf("Shade(%d, %d) escaped point has interior band", n, limit)
			}
		}
	}
}

func TestPixelUsesAbsoluteRow(t *testing.T) {
	whole := shader.Params{
		Width: 16, Height: 16, ImageHeight: 16,
		CenterX: -0.65, XRange: 3.4, YRange: 3.4, MaxIterations: 200,
	}
	band := whole
	band.Height = 4
	band.OriginRow = 8
	for y := range uint32(4) {
		for x := range uint32(16) {
			if a, b := Pixel(&whole, x, y+8), Pixel(&band, x, y); a != b {
				t.Fatalf("pixel (%d,%d): whole image 0x%08X, band 0x%08X", x, y+8, a, b)
			}
		}
	}
}

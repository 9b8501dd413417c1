package compute

import (
	"fmt"
)

// PixelBuffer is the host-side image: Width*Height packed 0xBBRRGGBB values,
// row-major. Rows are claimed by chunks; each row may be claimed once.
type PixelBuffer struct {
	Width, Height uint32
	Pix           []uint32

	written []bool
	pending int
}

// NewPixelBuffer allocates an unwritten w x h buffer.
func NewPixelBuffer(w, h uint32) *PixelBuffer {
	return &PixelBuffer{
		Width:   w,
		Height:  h,
		Pix:     make([]uint32, int(w)*int(h)),
		written: make([]bool, h),
		pending: int(h),
	}
}

// ClaimRows marks rows [origin, origin+n) as written and returns the slice
// backing them. It fails if any row is out of range or already claimed;
// on failure no row is marked.
func (b *PixelBuffer) ClaimRows(origin, n uint32) ([]uint32, error) {
	if n == 0 || uint64(origin)+uint64(n) > uint64(b.Height) {
		return nil, fmt.Errorf("compute: rows [%d, %d) outside image height %d", origin, uint64(origin)+uint64(n), b.Height)
	}
	for r := origin; r < origin+n; r++ {
		if b.written[r] {
			return nil, fmt.Errorf("%w: row %d", ErrRowOverlap, r)
		}
	}
	for r := origin; r < origin+n; r++ {
		b.written[r] = true
	}
	b.pending -= int(n)
	start := int(origin) * int(b.Width)
	return b.Pix[start : start+int(n)*int(b.Width)], nil
}

// Complete reports whether every row has been claimed.
func (b *PixelBuffer) Complete() error {
	if b.pending == 0 {
		return nil
	}
	for r, ok := range b.written {
		if !ok {
			return fmt.Errorf("%w: %d rows, first is %d", ErrIncomplete, b.pending, r)
		}
	}
	return nil
}

// At returns the packed value at (x, y).
func (b *PixelBuffer) At(x, y uint32) uint32 {
	return b.Pix[int(y)*int(b.Width)+int(x)]
}

// Row returns row y.
func (b *PixelBuffer) Row(y uint32) []uint32 {
	start := int(y) * int(b.Width)
	return b.Pix[start : start+int(b.Width)]
}

// Band extracts the iteration band (top byte) of a packed value.
func Band(v uint32) uint8 { return uint8(v >> 24) }

// RGB extracts the color channels of a packed value.
func RGB(v uint32) (r, g, b uint8) {
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

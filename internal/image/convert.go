// Package image turns packed compute output into standard library images
// and writes them to disk.
package image

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/gogpu/mandelbrot/internal/compute"
)

// ToNRGBA converts a packed 0xBBRRGGBB pixel buffer into an opaque NRGBA
// image. The band byte is not a color channel and is dropped.
func ToNRGBA(pb *compute.PixelBuffer) *image.NRGBA {
	w, h := int(pb.Width), int(pb.Height)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		row := pb.Row(uint32(y))
		dst := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x, v := range row {
			off := x * 4
			dst[off], dst[off+1], dst[off+2] = compute.RGB(v)
			dst[off+3] = 0xFF
		}
	}
	return img
}

// Downsample shrinks img by an integer factor with a Lanczos filter.
// A factor below 2 returns img unchanged.
func Downsample(img *image.NRGBA, factor int) *image.NRGBA {
	if factor < 2 {
		return img
	}
	b := img.Bounds()
	w := max(b.Dx()/factor, 1)
	h := max(b.Dy()/factor, 1)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

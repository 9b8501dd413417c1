// Package cpu is a host implementation of the Mandelbrot kernel. It runs
// the same contract as the GPU path, one invocation per pixel grouped into
// workgroups, in float32, and packs pixels the same way.
package cpu

import (
	"github.com/gogpu/mandelbrot/internal/shader"
)

// InteriorBand is the band byte of points that never escaped.
const InteriorBand = 0xFF

// Pixel evaluates invocation (x, y) of a chunk described by p.
func Pixel(p *shader.Params, x, y uint32) uint32 {
	row := p.OriginRow + y
	cx := p.CenterX + float32((float32(x)/float32(p.Width)-0.5)*p.XRange)
	cy := p.CenterY + float32((float32(row)/float32(p.ImageHeight)-0.5)*p.YRange)
	return Shade(Escape(cx, cy, p.MaxIterations), p.MaxIterations)
}

// Escape returns the number of iterations of z = z*z + c, starting at
// zero, before |z| exceeds 2, capped at maxIter.
func Escape(cx, cy float32, maxIter uint32) uint32 {
	var zx, zy float32
	var n uint32
	for n < maxIter {
		x2 := zx * zx
		y2 := zy * zy
		if x2+y2 > 4 {
			break
		}
		zy = float32(2*zx*zy) + cy
		zx = float32(x2-y2) + cx
		n++
	}
	return n
}

// Shade packs an escape count as 0xBBRRGGBB.
func Shade(n, maxIter uint32) uint32 {
	if n >= maxIter {
		return InteriorBand << 24
	}
	t := float32(n) / float32(maxIter)
	s := 1 - t
	r := uint32(clamp01(9*s*t*t*t) * 255)
	g := uint32(clamp01(15*s*s*t*t) * 255)
	b := uint32(clamp01(8.5*s*s*s*t) * 255)
	band := min(n*255/maxIter, 254)
	return band<<24 | r<<16 | g<<8 | b
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

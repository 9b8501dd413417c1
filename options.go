package mandelbrot

import (
	"fmt"
	"math"
	"time"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/shader"
)

// Option configures a Render call.
//
// Example:
//
//	res, err := mandelbrot.Render(ctx,
//	    mandelbrot.WithSize(800, 600),
//	    mandelbrot.WithIterations(500),
//	    mandelbrot.WithBackend(mandelbrot.BackendCPU),
//	)
type Option func(*options)

// ProgressFunc is called after each band of rows has been read back.
type ProgressFunc = compute.ProgressFunc

type options struct {
	cfg compute.Config

	backend     string
	software    bool
	noFallback  bool
	supersample int
	workers     int
	quality     int
	progress    ProgressFunc
}

// defaultOptions returns the classic full-set view at 1280x1280 on the
// best available backend.
func defaultOptions() options {
	return options{
		cfg:         compute.DefaultConfig(),
		backend:     BackendAuto,
		supersample: 1,
	}
}

// config returns the compute configuration at render resolution. A
// supersampled size that does not fit in 32 bits is ErrInvalidConfig.
func (o *options) config() (compute.Config, error) {
	cfg := o.cfg
	k := uint64(max(o.supersample, 1))
	if k == 1 {
		return cfg, nil
	}
	for _, d := range []struct {
		name string
		v    *uint32
	}{
		{"width", &cfg.Width},
		{"height", &cfg.Height},
		{"rows per chunk", &cfg.RowsPerChunk},
	} {
		scaled := uint64(*d.v) * k
		if scaled > math.MaxUint32 {
			return cfg, fmt.Errorf("%w: %s %d at supersample %d exceeds %d", ErrInvalidConfig, d.name, *d.v, k, uint32(math.MaxUint32))
		}
		*d.v = uint32(scaled)
	}
	return cfg, nil
}

// WithSize sets the output image size in pixels.
func WithSize(width, height uint32) Option {
	return func(o *options) {
		o.cfg.Width = width
		o.cfg.Height = height
	}
}

// WithCenter sets the point of the complex plane at the image center.
func WithCenter(x, y float32) Option {
	return func(o *options) {
		o.cfg.CenterX = x
		o.cfg.CenterY = y
	}
}

// WithRange sets the viewport width in the complex plane. The height
// follows the image aspect ratio unless WithYRange is also given.
func WithRange(xRange float32) Option {
	return func(o *options) {
		o.cfg.XRange = xRange
	}
}

// WithYRange sets the viewport height in the complex plane.
func WithYRange(yRange float32) Option {
	return func(o *options) {
		o.cfg.YRange = yRange
	}
}

// WithIterations sets the escape iteration limit.
func WithIterations(n uint32) Option {
	return func(o *options) {
		o.cfg.MaxIterations = n
	}
}

// WithRowsPerChunk fixes the band height in output rows.
func WithRowsPerChunk(rows uint32) Option {
	return func(o *options) {
		o.cfg.RowsPerChunk = rows
	}
}

// WithMaxStagingBytes caps the bytes read back per band. The band height
// is derived from it when WithRowsPerChunk is not given.
func WithMaxStagingBytes(n uint64) Option {
	return func(o *options) {
		o.cfg.MaxStagingBytes = n
	}
}

// WithWorkgroup sets the kernel workgroup size.
func WithWorkgroup(x, y uint32) Option {
	return func(o *options) {
		o.cfg.Workgroup = shader.Workgroup{X: x, Y: y}
	}
}

// WithMapTimeout bounds the wait for one band's readback.
func WithMapTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.MapTimeout = d
	}
}

// WithBackend selects a backend by name: BackendAuto, BackendGPU or
// BackendCPU.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithSoftwareAdapter asks the GPU backend for a fallback (software)
// adapter.
func WithSoftwareAdapter() Option {
	return func(o *options) {
		o.software = true
	}
}

// WithoutFallback makes BackendAuto fail instead of switching to the CPU
// when no device is available.
func WithoutFallback() Option {
	return func(o *options) {
		o.noFallback = true
	}
}

// WithSupersample renders at k times the output size and reduces the image
// with a Lanczos filter. Values below 2 disable supersampling.
func WithSupersample(k int) Option {
	return func(o *options) {
		o.supersample = max(k, 1)
	}
}

// WithWorkers sets the CPU backend worker count. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithJPEGQuality sets the quality used by Result.Save for JPEG output.
func WithJPEGQuality(q int) Option {
	return func(o *options) {
		o.quality = q
	}
}

// WithProgress reports each band read back.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

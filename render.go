package mandelbrot

import (
	"context"
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/mandelbrot/internal/compute"
	mimage "github.com/gogpu/mandelbrot/internal/image"
)

// Stats summarizes a finished render.
type Stats = compute.Stats

// Result is a finished render.
type Result struct {
	// Pixels holds packed 0xBBRRGGBB values at render resolution, which is
	// the output size times Supersample. BB is the iteration band: 0xFF for
	// points that never escaped.
	Pixels *compute.PixelBuffer

	// Supersample is the factor Image reduces Pixels by.
	Supersample int

	// Adapter describes the device the render ran on.
	Adapter gpucontext.AdapterInfo

	Stats Stats

	quality int
}

// Image returns the render as an opaque NRGBA image at output size.
func (r *Result) Image() *image.NRGBA {
	return mimage.Downsample(mimage.ToNRGBA(r.Pixels), r.Supersample)
}

// Save writes the image to path. The format follows the extension: .png,
// .jpg/.jpeg, .bmp or .tif/.tiff.
func (r *Result) Save(path string) error {
	return mimage.Save(path, r.Image(), mimage.EncodeOptions{Quality: r.quality})
}

// Render computes one image. It blocks until every band has been read back
// or the first failure; a failed render returns no pixels. Canceling ctx
// stops the render before the next band is submitted.
func Render(ctx context.Context, opts ...Option) (*Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := openBackend(&o)
	if err != nil {
		return nil, fmt.Errorf("mandelbrot: open backend: %w", err)
	}
	defer s.close()

	var orchOpts []compute.OrchestratorOption
	if o.progress != nil {
		orchOpts = append(orchOpts, compute.WithProgress(o.progress))
	}
	pixels, stats, err := compute.NewOrchestrator(s.exec, orchOpts...).Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mandelbrot: render: %w", err)
	}

	Logger().Info("mandelbrot: render complete",
		"backend", stats.Executor,
		"adapter", s.adapter.Name,
		"width", cfg.Width,
		"height", cfg.Height,
		"chunks", stats.Chunks,
		"rows_per_chunk", stats.RowsPerChunk,
		"elapsed", stats.Elapsed,
	)

	return &Result{
		Pixels:      pixels,
		Supersample: max(o.supersample, 1),
		Adapter:     s.adapter,
		Stats:       stats,
		quality:     o.quality,
	}, nil
}

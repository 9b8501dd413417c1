// Command mandelbrot renders the Mandelbrot set on the GPU and writes it
// to an image file.
//
// Usage:
//
//	mandelbrot [flags]
//
// The output format follows the -o extension: .png, .jpg, .bmp or .tiff.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"time"

	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/mandelbrot"
	"github.com/gogpu/mandelbrot/internal/compute"
)

func main() {
	var (
		width       = flag.Uint("width", 1280, "image width in pixels")
		height      = flag.Uint("height", 1280, "image height in pixels")
		centerX     = flag.Float64("center-x", -0.65, "real part of the image center")
		centerY     = flag.Float64("center-y", 0, "imaginary part of the image center")
		xRange      = flag.Float64("range", 3.4, "viewport width in the complex plane")
		iterations  = flag.Uint("iterations", compute.DefaultMaxIterations, "escape iteration limit")
		rows        = flag.Uint("rows-per-chunk", 0, "band height in rows (0 derives it from -max-staging)")
		maxStaging  = flag.Uint64("max-staging", compute.DefaultMaxStagingBytes, "bytes read back per band")
		workgroup   = flag.Uint("workgroup", 8, "workgroup width and height")
		backend     = flag.String("backend", mandelbrot.BackendAuto, "backend: auto, gpu or cpu")
		software    = flag.Bool("software", false, "use the software GPU adapter")
		supersample = flag.Int("supersample", 1, "render at this multiple of the size and downscale")
		timeout     = flag.Duration("timeout", compute.DefaultMapTimeout, "per-band readback timeout")
		output      = flag.String("o", "mandelbrot.png", "output file")
		verbose     = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	mandelbrot.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var w, h, iters, rowsPerChunk, wg uint32
	for _, f := range []struct {
		name string
		v    uint
		dst  *uint32
	}{
		{"width", *width, &w},
		{"height", *height, &h},
		{"iterations", *iterations, &iters},
		{"rows-per-chunk", *rows, &rowsPerChunk},
		{"workgroup", *workgroup, &wg},
	} {
		v, err := flagUint32(f.name, f.v)
		if err != nil {
			log.Fatal(err)
		}
		*f.dst = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []mandelbrot.Option{
		mandelbrot.WithSize(w, h),
		mandelbrot.WithCenter(float32(*centerX), float32(*centerY)),
		mandelbrot.WithRange(float32(*xRange)),
		mandelbrot.WithIterations(iters),
		mandelbrot.WithRowsPerChunk(rowsPerChunk),
		mandelbrot.WithMaxStagingBytes(*maxStaging),
		mandelbrot.WithWorkgroup(wg, wg),
		mandelbrot.WithBackend(*backend),
		mandelbrot.WithSupersample(*supersample),
		mandelbrot.WithMapTimeout(*timeout),
	}
	if *software {
		opts = append(opts, mandelbrot.WithSoftwareAdapter())
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts = append(opts, mandelbrot.WithProgress(progressLine(os.Stderr)))
	}

	start := time.Now()
	res, err := mandelbrot.Render(ctx, opts...)
	if err != nil {
		log.Fatalf("render failed: %v", err)
	}
	if err := res.Save(*output); err != nil {
		log.Fatalf("failed to save: %v", err)
	}

	p := message.NewPrinter(language.English)
	p.Fprintf(os.Stderr, "%s: %dx%d, %d iterations, %d bands on %s (%s) in %v\n",
		*output,
		*width, *height,
		*iterations,
		res.Stats.Chunks,
		res.Adapter.Name, res.Stats.Executor,
		time.Since(start).Round(time.Millisecond),
	)
}

// flagUint32 narrows a flag value, rejecting values that do not fit.
func flagUint32(name string, v uint) (uint32, error) {
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: -%s %d exceeds %d", mandelbrot.ErrInvalidConfig, name, v, uint32(math.MaxUint32))
	}
	return uint32(v), nil
}

// progressLine redraws one status line per band.
func progressLine(w io.Writer) mandelbrot.ProgressFunc {
	return func(done, total int) {
		fmt.Fprintf(w, "\rrendering: %d/%d bands", done, total)
		if done == total {
			fmt.Fprintln(w)
		}
	}
}

package cpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"honnef.co/go/safeish"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/parallel"
	"github.com/gogpu/mandelbrot/internal/shader"
)

// Option configures an Executor.
type Option func(*options)

type options struct {
	workers int
	limits  gputypes.Limits
	onStep  func(chunk int, from, to compute.ReadbackState)
}

// WithWorkers sets the worker count. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithLimits replaces the emulated device limits.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithReadbackObserver reports every readback state transition.
func WithReadbackObserver(fn func(chunk int, from, to compute.ReadbackState)) Option {
	return func(o *options) {
		o.onStep = fn
	}
}

// Executor emulates the device path on the host: a parameter buffer, a
// result buffer written by workgroups and a staging buffer copied from it,
// read back through the same state machine. Workgroups of one dispatch run
// in parallel; chunks never overlap.
type Executor struct {
	opts options

	layout  compute.Layout
	pool    *parallel.WorkerPool
	params  []byte
	result  []uint32
	staging []uint32
	tracker *compute.ReadbackTracker

	inFlight uint64
}

var _ compute.Executor = (*Executor)(nil)

// NewExecutor returns a host executor. Its limits default to those of a
// WebGPU device.
func NewExecutor(opts ...Option) *Executor {
	o := options{limits: gputypes.DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor{opts: o}
}

// Name implements compute.Executor.
func (e *Executor) Name() string { return "cpu" }

// Prepare checks the layout against the emulated limits and allocates the
// buffers.
func (e *Executor) Prepare(l compute.Layout) error {
	storageLimit := min(e.opts.limits.MaxStorageBufferBindingSize, e.opts.limits.MaxBufferSize)
	if l.MaxStagingBytes > 0 {
		storageLimit = min(storageLimit, l.MaxStagingBytes)
	}
	if l.ChunkBytes == 0 || l.ChunkBytes > storageLimit {
		return &compute.AllocationError{Label: "cpu pixels", Size: l.ChunkBytes, Limit: storageLimit}
	}
	if m := e.opts.limits.MaxComputeWorkgroupsPerDimension; l.MaxGrid.X > m || l.MaxGrid.Y > m {
		return &compute.PipelineCompatibilityError{
			Slot:   -1,
			Reason: fmt.Sprintf("dispatch grid %s exceeds %d workgroups per dimension", l.MaxGrid, m),
		}
	}
	if _, err := shader.Mandelbrot(l.Workgroup); err != nil {
		return &compute.ShaderLinkError{EntryPoint: shader.EntryPoint, Reason: "workgroup", Err: err}
	}

	e.layout = l
	e.params = make([]byte, shader.ParamsSize)
	e.result = make([]uint32, l.ChunkBytes/shader.ElementSize)
	e.staging = make([]uint32, l.ChunkBytes/shader.ElementSize)
	e.tracker = compute.NewReadbackTracker(e.opts.onStep)
	e.pool = parallel.NewWorkerPool(e.opts.workers)
	return nil
}

// WriteParams overwrites the parameter buffer.
func (e *Executor) WriteParams(p shader.Params) error {
	if e.params == nil {
		return compute.ErrNotPrepared
	}
	copy(e.params, p.Bytes())
	return nil
}

// Submit runs every workgroup of grid against the current parameters, then
// copies copyBytes of the result into staging.
func (e *Executor) Submit(chunk int, grid compute.Grid, copyBytes uint64) error {
	if e.pool == nil {
		return compute.ErrNotPrepared
	}
	if s := e.tracker.State(); s != compute.ReadbackUnmapped {
		return fmt.Errorf("%w: chunk %d submitted while staging is %s", compute.ErrInvalidTransition, chunk, s)
	}
	if copyBytes == 0 || copyBytes > e.layout.ChunkBytes {
		return fmt.Errorf("cpu: chunk %d copies %d bytes from a %d byte buffer", chunk, copyBytes, e.layout.ChunkBytes)
	}

	p := *shader.ParamsFromBytes(e.params)
	if uint64(p.Width)*uint64(p.Height)*shader.ElementSize > e.layout.ChunkBytes {
		return fmt.Errorf("cpu: chunk %d of %dx%d overflows the result buffer", chunk, p.Width, p.Height)
	}
	wg := e.layout.Workgroup
	e.pool.DispatchGrid(grid.X, grid.Y, func(gx, gy uint32) {
		for ly := range wg.Y {
			y := gy*wg.Y + ly
			if y >= p.Height {
				return
			}
			row := e.result[y*p.Width : (y+1)*p.Width]
			for lx := range wg.X {
				x := gx*wg.X + lx
				if x >= p.Width {
					break
				}
				row[x] = Pixel(&p, x, y)
			}
		}
	})

	n := copyBytes / shader.ElementSize
	copy(e.staging[:n], e.result[:n])
	e.inFlight = copyBytes
	return e.tracker.Submit(chunk)
}

// Readback copies the staged chunk into dst through the readback states.
func (e *Executor) Readback(ctx context.Context, dst []uint32) error {
	if e.tracker == nil {
		return compute.ErrNotPrepared
	}
	if err := e.tracker.Advance(compute.ReadbackMapRequested); err != nil {
		return e.tracker.Fail(err)
	}
	if err := ctx.Err(); err != nil {
		return e.abort(err)
	}
	if uint64(len(dst))*shader.ElementSize != e.inFlight {
		return e.abort(fmt.Errorf("cpu: destination holds %d bytes, chunk has %d", len(dst)*shader.ElementSize, e.inFlight))
	}
	if err := e.tracker.Advance(compute.ReadbackMapReady); err != nil {
		return e.abort(err)
	}

	mapped := safeish.SliceCast[[]byte](e.staging)[:e.inFlight]
	copy(dst, safeish.SliceCast[[]uint32](mapped))
	if err := e.tracker.Advance(compute.ReadbackDrained); err != nil {
		return e.abort(err)
	}
	return e.tracker.Advance(compute.ReadbackUnmapped)
}

func (e *Executor) abort(err error) error {
	failure := e.tracker.Fail(err)
	if aerr := e.tracker.Advance(compute.ReadbackUnmapped); aerr != nil {
		compute.Logger().Warn("cpu: readback left in state", "chunk", failure.Chunk, "state", e.tracker.State())
	}
	return failure
}

// Release stops the workers and drops the buffers.
func (e *Executor) Release() {
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
	e.params = nil
	e.result = nil
	e.staging = nil
}

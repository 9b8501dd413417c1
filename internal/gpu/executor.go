//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/shader"
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	mapTimeout time.Duration
	onStep     func(chunk int, from, to compute.ReadbackState)
}

// WithMapTimeout bounds each staging buffer map. Zero waits for the
// caller's context only.
func WithMapTimeout(d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		o.mapTimeout = d
	}
}

// WithReadbackObserver reports every readback state transition.
func WithReadbackObserver(fn func(chunk int, from, to compute.ReadbackState)) ExecutorOption {
	return func(o *executorOptions) {
		o.onStep = fn
	}
}

// Executor runs the Mandelbrot kernel on a device, one chunk at a time.
// The buffers are sized once for the tallest chunk; shorter chunks copy and
// map only the rows they produce.
type Executor struct {
	cc   *ComputeContext
	opts executorOptions

	params  *wgpu.Buffer
	result  *wgpu.Buffer
	staging *wgpu.Buffer

	layout   *BindingLayout
	group    *wgpu.BindGroup
	pipeline *Pipeline

	tracker  *compute.ReadbackTracker
	readback *stagingReadback
	inFlight uint64
}

var _ compute.Executor = (*Executor)(nil)

// NewExecutor returns an executor on cc. The executor does not close cc.
func NewExecutor(cc *ComputeContext, opts ...ExecutorOption) *Executor {
	o := executorOptions{mapTimeout: compute.DefaultMapTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor{cc: cc, opts: o}
}

// Name implements compute.Executor.
func (e *Executor) Name() string { return "gpu" }

// Prepare allocates the parameter, result and staging buffers, binds them
// and assembles the pipeline. Size limits are checked before the device is
// asked for anything.
func (e *Executor) Prepare(l compute.Layout) error {
	limits := e.cc.Limits()
	if err := checkGridLimits(l.MaxGrid, limits); err != nil {
		return err
	}

	dev := e.cc.Device()
	rb := NewResourceBuilder(dev, limits, l.MaxStagingBytes)
	for _, c := range []struct {
		label string
		size  uint64
		limit uint64
	}{
		{"mandelbrot params", shader.ParamsSize, rb.UniformLimit()},
		{"mandelbrot pixels", l.ChunkBytes, rb.StorageLimit(false)},
		{"mandelbrot staging", l.ChunkBytes, rb.StorageLimit(true)},
	} {
		if c.size > c.limit {
			return &compute.AllocationError{Label: c.label, Size: c.size, Limit: c.limit}
		}
	}

	var err error
	if e.params, err = rb.CreateUniformBuffer("mandelbrot params", shader.ParamsSize); err != nil {
		return err
	}
	if e.result, err = rb.CreateStorageBuffer("mandelbrot pixels", l.ChunkBytes, false); err != nil {
		return err
	}
	if e.staging, err = rb.CreateStorageBuffer("mandelbrot staging", l.ChunkBytes, true); err != nil {
		return err
	}

	contract, err := shader.Mandelbrot(l.Workgroup)
	if err != nil {
		return err
	}
	if e.layout, err = rb.BuildBindingLayout("mandelbrot bindings", contract.Slots); err != nil {
		return err
	}
	e.group, err = rb.BindResources(e.layout, []Binding{
		{Slot: shader.SlotParams, Buffer: e.params, Size: shader.ParamsSize},
		{Slot: shader.SlotPixels, Buffer: e.result, Size: l.ChunkBytes},
	})
	if err != nil {
		return err
	}

	spirv := usesSPIRV(e.cc.Info().Backend)
	asm := NewPipelineAssembler(dev, limits, spirv)
	if e.pipeline, err = asm.Assemble(contract, []*BindingLayout{e.layout}); err != nil {
		return err
	}

	e.tracker = compute.NewReadbackTracker(e.observe)
	e.readback = &stagingReadback{
		dev:     dev,
		staging: e.staging,
		tracker: e.tracker,
		timeout: e.opts.mapTimeout,
	}
	slogger().Debug("gpu: executor prepared",
		"chunk_bytes", l.ChunkBytes,
		"rows_per_chunk", l.RowsPerChunk,
		"workgroup", l.Workgroup.String(),
	)
	return nil
}

// usesSPIRV reports whether a backend consumes naga's SPIR-V directly.
// Other backends translate WGSL themselves.
func usesSPIRV(b gputypes.Backend) bool {
	return b == gputypes.BackendVulkan || b == gputypes.BackendEmpty
}

func (e *Executor) observe(chunk int, from, to compute.ReadbackState) {
	slogger().Debug("gpu: readback", "chunk", chunk, "from", from.String(), "to", to.String())
	if e.opts.onStep != nil {
		e.opts.onStep(chunk, from, to)
	}
}

// WriteParams overwrites the whole parameter buffer.
func (e *Executor) WriteParams(p shader.Params) error {
	if e.pipeline == nil {
		return compute.ErrNotPrepared
	}
	if err := e.cc.Queue().WriteBuffer(e.params, 0, p.Bytes()); err != nil {
		return fmt.Errorf("gpu: write params: %w", err)
	}
	return nil
}

// Submit records the dispatch and the copy of copyBytes result bytes into
// staging, and submits both as one command buffer.
func (e *Executor) Submit(chunk int, grid compute.Grid, copyBytes uint64) error {
	if e.pipeline == nil {
		return compute.ErrNotPrepared
	}
	if s := e.tracker.State(); s != compute.ReadbackUnmapped {
		return fmt.Errorf("%w: chunk %d submitted while staging is %s", compute.ErrInvalidTransition, chunk, s)
	}
	if err := checkGridLimits(grid, e.cc.Limits()); err != nil {
		return err
	}
	if copyBytes == 0 || copyBytes > e.staging.Size() {
		return fmt.Errorf("gpu: chunk %d copies %d bytes into a %d byte staging buffer", chunk, copyBytes, e.staging.Size())
	}

	dev := e.cc.Device()
	encoder, err := dev.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{
		Label: fmt.Sprintf("mandelbrot chunk %d", chunk),
	})
	if err != nil {
		return fmt.Errorf("gpu: create encoder: %w", err)
	}
	pass, err := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: "mandelbrot"})
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("gpu: begin compute pass: %w", err)
	}
	pass.SetPipeline(e.pipeline.Handle())
	pass.SetBindGroup(0, e.group, nil)
	pass.Dispatch(grid.X, grid.Y, grid.Z)
	if err := pass.End(); err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("gpu: end compute pass: %w", err)
	}
	encoder.CopyBufferToBuffer(e.result, 0, e.staging, 0, copyBytes)
	cmd, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("gpu: finish encoder: %w", err)
	}
	if _, err := e.cc.Queue().Submit(cmd); err != nil {
		dev.FreeCommandBuffer(cmd)
		return fmt.Errorf("gpu: submit: %w", err)
	}

	e.inFlight = copyBytes
	return e.tracker.Submit(chunk)
}

// Readback waits for the submitted chunk and copies its rows into dst.
func (e *Executor) Readback(ctx context.Context, dst []uint32) error {
	if e.readback == nil {
		return compute.ErrNotPrepared
	}
	if e.tracker.State() != compute.ReadbackSubmitted {
		return e.tracker.Fail(fmt.Errorf("%w: readback with staging %s", compute.ErrInvalidTransition, e.tracker.State()))
	}
	return e.readback.read(ctx, e.inFlight, dst)
}

// Release frees everything Prepare built, in reverse order.
func (e *Executor) Release() {
	if e.pipeline != nil {
		e.pipeline.Release()
		e.pipeline = nil
	}
	if e.group != nil {
		e.group.Release()
		e.group = nil
	}
	if e.layout != nil {
		e.layout.Release()
		e.layout = nil
	}
	for _, b := range []**wgpu.Buffer{&e.staging, &e.result, &e.params} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	e.readback = nil
}

//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/wgpu"
	"honnef.co/go/safeish"

	"github.com/gogpu/mandelbrot/internal/compute"
)

// poller drives device-side completion of pending maps.
type poller interface {
	Poll(pollType wgpu.PollType) bool
}

// stagingReadback moves one submitted chunk out of a host-readable staging
// buffer. It owns every tracker transition after Submitted; the only work
// done off the calling goroutine is the blocking device poll.
type stagingReadback struct {
	dev     poller
	staging *wgpu.Buffer
	tracker *compute.ReadbackTracker
	timeout time.Duration
}

// read maps the first size bytes of the staging buffer, copies them into
// dst and unmaps. Every failure is a *compute.ReadbackFailure and leaves
// the staging buffer unmapped when the device allows it.
func (r *stagingReadback) read(ctx context.Context, size uint64, dst []uint32) error {
	if uint64(len(dst))*4 != size {
		return r.refuse(fmt.Errorf("gpu: destination holds %d bytes, chunk has %d", len(dst)*4, size))
	}

	pending, err := r.staging.MapAsync(wgpu.MapModeRead, 0, size)
	if err != nil {
		return r.refuse(fmt.Errorf("gpu: map request: %w", err))
	}
	defer pending.Release()
	if err := r.tracker.Advance(compute.ReadbackMapRequested); err != nil {
		return r.abort(err)
	}

	if err := r.wait(ctx, pending); err != nil {
		return r.abort(err)
	}
	if err := r.tracker.Advance(compute.ReadbackMapReady); err != nil {
		return r.abort(err)
	}

	rng, err := r.staging.MappedRange(0, size)
	if err != nil {
		return r.abort(fmt.Errorf("gpu: mapped range: %w", err))
	}
	copy(dst, safeish.SliceCast[[]uint32](rng.Bytes()))
	rng.Release()
	if err := r.tracker.Advance(compute.ReadbackDrained); err != nil {
		return r.abort(err)
	}

	if err := r.staging.Unmap(); err != nil {
		return r.tracker.Fail(fmt.Errorf("gpu: unmap: %w", err))
	}
	return r.tracker.Advance(compute.ReadbackUnmapped)
}

// wait resolves pending, first with a non-blocking poll and then with a
// blocking poll raced against the map timeout.
func (r *stagingReadback) wait(ctx context.Context, pending *wgpu.MapPending) error {
	r.dev.Poll(wgpu.PollPoll)
	if ready, err := pending.Status(); ready {
		if err != nil {
			return fmt.Errorf("gpu: map: %w", err)
		}
		return nil
	}

	wctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	go r.dev.Poll(wgpu.PollWait)

	start := time.Now()
	if err := pending.Wait(wctx); err != nil {
		return fmt.Errorf("gpu: map wait after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	slogger().Debug("gpu: map ready", "chunk", r.tracker.Chunk(), "waited", time.Since(start))
	return nil
}

// refuse records err for a chunk whose map was never requested. The
// staging buffer is still unmapped, so the tracker returns to Unmapped.
func (r *stagingReadback) refuse(err error) error {
	failure := r.tracker.Fail(err)
	if aerr := r.tracker.Advance(compute.ReadbackUnmapped); aerr != nil {
		slogger().Warn("gpu: readback left in state", "chunk", failure.Chunk, "state", r.tracker.State())
	}
	return failure
}

// abort records err against the current state, then cancels or releases
// the mapping so the staging buffer returns to Unmapped.
func (r *stagingReadback) abort(err error) error {
	failure := r.tracker.Fail(err)
	if uerr := r.staging.Unmap(); uerr != nil {
		slogger().Warn("gpu: unmap after failed readback", "chunk", failure.Chunk, "err", uerr)
	}
	if aerr := r.tracker.Advance(compute.ReadbackUnmapped); aerr != nil {
		slogger().Warn("gpu: readback left in state", "chunk", failure.Chunk, "state", r.tracker.State())
	}
	return failure
}

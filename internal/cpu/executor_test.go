package cpu

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/mandelbrot/internal/compute"
)

func render(t *testing.T, cfg compute.Config, opts ...Option) (*compute.PixelBuffer, error) {
	t.Helper()
	pb, _, err := compute.NewOrchestrator(NewExecutor(opts...)).Run(context.Background(), cfg)
	return pb, err
}

func smallConfig(w, h uint32) compute.Config {
	cfg := compute.DefaultConfig()
	cfg.Width, cfg.Height = w, h
	return cfg
}

func TestCenterDiffersFromCorners(t *testing.T) {
	pb, err := render(t, smallConfig(32, 32))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	center := compute.Band(pb.At(16, 16))
	if center != InteriorBand {
		t.Errorf("center band = 0x%02X, want interior", center)
	}
	for _, c := range [][2]uint32{{0, 0}, {31, 0}, {0, 31}, {31, 31}} {
		if b := compute.Band(pb.At(c[0], c[1])); b == center {
			t.Errorf("corner %v band 0x%02X equals center", c, b)
		}
	}
}

func TestChunkingDoesNotChangePixels(t *testing.T) {
	whole := smallConfig(48, 40)
	whole.MaxIterations = 300
	chunked := whole
	chunked.RowsPerChunk = 7

	a, err := render(t, whole)
	if err != nil {
		t.Fatal(err)
	}
	b, err := render(t, chunked, WithWorkers(3))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Pix, b.Pix) {
		t.Error("chunked render differs from single-chunk render")
	}
}

func TestRenderIdempotent(t *testing.T) {
	cfg := smallConfig(40, 24)
	cfg.RowsPerChunk = 5
	a, err := render(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := render(t, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Pix, b.Pix) {
		t.Error("re-render produced different pixels")
	}
}

func TestSingleRowImage(t *testing.T) {
	pb, err := render(t, smallConfig(17, 1))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(pb.Pix) != 17 {
		t.Errorf("len(Pix) = %d, want 17", len(pb.Pix))
	}
}

func TestChunksAscendWithFullReadbackCycle(t *testing.T) {
	cfg := smallConfig(1280, 1280)
	cfg.RowsPerChunk = 64
	cfg.MaxIterations = 16

	var submitted []int
	var last compute.ReadbackState = compute.ReadbackUnmapped
	steps := 0
	observe := func(chunk int, from, to compute.ReadbackState) {
		if from != last {
			t.Errorf("chunk %d: transition from %s, previous state was %s", chunk, from, last)
		}
		last = to
		steps++
		if to == compute.ReadbackSubmitted {
			submitted = append(submitted, chunk)
		}
	}
	if _, err := render(t, cfg, WithReadbackObserver(observe)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(submitted) != 20 {
		t.Fatalf("submitted %d chunks, want 20", len(submitted))
	}
	for i, c := range submitted {
		if c != i {
			t.Fatalf("submission %d was chunk %d", i, c)
		}
	}
	if steps != 20*5 || last != compute.ReadbackUnmapped {
		t.Errorf("steps = %d, final state %s", steps, last)
	}
}

func TestOversizedBufferFailsBeforeSubmit(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxStorageBufferBindingSize = 1 << 10

	submitted := 0
	observe := func(_ int, _, to compute.ReadbackState) {
		if to == compute.ReadbackSubmitted {
			submitted++
		}
	}
	_, err := render(t, smallConfig(64, 64), WithLimits(limits), WithReadbackObserver(observe))
	var ae *compute.AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AllocationError", err)
	}
	if ae.Limit != 1<<10 || ae.Size != 64*64*4 {
		t.Errorf("AllocationError = %+v", ae)
	}
	if submitted != 0 {
		t.Errorf("%d chunks submitted before the allocation failure", submitted)
	}
}

func TestGridOverLimit(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxComputeWorkgroupsPerDimension = 2
	_, err := render(t, smallConfig(64, 8), WithLimits(limits))
	var pe *compute.PipelineCompatibilityError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PipelineCompatibilityError", err)
	}
}

func TestExecutorNotPrepared(t *testing.T) {
	e := NewExecutor()
	if err := e.Submit(0, compute.Grid{X: 1, Y: 1, Z: 1}, 4); !errors.Is(err, compute.ErrNotPrepared) {
		t.Errorf("Submit = %v, want ErrNotPrepared", err)
	}
	if err := e.Readback(context.Background(), make([]uint32, 1)); !errors.Is(err, compute.ErrNotPrepared) {
		t.Errorf("Readback = %v, want ErrNotPrepared", err)
	}
	e.Release()
}

func TestAbortLogsStuckTracker(t *testing.T) {
	var buf bytes.Buffer
	compute.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { compute.SetLogger(nil) })

	e := NewExecutor()
	// An idle tracker has nothing to release, so the return to Unmapped fails.
	e.tracker = compute.NewReadbackTracker(nil)
	cause := errors.New("copy failed")
	err := e.abort(cause)

	var rf *compute.ReadbackFailure
	if !errors.As(err, &rf) || rf.State != compute.ReadbackUnmapped || !errors.Is(err, cause) {
		t.Fatalf("abort = %v, want *ReadbackFailure in Unmapped wrapping cause", err)
	}
	if out := buf.String(); !strings.Contains(out, "cpu: readback left in state") {
		t.Errorf("log output = %q, want a readback warning", out)
	}
}

func TestAbortReleasesDrainedChunk(t *testing.T) {
	var buf bytes.Buffer
	compute.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { compute.SetLogger(nil) })

	e := NewExecutor()
	e.tracker = compute.NewReadbackTracker(nil)
	_ = e.tracker.Submit(0)
	for _, s := range []compute.ReadbackState{compute.ReadbackMapRequested, compute.ReadbackMapReady, compute.ReadbackDrained} {
		if err := e.tracker.Advance(s); err != nil {
			t.Fatal(err)
		}
	}

	var rf *compute.ReadbackFailure
	if err := e.abort(errors.New("late failure")); !errors.As(err, &rf) || rf.State != compute.ReadbackDrained {
		t.Fatalf("abort = %v, want *ReadbackFailure in Drained", err)
	}
	if s := e.tracker.State(); s != compute.ReadbackUnmapped {
		t.Errorf("tracker state = %s, want Unmapped", s)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected warning: %q", buf.String())
	}
}

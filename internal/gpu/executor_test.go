//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/cpu"
)

func acquireOrSkip(t *testing.T) *ComputeContext {
	t.Helper()
	cc, err := Acquire()
	if err != nil {
		cc, err = Acquire(WithSoftwareAdapter())
	}
	if err != nil {
		t.Skipf("GPU not available: %v", err)
	}
	t.Cleanup(cc.Close)
	return cc
}

func runOrSkip(t *testing.T, cc *ComputeContext, cfg compute.Config, opts ...ExecutorOption) *compute.PixelBuffer {
	t.Helper()
	pb, _, err := compute.NewOrchestrator(NewExecutor(cc, opts...)).Run(context.Background(), cfg)
	var nodev *compute.NoCompatibleDeviceError
	if errors.As(err, &nodev) {
		t.Skipf("compute pipeline not available on %s: %v", cc.Info().Name, err)
	}
	if err != nil {
		t.Fatalf("Run on %s: %v", cc.Info().Name, err)
	}
	return pb
}

func TestGPUCenterDiffersFromCorners(t *testing.T) {
	cc := acquireOrSkip(t)
	cfg := compute.DefaultConfig()
	cfg.Width, cfg.Height = 32, 32

	pb := runOrSkip(t, cc, cfg)
	center := compute.Band(pb.At(16, 16))
	for _, c := range [][2]uint32{{0, 0}, {31, 0}, {0, 31}, {31, 31}} {
		if b := compute.Band(pb.At(c[0], c[1])); b == center {
			t.Errorf("corner %v band 0x%02X equals center", c, b)
		}
	}
}

func TestGPUReadbackCycle(t *testing.T) {
	cc := acquireOrSkip(t)
	cfg := compute.DefaultConfig()
	cfg.Width, cfg.Height = 40, 37
	cfg.RowsPerChunk = 16
	cfg.MaxIterations = 64

	var order []compute.ReadbackState
	var chunks []int
	pb := runOrSkip(t, cc, cfg, WithReadbackObserver(func(chunk int, _, to compute.ReadbackState) {
		order = append(order, to)
		if to == compute.ReadbackSubmitted {
			chunks = append(chunks, chunk)
		}
	}))

	if len(chunks) != 3 || chunks[0] != 0 || chunks[2] != 2 {
		t.Fatalf("submitted chunks = %v, want [0 1 2]", chunks)
	}
	cycle := []compute.ReadbackState{
		compute.ReadbackSubmitted,
		compute.ReadbackMapRequested,
		compute.ReadbackMapReady,
		compute.ReadbackDrained,
		compute.ReadbackUnmapped,
	}
	for i, s := range order {
		if s != cycle[i%len(cycle)] {
			t.Fatalf("transition %d = %s, want %s", i, s, cycle[i%len(cycle)])
		}
	}

	// The device and host kernels agree except where float32 rounding moves
	// a pixel across an escape boundary.
	ref, _, err := compute.NewOrchestrator(cpu.NewExecutor()).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("cpu reference: %v", err)
	}
	same := 0
	for i := range pb.Pix {
		if pb.Pix[i] == ref.Pix[i] {
			same++
		}
	}
	if same*10 < len(pb.Pix)*9 {
		t.Errorf("only %d of %d pixels match the host kernel", same, len(pb.Pix))
	}
}

func TestGPUIdempotent(t *testing.T) {
	cc := acquireOrSkip(t)
	cfg := compute.DefaultConfig()
	cfg.Width, cfg.Height = 24, 24
	cfg.RowsPerChunk = 8

	a := runOrSkip(t, cc, cfg)
	b := runOrSkip(t, cc, cfg)
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("pixel %d differs between runs: 0x%08X vs 0x%08X", i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestGPUOversizedBufferBeforeSubmit(t *testing.T) {
	cc := acquireOrSkip(t)
	limit := cc.Limits().MaxStorageBufferBindingSize

	cfg := compute.DefaultConfig()
	cfg.Width = 16384
	cfg.Height = uint32(limit/(16384*4)) + 64
	cfg.RowsPerChunk = cfg.Height
	cfg.MaxStagingBytes = 0

	submitted := 0
	exec := NewExecutor(cc, WithReadbackObserver(func(_ int, _, to compute.ReadbackState) {
		if to == compute.ReadbackSubmitted {
			submitted++
		}
	}))
	_, _, err := compute.NewOrchestrator(exec).Run(context.Background(), cfg)
	var ae *compute.AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AllocationError", err)
	}
	if submitted != 0 {
		t.Errorf("%d chunks submitted before the allocation failure", submitted)
	}
}

func TestAdapterInfoOf(t *testing.T) {
	cc := acquireOrSkip(t)
	info := cc.AdapterInfo()
	if info.Name != cc.Info().Name {
		t.Errorf("AdapterInfo().Name = %q, want %q", info.Name, cc.Info().Name)
	}
}

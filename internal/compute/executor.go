package compute

import (
	"context"

	"github.com/gogpu/mandelbrot/internal/shader"
)

// Layout is what an executor needs to size its resources for a plan.
type Layout struct {
	Width        uint32
	RowsPerChunk uint32
	Workgroup    shader.Workgroup

	// ChunkBytes is the size of the result and staging buffers.
	ChunkBytes uint64
	// MaxGrid is the largest dispatch grid of the run.
	MaxGrid Grid
	// MaxStagingBytes is the configured allocation ceiling.
	MaxStagingBytes uint64
}

// LayoutFor derives the executor layout of p under cfg.
func LayoutFor(p *Plan, cfg Config) Layout {
	return Layout{
		Width:           p.Width,
		RowsPerChunk:    p.RowsPerChunk,
		Workgroup:       p.Workgroup,
		ChunkBytes:      p.ChunkBytes(),
		MaxGrid:         p.MaxGrid(),
		MaxStagingBytes: cfg.MaxStagingBytes,
	}
}

// Executor runs one chunk at a time of the Mandelbrot contract. Calls
// arrive in the order Prepare, then per chunk WriteParams, Submit, Readback,
// then Release. An executor owns its buffers; Prepare allocates them and is
// the only place an AllocationError may surface.
type Executor interface {
	// Name identifies the executor in logs and results.
	Name() string

	// Prepare builds buffers, bindings and the pipeline for layout.
	Prepare(layout Layout) error

	// WriteParams overwrites the parameter buffer with p.
	WriteParams(p shader.Params) error

	// Submit records the dispatch over grid plus a copy of copyBytes result
	// bytes into the staging buffer, and submits it as chunk.
	Submit(chunk int, grid Grid, copyBytes uint64) error

	// Readback waits for the submitted chunk and copies its pixels into dst.
	// Errors are *ReadbackFailure.
	Readback(ctx context.Context, dst []uint32) error

	// Release frees everything Prepare built. Safe to call more than once.
	Release()
}

package compute

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProgressFunc is called after each chunk is drained.
type ProgressFunc func(done, total int)

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	progress ProgressFunc
}

// WithProgress reports per-chunk progress to fn.
func WithProgress(fn ProgressFunc) OrchestratorOption {
	return func(o *orchestratorOptions) {
		o.progress = fn
	}
}

// Orchestrator drives a render through an Executor, one chunk at a time.
type Orchestrator struct {
	exec Executor
	opts orchestratorOptions
}

// NewOrchestrator returns an orchestrator over exec.
func NewOrchestrator(exec Executor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{exec: exec}
	for _, opt := range opts {
		opt(&o.opts)
	}
	return o
}

// Stats summarizes a finished run.
type Stats struct {
	Executor     string
	Chunks       int
	RowsPerChunk uint32
	Elapsed      time.Duration
}

// Run renders cfg. Chunks are written, submitted and read back strictly in
// ascending row order; the first failure stops the run before any further
// submission. The executor is released before Run returns.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (*PixelBuffer, Stats, error) {
	start := time.Now()
	stats := Stats{Executor: o.exec.Name()}

	plan, err := NewPlan(cfg)
	if err != nil {
		return nil, stats, err
	}
	stats.RowsPerChunk = plan.RowsPerChunk

	log := slogger().With("executor", o.exec.Name())
	log.Debug("compute: plan",
		"width", plan.Width,
		"height", plan.Height,
		"rows_per_chunk", plan.RowsPerChunk,
		"chunks", len(plan.Chunks),
		"chunk_bytes", plan.ChunkBytes(),
	)

	defer o.exec.Release()
	if err := o.exec.Prepare(LayoutFor(plan, cfg)); err != nil {
		return nil, stats, fmt.Errorf("compute: prepare: %w", err)
	}

	pixels := NewPixelBuffer(plan.Width, plan.Height)
	for _, ch := range plan.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, stats, fmt.Errorf("compute: chunk %d not submitted: %w", ch.Index, err)
		}
		if err := o.runChunk(ctx, cfg, plan, ch, pixels); err != nil {
			return nil, stats, err
		}
		stats.Chunks++
		if o.opts.progress != nil {
			o.opts.progress(stats.Chunks, len(plan.Chunks))
		}
	}

	if err := pixels.Complete(); err != nil {
		return nil, stats, err
	}
	stats.Elapsed = time.Since(start)
	log.Debug("compute: run complete", "chunks", stats.Chunks, "elapsed", stats.Elapsed)
	return pixels, stats, nil
}

func (o *Orchestrator) runChunk(ctx context.Context, cfg Config, plan *Plan, ch Chunk, pixels *PixelBuffer) error {
	dst, err := pixels.ClaimRows(ch.OriginRow, ch.Rows)
	if err != nil {
		return err
	}
	if err := o.exec.WriteParams(cfg.ParamsFor(ch)); err != nil {
		return fmt.Errorf("compute: chunk %d: write params: %w", ch.Index, err)
	}
	grid := plan.Grid(ch)
	slogger().Debug("compute: dispatch",
		"chunk", ch.Index,
		"origin_row", ch.OriginRow,
		"rows", ch.Rows,
		"grid", grid.String(),
	)
	if err := o.exec.Submit(ch.Index, grid, plan.CopyBytes(ch)); err != nil {
		return fmt.Errorf("compute: chunk %d: submit: %w", ch.Index, err)
	}
	if err := o.exec.Readback(ctx, dst); err != nil {
		var rf *ReadbackFailure
		if !errors.As(err, &rf) {
			err = &ReadbackFailure{Chunk: ch.Index, State: ReadbackSubmitted, Err: err}
		}
		return err
	}
	return nil
}

package compute

import (
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/gogpu/mandelbrot/internal/shader"
)

// Chunk is a contiguous band of full-width rows.
type Chunk struct {
	Index     int
	OriginRow uint32
	Rows      uint32
}

// Grid is a workgroup count per dispatch dimension.
type Grid struct {
	X, Y, Z uint32
}

func (g Grid) String() string { return fmt.Sprintf("%dx%dx%d", g.X, g.Y, g.Z) }

// GridFor returns the smallest grid of wg-sized workgroups covering
// width x rows invocations.
func GridFor(width, rows uint32, wg shader.Workgroup) Grid {
	return Grid{
		X: ceilDiv(width, wg.X),
		Y: ceilDiv(rows, wg.Y),
		Z: 1,
	}
}

// Plan is the row partition of one render.
type Plan struct {
	Width, Height uint32
	RowsPerChunk  uint32
	Workgroup     shader.Workgroup
	Chunks        []Chunk
}

// NewPlan partitions cfg's image into row bands. The band height is
// cfg.RowsPerChunk when set, otherwise the largest height whose pixels fit
// cfg.MaxStagingBytes. Heights are clamped to [1, Height].
func NewPlan(cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rowBytes := uint64(cfg.Width) * shader.ElementSize

	rows := cfg.RowsPerChunk
	if rows == 0 {
		if rowBytes > cfg.MaxStagingBytes {
			return nil, &AllocationError{
				Label: "staging row",
				Size:  rowBytes,
				Limit: cfg.MaxStagingBytes,
			}
		}
		rows = uint32(min(cfg.MaxStagingBytes/rowBytes, uint64(cfg.Height)))
	}
	rows = max(min(rows, cfg.Height), 1)

	if cfg.MaxStagingBytes > 0 && rowBytes*uint64(rows) > cfg.MaxStagingBytes {
		return nil, &AllocationError{
			Label: "staging chunk",
			Size:  rowBytes * uint64(rows),
			Limit: cfg.MaxStagingBytes,
		}
	}

	count := ceilDiv(cfg.Height, rows)
	p := &Plan{
		Width:        cfg.Width,
		Height:       cfg.Height,
		RowsPerChunk: rows,
		Workgroup:    cfg.Workgroup,
		Chunks:       make([]Chunk, 0, count),
	}
	for i := range count {
		origin := i * rows
		p.Chunks = append(p.Chunks, Chunk{
			Index:     int(i),
			OriginRow: origin,
			Rows:      min(rows, cfg.Height-origin),
		})
	}
	return p, nil
}

// ChunkBytes is the size of the result and staging buffers.
func (p *Plan) ChunkBytes() uint64 {
	return uint64(p.Width) * uint64(p.RowsPerChunk) * shader.ElementSize
}

// CopyBytes is the number of result bytes chunk ch produces.
func (p *Plan) CopyBytes(ch Chunk) uint64 {
	return uint64(p.Width) * uint64(ch.Rows) * shader.ElementSize
}

// Grid returns the dispatch grid for ch.
func (p *Plan) Grid(ch Chunk) Grid {
	return GridFor(p.Width, ch.Rows, p.Workgroup)
}

// MaxGrid is the largest grid any chunk of p dispatches.
func (p *Plan) MaxGrid() Grid {
	return GridFor(p.Width, p.RowsPerChunk, p.Workgroup)
}

func ceilDiv[T constraints.Integer](x, y T) T {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// AlignUp rounds x up to a multiple of y.
func AlignUp[T constraints.Integer](x, y T) T {
	if y == 0 {
		return x
	}
	r := x % y
	if r == 0 {
		return x
	}
	return x + y - r
}

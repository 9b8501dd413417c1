package compute

import (
	"fmt"
	"math"
	"time"

	"github.com/gogpu/mandelbrot/internal/shader"
)

// Defaults.
const (
	DefaultMaxIterations = 1000

	// DefaultMaxStagingBytes bounds one readback cycle to 16 MiB.
	DefaultMaxStagingBytes = 16 << 20

	DefaultMapTimeout = 5 * time.Second

	// MaxIterationsLimit keeps n*255 inside u32 in the kernel.
	MaxIterationsLimit = 1 << 24
)

// Config is a validated render request.
type Config struct {
	Width, Height uint32

	CenterX, CenterY float32

	// XRange is the width of the viewport in the complex plane.
	XRange float32
	// YRange is the height; zero means XRange * Height / Width.
	YRange float32

	MaxIterations uint32

	// MaxStagingBytes caps the bytes moved per chunk.
	MaxStagingBytes uint64
	// RowsPerChunk forces a chunk height; zero derives it from MaxStagingBytes.
	RowsPerChunk uint32

	Workgroup  shader.Workgroup
	MapTimeout time.Duration
}

// DefaultConfig returns the classic full-set view at 1280x1280.
func DefaultConfig() Config {
	return Config{
		Width:           1280,
		Height:          1280,
		CenterX:         -0.65,
		CenterY:         0,
		XRange:          3.4,
		MaxIterations:   DefaultMaxIterations,
		MaxStagingBytes: DefaultMaxStagingBytes,
		Workgroup:       shader.DefaultWorkgroup,
		MapTimeout:      DefaultMapTimeout,
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.MaxIterations == 0 || c.MaxIterations > MaxIterationsLimit:
		return fmt.Errorf("%w: max iterations %d outside [1, %d]", ErrInvalidConfig, c.MaxIterations, MaxIterationsLimit)
	case !finitePositive(c.XRange):
		return fmt.Errorf("%w: x range %v", ErrInvalidConfig, c.XRange)
	case c.YRange != 0 && !finitePositive(c.YRange):
		return fmt.Errorf("%w: y range %v", ErrInvalidConfig, c.YRange)
	case !finite(c.CenterX) || !finite(c.CenterY):
		return fmt.Errorf("%w: center (%v, %v)", ErrInvalidConfig, c.CenterX, c.CenterY)
	case c.Workgroup.X == 0 || c.Workgroup.Y == 0:
		return fmt.Errorf("%w: workgroup %s", ErrInvalidConfig, c.Workgroup)
	case c.MaxStagingBytes == 0 && c.RowsPerChunk == 0:
		return fmt.Errorf("%w: neither staging ceiling nor chunk height set", ErrInvalidConfig)
	}
	return nil
}

// EffectiveYRange returns YRange, or the aspect-preserving default.
func (c Config) EffectiveYRange() float32 {
	if c.YRange != 0 {
		return c.YRange
	}
	return c.XRange * float32(c.Height) / float32(c.Width)
}

// ParamsFor returns the parameter record for chunk ch.
func (c Config) ParamsFor(ch Chunk) shader.Params {
	return shader.Params{
		Width:         c.Width,
		Height:        ch.Rows,
		OriginRow:     ch.OriginRow,
		ImageHeight:   c.Height,
		CenterX:       c.CenterX,
		CenterY:       c.CenterY,
		XRange:        c.XRange,
		YRange:        c.EffectiveYRange(),
		MaxIterations: c.MaxIterations,
	}
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func finitePositive(f float32) bool { return finite(f) && f > 0 }

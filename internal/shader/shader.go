// Package shader holds the Mandelbrot compute kernel and the host side of its
// binding contract: the entry point, the workgroup size, the binding slots and
// the byte layout of the parameter record.
package shader

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/gogpu/naga"
	"honnef.co/go/safeish"
)

//go:embed mandelbrot.wgsl
var mandelbrotWGSL string

var mandelbrotTmpl = template.Must(template.New("mandelbrot.wgsl").Parse(mandelbrotWGSL))

// EntryPoint is the compute entry point declared by the kernel.
const EntryPoint = "main"

// Binding slot indices in group 0.
const (
	SlotParams uint32 = 0
	SlotPixels uint32 = 1
)

// ElementSize is the size in bytes of one packed output pixel.
const ElementSize = 4

// Shader errors.
var (
	// ErrInvalidWorkgroup is returned for a zero workgroup dimension.
	ErrInvalidWorkgroup = errors.New("shader: invalid workgroup size")

	// ErrEmptySource is returned when a contract carries no shader source.
	ErrEmptySource = errors.New("shader: empty source")
)

// Workgroup is the per-workgroup invocation count along X and Y.
// Z is always 1.
type Workgroup struct {
	X, Y uint32
}

// DefaultWorkgroup is 8x8, matching the tile size used by the other
// compute kernels in this codebase.
var DefaultWorkgroup = Workgroup{X: 8, Y: 8}

// Invocations returns X*Y.
func (w Workgroup) Invocations() uint32 { return w.X * w.Y }

func (w Workgroup) String() string { return fmt.Sprintf("%dx%d", w.X, w.Y) }

// SlotKind is the kind of resource a binding slot expects.
type SlotKind uint8

const (
	// SlotUniform is a uniform buffer binding.
	SlotUniform SlotKind = iota
	// SlotStorage is a storage buffer binding.
	SlotStorage
)

// String returns the string representation of SlotKind.
func (k SlotKind) String() string {
	switch k {
	case SlotUniform:
		return "uniform"
	case SlotStorage:
		return "storage"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Slot describes one binding in group 0.
type Slot struct {
	Index    uint32
	Kind     SlotKind
	ReadOnly bool
}

func (s Slot) String() string {
	access := "read_write"
	if s.ReadOnly {
		access = "read"
	}
	return fmt.Sprintf("@binding(%d) %s %s", s.Index, s.Kind, access)
}

// Contract is everything the host needs to know about a compute kernel.
type Contract struct {
	Label      string
	Source     string
	EntryPoint string
	Workgroup  Workgroup
	Slots      []Slot

	// RecordSlot is the uniform slot carrying the host parameter record,
	// and Record is that record's layout.
	RecordSlot uint32
	Record     []Field
}

// Mandelbrot returns the contract of the Mandelbrot kernel specialized for wg.
func Mandelbrot(wg Workgroup) (Contract, error) {
	src, err := Source(wg)
	if err != nil {
		return Contract{}, err
	}
	return Contract{
		Label:      "mandelbrot",
		Source:     src,
		EntryPoint: EntryPoint,
		Workgroup:  wg,
		Slots: []Slot{
			{Index: SlotParams, Kind: SlotUniform, ReadOnly: true},
			{Index: SlotPixels, Kind: SlotStorage, ReadOnly: false},
		},
		RecordSlot: SlotParams,
		Record:     ParamsLayout(),
	}, nil
}

// Source renders the kernel's WGSL with the given workgroup size.
func Source(wg Workgroup) (string, error) {
	if wg.X == 0 || wg.Y == 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidWorkgroup, wg)
	}
	var sb strings.Builder
	if err := mandelbrotTmpl.Execute(&sb, wg); err != nil {
		return "", fmt.Errorf("shader: render source: %w", err)
	}
	return sb.String(), nil
}

// CompileSPIRV compiles WGSL source to SPIR-V words.
func CompileSPIRV(source string) ([]uint32, error) {
	if source == "" {
		return nil, ErrEmptySource
	}
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("shader: compile: SPIR-V length %d is not word aligned", len(spirvBytes))
	}
	// SPIR-V is little-endian 32-bit words.
	return safeish.SliceCast[[]uint32](spirvBytes), nil
}

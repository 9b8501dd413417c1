package mandelbrot

import (
	"errors"

	"github.com/gogpu/mandelbrot/internal/compute"
)

// Error taxonomy. Match with errors.As.
type (
	// NoCompatibleDeviceError reports that no backend, adapter or device
	// could be acquired.
	NoCompatibleDeviceError = compute.NoCompatibleDeviceError

	// AllocationError reports a buffer larger than the device allows.
	// Reducing the band height may help.
	AllocationError = compute.AllocationError

	// PipelineCompatibilityError reports a kernel whose bindings, record
	// layout or workgroup size do not fit the host or the device.
	PipelineCompatibilityError = compute.PipelineCompatibilityError

	// ShaderLinkError reports a kernel that failed to compile or link.
	ShaderLinkError = compute.ShaderLinkError

	// ReadbackFailure reports a band whose results could not be read back.
	ReadbackFailure = compute.ReadbackFailure
)

var (
	// ErrInvalidConfig is returned for a request that cannot be rendered.
	ErrInvalidConfig = compute.ErrInvalidConfig

	// ErrUnknownBackend is returned when WithBackend names a backend that is
	// not registered in this build.
	ErrUnknownBackend = errors.New("mandelbrot: unknown backend")
)

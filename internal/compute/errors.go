package compute

import (
	"errors"
	"fmt"
)

// Contract misuse errors.
var (
	// ErrInvalidConfig is returned for a configuration that cannot be rendered.
	ErrInvalidConfig = errors.New("compute: invalid configuration")

	// ErrRowOverlap is returned when a chunk claims a row that was already written.
	ErrRowOverlap = errors.New("compute: row written twice")

	// ErrIncomplete is returned when a run finishes with unwritten rows.
	ErrIncomplete = errors.New("compute: rows left unwritten")

	// ErrInvalidTransition is returned for an out-of-order readback transition.
	ErrInvalidTransition = errors.New("compute: invalid readback transition")

	// ErrNotPrepared is returned when an executor is used before Prepare.
	ErrNotPrepared = errors.New("compute: executor not prepared")
)

// NoCompatibleDeviceError is returned when no compute-capable backend,
// adapter or device can be acquired.
type NoCompatibleDeviceError struct {
	Stage string // "instance", "adapter" or "device"
	Err   error
}

func (e *NoCompatibleDeviceError) Error() string {
	if e.Err == nil {
		return "compute: no compatible device at " + e.Stage
	}
	return fmt.Sprintf("compute: no compatible device at %s: %v", e.Stage, e.Err)
}

func (e *NoCompatibleDeviceError) Unwrap() error { return e.Err }

// AllocationError is returned when a buffer request exceeds the effective
// size limit. Callers may retry with a smaller chunk size.
type AllocationError struct {
	Label string
	Size  uint64
	Limit uint64
	Err   error
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("compute: allocation of %q (%d bytes) exceeds limit of %d bytes", e.Label, e.Size, e.Limit)
	if e.Size == 0 {
		msg = fmt.Sprintf("compute: allocation of %q has zero size", e.Label)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Unwrap() error { return e.Err }

// PipelineCompatibilityError is returned when the host binding layout or
// parameter record disagrees with what the shader declares.
type PipelineCompatibilityError struct {
	Slot   int // -1 when the mismatch is not tied to a slot
	Reason string
}

func (e *PipelineCompatibilityError) Error() string {
	if e.Slot < 0 {
		return "compute: pipeline incompatible: " + e.Reason
	}
	return fmt.Sprintf("compute: pipeline incompatible at slot %d: %s", e.Slot, e.Reason)
}

// ShaderLinkError is returned when the shader's entry point, workgroup size
// or binding arity disagrees with the host, or when the module fails to
// compile or link.
type ShaderLinkError struct {
	EntryPoint string
	Reason     string
	Err        error
}

func (e *ShaderLinkError) Error() string {
	msg := fmt.Sprintf("compute: shader link failed for entry point %q: %s", e.EntryPoint, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ShaderLinkError) Unwrap() error { return e.Err }

// ReadbackFailure is returned when mapping a staging buffer fails or does
// not complete in time. It is fatal for the run.
type ReadbackFailure struct {
	Chunk int
	State ReadbackState
	Err   error
}

func (e *ReadbackFailure) Error() string {
	return fmt.Sprintf("compute: readback of chunk %d failed in state %s: %v", e.Chunk, e.State, e.Err)
}

func (e *ReadbackFailure) Unwrap() error { return e.Err }

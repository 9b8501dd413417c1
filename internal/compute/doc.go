// Package compute partitions a Mandelbrot render into row bands and drives
// them through an Executor: write parameters, dispatch, copy, read back.
//
// # Chunking
//
// A render of W x H pixels is split into C = ceil(H / R) bands of R full
// rows, where R is either configured directly or is the largest height
// whose W*R*4 bytes fit the staging ceiling. The final band may be shorter;
// its parameter record and grid carry its true height.
//
// # Ordering
//
// Exactly one band is in flight. Band c+1 is written only after band c's
// staging buffer returns to Unmapped:
//
//	Submitted -> MapRequested -> MapReady -> Drained -> Unmapped
//
// ReadbackTracker enforces that sequence for every executor.
//
// # Errors
//
// NoCompatibleDeviceError, AllocationError, PipelineCompatibilityError,
// ShaderLinkError and ReadbackFailure are all fatal for a run. There is no
// partial result.
package compute

//go:build !nogpu

// Package gpu runs the Mandelbrot kernel on a WebGPU device through the
// pure Go gogpu/wgpu stack.
//
// # Components
//
//   - Acquire opens an instance, an adapter (optionally the software
//     fallback) and a device, and returns them as a ComputeContext.
//   - ResourceBuilder creates uniform, storage and staging buffers within
//     the device limits, declares binding layouts and binds buffers to them.
//   - PipelineAssembler reflects the kernel with naga, checks it against
//     the host contract and builds the compute pipeline.
//   - Executor ties these together as a compute.Executor.
//
// # Readback
//
// Each chunk is dispatched into a storage buffer and copied into a
// host-readable staging buffer in the same submission. The staging buffer
// then walks Submitted, MapRequested, MapReady, Drained and Unmapped:
//
//	MapAsync -> Poll(PollPoll) -> Poll(PollWait) + MapPending.Wait(timeout)
//	         -> MappedRange -> copy rows -> release range -> Unmap
//
// A blocking poll runs on a helper goroutine so the map timeout can fire;
// all state changes happen on the caller's goroutine. A map that fails or
// times out is canceled with Unmap and reported as *compute.ReadbackFailure.
//
// # Build tags
//
// The package is excluded with the nogpu build tag; the CPU executor in
// internal/cpu needs no device.
package gpu

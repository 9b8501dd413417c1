// Package mandelbrot renders the Mandelbrot set on a GPU compute shader,
// reading each band of rows back to host memory before the next is
// dispatched.
//
// # Quick Start
//
//	res, err := mandelbrot.Render(ctx,
//	    mandelbrot.WithSize(1280, 1280),
//	    mandelbrot.WithCenter(-0.65, 0),
//	    mandelbrot.WithRange(3.4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = res.Save("mandelbrot.png")
//
// # Backends
//
// The "gpu" backend drives a WebGPU device through gogpu/wgpu. The "cpu"
// backend runs the same kernel contract on a worker pool and is used when
// no device can be opened, unless WithoutFallback is given. Builds tagged
// nogpu register only the CPU backend.
//
// # Chunking
//
// An image is split into bands of whole rows so that one band's pixels fit
// in the staging ceiling (WithMaxStagingBytes) or a fixed height
// (WithRowsPerChunk). Bands run strictly one after another: write
// parameters, dispatch, copy to staging, map, drain, unmap.
//
// # Errors
//
// Failures are typed: NoCompatibleDeviceError, AllocationError,
// PipelineCompatibilityError, ShaderLinkError and ReadbackFailure. Match
// them with errors.As. A failed render returns no partial image.
package mandelbrot

// Version is the module version.
const Version = "0.1.0"

package mandelbrot

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/cpu"
)

// Backend names.
const (
	BackendAuto = "auto"
	BackendGPU  = "gpu"
	BackendCPU  = "cpu"
)

// session is an executor ready for one run plus the device it runs on.
type session struct {
	exec    compute.Executor
	adapter gpucontext.AdapterInfo
	close   func()
}

// opener opens a session for one render.
type opener func(o *options) (*session, error)

var backends = gpucontext.NewRegistry[opener](
	gpucontext.WithPriority(BackendGPU, BackendCPU),
)

func init() {
	backends.Register(BackendCPU, func() opener { return openCPU })
}

// Backends returns the backend names registered in this build, sorted.
func Backends() []string {
	names := backends.Available()
	slices.Sort(names)
	return names
}

func openCPU(o *options) (*session, error) {
	exec := cpu.NewExecutor(cpu.WithWorkers(o.workers))
	return &session{
		exec: exec,
		adapter: gpucontext.AdapterInfo{
			Name: "cpu",
			Type: gpucontext.AdapterTypeSoftware,
		},
		close: func() {},
	}, nil
}

// openBackend opens the backend o names. BackendAuto opens the
// highest-priority registered backend.
func openBackend(o *options) (*session, error) {
	if o.backend != BackendAuto {
		if !backends.Has(o.backend) {
			return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBackend, o.backend, Backends())
		}
		return backends.Get(o.backend)(o)
	}
	return openPreferred(backends.BestName(), o)
}

// openPreferred opens name, falling back to the CPU when it reports that
// no device is available.
func openPreferred(name string, o *options) (*session, error) {
	s, err := backends.Get(name)(o)
	if err == nil || name == BackendCPU {
		return s, err
	}
	var nd *compute.NoCompatibleDeviceError
	if o.noFallback || !errors.As(err, &nd) {
		return nil, err
	}
	Logger().Warn("mandelbrot: falling back to cpu", "backend", name, "err", err)
	return openCPU(o)
}

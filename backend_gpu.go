//go:build !nogpu

package mandelbrot

import (
	"github.com/gogpu/mandelbrot/internal/gpu"
)

func init() {
	backends.Register(BackendGPU, func() opener { return openGPU })
	addLoggerSink(gpu.SetLogger)
}

func openGPU(o *options) (*session, error) {
	var opts []gpu.ContextOption
	if o.software {
		opts = append(opts, gpu.WithSoftwareAdapter())
	}
	cc, err := gpu.Acquire(opts...)
	if err != nil {
		return nil, err
	}
	exec := gpu.NewExecutor(cc, gpu.WithMapTimeout(o.cfg.MapTimeout))
	return &session{
		exec:    exec,
		adapter: cc.AdapterInfo(),
		close:   cc.Close,
	}, nil
}

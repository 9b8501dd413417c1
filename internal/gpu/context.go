//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	// Register every HAL backend available on this platform, including the
	// software rasterizer used as the fallback adapter.
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/mandelbrot/internal/compute"
)

// ContextOption configures Acquire.
type ContextOption func(*contextOptions)

type contextOptions struct {
	backends gputypes.Backends
	power    gputypes.PowerPreference
	software bool
	label    string
}

// WithSoftwareAdapter forces the CPU fallback adapter.
func WithSoftwareAdapter() ContextOption {
	return func(o *contextOptions) {
		o.software = true
	}
}

// WithPowerPreference selects between low-power and high-performance
// adapters when more than one is present.
func WithPowerPreference(p gputypes.PowerPreference) ContextOption {
	return func(o *contextOptions) {
		o.power = p
	}
}

// WithBackends restricts the instance to the given backend set.
func WithBackends(b gputypes.Backends) ContextOption {
	return func(o *contextOptions) {
		o.backends = b
	}
}

// WithDeviceLabel labels the requested device.
func WithDeviceLabel(label string) ContextOption {
	return func(o *contextOptions) {
		o.label = label
	}
}

// ComputeContext owns an instance, an adapter and a compute-capable device
// with its queue. Close releases them in reverse order.
type ComputeContext struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     gputypes.AdapterInfo
}

// Acquire opens the first compatible adapter and requests a device from
// it. Failures at any stage are *compute.NoCompatibleDeviceError.
func Acquire(opts ...ContextOption) (*ComputeContext, error) {
	o := contextOptions{
		power: gputypes.PowerPreferenceHighPerformance,
		label: "mandelbrot",
	}
	for _, opt := range opts {
		opt(&o)
	}

	var desc *wgpu.InstanceDescriptor
	if o.backends != gputypes.BackendsNone {
		desc = &wgpu.InstanceDescriptor{Backends: o.backends}
	}
	instance, err := wgpu.CreateInstance(desc)
	if err != nil {
		return nil, &compute.NoCompatibleDeviceError{Stage: "instance", Err: err}
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      o.power,
		ForceFallbackAdapter: o.software,
	})
	if err != nil {
		instance.Release()
		return nil, &compute.NoCompatibleDeviceError{Stage: "adapter", Err: err}
	}
	info := adapter.Info()
	slogger().Info("gpu: adapter selected",
		"name", info.Name,
		"type", info.DeviceType.String(),
		"backend", info.Backend.String(),
		"driver", info.Driver,
	)

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          o.label,
		RequiredLimits: adapter.Limits(),
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, &compute.NoCompatibleDeviceError{Stage: "device", Err: err}
	}

	queue := device.Queue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, &compute.NoCompatibleDeviceError{
			Stage: "device",
			Err:   fmt.Errorf("device %q has no queue", info.Name),
		}
	}

	return &ComputeContext{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		info:     info,
	}, nil
}

// Device returns the logical device.
func (c *ComputeContext) Device() *wgpu.Device { return c.device }

// Queue returns the device's submission queue.
func (c *ComputeContext) Queue() *wgpu.Queue { return c.queue }

// Limits returns the device's effective limits.
func (c *ComputeContext) Limits() gputypes.Limits { return c.device.Limits() }

// Info returns the raw adapter description.
func (c *ComputeContext) Info() gputypes.AdapterInfo { return c.info }

// AdapterInfo returns the adapter name and class.
func (c *ComputeContext) AdapterInfo() gpucontext.AdapterInfo {
	return AdapterInfoOf(c.info)
}

// Close releases the device, adapter and instance. Safe to call more than
// once.
func (c *ComputeContext) Close() {
	if c.device != nil {
		c.device.Release()
		c.device = nil
		c.queue = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

// AdapterInfoOf classifies a wgpu adapter description.
func AdapterInfoOf(info gputypes.AdapterInfo) gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: info.Name, Type: t}
}

//go:build !nogpu

package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/shader"
)

var errStubDevice = errors.New("stub device")

// stubDevice records descriptors and refuses to create buffers.
type stubDevice struct {
	buffers []wgpu.BufferDescriptor
	layouts []wgpu.BindGroupLayoutDescriptor
	groups  int
}

func (d *stubDevice) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	d.buffers = append(d.buffers, *desc)
	return nil, errStubDevice
}

func (d *stubDevice) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	d.layouts = append(d.layouts, *desc)
	return nil, nil
}

func (d *stubDevice) CreateBindGroup(*wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error) {
	d.groups++
	return nil, nil
}

func TestResourceBuilderLimits(t *testing.T) {
	limits := gputypes.DefaultLimits()
	rb := NewResourceBuilder(&stubDevice{}, limits, 0)
	if got := rb.UniformLimit(); got != limits.MaxUniformBufferBindingSize {
		t.Errorf("UniformLimit = %d, want %d", got, limits.MaxUniformBufferBindingSize)
	}
	if got := rb.StorageLimit(false); got != limits.MaxStorageBufferBindingSize {
		t.Errorf("StorageLimit(false) = %d, want %d", got, limits.MaxStorageBufferBindingSize)
	}
	if got := rb.StorageLimit(true); got != limits.MaxBufferSize {
		t.Errorf("StorageLimit(true) = %d, want %d", got, limits.MaxBufferSize)
	}

	capped := NewResourceBuilder(&stubDevice{}, limits, 4096)
	if got := capped.StorageLimit(true); got != 4096 {
		t.Errorf("capped StorageLimit(true) = %d, want 4096", got)
	}
	if got := capped.UniformLimit(); got != 4096 {
		t.Errorf("capped UniformLimit = %d, want 4096", got)
	}
}

func TestCreateStorageBufferOversized(t *testing.T) {
	dev := &stubDevice{}
	limits := gputypes.DefaultLimits()
	rb := NewResourceBuilder(dev, limits, 0)

	_, err := rb.CreateStorageBuffer("pixels", limits.MaxStorageBufferBindingSize+4, false)
	var ae *compute.AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AllocationError", err)
	}
	if ae.Limit != limits.MaxStorageBufferBindingSize || ae.Label != "pixels" {
		t.Errorf("AllocationError = %+v", ae)
	}
	if len(dev.buffers) != 0 {
		t.Errorf("device asked for %d buffers despite the limit", len(dev.buffers))
	}
}

func TestCreateBufferZeroSize(t *testing.T) {
	dev := &stubDevice{}
	rb := NewResourceBuilder(dev, gputypes.DefaultLimits(), 0)
	_, err := rb.CreateUniformBuffer("params", 0)
	var ae *compute.AllocationError
	if !errors.As(err, &ae) || ae.Size != 0 {
		t.Fatalf("err = %v, want zero-size *AllocationError", err)
	}
	if len(dev.buffers) != 0 {
		t.Error("device was asked for a zero-size buffer")
	}
}

func TestCreateBufferDescriptors(t *testing.T) {
	dev := &stubDevice{}
	rb := NewResourceBuilder(dev, gputypes.DefaultLimits(), 0)

	_, err := rb.CreateUniformBuffer("params", shader.ParamsSize)
	if !errors.Is(err, errStubDevice) {
		t.Fatalf("device failure not wrapped: %v", err)
	}
	var ae *compute.AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("device failure is %T, want *AllocationError", err)
	}
	_, _ = rb.CreateStorageBuffer("pixels", 1024, false)
	_, _ = rb.CreateStorageBuffer("staging", 1022, true)

	if len(dev.buffers) != 3 {
		t.Fatalf("device saw %d buffers, want 3", len(dev.buffers))
	}
	tests := []struct {
		desc  wgpu.BufferDescriptor
		size  uint64
		usage wgpu.BufferUsage
	}{
		{dev.buffers[0], 48, wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst},
		{dev.buffers[1], 1024, wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc},
		{dev.buffers[2], 1024, wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst},
	}
	for _, tt := range tests {
		if tt.desc.Size != tt.size || tt.desc.Usage != tt.usage {
			t.Errorf("%s: size %d usage %v, want %d %v", tt.desc.Label, tt.desc.Size, tt.desc.Usage, tt.size, tt.usage)
		}
	}
}

func TestBuildBindingLayoutOrdersSlots(t *testing.T) {
	dev := &stubDevice{}
	rb := NewResourceBuilder(dev, gputypes.DefaultLimits(), 0)
	bl, err := rb.BuildBindingLayout("test", []shader.Slot{
		{Index: 1, Kind: shader.SlotStorage},
		{Index: 0, Kind: shader.SlotUniform, ReadOnly: true},
	})
	if err != nil {
		t.Fatalf("BuildBindingLayout: %v", err)
	}
	if bl.Slots[0].Index != 0 || bl.Slots[1].Index != 1 {
		t.Errorf("slots not ordered: %v", bl.Slots)
	}
	entries := dev.layouts[0].Entries
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Buffer.Type != gputypes.BufferBindingTypeUniform {
		t.Errorf("slot 0 type = %v", entries[0].Buffer.Type)
	}
	if entries[1].Buffer.Type != gputypes.BufferBindingTypeStorage {
		t.Errorf("slot 1 type = %v", entries[1].Buffer.Type)
	}
	for _, e := range entries {
		if e.Visibility != wgpu.ShaderStageCompute {
			t.Errorf("slot %d visibility = %v", e.Binding, e.Visibility)
		}
	}
}

func TestBuildBindingLayoutDuplicate(t *testing.T) {
	rb := NewResourceBuilder(&stubDevice{}, gputypes.DefaultLimits(), 0)
	_, err := rb.BuildBindingLayout("dup", []shader.Slot{{Index: 0}, {Index: 0, Kind: shader.SlotStorage}})
	if !errors.Is(err, ErrDuplicateSlot) {
		t.Errorf("err = %v, want ErrDuplicateSlot", err)
	}
}

func TestReadOnlyStorageBindingType(t *testing.T) {
	if got := bindingType(shader.Slot{Kind: shader.SlotStorage, ReadOnly: true}); got != gputypes.BufferBindingTypeReadOnlyStorage {
		t.Errorf("bindingType = %v, want ReadOnlyStorage", got)
	}
}

func TestBindResourcesSlotChecks(t *testing.T) {
	dev := &stubDevice{}
	rb := NewResourceBuilder(dev, gputypes.DefaultLimits(), 0)
	bl := &BindingLayout{
		Label: "test",
		Slots: []shader.Slot{
			{Index: 0, Kind: shader.SlotUniform, ReadOnly: true},
			{Index: 1, Kind: shader.SlotStorage},
		},
	}

	if _, err := rb.BindResources(bl, []Binding{{Slot: 7}}); !errors.Is(err, ErrUndeclaredSlot) {
		t.Errorf("undeclared slot: err = %v", err)
	}
	if _, err := rb.BindResources(bl, []Binding{{Slot: 1}}); !errors.Is(err, ErrUnboundSlot) {
		t.Errorf("nil buffer: err = %v", err)
	}
	if _, err := rb.BindResources(bl, nil); !errors.Is(err, ErrUnboundSlot) {
		t.Errorf("no bindings: err = %v", err)
	}
	if dev.groups != 0 {
		t.Errorf("device created %d bind groups for invalid bindings", dev.groups)
	}
}

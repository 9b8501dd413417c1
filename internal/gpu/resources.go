//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/shader"
)

// Binding errors.
var (
	// ErrUndeclaredSlot is returned when a resource is bound to a slot the
	// layout does not declare.
	ErrUndeclaredSlot = errors.New("gpu: binding to undeclared slot")

	// ErrUnboundSlot is returned when a declared slot receives no buffer.
	ErrUnboundSlot = errors.New("gpu: declared slot left unbound")

	// ErrDuplicateSlot is returned when a layout or binding set names the
	// same slot twice.
	ErrDuplicateSlot = errors.New("gpu: duplicate slot")
)

// ResourceDevice is the part of *wgpu.Device the resource builder needs.
type ResourceDevice interface {
	CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
	CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error)
	CreateBindGroup(desc *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error)
}

// ResourceBuilder allocates buffers and binding tables within the device
// limits and an optional configured ceiling.
type ResourceBuilder struct {
	dev      ResourceDevice
	limits   gputypes.Limits
	maxBytes uint64
}

// NewResourceBuilder returns a builder over dev. maxBytes, when non-zero,
// further caps every allocation.
func NewResourceBuilder(dev ResourceDevice, limits gputypes.Limits, maxBytes uint64) *ResourceBuilder {
	return &ResourceBuilder{dev: dev, limits: limits, maxBytes: maxBytes}
}

// UniformLimit is the largest uniform buffer the builder will create.
func (b *ResourceBuilder) UniformLimit() uint64 {
	return b.limit(b.limits.MaxUniformBufferBindingSize)
}

// StorageLimit is the largest storage buffer the builder will create.
// Host-readable buffers are never bound, so only the buffer size limit
// applies to them.
func (b *ResourceBuilder) StorageLimit(readableByHost bool) uint64 {
	if readableByHost {
		return b.limit(0)
	}
	return b.limit(b.limits.MaxStorageBufferBindingSize)
}

func (b *ResourceBuilder) limit(binding uint64) uint64 {
	l := b.limits.MaxBufferSize
	if binding > 0 && (l == 0 || binding < l) {
		l = binding
	}
	if b.maxBytes > 0 && (l == 0 || b.maxBytes < l) {
		l = b.maxBytes
	}
	return l
}

// CreateUniformBuffer creates a host-writable uniform buffer of size bytes.
func (b *ResourceBuilder) CreateUniformBuffer(label string, size uint64) (*wgpu.Buffer, error) {
	return b.create(label, size, b.UniformLimit(), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
}

// CreateStorageBuffer creates a storage buffer of size bytes. A
// host-readable buffer is a staging target: copy destination and
// mappable for read. Otherwise it is shader read-write storage that can be
// copied out.
func (b *ResourceBuilder) CreateStorageBuffer(label string, size uint64, readableByHost bool) (*wgpu.Buffer, error) {
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc
	if readableByHost {
		usage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	}
	return b.create(label, size, b.StorageLimit(readableByHost), usage)
}

func (b *ResourceBuilder) create(label string, size, limit uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	if size == 0 {
		return nil, &compute.AllocationError{Label: label, Limit: limit}
	}
	if limit > 0 && size > limit {
		return nil, &compute.AllocationError{Label: label, Size: size, Limit: limit}
	}
	buf, err := b.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  compute.AlignUp(size, 4),
		Usage: usage,
	})
	if err != nil {
		return nil, &compute.AllocationError{Label: label, Size: size, Limit: limit, Err: err}
	}
	slogger().Debug("gpu: buffer created", "label", label, "size", size)
	return buf, nil
}

// BindingLayout is a binding table declaration for group 0.
type BindingLayout struct {
	Label string
	// Slots are ordered by index.
	Slots []shader.Slot

	layout *wgpu.BindGroupLayout
}

// Handle returns the device layout object.
func (l *BindingLayout) Handle() *wgpu.BindGroupLayout { return l.layout }

// Slot returns the declared slot with the given index.
func (l *BindingLayout) Slot(index uint32) (shader.Slot, bool) {
	for _, s := range l.Slots {
		if s.Index == index {
			return s, true
		}
	}
	return shader.Slot{}, false
}

// Release frees the device layout object.
func (l *BindingLayout) Release() {
	if l.layout != nil {
		l.layout.Release()
		l.layout = nil
	}
}

// BuildBindingLayout declares slots as a compute-visible binding table.
// Slots are enumerated in index order.
func (b *ResourceBuilder) BuildBindingLayout(label string, slots []shader.Slot) (*BindingLayout, error) {
	sorted, err := sortSlots(slots)
	if err != nil {
		return nil, err
	}
	handle, err := b.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: layoutEntries(sorted),
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create binding layout %q: %w", label, err)
	}
	return &BindingLayout{Label: label, Slots: sorted, layout: handle}, nil
}

func sortSlots(slots []shader.Slot) ([]shader.Slot, error) {
	sorted := slices.Clone(slots)
	slices.SortFunc(sorted, func(a, b shader.Slot) int { return int(a.Index) - int(b.Index) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Index == sorted[i-1].Index {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSlot, sorted[i].Index)
		}
	}
	return sorted, nil
}

func layoutEntries(slots []shader.Slot) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(slots))
	for _, s := range slots {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    s.Index,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: bindingType(s)},
		})
	}
	return entries
}

func bindingType(s shader.Slot) gputypes.BufferBindingType {
	switch {
	case s.Kind == shader.SlotUniform:
		return gputypes.BufferBindingTypeUniform
	case s.ReadOnly:
		return gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BufferBindingTypeStorage
	}
}

// Binding attaches a buffer to a slot. Size 0 binds the whole buffer.
type Binding struct {
	Slot   uint32
	Buffer *wgpu.Buffer
	Size   uint64
}

// BindResources creates the binding table instance for layout. Every
// declared slot must be bound exactly once, and only declared slots may be
// bound.
func (b *ResourceBuilder) BindResources(layout *BindingLayout, bindings []Binding) (*wgpu.BindGroup, error) {
	entries, err := bindEntries(layout, bindings)
	if err != nil {
		return nil, err
	}
	group, err := b.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   layout.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: bind resources %q: %w", layout.Label, err)
	}
	return group, nil
}

func bindEntries(layout *BindingLayout, bindings []Binding) ([]wgpu.BindGroupEntry, error) {
	seen := make(map[uint32]bool, len(bindings))
	entries := make([]wgpu.BindGroupEntry, 0, len(bindings))
	for _, bd := range bindings {
		slot, ok := layout.Slot(bd.Slot)
		if !ok {
			return nil, fmt.Errorf("%w: %d in %q", ErrUndeclaredSlot, bd.Slot, layout.Label)
		}
		if seen[bd.Slot] {
			return nil, fmt.Errorf("%w: %d bound twice", ErrDuplicateSlot, bd.Slot)
		}
		if bd.Buffer == nil {
			return nil, fmt.Errorf("%w: %d has a nil buffer", ErrUnboundSlot, bd.Slot)
		}
		if want := usageFor(slot); !bd.Buffer.Usage().Contains(want) {
			return nil, &compute.PipelineCompatibilityError{
				Slot:   int(bd.Slot),
				Reason: fmt.Sprintf("buffer %q lacks usage required by %s", bd.Buffer.Label(), slot),
			}
		}
		seen[bd.Slot] = true
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: bd.Slot,
			Buffer:  bd.Buffer,
			Size:    bd.Size,
		})
	}
	for _, s := range layout.Slots {
		if !seen[s.Index] {
			return nil, fmt.Errorf("%w: %d in %q", ErrUnboundSlot, s.Index, layout.Label)
		}
	}
	slices.SortFunc(entries, func(a, b wgpu.BindGroupEntry) int { return int(a.Binding) - int(b.Binding) })
	return entries, nil
}

func usageFor(s shader.Slot) wgpu.BufferUsage {
	if s.Kind == shader.SlotUniform {
		return wgpu.BufferUsageUniform
	}
	return wgpu.BufferUsageStorage
}

//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/mandelbrot/internal/compute"
	"github.com/gogpu/mandelbrot/internal/shader"
)

// PipelineDevice is the part of *wgpu.Device the pipeline assembler needs.
type PipelineDevice interface {
	CreateShaderModule(desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error)
	CreatePipelineLayout(desc *wgpu.PipelineLayoutDescriptor) (*wgpu.PipelineLayout, error)
	CreateComputePipeline(desc *wgpu.ComputePipelineDescriptor) (*wgpu.ComputePipeline, error)
}

// PipelineAssembler links a kernel contract to binding layouts.
type PipelineAssembler struct {
	dev    PipelineDevice
	limits gputypes.Limits

	// spirv hands the device precompiled SPIR-V instead of WGSL.
	spirv bool
}

// NewPipelineAssembler returns an assembler for dev. When spirv is set the
// shader module is created from naga's SPIR-V output; otherwise the device
// receives WGSL and translates it for its own backend.
func NewPipelineAssembler(dev PipelineDevice, limits gputypes.Limits, spirv bool) *PipelineAssembler {
	return &PipelineAssembler{dev: dev, limits: limits, spirv: spirv}
}

// Pipeline is an immutable compute pipeline, reused for every dispatch.
type Pipeline struct {
	Contract shader.Contract

	module   *wgpu.ShaderModule
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.ComputePipeline
}

// Handle returns the device pipeline.
func (p *Pipeline) Handle() *wgpu.ComputePipeline { return p.pipeline }

// Release frees the pipeline, its layout and its shader module.
func (p *Pipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}

// Assemble checks contract against what its source declares and against
// the device limits, then builds the pipeline. layouts[i] is bind group i.
func (a *PipelineAssembler) Assemble(contract shader.Contract, layouts []*BindingLayout) (*Pipeline, error) {
	refl, err := shader.Reflect(contract.Source)
	if err != nil {
		return nil, &compute.ShaderLinkError{EntryPoint: contract.EntryPoint, Reason: "source rejected", Err: err}
	}
	var slots []shader.Slot
	if len(layouts) > 0 {
		slots = layouts[0].Slots
	}
	if err := CheckContract(refl, contract, slots, a.limits); err != nil {
		return nil, err
	}

	desc := &wgpu.ShaderModuleDescriptor{Label: contract.Label}
	if a.spirv {
		words, err := shader.CompileSPIRV(contract.Source)
		if err != nil {
			return nil, &compute.ShaderLinkError{EntryPoint: contract.EntryPoint, Reason: "compile", Err: err}
		}
		desc.SPIRV = words
	} else {
		desc.WGSL = contract.Source
	}

	p := &Pipeline{Contract: contract}
	p.module, err = a.dev.CreateShaderModule(desc)
	if err != nil {
		return nil, &compute.ShaderLinkError{EntryPoint: contract.EntryPoint, Reason: "create shader module", Err: err}
	}

	handles := make([]*wgpu.BindGroupLayout, 0, len(layouts))
	for _, l := range layouts {
		handles = append(handles, l.Handle())
	}
	p.layout, err = a.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            contract.Label,
		BindGroupLayouts: handles,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("gpu: create pipeline layout %q: %w", contract.Label, err)
	}

	p.pipeline, err = a.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:      contract.Label,
		Layout:     p.layout,
		Module:     p.module,
		EntryPoint: contract.EntryPoint,
	})
	if err != nil {
		p.Release()
		return nil, &compute.ShaderLinkError{EntryPoint: contract.EntryPoint, Reason: "link", Err: err}
	}
	slogger().Debug("gpu: pipeline assembled",
		"label", contract.Label,
		"workgroup", contract.Workgroup.String(),
		"spirv", a.spirv,
	)
	return p, nil
}

// CheckContract compares a host contract and its group 0 slots with the
// reflected shader and the device limits.
//
// Entry point, workgroup size and binding count mismatches are
// *compute.ShaderLinkError. Per-slot kind or access mismatches, a record
// layout mismatch and a workgroup over the device limits are
// *compute.PipelineCompatibilityError.
func CheckContract(refl *shader.Reflection, c shader.Contract, slots []shader.Slot, limits gputypes.Limits) error {
	ep, ok := refl.EntryPoint(c.EntryPoint)
	if !ok {
		return &compute.ShaderLinkError{EntryPoint: c.EntryPoint, Reason: "entry point not declared"}
	}
	if !ep.Compute {
		return &compute.ShaderLinkError{EntryPoint: c.EntryPoint, Reason: "entry point is not a compute stage"}
	}
	if want := [3]uint32{c.Workgroup.X, c.Workgroup.Y, 1}; ep.Workgroup != want {
		return &compute.ShaderLinkError{
			EntryPoint: c.EntryPoint,
			Reason:     fmt.Sprintf("workgroup size %v, host expects %v", ep.Workgroup, want),
		}
	}

	declared := refl.Group(0)
	if len(declared) != len(refl.Bindings) {
		return &compute.ShaderLinkError{
			EntryPoint: c.EntryPoint,
			Reason:     fmt.Sprintf("%d bindings outside group 0", len(refl.Bindings)-len(declared)),
		}
	}
	if len(declared) != len(slots) {
		return &compute.ShaderLinkError{
			EntryPoint: c.EntryPoint,
			Reason:     fmt.Sprintf("shader declares %d bindings, layout has %d", len(declared), len(slots)),
		}
	}

	for _, s := range slots {
		b, ok := findBinding(declared, s.Index)
		if !ok {
			return &compute.PipelineCompatibilityError{Slot: int(s.Index), Reason: "not declared by the shader"}
		}
		if b.Kind != s.Kind {
			return &compute.PipelineCompatibilityError{
				Slot:   int(s.Index),
				Reason: fmt.Sprintf("shader %q is %s, layout is %s", b.Name, b.Kind, s.Kind),
			}
		}
		if b.ReadOnly != s.ReadOnly {
			return &compute.PipelineCompatibilityError{
				Slot:   int(s.Index),
				Reason: fmt.Sprintf("shader %q read-only=%t, layout read-only=%t", b.Name, b.ReadOnly, s.ReadOnly),
			}
		}
	}

	if len(c.Record) > 0 {
		if err := checkRecord(declared, c); err != nil {
			return err
		}
	}

	return checkWorkgroupLimits(c.Workgroup, limits)
}

func findBinding(bindings []shader.ReflectedBinding, index uint32) (shader.ReflectedBinding, bool) {
	for _, b := range bindings {
		if b.Index == index {
			return b, true
		}
	}
	return shader.ReflectedBinding{}, false
}

func checkRecord(declared []shader.ReflectedBinding, c shader.Contract) error {
	slot := int(c.RecordSlot)
	b, ok := findBinding(declared, c.RecordSlot)
	if !ok || b.Struct == nil {
		return &compute.PipelineCompatibilityError{Slot: slot, Reason: "record slot is not a struct binding"}
	}
	got := b.Struct.Members
	if len(got) != len(c.Record) {
		return &compute.PipelineCompatibilityError{
			Slot:   slot,
			Reason: fmt.Sprintf("record %s has %d members, host has %d", b.Struct.Name, len(got), len(c.Record)),
		}
	}
	for i, want := range c.Record {
		if got[i] != want {
			return &compute.PipelineCompatibilityError{
				Slot:   slot,
				Reason: fmt.Sprintf("record member %d is %+v, host has %+v", i, got[i], want),
			}
		}
	}
	last := c.Record[len(c.Record)-1]
	if size := last.Offset + last.Size; b.Struct.Span != size {
		return &compute.PipelineCompatibilityError{
			Slot:   slot,
			Reason: fmt.Sprintf("record span %d, host record is %d bytes", b.Struct.Span, size),
		}
	}
	return nil
}

func checkWorkgroupLimits(wg shader.Workgroup, limits gputypes.Limits) error {
	switch {
	case wg.X > limits.MaxComputeWorkgroupSizeX:
		return &compute.PipelineCompatibilityError{
			Slot:   -1,
			Reason: fmt.Sprintf("workgroup X %d exceeds device limit %d", wg.X, limits.MaxComputeWorkgroupSizeX),
		}
	case wg.Y > limits.MaxComputeWorkgroupSizeY:
		return &compute.PipelineCompatibilityError{
			Slot:   -1,
			Reason: fmt.Sprintf("workgroup Y %d exceeds device limit %d", wg.Y, limits.MaxComputeWorkgroupSizeY),
		}
	case uint64(wg.X)*uint64(wg.Y) > uint64(limits.MaxComputeInvocationsPerWorkgroup):
		return &compute.PipelineCompatibilityError{
			Slot:   -1,
			Reason: fmt.Sprintf("workgroup %s exceeds %d invocations", wg, limits.MaxComputeInvocationsPerWorkgroup),
		}
	}
	return nil
}

// checkGridLimits rejects a dispatch grid larger than the device allows.
func checkGridLimits(g compute.Grid, limits gputypes.Limits) error {
	m := limits.MaxComputeWorkgroupsPerDimension
	if g.X > m || g.Y > m || g.Z > m {
		return &compute.PipelineCompatibilityError{
			Slot:   -1,
			Reason: fmt.Sprintf("dispatch grid %s exceeds %d workgroups per dimension", g, m),
		}
	}
	return nil
}

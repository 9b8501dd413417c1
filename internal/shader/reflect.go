package shader

import (
	"fmt"
	"sort"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// Reflection is what the kernel source declares, as seen by naga.
type Reflection struct {
	EntryPoints []ReflectedEntryPoint
	Bindings    []ReflectedBinding
}

// ReflectedEntryPoint is a declared entry point.
type ReflectedEntryPoint struct {
	Name      string
	Compute   bool
	Workgroup [3]uint32
}

// ReflectedBinding is a resource global bound with @group/@binding.
type ReflectedBinding struct {
	Group    uint32
	Index    uint32
	Name     string
	Kind     SlotKind
	ReadOnly bool

	// Struct is the member layout for struct-typed bindings, nil otherwise.
	Struct *ReflectedStruct
}

// ReflectedStruct is a struct type's layout.
type ReflectedStruct struct {
	Name    string
	Span    uint32
	Members []Field
}

// Reflect parses, lowers and validates source, then collects its entry
// points and group resource bindings.
func Reflect(source string) (*Reflection, error) {
	if source == "" {
		return nil, ErrEmptySource
	}
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader: parse: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader: lower: %w", err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("shader: validate: %w", err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("shader: validate: %w", verrs[0])
	}

	r := &Reflection{}
	for _, ep := range module.EntryPoints {
		r.EntryPoints = append(r.EntryPoints, ReflectedEntryPoint{
			Name:      ep.Name,
			Compute:   ep.Stage == ir.StageCompute,
			Workgroup: ep.Workgroup,
		})
	}
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		b := ReflectedBinding{
			Group: gv.Binding.Group,
			Index: gv.Binding.Binding,
			Name:  gv.Name,
		}
		switch gv.Space {
		case ir.SpaceUniform:
			b.Kind = SlotUniform
			b.ReadOnly = true
		case ir.SpaceStorage:
			b.Kind = SlotStorage
			b.ReadOnly = gv.Access == ir.StorageRead
		default:
			// Textures and samplers are outside this contract.
			continue
		}
		b.Struct = reflectStruct(module, gv.Type)
		r.Bindings = append(r.Bindings, b)
	}
	sort.Slice(r.Bindings, func(i, j int) bool {
		if r.Bindings[i].Group != r.Bindings[j].Group {
			return r.Bindings[i].Group < r.Bindings[j].Group
		}
		return r.Bindings[i].Index < r.Bindings[j].Index
	})
	return r, nil
}

// EntryPoint returns the entry point called name.
func (r *Reflection) EntryPoint(name string) (ReflectedEntryPoint, bool) {
	for _, ep := range r.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return ReflectedEntryPoint{}, false
}

// Group returns the bindings declared in group g, ordered by index.
func (r *Reflection) Group(g uint32) []ReflectedBinding {
	var out []ReflectedBinding
	for _, b := range r.Bindings {
		if b.Group == g {
			out = append(out, b)
		}
	}
	return out
}

func reflectStruct(module *ir.Module, h ir.TypeHandle) *ReflectedStruct {
	if int(h) >= len(module.Types) {
		return nil
	}
	ty := module.Types[h]
	st, ok := ty.Inner.(ir.StructType)
	if !ok {
		return nil
	}
	rs := &ReflectedStruct{Name: ty.Name, Span: st.Span}
	for _, m := range st.Members {
		rs.Members = append(rs.Members, Field{
			Name:   m.Name,
			Offset: m.Offset,
			Size:   ir.TypeSize(module, m.Type),
			Scalar: scalarOf(module, m.Type),
		})
	}
	return rs
}

func scalarOf(module *ir.Module, h ir.TypeHandle) string {
	if int(h) >= len(module.Types) {
		return "?"
	}
	sc, ok := module.Types[h].Inner.(ir.ScalarType)
	if !ok {
		return "composite"
	}
	switch sc.Kind {
	case ir.ScalarUint:
		return fmt.Sprintf("u%d", int(sc.Width)*8)
	case ir.ScalarSint:
		return fmt.Sprintf("i%d", int(sc.Width)*8)
	case ir.ScalarFloat:
		return fmt.Sprintf("f%d", int(sc.Width)*8)
	case ir.ScalarBool:
		return "bool"
	default:
		return "abstract"
	}
}

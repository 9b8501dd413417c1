package shader

import (
	"reflect"
	"unsafe"

	"honnef.co/go/safeish"
)

// Params is the host copy of the kernel's uniform record. Field order,
// sizes and padding match the WGSL Params struct exactly; the wgsl tag names
// the corresponding WGSL member.
type Params struct {
	Width         uint32  `wgsl:"width"`
	Height        uint32  `wgsl:"height"`
	OriginRow     uint32  `wgsl:"origin_row"`
	ImageHeight   uint32  `wgsl:"image_height"`
	CenterX       float32 `wgsl:"center_x"`
	CenterY       float32 `wgsl:"center_y"`
	XRange        float32 `wgsl:"x_range"`
	YRange        float32 `wgsl:"y_range"`
	MaxIterations uint32  `wgsl:"max_iterations"`
	Pad0          uint32  `wgsl:"pad0"`
	Pad1          uint32  `wgsl:"pad1"`
	Pad2          uint32  `wgsl:"pad2"`
}

// ParamsSize is the size of the uploaded record in bytes.
const ParamsSize = uint64(unsafe.Sizeof(Params{}))

// Bytes returns a view of p's memory, suitable for a queue buffer write.
// The view aliases p.
func (p *Params) Bytes() []byte {
	return safeish.AsBytes(p)
}

// ParamsFromBytes interprets b as a parameter record without copying.
// It returns nil if b is too short.
func ParamsFromBytes(b []byte) *Params {
	if uint64(len(b)) < ParamsSize {
		return nil
	}
	return safeish.Cast[*Params](&b[0])
}

// Field is one member of a host record layout.
type Field struct {
	Name   string
	Offset uint32
	Size   uint32
	Scalar string
}

// ParamsLayout describes Params as the kernel sees it: one Field per member,
// in declaration order.
func ParamsLayout() []Field {
	t := reflect.TypeFor[Params]()
	fields := make([]Field, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		fields = append(fields, Field{
			Name:   f.Tag.Get("wgsl"),
			Offset: uint32(f.Offset),
			Size:   uint32(f.Type.Size()),
			Scalar: scalarName(f.Type.Kind()),
		})
	}
	return fields
}

func scalarName(k reflect.Kind) string {
	switch k {
	case reflect.Uint32:
		return "u32"
	case reflect.Int32:
		return "i32"
	case reflect.Float32:
		return "f32"
	case reflect.Bool:
		return "bool"
	default:
		return k.String()
	}
}

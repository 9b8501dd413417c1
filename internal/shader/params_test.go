package shader

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestParamsSize(t *testing.T) {
	if ParamsSize != 48 {
		t.Errorf("ParamsSize = %d, want 48", ParamsSize)
	}
	if ParamsSize%16 != 0 {
		t.Errorf("ParamsSize = %d is not a multiple of 16", ParamsSize)
	}
}

func TestParamsBytes(t *testing.T) {
	p := Params{
		Width:         1280,
		Height:        64,
		OriginRow:     128,
		ImageHeight:   1280,
		CenterX:       -0.65,
		CenterY:       0,
		XRange:        3.4,
		YRange:        3.4,
		MaxIterations: 1000,
	}
	b := p.Bytes()
	if uint64(len(b)) != ParamsSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), ParamsSize)
	}
	le := binary.LittleEndian
	checks := []struct {
		off  int
		want uint32
	}{
		{0, 1280},
		{4, 64},
		{8, 128},
		{12, 1280},
		{16, math.Float32bits(-0.65)},
		{24, math.Float32bits(3.4)},
		{32, 1000},
		{44, 0},
	}
	for _, c := range checks {
		if got := le.Uint32(b[c.off:]); got != c.want {
			t.Errorf("word at %d = 0x%08X, want 0x%08X", c.off, got, c.want)
		}
	}
}

func TestParamsFromBytes(t *testing.T) {
	p := Params{Width: 7, MaxIterations: 99}
	buf := make([]byte, ParamsSize)
	copy(buf, p.Bytes())
	got := ParamsFromBytes(buf)
	if got == nil || *got != p {
		t.Errorf("ParamsFromBytes = %+v, want %+v", got, p)
	}
	if ParamsFromBytes(buf[:8]) != nil {
		t.Error("ParamsFromBytes accepted a short buffer")
	}
}

func TestParamsLayoutOrder(t *testing.T) {
	fields := ParamsLayout()
	var off uint32
	for _, f := range fields {
		if f.Name == "" {
			t.Errorf("field at offset %d has no wgsl tag", f.Offset)
		}
		if f.Offset != off {
			t.Errorf("%s offset = %d, want %d", f.Name, f.Offset, off)
		}
		off += f.Size
	}
	if uint64(off) != ParamsSize {
		t.Errorf("fields cover %d bytes, want %d", off, ParamsSize)
	}
}

package corex86

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistersPowerOnState(t *testing.T) {
	r := NewRegisters()
	assert.Equal(t, uint32(0x2), r.Flags)
	assert.Equal(t, uint16(0), r.IP)
}

func TestGPR16WritePreservesUpperHalf(t *testing.T) {
	r := NewRegisters()
	r.SetGPR32(RegEAX, 0x12340000)
	r.SetGPR16(RegEAX, 0xBEEF)
	assert.Equal(t, uint32(0x1234BEEF), r.GPR32(RegEAX))
	assert.Equal(t, uint16(0xBEEF), r.GPR16(RegEAX))
}

func TestGPR8HighLowAliasing(t *testing.T) {
	r := NewRegisters()
	r.SetGPR16(RegEAX, 0x0000)
	r.SetGPR8(RegEAX, false, 0x11) // AL
	r.SetGPR8(RegEAX, true, 0x22)  // AH
	assert.Equal(t, uint16(0x2211), r.GPR16(RegEAX))
	assert.Equal(t, uint8(0x11), r.GPR8(RegEAX, false))
	assert.Equal(t, uint8(0x22), r.GPR8(RegEAX, true))
}

func TestSegmentRegisters(t *testing.T) {
	r := NewRegisters()
	r.SetSeg(SegCS, 0x07C0)
	r.IP = 0x0010
	assert.Equal(t, SegmentedAddress{Segment: 0x07C0, Offset: 0x0010}, r.CS())
}

func TestFlagAccessorsRoundTrip(t *testing.T) {
	r := NewRegisters()
	for _, f := range []struct {
		name string
		set  func(bool)
		get  func() bool
	}{
		{"CF", r.SetCF, r.CF},
		{"ZF", r.SetZF, r.ZF},
		{"SF", r.SetSF, r.SF},
		{"OF", r.SetOF, r.OF},
		{"PF", r.SetPF, r.PF},
		{"AF", r.SetAF, r.AF},
		{"DF", r.SetDF, r.DF},
		{"IF", r.SetIF, r.IF},
		{"TF", r.SetTF, r.TF},
	} {
		t.Run(f.name, func(t *testing.T) {
			f.set(true)
			assert.True(t, f.get())
			f.set(false)
			assert.False(t, f.get())
		})
	}
}

package corex86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMovRegImm16(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	mem.WriteU8(addr.Linear(), 0xB8)   // MOV AX, imm16
	mem.WriteU16(addr.Linear()+1, 0x1234)

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeMovRegImm, parsed.Shape)
	assert.Equal(t, RegEAX, parsed.Operands.RegIndex)
	assert.Equal(t, uint32(0x1234), parsed.Operands.Imm)
	assert.Equal(t, 2, parsed.Operands.Width)
}

func TestParseAluRmRegByte(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	mem.WriteU8(addr.Linear(), 0x00)   // ADD Eb, Gb
	mem.WriteU8(addr.Linear()+1, 0xD8) // modrm: mod=11 reg=3(BL) rm=0(AL)

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeAluRmReg, parsed.Shape)
	assert.Equal(t, 0, parsed.Operands.AluOp) // ADD
	require.NotNil(t, parsed.Operands.ModRM)
	assert.True(t, parsed.Operands.ModRM.IsRegister)
	assert.Equal(t, byte(3), parsed.Operands.ModRM.Reg)
	assert.Equal(t, byte(0), parsed.Operands.ModRM.RM)
}

func TestParseGrp1RmImmWithSignExtendedByte(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	mem.WriteU8(addr.Linear(), 0x83)   // Grp1 Ev, ib (sign-extended)
	mem.WriteU8(addr.Linear()+1, 0xF8) // modrm: mod=11 reg=7(CMP) rm=0
	mem.WriteU8(addr.Linear()+2, 0xFF) // imm8 = -1

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeGrp1RmImm, parsed.Shape)
	assert.Equal(t, 7, parsed.Operands.AluOp) // CMP
	assert.Equal(t, uint32(0xFFFFFFFF), parsed.Operands.Imm)
}

func TestParseModRMMemoryDisp8(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	mem.WriteU8(addr.Linear(), 0x8B)   // MOV Gv, Ev
	mem.WriteU8(addr.Linear()+1, 0x46) // mod=01 reg=0(AX) rm=6(BP+disp8)
	mem.WriteU8(addr.Linear()+2, 0x04) // disp8 = 4

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeMovRegRm, parsed.Shape)
	require.NotNil(t, parsed.Operands.ModRM)
	assert.False(t, parsed.Operands.ModRM.IsRegister)
	assert.True(t, parsed.Operands.ModRM.DispIsByte)
	assert.Equal(t, int32(4), parsed.Operands.ModRM.Disp)
}

func TestParseJmpShortRelDisplacement(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	mem.WriteU8(addr.Linear(), 0xEB)   // JMP short
	mem.WriteU8(addr.Linear()+1, 0xFE) // rel8 = -2 (infinite loop to self)

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeJmpShort, parsed.Shape)
	assert.Equal(t, int32(-2), parsed.Operands.Rel)
}

func TestParseSegmentOverridePrefix(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	mem.WriteU8(addr.Linear(), 0x2E)   // CS: override
	mem.WriteU8(addr.Linear()+1, 0x90) // NOP

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeNop, parsed.Shape)
	assert.Equal(t, SegCS, parsed.Operands.SegOverride)
}

func TestParseUnrecognisedOpcodeIsInvalidInstruction(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	mem.WriteU8(addr.Linear(), 0x0F) // two-byte escape
	mem.WriteU8(addr.Linear()+1, 0xFF) // no handler installed at this extended slot

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeInvalidInstruction, parsed.Shape)
	assert.NotEmpty(t, parsed.Fields) // opcode bytes are still recorded
}

func TestParseExcessivePrefixRunIsInvalid(t *testing.T) {
	mem := NewMemory()
	addr := SegmentedAddress{Offset: 0x100}
	for i := uint16(0); i < 16; i++ {
		mem.WriteU8(addr.Linear()+uint32(i), 0x66) // operand-size prefix repeated past the 15-byte bound
	}

	p := NewParser(mem)
	parsed := p.Parse(addr)
	assert.Equal(t, ShapeInvalidInstruction, parsed.Shape)
}

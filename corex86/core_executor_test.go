package corex86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	mem   *Memory
	regs  *Registers
	graph *Graph
	ex    *InstructionExecutor
}

func newTestRig(ioPorts IOPortBus) *testRig {
	mem := NewMemory()
	regs := NewRegisters()
	graph := newGraph()
	parser := NewParser(mem)
	feeder := NewInstructionsFeeder(mem, parser, graph)
	return &testRig{
		mem:   mem,
		regs:  regs,
		graph: graph,
		ex:    NewInstructionExecutor(mem, regs, feeder, ioPorts),
	}
}

func regDirectModRM(reg, rm byte) *ModRMInfo {
	return &ModRMInfo{Mod: 3, Reg: reg, RM: rm, IsRegister: true}
}

func (r *testRig) instAt(offset uint16, shape InstructionShape, length uint8, ops DecodedOperands) *CfgInstruction {
	parsed := ParsedInstruction{
		Shape: shape, Operands: ops,
		DispFieldIdx: -1, ImmFieldIdx: -1, RelFieldIdx: -1,
	}
	ref := r.graph.newInstructionNode(SegmentedAddress{Offset: offset}, parsed)
	inst := r.graph.Instruction(ref)
	inst.Length = length
	return inst
}

func TestExecuteMovRegImm(t *testing.T) {
	r := newTestRig(nil)
	inst := r.instAt(0x100, ShapeMovRegImm, 3, DecodedOperands{RegIndex: RegEAX, Width: 2, Imm: 0x1234})

	_, fault := r.ex.Execute(inst)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0x1234), r.regs.GPR16(RegEAX))
	assert.Equal(t, uint16(0x103), r.regs.IP)
}

func TestExecuteAluAddSetsFlags(t *testing.T) {
	r := newTestRig(nil)
	r.regs.SetGPR16(RegEAX, 0xFFFF)
	inst := r.instAt(0x100, ShapeAluAccImm, 3, DecodedOperands{Width: 2, AluOp: 0, Imm: 1}) // ADD AX, 1

	_, fault := r.ex.Execute(inst)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0), r.regs.GPR16(RegEAX))
	assert.True(t, r.regs.CF())
	assert.True(t, r.regs.ZF())
}

func TestExecuteAluCmpDiscardsResult(t *testing.T) {
	r := newTestRig(nil)
	r.regs.SetGPR16(RegEAX, 5)
	inst := r.instAt(0x100, ShapeAluAccImm, 3, DecodedOperands{Width: 2, AluOp: 7, Imm: 5, Discard: true}) // CMP AX, 5

	_, fault := r.ex.Execute(inst)
	require.Nil(t, fault)
	assert.Equal(t, uint16(5), r.regs.GPR16(RegEAX)) // unmodified
	assert.True(t, r.regs.ZF())
}

func TestExecutePushPopRoundTrip(t *testing.T) {
	r := newTestRig(nil)
	r.regs.SetGPR16(RegESP, 0x1000)
	r.regs.SetGPR16(RegEAX, 0xBEEF)

	push := r.instAt(0x100, ShapePushReg, 1, DecodedOperands{RegIndex: RegEAX, Width: 2})
	_, fault := r.ex.Execute(push)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0x0FFE), r.regs.GPR16(RegESP))

	pop := r.instAt(0x101, ShapePopReg, 1, DecodedOperands{RegIndex: RegEBX, Width: 2})
	_, fault = r.ex.Execute(pop)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0xBEEF), r.regs.GPR16(RegEBX))
	assert.Equal(t, uint16(0x1000), r.regs.GPR16(RegESP))
}

func TestExecuteJmpShortHintsNextNode(t *testing.T) {
	r := newTestRig(nil)
	r.mem.WriteU8(0x110, 0x90) // NOP at the jump target so the feeder can parse it
	jmp := r.instAt(0x100, ShapeJmpShort, 2, DecodedOperands{Rel: 0x0E}) // target = 0x102 + 0x0E = 0x110

	result, fault := r.ex.Execute(jmp)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0x110), r.regs.IP)
	require.True(t, result.NextIPHint.Valid())
	assert.Equal(t, SegmentedAddress{Offset: 0x110}, r.graph.Address(result.NextIPHint))
}

func TestExecuteJccTakenAndNotTaken(t *testing.T) {
	r := newTestRig(nil)
	r.mem.WriteU8(0x110, 0x90)
	r.regs.SetZF(true)
	jcc := r.instAt(0x100, ShapeJccShort, 2, DecodedOperands{RegIndex: 0x4, Rel: 0x0E}) // JE, ZF set => taken

	_, fault := r.ex.Execute(jcc)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0x110), r.regs.IP)

	r2 := newTestRig(nil)
	r2.regs.SetZF(false)
	jcc2 := r2.instAt(0x100, ShapeJccShort, 2, DecodedOperands{RegIndex: 0x4, Rel: 0x0E})
	_, fault = r2.ex.Execute(jcc2)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0x102), r2.regs.IP) // falls through
}

func TestExecuteHltSetsHalted(t *testing.T) {
	r := newTestRig(nil)
	hlt := r.instAt(0x100, ShapeHlt, 1, DecodedOperands{})
	_, fault := r.ex.Execute(hlt)
	require.Nil(t, fault)
	assert.True(t, r.ex.Halted)
}

func TestExecuteDivByZeroFaults(t *testing.T) {
	r := newTestRig(nil)
	r.regs.SetGPR16(RegEAX, 10)
	r.regs.SetGPR16(RegEDX, 0)
	r.regs.SetGPR16(RegEBX, 0)
	modrm := regDirectModRM(6, 3) // divisor is RM=EBX (reg field unused by DIV)
	div := r.instAt(0x100, ShapeGrp3Unary, 2, DecodedOperands{Width: 2, UnaryOp: 6, ModRM: modrm})

	_, fault := r.ex.Execute(div)
	require.NotNil(t, fault)
	assert.Equal(t, FaultDE, fault.Vector)
}

func TestExecuteInt3DispatchesContextSignal(t *testing.T) {
	r := newTestRig(nil)
	r.mem.WriteU16(3*4, 0x0050)   // IVT offset
	r.mem.WriteU16(3*4+2, 0xF000) // IVT segment
	r.regs.SetGPR16(RegESP, 0x1000)

	int3 := r.instAt(0x100, ShapeInt3, 1, DecodedOperands{})
	result, fault := r.ex.Execute(int3)
	require.Nil(t, fault)
	require.NotNil(t, result.NewContext)
	assert.Equal(t, SegmentedAddress{Segment: 0xF000, Offset: 0x0050}, result.NewContext.Entry)
	assert.Equal(t, uint16(0xF000), r.regs.Seg(SegCS))
	assert.Equal(t, uint16(0x0050), r.regs.IP)
}

// stubIOPortBus is a minimal IOPortBus recording the last access, used to
// verify IN/OUT wiring without a real device behind it.
type stubIOPortBus struct {
	lastOutPort uint16
	lastOutVal  uint32
	inByte      uint8
}

func (b *stubIOPortBus) InByte(port uint16) uint8    { return b.inByte }
func (b *stubIOPortBus) InWord(port uint16) uint16   { return uint16(b.inByte) }
func (b *stubIOPortBus) InDword(port uint16) uint32  { return uint32(b.inByte) }
func (b *stubIOPortBus) OutByte(port uint16, v uint8) {
	b.lastOutPort, b.lastOutVal = port, uint32(v)
}
func (b *stubIOPortBus) OutWord(port uint16, v uint16) {
	b.lastOutPort, b.lastOutVal = port, uint32(v)
}
func (b *stubIOPortBus) OutDword(port uint16, v uint32) {
	b.lastOutPort, b.lastOutVal = port, v
}

func TestExecuteInPortReadsFromBus(t *testing.T) {
	bus := &stubIOPortBus{inByte: 0x42}
	r := newTestRig(bus)
	in := r.instAt(0x100, ShapeInPort, 2, DecodedOperands{Width: 1, Imm: 0x60})

	_, fault := r.ex.Execute(in)
	require.Nil(t, fault)
	assert.Equal(t, uint8(0x42), r.regs.GPR8(RegEAX, false))
}

func TestExecuteOutPortWritesToBus(t *testing.T) {
	bus := &stubIOPortBus{}
	r := newTestRig(bus)
	r.regs.SetGPR8(RegEAX, false, 0x7A)
	out := r.instAt(0x100, ShapeOutPort, 2, DecodedOperands{Width: 1, Imm: 0x61})

	_, fault := r.ex.Execute(out)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0x61), bus.lastOutPort)
	assert.Equal(t, uint32(0x7A), bus.lastOutVal)
}

func TestExecuteOutPortFromDX(t *testing.T) {
	bus := &stubIOPortBus{}
	r := newTestRig(bus)
	r.regs.SetGPR16(RegEDX, 0x3F8)
	r.regs.SetGPR8(RegEAX, false, 0x55)
	out := r.instAt(0x100, ShapeOutPort, 1, DecodedOperands{Width: 1, PortFromDX: true})

	_, fault := r.ex.Execute(out)
	require.Nil(t, fault)
	assert.Equal(t, uint16(0x3F8), bus.lastOutPort)
}

func TestExecuteInOutNilBusIsZeroAndNoop(t *testing.T) {
	r := newTestRig(nil)
	r.regs.SetGPR8(RegEAX, false, 0xFF)
	in := r.instAt(0x100, ShapeInPort, 2, DecodedOperands{Width: 1, Imm: 0x60})
	_, fault := r.ex.Execute(in)
	require.Nil(t, fault)
	assert.Equal(t, uint8(0), r.regs.GPR8(RegEAX, false)) // reads 0 with no bus

	out := r.instAt(0x102, ShapeOutPort, 2, DecodedOperands{Width: 1, Imm: 0x61})
	_, fault = r.ex.Execute(out)
	require.Nil(t, fault) // OUT with no bus does nothing and does not fault
	assert.Equal(t, uint16(0x104), r.regs.IP)
}

// core_executor.go - InstructionExecutor: per-shape opcode semantics
//
// Grounded on cpu_x86_runner.go's fetch-decode-execute step and
// cpu_x86_ops.go's per-opcode method bodies, restructured as a single
// switch over the closed InstructionShape tag (spec.md §9 "visitor over a
// closed hierarchy") instead of one method per mnemonic dispatched through
// a func-pointer table, since execution (unlike parsing) does not need a
//256-entry jump table - the shape tag already is the dispatch key.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// ContextSignal is returned by the executor when an instruction (INT,
// INT3, or a fault conversion) creates a new nested execution context; the
// loop forwards it to the ExecutionContextManager (spec.md §4.E/§4.F).
type ContextSignal struct {
	Entry          SegmentedAddress
	ExpectedReturn SegmentedAddress
}

// ExecuteResult is what one executed instruction hands back to the loop
// (spec.md §4.F's "next_node hint").
type ExecuteResult struct {
	NextIPHint             NodeRef
	CanCauseContextRestore bool
	NewContext             *ContextSignal
}

// InstructionExecutor implements spec.md §4.F against live Memory and
// Registers, consulting the feeder only to resolve a next_node hint for
// branches with a statically known target.
type InstructionExecutor struct {
	mem     *Memory
	regs    *Registers
	feeder  *InstructionsFeeder
	ioPorts IOPortBus // nil: IN always reads 0, OUT is a no-op

	Halted bool
}

func NewInstructionExecutor(mem *Memory, regs *Registers, feeder *InstructionsFeeder, ioPorts IOPortBus) *InstructionExecutor {
	return &InstructionExecutor{mem: mem, regs: regs, feeder: feeder, ioPorts: ioPorts}
}

// Execute runs one instruction and reports the result. A non-nil
// CpuFault is converted into an interrupt by the caller (spec.md §4.G);
// nothing is rolled back, and the shapes that fault (DIV/IDIV, invalid
// opcodes) do so before writing any result. IP is left unmodified except
// where the shape's own comment says otherwise (REP interruption).
func (ex *InstructionExecutor) Execute(node *CfgInstruction) (ExecuteResult, *CpuFault) {
	ops := ex.liveOperands(node)
	addr := node.Address
	nextIP := addr.Add(uint16(node.Length))

	switch node.Shape {
	case ShapeNop:
		ex.regs.IP = nextIP.Offset

	case ShapeHlt:
		ex.Halted = true
		ex.regs.IP = nextIP.Offset

	case ShapeCli:
		ex.regs.SetIF(false)
		ex.regs.IP = nextIP.Offset
	case ShapeSti:
		ex.regs.SetIF(true)
		ex.regs.IP = nextIP.Offset
	case ShapeCld:
		ex.regs.SetDF(false)
		ex.regs.IP = nextIP.Offset
	case ShapeStd:
		ex.regs.SetDF(true)
		ex.regs.IP = nextIP.Offset

	case ShapeMovRegImm:
		ex.writeGPR(ops.RegIndex, ops.Width, ops.Imm)
		ex.regs.IP = nextIP.Offset
	case ShapeMovRmImm:
		ex.writeRM(ops.ModRM, ops.Width, ops.SegOverride, ops.Imm)
		ex.regs.IP = nextIP.Offset
	case ShapeMovRmReg:
		ex.writeRM(ops.ModRM, ops.Width, ops.SegOverride, ex.readReg(ops.ModRM, ops.Width))
		ex.regs.IP = nextIP.Offset
	case ShapeMovRegRm:
		ex.writeReg(ops.ModRM, ops.Width, ex.readRM(ops.ModRM, ops.Width, ops.SegOverride))
		ex.regs.IP = nextIP.Offset
	case ShapeMovSegRm:
		ex.execMovSeg(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeLea:
		ex.writeReg(ops.ModRM, ops.Width, uint32(ex.effectiveAddress(ops.ModRM, ops.SegOverride).Offset))
		ex.regs.IP = nextIP.Offset
	case ShapeMovAccMoffs:
		ex.execMovAccMoffs(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeXchgAccReg:
		a := ex.readGPR(RegEAX, operandWidth(ops.OperandSize32))
		b := ex.readGPR(ops.RegIndex, operandWidth(ops.OperandSize32))
		ex.writeGPR(RegEAX, operandWidth(ops.OperandSize32), b)
		ex.writeGPR(ops.RegIndex, operandWidth(ops.OperandSize32), a)
		ex.regs.IP = nextIP.Offset

	case ShapePushReg:
		ex.push(ops.Width, ex.readGPR(ops.RegIndex, ops.Width))
		ex.regs.IP = nextIP.Offset
	case ShapePopReg:
		ex.writeGPR(ops.RegIndex, ops.Width, ex.pop(ops.Width))
		ex.regs.IP = nextIP.Offset
	case ShapePushImm:
		ex.push(ops.Width, ops.Imm)
		ex.regs.IP = nextIP.Offset
	case ShapePushSeg:
		ex.push(2, uint32(ex.regs.Seg(ops.SegIndex)))
		ex.regs.IP = nextIP.Offset
	case ShapePopSeg:
		ex.regs.SetSeg(ops.SegIndex, uint16(ex.pop(2)))
		ex.regs.IP = nextIP.Offset

	case ShapeAluRmReg:
		ex.execAluRmReg(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeAluRegRm:
		ex.execAluRegRm(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeAluAccImm:
		ex.execAluAccImm(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeGrp1RmImm:
		ex.execGrp1RmImm(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeGrp2Shift:
		ex.execGrp2Shift(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeGrp3Unary:
		if f := ex.execGrp3Unary(&ops); f != nil {
			return ExecuteResult{NextIPHint: NoNode}, f
		}
		ex.regs.IP = nextIP.Offset
	case ShapeIncDecReg:
		ex.execIncDecReg(&ops)
		ex.regs.IP = nextIP.Offset
	case ShapeIncDecRm:
		ex.execIncDecRm(&ops)
		ex.regs.IP = nextIP.Offset

	case ShapeJmpShort, ShapeJmpNear:
		target := SegmentedAddress{Segment: addr.Segment, Offset: uint16(int32(nextIP.Offset) + ops.Rel)}
		ex.regs.IP = target.Offset
		return ex.hintedResult(target), nil
	case ShapeJmpFar:
		ex.regs.SetSeg(SegCS, ops.CallFarTarget.Segment)
		ex.regs.IP = ops.CallFarTarget.Offset
		return ex.hintedResult(ops.CallFarTarget), nil
	case ShapeJccShort, ShapeJccNear:
		if ex.evalCondition(ops.RegIndex) {
			target := SegmentedAddress{Segment: addr.Segment, Offset: uint16(int32(nextIP.Offset) + ops.Rel)}
			ex.regs.IP = target.Offset
			return ex.hintedResult(target), nil
		}
		ex.regs.IP = nextIP.Offset
	case ShapeLoop:
		return ex.execLoop(&ops, addr, nextIP), nil

	case ShapeCallNear:
		ex.push(operandWidth(ops.OperandSize32), uint32(nextIP.Offset))
		target := SegmentedAddress{Segment: addr.Segment, Offset: uint16(int32(nextIP.Offset) + ops.Rel)}
		ex.regs.IP = target.Offset
		return ex.hintedResult(target), nil
	case ShapeCallFar:
		ex.push(2, uint32(ex.regs.Seg(SegCS)))
		ex.push(2, uint32(nextIP.Offset))
		ex.regs.SetSeg(SegCS, ops.CallFarTarget.Segment)
		ex.regs.IP = ops.CallFarTarget.Offset
		return ex.hintedResult(ops.CallFarTarget), nil
	case ShapeRetNear:
		ex.regs.IP = uint16(ex.pop(2))
	case ShapeRetNearImm:
		ex.regs.IP = uint16(ex.pop(2))
		ex.regs.SetGPR16(RegESP, ex.regs.GPR16(RegESP)+uint16(ops.Imm))
	case ShapeRetFar:
		ex.regs.IP = uint16(ex.pop(2))
		ex.regs.SetSeg(SegCS, uint16(ex.pop(2)))
		if ops.Imm != 0 {
			ex.regs.SetGPR16(RegESP, ex.regs.GPR16(RegESP)+uint16(ops.Imm))
		}

	case ShapeInt3:
		ex.regs.IP = nextIP.Offset
		return ex.dispatchInterrupt(3, nextIP)
	case ShapeIntImm8:
		ex.regs.IP = nextIP.Offset
		return ex.dispatchInterrupt(uint8(ops.Imm), nextIP)
	case ShapeIret:
		ex.regs.IP = uint16(ex.pop(2))
		ex.regs.SetSeg(SegCS, uint16(ex.pop(2)))
		ex.regs.Flags = (ex.regs.Flags &^ 0xFFFF) | uint32(ex.pop(2))
		return ExecuteResult{NextIPHint: NoNode, CanCauseContextRestore: true}, nil

	case ShapeStringMovs:
		ex.regs.IP = ex.stringNextIP(ex.execStringMovs(&ops), addr, nextIP)
	case ShapeStringStos:
		ex.regs.IP = ex.stringNextIP(ex.execStringStos(&ops), addr, nextIP)
	case ShapeStringLods:
		ex.regs.IP = ex.stringNextIP(ex.execStringLods(&ops), addr, nextIP)
	case ShapeStringScas:
		ex.regs.IP = ex.stringNextIP(ex.execStringScas(&ops), addr, nextIP)
	case ShapeStringCmps:
		ex.regs.IP = ex.stringNextIP(ex.execStringCmps(&ops), addr, nextIP)

	case ShapeInPort:
		ex.writeGPR(RegEAX, ops.Width, ex.execIn(&ops))
		ex.regs.IP = nextIP.Offset
	case ShapeOutPort:
		ex.execOut(&ops, ex.readGPR(RegEAX, ops.Width))
		ex.regs.IP = nextIP.Offset

	case ShapeInvalidInstruction, ShapeInvalid:
		return ExecuteResult{NextIPHint: NoNode}, newFault(FaultUD, "invalid opcode")

	default:
		return ExecuteResult{NextIPHint: NoNode}, newFault(FaultUD, "unimplemented shape")
	}
	return ExecuteResult{NextIPHint: NoNode}, nil
}

// liveOperands returns node's operands with any non-final field re-read off
// live memory in place of the value captured when the node was parsed. A
// cached node's ModR/M displacement, immediate, or branch offset can be
// silently self-modified without invalidating the node at all (invariant I4
// only checks the final/opcode bytes), so those three slots must never be
// trusted from the parse-time snapshot (spec.md §3 "use_value", §4.B step
// 4, worked example S3).
func (ex *InstructionExecutor) liveOperands(node *CfgInstruction) DecodedOperands {
	ops := node.Operands

	if idx := node.immFieldIdx; idx >= 0 {
		if f := node.Fields[idx]; !f.UseValue() {
			bits := f.LiveBitsLE(ex.mem)
			if node.immSigned {
				ops.Imm = signExtendToU32(bits, f.LengthBytes())
			} else {
				ops.Imm = bits
			}
		}
	}
	if idx := node.relFieldIdx; idx >= 0 {
		if f := node.Fields[idx]; !f.UseValue() {
			ops.Rel = int32(signExtendToU32(f.LiveBitsLE(ex.mem), f.LengthBytes()))
		}
	}
	if idx := node.dispFieldIdx; idx >= 0 && ops.ModRM != nil {
		if f := node.Fields[idx]; !f.UseValue() {
			bits := f.LiveBitsLE(ex.mem)
			width := f.LengthBytes()
			modrm := *ops.ModRM
			if width == 1 {
				modrm.Disp = int32(int8(bits))
			} else {
				modrm.Disp = int32(int16(bits))
			}
			ops.ModRM = &modrm
		}
	}
	return ops
}

// stringNextIP implements the REP-interruption rule of spec.md §4.F: while
// more iterations remain, IP stays on the instruction itself so the next
// step re-enters it (and so an interrupt dispatched meanwhile resumes
// here); once exhausted, IP advances past it.
func (ex *InstructionExecutor) stringNextIP(repeat bool, addr, nextIP SegmentedAddress) uint16 {
	if repeat {
		return addr.Offset
	}
	return nextIP.Offset
}

// hintedResult resolves the next_node hint for a branch with a statically
// known target, per spec.md §4.F.
func (ex *InstructionExecutor) hintedResult(target SegmentedAddress) ExecuteResult {
	return ExecuteResult{NextIPHint: ex.feeder.GetOrParse(target)}
}

func (ex *InstructionExecutor) execLoop(ops *DecodedOperands, addr, nextIP SegmentedAddress) ExecuteResult {
	cx := ex.regs.GPR16(RegECX)
	take := false
	switch ops.AluOp {
	case 0: // LOOP
		cx--
		ex.regs.SetGPR16(RegECX, cx)
		take = cx != 0
	case 1: // LOOPE/LOOPZ
		cx--
		ex.regs.SetGPR16(RegECX, cx)
		take = cx != 0 && ex.regs.ZF()
	case 2: // LOOPNE/LOOPNZ
		cx--
		ex.regs.SetGPR16(RegECX, cx)
		take = cx != 0 && !ex.regs.ZF()
	default: // JCXZ
		take = cx == 0
	}
	if take {
		target := SegmentedAddress{Segment: addr.Segment, Offset: uint16(int32(nextIP.Offset) + ops.Rel)}
		ex.regs.IP = target.Offset
		return ex.hintedResult(target)
	}
	ex.regs.IP = nextIP.Offset
	return ExecuteResult{NextIPHint: NoNode}
}

// evalCondition decodes the 4-bit Jcc condition code (0-15: O,NO,B,NB,E,NE,
// BE,NBE,S,NS,P,NP,L,NL,LE,NLE) against live flags.
func (ex *InstructionExecutor) evalCondition(cc int) bool {
	switch cc {
	case 0x0:
		return ex.regs.OF()
	case 0x1:
		return !ex.regs.OF()
	case 0x2:
		return ex.regs.CF()
	case 0x3:
		return !ex.regs.CF()
	case 0x4:
		return ex.regs.ZF()
	case 0x5:
		return !ex.regs.ZF()
	case 0x6:
		return ex.regs.CF() || ex.regs.ZF()
	case 0x7:
		return !ex.regs.CF() && !ex.regs.ZF()
	case 0x8:
		return ex.regs.SF()
	case 0x9:
		return !ex.regs.SF()
	case 0xA:
		return ex.regs.PF()
	case 0xB:
		return !ex.regs.PF()
	case 0xC:
		return ex.regs.SF() != ex.regs.OF()
	case 0xD:
		return ex.regs.SF() == ex.regs.OF()
	case 0xE:
		return ex.regs.ZF() || ex.regs.SF() != ex.regs.OF()
	default:
		return !ex.regs.ZF() && ex.regs.SF() == ex.regs.OF()
	}
}

// execMovSeg handles both 0x8C (MOV rm, Sreg) and 0x8E (MOV Sreg, rm),
// distinguished by opcode since both parse to ShapeMovSegRm.
func (ex *InstructionExecutor) execMovSeg(ops *DecodedOperands) {
	if ops.Opcode == 0x8E {
		ex.regs.SetSeg(ops.SegIndex, uint16(ex.readRM(ops.ModRM, 2, ops.SegOverride)))
	} else {
		ex.writeRM(ops.ModRM, 2, ops.SegOverride, uint32(ex.regs.Seg(ops.SegIndex)))
	}
}

func (ex *InstructionExecutor) execMovAccMoffs(ops *DecodedOperands) {
	seg := ex.regs.Seg(SegDS)
	if ops.SegOverride >= 0 {
		seg = ex.regs.Seg(ops.SegOverride)
	}
	linear := SegmentedAddress{Segment: seg, Offset: uint16(ops.Imm)}.Linear()
	if ops.Discard {
		ex.writeMem(linear, ops.Width, ex.readGPR(RegEAX, ops.Width))
	} else {
		ex.writeGPR(RegEAX, ops.Width, ex.readMem(linear, ops.Width))
	}
}

// push/pop implement spec.md §4.F's stack service: 16-bit SP tracks the
// top of stack (real-mode stack segment), adjusted by the operand width.
func (ex *InstructionExecutor) push(width int, v uint32) {
	sp := ex.regs.GPR16(RegESP) - uint16(width)
	ex.regs.SetGPR16(RegESP, sp)
	addr := SegmentedAddress{Segment: ex.regs.Seg(SegSS), Offset: sp}
	ex.writeMem(addr.Linear(), width, v)
}

func (ex *InstructionExecutor) pop(width int) uint32 {
	sp := ex.regs.GPR16(RegESP)
	addr := SegmentedAddress{Segment: ex.regs.Seg(SegSS), Offset: sp}
	v := ex.readMem(addr.Linear(), width)
	ex.regs.SetGPR16(RegESP, sp+uint16(width))
	return v
}

// portNumber resolves an IN/OUT's port operand: DX when PortFromDX, else
// the fetched immediate byte.
func (ex *InstructionExecutor) portNumber(ops *DecodedOperands) uint16 {
	if ops.PortFromDX {
		return ex.regs.GPR16(RegEDX)
	}
	return uint16(ops.Imm)
}

func (ex *InstructionExecutor) execIn(ops *DecodedOperands) uint32 {
	if ex.ioPorts == nil {
		return 0
	}
	port := ex.portNumber(ops)
	switch ops.Width {
	case 1:
		return uint32(ex.ioPorts.InByte(port))
	case 2:
		return uint32(ex.ioPorts.InWord(port))
	default:
		return ex.ioPorts.InDword(port)
	}
}

func (ex *InstructionExecutor) execOut(ops *DecodedOperands, v uint32) {
	if ex.ioPorts == nil {
		return
	}
	port := ex.portNumber(ops)
	switch ops.Width {
	case 1:
		ex.ioPorts.OutByte(port, uint8(v))
	case 2:
		ex.ioPorts.OutWord(port, uint16(v))
	default:
		ex.ioPorts.OutDword(port, v)
	}
}

// dispatchInterrupt implements spec.md §4.F's interrupt dispatch: reads
// the 4-byte IVT entry, pushes FLAGS/CS/IP, clears IF/TF, loads the new
// CS:IP, and reports the context signal for the loop to apply (S6).
func (ex *InstructionExecutor) dispatchInterrupt(vector uint8, returnAddr SegmentedAddress) (ExecuteResult, *CpuFault) {
	ivt := uint32(vector) * 4
	offset := ex.mem.ReadU16(ivt)
	seg := ex.mem.ReadU16(ivt + 2)

	ex.push(2, ex.regs.Flags&0xFFFF)
	ex.regs.SetTF(false)
	ex.regs.SetIF(false)
	ex.push(2, uint32(ex.regs.Seg(SegCS)))
	ex.push(2, uint32(ex.regs.IP))

	target := SegmentedAddress{Segment: seg, Offset: offset}
	ex.regs.SetSeg(SegCS, seg)
	ex.regs.IP = offset

	return ExecuteResult{NextIPHint: NoNode, NewContext: &ContextSignal{Entry: target, ExpectedReturn: returnAddr}}, nil
}

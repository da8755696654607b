// core_executor_modrm.go - ModR/M effective-address and register access
//
// Grounded on cpu_x86_ops.go's readRM8/16/32, writeRM8/16/32, getReg8/16/32
// family, here taking the register-independent ModRMInfo parsed ahead of
// time (core_parser_modrm.go) and resolving it against live registers at
// execute time, per spec.md §4.F's "ModR/M computer".
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// segmentFor resolves which segment register governs a memory operand:
// the override prefix if present, else the ModR/M addressing mode's
// implied default (SS for BP-relative forms, DS otherwise).
func (ex *InstructionExecutor) segmentFor(m *ModRMInfo, override int) uint16 {
	if override >= 0 {
		return ex.regs.Seg(override)
	}
	if m.usesStackSegmentDefault() {
		return ex.regs.Seg(SegSS)
	}
	return ex.regs.Seg(SegDS)
}

// effectiveAddress computes the SegmentedAddress a memory ModR/M operand
// names.
func (ex *InstructionExecutor) effectiveAddress(m *ModRMInfo, override int) SegmentedAddress {
	return SegmentedAddress{Segment: ex.segmentFor(m, override), Offset: m.effectiveOffset(ex.regs)}
}

// readRM reads the r/m operand at the given width, honouring mod==3
// (register) vs memory forms.
func (ex *InstructionExecutor) readRM(m *ModRMInfo, width int, override int) uint32 {
	if m.IsRegister {
		return ex.readGPR(int(m.RM), width)
	}
	linear := ex.effectiveAddress(m, override).Linear()
	return ex.readMem(linear, width)
}

func (ex *InstructionExecutor) writeRM(m *ModRMInfo, width int, override int, v uint32) {
	if m.IsRegister {
		ex.writeGPR(int(m.RM), width, v)
		return
	}
	linear := ex.effectiveAddress(m, override).Linear()
	ex.writeMem(linear, width, v)
}

// readReg/writeReg access the ModR/M "reg" field as a general register at
// the given width.
func (ex *InstructionExecutor) readReg(m *ModRMInfo, width int) uint32 {
	return ex.readGPR(int(m.Reg), width)
}

func (ex *InstructionExecutor) writeReg(m *ModRMInfo, width int, v uint32) {
	ex.writeGPR(int(m.Reg), width, v)
}

// readGPR/writeGPR implement the byte/word/dword register-index scheme of
// spec.md §4.A: for width==1, index encodes AL/CL/DL/BL/AH/CH/DH/BH via the
// low two bits plus a high-half bit at index>=4.
func (ex *InstructionExecutor) readGPR(index, width int) uint32 {
	switch width {
	case 1:
		return uint32(ex.regs.GPR8(index&3, index >= 4))
	case 2:
		return uint32(ex.regs.GPR16(index))
	default:
		return ex.regs.GPR32(index)
	}
}

func (ex *InstructionExecutor) writeGPR(index, width int, v uint32) {
	switch width {
	case 1:
		ex.regs.SetGPR8(index&3, index >= 4, uint8(v))
	case 2:
		ex.regs.SetGPR16(index, uint16(v))
	default:
		ex.regs.SetGPR32(index, v)
	}
}

func (ex *InstructionExecutor) readMem(linear uint32, width int) uint32 {
	switch width {
	case 1:
		return uint32(ex.mem.ReadU8(linear))
	case 2:
		return uint32(ex.mem.ReadU16(linear))
	default:
		return ex.mem.ReadU32(linear)
	}
}

func (ex *InstructionExecutor) writeMem(linear uint32, width int, v uint32) {
	switch width {
	case 1:
		ex.mem.WriteU8(linear, uint8(v))
	case 2:
		ex.mem.WriteU16(linear, uint16(v))
	default:
		ex.mem.WriteU32(linear, v)
	}
}

// signExtend widens a width-byte value read from readGPR/readMem (which
// zero-extend into uint32) to a signed int64, used by IMUL/IDIV.
func signExtend(v uint32, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	default:
		return int64(int32(v))
	}
}

func widthMax(width int) uint32 {
	switch width {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

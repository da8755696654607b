// core_executor_string.go - MOVS/STOS/LODS/SCAS/CMPS and REP iteration
//
// Grounded on cpu_x86_ops.go's string-instruction bodies; the REP/REPE/
// REPNE loop itself is new relative to the teacher (which runs the whole
// repetition inside one host call) because spec.md §4.F requires the loop
// to be able to interrupt a REP between iterations, leaving IP pointing
// at the same instruction so the next step resumes it (S-series edge
// case). One call to Execute performs exactly one iteration when a REP
// prefix is present; the loop naturally provides the "between iterations"
// interrupt check by re-entering per step.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// stringStep returns +width or -width (as uint16 two's complement) per DF.
func (ex *InstructionExecutor) stringStep(width int) uint16 {
	if ex.regs.DF() {
		return uint16(-int16(width))
	}
	return uint16(width)
}

// repContinue decides, after one iteration, whether the next step should
// re-enter the same instruction (REP not yet finished) or fall through.
// scasOrCmps carries the post-iteration ZF-gated REPE/REPNE rule; it is
// false for MOVS/STOS/LODS, which only ever gate on CX.
func (ex *InstructionExecutor) repContinue(ops *DecodedOperands, cx uint16, scasOrCmps bool) bool {
	if ops.RepPrefix == 0 {
		return false
	}
	if cx == 0 {
		return false
	}
	if scasOrCmps {
		switch ops.RepPrefix {
		case 1: // REPE/REPZ: continue while equal
			return ex.regs.ZF()
		case 2: // REPNE/REPNZ: continue while not equal
			return !ex.regs.ZF()
		}
	}
	return true
}

// advanceRep is shared by all five string shapes: decrements CX (when a
// REP prefix is present) and reports whether the instruction has more
// iterations to run.
func (ex *InstructionExecutor) advanceRep(ops *DecodedOperands, scasOrCmps bool) bool {
	if ops.RepPrefix == 0 {
		return false
	}
	cx := ex.regs.GPR16(RegECX) - 1
	ex.regs.SetGPR16(RegECX, cx)
	return ex.repContinue(ops, cx, scasOrCmps)
}

func (ex *InstructionExecutor) stringSourceSeg(ops *DecodedOperands) uint16 {
	if ops.SegOverride >= 0 {
		return ex.regs.Seg(ops.SegOverride)
	}
	return ex.regs.Seg(SegDS)
}

// Each exec* below returns true when the REP prefix leaves more iterations
// to run (the loop should re-enter this same instruction next step).

func (ex *InstructionExecutor) execStringMovs(ops *DecodedOperands) bool {
	if ops.RepPrefix != 0 && ex.regs.GPR16(RegECX) == 0 {
		return false
	}
	si, di := ex.regs.GPR16(RegESI), ex.regs.GPR16(RegEDI)
	src := SegmentedAddress{Segment: ex.stringSourceSeg(ops), Offset: si}
	dst := SegmentedAddress{Segment: ex.regs.Seg(SegES), Offset: di}
	ex.writeMem(dst.Linear(), ops.Width, ex.readMem(src.Linear(), ops.Width))

	step := ex.stringStep(ops.Width)
	ex.regs.SetGPR16(RegESI, si+step)
	ex.regs.SetGPR16(RegEDI, di+step)
	return ex.advanceRep(ops, false)
}

func (ex *InstructionExecutor) execStringStos(ops *DecodedOperands) bool {
	if ops.RepPrefix != 0 && ex.regs.GPR16(RegECX) == 0 {
		return false
	}
	di := ex.regs.GPR16(RegEDI)
	dst := SegmentedAddress{Segment: ex.regs.Seg(SegES), Offset: di}
	ex.writeMem(dst.Linear(), ops.Width, ex.readGPR(RegEAX, ops.Width))

	step := ex.stringStep(ops.Width)
	ex.regs.SetGPR16(RegEDI, di+step)
	return ex.advanceRep(ops, false)
}

func (ex *InstructionExecutor) execStringLods(ops *DecodedOperands) bool {
	if ops.RepPrefix != 0 && ex.regs.GPR16(RegECX) == 0 {
		return false
	}
	si := ex.regs.GPR16(RegESI)
	src := SegmentedAddress{Segment: ex.stringSourceSeg(ops), Offset: si}
	ex.writeGPR(RegEAX, ops.Width, ex.readMem(src.Linear(), ops.Width))

	step := ex.stringStep(ops.Width)
	ex.regs.SetGPR16(RegESI, si+step)
	return ex.advanceRep(ops, false)
}

func (ex *InstructionExecutor) execStringScas(ops *DecodedOperands) bool {
	if ops.RepPrefix != 0 && ex.regs.GPR16(RegECX) == 0 {
		return false
	}
	di := ex.regs.GPR16(RegEDI)
	dst := SegmentedAddress{Segment: ex.regs.Seg(SegES), Offset: di}
	acc := ex.readGPR(RegEAX, ops.Width)
	ex.aluCompute(7, ops.Width, acc, ex.readMem(dst.Linear(), ops.Width)) // CMP, discard

	step := ex.stringStep(ops.Width)
	ex.regs.SetGPR16(RegEDI, di+step)
	return ex.advanceRep(ops, true)
}

func (ex *InstructionExecutor) execStringCmps(ops *DecodedOperands) bool {
	if ops.RepPrefix != 0 && ex.regs.GPR16(RegECX) == 0 {
		return false
	}
	si, di := ex.regs.GPR16(RegESI), ex.regs.GPR16(RegEDI)
	src := SegmentedAddress{Segment: ex.stringSourceSeg(ops), Offset: si}
	dst := SegmentedAddress{Segment: ex.regs.Seg(SegES), Offset: di}
	ex.aluCompute(7, ops.Width, ex.readMem(src.Linear(), ops.Width), ex.readMem(dst.Linear(), ops.Width))

	step := ex.stringStep(ops.Width)
	ex.regs.SetGPR16(RegESI, si+step)
	ex.regs.SetGPR16(RegEDI, di+step)
	return ex.advanceRep(ops, true)
}

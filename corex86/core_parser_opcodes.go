// core_parser_opcodes.go - per-opcode parse builders
//
// Mirrors cpu_x86.go's initBaseOps/initExtendedOps table-population style
// (func-pointer array, +r register loops with a captured local index).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

func (p *Parser) initBaseBuilders() {
	b := &p.base

	// 0x00-0x3D: ALU op blocks (ADD,OR,ADC,SBB,AND,SUB,XOR,CMP), six
	// variants each (Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev / AL,ib / eAX,iz).
	for op := 0; op < 8; op++ {
		aluOp := op
		base := uint8(op * 8)
		b[base+0] = buildAluRmReg(aluOp, 1)
		b[base+1] = buildAluRmReg(aluOp, 0) // width resolved at parse time below
		b[base+2] = buildAluRegRm(aluOp, 1)
		b[base+3] = buildAluRegRm(aluOp, 0)
		b[base+4] = buildAluAccImm(aluOp, 1)
		b[base+5] = buildAluAccImm(aluOp, 0)
	}

	b[0x06] = buildPushSeg(SegES)
	b[0x07] = buildPopSeg(SegES)
	b[0x0E] = buildPushSeg(SegCS)
	b[0x16] = buildPushSeg(SegSS)
	b[0x17] = buildPopSeg(SegSS)
	b[0x1E] = buildPushSeg(SegDS)
	b[0x1F] = buildPopSeg(SegDS)

	b[0x84] = buildTestRmReg(1)
	b[0x85] = buildTestRmReg(0)
	b[0xA8] = buildTestAccImm(1)
	b[0xA9] = buildTestAccImm(0)

	b[0x86] = buildXchgRmReg(1)
	b[0x87] = buildXchgRmReg(0)
	for i := 0; i < 8; i++ {
		idx := i
		b[0x91+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = idx
			return ShapeXchgAccReg
		}
	}
	_ = b[0x90] // 0x90 is NOP == XCHG AX,AX; handled below with its own builder.
	b[0x90] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeNop }

	b[0x88] = buildMovRmReg(1)
	b[0x89] = buildMovRmReg(0)
	b[0x8A] = buildMovRegRm(1)
	b[0x8B] = buildMovRegRm(0)
	b[0x8C] = buildMovSegRm(true)
	b[0x8D] = buildLea
	b[0x8E] = buildMovSegRm(false)

	b[0xA0] = buildMovAccMoffs(1, false)
	b[0xA1] = buildMovAccMoffs(0, false)
	b[0xA2] = buildMovAccMoffs(1, true)
	b[0xA3] = buildMovAccMoffs(0, true)

	for i := 0; i < 8; i++ {
		idx := i
		b[0xB0+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = idx
			ops.Width = 1
			ops.Imm = c.fetchImm(1)
			return ShapeMovRegImm
		}
	}
	for i := 0; i < 8; i++ {
		idx := i
		b[0xB8+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = idx
			ops.Width = operandWidth(ops.OperandSize32)
			ops.Imm = c.fetchImm(ops.Width)
			return ShapeMovRegImm
		}
	}
	b[0xC6] = buildMovRmImm(1)
	b[0xC7] = buildMovRmImm(0)

	for i := 0; i < 8; i++ {
		idx := i
		b[0x40+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = idx
			ops.Width = operandWidth(ops.OperandSize32)
			return ShapeIncDecReg
		}
		b[0x48+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = idx
			ops.Width = operandWidth(ops.OperandSize32)
			ops.AluOp = 1 // 1 = DEC, 0 = INC, see core_executor.go
			return ShapeIncDecReg
		}
	}
	b[0xFE] = buildGrpIncDecRm(1)
	b[0xFF] = buildGrpIncDecRm(0)

	for i := 0; i < 8; i++ {
		idx := i
		b[0x50+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = idx
			ops.Width = operandWidth(ops.OperandSize32)
			return ShapePushReg
		}
		b[0x58+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = idx
			ops.Width = operandWidth(ops.OperandSize32)
			return ShapePopReg
		}
	}
	b[0x68] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = operandWidth(ops.OperandSize32)
		ops.Imm = c.fetchImm(ops.Width)
		return ShapePushImm
	}
	b[0x6A] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = operandWidth(ops.OperandSize32)
		ops.Imm = c.fetchImmSignExtended8()
		return ShapePushImm
	}

	b[0x80] = buildGrp1(1, false)
	b[0x81] = buildGrp1(0, false)
	b[0x83] = buildGrp1(0, true)

	b[0xC0] = buildGrp2Imm(1)
	b[0xC1] = buildGrp2Imm(0)
	b[0xD0] = buildGrp2One(1)
	b[0xD1] = buildGrp2One(0)
	b[0xD2] = buildGrp2Cl(1)
	b[0xD3] = buildGrp2Cl(0)

	b[0xF6] = buildGrp3(1)
	b[0xF7] = buildGrp3(0)

	b[0xE8] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Rel = c.fetchRel(operandWidth(ops.OperandSize32))
		return ShapeCallNear
	}
	b[0x9A] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		off := c.fetch16(false)
		seg := c.fetch16(false)
		ops.CallFarTarget = SegmentedAddress{Segment: seg, Offset: off}
		return ShapeCallFar
	}
	b[0xE9] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Rel = c.fetchRel(operandWidth(ops.OperandSize32))
		return ShapeJmpNear
	}
	b[0xEA] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		off := c.fetch16(false)
		seg := c.fetch16(false)
		ops.CallFarTarget = SegmentedAddress{Segment: seg, Offset: off}
		return ShapeJmpFar
	}
	b[0xEB] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Rel = c.fetchRel(1)
		return ShapeJmpShort
	}
	b[0xC2] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Imm = c.fetchImm(2)
		return ShapeRetNearImm
	}
	b[0xC3] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeRetNear }
	b[0xCA] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Imm = c.fetchImm(2)
		return ShapeRetFar
	}
	b[0xCB] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeRetFar }

	b[0xCC] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeInt3 }
	b[0xCD] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Imm = uint32(c.fetch8(true))
		return ShapeIntImm8
	}
	b[0xCF] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeIret }

	for i := 0; i < 16; i++ {
		cc := i
		b[0x70+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = cc
			ops.Rel = c.fetchRel(1)
			return ShapeJccShort
		}
	}

	b[0xE0] = buildLoop(2) // LOOPNE
	b[0xE1] = buildLoop(1) // LOOPE
	b[0xE2] = buildLoop(0) // LOOP
	b[0xE3] = buildLoop(3) // JCXZ

	b[0xE4] = buildInImm(1) // IN AL, imm8
	b[0xE5] = buildInImm(0) // IN eAX, imm8
	b[0xE6] = buildOutImm(1) // OUT imm8, AL
	b[0xE7] = buildOutImm(0) // OUT imm8, eAX
	b[0xEC] = buildInDx(1)  // IN AL, DX
	b[0xED] = buildInDx(0)  // IN eAX, DX
	b[0xEE] = buildOutDx(1) // OUT DX, AL
	b[0xEF] = buildOutDx(0) // OUT DX, eAX

	b[0xF4] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeHlt }
	b[0xFA] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeCli }
	b[0xFB] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeSti }
	b[0xFC] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeCld }
	b[0xFD] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { return ShapeStd }

	b[0xA4] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { ops.Width = 1; return ShapeStringMovs }
	b[0xA5] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = operandWidth(ops.OperandSize32)
		return ShapeStringMovs
	}
	b[0xAA] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { ops.Width = 1; return ShapeStringStos }
	b[0xAB] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = operandWidth(ops.OperandSize32)
		return ShapeStringStos
	}
	b[0xAC] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { ops.Width = 1; return ShapeStringLods }
	b[0xAD] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = operandWidth(ops.OperandSize32)
		return ShapeStringLods
	}
	b[0xAE] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { ops.Width = 1; return ShapeStringScas }
	b[0xAF] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = operandWidth(ops.OperandSize32)
		return ShapeStringScas
	}
	b[0xA6] = func(c *parseCursor, ops *DecodedOperands) InstructionShape { ops.Width = 1; return ShapeStringCmps }
	b[0xA7] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = operandWidth(ops.OperandSize32)
		return ShapeStringCmps
	}
}

func (p *Parser) initExtBuilders() {
	e := &p.ext
	for i := 0; i < 16; i++ {
		cc := i
		e[0x80+i] = func(c *parseCursor, ops *DecodedOperands) InstructionShape {
			ops.RegIndex = cc
			ops.Rel = c.fetchRel(operandWidth(ops.OperandSize32))
			return ShapeJccNear
		}
	}
}

// --- ALU (add/or/adc/sbb/and/sub/xor/cmp) builders ---

func buildAluRmReg(aluOp, byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.AluOp = aluOp
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		return ShapeAluRmReg
	}
}

func buildAluRegRm(aluOp, byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.AluOp = aluOp
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		return ShapeAluRegRm
	}
}

func buildAluAccImm(aluOp, byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.AluOp = aluOp
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.Imm = c.fetchImm(ops.Width)
		return ShapeAluAccImm
	}
}

func widthFor(byteForm int, opSize32 bool) int {
	if byteForm == 1 {
		return 1
	}
	return operandWidth(opSize32)
}

func buildTestRmReg(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.AluOp = 4 // AND-family flag rule
		ops.Discard = true
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		return ShapeAluRmReg
	}
}

func buildTestAccImm(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.AluOp = 4
		ops.Discard = true
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.Imm = c.fetchImm(ops.Width)
		return ShapeAluAccImm
	}
}

func buildXchgRmReg(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		return ShapeAluRmReg // executor special-cases XCHG via ops.Opcode
	}
}

// --- data movement builders ---

func buildMovRmReg(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		return ShapeMovRmReg
	}
}

func buildMovRegRm(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		return ShapeMovRegRm
	}
}

func buildMovRmImm(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		ops.Imm = c.fetchImm(ops.Width)
		return ShapeMovRmImm
	}
}

func buildMovSegRm(toRm bool) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = 2
		ops.ModRM = decodeModRM(c)
		ops.SegIndex = int(ops.ModRM.Reg)
		return ShapeMovSegRm
	}
}

func buildLea(c *parseCursor, ops *DecodedOperands) InstructionShape {
	ops.Width = operandWidth(ops.OperandSize32)
	ops.ModRM = decodeModRM(c)
	return ShapeLea
}

func buildMovAccMoffs(byteForm int, toMem bool) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.Imm = uint32(c.fetchMoffs16()) // moffs offset stashed in Imm
		ops.Discard = toMem                // reused to mean "store AL/AX into memory"
		return ShapeMovAccMoffs
	}
}

func buildPushSeg(seg int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.SegIndex = seg
		ops.Width = 2
		return ShapePushSeg
	}
}

func buildPopSeg(seg int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.SegIndex = seg
		ops.Width = 2
		return ShapePopSeg
	}
}

// --- group 1/2/3 and inc/dec-by-modrm builders ---

func buildGrp1(byteForm int, signExtendImm8 bool) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		ops.AluOp = int(ops.ModRM.Reg)
		if signExtendImm8 {
			ops.Imm = c.fetchImmSignExtended8()
		} else if byteForm == 1 {
			ops.Imm = c.fetchImm(1)
		} else {
			ops.Imm = c.fetchImm(ops.Width)
		}
		return ShapeGrp1RmImm
	}
}

func buildGrp2Imm(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		ops.ShiftOp = int(ops.ModRM.Reg)
		ops.Imm = c.fetchImm(1)
		ops.AluOp = 1 // count source: immediate
		return ShapeGrp2Shift
	}
}

func buildGrp2One(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		ops.ShiftOp = int(ops.ModRM.Reg)
		ops.Imm = 1
		ops.AluOp = 0 // count source: literal one
		return ShapeGrp2Shift
	}
}

func buildGrp2Cl(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		ops.ShiftOp = int(ops.ModRM.Reg)
		ops.AluOp = 2 // count source: CL
		return ShapeGrp2Shift
	}
}

func buildGrp3(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		ops.UnaryOp = int(ops.ModRM.Reg)
		if ops.UnaryOp == 0 || ops.UnaryOp == 1 {
			ops.Imm = c.fetchImm(ops.Width)
		}
		return ShapeGrp3Unary
	}
}

func buildGrpIncDecRm(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.ModRM = decodeModRM(c)
		ops.AluOp = int(ops.ModRM.Reg) // 0 INC, 1 DEC; other reg values unsupported
		if ops.AluOp > 1 {
			return ShapeInvalid
		}
		return ShapeIncDecRm
	}
}

func buildLoop(kind int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.AluOp = kind
		ops.Rel = c.fetchRel(1)
		return ShapeLoop
	}
}

// byteForm selects AL/AX(eAX); portFromDX distinguishes the imm8-port
// (0xE4-0xE7) forms from the DX-port (0xEC-0xEF) forms.
func buildInImm(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.Imm = c.fetchImm(1)
		return ShapeInPort
	}
}

func buildOutImm(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.Imm = c.fetchImm(1)
		return ShapeOutPort
	}
}

func buildInDx(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.PortFromDX = true
		return ShapeInPort
	}
}

func buildOutDx(byteForm int) parseBuilder {
	return func(c *parseCursor, ops *DecodedOperands) InstructionShape {
		ops.Width = widthFor(byteForm, ops.OperandSize32)
		ops.PortFromDX = true
		return ShapeOutPort
	}
}

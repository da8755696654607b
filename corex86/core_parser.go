// core_parser.go - fetch/decode: raw memory bytes to a tagged CfgInstruction
//
// Grounded on cpu_x86.go's initBaseOps/initExtendedOps dispatch-table
// pattern (func-pointer array indexed by opcode byte), here building a
// ParsedInstruction shape instead of executing directly, per spec.md §4.B.
//
// Scope: covers data movement, ALU/group1/group2/group3 operations,
// control flow (jumps/calls/rets/loop/int), and the REP-able string
// opcodes. 32-bit SIB addressing, BCD adjust (DAA/DAS/AAA/AAS), PUSHA/POPA
// and port I/O string forms are not implemented; unrecognised opcodes fall
// through to the InvalidInstruction shape like any other unsupported byte
// (spec.md §4.B step 5), so the behaviour is spec-correct, just narrower
// in opcode coverage than a full decoder.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// parseCursor tracks bytes consumed while decoding one instruction,
// recording each as a Field so the caller can build the instruction's
// discriminator (spec.md §3). It also remembers which non-final field (if
// any) backs DecodedOperands.Imm, .Rel, and ModRM.Disp, so a cached node
// can re-read a self-modified operand byte range at execute time instead
// of trusting the value captured when the node was parsed (spec.md §4.B
// step 4, S3).
type parseCursor struct {
	mem    *Memory
	base   SegmentedAddress
	off    uint16
	fields []Field

	dispFieldIdx int // index into fields of ModRM.Disp's bytes, -1 if none
	immFieldIdx  int // index into fields backing Operands.Imm, -1 if none
	immSigned    bool
	relFieldIdx  int // index into fields backing Operands.Rel, -1 if none
}

func (c *parseCursor) addrAt(extra uint16) SegmentedAddress { return c.base.Add(c.off + extra) }

// fetchRaw reads n bytes one at a time at wrapped offsets (spec.md §4.B
// "bytes wrap within the same segment"), advances the cursor, and returns
// the raw bytes plus the physical address of the first one.
func (c *parseCursor) fetchRaw(n int) ([]byte, uint32) {
	raw := make([]byte, n)
	first := c.addrAt(0).Linear()
	for i := 0; i < n; i++ {
		raw[i] = c.mem.ReadU8(c.addrAt(uint16(i)).Linear())
	}
	c.off += uint16(n)
	return raw, first
}

func (c *parseCursor) fetch8(final bool) uint8 {
	raw, pa := c.fetchRaw(1)
	idx := len(c.fields)
	c.fields = append(c.fields, newField[uint8](raw[0], idx, pa, raw, final))
	return raw[0]
}

func (c *parseCursor) fetch16(final bool) uint16 {
	raw, pa := c.fetchRaw(2)
	v := uint16(raw[0]) | uint16(raw[1])<<8
	idx := len(c.fields)
	c.fields = append(c.fields, newField[uint16](v, idx, pa, raw, final))
	return v
}

func (c *parseCursor) fetch32(final bool) uint32 {
	raw, pa := c.fetchRaw(4)
	v := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	idx := len(c.fields)
	c.fields = append(c.fields, newField[uint32](v, idx, pa, raw, final))
	return v
}

// fetchImm reads an immediate of the given width (1, 2 or 4 bytes,
// never final) and returns it zero-extended into a uint32. The field just
// appended becomes the instruction's tracked Imm source, so a later
// self-modification of these bytes is picked up on the next execution
// instead of replaying the value parsed here.
func (c *parseCursor) fetchImm(width int) uint32 {
	var v uint32
	switch width {
	case 1:
		v = uint32(c.fetch8(false))
	case 2:
		v = uint32(c.fetch16(false))
	default:
		v = c.fetch32(false)
	}
	c.immFieldIdx = len(c.fields) - 1
	c.immSigned = false
	return v
}

// fetchImmSignExtended8 reads an imm8 and sign-extends it to a uint32 bit
// pattern (used by 0x83 Grp1 Ev,ib and by short branch displacements).
func (c *parseCursor) fetchImmSignExtended8() uint32 {
	v := uint32(int32(int8(c.fetch8(false))))
	c.immFieldIdx = len(c.fields) - 1
	c.immSigned = true
	return v
}

// fetchRel reads a branch displacement of the given width (1, 2 or 4
// bytes), sign-extends it, and tracks the backing field the same way
// fetchImm does.
func (c *parseCursor) fetchRel(width int) int32 {
	var bits uint32
	switch width {
	case 1:
		bits = uint32(c.fetch8(false))
	case 2:
		bits = uint32(c.fetch16(false))
	default:
		bits = c.fetch32(false)
	}
	c.relFieldIdx = len(c.fields) - 1
	return int32(signExtendToU32(bits, width))
}

// fetchMoffs16 reads a 16-bit memory-offset operand (the 0xA0-0xA3 MOV
// AL/AX,moffs forms), tracked as an unsigned Imm source.
func (c *parseCursor) fetchMoffs16() uint16 {
	v := c.fetch16(false)
	c.immFieldIdx = len(c.fields) - 1
	c.immSigned = false
	return v
}

// operandWidth resolves the ALU/stack operand width: 16 bits by default in
// real mode, 32 when the operand-size-32 prefix (0x66) is present.
func operandWidth(opSize32 bool) int {
	if opSize32 {
		return 4
	}
	return 2
}

// parseBuilder decodes the operand bytes following an already-consumed
// opcode and returns the instruction's shape. ops carries the prefix state
// in on entry (SegOverride/RepPrefix/OperandSize32/AddressSize32) and is
// filled in with the opcode's own operands.
type parseBuilder func(c *parseCursor, ops *DecodedOperands) InstructionShape

// Parser turns raw guest memory into a typed instruction shape plus its
// ordered field list (spec.md §4.B).
type Parser struct {
	mem  *Memory
	base [256]parseBuilder
	ext  [256]parseBuilder // 0x0F-prefixed
}

// NewParser builds a parser with its opcode dispatch tables installed.
func NewParser(mem *Memory) *Parser {
	p := &Parser{mem: mem}
	p.initBaseBuilders()
	p.initExtBuilders()
	return p
}

// ParsedInstruction is what the parser hands back to the feeder, which
// owns turning it into a graph node (the parser itself does not touch the
// graph arena). DispFieldIdx/ImmFieldIdx/RelFieldIdx (-1 when absent) let
// the executor re-read a self-modified non-final field instead of
// trusting the value Operands held at parse time.
type ParsedInstruction struct {
	Shape    InstructionShape
	Fields   []Field
	Operands DecodedOperands

	DispFieldIdx int
	ImmFieldIdx  int
	ImmSigned    bool
	RelFieldIdx  int
}

// Parse decodes the instruction at addr. On any failure (unrecognised
// opcode, or length exceeding the 15-byte bound of invariant I5) it
// returns an InvalidInstruction shape that self-raises #UD on execute, so
// reaching the same address again reproduces the fault without re-parsing
// (spec.md §4.B step 5, §4.G).
func (p *Parser) Parse(addr SegmentedAddress) ParsedInstruction {
	c := &parseCursor{mem: p.mem, base: addr, dispFieldIdx: -1, immFieldIdx: -1, relFieldIdx: -1}
	ops := DecodedOperands{SegOverride: -1}

prefixes:
	for c.off < 15 {
		b := p.mem.ReadU8(c.addrAt(0).Linear())
		switch b {
		case 0x26:
			ops.SegOverride = SegES
		case 0x2E:
			ops.SegOverride = SegCS
		case 0x36:
			ops.SegOverride = SegSS
		case 0x3E:
			ops.SegOverride = SegDS
		case 0x64:
			ops.SegOverride = SegFS
		case 0x65:
			ops.SegOverride = SegGS
		case 0x66:
			ops.OperandSize32 = true
		case 0x67:
			ops.AddressSize32 = true
		case 0xF0:
			// LOCK: accepted, no semantic effect in this emulator.
		case 0xF2:
			ops.RepPrefix = 2
		case 0xF3:
			ops.RepPrefix = 1
		default:
			break prefixes
		}
		c.fetch8(true)
	}

	if c.off >= 15 {
		return p.invalid(addr, c, ops)
	}

	opcodeByte := c.fetch8(true)
	opcode := uint16(opcodeByte)
	builder := p.base[opcodeByte]
	if opcodeByte == 0x0F {
		if c.off >= 15 {
			return p.invalid(addr, c, ops)
		}
		second := c.fetch8(true)
		opcode = 0x0F00 | uint16(second)
		builder = p.ext[second]
	}
	ops.Opcode = opcode

	if builder == nil {
		return p.invalid(addr, c, ops)
	}
	shape := builder(c, &ops)
	if shape == ShapeInvalid || c.off > 15 {
		return p.invalid(addr, c, ops)
	}
	return ParsedInstruction{
		Shape: shape, Fields: c.fields, Operands: ops,
		DispFieldIdx: c.dispFieldIdx, ImmFieldIdx: c.immFieldIdx, ImmSigned: c.immSigned, RelFieldIdx: c.relFieldIdx,
	}
}

func (p *Parser) invalid(addr SegmentedAddress, c *parseCursor, ops DecodedOperands) ParsedInstruction {
	// Always keep at least the opcode byte(s) already consumed so the
	// instruction has a non-empty discriminator and a real length.
	return ParsedInstruction{
		Shape: ShapeInvalidInstruction, Fields: c.fields, Operands: ops,
		DispFieldIdx: -1, ImmFieldIdx: -1, RelFieldIdx: -1,
	}
}

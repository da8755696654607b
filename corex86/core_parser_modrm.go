// core_parser_modrm.go - ModR/M decode and effective-address computation
//
// Only 16-bit addressing forms are implemented (no SIB/32-bit addressing
// modes): real-mode guest code overwhelmingly encodes addresses this way,
// and full 32-bit addressing only matters once paging/protected mode are
// in play, which spec.md §1 puts out of scope.
//
// Grounded on cpu_x86_ops.go's fetchModRM/getModRMReg/readRM8 family,
// split here into a parse-time (register-independent) half and an
// execute-time (register-dependent effective address) half per spec.md
// §4.F's "ModR/M effective address computer".
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

// rm16Base1/rm16Base2 map a 16-bit-addressing rm field (0-5,7) to the GPR index
// pair summed to form the base offset; rm==6 is handled specially (disp16
// with mod==0, else BP).
var rm16Base1 = [8]int{RegEBX, RegEBX, RegEBP, RegEBP, RegESI, RegEDI, RegEBP, RegEBX}
var rm16Base2 = [8]int{RegESI, RegEDI, RegESI, RegEDI, -1, -1, -1, -1}

// usesStackSegmentDefault reports whether this rm encoding defaults to SS (the
// BP-relative forms), per the 8086 addressing-mode table.
func (m *ModRMInfo) usesStackSegmentDefault() bool {
	if m.Mod == 0 && m.RM == 6 {
		return false // disp16 direct addressing defaults to DS
	}
	return m.RM == 2 || m.RM == 3 || m.RM == 6
}

// effectiveOffset computes the 16-bit effective offset for a memory
// operand from current register contents plus the parsed displacement.
func (m *ModRMInfo) effectiveOffset(regs *Registers) uint16 {
	if m.Mod == 0 && m.RM == 6 {
		return uint16(m.Disp)
	}
	base := regs.GPR16(rm16Base1[m.RM])
	if rm16Base2[m.RM] >= 0 {
		base += regs.GPR16(rm16Base2[m.RM])
	}
	return base + uint16(m.Disp)
}

// decodeModRM reads the ModR/M byte (always final) and any displacement
// bytes (never final: a patched displacement re-reads without invalidating
// the node, spec.md §4.B step 4).
func decodeModRM(c *parseCursor) *ModRMInfo {
	b := c.fetch8(true)
	info := &ModRMInfo{Mod: b >> 6 & 3, Reg: b >> 3 & 7, RM: b & 7}
	if info.Mod == 3 {
		info.IsRegister = true
		return info
	}
	switch {
	case info.Mod == 0 && info.RM == 6:
		d := c.fetch16(false)
		info.HasDisp = true
		info.Disp = int32(int16(d))
		c.dispFieldIdx = len(c.fields) - 1
	case info.Mod == 0:
		// no displacement
	case info.Mod == 1:
		d := c.fetch8(false)
		info.HasDisp = true
		info.DispIsByte = true
		info.Disp = int32(int8(d))
		c.dispFieldIdx = len(c.fields) - 1
	case info.Mod == 2:
		d := c.fetch16(false)
		info.HasDisp = true
		info.Disp = int32(int16(d))
		c.dispFieldIdx = len(c.fields) - 1
	}
	return info
}

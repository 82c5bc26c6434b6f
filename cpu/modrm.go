package cpu

// modRM captures the decoded addressing-mode byte plus any SIB/displacement
// that followed it, mirroring the ModRM struct in cpu_x86.go.
type modRM struct {
	mod, reg, rm int
	isReg        bool   // true when mod==3 (rm names a register, not memory)
	addr         uint32 // effective address when !isReg
	length       int    // bytes consumed: modrm + sib? + disp
}

// decodeModRM reads a ModR/M byte (and SIB/displacement if present) from
// cursor and computes the effective address for memory operands. Segment
// override bases are added by the caller's prefixState.
func (c *CPU) decodeModRM(cursor uint32, p prefixState) (modRM, error) {
	b, err := c.fetch8(cursor)
	if err != nil {
		return modRM{}, err
	}
	m := modRM{
		mod: int(b>>6) & 3,
		reg: int(b>>3) & 7,
		rm:  int(b) & 7,
	}
	pos := cursor + 1
	length := 1

	if m.mod == 3 {
		m.isReg = true
		m.length = length
		return m, nil
	}

	var base, index int32
	var haveBase, haveIndex bool
	var scale uint32 = 1

	if m.rm == 4 {
		sib, err := c.fetch8(pos)
		if err != nil {
			return modRM{}, err
		}
		pos++
		length++
		scale = 1 << uint(sib>>6)
		idx := int(sib>>3) & 7
		bas := int(sib) & 7
		if idx != 4 {
			index = int32(c.Regs[idx])
			haveIndex = true
		}
		if !(bas == 5 && m.mod == 0) {
			base = int32(c.Regs[bas])
			haveBase = true
		} else {
			d, err := c.fetch32(pos)
			if err != nil {
				return modRM{}, err
			}
			pos += 4
			length += 4
			base = int32(d)
			haveBase = true
		}
	} else if m.mod == 0 && m.rm == 5 {
		d, err := c.fetch32(pos)
		if err != nil {
			return modRM{}, err
		}
		pos += 4
		length += 4
		base = int32(d)
		haveBase = true
	} else {
		base = int32(c.Regs[m.rm])
		haveBase = true
	}

	var disp int32
	switch m.mod {
	case 1:
		d, err := c.fetch8(pos)
		if err != nil {
			return modRM{}, err
		}
		pos++
		length++
		disp = int32(int8(d))
	case 2:
		d, err := c.fetch32(pos)
		if err != nil {
			return modRM{}, err
		}
		pos += 4
		length += 4
		disp = int32(d)
	case 0:
		if m.rm == 5 || (m.rm == 4 && false) {
			// handled above (disp32-as-base cases); nothing further.
		}
	}

	var ea int32
	if haveBase {
		ea = base
	}
	if haveIndex {
		ea += index * int32(scale)
	}
	ea += disp

	m.addr = uint32(ea) + p.segBase(c)
	m.length = length
	return m, nil
}

// readRM8/16/32 fetch the operand named by a decoded ModR/M: a register
// when mod==3, otherwise a memory load at the effective address.
func (c *CPU) readRM8(m modRM) (uint8, error) {
	if m.isReg {
		return c.GetReg8(m.rm), nil
	}
	return c.fetch8(m.addr)
}

func (c *CPU) readRM16(m modRM) (uint16, error) {
	if m.isReg {
		return c.GetReg16(m.rm), nil
	}
	return c.fetch16(m.addr)
}

func (c *CPU) readRM32(m modRM) (uint32, error) {
	if m.isReg {
		return c.GetReg32(m.rm), nil
	}
	return c.fetch32(m.addr)
}

func (c *CPU) writeRM8(m modRM, v uint8) error {
	if m.isReg {
		c.SetReg8(m.rm, v)
		return nil
	}
	return c.Mem.WriteU8(m.addr, v)
}

func (c *CPU) writeRM16(m modRM, v uint16) error {
	if m.isReg {
		c.SetReg16(m.rm, v)
		return nil
	}
	return c.Mem.WriteU16(m.addr, v)
}

func (c *CPU) writeRM32(m modRM, v uint32) error {
	if m.isReg {
		c.SetReg32(m.rm, v)
		return nil
	}
	return c.Mem.WriteU32(m.addr, v)
}

// effectiveAddr returns the memory address a modRM names; callers must
// only call this on a non-register modRM (LEA never dereferences it).
func (m modRM) effectiveAddr() uint32 { return m.addr }

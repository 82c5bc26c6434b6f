package cpu

// cond evaluates one of the sixteen Jcc/SETcc/CMOVcc conditions. JP/JNP
// (indices 0xA/0xB) are fixed to false/true respectively, per the
// §4.2: parity is never computed, so the condition cannot depend on it.
func (c *CPU) cond(code int) bool {
	switch code & 0xF {
	case 0x0: // O
		return c.OF
	case 0x1: // NO
		return !c.OF
	case 0x2: // B/C/NAE
		return c.CF
	case 0x3: // AE/NB/NC
		return !c.CF
	case 0x4: // E/Z
		return c.ZF
	case 0x5: // NE/NZ
		return !c.ZF
	case 0x6: // BE/NA
		return c.CF || c.ZF
	case 0x7: // A/NBE
		return !c.CF && !c.ZF
	case 0x8: // S
		return c.SF
	case 0x9: // NS
		return !c.SF
	case 0xA: // P/PE — hard-wired false, see DESIGN.md open questions.
		return false
	case 0xB: // NP/PO — hard-wired true.
		return true
	case 0xC: // L/NGE
		return c.SF != c.OF
	case 0xD: // GE/NL
		return c.SF == c.OF
	case 0xE: // LE/NG
		return c.ZF || (c.SF != c.OF)
	case 0xF: // G/NLE
		return !c.ZF && (c.SF == c.OF)
	}
	return false
}

func jccRel8Handler(code int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		rel, err := c.fetch8(cursor)
		if err != nil {
			c.fault(err)
			return
		}
		next := cursor + 1
		if c.cond(code) {
			c.EIP = uint32(int32(next) + int32(int8(rel)))
		} else {
			c.EIP = next
		}
	}
}

func jccRel32Handler(code int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		rel, err := c.fetch32(cursor)
		if err != nil {
			c.fault(err)
			return
		}
		next := cursor + 4
		if c.cond(code) {
			c.EIP = uint32(int32(next) + int32(rel))
		} else {
			c.EIP = next
		}
	}
}

func setccHandler(code int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		var v uint8
		if c.cond(code) {
			v = 1
		}
		if err := c.writeRM8(m, v); err != nil {
			c.fault(err)
			return
		}
		c.EIP = cursor + uint32(m.length)
	}
}

func cmovccHandler(code int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		if c.cond(code) {
			width := 32
			if p.opSize16 {
				width = 16
			}
			if width == 16 {
				v, err := c.readRM16(m)
				if err != nil {
					c.fault(err)
					return
				}
				c.SetReg16(m.reg, v)
			} else {
				v, err := c.readRM32(m)
				if err != nil {
					c.fault(err)
					return
				}
				c.SetReg32(m.reg, v)
			}
		}
		c.EIP = cursor + uint32(m.length)
	}
}

// callRel32Handler implements CALL rel32: pushes the post-instruction EIP
// (the return address).
func callRel32Handler(c *CPU, cursor uint32, p prefixState) {
	rel, err := c.fetch32(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	next := cursor + 4
	target := uint32(int32(next) + int32(rel))
	if err := c.push32(next); err != nil {
		c.fault(err)
		return
	}
	c.EIP = target
}

func jmpRel32Handler(c *CPU, cursor uint32, p prefixState) {
	rel, err := c.fetch32(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	next := cursor + 4
	c.EIP = uint32(int32(next) + int32(rel))
}

func jmpRel8Handler(c *CPU, cursor uint32, p prefixState) {
	rel, err := c.fetch8(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	next := cursor + 1
	c.EIP = uint32(int32(next) + int32(int8(rel)))
}

func retNearHandler(c *CPU, cursor uint32, p prefixState) {
	eip, err := c.pop32()
	if err != nil {
		c.fault(err)
		return
	}
	c.EIP = eip
}

// retImm16Handler implements RET imm16: pop EIP, then ESP += imm16 —
// stdcall callee cleanup.
func retImm16Handler(c *CPU, cursor uint32, p prefixState) {
	n, err := c.fetch16(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	eip, err := c.pop32()
	if err != nil {
		c.fault(err)
		return
	}
	c.Regs[RegESP] += uint32(n)
	c.EIP = eip
}

// group5Handler implements FF /0../6: INC/DEC Ev, CALL/JMP Ev (near
// indirect — the exact control-transfer point where the host-call
// fabric's thunk detection must hook in), and PUSH Ev.
// Far CALL/JMP (reg 3/5) are not meaningful in a flat 32-bit guest and
// are reported UnsupportedInstruction.
func group5Handler(c *CPU, cursor uint32, p prefixState) {
	m, err := c.decodeModRM(cursor, p)
	if err != nil {
		c.fault(err)
		return
	}
	pos := cursor + uint32(m.length)

	switch m.reg {
	case 0, 1:
		v, err := c.readRM32(m)
		if err != nil {
			c.fault(err)
			return
		}
		result := c.incDecCompute(uint64(v), 32, m.reg == 1)
		if err := c.writeRM32(m, uint32(result)); err != nil {
			c.fault(err)
			return
		}
		c.EIP = pos
	case 2: // CALL Ev (near indirect)
		target, err := c.readRM32(m)
		if err != nil {
			c.fault(err)
			return
		}
		if err := c.push32(pos); err != nil {
			c.fault(err)
			return
		}
		c.EIP = target
	case 4: // JMP Ev (near indirect)
		target, err := c.readRM32(m)
		if err != nil {
			c.fault(err)
			return
		}
		c.EIP = target
	case 6: // PUSH Ev
		v, err := c.readRM32(m)
		if err != nil {
			c.fault(err)
			return
		}
		if err := c.push32(v); err != nil {
			c.fault(err)
			return
		}
		c.EIP = pos
	default:
		c.fault(guestUnsupported("far CALL/JMP (FF /3,/5) not supported in flat 32-bit guest"))
	}
}

package cpu

import "intuitionengine/guest"

// movHandler implements 0x88/0x89/0x8A/0x8B (MOV Eb,Gb / Ev,Gv / Gb,Eb /
// Gv,Ev) — a plain data copy, no flags touched.
func movHandler(toMem bool, wide bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		if !wide {
			if toMem {
				if err := c.writeRM8(m, c.GetReg8(m.reg)); err != nil {
					c.fault(err)
					return
				}
			} else {
				v, err := c.readRM8(m)
				if err != nil {
					c.fault(err)
					return
				}
				c.SetReg8(m.reg, v)
			}
		} else {
			width := 32
			if p.opSize16 {
				width = 16
			}
			if toMem {
				var err error
				if width == 16 {
					err = c.writeRM16(m, c.GetReg16(m.reg))
				} else {
					err = c.writeRM32(m, c.GetReg32(m.reg))
				}
				if err != nil {
					c.fault(err)
					return
				}
			} else {
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
		}
		c.EIP = cursor + uint32(m.length)
	}
}

// movRegImmHandler implements B0-B7 (MOV r8,Ib) and B8-BF (MOV r32,Iz).
func movRegImmHandler(reg int, wide bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		if !wide {
			v, err := c.fetch8(cursor)
			if err != nil {
				c.fault(err)
				return
			}
			c.SetReg8(reg, v)
			c.EIP = cursor + 1
			return
		}
		width := 32
		if p.opSize16 {
			width = 16
		}
		if width == 16 {
			v, err := c.fetch16(cursor)
			if err != nil {
				c.fault(err)
				return
			}
			c.SetReg16(reg, v)
			c.EIP = cursor + 2
		} else {
			v, err := c.fetch32(cursor)
			if err != nil {
				c.fault(err)
				return
			}
			c.SetReg32(reg, v)
			c.EIP = cursor + 4
		}
	}
}

// movImmRMHandler implements C6 /0 (MOV Eb,Ib) and C7 /0 (MOV Ev,Iz).
func movImmRMHandler(wide bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		pos := cursor + uint32(m.length)
		if !wide {
			imm, err := c.fetch8(pos)
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.writeRM8(m, imm); err != nil {
				c.fault(err)
				return
			}
			c.EIP = pos + 1
			return
		}
		width := 32
		if p.opSize16 {
			width = 16
		}
		if width == 16 {
			imm, err := c.fetch16(pos)
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.writeRM16(m, imm); err != nil {
				c.fault(err)
				return
			}
			c.EIP = pos + 2
		} else {
			imm, err := c.fetch32(pos)
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.writeRM32(m, imm); err != nil {
				c.fault(err)
				return
			}
			c.EIP = pos + 4
		}
	}
}

func leaHandler(c *CPU, cursor uint32, p prefixState) {
	m, err := c.decodeModRM(cursor, p)
	if err != nil {
		c.fault(err)
		return
	}
	if m.isReg {
		c.fault(guestUnsupported("LEA with register operand"))
		return
	}
	c.SetReg32(m.reg, m.effectiveAddr())
	c.EIP = cursor + uint32(m.length)
}

// pushRegHandler / popRegHandler implement 0x50-0x57 / 0x58-0x5F.
func pushRegHandler(reg int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		if err := c.push32(c.GetReg32(reg)); err != nil {
			c.fault(err)
			return
		}
		c.EIP = cursor
	}
}

func popRegHandler(reg int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		v, err := c.pop32()
		if err != nil {
			c.fault(err)
			return
		}
		c.SetReg32(reg, v)
		c.EIP = cursor
	}
}

func pushImm32Handler(c *CPU, cursor uint32, p prefixState) {
	imm, err := c.fetch32(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	if err := c.push32(imm); err != nil {
		c.fault(err)
		return
	}
	c.EIP = cursor + 4
}

func pushImm8Handler(c *CPU, cursor uint32, p prefixState) {
	imm, err := c.fetch8(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	if err := c.push32(uint32(int32(int8(imm)))); err != nil {
		c.fault(err)
		return
	}
	c.EIP = cursor + 1
}

func nopHandler(c *CPU, cursor uint32, p prefixState) { c.EIP = cursor }

// xchgEAXHandler implements 0x91-0x97 (XCHG eAX, r32); 0x90 is registered
// separately as plain NOP (XCHG EAX,EAX is a no-op by construction).
func xchgEAXHandler(reg int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		a, b := c.GetReg32(0), c.GetReg32(reg)
		c.SetReg32(0, b)
		c.SetReg32(reg, a)
		c.EIP = cursor
	}
}

func xchgRMHandler(wide bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		if !wide {
			a, err := c.readRM8(m)
			if err != nil {
				c.fault(err)
				return
			}
			b := c.GetReg8(m.reg)
			if err := c.writeRM8(m, b); err != nil {
				c.fault(err)
				return
			}
			c.SetReg8(m.reg, a)
		} else {
			width := 32
			if p.opSize16 {
				width = 16
			}
			if width == 16 {
				a, err := c.readRM16(m)
				if err != nil {
					c.fault(err)
					return
				}
				b := c.GetReg16(m.reg)
				if err := c.writeRM16(m, b); err != nil {
					c.fault(err)
					return
				}
				c.SetReg16(m.reg, a)
			} else {
				a, err := c.readRM32(m)
				if err != nil {
					c.fault(err)
					return
				}
				b := c.GetReg32(m.reg)
				if err := c.writeRM32(m, b); err != nil {
					c.fault(err)
					return
				}
				c.SetReg32(m.reg, a)
			}
		}
		c.EIP = cursor + uint32(m.length)
	}
}

func clcHandler(c *CPU, cursor uint32, p prefixState) { c.CF = false; c.EIP = cursor }
func stcHandler(c *CPU, cursor uint32, p prefixState) { c.CF = true; c.EIP = cursor }

// salcHandler implements the undocumented SALC: AL = CF ? 0xFF : 0x00.
func salcHandler(c *CPU, cursor uint32, p prefixState) {
	if c.CF {
		c.SetReg8(0, 0xFF)
	} else {
		c.SetReg8(0, 0x00)
	}
	c.EIP = cursor
}

func pushfdHandler(c *CPU, cursor uint32, p prefixState) {
	if err := c.push32(c.PackEFLAGS()); err != nil {
		c.fault(err)
		return
	}
	c.EIP = cursor
}

func popfdHandler(c *CPU, cursor uint32, p prefixState) {
	v, err := c.pop32()
	if err != nil {
		c.fault(err)
		return
	}
	c.UnpackEFLAGS(v)
	c.EIP = cursor
}

func guestUnsupported(detail string) error {
	return guest.NewError(guest.UnsupportedInstruction, detail)
}

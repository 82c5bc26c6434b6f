package cpu

// This engine models no I/O ports: IN returns zero, OUT is discarded, and
// INS/OUTS only move pointers. Matches the original interpreter's
// port-instruction handlers, which take the same shortcut.

// inPortHandler implements IN AL/eAX, imm8 (0xE4/0xE5) and IN AL/eAX, DX
// (0xEC/0xED): always returns zero. hasImm consumes the port-number
// immediate for the imm8 forms; DX is never actually read.
func inPortHandler(width uint32, hasImm bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		pos := cursor
		if hasImm {
			if _, err := c.fetch8(pos); err != nil {
				c.fault(err)
				return
			}
			pos++
		}
		if width == 1 {
			c.SetReg8(0, 0)
		} else {
			c.SetReg32(0, 0)
		}
		c.EIP = pos
	}
}

// outPortHandler implements OUT imm8, AL/eAX (0xE6/0xE7) and OUT DX, AL/eAX
// (0xEE/0xEF): discards the operand, touches no architectural state besides
// EIP.
func outPortHandler(hasImm bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		pos := cursor
		if hasImm {
			if _, err := c.fetch8(pos); err != nil {
				c.fault(err)
				return
			}
			pos++
		}
		c.EIP = pos
	}
}

// insHandler implements INSB/INSD (0x6C/0x6D): fills [EDI] with zeros,
// repeating ECX times under REP, advancing EDI by width*direction each
// iteration — an input port's bytes, had one existed.
func insHandler(width uint32) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		count := uint32(1)
		repeating := p.rep || p.repne
		if repeating {
			count = c.Regs[RegECX]
		}
		step := stepDir(c.DF, width)
		for i := uint32(0); i < count; i++ {
			var err error
			switch width {
			case 1:
				err = c.Mem.WriteU8(c.Regs[RegEDI], 0)
			default:
				err = c.Mem.WriteU32(c.Regs[RegEDI], 0)
			}
			if err != nil {
				c.fault(err)
				return
			}
			c.Regs[RegEDI] = uint32(int32(c.Regs[RegEDI]) + step)
			if repeating {
				c.Regs[RegECX]--
			}
		}
		c.EIP = cursor
	}
}

// outsHandler implements OUTSB/OUTSD (0x6E/0x6F): advances ESI by
// width*direction, repeating ECX times under REP, without reading or
// transmitting anything.
func outsHandler(width uint32) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		count := uint32(1)
		repeating := p.rep || p.repne
		if repeating {
			count = c.Regs[RegECX]
		}
		step := stepDir(c.DF, width)
		for i := uint32(0); i < count; i++ {
			c.Regs[RegESI] = uint32(int32(c.Regs[RegESI]) + step)
			if repeating {
				c.Regs[RegECX]--
			}
		}
		c.EIP = cursor
	}
}

// xgetbvHandler implements XGETBV (0F 01 D0): reports an empty extended
// state-component bitmap in EDX:EAX. Only the D0 (mod=11, reg=4, rm=0)
// ModR/M byte is recognized; any other 0F 01 submode (SGDT/SIDT/LGDT/...)
// is unmodeled and faults.
func xgetbvHandler(c *CPU, cursor uint32, p prefixState) {
	modrm, err := c.fetch8(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	if modrm != 0xD0 {
		c.fault(guestUnsupported("0F 01 with unsupported ModR/M (only XGETBV's D0 is modeled)"))
		return
	}
	c.SetReg32(0, 0)
	c.SetReg32(RegEDX, 0)
	c.EIP = cursor + 1
}

package cpu

// group8Handler implements 0F BA: BT/BTS/BTR/BTC Ev,Ib (ModR/M.reg in
// 4..7). CF = the bit's prior value; BT leaves the operand unmodified,
// the other three modify memory.
func group8Handler(c *CPU, cursor uint32, p prefixState) {
	m, err := c.decodeModRM(cursor, p)
	if err != nil {
		c.fault(err)
		return
	}
	pos := cursor + uint32(m.length)
	imm, err := c.fetch8(pos)
	if err != nil {
		c.fault(err)
		return
	}
	pos++

	v, err := c.readRM32(m)
	if err != nil {
		c.fault(err)
		return
	}
	bit := uint(imm) & 0x1F
	c.CF = (v>>bit)&1 != 0

	switch m.reg {
	case 4: // BT — read-only
	case 5: // BTS
		v |= 1 << bit
		if err := c.writeRM32(m, v); err != nil {
			c.fault(err)
			return
		}
	case 6: // BTR
		v &^= 1 << bit
		if err := c.writeRM32(m, v); err != nil {
			c.fault(err)
			return
		}
	case 7: // BTC
		v ^= 1 << bit
		if err := c.writeRM32(m, v); err != nil {
			c.fault(err)
			return
		}
	default:
		c.fault(guestUnsupported("0F BA with unsupported /reg"))
		return
	}
	c.EIP = pos
}

// cpuidHandler returns a fixed vendor triple and minimal capability set.
func cpuidHandler(c *CPU, cursor uint32, p prefixState) {
	switch c.GetReg32(0) {
	case 0:
		c.SetReg32(0, 1)
		c.SetReg32(RegEBX, 0x756E6547) // "Genu"
		c.SetReg32(RegEDX, 0x49656E69) // "ineI"
		c.SetReg32(RegECX, 0x6C65746E) // "ntel"
	default:
		c.SetReg32(0, 0x00000633) // family/model/stepping, unremarkable
		c.SetReg32(RegEBX, 0)
		c.SetReg32(RegECX, 0)
		c.SetReg32(RegEDX, 0x00800000) // just the FPU-present bit
	}
	c.EIP = cursor
}

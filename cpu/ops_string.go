package cpu

// stepDir returns +width or -width depending on DF, for ESI/EDI advance.
func stepDir(df bool, width uint32) int32 {
	if df {
		return -int32(width)
	}
	return int32(width)
}

// movsHandler implements MOVSB/MOVSD: copy [ESI]->[EDI], advance both by
// width*direction, honoring REP (repeats ECX times; no early-exit
// condition for MOVS). Per the open-question decision in DESIGN.md, ECX
// is driven to zero via ordinary decrement rather than tracked
// separately — observably identical in this single-threaded model.
func movsHandler(width uint32) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		count := uint32(1)
		repeating := p.rep || p.repne
		if repeating {
			count = c.Regs[RegECX]
		}
		step := stepDir(c.DF, width)
		for i := uint32(0); i < count; i++ {
			if err := c.copyWidth(c.Regs[RegESI], c.Regs[RegEDI], width); err != nil {
				c.fault(err)
				return
			}
			c.Regs[RegESI] = uint32(int32(c.Regs[RegESI]) + step)
			c.Regs[RegEDI] = uint32(int32(c.Regs[RegEDI]) + step)
			if repeating {
				c.Regs[RegECX]--
			}
		}
		c.EIP = cursor
	}
}

func (c *CPU) copyWidth(src, dst uint32, width uint32) error {
	switch width {
	case 1:
		v, err := c.fetch8(src)
		if err != nil {
			return err
		}
		return c.Mem.WriteU8(dst, v)
	case 2:
		v, err := c.fetch16(src)
		if err != nil {
			return err
		}
		return c.Mem.WriteU16(dst, v)
	default:
		v, err := c.fetch32(src)
		if err != nil {
			return err
		}
		return c.Mem.WriteU32(dst, v)
	}
}

// stosHandler implements STOSB/STOSD: store AL/EAX at [EDI], advance EDI.
func stosHandler(width uint32) opHandler {
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
				err = c.Mem.WriteU8(c.Regs[RegEDI], c.GetReg8(0))
			case 2:
				err = c.Mem.WriteU16(c.Regs[RegEDI], c.GetReg16(0))
			default:
				err = c.Mem.WriteU32(c.Regs[RegEDI], c.GetReg32(0))
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

// scasHandler implements SCASB/SCASD: compare AL/EAX against [EDI] (as a
// CMP, discarding the result but updating flags), advance EDI. REPE stops
// when ZF=0, REPNE stops when ZF=1.
func scasHandler(width uint32) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		repeating := p.rep || p.repne
		count := uint32(1)
		if repeating {
			count = c.Regs[RegECX]
		}
		step := stepDir(c.DF, width)
		w := int(width * 8)
		for i := uint32(0); i < count; i++ {
			var mem uint64
			var err error
			switch width {
			case 1:
				var v uint8
				v, err = c.fetch8(c.Regs[RegEDI])
				mem = uint64(v)
			case 2:
				var v uint16
				v, err = c.fetch16(c.Regs[RegEDI])
				mem = uint64(v)
			default:
				var v uint32
				v, err = c.fetch32(c.Regs[RegEDI])
				mem = uint64(v)
			}
			if err != nil {
				c.fault(err)
				return
			}
			var a uint64
			switch width {
			case 1:
				a = uint64(c.GetReg8(0))
			case 2:
				a = uint64(c.GetReg16(0))
			default:
				a = uint64(c.GetReg32(0))
			}
			c.aluCompute(opCMP, a, mem, w)
			c.Regs[RegEDI] = uint32(int32(c.Regs[RegEDI]) + step)
			if repeating {
				c.Regs[RegECX]--
			}
			if p.rep && !c.ZF { // REPE: stop when ZF=0
				break
			}
			if p.repne && c.ZF { // REPNE: stop when ZF=1
				break
			}
		}
		c.EIP = cursor
	}
}

// cmpsHandler implements CMPSB/CMPSD: compare [ESI] against [EDI],
// advance both, same REPE/REPNE early-exit rules as SCAS.
func cmpsHandler(width uint32) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		repeating := p.rep || p.repne
		count := uint32(1)
		if repeating {
			count = c.Regs[RegECX]
		}
		step := stepDir(c.DF, width)
		w := int(width * 8)
		for i := uint32(0); i < count; i++ {
			var a, b uint64
			var err error
			switch width {
			case 1:
				var va, vb uint8
				va, err = c.fetch8(c.Regs[RegESI])
				if err == nil {
					vb, err = c.fetch8(c.Regs[RegEDI])
				}
				a, b = uint64(va), uint64(vb)
			case 2:
				var va, vb uint16
				va, err = c.fetch16(c.Regs[RegESI])
				if err == nil {
					vb, err = c.fetch16(c.Regs[RegEDI])
				}
				a, b = uint64(va), uint64(vb)
			default:
				var va, vb uint32
				va, err = c.fetch32(c.Regs[RegESI])
				if err == nil {
					vb, err = c.fetch32(c.Regs[RegEDI])
				}
				a, b = uint64(va), uint64(vb)
			}
			if err != nil {
				c.fault(err)
				return
			}
			c.aluCompute(opCMP, a, b, w)
			c.Regs[RegESI] = uint32(int32(c.Regs[RegESI]) + step)
			c.Regs[RegEDI] = uint32(int32(c.Regs[RegEDI]) + step)
			if repeating {
				c.Regs[RegECX]--
			}
			if p.rep && !c.ZF {
				break
			}
			if p.repne && c.ZF {
				break
			}
		}
		c.EIP = cursor
	}
}

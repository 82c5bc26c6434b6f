package cpu

// shiftOp names Group2's eight ModR/M.reg-selected shift/rotate ops. 4 and
// 6 both encode SHL/SAL on real hardware; this table treats 6 as SHL.
type shiftOp int

const (
	shROL shiftOp = iota
	shROR
	shRCL
	shRCR
	shSHL
	shSHR
	shSHLAlias
	shSAR
)

// group2Handler implements C0/C1 (count=Ib), D0/D1 (count=1), D2/D3
// (count=CL). wide selects 8 vs operand-size-prefixed 16/32; countFromCL
// and countIsOne select the count source.
func group2Handler(wide bool, countFromCL bool, countIsOne bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		pos := cursor + uint32(m.length)

		var count uint32
		if countIsOne {
			count = 1
		} else if countFromCL {
			count = uint32(c.GetReg8(RegECX))
		} else {
			b, err := c.fetch8(pos)
			if err != nil {
				c.fault(err)
				return
			}
			count = uint32(b)
			pos++
		}
		count &= 0x1F

		width := 8
		if wide {
			width = 32
			if p.opSize16 {
				width = 16
			}
		}

		readOperand := func() (uint64, error) {
			if width == 8 {
				v, err := c.readRM8(m)
				return uint64(v), err
			} else if width == 16 {
				v, err := c.readRM16(m)
				return uint64(v), err
			}
			v, err := c.readRM32(m)
			return uint64(v), err
		}
		writeOperand := func(v uint64) error {
			if width == 8 {
				return c.writeRM8(m, uint8(v))
			} else if width == 16 {
				return c.writeRM16(m, uint16(v))
			}
			return c.writeRM32(m, uint32(v))
		}

		a, err := readOperand()
		if err != nil {
			c.fault(err)
			return
		}

		if count != 0 {
			result := c.doShift(shiftOp(m.reg), a, count, width)
			if err := writeOperand(result); err != nil {
				c.fault(err)
				return
			}
		}
		c.EIP = pos
	}
}

// doShift mutates CF/OF/ZF/SF per the count==0-leaves-flags-unchanged rule
// and the per-operation flag contracts.
func (c *CPU) doShift(op shiftOp, a uint64, count uint32, width int) uint64 {
	mask := widthMask(width)
	top := signBit(width)
	a &= mask
	w := uint(width)

	switch op {
	case shSHL, shSHLAlias:
		preMSB := a&top != 0
		var result uint64
		var lastOut bool
		for i := uint32(0); i < count; i++ {
			lastOut = a&top != 0
			a = (a << 1) & mask
		}
		result = a
		c.CF = lastOut
		if count == 1 {
			c.OF = preMSB != (result&top != 0)
		}
		c.ZF = result == 0
		c.SF = result&top != 0
		return result
	case shSHR:
		preMSB := a&top != 0
		var result uint64
		var lastOut bool
		for i := uint32(0); i < count; i++ {
			lastOut = a&1 != 0
			a >>= 1
		}
		result = a
		c.CF = lastOut
		if count == 1 {
			c.OF = preMSB
		}
		c.ZF = result == 0
		c.SF = result&top != 0
		return result
	case shSAR:
		signed := signExtend(a, width)
		var lastOut bool
		for i := uint32(0); i < count; i++ {
			lastOut = signed&1 != 0
			signed >>= 1
		}
		result := uint64(signed) & mask
		c.CF = lastOut
		if count == 1 {
			c.OF = false
		}
		c.ZF = result == 0
		c.SF = result&top != 0
		return result
	case shROL:
		var result uint64 = a
		var newTop bool
		for i := uint32(0); i < count; i++ {
			msb := result&top != 0
			result = ((result << 1) | b2u(msb)) & mask
			newTop = result&1 != 0
		}
		c.CF = newTop
		if count == 1 {
			c.OF = (result&top != 0) != newTop
		}
		return result
	case shROR:
		var result uint64 = a
		var newBottomWasTop bool
		for i := uint32(0); i < count; i++ {
			lsb := result&1 != 0
			result = (result >> 1) | (b2u64(lsb) << (w - 1))
			result &= mask
			newBottomWasTop = result&top != 0
		}
		c.CF = newBottomWasTop
		if count == 1 {
			msb := result&top != 0
			msb2 := (result<<1)&top != 0
			c.OF = msb != msb2
		}
		return result
	case shRCL:
		wp1 := w + 1
		eff := count % uint32(wp1)
		cf := c.CF
		result := a
		for i := uint32(0); i < eff; i++ {
			newCF := result&top != 0
			result = ((result << 1) | b2u64(cf)) & mask
			cf = newCF
		}
		c.CF = cf
		if count == 1 {
			c.OF = (result&top != 0) != cf
		}
		return result
	case shRCR:
		wp1 := w + 1
		eff := count % uint32(wp1)
		cf := c.CF
		result := a
		if count == 1 {
			c.OF = (result&top != 0) != cf
		}
		for i := uint32(0); i < eff; i++ {
			newCF := result&1 != 0
			result = (result >> 1) | (b2u64(cf) << (w - 1))
			result &= mask
			cf = newCF
		}
		c.CF = cf
		return result
	}
	return a
}

func signExtend(v uint64, width int) int64 {
	switch width {
	case 8:
		return int64(int8(uint8(v)))
	case 16:
		return int64(int16(uint16(v)))
	default:
		return int64(int32(uint32(v)))
	}
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
func b2u64(b bool) uint64 { return b2u(b) }

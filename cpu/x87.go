package cpu

import "math"

// X87State is the minimal double-precision x87 stack the engine needs: a
// TOP-relative 8-deep stack of doubles, a tag word, and control/status
// words whose rounding/precision bits are stored but never enforced,
// adapted from fpu_x87.go's FPU_X87 struct.
type X87State struct {
	stack [8]float64
	tag   [8]tagState
	top   int
	cw    uint16
	sw    uint16
}

type tagState int

const (
	tagValid tagState = iota
	tagZero
	tagSpecial
	tagEmpty
)

func (f *X87State) init() {
	for i := range f.tag {
		f.tag[i] = tagEmpty
	}
	f.cw = 0x037F
	f.sw = 0
	f.top = 0
}

func (f *X87State) physReg(i int) int { return (f.top + i) & 7 }

func (f *X87State) ST(i int) float64 { return f.stack[f.physReg(i)] }

func (f *X87State) setST(i int, v float64) {
	f.stack[f.physReg(i)] = v
	tag := tagValid
	if v == 0 {
		tag = tagZero
	} else if math.IsNaN(v) || math.IsInf(v, 0) {
		tag = tagSpecial
	}
	f.tag[f.physReg(i)] = tag
}

func (f *X87State) push(v float64) error {
	if f.tag[(f.top-1)&7] != tagEmpty {
		f.sw |= 1 << 6 // stack fault, condition code 1 (overflow)
		return guestUnsupported("x87 stack overflow")
	}
	f.top = (f.top - 1) & 7
	f.setST(0, v)
	return nil
}

func (f *X87State) pop() (float64, error) {
	if f.tag[f.physReg(0)] == tagEmpty {
		f.sw |= 1 << 6
		return 0, guestUnsupported("x87 stack underflow")
	}
	v := f.ST(0)
	f.tag[f.physReg(0)] = tagEmpty
	f.top = (f.top + 1) & 7
	return v, nil
}

// x87Handler dispatches one D8..DF opcode. Instructions this engine does
// not implement still decode their ModR/M (to advance EIP correctly) and
// are otherwise no-ops.
func x87Handler(opByte int) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		pos := cursor + uint32(m.length)

		switch {
		case opByte == 0xDD && !m.isReg && m.reg == 0: // FLD m64real
			bits, err := c.Mem.ReadU64(m.addr)
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.X87.push(math.Float64frombits(bits)); err != nil {
				c.fault(err)
				return
			}
		case opByte == 0xDD && !m.isReg && m.reg == 3: // FSTP m64real
			v, err := c.X87.pop()
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.Mem.WriteU64(m.addr, math.Float64bits(v)); err != nil {
				c.fault(err)
				return
			}
		case opByte == 0xDB && !m.isReg && m.reg == 0: // FILD m32int
			v, err := c.fetch32(m.addr)
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.X87.push(float64(int32(v))); err != nil {
				c.fault(err)
				return
			}
		case opByte == 0xDB && !m.isReg && m.reg == 3: // FISTP m32int
			v, err := c.X87.pop()
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.Mem.WriteU32(m.addr, uint32(int32(math.Round(v)))); err != nil {
				c.fault(err)
				return
			}
		case opByte == 0xDF && !m.isReg && m.reg == 7: // FISTP m64int
			v, err := c.X87.pop()
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.Mem.WriteU64(m.addr, uint64(int64(math.Round(v)))); err != nil {
				c.fault(err)
				return
			}
		case opByte == 0xDC && !m.isReg && m.reg == 0: // FADD m64real
			bits, err := c.Mem.ReadU64(m.addr)
			if err != nil {
				c.fault(err)
				return
			}
			c.X87.setST(0, c.X87.ST(0)+math.Float64frombits(bits))
		case opByte == 0xDC && !m.isReg && m.reg == 1: // FMUL m64real
			bits, err := c.Mem.ReadU64(m.addr)
			if err != nil {
				c.fault(err)
				return
			}
			c.X87.setST(0, c.X87.ST(0)*math.Float64frombits(bits))
		case opByte == 0xDE && m.isReg && m.reg == 0: // FADDP STi,ST0
			i := m.rm
			sum := c.X87.ST(i) + c.X87.ST(0)
			if _, err := c.X87.pop(); err != nil {
				c.fault(err)
				return
			}
			c.X87.setST(i-1, sum)
		case opByte == 0xDE && m.isReg && m.reg == 1: // FMULP STi,ST0
			i := m.rm
			prod := c.X87.ST(i) * c.X87.ST(0)
			if _, err := c.X87.pop(); err != nil {
				c.fault(err)
				return
			}
			c.X87.setST(i-1, prod)
		case opByte == 0xD9 && !m.isReg && m.reg == 5: // FLDCW m16
			v, err := c.fetch16(m.addr)
			if err != nil {
				c.fault(err)
				return
			}
			c.X87.cw = v
		case opByte == 0xD9 && !m.isReg && m.reg == 7: // FNSTCW m16
			if err := c.Mem.WriteU16(m.addr, c.X87.cw); err != nil {
				c.fault(err)
				return
			}
		default:
			// Decoded ModR/M to advance EIP; otherwise a no-op.
		}
		c.EIP = pos
	}
}

package cpu

// aluVariant encodes the six addressing shapes the primary ALU opcodes
// cycle through: Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev / AL,Ib / eAX,Iz.
type aluVariant int

const (
	variantEbGb aluVariant = iota
	variantEvGv
	variantGbEb
	variantGvEv
	variantALIb
	variantEAXIz
)

// aluHandler is shared by all 48 (op, variant) primary-opcode slots; it is
// installed once per slot by initBaseOps via a capturing closure, mirroring
// how per-range handlers are generated in initBaseOps/initExtendedOps.
func aluHandler(op aluOp, variant aluVariant) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		switch variant {
		case variantEbGb, variantGbEb:
			m, err := c.decodeModRM(cursor, p)
			if err != nil {
				c.fault(err)
				return
			}
			var a, b uint8
			var err2 error
			if variant == variantEbGb {
				a, err2 = c.readRM8(m)
				b = c.GetReg8(m.reg)
			} else {
				a = c.GetReg8(m.reg)
				b, err2 = c.readRM8(m)
			}
			if err2 != nil {
				c.fault(err2)
				return
			}
			result := uint8(c.aluCompute(op, uint64(a), uint64(b), 8))
			if op != opCMP {
				if variant == variantEbGb {
					if err := c.writeRM8(m, result); err != nil {
						c.fault(err)
						return
					}
				} else {
					c.SetReg8(m.reg, result)
				}
			}
			c.EIP = cursor + uint32(m.length)
		case variantEvGv, variantGvEv:
			m, err := c.decodeModRM(cursor, p)
			if err != nil {
				c.fault(err)
				return
			}
			width := 32
			if p.opSize16 {
				width = 16
			}
			var a, b uint64
			var err2 error
			if variant == variantEvGv {
				if width == 16 {
					var v uint16
					v, err2 = c.readRM16(m)
					a = uint64(v)
					b = uint64(c.GetReg16(m.reg))
				} else {
					var v uint32
					v, err2 = c.readRM32(m)
					a = uint64(v)
					b = uint64(c.GetReg32(m.reg))
				}
			} else {
				if width == 16 {
					a = uint64(c.GetReg16(m.reg))
					var v uint16
					v, err2 = c.readRM16(m)
					b = uint64(v)
				} else {
					a = uint64(c.GetReg32(m.reg))
					var v uint32
					v, err2 = c.readRM32(m)
					b = uint64(v)
				}
			}
			if err2 != nil {
				c.fault(err2)
				return
			}
			result := c.aluCompute(op, a, b, width)
			if op != opCMP {
				if variant == variantEvGv {
					if width == 16 {
						err = c.writeRM16(m, uint16(result))
					} else {
						err = c.writeRM32(m, uint32(result))
					}
				} else if width == 16 {
					c.SetReg16(m.reg, uint16(result))
				} else {
					c.SetReg32(m.reg, uint32(result))
				}
				if err != nil {
					c.fault(err)
					return
				}
			}
			c.EIP = cursor + uint32(m.length)
		case variantALIb:
			imm, err := c.fetch8(cursor)
			if err != nil {
				c.fault(err)
				return
			}
			result := uint8(c.aluCompute(op, uint64(c.GetReg8(0)), uint64(imm), 8))
			if op != opCMP {
				c.SetReg8(0, result)
			}
			c.EIP = cursor + 1
		case variantEAXIz:
			width := 32
			if p.opSize16 {
				width = 16
			}
			var imm uint64
			var n uint32
			if width == 16 {
				v, err := c.fetch16(cursor)
				if err != nil {
					c.fault(err)
					return
				}
				imm = uint64(v)
				n = 2
			} else {
				v, err := c.fetch32(cursor)
				if err != nil {
					c.fault(err)
					return
				}
				imm = uint64(v)
				n = 4
			}
			result := c.aluCompute(op, uint64(c.GetReg32(0))&widthMask(width), imm, width)
			if op != opCMP {
				if width == 16 {
					c.SetReg16(0, uint16(result))
				} else {
					c.SetReg32(0, uint32(result))
				}
			}
			c.EIP = cursor + n
		}
	}
}

// Group1: 80/81/83 — immediate ALU ops, op selected by ModR/M.reg.
func group1Handler(immWidth int, signExtendByte bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		op := aluOp(m.reg)
		pos := cursor + uint32(m.length)

		if immWidth == 8 {
			a, err := c.readRM8(m)
			if err != nil {
				c.fault(err)
				return
			}
			imm, err := c.fetch8(pos)
			if err != nil {
				c.fault(err)
				return
			}
			result := uint8(c.aluCompute(op, uint64(a), uint64(imm), 8))
			if op != opCMP {
				if err := c.writeRM8(m, result); err != nil {
					c.fault(err)
					return
				}
			}
			c.EIP = pos + 1
			return
		}

		width := 32
		if p.opSize16 {
			width = 16
		}
		var a uint64
		if width == 16 {
			v, err := c.readRM16(m)
			if err != nil {
				c.fault(err)
				return
			}
			a = uint64(v)
		} else {
			v, err := c.readRM32(m)
			if err != nil {
				c.fault(err)
				return
			}
			a = uint64(v)
		}

		var imm uint64
		var immLen uint32
		if signExtendByte {
			b, err := c.fetch8(pos)
			if err != nil {
				c.fault(err)
				return
			}
			imm = uint64(int64(int8(b)))
			immLen = 1
		} else if width == 16 {
			v, err := c.fetch16(pos)
			if err != nil {
				c.fault(err)
				return
			}
			imm = uint64(v)
			immLen = 2
		} else {
			v, err := c.fetch32(pos)
			if err != nil {
				c.fault(err)
				return
			}
			imm = uint64(v)
			immLen = 4
		}

		result := c.aluCompute(op, a, imm, width)
		if op != opCMP {
			var werr error
			if width == 16 {
				werr = c.writeRM16(m, uint16(result))
			} else {
				werr = c.writeRM32(m, uint32(result))
			}
			if werr != nil {
				c.fault(werr)
				return
			}
		}
		c.EIP = pos + immLen
	}
}

// Group3: F6/F7 — TEST/NOT/NEG/MUL/IMUL/DIV/IDIV selected by ModR/M.reg.
func group3Handler(wide bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		pos := cursor + uint32(m.length)
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

		switch m.reg {
		case 0, 1: // TEST
			a, err := readOperand()
			if err != nil {
				c.fault(err)
				return
			}
			var imm uint64
			var immLen uint32
			if width == 8 {
				v, err := c.fetch8(pos)
				if err != nil {
					c.fault(err)
					return
				}
				imm, immLen = uint64(v), 1
			} else if width == 16 {
				v, err := c.fetch16(pos)
				if err != nil {
					c.fault(err)
					return
				}
				imm, immLen = uint64(v), 2
			} else {
				v, err := c.fetch32(pos)
				if err != nil {
					c.fault(err)
					return
				}
				imm, immLen = uint64(v), 4
			}
			c.testCompute(a, imm, width)
			c.EIP = pos + immLen
			return
		case 2: // NOT
			a, err := readOperand()
			if err != nil {
				c.fault(err)
				return
			}
			if err := writeOperand((^a) & widthMask(width)); err != nil {
				c.fault(err)
				return
			}
			c.EIP = pos
			return
		case 3: // NEG
			a, err := readOperand()
			if err != nil {
				c.fault(err)
				return
			}
			result := c.negCompute(a, width)
			if err := writeOperand(result); err != nil {
				c.fault(err)
				return
			}
			c.EIP = pos
			return
		case 4: // MUL
			a, err := readOperand()
			if err != nil {
				c.fault(err)
				return
			}
			c.doMul(a, width)
			c.EIP = pos
			return
		case 5: // IMUL
			a, err := readOperand()
			if err != nil {
				c.fault(err)
				return
			}
			c.doIMul(a, width)
			c.EIP = pos
			return
		case 6: // DIV
			a, err := readOperand()
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.doDiv(a, width); err != nil {
				c.fault(err)
				return
			}
			c.EIP = pos
			return
		case 7: // IDIV
			a, err := readOperand()
			if err != nil {
				c.fault(err)
				return
			}
			if err := c.doIDiv(a, width); err != nil {
				c.fault(err)
				return
			}
			c.EIP = pos
			return
		}
	}
}

// doMul implements unsigned MUL: EDX:EAX = EAX * src (or AX=AL*src for
// byte width). CF=OF set iff the high half is non-zero.
func (c *CPU) doMul(src uint64, width int) {
	switch width {
	case 8:
		res := uint32(c.GetReg8(0)) * uint32(src)
		c.SetReg16(0, uint16(res))
		high := res >> 8
		c.CF, c.OF = high != 0, high != 0
	case 16:
		res := uint32(c.GetReg16(0)) * uint32(src)
		c.SetReg16(0, uint16(res))
		c.SetReg16(RegEDX, uint16(res>>16))
		high := res >> 16
		c.CF, c.OF = high != 0, high != 0
	default:
		res := uint64(c.GetReg32(0)) * (src & 0xFFFFFFFF)
		c.SetReg32(0, uint32(res))
		c.SetReg32(RegEDX, uint32(res>>32))
		high := res >> 32
		c.CF, c.OF = high != 0, high != 0
	}
}

// doIMul implements signed one-operand IMUL. CF=OF set iff the high half
// is not the sign-extension of the low half.
func (c *CPU) doIMul(src uint64, width int) {
	switch width {
	case 8:
		res := int32(int8(c.GetReg8(0))) * int32(int8(uint8(src)))
		c.SetReg16(0, uint16(uint32(res)))
		ext := res>>8 == 0 || res>>8 == -1
		c.CF, c.OF = !ext, !ext
	case 16:
		res := int32(int16(c.GetReg16(0))) * int32(int16(uint16(src)))
		c.SetReg16(0, uint16(uint32(res)))
		c.SetReg16(RegEDX, uint16(uint32(res)>>16))
		ext := res>>16 == 0 || res>>16 == -1
		c.CF, c.OF = !ext, !ext
	default:
		res := int64(int32(c.GetReg32(0))) * int64(int32(uint32(src)))
		c.SetReg32(0, uint32(res))
		c.SetReg32(RegEDX, uint32(res>>32))
		ext := res>>32 == 0 || res>>32 == -1
		c.CF, c.OF = !ext, !ext
	}
}

// doDiv implements unsigned DIV using EDX:EAX as the 64-bit dividend (or
// DX:AX / AX for narrower widths). Divide-by-zero and quotient overflow
// both raise DivideError.
func (c *CPU) doDiv(src uint64, width int) error {
	switch width {
	case 8:
		if src == 0 {
			return divideError()
		}
		dividend := c.GetReg16(0)
		q := uint32(dividend) / uint32(src)
		r := uint32(dividend) % uint32(src)
		if q > 0xFF {
			return divideError()
		}
		c.SetReg8(0, uint8(q))
		c.SetReg8(4, uint8(r))
	case 16:
		if src == 0 {
			return divideError()
		}
		dividend := uint32(c.GetReg16(0)) | uint32(c.GetReg16(RegEDX))<<16
		q := dividend / uint32(src)
		r := dividend % uint32(src)
		if q > 0xFFFF {
			return divideError()
		}
		c.SetReg16(0, uint16(q))
		c.SetReg16(RegEDX, uint16(r))
	default:
		if src == 0 {
			return divideError()
		}
		dividend := uint64(c.GetReg32(0)) | uint64(c.GetReg32(RegEDX))<<32
		q := dividend / src
		r := dividend % src
		if q > 0xFFFFFFFF {
			return divideError()
		}
		c.SetReg32(0, uint32(q))
		c.SetReg32(RegEDX, uint32(r))
	}
	return nil
}

// doIDiv implements signed IDIV, same dividend shape as doDiv.
func (c *CPU) doIDiv(src uint64, width int) error {
	switch width {
	case 8:
		s := int8(uint8(src))
		if s == 0 {
			return divideError()
		}
		dividend := int16(c.GetReg16(0))
		q := int32(dividend) / int32(s)
		r := int32(dividend) % int32(s)
		if q > 127 || q < -128 {
			return divideError()
		}
		c.SetReg8(0, uint8(int8(q)))
		c.SetReg8(4, uint8(int8(r)))
	case 16:
		s := int16(uint16(src))
		if s == 0 {
			return divideError()
		}
		dividend := int32(uint32(c.GetReg16(0)) | uint32(c.GetReg16(RegEDX))<<16)
		q := dividend / int32(s)
		r := dividend % int32(s)
		if q > 32767 || q < -32768 {
			return divideError()
		}
		c.SetReg16(0, uint16(int16(q)))
		c.SetReg16(RegEDX, uint16(int16(r)))
	default:
		s := int32(uint32(src))
		if s == 0 {
			return divideError()
		}
		dividend := int64(uint64(c.GetReg32(0)) | uint64(c.GetReg32(RegEDX))<<32)
		q := dividend / int64(s)
		r := dividend % int64(s)
		if q > 0x7FFFFFFF || q < -0x80000000 {
			return divideError()
		}
		c.SetReg32(0, uint32(int32(q)))
		c.SetReg32(RegEDX, uint32(int32(r)))
	}
	return nil
}

func divideError() error {
	return divErrSentinel
}

// incDecHandler implements Group4 (FE, byte-only, wide=false) and Group5's
// INC/DEC ModR/M.reg 0/1 (wide=true). The 0x40-0x4F short forms are
// handled by incDecRegShortHandler instead.
func incDecHandler(wide bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		m, err := c.decodeModRM(cursor, p)
		if err != nil {
			c.fault(err)
			return
		}
		pos := cursor + uint32(m.length)
		isDec := m.reg == 1
		if !wide {
			a, err := c.readRM8(m)
			if err != nil {
				c.fault(err)
				return
			}
			result := c.incDecCompute(uint64(a), 8, isDec)
			if err := c.writeRM8(m, uint8(result)); err != nil {
				c.fault(err)
				return
			}
		} else {
			width := 32
			if p.opSize16 {
				width = 16
			}
			var a uint64
			if width == 16 {
				v, err := c.readRM16(m)
				if err != nil {
					c.fault(err)
					return
				}
				a = uint64(v)
			} else {
				v, err := c.readRM32(m)
				if err != nil {
					c.fault(err)
					return
				}
				a = uint64(v)
			}
			result := c.incDecCompute(a, width, isDec)
			var werr error
			if width == 16 {
				werr = c.writeRM16(m, uint16(result))
			} else {
				werr = c.writeRM32(m, uint32(result))
			}
			if werr != nil {
				c.fault(werr)
				return
			}
		}
		c.EIP = pos
	}
}

func incDecRegShortHandler(reg int, isDec bool) opHandler {
	return func(c *CPU, cursor uint32, p prefixState) {
		width := 32
		if p.opSize16 {
			width = 16
		}
		var a uint64
		if width == 16 {
			a = uint64(c.GetReg16(reg))
		} else {
			a = uint64(c.GetReg32(reg))
		}
		result := c.incDecCompute(a, width, isDec)
		if width == 16 {
			c.SetReg16(reg, uint16(result))
		} else {
			c.SetReg32(reg, uint32(result))
		}
		c.EIP = cursor
	}
}

func cdqHandler(c *CPU, cursor uint32, p prefixState) {
	if int32(c.GetReg32(0)) < 0 {
		c.SetReg32(RegEDX, 0xFFFFFFFF)
	} else {
		c.SetReg32(RegEDX, 0)
	}
	c.EIP = cursor
}

func testALIbHandler(c *CPU, cursor uint32, p prefixState) {
	imm, err := c.fetch8(cursor)
	if err != nil {
		c.fault(err)
		return
	}
	c.testCompute(uint64(c.GetReg8(0)), uint64(imm), 8)
	c.EIP = cursor + 1
}

func testEAXIzHandler(c *CPU, cursor uint32, p prefixState) {
	width := 32
	if p.opSize16 {
		width = 16
	}
	if width == 16 {
		imm, err := c.fetch16(cursor)
		if err != nil {
			c.fault(err)
			return
		}
		c.testCompute(uint64(c.GetReg16(0)), uint64(imm), 16)
		c.EIP = cursor + 2
	} else {
		imm, err := c.fetch32(cursor)
		if err != nil {
			c.fault(err)
			return
		}
		c.testCompute(uint64(c.GetReg32(0)), uint64(imm), 32)
		c.EIP = cursor + 4
	}
}

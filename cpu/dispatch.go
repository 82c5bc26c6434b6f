package cpu

// initBaseOps builds the 256-slot primary opcode table: an array-indexed
// dispatch, the shape that keeps the instruction mix discoverable and
// testable at the handler granularity. Generated programmatically where
// the encoding is regular (the 8 ALU ops x 6 addressing variants, the
// register-indexed short forms) rather than hand-listing 48+
// near-identical closures.
func (c *CPU) initBaseOps() {
	aluOps := []aluOp{opADD, opOR, opADC, opSBB, opAND, opSUB, opXOR, opCMP}
	for i, op := range aluOps {
		base := i * 8
		c.baseOps[base+0] = aluHandler(op, variantEbGb)
		c.baseOps[base+1] = aluHandler(op, variantEvGv)
		c.baseOps[base+2] = aluHandler(op, variantGbEb)
		c.baseOps[base+3] = aluHandler(op, variantGvEv)
		c.baseOps[base+4] = aluHandler(op, variantALIb)
		c.baseOps[base+5] = aluHandler(op, variantEAXIz)
	}

	for r := 0; r < 8; r++ {
		c.baseOps[0x40+r] = incDecRegShortHandler(r, false)
		c.baseOps[0x48+r] = incDecRegShortHandler(r, true)
		c.baseOps[0x50+r] = pushRegHandler(r)
		c.baseOps[0x58+r] = popRegHandler(r)
		c.baseOps[0xB0+r] = movRegImmHandler(r, false)
		c.baseOps[0xB8+r] = movRegImmHandler(r, true)
	}
	for code := 0; code < 0x10; code++ {
		c.baseOps[0x70+code] = jccRel8Handler(code)
	}

	c.baseOps[0x68] = pushImm32Handler
	c.baseOps[0x6A] = pushImm8Handler

	c.baseOps[0x80] = group1Handler(8, false)
	c.baseOps[0x81] = group1Handler(32, false)
	c.baseOps[0x83] = group1Handler(32, true)

	c.baseOps[0x86] = xchgRMHandler(false)
	c.baseOps[0x87] = xchgRMHandler(true)
	c.baseOps[0x88] = movHandler(true, false)
	c.baseOps[0x89] = movHandler(true, true)
	c.baseOps[0x8A] = movHandler(false, false)
	c.baseOps[0x8B] = movHandler(false, true)
	c.baseOps[0x8D] = leaHandler

	c.baseOps[0x90] = nopHandler
	for r := 1; r < 8; r++ {
		c.baseOps[0x90+r] = xchgEAXHandler(r)
	}
	c.baseOps[0x99] = cdqHandler
	c.baseOps[0x9C] = pushfdHandler
	c.baseOps[0x9D] = popfdHandler

	c.baseOps[0xA4] = movsHandler(1)
	c.baseOps[0xA5] = movsHandler(4)
	c.baseOps[0xA6] = cmpsHandler(1)
	c.baseOps[0xA7] = cmpsHandler(4)
	c.baseOps[0xA8] = testALIbHandler
	c.baseOps[0xA9] = testEAXIzHandler
	c.baseOps[0xAA] = stosHandler(1)
	c.baseOps[0xAB] = stosHandler(4)
	c.baseOps[0xAE] = scasHandler(1)
	c.baseOps[0xAF] = scasHandler(4)

	c.baseOps[0xC0] = group2Handler(false, false, false)
	c.baseOps[0xC1] = group2Handler(true, false, false)
	c.baseOps[0xC2] = retImm16Handler
	c.baseOps[0xC3] = retNearHandler
	c.baseOps[0xC6] = movImmRMHandler(false)
	c.baseOps[0xC7] = movImmRMHandler(true)

	c.baseOps[0xD0] = group2Handler(false, false, true)
	c.baseOps[0xD1] = group2Handler(true, false, true)
	c.baseOps[0xD2] = group2Handler(false, true, false)
	c.baseOps[0xD3] = group2Handler(true, true, false)
	for op := 0xD8; op <= 0xDF; op++ {
		c.baseOps[op] = x87Handler(op)
	}
	c.baseOps[0xD6] = salcHandler

	c.baseOps[0x6C] = insHandler(1)
	c.baseOps[0x6D] = insHandler(4)
	c.baseOps[0x6E] = outsHandler(1)
	c.baseOps[0x6F] = outsHandler(4)

	c.baseOps[0xE4] = inPortHandler(1, true)
	c.baseOps[0xE5] = inPortHandler(4, true)
	c.baseOps[0xE6] = outPortHandler(true)
	c.baseOps[0xE7] = outPortHandler(true)
	c.baseOps[0xE8] = callRel32Handler
	c.baseOps[0xE9] = jmpRel32Handler
	c.baseOps[0xEB] = jmpRel8Handler
	c.baseOps[0xEC] = inPortHandler(1, false)
	c.baseOps[0xED] = inPortHandler(4, false)
	c.baseOps[0xEE] = outPortHandler(false)
	c.baseOps[0xEF] = outPortHandler(false)

	c.baseOps[0xF4] = nopHandler // HLT — treated as a no-op, guests exit via RET-to-sentinel
	c.baseOps[0xF6] = group3Handler(false)
	c.baseOps[0xF7] = group3Handler(true)
	c.baseOps[0xF8] = clcHandler
	c.baseOps[0xF9] = stcHandler
	c.baseOps[0xFE] = incDecHandler(false)
	c.baseOps[0xFF] = group5Handler
}

// initExtendedOps builds the 256-slot 0F-extended table: Jcc rel32
// (0x80-0x8F), SETcc (0x90-0x9F), CMOVcc (0x40-0x4F), XGETBV (0x01),
// CPUID (0xA2), and the BT/BTS/BTR/BTC group (0xBA).
func (c *CPU) initExtendedOps() {
	for code := 0; code < 0x10; code++ {
		c.extOps[0x80+code] = jccRel32Handler(code)
		c.extOps[0x90+code] = setccHandler(code)
		c.extOps[0x40+code] = cmovccHandler(code)
	}
	c.extOps[0x01] = xgetbvHandler
	c.extOps[0xA2] = cpuidHandler
	c.extOps[0xBA] = group8Handler
}

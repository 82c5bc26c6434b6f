package cpu

import "fmt"

var aluMnemonics = [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}

// Disassemble renders a short mnemonic for the instruction at addr and
// returns a byte count, without mutating CPU state. It names only a few
// opcode groups (ALU ops 0x00-0x3F, PUSH/POP r32, Jcc rel8, CALL/JMP
// rel32, RET, RET imm16) and renders every other opcode as "db 0xNN".
// For the ALU group and 0F-prefixed opcodes the count covers prefixes and
// opcode bytes only, not ModR/M, displacement or immediate bytes. The
// full table-driven disassembler is debugtrace.Disassemble.
func (c *CPU) Disassemble(addr uint32) (string, int) {
	cursor := addr
	for {
		b, err := c.fetch8(cursor)
		if err != nil {
			return "(fault)", 1
		}
		switch b {
		case 0xF0, 0xF2, 0xF3, 0x64, 0x65, 0x66, 0x67, 0x2E, 0x36, 0x3E, 0x26:
			cursor++
			continue
		}
		break
	}
	opcode, err := c.fetch8(cursor)
	if err != nil {
		return "(fault)", int(cursor-addr) + 1
	}
	prefixLen := int(cursor - addr)

	if opcode == 0x0F {
		ext, _ := c.fetch8(cursor + 1)
		return fmt.Sprintf("0F %02X (ext)", ext), prefixLen + 2
	}
	if opcode < 0x40 && opcode%8 < 6 {
		return aluMnemonics[opcode/8] + " (variant)", prefixLen + 1
	}
	switch {
	case opcode >= 0x50 && opcode <= 0x57:
		return "push r32", prefixLen + 1
	case opcode >= 0x58 && opcode <= 0x5F:
		return "pop r32", prefixLen + 1
	case opcode >= 0x70 && opcode <= 0x7F:
		return "jcc rel8", prefixLen + 2
	case opcode == 0xE8:
		return "call rel32", prefixLen + 5
	case opcode == 0xE9:
		return "jmp rel32", prefixLen + 5
	case opcode == 0xC3:
		return "ret", prefixLen + 1
	case opcode == 0xC2:
		return "ret imm16", prefixLen + 3
	}
	return fmt.Sprintf("db 0x%02X", opcode), prefixLen + 1
}

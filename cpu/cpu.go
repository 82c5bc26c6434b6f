// Package cpu implements the IA-32 decoder and instruction interpreter:
// prefix scanning, ModR/M + SIB decoding, an array-indexed primary and
// 0F-extended handler table, group dispatchers fanning on ModR/M.reg, and
// the x87 subset. It is adapted from cpu_x86.go /
// cpu_x86_ops.go / cpu_x86_grp.go / fpu_x87.go, generalized from a
// system-bus-addressed retro CPU core to a flat guest address space with
// a host-call diversion point instead of IRQ lines.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package cpu

import "intuitionengine/guest"

// Register indices in canonical ISA order.
const (
	RegEAX = iota
	RegECX
	RegEDX
	RegEBX
	RegESP
	RegEBP
	RegESI
	RegEDI
)

// ThunkDispatcher recognizes synthetic host-call addresses and performs
// the host call in place of decoding instructions there. Implemented by
// package hostcall; cpu never imports hostcall to avoid a cycle — this is
// the "pre-step check" the design notes require: the decoder consults the
// import-value map before fetching the opcode at any branch target.
type ThunkDispatcher interface {
	IsThunk(addr uint32) bool
	Dispatch(c *CPU, addr uint32) error
}

// opHandler decodes and executes one instruction starting at the cursor
// (already past legacy prefixes) and must leave c.EIP at the
// post-instruction address itself.
type opHandler func(c *CPU, cursor uint32, p prefixState)

// CPU holds the full architectural state of one guest logical thread:
// eight 32-bit GPRs, EIP, the four maintained EFLAGS bits plus DF, the x87
// stack, eight opaque XMM slots, and a reference to the flat memory the
// interpreter steps against.
type CPU struct {
	Regs [8]uint32
	EIP  uint32

	CF, ZF, SF, OF, DF bool

	X87 X87State

	XMM [8][16]byte

	Mem     *guest.Memory
	Thunk   ThunkDispatcher
	LastErr uint32 // GetLastError/SetLastError value

	// OnStep, if set, runs before decoding the instruction at EIP on every
	// Step. Left nil it costs one nil check; a debug front end sets it to
	// feed a trace ring buffer or evaluate a breakpoint predicate.
	OnStep func(c *CPU)

	Cycles      uint64
	Instrs      uint64
	ExecLimit   uint64
	baseOps     [256]opHandler
	extOps      [256]opHandler

	pendingFault error
}

func New(mem *guest.Memory, thunk ThunkDispatcher) *CPU {
	c := &CPU{Mem: mem, Thunk: thunk, ExecLimit: 1_000_000}
	c.X87.init()
	c.initBaseOps()
	c.initExtendedOps()
	return c
}

func (c *CPU) Reset(eip, esp uint32) {
	for i := range c.Regs {
		c.Regs[i] = 0
	}
	c.Regs[RegESP] = esp
	c.EIP = eip
	c.CF, c.ZF, c.SF, c.OF, c.DF = false, false, false, false, false
	c.Cycles, c.Instrs = 0, 0
	c.X87.init()
}

// --- GPR accessors: 32/16/8-bit aliased views. ---

func (c *CPU) GetReg32(n int) uint32 { return c.Regs[n&7] }
func (c *CPU) SetReg32(n int, v uint32) { c.Regs[n&7] = v }

func (c *CPU) GetReg16(n int) uint16 { return uint16(c.Regs[n&7]) }
func (c *CPU) SetReg16(n int, v uint16) {
	c.Regs[n&7] = (c.Regs[n&7] &^ 0xFFFF) | uint32(v)
}

// GetReg8 returns AL/CL/DL/BL for n in 0..3, AH/CH/DH/BH for n in 4..7.
func (c *CPU) GetReg8(n int) uint8 {
	n &= 7
	if n < 4 {
		return uint8(c.Regs[n])
	}
	return uint8(c.Regs[n-4] >> 8)
}

func (c *CPU) SetReg8(n int, v uint8) {
	n &= 7
	if n < 4 {
		c.Regs[n] = (c.Regs[n] &^ 0xFF) | uint32(v)
		return
	}
	c.Regs[n-4] = (c.Regs[n-4] &^ 0xFF00) | (uint32(v) << 8)
}

// --- EFLAGS packing for PUSHFD/POPFD. Bit 1 is always set; CF at bit 0,
// ZF at bit 6, SF at bit 7, OF at bit 11. PF (bit 2) and
// AF (bit 4) are never modeled and always read as 0 — see DESIGN.md open
// questions. ---

func (c *CPU) PackEFLAGS() uint32 {
	v := uint32(0x2)
	if c.CF {
		v |= 1 << 0
	}
	if c.ZF {
		v |= 1 << 6
	}
	if c.SF {
		v |= 1 << 7
	}
	if c.DF {
		v |= 1 << 10
	}
	if c.OF {
		v |= 1 << 11
	}
	return v
}

func (c *CPU) UnpackEFLAGS(v uint32) {
	c.CF = v&(1<<0) != 0
	c.ZF = v&(1<<6) != 0
	c.SF = v&(1<<7) != 0
	c.DF = v&(1<<10) != 0
	c.OF = v&(1<<11) != 0
}

// --- Fetch helpers, little-endian, advance via returned cursor. ---

func (c *CPU) fetch8(addr uint32) (uint8, error)   { return c.Mem.ReadU8(addr) }
func (c *CPU) fetch16(addr uint32) (uint16, error) { return c.Mem.ReadU16(addr) }
func (c *CPU) fetch32(addr uint32) (uint32, error) { return c.Mem.ReadU32(addr) }

// --- Stack operations: ESP decrements before store, increments after load. ---

func (c *CPU) push32(v uint32) error {
	esp := c.Regs[RegESP] - 4
	if err := c.Mem.WriteU32(esp, v); err != nil {
		return err
	}
	c.Regs[RegESP] = esp
	return nil
}

func (c *CPU) pop32() (uint32, error) {
	esp := c.Regs[RegESP]
	v, err := c.Mem.ReadU32(esp)
	if err != nil {
		return 0, err
	}
	c.Regs[RegESP] = esp + 4
	return v, nil
}

// PushStack/PopStack are the exported forms of push32/pop32 used by the
// host-call fabric (a separate package) to push stdcall arguments and pop
// return addresses across the CALL/RET boundary.
func (c *CPU) PushStack(v uint32) error { return c.push32(v) }
func (c *CPU) PopStack() (uint32, error) { return c.pop32() }

func (c *CPU) push16(v uint16) error {
	esp := c.Regs[RegESP] - 2
	if err := c.Mem.WriteU16(esp, v); err != nil {
		return err
	}
	c.Regs[RegESP] = esp
	return nil
}

func (c *CPU) pop16() (uint16, error) {
	esp := c.Regs[RegESP]
	v, err := c.Mem.ReadU16(esp)
	if err != nil {
		return 0, err
	}
	c.Regs[RegESP] = esp + 2
	return v, nil
}

// prefixState is the decoded set of legacy prefixes passed by value to
// handlers.
type prefixState struct {
	lock        bool
	repne       bool
	rep         bool
	segOverride int8 // -1 none, otherwise guest.Memory fs/gs selector: 0=FS,1=GS
	opSize16    bool
	addrSize16  bool
}

func (p prefixState) segBase(c *CPU) uint32 {
	switch p.segOverride {
	case 0:
		return c.Mem.FSBase()
	case 1:
		return c.Mem.GSBase()
	default:
		return 0
	}
}

// fault is how a handler communicates a session-fatal condition back
// to Step without every handler signature threading an error return —
// mirrors the single `lastFault` field pattern in cpu_x86.go.
func (c *CPU) fault(err error) {
	c.pendingFault = err
}

// Step decodes and executes exactly one instruction. It returns a non-nil
// error exactly when the session must end: a memory/divide/unsupported
// fault, or the instruction counter has exceeded ExecLimit.
func (c *CPU) Step() error {
	c.Instrs++
	if c.Instrs > c.ExecLimit {
		return guest.NewError(guest.ExecutionLimit, "instruction limit exceeded")
	}
	if c.OnStep != nil {
		c.OnStep(c)
	}

	if c.Thunk != nil && c.Thunk.IsThunk(c.EIP) {
		return c.Thunk.Dispatch(c, c.EIP)
	}

	cursor := c.EIP
	p := prefixState{segOverride: -1}
prefixLoop:
	for {
		b, err := c.fetch8(cursor)
		if err != nil {
			return err
		}
		switch b {
		case 0xF0:
			p.lock = true
		case 0xF2:
			p.repne = true
		case 0xF3:
			p.rep = true
		case 0x64:
			p.segOverride = 0
		case 0x65:
			p.segOverride = 1
		case 0x66:
			p.opSize16 = true
		case 0x67:
			p.addrSize16 = true
		case 0x2E, 0x36, 0x3E, 0x26: // CS/SS/DS/ES overrides: no-op, flat model
		default:
			break prefixLoop
		}
		cursor++
	}

	opcode, err := c.fetch8(cursor)
	if err != nil {
		return err
	}
	cursor++

	c.pendingFault = nil
	if opcode == 0x0F {
		ext, err := c.fetch8(cursor)
		if err != nil {
			return err
		}
		cursor++
		h := c.extOps[ext]
		if h == nil {
			return guest.NewError(guest.UnsupportedInstruction, opcodeDetail(0x0F, int(ext)))
		}
		h(c, cursor, p)
	} else {
		h := c.baseOps[opcode]
		if h == nil {
			return guest.NewError(guest.UnsupportedInstruction, opcodeDetail(int(opcode), -1))
		}
		h(c, cursor, p)
	}
	if c.pendingFault != nil {
		return c.pendingFault
	}
	return nil
}

func opcodeDetail(op int, ext int) string {
	if ext >= 0 {
		return hexByte(op) + " 0F " + hexByte(ext)
	}
	return hexByte(op)
}

func hexByte(v int) string {
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{'0', 'x', hexDigits[(v>>4)&0xF], hexDigits[v&0xF]})
}

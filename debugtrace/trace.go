// Package debugtrace is an enable-gated instruction trace channel
// (cmd/ia32run turns it on with -trace or IA32VM_TRACE=1):
// an optional breakpoint predicate evaluated in a sandboxed Lua VM (one
// per Tracer, via github.com/yuin/gopher-lua) against the CPU's
// registers before each traced step, and a ring buffer of the
// most recent executed addresses for post-mortem inspection.
//
// Modeled on debug_monitor.go/debug_conditions.go's
// breakpoint-condition machinery, generalized from its small
// fixed grammar (`r1==$FF`, `[$1000]==$42`, `hitcount>10`) to an
// arbitrary Lua boolean expression, since a host-call-heavy PE guest's
// interesting breakpoint conditions (has EAX's thunk target changed,
// has ECX exceeded some bound AND a flag is set) outgrow a three-token
// grammar faster than a retro CPU's register set does.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package debugtrace

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"intuitionengine/cpu"
	"intuitionengine/guest"
)

// Entry is one traced step, captured before the instruction at EIP
// executes.
type Entry struct {
	EIP   uint32
	Instr uint64 // CPU.Instrs at capture time
}

// Tracer owns a ring buffer of recent Entries and an optional compiled
// predicate gating which steps get recorded, per the design note
// that tracing must never be on the hot path when disabled.
type Tracer struct {
	enabled bool
	buf     []Entry
	cap     int
	next    int
	filled  bool

	predicateSrc string
	state        *lua.LState
}

// New creates a disabled Tracer with a ring buffer of the given capacity.
// Capacity 0 disables buffering even when later enabled (predicate-only
// mode, useful for a conditional-breakpoint-only session).
func New(capacity int) *Tracer {
	return &Tracer{buf: make([]Entry, capacity), cap: capacity}
}

func (t *Tracer) Enable()  { t.enabled = true }
func (t *Tracer) Disable() { t.enabled = false }
func (t *Tracer) Enabled() bool { return t.enabled }

// SetPredicate stores a Lua expression that Should evaluates against
// `eax`..`edi`, `eip`, `eflags`, and `instrs` globals before each traced
// step, returning its truthiness. The source is not checked here: a
// malformed expression never matches. An empty source clears the predicate (every
// step matches), mirroring debug_conditions.go's "cond == nil means
// unconditional" rule in evaluateCondition.
func (t *Tracer) SetPredicate(src string) error {
	if src == "" {
		if t.state != nil {
			t.state.Close()
		}
		t.state = nil
		t.predicateSrc = ""
		return nil
	}
	st := lua.NewState(lua.Options{SkipOpenLibs: true})
	if t.state != nil {
		t.state.Close()
	}
	t.state = st
	t.predicateSrc = src
	return nil
}

// Should reports whether the current CPU state satisfies the compiled
// predicate (true if none is set), and records the step into the ring
// buffer when it does and tracing is enabled.
func (t *Tracer) Should(c *cpu.CPU) bool {
	if !t.enabled {
		return false
	}
	if t.state == nil {
		t.record(c)
		return true
	}

	st := t.state
	st.SetGlobal("eax", lua.LNumber(c.GetReg32(cpu.RegEAX)))
	st.SetGlobal("ecx", lua.LNumber(c.GetReg32(cpu.RegECX)))
	st.SetGlobal("edx", lua.LNumber(c.GetReg32(cpu.RegEDX)))
	st.SetGlobal("ebx", lua.LNumber(c.GetReg32(cpu.RegEBX)))
	st.SetGlobal("esp", lua.LNumber(c.GetReg32(cpu.RegESP)))
	st.SetGlobal("ebp", lua.LNumber(c.GetReg32(cpu.RegEBP)))
	st.SetGlobal("esi", lua.LNumber(c.GetReg32(cpu.RegESI)))
	st.SetGlobal("edi", lua.LNumber(c.GetReg32(cpu.RegEDI)))
	st.SetGlobal("eip", lua.LNumber(c.EIP))
	st.SetGlobal("eflags", lua.LNumber(c.PackEFLAGS()))
	st.SetGlobal("instrs", lua.LNumber(c.Instrs))

	expr := "return (" + t.predicateSrc + ")"
	if err := st.DoString(expr); err != nil {
		return false // a malformed predicate never fires, it doesn't crash the session
	}
	ret := st.Get(-1)
	st.Pop(1)
	ok := lua.LVAsBool(ret)
	if ok {
		t.record(c)
	}
	return ok
}

func (t *Tracer) record(c *cpu.CPU) {
	if t.cap == 0 {
		return
	}
	t.buf[t.next] = Entry{EIP: c.EIP, Instr: c.Instrs}
	t.next = (t.next + 1) % t.cap
	if t.next == 0 {
		t.filled = true
	}
}

// Recent returns the buffered entries oldest-first.
func (t *Tracer) Recent() []Entry {
	if t.cap == 0 {
		return nil
	}
	if !t.filled {
		out := make([]Entry, t.next)
		copy(out, t.buf[:t.next])
		return out
	}
	out := make([]Entry, t.cap)
	copy(out, t.buf[t.next:])
	copy(out[t.cap-t.next:], t.buf[:t.next])
	return out
}

// Close releases the Lua VM, if any.
func (t *Tracer) Close() {
	if t.state != nil {
		t.state.Close()
		t.state = nil
	}
}

func (e Entry) String() string {
	return fmt.Sprintf("#%d EIP=0x%08X", e.Instr, e.EIP)
}

// Disassemble renders an Entry as a mnemonic line by re-decoding the
// instruction byte at e.EIP from mem, for a human reading back a Recent()
// dump rather than raw addresses.
func (e Entry) Disassemble(mem *guest.Memory) string {
	lines := Disassemble(mem, e.EIP, 1)
	if len(lines) == 0 {
		return e.String()
	}
	l := lines[0]
	return fmt.Sprintf("#%d 0x%08X: %-24s %s", e.Instr, l.Address, l.HexBytes, l.Mnemonic)
}

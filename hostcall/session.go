package hostcall

import (
	"intuitionengine/cpu"
	"intuitionengine/guest"
)

// sentinelReturn is the fixed address execute_at_with_stack pushes as the
// fake return address; it is never inside a loaded image or the thunk
// region, so control can only reach it via the matching RET, and nested
// sessions remain correctly scoped because CALL/RET preserve stack
// discipline even though every nesting level reuses the same sentinel.
const sentinelReturn = 0x6FFFFFF0

// SessionState names the transitions one
// execution session.
type SessionState int

const (
	Decoding SessionState = iota
	Suspended
	Faulted
	Completed
)

// ExecuteAtWithStack begins a bounded execution session at addr: pushes
// args right-to-left, pushes the sentinel return address, sets EIP, and
// steps until EIP equals the sentinel or a fault/limit ends the session.
// EIP is saved and restored around the call so nested sessions (DllMain,
// TLS callbacks, COM dispatch, dialog procs) compose without threads or
// coroutines.
func ExecuteAtWithStack(c *cpu.CPU, addr uint32, args []uint32) (uint32, SessionState, error) {
	return executeAt(c, addr, args, false, 0)
}

// ExecuteAtWithStackECX additionally loads ECX with `this` and does not
// push it as a stack argument — the thiscall wrapper.
func ExecuteAtWithStackECX(c *cpu.CPU, addr uint32, ecx uint32, args []uint32) (uint32, SessionState, error) {
	return executeAt(c, addr, args, true, ecx)
}

func executeAt(c *cpu.CPU, addr uint32, args []uint32, setECX bool, ecx uint32) (uint32, SessionState, error) {
	if err := c.Mem.EnterCall(); err != nil {
		return 0, Faulted, err
	}
	defer c.Mem.LeaveCall()

	savedEIP := c.EIP
	savedECX := c.Regs[cpu.RegECX]

	for i := len(args) - 1; i >= 0; i-- {
		if err := c.PushStack(args[i]); err != nil {
			return 0, Faulted, err
		}
	}
	if err := c.PushStack(sentinelReturn); err != nil {
		return 0, Faulted, err
	}
	if setECX {
		c.Regs[cpu.RegECX] = ecx
	}
	c.EIP = addr

	for {
		if c.EIP == sentinelReturn {
			break
		}
		if err := c.Step(); err != nil {
			c.EIP = savedEIP
			c.Regs[cpu.RegECX] = savedECX
			if ge, ok := err.(*guest.Error); ok && ge.Kind == guest.ExecutionLimit {
				return 0, Faulted, err
			}
			return 0, Faulted, err
		}
	}

	result := c.GetReg32(cpu.RegEAX)
	c.EIP = savedEIP
	c.Regs[cpu.RegECX] = savedECX
	return result, Completed, nil
}

// DllMain calls a module's entry point as stdcall(hModule, reason, 0),
// A return of 0 indicates init failure; the caller
// decides whether that is fatal (this engine reports it but does not
// itself abort resolution of other modules).
func DllMain(c *cpu.CPU, entryPoint, hModule uint32, reason uint32) (bool, error) {
	if entryPoint == 0 {
		return true, nil
	}
	eax, _, err := ExecuteAtWithStack(c, entryPoint, []uint32{hModule, reason, 0})
	if err != nil {
		return false, err
	}
	return eax != 0, nil
}

const (
	DLLProcessAttach = 1
	DLLProcessDetach = 0
	DLLThreadAttach  = 2
	DLLThreadDetach  = 3
)

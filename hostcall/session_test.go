package hostcall

import (
	"testing"

	"intuitionengine/cpu"
	"intuitionengine/guest"
)

func newSessionCPU(t *testing.T) (*cpu.CPU, *guest.Memory) {
	t.Helper()
	mem := guest.New(0x00100000, 0x00300000)
	stackTop := uint32(0x00100000 + 0x00300000)
	mem.InitStack(stackTop-0x10000, stackTop)
	f := New()
	c := cpu.New(mem, f)
	c.Regs[cpu.RegESP] = stackTop - 0x100
	return c, mem
}

func writeCode(t *testing.T, mem *guest.Memory, addr uint32, bytes ...byte) {
	t.Helper()
	if err := mem.WriteBytes(addr, bytes); err != nil {
		t.Fatalf("writeCode: %v", err)
	}
}

// ExecuteAtWithStack runs a RET-terminated stdcall function to completion,
// surfacing EAX and restoring the caller's EIP/ECX.
func TestExecuteAtWithStack(t *testing.T) {
	c, mem := newSessionCPU(t)
	fn := uint32(0x00101000)
	// MOV EAX, [ESP+4]; RET 4  (stdcall returning its single argument)
	writeCode(t, mem, fn,
		0x8B, 0x44, 0x24, 0x04, // mov eax, [esp+4]
		0xC2, 0x04, 0x00, // ret 4
	)
	c.EIP = 0x00100500
	c.Regs[cpu.RegECX] = 0xAAAAAAAA

	result, state, err := ExecuteAtWithStack(c, fn, []uint32{0x1234})
	if err != nil {
		t.Fatalf("ExecuteAtWithStack: %v", err)
	}
	if state != Completed {
		t.Fatalf("state: got %v, want Completed", state)
	}
	if result != 0x1234 {
		t.Errorf("result: got 0x%08X, want 0x1234", result)
	}
	if c.EIP != 0x00100500 {
		t.Errorf("EIP not restored: got 0x%08X, want 0x00100500", c.EIP)
	}
	if c.Regs[cpu.RegECX] != 0xAAAAAAAA {
		t.Errorf("ECX not restored: got 0x%08X, want 0xAAAAAAAA", c.Regs[cpu.RegECX])
	}
}

// ExecuteAtWithStackECX loads `this` into ECX without pushing it as a
// stack argument.
func TestExecuteAtWithStackECX(t *testing.T) {
	c, mem := newSessionCPU(t)
	fn := uint32(0x00101000)
	// MOV EAX, ECX; RET  (thiscall returning `this`)
	writeCode(t, mem, fn,
		0x8B, 0xC1, // mov eax, ecx
		0xC3, // ret
	)
	c.EIP = 0x00100500

	result, state, err := ExecuteAtWithStackECX(c, fn, 0xCAFEBABE, nil)
	if err != nil {
		t.Fatalf("ExecuteAtWithStackECX: %v", err)
	}
	if state != Completed {
		t.Fatalf("state: got %v, want Completed", state)
	}
	if result != 0xCAFEBABE {
		t.Errorf("result: got 0x%08X, want 0xCAFEBABE", result)
	}
}

// A fault inside the callee surfaces as Faulted and still restores EIP/ECX.
func TestExecuteAtWithStackFault(t *testing.T) {
	c, mem := newSessionCPU(t)
	fn := uint32(0x00101000)
	writeCode(t, mem, fn, 0x0F, 0x0B) // unsupported opcode
	c.EIP = 0x00100500
	c.Regs[cpu.RegECX] = 0x11111111

	_, state, err := ExecuteAtWithStack(c, fn, nil)
	if err == nil {
		t.Fatal("expected a fault, got nil")
	}
	if state != Faulted {
		t.Errorf("state: got %v, want Faulted", state)
	}
	if c.EIP != 0x00100500 {
		t.Errorf("EIP not restored after fault: got 0x%08X, want 0x00100500", c.EIP)
	}
	if c.Regs[cpu.RegECX] != 0x11111111 {
		t.Errorf("ECX not restored after fault: got 0x%08X, want 0x11111111", c.Regs[cpu.RegECX])
	}
}

// DllMain with a zero entry point is a no-op success, matching an optional
// DLL with no init routine.
func TestDllMainNilEntryPoint(t *testing.T) {
	c, _ := newSessionCPU(t)
	ok, err := DllMain(c, 0, 0x10000000, DLLProcessAttach)
	if err != nil {
		t.Fatalf("DllMain: %v", err)
	}
	if !ok {
		t.Error("expected a nil entry point to report success")
	}
}

// DllMain surfaces a zero return from the entry point as init failure.
func TestDllMainFailureReturn(t *testing.T) {
	c, mem := newSessionCPU(t)
	fn := uint32(0x00101000)
	// XOR EAX, EAX; RET 12  (stdcall(hModule, reason, reserved), returns FALSE)
	writeCode(t, mem, fn,
		0x31, 0xC0, // xor eax, eax
		0xC2, 0x0C, 0x00, // ret 12
	)
	c.EIP = 0x00100500

	ok, err := DllMain(c, fn, 0x10000000, DLLProcessAttach)
	if err != nil {
		t.Fatalf("DllMain: %v", err)
	}
	if ok {
		t.Error("expected a zero return from the entry point to report failure")
	}
}

package hostcall

import (
	"testing"

	"intuitionengine/cpu"
	"intuitionengine/guest"
)

func newTestCPU(t *testing.T, f *Fabric) (*cpu.CPU, *guest.Memory) {
	t.Helper()
	mem := guest.New(0x00100000, 0x00300000)
	stackTop := uint32(0x00100000 + 0x00300000)
	mem.InitStack(stackTop-0x10000, stackTop)
	c := cpu.New(mem, f)
	c.Regs[cpu.RegESP] = stackTop - 0x100
	return c, mem
}

// AllocateThunk returns the same address on repeat lookups of the same
// (dll, name) pair, per the import-target-equality invariant.
func TestAllocateThunkStable(t *testing.T) {
	f := New()
	f.RegisterImportStdcall("KERNEL32.DLL", "GetLastError", 0, func(c *cpu.CPU) (uint32, error) {
		return 0, nil
	})

	a1, ok := f.AllocateThunk("kernel32.dll", "GetLastError", 0, false)
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	a2, ok := f.AllocateThunk("KERNEL32.dll", "GetLastError", 0, false)
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if a1 != a2 {
		t.Errorf("thunk addresses differ across repeat lookups: 0x%08X vs 0x%08X", a1, a2)
	}
}

// Ordinal-only imports resolve through the (dll, ordinal) map even when no
// name is known.
func TestAllocateThunkByOrdinal(t *testing.T) {
	f := New()
	f.RegisterImportOrdinal("WS2_32.DLL", 1, func(c *cpu.CPU) (uint32, error) { return 0, nil })

	addr, ok := f.AllocateThunk("ws2_32.dll", "", 1, true)
	if !ok {
		t.Fatal("expected ordinal resolution to succeed")
	}
	if addr == 0 {
		t.Error("expected a non-zero thunk address")
	}
}

// An unregistered import fails to allocate a thunk at all.
func TestAllocateThunkUnresolved(t *testing.T) {
	f := New()
	if _, ok := f.AllocateThunk("user32.dll", "NoSuchFunc", 0, false); ok {
		t.Fatal("expected resolution to fail for an unregistered import")
	}
}

// Dispatch pops the fake return address, invokes the registered host
// function, applies stdcall cleanup, and resumes at the return address.
func TestDispatchStdcallCleanup(t *testing.T) {
	f := New()
	f.RegisterImportStdcall("USER32.DLL", "MessageBeep", 4, func(c *cpu.CPU) (uint32, error) {
		return 1, nil
	})
	c, _ := newTestCPU(t, f)

	addr, ok := f.AllocateThunk("user32.dll", "MessageBeep", 0, false)
	if !ok {
		t.Fatal("expected resolution to succeed")
	}

	retAddr := uint32(0x00100050)
	if err := c.PushStack(0xDEAD); err != nil { // one stdcall arg
		t.Fatal(err)
	}
	if err := c.PushStack(retAddr); err != nil {
		t.Fatal(err)
	}
	espBeforeDispatch := c.Regs[cpu.RegESP]

	if err := f.Dispatch(c, addr); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if c.EIP != retAddr {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", c.EIP, retAddr)
	}
	if c.GetReg32(cpu.RegEAX) != 1 {
		t.Errorf("EAX: got 0x%08X, want 1", c.GetReg32(cpu.RegEAX))
	}
	if want := espBeforeDispatch + 4 + 4; c.Regs[cpu.RegESP] != want {
		t.Errorf("ESP after cleanup: got 0x%08X, want 0x%08X", c.Regs[cpu.RegESP], want)
	}
}

// Dispatch at an unregistered address reports UnsupportedInstruction rather
// than panicking.
func TestDispatchUnresolvedThunk(t *testing.T) {
	f := New()
	c, _ := newTestCPU(t, f)
	if err := c.PushStack(0x00100050); err != nil {
		t.Fatal(err)
	}
	err := f.Dispatch(c, 0x70000000)
	if err == nil {
		t.Fatal("expected an error for an unregistered thunk address")
	}
	ge, ok := err.(*guest.Error)
	if !ok || ge.Kind != guest.UnsupportedInstruction {
		t.Errorf("error: got %v, want guest.UnsupportedInstruction", err)
	}
}

// RegisterIATSlot makes the slot's own address dispatchable even though its
// stored value is the thunk address, so CALL [iat_slot] is recognized too.
func TestIATSlotIsThunk(t *testing.T) {
	f := New()
	f.RegisterImportStdcall("KERNEL32.DLL", "ExitProcess", 4, func(c *cpu.CPU) (uint32, error) {
		return 0, nil
	})
	f.RegisterIATSlot(0x00101000, "kernel32.dll", "ExitProcess", 0, false)

	if !f.IsThunk(0x00101000) {
		t.Error("expected the registered IAT slot address to be recognized as a thunk")
	}
	if f.IsThunk(0x00101004) {
		t.Error("did not expect an unrelated address to be recognized as a thunk")
	}
}

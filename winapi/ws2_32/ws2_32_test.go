package ws2_32

import (
	"testing"

	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

func newTestRig(t *testing.T) (*hostcall.Fabric, *cpu.CPU) {
	t.Helper()
	mem := guest.New(0x10000000, 0x00300000)
	stackTop := uint32(0x10000000 + 0x00300000)
	mem.InitStack(stackTop-0x10000, stackTop)

	fabric := hostcall.New()
	if err := New().Load(nil, fabric); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := cpu.New(mem, fabric)
	c.Regs[cpu.RegESP] = stackTop - 0x1000
	return fabric, c
}

func callStdcall(t *testing.T, fabric *hostcall.Fabric, c *cpu.CPU, name string, args ...uint32) uint32 {
	t.Helper()
	addr, ok := fabric.AllocateThunk(dllName, name, 0, false)
	if !ok {
		t.Fatalf("no import registered for %s", name)
	}
	for i := len(args) - 1; i >= 0; i-- {
		if err := c.PushStack(args[i]); err != nil {
			t.Fatal(err)
		}
	}
	retAddr := uint32(0x10000500)
	if err := c.PushStack(retAddr); err != nil {
		t.Fatal(err)
	}
	if err := fabric.Dispatch(c, addr); err != nil {
		t.Fatalf("Dispatch(%s): %v", name, err)
	}
	return c.GetReg32(cpu.RegEAX)
}

// WSAStartup zeroes the caller's WSADATA buffer, read from arg1, and
// reports success.
func TestWSAStartupZeroesWSAData(t *testing.T) {
	fabric, c := newTestRig(t)
	dataPtr := uint32(0x10200000)
	if err := c.Mem.WriteBytes(dataPtr, []byte{0xFF, 0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatal(err)
	}

	const wVersionRequested = 0x0202 // 2.2
	got := callStdcall(t, fabric, c, "WSAStartup", wVersionRequested, dataPtr)
	if got != 0 {
		t.Errorf("WSAStartup: got %d, want 0", got)
	}
	b, err := c.Mem.ReadBytes(dataPtr, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range b {
		if v != 0 {
			t.Errorf("WSADATA byte %d: got 0x%02X, want 0 (zeroed)", i, v)
		}
	}
}

func TestWSACleanupAndGetLastError(t *testing.T) {
	fabric, c := newTestRig(t)
	if got := callStdcall(t, fabric, c, "WSACleanup"); got != 0 {
		t.Errorf("WSACleanup: got %d, want 0", got)
	}
	if got := callStdcall(t, fabric, c, "WSAGetLastError"); got != 0 {
		t.Errorf("WSAGetLastError: got %d, want 0", got)
	}
}

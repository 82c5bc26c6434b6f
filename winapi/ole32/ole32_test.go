package ole32

import (
	"testing"

	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

func newTestRig(t *testing.T) (*hostcall.Fabric, *cpu.CPU) {
	t.Helper()
	mem := guest.New(0x10000000, 0x00300000)
	mem.InitHeap(0x10200000, 0x10280000)
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

func TestCoInitializeReportsSOK(t *testing.T) {
	fabric, c := newTestRig(t)
	if got := callStdcall(t, fabric, c, "CoInitialize", 0); got != sOK {
		t.Errorf("got 0x%08X, want S_OK", got)
	}
}

// CoCreateInstance always reports E_NOINTERFACE as a guest.Com fault: no
// in-process COM server.
func TestCoCreateInstanceReportsNoInterface(t *testing.T) {
	fabric, c := newTestRig(t)
	addr, ok := fabric.AllocateThunk(dllName, "CoCreateInstance", 0, false)
	if !ok {
		t.Fatal("no import registered for CoCreateInstance")
	}
	for _, v := range []uint32{0, 0, 0, 0, 0} {
		if err := c.PushStack(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.PushStack(0x10000500); err != nil {
		t.Fatal(err)
	}
	err := fabric.Dispatch(c, addr)
	if err == nil {
		t.Fatal("expected CoCreateInstance to fault with guest.Com")
	}
	if ge, ok := err.(*guest.Error); !ok || ge.Kind != guest.Com {
		t.Errorf("got %v, want a guest.Com fault", err)
	}
}

// CoTaskMemAlloc/CoTaskMemFree round-trip through guest.Memory's heap
// arena, reading the size argument at arg0.
func TestCoTaskMemAllocFree(t *testing.T) {
	fabric, c := newTestRig(t)
	addr := callStdcall(t, fabric, c, "CoTaskMemAlloc", 32)
	if addr == 0 {
		t.Fatal("CoTaskMemAlloc returned NULL")
	}
	if sz, ok := c.Mem.HeapSize(addr); !ok || sz != 32 {
		t.Errorf("HeapSize: got (%d, %v), want (32, true)", sz, ok)
	}
	callStdcall(t, fabric, c, "CoTaskMemFree", addr)
	if _, ok := c.Mem.HeapSize(addr); ok {
		t.Error("expected heap bookkeeping to be removed after CoTaskMemFree")
	}
}

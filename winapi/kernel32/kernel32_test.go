package kernel32

import (
	"os"
	"testing"

	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

// newTestRig wires a Module into a real Fabric/CPU pair so tests can drive
// host functions through Fabric.Dispatch exactly as a guest CALL to a
// thunk address would, rather than calling the HostFunc directly — this
// is what caught the argAt off-by-one documented in DESIGN.md.
func newTestRig(t *testing.T, sandboxDir string) (*Module, *hostcall.Fabric, *cpu.CPU) {
	t.Helper()
	mem := guest.New(0x10000000, 0x00300000)
	mem.InitHeap(0x10200000, 0x10280000)
	stackTop := uint32(0x10000000 + 0x00300000)
	mem.InitStack(stackTop-0x10000, stackTop)

	fabric := hostcall.New()
	mod := New(mem, sandboxDir)
	if err := mod.Load(nil, fabric); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := cpu.New(mem, fabric)
	c.Regs[cpu.RegESP] = stackTop - 0x1000
	return mod, fabric, c
}

// callStdcall pushes args right-to-left, pushes a synthetic return
// address, and dispatches name directly, returning EAX.
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
	if c.EIP != retAddr {
		t.Errorf("%s: EIP after dispatch = 0x%08X, want 0x%08X (return address)", name, c.EIP, retAddr)
	}
	return c.GetReg32(cpu.RegEAX)
}

// HeapAlloc/HeapFree/HeapSize round-trip through the real argument-passing
// path, verifying arg0 (hHeap, ignored) through arg2 (size) land correctly.
func TestHeapAllocFreeSize(t *testing.T) {
	mod, fabric, c := newTestRig(t, t.TempDir())
	hHeap := callStdcall(t, fabric, c, "HeapCreate", 0, 0, 0)
	if hHeap == 0 {
		t.Fatal("HeapCreate returned NULL")
	}

	addr := callStdcall(t, fabric, c, "HeapAlloc", hHeap, 0, 64)
	if addr == 0 {
		t.Fatal("HeapAlloc returned NULL")
	}

	size := callStdcall(t, fabric, c, "HeapSize", hHeap, 0, addr)
	if size != 64 {
		t.Errorf("HeapSize: got %d, want 64", size)
	}

	callStdcall(t, fabric, c, "HeapFree", hHeap, 0, addr)
	if _, ok := c.Mem.HeapSize(addr); ok {
		t.Error("expected HeapSize bookkeeping to be removed after HeapFree")
	}
	_ = mod
}

// HeapAlloc with HEAP_ZERO_MEMORY actually zeroes the returned block.
func TestHeapAllocZeroMemory(t *testing.T) {
	_, fabric, c := newTestRig(t, t.TempDir())
	if err := c.Mem.WriteBytes(0x10200000, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	hHeap := callStdcall(t, fabric, c, "HeapCreate", 0, 0, 0)
	const heapZeroMemory = 0x00000008
	addr := callStdcall(t, fabric, c, "HeapAlloc", hHeap, heapZeroMemory, 16)
	got, err := c.Mem.ReadBytes(addr, 16)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != 0 {
			t.Errorf("byte %d: got 0x%02X, want 0 (zeroed allocation)", i, b)
		}
	}
}

// TlsAlloc/TlsSetValue/TlsGetValue/TlsFree round-trip through the stack-
// argument path.
func TestTlsRoundTrip(t *testing.T) {
	_, fabric, c := newTestRig(t, t.TempDir())
	slot := callStdcall(t, fabric, c, "TlsAlloc")
	callStdcall(t, fabric, c, "TlsSetValue", slot, 0xCAFEBABE)
	got := callStdcall(t, fabric, c, "TlsGetValue", slot)
	if got != 0xCAFEBABE {
		t.Errorf("TlsGetValue: got 0x%08X, want 0xCAFEBABE", got)
	}
	callStdcall(t, fabric, c, "TlsFree", slot)
}

// GetLastError/SetLastError round-trip, and GetModuleHandleA(NULL) returns
// the main module's base.
func TestLastErrorAndModuleHandle(t *testing.T) {
	mod, fabric, c := newTestRig(t, t.TempDir())
	mod.BaseDir = 0x00400000

	callStdcall(t, fabric, c, "SetLastError", 42)
	if got := callStdcall(t, fabric, c, "GetLastError"); got != 42 {
		t.Errorf("GetLastError: got %d, want 42", got)
	}

	if got := callStdcall(t, fabric, c, "GetModuleHandleA", 0); got != 0x00400000 {
		t.Errorf("GetModuleHandleA(NULL): got 0x%08X, want 0x00400000", got)
	}
}

// CreateFileA/WriteFile/ReadFile/CloseHandle exercise the sandboxed file
// path end to end inside a temp directory.
func TestSandboxedFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mod, fabric, c := newTestRig(t, dir)
	_ = mod

	namePtr := uint32(0x10210000)
	if err := c.Mem.WriteBytes(namePtr, append([]byte("out.txt"), 0)); err != nil {
		t.Fatal(err)
	}
	const createAlways = 2
	hFile := callStdcall(t, fabric, c, "CreateFileA", namePtr, 0, 0, 0, createAlways, 0, 0)
	if hFile == 0xFFFFFFFF {
		t.Fatal("CreateFileA failed")
	}

	bufPtr := uint32(0x10210100)
	data := []byte("hello, guest")
	if err := c.Mem.WriteBytes(bufPtr, data); err != nil {
		t.Fatal(err)
	}
	writtenPtr := uint32(0x10210200)
	callStdcall(t, fabric, c, "WriteFile", hFile, bufPtr, uint32(len(data)), writtenPtr, 0)
	written, err := c.Mem.ReadU32(writtenPtr)
	if err != nil {
		t.Fatal(err)
	}
	if written != uint32(len(data)) {
		t.Errorf("bytes written: got %d, want %d", written, len(data))
	}
	callStdcall(t, fabric, c, "CloseHandle", hFile)

	got, err := os.ReadFile(dir + "/out.txt")
	if err != nil {
		t.Fatalf("reading sandboxed file back: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("file contents: got %q, want %q", got, data)
	}
}

// A path-traversal attempt is rejected rather than escaping the sandbox.
func TestSandboxRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	_, fabric, c := newTestRig(t, dir)

	namePtr := uint32(0x10210000)
	if err := c.Mem.WriteBytes(namePtr, append([]byte("../escape.txt"), 0)); err != nil {
		t.Fatal(err)
	}
	const createAlways = 2
	hFile := callStdcall(t, fabric, c, "CreateFileA", namePtr, 0, 0, 0, createAlways, 0, 0)
	if hFile != 0xFFFFFFFF {
		t.Errorf("expected CreateFileA to reject a path-traversal name, got handle 0x%08X", hFile)
	}
}

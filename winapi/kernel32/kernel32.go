// Package kernel32 is a synthetic KERNEL32.DLL: the allocator family
// (Heap*/Global*/Local*), synthetic module handles (LoadLibrary*/
// FreeLibrary/GetModuleHandle*; there is no GetProcAddress), TLS slots, sandboxed file
// I/O, and a console surface backed by golang.org/x/term. Every exported
// routine is registered into a hostcall.Fabric as a HostFunc reading
// stdcall arguments off the guest stack, mirroring how
// a device's MMIO registers into the bus in file_io.go, generalized from
// memory-mapped registers to stack-passed arguments.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package kernel32

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

const dllName = "KERNEL32.DLL"

// Module adapts kernel32 to loader.HostModule: it has no backing PE image,
// it registers its exports straight into the Fabric when pulled in by an
// import directory.
type Module struct {
	BaseDir    uint32
	SandboxDir string // host directory guest file paths are confined to, per file_io.go's sanitizePath

	mem *guest.Memory

	heaps    map[uint32]*heap
	nextHeap uint32

	tlsNext  uint32
	tlsUsed  map[uint32]bool

	modules    map[string]uint32 // normalized name -> synthetic module handle
	nextModule uint32

	lastError uint32
}

func New(mem *guest.Memory, sandboxDir string) *Module {
	return &Module{
		mem:        mem,
		SandboxDir: sandboxDir,
		heaps:      make(map[uint32]*heap),
		nextHeap:   0x00010000,
		tlsUsed:    make(map[uint32]bool),
		modules:    make(map[string]uint32),
		nextModule: 0x00400000,
	}
}

func (m *Module) Name() string { return dllName }

// Load registers every KERNEL32 export this engine implements into f. It
// never fails: an import name it does not register gets no thunk, and
// its IAT slot keeps whatever value the image holds there.
func (m *Module) Load(_ context.Context, f *hostcall.Fabric) error {
	reg := func(name string, cleanup uint32, fn hostcall.HostFunc) {
		f.RegisterImportStdcall(dllName, name, cleanup, fn)
	}

	reg("HeapCreate", 12, m.heapCreate)
	reg("HeapDestroy", 4, m.heapDestroy)
	reg("HeapAlloc", 12, m.heapAlloc)
	reg("HeapFree", 12, m.heapFree)
	reg("HeapReAlloc", 16, m.heapReAlloc)
	reg("HeapSize", 12, m.heapSize)

	reg("GlobalAlloc", 8, m.globalAlloc)
	reg("GlobalFree", 4, m.globalFree)
	reg("GlobalReAlloc", 12, m.globalReAlloc)
	reg("LocalAlloc", 8, m.globalAlloc)
	reg("LocalFree", 4, m.globalFree)
	reg("LocalReAlloc", 12, m.globalReAlloc)

	reg("TlsAlloc", 0, m.tlsAlloc)
	reg("TlsFree", 4, m.tlsFree)
	reg("TlsGetValue", 4, m.tlsGetValue)
	reg("TlsSetValue", 8, m.tlsSetValue)

	reg("LoadLibraryA", 4, m.loadLibraryA)
	reg("LoadLibraryW", 4, m.loadLibraryW)
	reg("FreeLibrary", 4, m.freeLibrary)
	reg("GetModuleHandleA", 4, m.getModuleHandleA)
	reg("GetModuleHandleW", 4, m.getModuleHandleW)

	reg("CreateFileA", 28, m.createFileA)
	reg("ReadFile", 20, m.readFile)
	reg("WriteFile", 20, m.writeFile)
	reg("CloseHandle", 4, m.closeHandle)

	reg("CreateFileMappingA", 24, m.createFileMappingA)
	reg("MapViewOfFile", 20, m.mapViewOfFile)
	reg("UnmapViewOfFile", 4, m.unmapViewOfFile)

	reg("GetStdHandle", 4, m.getStdHandle)
	reg("WriteConsoleA", 20, m.writeConsoleA)

	reg("GetLastError", 0, m.getLastError)
	reg("SetLastError", 4, m.setLastError)
	reg("ExitProcess", 4, m.exitProcess)

	return nil
}

func (m *Module) setErr(code uint32) uint32 {
	m.lastError = code
	return code
}

// argAt reads stdcall argument n. Dispatch has already popped the fake
// return address off the stack by the time a host function runs, so ESP
// itself addresses arg0 here — unlike guest code reading its own args at
// [ESP+4], which still sees the return address on top.
func argAt(c *cpu.CPU, n int) (uint32, error) {
	return c.Mem.ReadU32(c.GetReg32(cpu.RegESP) + uint32(n)*4)
}

// --- Heap*, grounded on guest.Memory's own bump allocator (InitHeap/
// HeapAlloc/HeapFree/HeapSize/HeapReAlloc); a HANDLE here is a synthetic
// id (0x10000, 0x20000, ...) that the allocation calls ignore, since this
// engine models one flat heap region per guest.Memory rather than
// multiple independently-growable heap objects. ---

type heap struct{ id uint32 }

func (m *Module) heapCreate(c *cpu.CPU) (uint32, error) {
	id := m.nextHeap
	m.nextHeap += 0x10000
	m.heaps[id] = &heap{id: id}
	return id, nil
}

func (m *Module) heapDestroy(c *cpu.CPU) (uint32, error) {
	hHeap, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	delete(m.heaps, hHeap)
	return 1, nil
}

func (m *Module) heapAlloc(c *cpu.CPU) (uint32, error) {
	_, err := argAt(c, 0) // hHeap, ignored: one arena per Memory
	if err != nil {
		return 0, err
	}
	flags, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	size, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	addr, err := c.Mem.HeapAlloc(size, 8)
	if err != nil {
		m.setErr(8) // ERROR_NOT_ENOUGH_MEMORY
		return 0, nil
	}
	const heapZeroMemory = 0x00000008
	if flags&heapZeroMemory != 0 {
		if err := c.Mem.Memset(addr, 0, int(size)); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

func (m *Module) heapFree(c *cpu.CPU) (uint32, error) {
	addr, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	c.Mem.HeapFree(addr)
	return 1, nil
}

func (m *Module) heapReAlloc(c *cpu.CPU) (uint32, error) {
	addr, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	size, err := argAt(c, 3)
	if err != nil {
		return 0, err
	}
	newAddr, err := c.Mem.HeapReAlloc(addr, size, 8)
	if err != nil {
		m.setErr(8)
		return 0, nil
	}
	return newAddr, nil
}

func (m *Module) heapSize(c *cpu.CPU) (uint32, error) {
	addr, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	sz, _ := c.Mem.HeapSize(addr)
	return sz, nil
}

// GlobalAlloc/LocalAlloc share HeapAlloc's arena in this engine: Win16-era
// GMEM_MOVEABLE handle indirection has no guest observer here since no
// supplemented feature needs GlobalLock's double indirection.
func (m *Module) globalAlloc(c *cpu.CPU) (uint32, error) {
	flags, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	size, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	addr, err := c.Mem.HeapAlloc(size, 8)
	if err != nil {
		m.setErr(8)
		return 0, nil
	}
	const gptrGmemZeroinit = 0x0040
	if flags&gptrGmemZeroinit != 0 {
		if err := c.Mem.Memset(addr, 0, int(size)); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

func (m *Module) globalFree(c *cpu.CPU) (uint32, error) {
	addr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	c.Mem.HeapFree(addr)
	return 0, nil
}

func (m *Module) globalReAlloc(c *cpu.CPU) (uint32, error) {
	addr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	size, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	newAddr, err := c.Mem.HeapReAlloc(addr, size, 8)
	if err != nil {
		m.setErr(8)
		return 0, nil
	}
	return newAddr, nil
}

// --- Tls*, delegated straight to guest.Memory's TLS slot map. ---

func (m *Module) tlsAlloc(c *cpu.CPU) (uint32, error) {
	return c.Mem.TlsAlloc(), nil
}

func (m *Module) tlsFree(c *cpu.CPU) (uint32, error) {
	idx, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	c.Mem.TlsFree(idx)
	return 1, nil
}

func (m *Module) tlsGetValue(c *cpu.CPU) (uint32, error) {
	idx, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	return c.Mem.TlsGetValue(idx), nil
}

func (m *Module) tlsSetValue(c *cpu.CPU) (uint32, error) {
	idx, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	val, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	c.Mem.TlsSetValue(idx, val)
	return 1, nil
}

// --- LoadLibrary*/FreeLibrary/GetModuleHandle*: the supplemented dynamic-
// loading surface. This engine does not map a PE image on a guest
// LoadLibraryA/W call: it hands back a synthetic module handle for any
// name, allocating a new one the first time a (case-insensitive) name is
// seen. The name is not checked against the loader's import graph, so
// LoadLibrary never returns 0 (NULL). GetModuleHandleA/W find only names
// passed to LoadLibrary before, or return the main image's base for NULL. ---

func (m *Module) moduleHandle(name string) uint32 {
	key := strings.ToLower(name)
	if h, ok := m.modules[key]; ok {
		return h
	}
	h := m.nextModule
	m.nextModule += 0x10000
	m.modules[key] = h
	return h
}

func (m *Module) loadLibraryA(c *cpu.CPU) (uint32, error) {
	ptr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	name, err := c.Mem.ReadCString(ptr)
	if err != nil {
		return 0, err
	}
	return m.moduleHandle(name), nil
}

func (m *Module) loadLibraryW(c *cpu.CPU) (uint32, error) {
	ptr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	name, err := readWideCString(c.Mem, ptr)
	if err != nil {
		return 0, err
	}
	return m.moduleHandle(name), nil
}

func (m *Module) freeLibrary(c *cpu.CPU) (uint32, error) {
	return 1, nil
}

func (m *Module) getModuleHandleA(c *cpu.CPU) (uint32, error) {
	ptr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return m.BaseDir, nil
	}
	name, err := c.Mem.ReadCString(ptr)
	if err != nil {
		return 0, err
	}
	if h, ok := m.modules[strings.ToLower(name)]; ok {
		return h, nil
	}
	return 0, nil
}

func (m *Module) getModuleHandleW(c *cpu.CPU) (uint32, error) {
	ptr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return m.BaseDir, nil
	}
	name, err := readWideCString(c.Mem, ptr)
	if err != nil {
		return 0, err
	}
	if h, ok := m.modules[strings.ToLower(name)]; ok {
		return h, nil
	}
	return 0, nil
}

func readWideCString(mem *guest.Memory, addr uint32) (string, error) {
	var out []byte
	for i := uint32(0); i < 0x10000; i += 2 {
		lo, err := mem.ReadU8(addr + i)
		if err != nil {
			return "", err
		}
		hi, err := mem.ReadU8(addr + i + 1)
		if err != nil {
			return "", err
		}
		if lo == 0 && hi == 0 {
			break
		}
		out = append(out, lo)
	}
	return string(out), nil
}

// --- Sandboxed file I/O: CreateFileA/ReadFile/WriteFile/CloseHandle,
// grounded directly on file_io.go's sanitizePath/doRead/doWrite. Handles
// here are the host *os.File pointer's slot index rather than a raw fd,
// to stay safely opaque to guest code. ---

type fileHandle struct {
	f *os.File
}

var openFiles = make(map[uint32]*fileHandle)
var nextFileHandle uint32 = 0x00001000

func (m *Module) sanitizePath(path string) (string, bool) {
	if filepath.IsAbs(path) || strings.Contains(path, "..") {
		return "", false
	}
	full := filepath.Join(m.SandboxDir, path)
	rel, err := filepath.Rel(m.SandboxDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return full, true
}

func (m *Module) createFileA(c *cpu.CPU) (uint32, error) {
	namePtr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	access, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	_ = access
	disposition, err := argAt(c, 4)
	if err != nil {
		return 0, err
	}
	name, err := c.Mem.ReadCString(namePtr)
	if err != nil {
		return 0, err
	}
	full, ok := m.sanitizePath(name)
	if !ok {
		m.setErr(3) // ERROR_PATH_NOT_FOUND
		return 0xFFFFFFFF, nil
	}

	const (
		createAlways = 2
		openAlways   = 4
		openExisting = 3
	)
	var flags int
	switch disposition {
	case createAlways:
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case openAlways:
		flags = os.O_RDWR | os.O_CREATE
	case openExisting:
		flags = os.O_RDWR
	default:
		flags = os.O_RDWR
	}

	f, err := os.OpenFile(full, flags, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			m.setErr(2) // ERROR_FILE_NOT_FOUND
		} else {
			m.setErr(5) // ERROR_ACCESS_DENIED
		}
		return 0xFFFFFFFF, nil
	}

	h := nextFileHandle
	nextFileHandle++
	openFiles[h] = &fileHandle{f: f}
	return h, nil
}

func (m *Module) readFile(c *cpu.CPU) (uint32, error) {
	h, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	bufPtr, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	toRead, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	bytesReadPtr, err := argAt(c, 3)
	if err != nil {
		return 0, err
	}
	fh, ok := openFiles[h]
	if !ok {
		m.setErr(6) // ERROR_INVALID_HANDLE
		return 0, nil
	}
	buf := make([]byte, toRead)
	n, rerr := fh.f.Read(buf)
	if rerr != nil && n == 0 {
		n = 0
	}
	if err := c.Mem.WriteBytes(bufPtr, buf[:n]); err != nil {
		return 0, err
	}
	if bytesReadPtr != 0 {
		if err := c.Mem.WriteU32(bytesReadPtr, uint32(n)); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func (m *Module) writeFile(c *cpu.CPU) (uint32, error) {
	h, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	bufPtr, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	toWrite, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	bytesWrittenPtr, err := argAt(c, 3)
	if err != nil {
		return 0, err
	}
	fh, ok := openFiles[h]
	if !ok {
		m.setErr(6)
		return 0, nil
	}
	data, err := c.Mem.ReadBytes(bufPtr, int(toWrite))
	if err != nil {
		return 0, err
	}
	n, werr := fh.f.Write(data)
	if werr != nil {
		m.setErr(29) // ERROR_WRITE_FAULT
		return 0, nil
	}
	if bytesWrittenPtr != 0 {
		if err := c.Mem.WriteU32(bytesWrittenPtr, uint32(n)); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func (m *Module) closeHandle(c *cpu.CPU) (uint32, error) {
	h, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	if fh, ok := openFiles[h]; ok {
		fh.f.Close()
		delete(openFiles, h)
	}
	return 1, nil
}

func (m *Module) getLastError(c *cpu.CPU) (uint32, error) {
	return m.lastError, nil
}

func (m *Module) setLastError(c *cpu.CPU) (uint32, error) {
	code, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	m.lastError = code
	return 0, nil
}

func (m *Module) exitProcess(c *cpu.CPU) (uint32, error) {
	code, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	return 0, guest.NewError(guest.ExecutionLimit, "ExitProcess("+itoa(code)+")")
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var b [10]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return string(b[i:])
}

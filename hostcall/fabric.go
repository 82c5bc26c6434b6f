// Package hostcall is the host-call fabric: the import table the loader
// patches IATs against, the synthetic thunk address space the decoder
// diverts into instead of decoding guest-absent code, stdcall/cdecl/
// thiscall cleanup, and the reentrant execute_at_with_stack harness used
// for DllMain, TLS callbacks, and COM/callback dispatch.
//
// Modeled on cpu_x86_runner.go's Runner/adapter pattern
// (decoupling the CPU core from system specifics via a narrow interface)
// and program_executor.go's session bookkeeping, generalized from a
// retro-computer's IRQ/port-mapped peripherals to Windows import
// resolution.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package hostcall

import (
	"fmt"

	"intuitionengine/cpu"
	"intuitionengine/guest"
)

// HostFunc is a registered Win32 API stub. Dispatch pops the return
// address before calling it, so the return address is no longer on the
// stack: argument n is at [ESP+4*n] ([ESP], [ESP+4], ... for
// stdcall/cdecl; a thiscall `this` is in ECX). It returns the EAX value
// to surface to the guest.
type HostFunc func(c *cpu.CPU) (uint32, error)

// CallConv distinguishes who pops the arguments and where `this` lives.
type CallConv int

const (
	CDecl CallConv = iota
	Stdcall
	Thiscall
)

type importEntry struct {
	name         string
	dll          string
	fn           HostFunc
	conv         CallConv
	cleanupBytes uint32
}

type dllNameKey struct{ dll, name string }
type dllOrdKey struct {
	dll string
	ord uint16
}

// thunkBase is the first address of the reserved synthetic thunk region,
// chosen disjoint from any plausible loaded image (images
// load below 0x70000000 in this engine's layout).
const thunkBase = 0x70000000

// Fabric owns every lookup map the import table needs, plus
// the bump allocator handing out synthetic thunk addresses.
type Fabric struct {
	byDLLName map[dllNameKey]*importEntry
	byDLLOrd  map[dllOrdKey]*importEntry
	byName    map[string]*importEntry

	iatSlots  map[uint32]*importEntry // address of the IAT slot itself
	thunkAddr map[uint32]*importEntry // the synthetic thunk address
	dynName   map[string]uint32       // name -> synthetic thunk address, for COM/vtable synthesis

	nextThunk uint32
	LastError uint32
}

func New() *Fabric {
	return &Fabric{
		byDLLName: make(map[dllNameKey]*importEntry),
		byDLLOrd:  make(map[dllOrdKey]*importEntry),
		byName:    make(map[string]*importEntry),
		iatSlots:  make(map[uint32]*importEntry),
		thunkAddr: make(map[uint32]*importEntry),
		dynName:   make(map[string]uint32),
		nextThunk: thunkBase,
	}
}

func (f *Fabric) RegisterImport(dll, name string, fn HostFunc) {
	f.register(dll, name, 0, CDecl, fn)
}

func (f *Fabric) RegisterImportStdcall(dll, name string, cleanupBytes uint32, fn HostFunc) {
	f.register(dll, name, cleanupBytes, Stdcall, fn)
}

func (f *Fabric) RegisterImportThiscall(dll, name string, cleanupBytes uint32, fn HostFunc) {
	f.register(dll, name, cleanupBytes, Thiscall, fn)
}

func (f *Fabric) register(dll, name string, cleanup uint32, conv CallConv, fn HostFunc) {
	e := &importEntry{name: name, dll: dll, fn: fn, conv: conv, cleanupBytes: cleanup}
	f.byDLLName[dllNameKey{normalizeDLL(dll), name}] = e
	f.byName[name] = e
}

func (f *Fabric) RegisterImportOrdinal(dll string, ordinal uint16, fn HostFunc) {
	e := &importEntry{dll: dll, fn: fn, conv: Stdcall}
	f.byDLLOrd[dllOrdKey{normalizeDLL(dll), ordinal}] = e
}

func (f *Fabric) RegisterImportAnyStdcall(name string, cleanupBytes uint32, fn HostFunc) {
	f.byName[name] = &importEntry{name: name, fn: fn, conv: Stdcall, cleanupBytes: cleanupBytes}
}

func normalizeDLL(dll string) string {
	out := make([]byte, len(dll))
	for i := 0; i < len(dll); i++ {
		b := dll[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

// resolveStatic implements the loader-time resolution order: (DLL,name),
// then (DLL,ordinal), then name-only.
func (f *Fabric) resolveStatic(dll, name string, ordinal uint16, byOrdinal bool) (*importEntry, bool) {
	if !byOrdinal {
		if e, ok := f.byDLLName[dllNameKey{normalizeDLL(dll), name}]; ok {
			return e, true
		}
	} else if e, ok := f.byDLLOrd[dllOrdKey{normalizeDLL(dll), ordinal}]; ok {
		return e, true
	}
	if e, ok := f.byName[name]; ok {
		return e, true
	}
	return nil, false
}

// AllocateThunk returns the synthetic address for (dll,name) or
// (dll,ordinal), reusing the same address on repeat lookups so that the
// "import target equality" invariant holds: every IAT slot for a given
// import receives the same thunk address.
func (f *Fabric) AllocateThunk(dll, name string, ordinal uint16, byOrdinal bool) (uint32, bool) {
	e, ok := f.resolveStatic(dll, name, ordinal, byOrdinal)
	if !ok {
		return 0, false
	}
	for addr, existing := range f.thunkAddr {
		if existing == e {
			return addr, true
		}
	}
	addr := f.nextThunk
	f.nextThunk += 4
	f.thunkAddr[addr] = e
	return addr, true
}

// AllocateDynamicThunk hands out a fresh sentinel address for a
// dynamically-named target (COM/ATL/Stream vtable synthesis), per
// dynamic-name map.
func (f *Fabric) AllocateDynamicThunk(name string, fn HostFunc, conv CallConv, cleanup uint32) uint32 {
	if addr, ok := f.dynName[name]; ok {
		return addr
	}
	addr := f.nextThunk
	f.nextThunk += 4
	f.dynName[name] = addr
	f.thunkAddr[addr] = &importEntry{name: name, fn: fn, conv: conv, cleanupBytes: cleanup}
	return addr
}

// RegisterIATSlot records the IAT slot's own address as a dispatchable
// thunk, so CALL [iat_slot] is detected even if the slot's value is later
// overwritten.
func (f *Fabric) RegisterIATSlot(slotAddr uint32, dll, name string, ordinal uint16, byOrdinal bool) {
	e, ok := f.resolveStatic(dll, name, ordinal, byOrdinal)
	if !ok {
		return
	}
	f.iatSlots[slotAddr] = e
}

// IsThunk implements cpu.ThunkDispatcher: true for a registered IAT slot
// address or a synthetic thunk address.
func (f *Fabric) IsThunk(addr uint32) bool {
	if _, ok := f.iatSlots[addr]; ok {
		return true
	}
	_, ok := f.thunkAddr[addr]
	return ok
}

// Dispatch implements cpu.ThunkDispatcher: resolution order is IAT-slot
// map, then IAT-value (synthetic thunk) map. It performs
// the host call, applies calling-convention cleanup, and resumes at the
// caller's fallthrough EIP.
func (f *Fabric) Dispatch(c *cpu.CPU, addr uint32) error {
	e, ok := f.iatSlots[addr]
	if !ok {
		e, ok = f.thunkAddr[addr]
	}
	if !ok {
		return guest.NewError(guest.UnsupportedInstruction, fmt.Sprintf("unresolved thunk at 0x%08X", addr))
	}

	retAddr, err := c.PopStack()
	if err != nil {
		return err
	}

	eax, err := e.fn(c)
	if err != nil {
		return err
	}

	if e.conv == Stdcall || e.conv == Thiscall {
		c.Regs[cpu.RegESP] += e.cleanupBytes
	}
	c.SetReg32(cpu.RegEAX, eax)
	c.EIP = retAddr
	return nil
}

// Package ole32 is a minimal synthetic OLE32.DLL: just enough
// CoInitialize/CoUninitialize/CoCreateInstance/CoTaskMemAlloc/
// CoTaskMemFree surface for guest code that merely checks COM is present
// without this engine hosting real COM activation: failures report
// through guest.Com as a closed failure kind rather than a full COM
// runtime.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package ole32

import (
	"context"

	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

const dllName = "OLE32.DLL"

const (
	sOK         = 0x00000000
	eNOINTERFACE = 0x80004002
)

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return dllName }

func (m *Module) Load(_ context.Context, f *hostcall.Fabric) error {
	f.RegisterImportStdcall(dllName, "CoInitialize", 4, m.coInitialize)
	f.RegisterImportStdcall(dllName, "CoInitializeEx", 8, m.coInitializeEx)
	f.RegisterImportStdcall(dllName, "CoUninitialize", 0, m.coUninitialize)
	f.RegisterImportStdcall(dllName, "CoCreateInstance", 20, m.coCreateInstance)
	f.RegisterImportStdcall(dllName, "CoTaskMemAlloc", 4, m.coTaskMemAlloc)
	f.RegisterImportStdcall(dllName, "CoTaskMemFree", 4, m.coTaskMemFree)
	return nil
}

// argAt reads stdcall argument n. Dispatch has already popped the fake
// return address off the stack by the time a host function runs, so ESP
// itself addresses arg0 here — unlike guest code reading its own args at
// [ESP+4], which still sees the return address on top.
func argAt(c *cpu.CPU, n int) (uint32, error) {
	return c.Mem.ReadU32(c.GetReg32(cpu.RegESP) + uint32(n)*4)
}

func (m *Module) coInitialize(c *cpu.CPU) (uint32, error)   { return sOK, nil }
func (m *Module) coInitializeEx(c *cpu.CPU) (uint32, error) { return sOK, nil }
func (m *Module) coUninitialize(c *cpu.CPU) (uint32, error) { return 0, nil }

// coCreateInstance always reports E_NOINTERFACE as a guest.Com fault:
// this engine hosts no in-process COM servers, so guest code that depends
// on a real COM object graph faults rather than being silently
// satisfied.
func (m *Module) coCreateInstance(c *cpu.CPU) (uint32, error) {
	return 0, guest.NewError(guest.Com, "0x80004002 (E_NOINTERFACE): CoCreateInstance has no in-process COM server")
}

func (m *Module) coTaskMemAlloc(c *cpu.CPU) (uint32, error) {
	size, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	addr, err := c.Mem.HeapAlloc(size, 8)
	if err != nil {
		return 0, nil
	}
	return addr, nil
}

func (m *Module) coTaskMemFree(c *cpu.CPU) (uint32, error) {
	addr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	c.Mem.HeapFree(addr)
	return 0, nil
}

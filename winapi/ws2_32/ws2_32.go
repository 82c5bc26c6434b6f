// Package ws2_32 is a minimal synthetic WS2_32.DLL: enough of the Winsock
// startup/teardown surface (WSAStartup/WSACleanup) for guest code that
// probes for networking support before falling back to a local-only path,
// networking
// exclusion — no socket actually moves bytes here.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package ws2_32

import (
	"context"

	"intuitionengine/cpu"
	"intuitionengine/hostcall"
)

const dllName = "WS2_32.DLL"

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return dllName }

func (m *Module) Load(_ context.Context, f *hostcall.Fabric) error {
	f.RegisterImportStdcall(dllName, "WSAStartup", 8, m.wsaStartup)
	f.RegisterImportStdcall(dllName, "WSACleanup", 0, m.wsaCleanup)
	f.RegisterImportStdcall(dllName, "WSAGetLastError", 0, m.wsaGetLastError)
	return nil
}

func (m *Module) wsaStartup(c *cpu.CPU) (uint32, error) {
	// arg 1 (lpWSAData): Dispatch has already popped the fake return
	// address, so ESP itself addresses arg0 and arg1 sits at ESP+4.
	dataPtr, err := c.Mem.ReadU32(c.GetReg32(cpu.RegESP) + 4)
	if err != nil {
		return 0, err
	}
	if dataPtr != 0 {
		if err := c.Mem.Memset(dataPtr, 0, 400); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

func (m *Module) wsaCleanup(c *cpu.CPU) (uint32, error) { return 0, nil }

func (m *Module) wsaGetLastError(c *cpu.CPU) (uint32, error) { return 0, nil }

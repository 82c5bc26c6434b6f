package loader

import (
	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

// RunTLSCallbacks invokes every TLS callback of m, in directory order, as
// stdcall(DllHandle, dwReason, pvReserved) — mirrored from the DllMain
// calling convention, running TLS callbacks before the
// entry point, same call shape as DllMain" design note.
func RunTLSCallbacks(c *cpu.CPU, m *Module, reason uint32) error {
	for _, addr := range m.TLSCallbackAddrs() {
		_, state, err := hostcall.ExecuteAtWithStack(c, addr, []uint32{m.Base, reason, 0})
		if err != nil {
			return guest.WrapError(guest.Pe, "tls callback failed", err)
		}
		if state == hostcall.Faulted {
			return guest.NewError(guest.Pe, "tls callback faulted")
		}
	}
	return nil
}

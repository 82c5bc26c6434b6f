package loader

// Module is one loaded image's bookkeeping:
// its guest-visible identity, where it actually landed in the flat address
// space, and the structured view that produced it.
type Module struct {
	Name     string // guest-visible module name, e.g. "KERNEL32.DLL"
	HostPath string // path to the backing file on the host, if any
	Base     uint32 // actual load address
	Size     uint32
	View     View
	IsHost   bool // true for a synthetic host DLL (kernel32 stub etc.), no backing image
}

// TLSCallbackAddrs returns each TLS directory callback RVA resolved to an
// absolute guest address for the module's load base (nil without TLS).
func (m *Module) TLSCallbackAddrs() []uint32 {
	info, ok := m.View.TLS()
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(info.CallbacksRVA))
	for _, rva := range info.CallbacksRVA {
		out = append(out, m.Base+rva)
	}
	return out
}

// EntryPoint returns the absolute guest address of the module's entry
// point (DllMain for a DLL, the process entry for the main image).
func (m *Module) EntryPoint() uint32 {
	if m.View == nil {
		return 0
	}
	return m.Base + m.View.EntryPointRVA()
}

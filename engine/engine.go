package engine

import (
	"context"

	"intuitionengine/cpu"
	"intuitionengine/debugtrace"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
	"intuitionengine/loader"
	"intuitionengine/winapi/kernel32"
	"intuitionengine/winapi/ole32"
	"intuitionengine/winapi/user32"
	"intuitionengine/winapi/ws2_32"
)

// tebSize and pebSize bound the synthesized TEB/PEB region (guest.Memory
// zero-fills new address space, so only the fields a guest actually reads
// need writing; the rest of each structure reads back as zero).
const (
	tebSize = 0x1000
	pebSize = 0x1000

	// tebSelfOffset and tebPebOffset are NT_TIB.Self and TEB.ProcessEnvironmentBlock,
	// the two fields FS-relative guest code (a CRT startup, an SEH probe)
	// actually dereferences: FS:[0x18] and FS:[0x30].
	tebSelfOffset = 0x18
	tebPebOffset  = 0x30

	// pebImageBaseOffset is PEB.ImageBaseAddress, filled in once LoadImage
	// knows where the main module actually landed.
	pebImageBaseOffset = 0x08
)

// Engine is one executable session: a CPU, its flat guest memory, the
// host-call fabric, and the loaded module graph.
type Engine struct {
	cfg Config

	Mem    *guest.Memory
	CPU    *cpu.CPU
	Fabric *hostcall.Fabric

	resolver *loader.Resolver
	main     *loader.Module

	kernel32 *kernel32.Module
	user32   *user32.Module

	pebAddr uint32

	Trace *debugtrace.Tracer
}

// New constructs a ready-to-load engine with every built-in host DLL
// (kernel32/user32/ole32/ws2_32) already registered.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	mem := guest.New(cfg.MemoryBase, cfg.MemorySize)
	stackTop := cfg.MemoryBase + cfg.MemorySize
	stackLow := stackTop - cfg.StackSize
	mem.InitStack(stackLow, stackTop)
	heapStart := stackLow - cfg.HeapSize
	mem.InitHeap(heapStart, stackLow)

	tebAddr := heapStart - (tebSize + pebSize)
	if tebAddr < cfg.MemoryBase {
		return nil, guest.NewError(guest.InvalidConfig, "MemorySize too small to carve out the TEB/PEB region below the heap")
	}
	pebAddr := tebAddr + tebSize

	fabric := hostcall.New()
	c := cpu.New(mem, fabric)
	c.ExecLimit = cfg.ExecLimit
	c.Regs[cpu.RegESP] = stackTop

	e := &Engine{
		cfg:      cfg,
		Mem:      mem,
		CPU:      c,
		Fabric:   fabric,
		resolver: loader.NewResolver(fabric),
		kernel32: kernel32.New(mem, cfg.SandboxDir),
		user32:   user32.New(nil),
		pebAddr:  pebAddr,
	}

	e.resolver.RegisterHostModule(e.kernel32)
	e.resolver.RegisterHostModule(e.user32)
	e.resolver.RegisterHostModule(ole32.New())
	e.resolver.RegisterHostModule(ws2_32.New())

	if err := mem.WriteU32(tebAddr+tebSelfOffset, tebAddr); err != nil {
		return nil, err
	}
	if err := mem.WriteU32(tebAddr+tebPebOffset, pebAddr); err != nil {
		return nil, err
	}
	mem.SetFSBase(tebAddr)

	return e, nil
}

// SetDialogRenderer installs a GUI dialog implementation for MessageBoxA/W:
// a CLI build can leave this unset (MessageBox then auto-returns IDOK)
// while cmd/ia32run's GUI build wires an ebiten-backed implementation.
func (e *Engine) SetDialogRenderer(d user32.DialogRenderer) {
	e.user32.Dialog = d
}

// SetBeepPlayer installs a MessageBeep implementation; left unset, guest
// MessageBeep calls succeed without making a sound.
func (e *Engine) SetBeepPlayer(b user32.BeepPlayer) {
	e.user32.Beeper = b
}

// EnableTrace installs a ring-buffer instruction tracer of the given
// capacity on the engine's CPU, returning it so the caller can set a
// breakpoint predicate via Tracer.SetPredicate.
func (e *Engine) EnableTrace(capacity int) *debugtrace.Tracer {
	t := debugtrace.New(capacity)
	t.Enable()
	e.Trace = t
	e.CPU.OnStep = func(c *cpu.CPU) { t.Should(c) }
	return t
}

// RegisterImport exposes the fabric's registration surface directly, for
// callers adding host functions beyond the built-in kernel32/user32/ole32/
// ws2_32 set (a custom test stub DLL, for instance).
func (e *Engine) RegisterImport(dll, name string, fn hostcall.HostFunc) {
	e.Fabric.RegisterImport(dll, name, fn)
}

func (e *Engine) RegisterImportStdcall(dll, name string, cleanup uint32, fn hostcall.HostFunc) {
	e.Fabric.RegisterImportStdcall(dll, name, cleanup, fn)
}

// LoadImage parses a PE image, lays it out in guest memory at its
// preferred base (or wherever the caller's memory layout actually places
// it), applies relocations, and records it as the engine's main module.
// It does not resolve imports or run any entry point — call
// ResolveImports and then ExecuteExport or ExecuteAt after.
func (e *Engine) LoadImage(data []byte) error {
	view, err := loader.ParseView(data)
	if err != nil {
		return guest.WrapError(guest.Pe, "failed to parse image", err)
	}

	loadBase := view.ImageBase()
	if loadBase < e.cfg.MemoryBase || loadBase+view.ImageSize() > e.cfg.MemoryBase+e.cfg.MemorySize {
		loadBase = e.cfg.MemoryBase
	}

	raw := view.RawImage()
	if err := e.Mem.WriteBytes(loadBase, raw); err != nil {
		return err
	}
	if err := loader.ApplyRelocations(e.Mem, loadBase, view.ImageBase(), view.Relocations()); err != nil {
		return err
	}

	for _, imp := range view.Imports() {
		addr, ok := e.Fabric.AllocateThunk(imp.DLL, imp.Name, imp.Ordinal, imp.ByOrdinal)
		if !ok {
			continue // resolved lazily once ResolveImports loads the owning DLL
		}
		if err := e.Mem.WriteU32(loadBase+imp.IATSlotRVA, addr); err != nil {
			return err
		}
		e.Fabric.RegisterIATSlot(loadBase+imp.IATSlotRVA, imp.DLL, imp.Name, imp.Ordinal, imp.ByOrdinal)
	}

	e.main = &loader.Module{
		Name: "MAIN",
		Base: loadBase,
		Size: view.ImageSize(),
		View: view,
	}
	e.kernel32.BaseDir = loadBase
	return e.Mem.WriteU32(e.pebAddr+pebImageBaseOffset, loadBase)
}

// ResolveImports loads every host DLL the main image imports from, writes
// the thunk address of every import now registered into its IAT slot, and
// runs TLS callbacks and DllMain in dependency order, per the
// loader sequencing.
func (e *Engine) ResolveImports(ctx context.Context) error {
	if e.main == nil {
		return guest.NewError(guest.NoImage, "LoadImage must be called first")
	}
	if err := e.resolver.ResolveImports(ctx, e.CPU, e.main); err != nil {
		return err
	}
	for _, imp := range e.main.View.Imports() {
		addr, ok := e.Fabric.AllocateThunk(imp.DLL, imp.Name, imp.Ordinal, imp.ByOrdinal)
		if !ok {
			continue
		}
		slot := e.main.Base + imp.IATSlotRVA
		if err := e.Mem.WriteU32(slot, addr); err != nil {
			return err
		}
		e.Fabric.RegisterIATSlot(slot, imp.DLL, imp.Name, imp.Ordinal, imp.ByOrdinal)
	}
	return loader.RunTLSCallbacks(e.CPU, e.main, hostcall.DLLProcessAttach)
}

// ExecuteExport runs the main module's entry point with no stack
// arguments pushed — the common case for an EXE's WinMainCRTStartup.
func (e *Engine) ExecuteExport() (uint32, error) {
	if e.main == nil {
		return 0, guest.NewError(guest.NoImage, "LoadImage must be called first")
	}
	result, state, err := hostcall.ExecuteAtWithStack(e.CPU, e.main.EntryPoint(), nil)
	if err != nil {
		return 0, err
	}
	if state != hostcall.Completed {
		return 0, guest.NewError(guest.UnsupportedInstruction, "entry point session did not complete")
	}
	return result, nil
}

// ExecuteAt runs an arbitrary guest address as a bounded session (a named
// export, a callback address obtained from guest code, etc.), with
// explicit stdcall arguments.
func (e *Engine) ExecuteAt(addr uint32, args []uint32) (uint32, error) {
	result, state, err := hostcall.ExecuteAtWithStack(e.CPU, addr, args)
	if err != nil {
		return 0, err
	}
	if state != hostcall.Completed {
		return 0, guest.NewError(guest.UnsupportedInstruction, "session did not complete")
	}
	return result, nil
}

// ExecuteAtWithStackECX runs a thiscall-convention callback, loading ECX
// with `this` rather than pushing it as a stack argument.
func (e *Engine) ExecuteAtWithStackECX(addr, ecx uint32, args []uint32) (uint32, error) {
	result, state, err := hostcall.ExecuteAtWithStackECX(e.CPU, addr, ecx, args)
	if err != nil {
		return 0, err
	}
	if state != hostcall.Completed {
		return 0, guest.NewError(guest.UnsupportedInstruction, "session did not complete")
	}
	return result, nil
}

// --- Introspection. ---

func (e *Engine) InstructionCount() uint64 { return e.CPU.Instrs }
func (e *Engine) Registers() [8]uint32     { return e.CPU.Regs }
func (e *Engine) EIP() uint32              { return e.CPU.EIP }
func (e *Engine) EFLAGS() uint32           { return e.CPU.PackEFLAGS() }

func (e *Engine) Modules() map[string]*loader.Module {
	out := make(map[string]*loader.Module, len(e.resolver.Modules))
	for k, v := range e.resolver.Modules {
		out[k] = v
	}
	return out
}

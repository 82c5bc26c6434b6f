package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

// HostModule supplies a host-side implementation of a DLL the guest image
// imports from — either a parsed PE (a real dependency DLL sitting next to
// the main image) or a synthetic kernel32/user32/ole32/ws2_32 stub package
// registering its exports directly into the Fabric.
type HostModule interface {
	Name() string
	Load(ctx context.Context, f *hostcall.Fabric) error
}

// Resolver walks a module's import directory breadth-first, loading each
// dependency DLL at most once and deferring DllMain calls until every
// module in the graph has been mapped, per the cycle-avoidance
// design note (two DLLs that import each other must both be mapped before
// either's DllMain runs). Modeled on the concurrent-subsystem
// bring-up in program_executor.go, generalized here to use
// golang.org/x/sync/errgroup for parallel host-side DLL discovery instead
// of a fixed audio/video/input subsystem set.
type Resolver struct {
	Fabric  *hostcall.Fabric
	Modules map[string]*Module // keyed by normalized DLL name

	hostByName map[string]HostModule
}

func NewResolver(f *hostcall.Fabric) *Resolver {
	return &Resolver{
		Fabric:     f,
		Modules:    make(map[string]*Module),
		hostByName: make(map[string]HostModule),
	}
}

// RegisterHostModule makes a synthetic or host-backed DLL available to be
// pulled in by name when a guest image imports from it.
func (r *Resolver) RegisterHostModule(m HostModule) {
	r.hostByName[normalizeDLL(m.Name())] = m
}

// ResolveImports loads every DLL the main module's import directory names,
// then recurses into each loaded dependency's own imports (if it is a real
// PE rather than a synthetic host module), one errgroup goroutine per DLL
// of a level, and finally runs DllMain for every newly-mapped module in
// dependency order deferred to the end of the whole graph. Host modules'
// Load calls write the shared Fabric, so they run one at a time.
func (r *Resolver) ResolveImports(ctx context.Context, c *cpu.CPU, main *Module) error {
	var loadMu sync.Mutex
	visited := map[string]bool{normalizeDLL(main.Name): true}
	r.Modules[normalizeDLL(main.Name)] = main

	frontier := collectDLLNames(main.View)
	var mapped []*Module

	for len(frontier) > 0 {
		var next []string
		g, gctx := errgroup.WithContext(ctx)
		loaded := make([]*Module, len(frontier))

		for i, dll := range frontier {
			i, dll := i, dll
			key := normalizeDLL(dll)
			if visited[key] {
				continue
			}
			visited[key] = true
			g.Go(func() error {
				loadMu.Lock()
				m, err := r.loadOne(gctx, dll)
				loadMu.Unlock()
				if err != nil {
					return err
				}
				loaded[i] = m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return guest.WrapError(guest.Pe, "import resolution failed", err)
		}

		for _, m := range loaded {
			if m == nil {
				continue
			}
			r.Modules[normalizeDLL(m.Name)] = m
			mapped = append(mapped, m)
			if m.View != nil && !m.IsHost {
				next = append(next, collectDLLNames(m.View)...)
			}
		}
		frontier = next
	}

	for _, m := range mapped {
		if m.IsHost {
			continue
		}
		if ok, err := hostcall.DllMain(c, m.EntryPoint(), m.Base, hostcall.DLLProcessAttach); err != nil {
			return err
		} else if !ok {
			return guest.NewError(guest.Pe, "DllMain returned failure for "+m.Name)
		}
	}
	return nil
}

func (r *Resolver) loadOne(ctx context.Context, dll string) (*Module, error) {
	if hm, ok := r.hostByName[normalizeDLL(dll)]; ok {
		if err := hm.Load(ctx, r.Fabric); err != nil {
			return nil, err
		}
		return &Module{Name: dll, IsHost: true}, nil
	}
	return nil, guest.NewError(guest.MissingExport, "no host module registered for "+dll)
}

func collectDLLNames(v View) []string {
	seen := make(map[string]bool)
	var out []string
	for _, imp := range v.Imports() {
		if !seen[normalizeDLL(imp.DLL)] {
			seen[normalizeDLL(imp.DLL)] = true
			out = append(out, imp.DLL)
		}
	}
	for _, imp := range v.DelayImports() {
		if !seen[normalizeDLL(imp.DLL)] {
			seen[normalizeDLL(imp.DLL)] = true
			out = append(out, imp.DLL)
		}
	}
	return out
}

func normalizeDLL(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

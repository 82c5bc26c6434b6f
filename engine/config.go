// Package engine is the top-level wiring point: it owns the cpu.CPU, the
// guest.Memory it steps against, the hostcall.Fabric, and the loader
// graph, and exposes a narrow operation surface (LoadImage,
// ResolveImports, ExecuteExport, ExecuteAt, ExecuteAtWithStackECX,
// introspection).
// Modeled on CPUX86Runner (cpu_x86_runner.go): a config struct with
// defaults plus a runner type owning the CPU and its bus adapter,
// generalized from a single fixed system bus to a pluggable host-module
// registry.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package engine

import "intuitionengine/guest"

// Config holds the engine's tunables, each with a documented default
// applied by New when the zero value is passed — mirrors
// CPUX86Config's shape, generalized with InvalidConfig validation since
// this engine's memory layout is caller-configurable rather than fixed.
type Config struct {
	// MemoryBase is the flat guest address space's lowest addressable
	// byte. Default 0x00010000 (the first 64KiB stays unmapped, matching
	// the null-pointer convention real PE loaders rely on).
	MemoryBase uint32

	// MemorySize is the flat guest address space's length in bytes.
	// Default 64MiB.
	MemorySize uint32

	// StackSize is carved off the top of the address space for the
	// initial thread's stack. Default 1MiB.
	StackSize uint32

	// HeapSize is the initial process heap's reserved size. Default
	// 16MiB.
	HeapSize uint32

	// ExecLimit bounds total instructions executed across the engine's
	// lifetime (shared by every nested session).
	// Default 1,000,000.
	ExecLimit uint64

	// SandboxDir is the host directory kernel32's file I/O surface is
	// confined to. Default "./sandbox".
	SandboxDir string
}

func (c Config) withDefaults() Config {
	if c.MemoryBase == 0 {
		c.MemoryBase = 0x00010000
	}
	if c.MemorySize == 0 {
		c.MemorySize = 64 * 1024 * 1024
	}
	if c.StackSize == 0 {
		c.StackSize = 1 * 1024 * 1024
	}
	if c.HeapSize == 0 {
		c.HeapSize = 16 * 1024 * 1024
	}
	if c.ExecLimit == 0 {
		c.ExecLimit = 1_000_000
	}
	if c.SandboxDir == "" {
		c.SandboxDir = "./sandbox"
	}
	return c
}

func (c Config) validate() error {
	if c.StackSize+c.HeapSize >= c.MemorySize {
		return guest.NewError(guest.InvalidConfig, "StackSize+HeapSize must be smaller than MemorySize")
	}
	return nil
}

package engine

import (
	"testing"

	"intuitionengine/guest"
)

func TestNewAppliesDefaults(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.cfg.MemoryBase != 0x00010000 {
		t.Errorf("MemoryBase default: got 0x%08X, want 0x00010000", e.cfg.MemoryBase)
	}
	if e.cfg.MemorySize != 64*1024*1024 {
		t.Errorf("MemorySize default: got %d, want 64MiB", e.cfg.MemorySize)
	}
	if e.cfg.ExecLimit != 1_000_000 {
		t.Errorf("ExecLimit default: got %d, want 1,000,000", e.cfg.ExecLimit)
	}
	if e.CPU.ExecLimit != e.cfg.ExecLimit {
		t.Errorf("CPU.ExecLimit not wired from Config: got %d, want %d", e.CPU.ExecLimit, e.cfg.ExecLimit)
	}
}

func TestNewRejectsOversizedStackAndHeap(t *testing.T) {
	_, err := New(Config{MemorySize: 1024, StackSize: 600, HeapSize: 600})
	if err == nil {
		t.Fatal("expected InvalidConfig when StackSize+HeapSize >= MemorySize")
	}
	ge, ok := err.(*guest.Error)
	if !ok || ge.Kind != guest.InvalidConfig {
		t.Errorf("error: got %v, want guest.InvalidConfig", err)
	}
}

// ExecuteAt runs a hand-written stub directly, without going through the PE
// loader, exercising the session harness end to end.
func TestExecuteAtRunsStub(t *testing.T) {
	e, err := New(Config{MemorySize: 1 << 20, StackSize: 0x10000, HeapSize: 0x10000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fn := e.cfg.MemoryBase + 0x1000
	// MOV EAX, [ESP+4]; RET 4
	if err := e.Mem.WriteBytes(fn, []byte{
		0x8B, 0x44, 0x24, 0x04,
		0xC2, 0x04, 0x00,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := e.ExecuteAt(fn, []uint32{0x77})
	if err != nil {
		t.Fatalf("ExecuteAt: %v", err)
	}
	if result != 0x77 {
		t.Errorf("result: got 0x%X, want 0x77", result)
	}
}

// EnableTrace installs CPU.OnStep and records every stepped instruction
// into the ring buffer.
func TestEnableTraceRecordsSteps(t *testing.T) {
	e, err := New(Config{MemorySize: 1 << 20, StackSize: 0x10000, HeapSize: 0x10000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tracer := e.EnableTrace(16)
	fn := e.cfg.MemoryBase + 0x1000
	if err := e.Mem.WriteBytes(fn, []byte{0x90, 0x90, 0xC3}); err != nil { // NOP; NOP; RET
		t.Fatal(err)
	}

	if _, err := e.ExecuteAt(fn, nil); err != nil {
		t.Fatalf("ExecuteAt: %v", err)
	}
	if tracer != e.Trace {
		t.Fatal("EnableTrace did not set e.Trace to the returned tracer")
	}
	recent := tracer.Recent()
	if len(recent) < 3 {
		t.Errorf("expected at least 3 traced steps (2 NOPs + RET), got %d", len(recent))
	}
}

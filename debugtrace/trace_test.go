package debugtrace

import (
	"testing"

	"intuitionengine/cpu"
	"intuitionengine/guest"
)

type nopThunk struct{}

func (nopThunk) IsThunk(addr uint32) bool        { return false }
func (nopThunk) Dispatch(c *cpu.CPU, addr uint32) error { return nil }

func newTestCPU(t *testing.T) *cpu.CPU {
	t.Helper()
	mem := guest.New(0x00100000, 0x1000)
	if err := mem.WriteBytes(0x00100000, []byte{0x90, 0x90, 0x90, 0xC3}); err != nil {
		t.Fatal(err)
	}
	c := cpu.New(mem, nopThunk{})
	c.EIP = 0x00100000
	return c
}

// A disabled Tracer never records, even when stepped.
func TestTracerDisabledDoesNotRecord(t *testing.T) {
	c := newTestCPU(t)
	tr := New(8)
	c.OnStep = func(cp *cpu.CPU) { tr.Should(cp) }
	for i := 0; i < 3; i++ {
		if err := c.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if len(tr.Recent()) != 0 {
		t.Errorf("expected no recorded steps while disabled, got %d", len(tr.Recent()))
	}
}

// Enable without a predicate records every step unconditionally.
func TestTracerRecordsEveryStepByDefault(t *testing.T) {
	c := newTestCPU(t)
	tr := New(8)
	tr.Enable()
	c.OnStep = func(cp *cpu.CPU) { tr.Should(cp) }
	for i := 0; i < 3; i++ {
		if err := c.Step(); err != nil {
			t.Fatal(err)
		}
	}
	recent := tr.Recent()
	if len(recent) != 3 {
		t.Fatalf("got %d recorded steps, want 3", len(recent))
	}
	if recent[0].EIP != 0x00100000 || recent[1].EIP != 0x00100001 || recent[2].EIP != 0x00100002 {
		t.Errorf("unexpected EIP sequence: %+v", recent)
	}
}

// A predicate gates which steps are recorded; Should also reports the
// predicate's own truthiness regardless of buffering.
func TestTracerPredicateGating(t *testing.T) {
	c := newTestCPU(t)
	tr := New(8)
	tr.Enable()
	if err := tr.SetPredicate("eip == 0x100002"); err != nil {
		t.Fatalf("SetPredicate: %v", err)
	}
	defer tr.Close()

	matched := 0
	c.OnStep = func(cp *cpu.CPU) {
		if tr.Should(cp) {
			matched++
		}
	}
	for i := 0; i < 3; i++ {
		if err := c.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if matched != 1 {
		t.Errorf("expected exactly one matching step, got %d", matched)
	}
	recent := tr.Recent()
	if len(recent) != 1 || recent[0].EIP != 0x00100002 {
		t.Errorf("expected only EIP=0x00100002 recorded, got %+v", recent)
	}
}

// A ring buffer of capacity N keeps only the most recent N entries.
func TestTracerRingBufferWraps(t *testing.T) {
	mem := guest.New(0x00100000, 0x1000)
	code := make([]byte, 6)
	for i := range code {
		code[i] = 0x90
	}
	if err := mem.WriteBytes(0x00100000, code); err != nil {
		t.Fatal(err)
	}
	c := cpu.New(mem, nopThunk{})
	c.EIP = 0x00100000

	tr := New(2)
	tr.Enable()
	c.OnStep = func(cp *cpu.CPU) { tr.Should(cp) }
	for i := 0; i < 4; i++ {
		if err := c.Step(); err != nil {
			t.Fatal(err)
		}
	}
	recent := tr.Recent()
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2 (ring buffer capacity)", len(recent))
	}
	if recent[0].EIP != 0x00100002 || recent[1].EIP != 0x00100003 {
		t.Errorf("expected the last two EIPs (0x100002, 0x100003), got %+v", recent)
	}
}

// Entry.Disassemble renders a mnemonic rather than falling back to the
// bare-address form when the instruction decodes cleanly.
func TestEntryDisassemble(t *testing.T) {
	mem := guest.New(0x00100000, 0x1000)
	if err := mem.WriteBytes(0x00100000, []byte{0x90}); err != nil {
		t.Fatal(err)
	}
	e := Entry{EIP: 0x00100000, Instr: 1}
	got := e.Disassemble(mem)
	if got == e.String() {
		t.Error("expected Disassemble to render a mnemonic, not fall back to String()")
	}
}

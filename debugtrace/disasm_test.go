package debugtrace

import (
	"strings"
	"testing"

	"intuitionengine/guest"
)

func TestDisassembleNopAndRet(t *testing.T) {
	mem := guest.New(0x00100000, 0x1000)
	if err := mem.WriteBytes(0x00100000, []byte{0x90, 0xC3}); err != nil {
		t.Fatal(err)
	}

	lines := Disassemble(mem, 0x00100000, 2)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Address != 0x00100000 || lines[0].Size != 1 {
		t.Errorf("line 0: address=0x%08X size=%d, want 0x00100000/1", lines[0].Address, lines[0].Size)
	}
	if !strings.Contains(strings.ToUpper(lines[0].Mnemonic), "NOP") {
		t.Errorf("line 0 mnemonic: got %q, want it to mention NOP", lines[0].Mnemonic)
	}
	if lines[1].Address != 0x00100001 {
		t.Errorf("line 1 address: got 0x%08X, want 0x00100001", lines[1].Address)
	}
	if !strings.Contains(strings.ToUpper(lines[1].Mnemonic), "RET") {
		t.Errorf("line 1 mnemonic: got %q, want it to mention RET", lines[1].Mnemonic)
	}
}

// A near CALL rel32 is flagged as a branch with its target resolved
// relative to the following instruction.
func TestDisassembleCallRel32IsBranch(t *testing.T) {
	mem := guest.New(0x00100000, 0x1000)
	target := uint32(0x00100100)
	next := uint32(0x00100005)
	disp := int32(target) - int32(next)
	if err := mem.WriteBytes(0x00100000, []byte{
		0xE8, byte(disp), byte(disp >> 8), byte(disp >> 16), byte(disp >> 24),
	}); err != nil {
		t.Fatal(err)
	}

	lines := Disassemble(mem, 0x00100000, 1)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if !lines[0].IsBranch {
		t.Fatal("expected CALL rel32 to be flagged as a branch")
	}
	if lines[0].BranchTarget != target {
		t.Errorf("branch target: got 0x%08X, want 0x%08X", lines[0].BranchTarget, target)
	}
}

// Reading past the end of mapped memory stops decoding gracefully rather
// than panicking.
func TestDisassembleStopsAtUnmappedMemory(t *testing.T) {
	mem := guest.New(0x00100000, 4)
	if err := mem.WriteBytes(0x00100000, []byte{0x90, 0x90}); err != nil {
		t.Fatal(err)
	}
	lines := Disassemble(mem, 0x00100003, 3)
	// Whatever comes back must not include a line claiming more bytes
	// than the memory actually has.
	if len(lines) >= 3 {
		t.Errorf("got %d lines, want decoding to stop before 3 at the end of memory", len(lines))
	}
	for _, l := range lines {
		if l.Size < 0 {
			t.Errorf("got a negative instruction size: %d", l.Size)
		}
		if l.Address+uint32(l.Size) > 0x00100004 {
			t.Errorf("line at 0x%08X claims %d bytes, past the end of memory", l.Address, l.Size)
		}
	}
}

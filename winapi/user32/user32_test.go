package user32

import (
	"errors"
	"testing"

	"intuitionengine/cpu"
	"intuitionengine/guest"
	"intuitionengine/hostcall"
)

type fakeDialog struct {
	gotTitle, gotText string
	gotButtons        uint32
	result            uint32
	err               error
}

func (f *fakeDialog) ShowMessageBox(title, text string, buttons uint32) (uint32, error) {
	f.gotTitle, f.gotText, f.gotButtons = title, text, buttons
	return f.result, f.err
}

type fakeBeeper struct {
	lastKind uint32
	err      error
}

func (f *fakeBeeper) Beep(kind uint32) error {
	f.lastKind = kind
	return f.err
}

func newTestRig(t *testing.T, dialog DialogRenderer, beeper BeepPlayer) (*Module, *hostcall.Fabric, *cpu.CPU) {
	t.Helper()
	mem := guest.New(0x10000000, 0x00300000)
	stackTop := uint32(0x10000000 + 0x00300000)
	mem.InitStack(stackTop-0x10000, stackTop)

	fabric := hostcall.New()
	mod := New(dialog)
	mod.Beeper = beeper
	if err := mod.Load(nil, fabric); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := cpu.New(mem, fabric)
	c.Regs[cpu.RegESP] = stackTop - 0x1000
	return mod, fabric, c
}

func callStdcall(t *testing.T, fabric *hostcall.Fabric, c *cpu.CPU, name string, args ...uint32) uint32 {
	t.Helper()
	addr, ok := fabric.AllocateThunk(dllName, name, 0, false)
	if !ok {
		t.Fatalf("no import registered for %s", name)
	}
	for i := len(args) - 1; i >= 0; i-- {
		if err := c.PushStack(args[i]); err != nil {
			t.Fatal(err)
		}
	}
	retAddr := uint32(0x10000500)
	if err := c.PushStack(retAddr); err != nil {
		t.Fatal(err)
	}
	if err := fabric.Dispatch(c, addr); err != nil {
		t.Fatalf("Dispatch(%s): %v", name, err)
	}
	return c.GetReg32(cpu.RegEAX)
}

// MessageBoxA reads hWnd (ignored), lpText, lpCaption, uType in that
// stack order and forwards them to the DialogRenderer.
func TestMessageBoxAForwardsArgs(t *testing.T) {
	dlg := &fakeDialog{result: 6} // IDYES
	_, fabric, c := newTestRig(t, dlg, nil)

	textPtr := uint32(0x10200000)
	capPtr := uint32(0x10200100)
	if err := c.Mem.WriteBytes(textPtr, append([]byte("Proceed?"), 0)); err != nil {
		t.Fatal(err)
	}
	if err := c.Mem.WriteBytes(capPtr, append([]byte("Confirm"), 0)); err != nil {
		t.Fatal(err)
	}

	const mbYesNo = 0x00000004
	got := callStdcall(t, fabric, c, "MessageBoxA", 0 /* hWnd */, textPtr, capPtr, mbYesNo)
	if got != 6 {
		t.Errorf("MessageBoxA result: got %d, want 6 (IDYES)", got)
	}
	if dlg.gotText != "Proceed?" {
		t.Errorf("text: got %q, want %q", dlg.gotText, "Proceed?")
	}
	if dlg.gotTitle != "Confirm" {
		t.Errorf("caption: got %q, want %q", dlg.gotTitle, "Confirm")
	}
	if dlg.gotButtons != mbYesNo {
		t.Errorf("buttons: got 0x%X, want 0x%X", dlg.gotButtons, mbYesNo)
	}
}

// With no DialogRenderer installed, MessageBoxA auto-returns IDOK instead
// of blocking or faulting — the documented headless/CLI default.
func TestMessageBoxANilDialogReturnsIDOK(t *testing.T) {
	_, fabric, c := newTestRig(t, nil, nil)
	textPtr := uint32(0x10200000)
	if err := c.Mem.WriteBytes(textPtr, []byte{0}); err != nil {
		t.Fatal(err)
	}
	got := callStdcall(t, fabric, c, "MessageBoxA", 0, textPtr, textPtr, 0)
	if got != idOK {
		t.Errorf("got %d, want idOK=%d", got, idOK)
	}
}

// MessageBeep forwards its sound kind to the installed BeepPlayer.
func TestMessageBeepForwardsKind(t *testing.T) {
	beeper := &fakeBeeper{}
	_, fabric, c := newTestRig(t, nil, beeper)
	const mbIconExclamation = 0x00000030
	got := callStdcall(t, fabric, c, "MessageBeep", mbIconExclamation)
	if got != 1 {
		t.Errorf("MessageBeep result: got %d, want 1", got)
	}
	if beeper.lastKind != mbIconExclamation {
		t.Errorf("beep kind: got 0x%X, want 0x%X", beeper.lastKind, mbIconExclamation)
	}
}

// With no BeepPlayer installed, MessageBeep still reports success.
func TestMessageBeepNilPlayerSucceeds(t *testing.T) {
	_, fabric, c := newTestRig(t, nil, nil)
	got := callStdcall(t, fabric, c, "MessageBeep", 0)
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

// A failing BeepPlayer surfaces as a zero EAX rather than a fault.
func TestMessageBeepPlayerErrorReturnsZero(t *testing.T) {
	beeper := &fakeBeeper{err: errors.New("no audio device")}
	_, fabric, c := newTestRig(t, nil, beeper)
	got := callStdcall(t, fabric, c, "MessageBeep", 0)
	if got != 0 {
		t.Errorf("got %d, want 0 on beep failure", got)
	}
}

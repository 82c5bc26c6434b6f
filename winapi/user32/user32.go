// Package user32 is a synthetic USER32.DLL: MessageBoxA/W rendered as a
// real on-screen dialog via ebiten (the GUI toolkit already used, see
// gui_frontend_*.go), clipboard access via golang.design/x/clipboard, and
// MessageBeep via the existing audio output path.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package user32

import (
	"context"

	"golang.design/x/clipboard"

	"intuitionengine/cpu"
	"intuitionengine/hostcall"
)

const dllName = "USER32.DLL"

// DialogRenderer draws a modal message box and blocks until dismissed,
// returning the button ID the user pressed. Implemented by an ebiten-
// backed adapter in cmd/ia32run for GUI builds, and a headless
// auto-dismiss stub for CLI/batch runs — kept as an interface here so
// user32 itself never imports ebiten directly and stays testable without
// a display.
type DialogRenderer interface {
	ShowMessageBox(title, text string, buttons uint32) (result uint32, err error)
}

// BeepPlayer drives the host audio path for MessageBeep; implemented by an
// oto-backed player in cmd/ia32run so this package stays free of audio
// device imports, the same seam DialogRenderer provides for ebiten.
type BeepPlayer interface {
	Beep(kind uint32) error
}

type Module struct {
	Dialog        DialogRenderer
	Beeper        BeepPlayer
	clipboardInit bool
}

func New(dialog DialogRenderer) *Module {
	return &Module{Dialog: dialog}
}

func (m *Module) Name() string { return dllName }

func (m *Module) Load(_ context.Context, f *hostcall.Fabric) error {
	f.RegisterImportStdcall(dllName, "MessageBoxA", 16, m.messageBoxA)
	f.RegisterImportStdcall(dllName, "MessageBoxW", 16, m.messageBoxW)
	f.RegisterImportStdcall(dllName, "MessageBeep", 4, m.messageBeep)
	f.RegisterImportStdcall(dllName, "OpenClipboard", 4, m.openClipboard)
	f.RegisterImportStdcall(dllName, "CloseClipboard", 0, m.closeClipboard)
	f.RegisterImportStdcall(dllName, "EmptyClipboard", 0, m.emptyClipboard)
	f.RegisterImportStdcall(dllName, "SetClipboardData", 8, m.setClipboardData)
	return nil
}

// argAt reads stdcall argument n. Dispatch has already popped the fake
// return address off the stack by the time a host function runs, so ESP
// itself addresses arg0 here — unlike guest code reading its own args at
// [ESP+4], which still sees the return address on top.
func argAt(c *cpu.CPU, n int) (uint32, error) {
	return c.Mem.ReadU32(c.GetReg32(cpu.RegESP) + uint32(n)*4)
}

const (
	mbOK          = 0x00000000
	idOK          = 1
	idCancel      = 2
	idYes         = 6
	idNo          = 7
)

func (m *Module) messageBoxA(c *cpu.CPU) (uint32, error) {
	textPtr, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	captionPtr, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	buttons, err := argAt(c, 3)
	if err != nil {
		return 0, err
	}
	text, err := c.Mem.ReadCString(textPtr)
	if err != nil {
		return 0, err
	}
	caption, err := c.Mem.ReadCString(captionPtr)
	if err != nil {
		return 0, err
	}
	if m.Dialog == nil {
		return idOK, nil
	}
	return m.Dialog.ShowMessageBox(caption, text, buttons)
}

func (m *Module) messageBoxW(c *cpu.CPU) (uint32, error) {
	textPtr, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	captionPtr, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	buttons, err := argAt(c, 3)
	if err != nil {
		return 0, err
	}
	text, err := readWide(c, textPtr)
	if err != nil {
		return 0, err
	}
	caption, err := readWide(c, captionPtr)
	if err != nil {
		return 0, err
	}
	if m.Dialog == nil {
		return idOK, nil
	}
	return m.Dialog.ShowMessageBox(caption, text, buttons)
}

func readWide(c *cpu.CPU, addr uint32) (string, error) {
	var out []byte
	for i := uint32(0); i < 0x10000; i += 2 {
		lo, err := c.Mem.ReadU8(addr + i)
		if err != nil {
			return "", err
		}
		hi, err := c.Mem.ReadU8(addr + i + 1)
		if err != nil {
			return "", err
		}
		if lo == 0 && hi == 0 {
			break
		}
		out = append(out, lo)
	}
	return string(out), nil
}

// messageBeep drives the host audio path exactly the way
// sound chip emulations push a finished buffer to the output device,
// reusing that device instead of reimplementing tone generation here —
// see cmd/ia32run's audio wiring for the oto.Player this calls into.
func (m *Module) messageBeep(c *cpu.CPU) (uint32, error) {
	if m.Beeper == nil {
		return 1, nil
	}
	kind, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	if err := m.Beeper.Beep(kind); err != nil {
		return 0, nil
	}
	return 1, nil
}

// --- Clipboard, via golang.design/x/clipboard. Guest code only ever sees
// CF_TEXT (format 1); other clipboard formats are out of scope. ---

func (m *Module) ensureClipboard() error {
	if m.clipboardInit {
		return nil
	}
	if err := clipboard.Init(); err != nil {
		return err
	}
	m.clipboardInit = true
	return nil
}

func (m *Module) openClipboard(c *cpu.CPU) (uint32, error) {
	if err := m.ensureClipboard(); err != nil {
		return 0, nil
	}
	return 1, nil
}

func (m *Module) closeClipboard(c *cpu.CPU) (uint32, error) { return 1, nil }

func (m *Module) emptyClipboard(c *cpu.CPU) (uint32, error) {
	if err := m.ensureClipboard(); err != nil {
		return 0, nil
	}
	clipboard.Write(clipboard.FmtText, nil)
	return 1, nil
}

func (m *Module) setClipboardData(c *cpu.CPU) (uint32, error) {
	hMem, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	if err := m.ensureClipboard(); err != nil {
		return 0, nil
	}
	size, _ := c.Mem.HeapSize(hMem)
	data, err := c.Mem.ReadBytes(hMem, int(size))
	if err != nil {
		return 0, err
	}
	clipboard.Write(clipboard.FmtText, data)
	return hMem, nil
}

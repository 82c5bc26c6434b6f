package kernel32

import (
	"os"

	"golang.org/x/term"

	"intuitionengine/cpu"
)

// Standard handle constants, per the Win32 console API.
const (
	stdInputHandle  = 0xFFFFFFF6 // -10
	stdOutputHandle = 0xFFFFFFF5 // -11
	stdErrorHandle  = 0xFFFFFFF4 // -12
)

// getStdHandle hands back a synthetic handle identifying which host stream
// WriteConsoleA should target: the three standard handle values are
// returned as-is and any other value yields INVALID_HANDLE_VALUE. It does
// not check whether the host streams are attached to a terminal.
func (m *Module) getStdHandle(c *cpu.CPU) (uint32, error) {
	nStdHandle, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	switch nStdHandle {
	case stdInputHandle, stdOutputHandle, stdErrorHandle:
		return nStdHandle, nil
	}
	return 0xFFFFFFFF, nil
}

func (m *Module) writeConsoleA(c *cpu.CPU) (uint32, error) {
	hConsole, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	bufPtr, err := argAt(c, 1)
	if err != nil {
		return 0, err
	}
	toWrite, err := argAt(c, 2)
	if err != nil {
		return 0, err
	}
	writtenPtr, err := argAt(c, 3)
	if err != nil {
		return 0, err
	}

	data, err := c.Mem.ReadBytes(bufPtr, int(toWrite))
	if err != nil {
		return 0, err
	}

	out := os.Stdout
	if hConsole == stdErrorHandle {
		out = os.Stderr
	}
	n, _ := out.Write(data)

	if writtenPtr != 0 {
		if err := c.Mem.WriteU32(writtenPtr, uint32(n)); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

// isInteractiveConsole reports whether stdout is attached to a real
// terminal. Nothing in the module calls it.
func isInteractiveConsole() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

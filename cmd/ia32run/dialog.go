package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"intuitionengine/winapi/user32"
)

var _ user32.DialogRenderer = (*ebitenDialog)(nil)

func fixedPoint(x, y int) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
}

// ebitenDialog implements user32.DialogRenderer by popping up a real
// ebiten window for the duration of one MessageBoxA/W call, matching the
// GUIFrontend split (gui_frontend_*.go) between the engine core
// and a swappable presentation layer, generalized here from a persistent
// machine-monitor window to a one-shot modal.
type ebitenDialog struct {
	title, text string
	buttons     uint32
	result      uint32
	done        bool
}

func newEbitenDialog() *ebitenDialog { return &ebitenDialog{} }

const (
	mbOKCancel       = 0x00000001
	mbYesNo          = 0x00000004
	idOK       = 1
	idCancel   = 2
	idYes      = 6
	idNo       = 7
)

// ShowMessageBox blocks until the user dismisses the dialog, returning
// the pressed button's ID.
func (d *ebitenDialog) ShowMessageBox(title, text string, buttons uint32) (uint32, error) {
	d.title, d.text, d.buttons = title, text, buttons
	d.done = false

	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(420, 160)
	if err := ebiten.RunGame(d); err != nil {
		return 0, fmt.Errorf("dialog render failed: %w", err)
	}
	return d.result, nil
}

func (d *ebitenDialog) Update() error {
	switch d.buttons {
	case mbOKCancel:
		if ebiten.IsKeyPressed(ebiten.KeyEscape) {
			d.result, d.done = idCancel, true
		} else if ebiten.IsKeyPressed(ebiten.KeyEnter) {
			d.result, d.done = idOK, true
		}
	case mbYesNo:
		if ebiten.IsKeyPressed(ebiten.KeyY) {
			d.result, d.done = idYes, true
		} else if ebiten.IsKeyPressed(ebiten.KeyN) {
			d.result, d.done = idNo, true
		}
	default:
		if ebiten.IsKeyPressed(ebiten.KeyEnter) || ebiten.IsKeyPressed(ebiten.KeySpace) {
			d.result, d.done = idOK, true
		}
	}
	if d.done {
		return ebiten.Termination
	}
	return nil
}

func (d *ebitenDialog) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF})
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  screen,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	drawer.Dot = fixedPoint(20, 40)
	drawer.DrawString(d.title)
	drawer.Dot = fixedPoint(20, 70)
	drawer.DrawString(d.text)
	ebitenutil.DebugPrintAt(screen, "[Enter] OK", 20, 120)
}

func (d *ebitenDialog) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 420, 160
}

package main

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/ebitengine/oto/v3"

	"intuitionengine/winapi/user32"
)

const (
	beepSampleRate = 44100
	beepChannels   = 2
)

// otoBeeper implements user32.BeepPlayer by synthesizing a short sine-wave
// tone and pushing it through an oto.Player, reusing the existing
// audio backend (AUDIO_BACKEND_OTO in main.go) rather than a second audio
// library, generalized from streaming a sound-chip's register-driven
// waveform to synthesizing one fixed tone per MessageBeep kind.
type otoBeeper struct {
	ctx *oto.Context
}

var _ user32.BeepPlayer = (*otoBeeper)(nil)

func newOtoBeeper() (*otoBeeper, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   beepSampleRate,
		ChannelCount: beepChannels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	return &otoBeeper{ctx: ctx}, nil
}

// Beep frequency per MB_* icon kind, per the Win32 MessageBeep contract;
// unrecognized kinds fall back to the default system tone.
func beepFrequency(kind uint32) float64 {
	switch kind {
	case 0x00000010: // MB_ICONHAND / MB_ICONERROR
		return 220.0
	case 0x00000030: // MB_ICONEXCLAMATION / MB_ICONWARNING
		return 440.0
	case 0x00000040: // MB_ICONASTERISK / MB_ICONINFORMATION
		return 660.0
	case 0x00000020: // MB_ICONQUESTION
		return 550.0
	default:
		return 800.0
	}
}

func (b *otoBeeper) Beep(kind uint32) error {
	const durationSeconds = 0.12
	freq := beepFrequency(kind)
	samples := int(beepSampleRate * durationSeconds)

	buf := new(bytes.Buffer)
	for i := 0; i < samples; i++ {
		t := float64(i) / beepSampleRate
		v := int16(math.Sin(2*math.Pi*freq*t) * 0.2 * math.MaxInt16)
		for ch := 0; ch < beepChannels; ch++ {
			binary.Write(buf, binary.LittleEndian, v)
		}
	}

	player := b.ctx.NewPlayer(buf)
	player.Play()
	return nil
}

package player

import (
	"testing"

	"github.com/zynaudio/engine/internal/fakehost"
	"github.com/zynaudio/engine/pkg/framering"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RingBufferFrames = 64
	e := New(cfg, 48000)
	return e
}

func TestSetVolumeIgnoresOutOfRange(t *testing.T) {
	e := newTestEngine(t)

	e.SetVolume(0.5)
	if got := e.Volume(); got != 0.5 {
		t.Errorf("Volume: got %v, want 0.5", got)
	}

	e.SetVolume(3.0)
	if got := e.Volume(); got != 0.5 {
		t.Errorf("Volume after out-of-range set: got %v, want unchanged 0.5", got)
	}

	e.SetVolume(-1.0)
	if got := e.Volume(); got != 0.5 {
		t.Errorf("Volume after negative set: got %v, want unchanged 0.5", got)
	}
}

func TestMIDICCTransportAndLoop(t *testing.T) {
	e := newTestEngine(t)

	e.HandleMIDI([]byte{0xB0, 68, 100})
	if e.State() != Starting {
		t.Errorf("CC68>63: got state %v, want Starting", e.State())
	}

	e.HandleMIDI([]byte{0xB0, 69, 127})
	if !e.Loop() {
		t.Error("CC69=127: expected loop enabled")
	}

	e.HandleMIDI([]byte{0xB0, 69, 0})
	if e.Loop() {
		t.Error("CC69=0: expected loop disabled")
	}
}

func TestMIDICCVolumeUnclampedScale(t *testing.T) {
	e := newTestEngine(t)

	e.HandleMIDI([]byte{0xB0, 7, 50})
	if got := e.Volume(); got != 0.5 {
		t.Errorf("CC7=50: got volume %v, want 0.5", got)
	}

	// CC7's /100 scale is unclamped, unlike SetVolume.
	e.HandleMIDI([]byte{0xB0, 7, 127})
	if got := e.Volume(); got != 1.27 {
		t.Errorf("CC7=127: got volume %v, want 1.27", got)
	}
}

func TestMIDICCPositionUsesDuration(t *testing.T) {
	e := newTestEngine(t)
	e.SetDuration(100.0)

	e.HandleMIDI([]byte{0xB0, 1, 127})
	if got := e.Position(); got < 99.9 {
		t.Errorf("CC1=127: got position %v, want ~100", got)
	}
}

func TestNonControlChangeIgnored(t *testing.T) {
	e := newTestEngine(t)
	e.SetVolume(0.7)

	// Note on, not a control change.
	e.HandleMIDI([]byte{0x90, 64, 100})
	if got := e.Volume(); got != 0.7 {
		t.Errorf("note-on should not change volume, got %v", got)
	}
}

func TestProcessFuncDrainsRingAndAppliesLevel(t *testing.T) {
	e := newTestEngine(t)
	e.SetVolume(0.5)
	e.playState.Store(int32(Playing))
	e.seekState.Store(int32(seekIdle))

	e.ring.Push([]framering.Frame{{A: 1.0, B: -1.0}, {A: 0.5, B: -0.5}})

	fh := fakehost.New(48000, 4)
	outA, _ := fh.RegisterAudioOutput("output_a")
	outB, _ := fh.RegisterAudioOutput("output_b")
	midiIn, _ := fh.RegisterMIDIInput("input")

	fh.SetProcessCallback(e.ProcessFunc(outA, outB, midiIn))
	fh.Process(4)

	got := fh.Output(outA)
	want := []float32{0.5, 0.25, 0, 0}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("outA[%d]: got %v, want %v", i, got[i], w)
		}
	}
}

func TestProcessFuncStoppedSilence(t *testing.T) {
	e := newTestEngine(t)
	e.ring.Push([]framering.Frame{{A: 1.0, B: 1.0}})

	fh := fakehost.New(48000, 4)
	outA, _ := fh.RegisterAudioOutput("output_a")
	outB, _ := fh.RegisterAudioOutput("output_b")
	midiIn, _ := fh.RegisterMIDIInput("input")

	fh.SetProcessCallback(e.ProcessFunc(outA, outB, midiIn))
	fh.Process(4)

	for i, v := range fh.Output(outA) {
		if v != 0 {
			t.Errorf("outA[%d]: got %v, want silence while stopped", i, v)
		}
	}
}

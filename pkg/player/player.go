// Package player implements a streaming file player: a background
// reader worker decodes and sample-rate-converts a file into a stereo
// frame ring buffer, and a realtime callback drains that buffer into
// the host's audio output block, with MIDI Control Change messages
// steering transport, position, volume and loop.
package player

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/zynaudio/engine/internal/midicc"
	"github.com/zynaudio/engine/pkg/decoders"
	"github.com/zynaudio/engine/pkg/framering"
	"github.com/zynaudio/engine/pkg/host"
	"github.com/zynaudio/engine/pkg/types"
)

// PlayState is the player's transport state machine.
type PlayState int32

const (
	Stopped PlayState = iota
	Starting
	Playing
	Stopping
)

func (s PlayState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Playing:
		return "playing"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// seekState mirrors the original reader's IDLE/SEEKING/LOADING states.
type seekState int32

const (
	seekIdle seekState = iota
	seekSeeking
	seekLoading
)

// Engine is a file player. It is a plain value type: every piece of
// shared state is an explicit atomic field rather than a process-wide
// global, so more than one Engine can exist side by side.
type Engine struct {
	cfg Config

	decoder    types.AudioDecoder
	fileName   string
	srcRate    int
	srcChans   int
	bytesPerSm int

	ring *framering.Buffer

	hostRate   int
	playState  atomic.Int32
	seekState  atomic.Int32
	loop       atomic.Bool
	levelBits  atomic.Uint32 // float32 bits, CC7/SetVolume path, 0..2
	posFrames  atomic.Uint64 // playback position in host-rate frames
	moreData   atomic.Bool   // reader still has unread input (or is looping)
	lastFrame  atomic.Int64  // ring write-cursor at EOF, -1 if not applicable
	durationBits atomic.Uint32 // float32 bits, set via SetDuration

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a player bound to the host's current sample rate.
func New(cfg Config, hostSampleRate int) *Engine {
	e := &Engine{
		cfg:      cfg,
		hostRate: hostSampleRate,
		ring:     framering.New(cfg.RingBufferFrames),
	}
	e.levelBits.Store(math.Float32bits(1.0))
	e.lastFrame.Store(-1)
	return e
}

// OpenFile opens fileName for playback, replacing any previously open
// file. Playback does not start until Start is called.
func (e *Engine) OpenFile(fileName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.decoder != nil {
		e.decoder.Close()
		e.decoder = nil
	}

	dec, err := decoders.NewDecoder(fileName)
	if err != nil {
		return fmt.Errorf("open %s: %w", fileName, err)
	}

	rate, channels, bits := dec.GetFormat()
	slog.Info("player: file opened",
		"file", filepath.Base(fileName),
		"sample_rate", rate,
		"channels", channels,
		"bits_per_sample", bits)

	e.decoder = dec
	e.fileName = fileName
	e.srcRate = rate
	e.srcChans = channels
	e.bytesPerSm = bits / 8
	e.ring.Reset()
	e.posFrames.Store(0)
	e.lastFrame.Store(-1)
	e.moreData.Store(true)
	e.seekState.Store(int32(seekSeeking))
	return nil
}

// Start requests playback begin. The realtime callback transitions
// Starting -> Playing once the seek (if any) has completed, matching
// onJackProcess's STARTING/IDLE gate.
func (e *Engine) Start() {
	if PlayState(e.playState.Load()) == Stopped {
		e.playState.Store(int32(Starting))
		if e.stopCh == nil {
			e.stopCh = make(chan struct{})
			e.wg.Add(1)
			go e.readerLoop(e.stopCh)
		}
	}
}

// Stop requests playback stop. The realtime callback finishes the
// current block before actually transitioning to Stopped.
func (e *Engine) Stop() {
	if PlayState(e.playState.Load()) != Stopped {
		e.playState.Store(int32(Stopping))
	}
}

// Close tears down the reader worker and releases the decoder.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopCh != nil {
		close(e.stopCh)
		e.wg.Wait()
		e.stopCh = nil
	}
	if e.decoder != nil {
		err := e.decoder.Close()
		e.decoder = nil
		return err
	}
	return nil
}

// State returns the current transport state.
func (e *Engine) State() PlayState {
	return PlayState(e.playState.Load())
}

// SetLoop enables or disables looping at end of file.
func (e *Engine) SetLoop(loop bool) {
	e.loop.Store(loop)
	e.moreData.Store(true)
}

// Loop reports whether looping is enabled.
func (e *Engine) Loop() bool {
	return e.loop.Load()
}

// SetVolume sets the playback level. A value outside [0, 2] is ignored
// and the level stays unchanged, as the original setVolume() does
// (distinct from the unchecked MIDI CC7 path).
func (e *Engine) SetVolume(level float32) {
	if level < 0 || level > 2 {
		return
	}
	e.levelBits.Store(math.Float32bits(level))
}

// Volume returns the current playback level.
func (e *Engine) Volume() float32 {
	return math.Float32frombits(e.levelBits.Load())
}

// SetPosition sets the playback position in seconds and has the reader
// worker flush the ring buffer. The reader repositions the decoder only
// when the decoder has a SeekFrames method, or when the target is 0 (it
// reopens the file). None of the decoders in pkg/decoders has
// SeekFrames, so for a non-zero target decoding carries on from where
// it was.
func (e *Engine) SetPosition(seconds float32) {
	e.posFrames.Store(uint64(seconds * float32(e.hostRate)))
	e.seekState.Store(int32(seekSeeking))
}

// Position returns the current playback position in seconds.
func (e *Engine) Position() float32 {
	if e.hostRate == 0 {
		return 0
	}
	return float32(e.posFrames.Load()) / float32(e.hostRate)
}

// Duration returns the open file's duration in seconds. types.AudioDecoder
// does not expose a frame count (the decoder library is out of scope,
// specified only at that interface), so this relies on the host/UI layer
// having recorded the file's duration from its own metadata lookup; a
// player with no such layer attached reports 0, matching CC1's behaviour
// on a zero-duration file (seeks to frame 0 regardless of controller value).
func (e *Engine) Duration() float32 {
	return math.Float32frombits(e.durationBits.Load())
}

// SetDuration records the file's duration in seconds, used by CC1's
// position-by-percentage mapping. Typically set once right after OpenFile.
func (e *Engine) SetDuration(seconds float32) {
	e.durationBits.Store(math.Float32bits(seconds))
}

// HandleMIDI decodes and applies a raw MIDI event the same way
// onJackProcess's Control Change switch does: CC1 seeks, CC7 sets
// volume (unclamped, /100 scale), CC68 starts/stops transport at the
// >63 threshold, CC69 enables loop above 63 and disables it otherwise.
func (e *Engine) HandleMIDI(raw []byte) {
	cc, ok := midicc.Parse(raw)
	if !ok {
		return
	}

	switch cc.Controller {
	case 1:
		frac := float32(cc.Value) / 127.0
		e.SetPosition(frac * e.Duration())
	case 7:
		e.levelBits.Store(math.Float32bits(float32(cc.Value) / 100.0))
	case 68:
		if cc.Value > 63 {
			e.Start()
		} else {
			e.Stop()
		}
	case 69:
		e.SetLoop(cc.Value > 63)
	}
}

// RegisterPorts registers this player's output and MIDI ports on h.
func (e *Engine) RegisterPorts(h host.Host) (outA, outB, midiIn host.Port, err error) {
	outA, err = h.RegisterAudioOutput("output_a")
	if err != nil {
		return
	}
	outB, err = h.RegisterAudioOutput("output_b")
	if err != nil {
		return
	}
	midiIn, err = h.RegisterMIDIInput("input")
	return
}

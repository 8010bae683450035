// Package fakehost is an in-memory host.Host double used by tests to
// drive the player and mixer realtime callbacks without a real audio
// server or hardware.
package fakehost

import (
	"fmt"

	"github.com/zynaudio/engine/pkg/host"
)

type portKind int

const (
	kindAudioOut portKind = iota
	kindAudioIn
	kindMIDIIn
)

type portState struct {
	kind      portKind
	buf       []float32
	midi      []host.MIDIEvent
	connected bool
}

// Host is a single-threaded, synchronous host.Host implementation. Call
// Process to drive one block through the installed ProcessFunc.
type Host struct {
	sampleRate int
	bufferSize int

	ports   []*portState
	process host.ProcessFunc
	onRate  func(int)
	onSize  func(int)
	onConn  func(host.Port, bool)
}

// New creates a fake host with the given sample rate and block size.
func New(sampleRate, bufferSize int) *Host {
	return &Host{sampleRate: sampleRate, bufferSize: bufferSize}
}

func (h *Host) register(name string, kind portKind) (host.Port, error) {
	st := &portState{kind: kind}
	if kind == kindMIDIIn {
		st.midi = nil
	} else {
		st.buf = make([]float32, h.bufferSize)
	}
	h.ports = append(h.ports, st)
	return host.NewPort(len(h.ports)-1, name), nil
}

func (h *Host) RegisterAudioOutput(name string) (host.Port, error) {
	return h.register(name, kindAudioOut)
}

func (h *Host) RegisterAudioInput(name string) (host.Port, error) {
	return h.register(name, kindAudioIn)
}

func (h *Host) RegisterMIDIInput(name string) (host.Port, error) {
	return h.register(name, kindMIDIIn)
}

func (h *Host) Unregister(p host.Port) error {
	if p.ID() < 0 || p.ID() >= len(h.ports) {
		return fmt.Errorf("fakehost: invalid port")
	}
	h.ports[p.ID()] = nil
	return nil
}

func (h *Host) IsConnected(p host.Port) bool {
	st := h.ports[p.ID()]
	return st != nil && st.connected
}

// SetConnected is a test hook simulating a routing change, firing the
// connect callback the same way a real server would.
func (h *Host) SetConnected(p host.Port, connected bool) {
	st := h.ports[p.ID()]
	if st == nil {
		return
	}
	st.connected = connected
	if h.onConn != nil {
		h.onConn(p, connected)
	}
}

func (h *Host) SetProcessCallback(fn host.ProcessFunc)          { h.process = fn }
func (h *Host) SetSampleRateCallback(fn func(rate int))         { h.onRate = fn }
func (h *Host) SetBufferSizeCallback(fn func(size int))         { h.onSize = fn }
func (h *Host) SetConnectCallback(fn func(host.Port, bool))     { h.onConn = fn }

func (h *Host) Activate() error {
	if h.onRate != nil {
		h.onRate(h.sampleRate)
	}
	if h.onSize != nil {
		h.onSize(h.bufferSize)
	}
	return nil
}

func (h *Host) Close() error { return nil }

func (h *Host) SampleRate() int { return h.sampleRate }
func (h *Host) BufferSize() int { return h.bufferSize }

// SetBufferSize resizes every audio port's buffer and fires the
// buffer-size callback, simulating the server changing its block size.
func (h *Host) SetBufferSize(n int) {
	h.bufferSize = n
	for _, st := range h.ports {
		if st != nil && st.kind != kindMIDIIn {
			st.buf = make([]float32, n)
		}
	}
	if h.onSize != nil {
		h.onSize(n)
	}
}

// QueueMIDI injects a MIDI event to be delivered to the given input port
// on the next Process call.
func (h *Host) QueueMIDI(p host.Port, ev host.MIDIEvent) {
	st := h.ports[p.ID()]
	if st != nil {
		st.midi = append(st.midi, ev)
	}
}

// Output returns the current contents of an output port's buffer, for
// test assertions after Process.
func (h *Host) Output(p host.Port) []float32 {
	return h.ports[p.ID()].buf
}

// SetInput sets the contents of an input port's buffer before Process.
func (h *Host) SetInput(p host.Port, data []float32) {
	copy(h.ports[p.ID()].buf, data)
}

// Process runs one block through the installed ProcessFunc.
func (h *Host) Process(frames int) {
	if h.process == nil {
		return
	}
	h.process(&ctx{h: h, frames: frames})
	for _, st := range h.ports {
		if st != nil && st.kind == kindMIDIIn {
			st.midi = nil
		}
	}
}

type ctx struct {
	h      *Host
	frames int
}

func (c *ctx) Frames() int { return c.frames }

func (c *ctx) Output(p host.Port) []float32 {
	return c.h.ports[p.ID()].buf[:c.frames]
}

func (c *ctx) Input(p host.Port) []float32 {
	return c.h.ports[p.ID()].buf[:c.frames]
}

func (c *ctx) MIDI(p host.Port) []host.MIDIEvent {
	return c.h.ports[p.ID()].midi
}

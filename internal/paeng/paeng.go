// Package paeng binds pkg/host's Host contract to a single PortAudio
// duplex stream, grounded on the go-portaudio OpenCallback/
// StreamCallbackResult usage and the Initialize/Terminate/GetVersion
// calling convention used throughout cmd/.
//
// A real JACK server hands out an arbitrary, dynamically reconnectable
// port graph; PortAudio instead opens one stream with a fixed channel
// count. paeng reconciles the two by assigning each registered audio
// port the next free physical channel, in registration order, at
// Activate time. This is enough to drive a player's stereo output or a
// mixbus's main strip straight to hardware; it is not a full any-to-any
// patchbay, which spec's host boundary puts out of scope regardless.
package paeng

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/zynaudio/engine/pkg/host"
)

const bytesPerSample = 2 // SampleFmtInt16

type audioPort struct {
	port      host.Port
	channel   int
	connected bool
	scratch   []float32
}

type midiPort struct {
	port    host.Port
	pending []host.MIDIEvent
}

// Host drives one PortAudio stream. Create with New, register ports,
// then Activate.
type Host struct {
	mu sync.Mutex

	deviceIndex int
	sampleRate  int
	bufferSize  int

	outputs []*audioPort
	inputs  []*audioPort
	midis   []*midiPort
	nextID  int

	processFn    host.ProcessFunc
	sampleRateFn func(int)
	bufferSizeFn func(int)
	connectFn    func(host.Port, bool)

	stream *portaudio.PaStream
}

// New creates an unactivated Host targeting the given PortAudio device
// index, sample rate and block size.
func New(deviceIndex, sampleRate, bufferSize int) *Host {
	return &Host{
		deviceIndex: deviceIndex,
		sampleRate:  sampleRate,
		bufferSize:  bufferSize,
	}
}

func (h *Host) RegisterAudioOutput(name string) (host.Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := host.NewPort(h.nextID, name)
	h.nextID++
	h.outputs = append(h.outputs, &audioPort{port: p, scratch: make([]float32, h.bufferSize)})
	return p, nil
}

func (h *Host) RegisterAudioInput(name string) (host.Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := host.NewPort(h.nextID, name)
	h.nextID++
	h.inputs = append(h.inputs, &audioPort{port: p, scratch: make([]float32, h.bufferSize)})
	return p, nil
}

// RegisterMIDIInput registers a logical MIDI port. PortAudio carries no
// MIDI of its own; events reach it only via InjectMIDI, fed by whatever
// external MIDI transport the deployment wires up.
func (h *Host) RegisterMIDIInput(name string) (host.Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := host.NewPort(h.nextID, name)
	h.nextID++
	h.midis = append(h.midis, &midiPort{port: p})
	return p, nil
}

func (h *Host) Unregister(p host.Port) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, a := range h.outputs {
		if a.port.ID() == p.ID() {
			h.outputs = append(h.outputs[:i], h.outputs[i+1:]...)
			return nil
		}
	}
	for i, a := range h.inputs {
		if a.port.ID() == p.ID() {
			h.inputs = append(h.inputs[:i], h.inputs[i+1:]...)
			return nil
		}
	}
	for i, m := range h.midis {
		if m.port.ID() == p.ID() {
			h.midis = append(h.midis[:i], h.midis[i+1:]...)
			return nil
		}
	}
	return nil
}

func (h *Host) IsConnected(p host.Port) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.outputs {
		if a.port.ID() == p.ID() {
			return a.connected
		}
	}
	for _, a := range h.inputs {
		if a.port.ID() == p.ID() {
			return a.connected
		}
	}
	return false
}

// InjectMIDI queues a raw MIDI message for delivery to a registered
// MIDI input port on the next process block.
func (h *Host) InjectMIDI(p host.Port, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.midis {
		if m.port.ID() == p.ID() {
			m.pending = append(m.pending, host.MIDIEvent{Data: data})
			return
		}
	}
}

func (h *Host) SetProcessCallback(fn host.ProcessFunc)      { h.processFn = fn }
func (h *Host) SetSampleRateCallback(fn func(rate int))     { h.sampleRateFn = fn }
func (h *Host) SetBufferSizeCallback(fn func(size int))     { h.bufferSizeFn = fn }
func (h *Host) SetConnectCallback(fn func(p host.Port, c bool)) { h.connectFn = fn }

func (h *Host) SampleRate() int { return h.sampleRate }
func (h *Host) BufferSize() int { return h.bufferSize }

// Activate opens and starts a PortAudio duplex stream sized to however
// many audio ports are currently registered, then begins delivering
// process callbacks.
func (h *Host) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.processFn == nil {
		return fmt.Errorf("paeng: no process callback installed")
	}

	for i, a := range h.outputs {
		a.channel = i
		a.connected = true
	}
	for i, a := range h.inputs {
		a.channel = i
		a.connected = true
	}

	stream := &portaudio.PaStream{
		SampleRate: float64(h.sampleRate),
	}
	if len(h.outputs) > 0 {
		stream.OutputParameters = &portaudio.PaStreamParameters{
			DeviceIndex:  h.deviceIndex,
			ChannelCount: len(h.outputs),
			SampleFormat: portaudio.SampleFmtInt16,
		}
	}
	if len(h.inputs) > 0 {
		stream.InputParameters = &portaudio.PaStreamParameters{
			DeviceIndex:  h.deviceIndex,
			ChannelCount: len(h.inputs),
			SampleFormat: portaudio.SampleFmtInt16,
		}
	}

	if err := stream.OpenCallback(h.bufferSize, h.callback); err != nil {
		return fmt.Errorf("paeng: open stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("paeng: start stream: %w", err)
	}
	h.stream = stream

	slog.Info("paeng: stream activated",
		"sample_rate", h.sampleRate,
		"buffer_size", h.bufferSize,
		"outputs", len(h.outputs),
		"inputs", len(h.inputs))
	return nil
}

// Close stops and tears down the stream and releases every port.
func (h *Host) Close() error {
	h.mu.Lock()
	stream := h.stream
	h.stream = nil
	h.outputs = nil
	h.inputs = nil
	h.midis = nil
	h.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.StopStream(); err != nil {
		slog.Warn("paeng: stop stream", "error", err)
	}
	return stream.CloseCallback()
}

// callback runs on PortAudio's realtime thread: de-interleave input
// int16 PCM into per-port float32 scratch, run the installed
// ProcessFunc against a paContext view over that scratch, then
// re-interleave the output scratch back to int16 PCM.
func (h *Host) callback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	frames := int(frameCount)

	numIn := len(h.inputs)
	for ch, a := range h.inputs {
		for i := 0; i < frames; i++ {
			off := (i*numIn + ch) * bytesPerSample
			if off+1 >= len(input) {
				a.scratch[i] = 0
				continue
			}
			sample := int16(input[off]) | int16(input[off+1])<<8
			a.scratch[i] = float32(sample) / 32768.0
		}
	}

	ctx := &paContext{h: h, frames: frames}
	h.processFn(ctx)

	numOut := len(h.outputs)
	for ch, a := range h.outputs {
		for i := 0; i < frames; i++ {
			v := a.scratch[i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			sample := int16(v * 32767.0)
			off := (i*numOut + ch) * bytesPerSample
			if off+1 >= len(output) {
				continue
			}
			output[off] = byte(sample)
			output[off+1] = byte(sample >> 8)
		}
	}

	for _, m := range h.midis {
		m.pending = m.pending[:0]
	}

	return portaudio.Continue
}

// paContext is the ProcessContext passed to the installed ProcessFunc
// for the duration of one callback invocation.
type paContext struct {
	h      *Host
	frames int
}

func (c *paContext) Frames() int { return c.frames }

func (c *paContext) Output(p host.Port) []float32 {
	for _, a := range c.h.outputs {
		if a.port.ID() == p.ID() {
			return a.scratch[:c.frames]
		}
	}
	return nil
}

func (c *paContext) Input(p host.Port) []float32 {
	for _, a := range c.h.inputs {
		if a.port.ID() == p.ID() {
			return a.scratch[:c.frames]
		}
	}
	return nil
}

func (c *paContext) MIDI(p host.Port) []host.MIDIEvent {
	for _, m := range c.h.midis {
		if m.port.ID() == p.ID() {
			return m.pending
		}
	}
	return nil
}

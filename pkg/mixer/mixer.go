// Package mixer implements a two-tier mixing engine: channel strips
// feed effect sends and/or a mixbus, and mixbus strips sum channel
// contributions via a shared normalise bus. Both tiers share one
// Engine type parameterized by Mode, collapsing what was two
// near-duplicate implementations into one.
package mixer

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/zynaudio/engine/pkg/host"
	"github.com/zynaudio/engine/pkg/oscbus"
)

// Mode selects which strip variant an Engine runs.
type Mode int

const (
	// Channel mode: strips carry per-send levels/modes to external fx
	// busses; there is no normalise bus.
	Channel Mode = iota
	// Mixbus mode: strip 0 is the implicit main mix and accumulates
	// every other strip's post-gain output via the normalise bus;
	// there are no fx sends.
	Mixbus
)

// SendMode selects whether a send taps a strip pre- or post-fader.
type SendMode int

const (
	PostFader SendMode = iota
	PreFader
)

// MaxChannels bounds the strip table, matching MAX_CHANNELS in the
// original mixer.
const MaxChannels = 99

// MaxOSCClients bounds the registered OSC client table.
const MaxOSCClients = 5

// dpmFloor is the sentinel value published for a silent, DPM-enabled
// strip: -200 dBFS, not zero.
const dpmFloor = -200.0

// Send describes one channel strip's contribution to one fx bus
// (channel mode only). Sends are exposed 1-indexed to callers. Level and
// Mode are set from control calls and read every RT block, so both are
// plain atomics rather than a field guarded by a lock; Send is therefore
// always handled by pointer so the atomics are never copied.
type Send struct {
	levelBits atomic.Uint32 // float32 bits
	modeVal   atomic.Int32
}

func newSend() *Send {
	s := &Send{}
	s.modeVal.Store(int32(PostFader))
	return s
}

// Strip is one mixer channel or mixbus strip. Every field the RT
// callback and control-surface goroutines both touch is an individual
// atomic rather than a field guarded by a shared lock: control calls
// must never block behind the RT thread, and the RT thread must never
// block behind a control call. sends is itself a copy-on-write snapshot
// (see loadSends/storeSends) rather than a plain slice, since AddSend
// grows it from a control-rate goroutine while the RT callback ranges
// over it every block. Port fields and hasOut are set once at strip
// creation, before the strip is reachable from either side, and never
// change afterward, so they need no synchronization of their own.
type Strip struct {
	levelBits, reqLevelBits     atomic.Uint32 // float32 bits
	balanceBits, reqBalanceBits atomic.Uint32 // float32 bits

	mute      atomic.Bool
	solo      atomic.Bool
	mono      atomic.Bool
	ms        atomic.Bool
	phase     atomic.Bool
	normalise atomic.Bool
	enableDpm atomic.Bool

	sends atomic.Pointer[[]*Send] // channel mode only, index 0 == external send #1

	dpmABits, dpmBBits           atomic.Uint32 // float32 bits
	holdABits, holdBBits         atomic.Uint32 // float32 bits
	dpmALastBits, dpmBLastBits   atomic.Uint32 // float32 bits
	holdALastBits, holdBLastBits atomic.Uint32 // float32 bits

	inA, inB   host.Port
	outA, outB host.Port
	hasOut     bool
	inRouted   atomic.Bool
	outRouted  atomic.Bool
}

func newStrip(sendCount int) *Strip {
	s := &Strip{}
	s.reqLevelBits.Store(math.Float32bits(0.8))
	s.dpmALastBits.Store(math.Float32bits(100.0))
	s.dpmBLastBits.Store(math.Float32bits(100.0))
	s.holdALastBits.Store(math.Float32bits(100.0))
	s.holdBLastBits.Store(math.Float32bits(100.0))
	if sendCount > 0 {
		sends := make([]*Send, sendCount)
		for i := range sends {
			sends[i] = newSend()
		}
		s.storeSends(sends)
	}
	return s
}

// loadSends returns the strip's current send table. A nil result means
// no sends are configured yet (Mixbus mode, or before the first AddSend).
func (s *Strip) loadSends() []*Send {
	p := s.sends.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (s *Strip) storeSends(v []*Send) {
	s.sends.Store(&v)
}

// fxSend is one external effect bus (channel mode only): a shared
// accumulation buffer that every channel strip's sends write into.
type fxSend struct {
	Level      float32
	bufA, bufB []float32
	outA, outB host.Port
}

// Engine is a mixer: a fixed-capacity, index-stable table of strips,
// processed once per audio block from the realtime callback. Per spec,
// parameter mutation never takes a lock shared with the RT callback: the
// strip and send tables are copy-on-write snapshots swapped in with
// atomic.Pointer (loadStrips/storeStrips, loadSends/storeSends), so the
// RT callback reads them with a single atomic load and control calls
// never block behind an in-flight audio period. mu is taken only to
// serialize structural table rebuilds (AddStrip/RemoveStrip/AddSend/
// RemoveSend) and host reconfiguration (OnSampleRate/OnBufferSize)
// against each other; it is never held by the RT callback and never
// taken by a parameter getter or setter.
type Engine struct {
	mu sync.Mutex

	mode Mode

	strips atomic.Pointer[[]*Strip] // index-stable snapshot; nil entries are free slots
	sends  atomic.Pointer[[]*fxSend]

	sampleRate int
	bufferSize int

	dampingPeriod atomic.Int32
	holdPeriod    atomic.Int32
	dampingCount  int // RT-thread owned only
	holdCount     int // RT-thread owned only

	globalSolo atomic.Bool

	normaliseA, normaliseB []float32 // mixbus mode only

	oscClients *oscbus.Registry

	hostHandle host.Host
}

func (e *Engine) loadStrips() []*Strip {
	p := e.strips.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (e *Engine) storeStrips(v []*Strip) {
	e.strips.Store(&v)
}

func (e *Engine) loadSends() []*fxSend {
	p := e.sends.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (e *Engine) storeSends(v []*fxSend) {
	e.sends.Store(&v)
}

// NewEngine creates a mixer engine in the given mode. In Mixbus mode,
// strip 0 is created automatically as the implicit main mix, matching
// init()'s unconditional addStrip() for the MIXBUS build.
func NewEngine(mode Mode, sampleRate, bufferSize int) *Engine {
	tier := "channel"
	if mode == Mixbus {
		tier = "mixbus"
	}
	e := &Engine{
		mode:       mode,
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		oscClients: oscbus.NewRegistry(MaxOSCClients, "/mixer", tier),
	}
	e.recomputePeriods()
	if mode == Mixbus {
		e.normaliseA = make([]float32, bufferSize)
		e.normaliseB = make([]float32, bufferSize)
		e.storeStrips([]*Strip{newStrip(0)})
	}
	e.oscClients.OnAddClient(func(string, int) { e.resyncClient() })
	return e
}

func (e *Engine) recomputePeriods() {
	if e.bufferSize == 0 {
		return
	}
	dp := int32(0.9 * float64(e.sampleRate) / float64(e.bufferSize) / 15.0)
	if dp < 1 {
		dp = 1
	}
	e.dampingPeriod.Store(dp)
	e.holdPeriod.Store(dp * 20)
}

// OnSampleRate updates the damping/hold periods when the host's sample
// rate changes, grounded on onJackSamplerate.
func (e *Engine) OnSampleRate(rate int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sampleRate = rate
	e.recomputePeriods()
}

// OnBufferSize reallocates the normalise bus (mixbus mode) and is the
// single place host output buffer pointers should be refreshed, per the
// redesign note against caching pointers inside Process itself.
func (e *Engine) OnBufferSize(size int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bufferSize = size
	e.recomputePeriods()
	if e.mode == Mixbus {
		e.normaliseA = make([]float32, size)
		e.normaliseB = make([]float32, size)
	}
	for _, send := range e.loadSends() {
		if send == nil {
			continue
		}
		send.bufA = make([]float32, size)
		send.bufB = make([]float32, size)
	}
}

// AddStrip allocates a new strip in the first free slot and registers
// its audio ports on h. Returns the strip's index.
func (e *Engine) AddStrip(h host.Host) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	strips := append([]*Strip(nil), e.loadStrips()...)

	idx := -1
	for i, s := range strips {
		if s == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		if len(strips) >= MaxChannels {
			return -1, errFull
		}
		idx = len(strips)
		strips = append(strips, nil)
	}

	sendCount := 0
	if e.mode == Channel {
		sendCount = len(e.loadSends())
	}
	strip := newStrip(sendCount)

	inA, err := h.RegisterAudioInput(portName("input", idx, 'a'))
	if err != nil {
		return -1, err
	}
	inB, err := h.RegisterAudioInput(portName("input", idx, 'b'))
	if err != nil {
		h.Unregister(inA)
		return -1, err
	}
	outA, err := h.RegisterAudioOutput(portName("output", idx, 'a'))
	if err != nil {
		h.Unregister(inA)
		h.Unregister(inB)
		return -1, err
	}
	outB, err := h.RegisterAudioOutput(portName("output", idx, 'b'))
	if err != nil {
		h.Unregister(inA)
		h.Unregister(inB)
		h.Unregister(outA)
		return -1, err
	}

	strip.inA, strip.inB, strip.outA, strip.outB = inA, inB, outA, outB
	strip.hasOut = true
	strips[idx] = strip
	e.storeStrips(strips)
	return idx, nil
}

// RegisterMainPorts registers the implicit strip 0 main mix's audio
// ports on h. Mixbus mode only; strip 0 is created unrouted by
// NewEngine so it can never be reached through AddStrip, which only
// ever fills the first *free* slot.
func (e *Engine) RegisterMainPorts(h host.Host) error {
	if e.mode != Mixbus {
		return errWrongMode
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	strip := e.loadStrips()[0]
	inA, err := h.RegisterAudioInput(portName("input", 0, 'a'))
	if err != nil {
		return err
	}
	inB, err := h.RegisterAudioInput(portName("input", 0, 'b'))
	if err != nil {
		h.Unregister(inA)
		return err
	}
	outA, err := h.RegisterAudioOutput(portName("output", 0, 'a'))
	if err != nil {
		h.Unregister(inA)
		h.Unregister(inB)
		return err
	}
	outB, err := h.RegisterAudioOutput(portName("output", 0, 'b'))
	if err != nil {
		h.Unregister(inA)
		h.Unregister(inB)
		h.Unregister(outA)
		return err
	}

	strip.inA, strip.inB, strip.outA, strip.outB = inA, inB, outA, outB
	strip.hasOut = true
	strip.inRouted.Store(true)
	strip.outRouted.Store(true)
	return nil
}

// RemoveStrip frees a strip's slot and unregisters its ports. In Mixbus
// mode, strip 0 (the main mix) cannot be removed.
func (e *Engine) RemoveStrip(idx int, h host.Host) error {
	e.mu.Lock()
	strips := append([]*Strip(nil), e.loadStrips()...)
	if idx < 0 || idx >= len(strips) || strips[idx] == nil {
		e.mu.Unlock()
		return errInvalidStrip
	}
	if e.mode == Mixbus && idx == 0 {
		e.mu.Unlock()
		return errMainStrip
	}
	strip := strips[idx]
	// Nil the slot in a fresh copy and swap the snapshot pointer, rather
	// than mutating the live slice in place, so the RT callback - which
	// loads the table with a single atomic read and no lock - never
	// observes a half-torn-down strip.
	strips[idx] = nil
	e.storeStrips(strips)
	e.mu.Unlock()

	h.Unregister(strip.inA)
	h.Unregister(strip.inB)
	if strip.hasOut {
		h.Unregister(strip.outA)
		h.Unregister(strip.outB)
	}
	return nil
}

// AddSend allocates a new fx bus (channel mode only) and registers its
// output ports. Returns the 1-indexed send number.
func (e *Engine) AddSend(h host.Host) (int, error) {
	if e.mode != Channel {
		return -1, errWrongMode
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sends := append([]*fxSend(nil), e.loadSends()...)

	idx := -1
	for i, s := range sends {
		if s == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		idx = len(sends)
		sends = append(sends, nil)
	}

	outA, err := h.RegisterAudioOutput(portName("send", idx+1, 'a'))
	if err != nil {
		return -1, err
	}
	outB, err := h.RegisterAudioOutput(portName("send", idx+1, 'b'))
	if err != nil {
		h.Unregister(outA)
		return -1, err
	}

	sends[idx] = &fxSend{
		Level: 1.0,
		bufA:  make([]float32, e.bufferSize),
		bufB:  make([]float32, e.bufferSize),
		outA:  outA,
		outB:  outB,
	}
	e.storeSends(sends)

	for _, s := range e.loadStrips() {
		if s == nil {
			continue
		}
		cur := s.loadSends()
		if len(cur) > idx {
			continue
		}
		grown := append([]*Send(nil), cur...)
		for len(grown) <= idx {
			grown = append(grown, newSend())
		}
		s.storeSends(grown)
	}
	return idx + 1, nil
}

// RemoveSend frees a 1-indexed fx bus. Returns true on success, false if
// send does not refer to an allocated bus (matching removeSend's
// inverted 0/1 success convention only at the C-API boundary; here we
// use a plain bool).
func (e *Engine) RemoveSend(send int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	sends := append([]*fxSend(nil), e.loadSends()...)
	idx := send - 1
	if idx < 0 || idx >= len(sends) || sends[idx] == nil {
		return false
	}
	sends[idx] = nil
	e.storeSends(sends)
	return true
}

// StripCount returns how many strip slots are currently allocated.
func (e *Engine) StripCount() int {
	n := 0
	for _, s := range e.loadStrips() {
		if s != nil {
			n++
		}
	}
	return n
}

// SendCount returns how many fx sends are currently allocated.
func (e *Engine) SendCount() int {
	n := 0
	for _, s := range e.loadSends() {
		if s != nil {
			n++
		}
	}
	return n
}

// MaxChannels returns the strip table's capacity.
func (e *Engine) MaxChannels() int { return MaxChannels }

// Close soft-mutes the main strip (or strip 0) before the engine is torn
// down, grounded on end()'s setLevel(0, 0.0) + brief pause.
func (e *Engine) Close() {
	strips := e.loadStrips()
	if len(strips) > 0 && strips[0] != nil {
		strips[0].reqLevelBits.Store(math.Float32bits(0.0))
	}
}

func convertToDBFS(raw float32) float32 {
	if raw <= 0 {
		return dpmFloor
	}
	db := 20.0 * float32(math.Log10(float64(raw)))
	if db < dpmFloor {
		return dpmFloor
	}
	return db
}

func portName(base string, idx int, leg byte) string {
	return fmt.Sprintf("%s_%02d%c", base, idx, leg)
}

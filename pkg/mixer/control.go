package mixer

import (
	"fmt"
	"math"

	"github.com/zynaudio/engine/pkg/host"
)

// Control-surface methods: each is a bounds-check, a mutation, and an
// OSC republish, mirroring mixer.c's flat setter/getter list. Invalid
// strip indices are silently ignored on setters and return a neutral
// sentinel on getters, matching the original's error-handling style.
// strip() loads the strip table with a single atomic read and no lock;
// every mutation below then lands on the strip's own atomic fields, so
// no control call ever takes a lock shared with the RT callback.

func (e *Engine) strip(idx int) *Strip {
	strips := e.loadStrips()
	if idx < 0 || idx >= len(strips) {
		return nil
	}
	return strips[idx]
}

func (e *Engine) SetLevel(idx int, level float32) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.reqLevelBits.Store(math.Float32bits(level))
	e.publishFloat(idx, "level", level)
}

func (e *Engine) Level(idx int) float32 {
	s := e.strip(idx)
	if s == nil {
		return 0
	}
	return math.Float32frombits(s.reqLevelBits.Load())
}

func (e *Engine) SetBalance(idx int, balance float32) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.reqBalanceBits.Store(math.Float32bits(balance))
	e.publishFloat(idx, "balance", balance)
}

func (e *Engine) Balance(idx int) float32 {
	s := e.strip(idx)
	if s == nil {
		return 0
	}
	return math.Float32frombits(s.reqBalanceBits.Load())
}

func (e *Engine) SetMute(idx int, mute bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.mute.Store(mute)
	e.publishBool(idx, "mute", mute)
}

func (e *Engine) Mute(idx int) bool {
	s := e.strip(idx)
	if s == nil {
		return false
	}
	return s.mute.Load()
}

func (e *Engine) ToggleMute(idx int) {
	e.SetMute(idx, !e.Mute(idx))
}

// SetSolo sets a strip's solo state. Soloing the mixbus main strip (idx
// 0 in Mixbus mode) clears every other strip's solo; global solo then
// stays engaged through the main strip alone, so every other strip is
// silenced.
func (e *Engine) SetSolo(idx int, solo bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.solo.Store(solo)
	if e.mode == Mixbus && idx == 0 && solo {
		e.clearOtherSolos(idx)
	}
	e.recomputeGlobalSolo()
	e.publishBool(idx, "solo", solo)
}

func (e *Engine) clearOtherSolos(except int) {
	strips := e.loadStrips()
	for i, s := range strips {
		if s == nil || i == except {
			continue
		}
		if s.solo.CompareAndSwap(true, false) {
			e.publishBool(i, "solo", false)
		}
	}
}

func (e *Engine) Solo(idx int) bool {
	s := e.strip(idx)
	if s == nil {
		return false
	}
	return s.solo.Load()
}

func (e *Engine) ToggleSolo(idx int) {
	e.SetSolo(idx, !e.Solo(idx))
}

// GlobalSolo reports whether any strip currently has solo engaged.
func (e *Engine) GlobalSolo() bool {
	return e.globalSolo.Load()
}

func (e *Engine) recomputeGlobalSolo() {
	strips := e.loadStrips()
	any := false
	for _, s := range strips {
		if s != nil && s.solo.Load() {
			any = true
			break
		}
	}
	e.globalSolo.Store(any)
}

func (e *Engine) SetMono(idx int, mono bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.mono.Store(mono)
	e.publishBool(idx, "mono", mono)
}

func (e *Engine) Mono(idx int) bool {
	s := e.strip(idx)
	if s == nil {
		return false
	}
	return s.mono.Load()
}

func (e *Engine) ToggleMono(idx int) {
	e.SetMono(idx, !e.Mono(idx))
}

func (e *Engine) SetMS(idx int, ms bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.ms.Store(ms)
	e.publishBool(idx, "ms", ms)
}

func (e *Engine) MS(idx int) bool {
	s := e.strip(idx)
	if s == nil {
		return false
	}
	return s.ms.Load()
}

func (e *Engine) ToggleMS(idx int) {
	e.SetMS(idx, !e.MS(idx))
}

func (e *Engine) SetPhase(idx int, invert bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.phase.Store(invert)
	e.publishBool(idx, "phase", invert)
}

func (e *Engine) Phase(idx int) bool {
	s := e.strip(idx)
	if s == nil {
		return false
	}
	return s.phase.Load()
}

func (e *Engine) TogglePhase(idx int) {
	e.SetPhase(idx, !e.Phase(idx))
}

// SetNormalise is mixbus-only, and additionally a no-op on strip 0 (the
// main mix can't be normalised into itself), matching setNormalise's
// extra channel==0 guard in the MIXBUS build.
func (e *Engine) SetNormalise(idx int, normalise bool) {
	if e.mode != Mixbus || idx == 0 {
		return
	}
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.normalise.Store(normalise)
	e.publishBool(idx, "normalise", normalise)
}

func (e *Engine) Normalise(idx int) bool {
	if e.mode != Mixbus {
		return false
	}
	s := e.strip(idx)
	if s == nil {
		return false
	}
	return s.normalise.Load()
}

// SetSend sets the level a channel strip contributes to a 1-indexed fx
// bus. No-op in Mixbus mode.
func (e *Engine) SetSend(idx, send int, level float32) {
	if e.mode != Channel {
		return
	}
	s := e.strip(idx)
	if s == nil {
		return
	}
	sends := s.loadSends()
	i := send - 1
	if i < 0 || i >= len(sends) {
		return
	}
	sends[i].levelBits.Store(math.Float32bits(level))
	e.publishFloat(idx, fmt.Sprintf("send_%d", send), level)
}

func (e *Engine) Send(idx, send int) float32 {
	s := e.strip(idx)
	if s == nil {
		return 0
	}
	sends := s.loadSends()
	i := send - 1
	if i < 0 || i >= len(sends) {
		return 0
	}
	return math.Float32frombits(sends[i].levelBits.Load())
}

func (e *Engine) SetSendMode(idx, send int, mode SendMode) {
	if e.mode != Channel {
		return
	}
	s := e.strip(idx)
	if s == nil {
		return
	}
	sends := s.loadSends()
	i := send - 1
	if i < 0 || i >= len(sends) {
		return
	}
	sends[i].modeVal.Store(int32(mode))
	e.oscClients.SendInt(idx, fmt.Sprintf("sendmode_%d", send), int32(mode))
}

func (e *Engine) SendMode(idx, send int) SendMode {
	s := e.strip(idx)
	if s == nil {
		return PostFader
	}
	sends := s.loadSends()
	i := send - 1
	if i < 0 || i >= len(sends) {
		return PostFader
	}
	return SendMode(sends[i].modeVal.Load())
}

// EnableDpm turns DPM metering on or off for a strip. Disabling does
// not reset the last-published peak/hold values: the enableDpm bug in
// the original, which cleared them on a pointer-vs-int comparison that
// could never be true, is not reproduced.
func (e *Engine) EnableDpm(idx int, enable bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.enableDpm.Store(enable)
}

// Dpm returns the current peak value for a channel (0=A, 1=B) in dBFS.
func (e *Engine) Dpm(idx, channel int) float32 {
	s := e.strip(idx)
	if s == nil {
		return dpmFloor
	}
	if channel == 0 {
		return convertToDBFS(math.Float32frombits(s.dpmABits.Load()))
	}
	return convertToDBFS(math.Float32frombits(s.dpmBBits.Load()))
}

// DpmHold returns the current hold value for a channel in dBFS.
func (e *Engine) DpmHold(idx, channel int) float32 {
	s := e.strip(idx)
	if s == nil {
		return dpmFloor
	}
	if channel == 0 {
		return convertToDBFS(math.Float32frombits(s.holdABits.Load()))
	}
	return convertToDBFS(math.Float32frombits(s.holdBBits.Load()))
}

// DpmStates returns 5 floats per strip in [start,end]: dpmA, dpmB,
// holdA, holdB, mono. start/end are swapped if reversed.
func (e *Engine) DpmStates(start, end int) []float32 {
	if start > end {
		start, end = end, start
	}
	var out []float32
	for i := start; i <= end; i++ {
		out = append(out,
			e.Dpm(i, 0), e.Dpm(i, 1),
			e.DpmHold(i, 0), e.DpmHold(i, 1),
			boolToFloat(e.Mono(i)))
	}
	return out
}

func boolToFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// Reset restores a strip's defaults: level 0.8, balance 0, mute/mono/
// phase/solo off, every send at 0 with PostFader mode.
func (e *Engine) Reset(idx int) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.reqLevelBits.Store(math.Float32bits(0.8))
	s.reqBalanceBits.Store(math.Float32bits(0))
	s.mute.Store(false)
	s.mono.Store(false)
	s.phase.Store(false)
	s.solo.Store(false)
	for _, send := range s.loadSends() {
		send.levelBits.Store(math.Float32bits(0))
		send.modeVal.Store(int32(PostFader))
	}
	e.recomputeGlobalSolo()
}

// SetInRouted and SetOutRouted record host connection state, normally
// driven by the host's connect-change notification (onJackConnect).
func (e *Engine) SetInRouted(idx int, routed bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.inRouted.Store(routed)
}

func (e *Engine) SetOutRouted(idx int, routed bool) {
	s := e.strip(idx)
	if s == nil {
		return
	}
	s.outRouted.Store(routed)
}

// AddOscClient subscribes a new OSC endpoint and, on success, republishes
// every strip's current parameters to it (resync-on-subscribe), matching
// the original's behaviour of walking every channel on addOscClient.
func (e *Engine) AddOscClient(host string, port int) bool {
	return e.oscClients.AddClient(host, port)
}

// RemoveOscClient unsubscribes an OSC endpoint.
func (e *Engine) RemoveOscClient(host string, port int) bool {
	return e.oscClients.RemoveClient(host, port)
}

// resyncClient republishes every strip's full parameter set and resets
// each strip's last-published DPM mirrors back to the 100.0 sentinel so
// the meter loop treats the next peak as new data for every subscriber.
func (e *Engine) resyncClient() {
	strips := e.loadStrips()
	resetBits := math.Float32bits(100.0)
	for idx, s := range strips {
		if s == nil {
			continue
		}
		level := math.Float32frombits(s.reqLevelBits.Load())
		balance := math.Float32frombits(s.reqBalanceBits.Load())
		mute, solo, mono, ms, phase, normalise :=
			s.mute.Load(), s.solo.Load(), s.mono.Load(), s.ms.Load(), s.phase.Load(), s.normalise.Load()
		s.dpmALastBits.Store(resetBits)
		s.dpmBLastBits.Store(resetBits)
		s.holdALastBits.Store(resetBits)
		s.holdBLastBits.Store(resetBits)

		e.publishFloat(idx, "level", level)
		e.publishFloat(idx, "balance", balance)
		e.publishBool(idx, "mute", mute)
		e.publishBool(idx, "solo", solo)
		e.publishBool(idx, "mono", mono)
		e.publishBool(idx, "ms", ms)
		e.publishBool(idx, "phase", phase)
		if e.mode == Mixbus {
			e.publishBool(idx, "normalise", normalise)
		} else {
			for si, send := range s.loadSends() {
				e.publishFloat(idx, fmt.Sprintf("send_%d", si+1), math.Float32frombits(send.levelBits.Load()))
				e.oscClients.SendInt(idx, fmt.Sprintf("sendmode_%d", si+1), send.modeVal.Load())
			}
		}
	}
}

// StripInputPorts returns a strip's registered input ports, for a
// caller wiring another engine's output directly into this strip.
func (e *Engine) StripInputPorts(idx int) (a, b host.Port, ok bool) {
	s := e.strip(idx)
	if s == nil {
		return host.Port{}, host.Port{}, false
	}
	return s.inA, s.inB, true
}

// StripOutputPorts returns a strip's registered output ports, if it
// has any (every strip added via AddStrip or RegisterMainPorts does).
func (e *Engine) StripOutputPorts(idx int) (a, b host.Port, ok bool) {
	s := e.strip(idx)
	if s == nil || !s.hasOut {
		return host.Port{}, host.Port{}, false
	}
	return s.outA, s.outB, true
}

func (e *Engine) publishFloat(idx int, param string, v float32) {
	e.oscClients.SendFloat(idx, param, v)
}

func (e *Engine) publishBool(idx int, param string, v bool) {
	e.oscClients.SendInt(idx, param, boolToInt(v))
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

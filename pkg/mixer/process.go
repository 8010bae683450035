package mixer

import (
	"math"

	"github.com/zynaudio/engine/pkg/host"
)

// ProcessFunc returns a host.ProcessFunc that runs this engine's mix
// algorithm once per audio block, grounded end to end on onJackProcess:
// strips are visited in reverse index order so the mixbus main strip
// (index 0) sees every other strip's normalise contribution before it
// processes; level/balance are ramped per sample from the current value
// to the latched request over the block; a muted strip, or any
// non-soloed strip while another strip has solo engaged, ramps to zero
// the same way; the mixbus main strip is exempt from solo-killing since
// it only ever carries what the soloed strips already passed through;
// phase invert precedes M/S decode precedes mono fold; a pre-fader
// snapshot is taken before gain is applied; DPM peak and hold are
// updated every frame on DPM-enabled strips and left untouched on the
// others; the shared damping/hold counters decay once per block, not
// per strip.
func (e *Engine) ProcessFunc() host.ProcessFunc {
	return func(ctx host.ProcessContext) {
		frames := ctx.Frames()

		// No lock: strips/sends are copy-on-write snapshots loaded with a
		// single atomic read each, per spec's locking contract - the RT
		// callback never blocks behind a control call and vice versa.
		strips := e.loadStrips()
		sends := e.loadSends()

		if e.mode == Mixbus {
			for i := range e.normaliseA[:frames] {
				e.normaliseA[i] = 0
				e.normaliseB[i] = 0
			}
		} else {
			for _, send := range sends {
				if send == nil {
					continue
				}
				for i := range send.bufA[:frames] {
					send.bufA[i] = 0
					send.bufB[i] = 0
				}
			}
		}

		for i := len(strips) - 1; i >= 0; i-- {
			strip := strips[i]
			if strip == nil {
				continue
			}
			e.processStrip(ctx, i, strip, frames, sends)
		}

		if e.mode == Channel {
			for _, send := range sends {
				if send == nil {
					continue
				}
				outA := ctx.Output(send.outA)
				outB := ctx.Output(send.outB)
				for i := 0; i < frames; i++ {
					outA[i] = send.bufA[i]
					outB[i] = send.bufB[i]
				}
			}
		}

		if e.dampingCount == 0 {
			e.dampingCount = int(e.dampingPeriod.Load())
		} else {
			e.dampingCount--
		}
		if e.holdCount == 0 {
			e.holdCount = int(e.holdPeriod.Load())
		} else {
			e.holdCount--
		}
	}
}

func (e *Engine) processStrip(ctx host.ProcessContext, idx int, s *Strip, frames int, sends []*fxSend) {
	if !s.inRouted.Load() {
		if s.enableDpm.Load() {
			s.dpmABits.Store(math.Float32bits(dpmFloor))
			s.dpmBBits.Store(math.Float32bits(dpmFloor))
			s.holdABits.Store(math.Float32bits(dpmFloor))
			s.holdBBits.Store(math.Float32bits(dpmFloor))
		}
		if s.hasOut {
			outA := ctx.Output(s.outA)
			outB := ctx.Output(s.outB)
			for i := 0; i < frames; i++ {
				outA[i], outB[i] = 0, 0
			}
		}
		return
	}

	inA := ctx.Input(s.inA)
	inB := ctx.Input(s.inB)

	level := math.Float32frombits(s.levelBits.Load())
	balance := math.Float32frombits(s.balanceBits.Load())
	reqLevel := math.Float32frombits(s.reqLevelBits.Load())
	reqBalance := math.Float32frombits(s.reqBalanceBits.Load())

	curLevelA, curLevelB := legLevels(level, balance)
	reqLevelA, reqLevelB := legLevels(reqLevel, reqBalance)

	soloKilled := e.globalSolo.Load() && !s.solo.Load() && !(e.mode == Mixbus && idx == 0)
	if s.mute.Load() || soloKilled {
		level = 0
		reqLevelA, reqLevelB = 0, 0
	} else {
		level = reqLevel
		balance = reqBalance
	}
	s.levelBits.Store(math.Float32bits(level))
	s.balanceBits.Store(math.Float32bits(balance))

	deltaA := (reqLevelA - curLevelA) / float32(frames)
	deltaB := (reqLevelB - curLevelB) / float32(frames)

	dpmA := math.Float32frombits(s.dpmABits.Load())
	dpmB := math.Float32frombits(s.dpmBBits.Load())
	holdA := math.Float32frombits(s.holdABits.Load())
	holdB := math.Float32frombits(s.holdBBits.Load())

	phase := s.phase.Load()
	ms := s.ms.Load()
	mono := s.mono.Load()
	normalise := s.normalise.Load()
	dpmOn := s.enableDpm.Load()
	strSends := s.loadSends()

	var outA, outB []float32
	if s.hasOut {
		outA = ctx.Output(s.outA)
		outB = ctx.Output(s.outB)
	}

	for i := 0; i < frames; i++ {
		a := inA[i]
		b := inB[i]

		if e.mode == Mixbus && idx == 0 {
			a += e.normaliseA[i]
			b += e.normaliseB[i]
		}

		if phase {
			b = -b
		}
		if ms {
			m := a + b
			sVal := a - b
			a, b = m, sVal
		}
		if mono {
			folded := (a + b) / 2
			a, b = folded, folded
		}

		preA, preB := a, b
		if isInf32(preA) {
			preA = 1
		}
		if isInf32(preB) {
			preB = 1
		}

		a *= curLevelA
		b *= curLevelB
		if isInf32(a) {
			a = 1
		}
		if isInf32(b) {
			b = 1
		}

		if outA != nil {
			outA[i] = a
			outB[i] = b
		}

		if e.mode == Mixbus {
			if normalise && idx != 0 {
				e.normaliseA[i] += a
				e.normaliseB[i] += b
			}
		} else {
			for si, send := range sends {
				if send == nil || si >= len(strSends) {
					continue
				}
				cfg := strSends[si]
				cfgLevel := math.Float32frombits(cfg.levelBits.Load())
				if cfgLevel == 0 {
					continue
				}
				var sampA, sampB float32
				if SendMode(cfg.modeVal.Load()) == PreFader {
					sampA, sampB = preA, preB
				} else {
					sampA, sampB = a, b
				}
				sampA *= cfgLevel * send.Level
				sampB *= cfgLevel * send.Level
				if isInf32(sampA) {
					sampA = 1
				}
				if isInf32(sampB) {
					sampB = 1
				}
				send.bufA[i] += sampA
				send.bufB[i] += sampB
			}
		}

		curLevelA += deltaA
		curLevelB += deltaB

		if !dpmOn {
			continue
		}
		if absF32(a) > dpmA {
			dpmA = absF32(a)
		}
		if absF32(b) > dpmB {
			dpmB = absF32(b)
		}
		if dpmA > holdA {
			holdA = dpmA
		}
		if dpmB > holdB {
			holdB = dpmB
		}
	}

	if !dpmOn {
		return
	}
	if e.holdCount == 0 {
		holdA = dpmA
		holdB = dpmB
	}
	if e.dampingCount == 0 {
		dpmA *= 0.9
		dpmB *= 0.9
	}
	s.dpmABits.Store(math.Float32bits(dpmA))
	s.dpmBBits.Store(math.Float32bits(dpmB))
	s.holdABits.Store(math.Float32bits(holdA))
	s.holdBBits.Store(math.Float32bits(holdB))
}

// legLevels splits a strip's level/balance pair into independent A/B
// leg gains, matching onJackProcess's balance branch: a positive
// balance attenuates A by (1-balance), a negative balance attenuates B
// by (1+balance), and balance 0 leaves both legs at full level.
func legLevels(level, balance float32) (a, b float32) {
	if balance > 0 {
		return level * (1 - balance), level
	}
	if balance < 0 {
		return level, level * (1 + balance)
	}
	return level, level
}

func isInf32(f float32) bool {
	return math.IsInf(float64(f), 0)
}

func absF32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

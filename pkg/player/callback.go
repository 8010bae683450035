package player

import (
	"github.com/zynaudio/engine/pkg/framering"
	"github.com/zynaudio/engine/pkg/host"
)

// ProcessFunc returns a host.ProcessFunc bound to this engine, draining
// the ring buffer into outA/outB and dispatching MIDI CC messages from
// midiIn. Grounded on onJackProcess: STARTING transitions to PLAYING
// once idle (no seek pending), level is applied per sample, the
// remainder of a short block is silenced, and STOPPING (or reaching the
// recorded last-frame marker) transitions to STOPPED.
func (e *Engine) ProcessFunc(outA, outB, midiIn host.Port) host.ProcessFunc {
	scratch := make([]framering.Frame, 0, 4096)

	return func(ctx host.ProcessContext) {
		frames := ctx.Frames()
		a := ctx.Output(outA)
		b := ctx.Output(outB)

		for _, ev := range ctx.MIDI(midiIn) {
			e.HandleMIDI(ev.Data)
		}

		state := PlayState(e.playState.Load())
		if state == Starting && seekState(e.seekState.Load()) == seekIdle {
			state = Playing
			e.playState.Store(int32(Playing))
		}

		count := 0
		if state == Playing || state == Stopping {
			if cap(scratch) < frames {
				scratch = make([]framering.Frame, frames)
			}
			scratch = scratch[:frames]
			count = e.ring.Pop(scratch)

			lastFrame := e.lastFrame.Load()
			drainedToEOF := lastFrame >= 0 && int64(e.ring.ReadCursor()) == lastFrame
			if state == Stopping || drainedToEOF {
				e.playState.Store(int32(Stopped))
				e.lastFrame.Store(-1)
			}

			level := e.Volume()
			for i := 0; i < count; i++ {
				a[i] = scratch[i].A * level
				b[i] = scratch[i].B * level
			}
			e.posFrames.Add(uint64(count))
		}

		for i := count; i < frames; i++ {
			a[i] = 0
			b[i] = 0
		}
	}
}

package player

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/zynaudio/engine/pkg/decoders"
	"github.com/zynaudio/engine/pkg/framering"
	"github.com/zynaudio/engine/pkg/src"
)

// ringWaitPoll and loopThrottle mirror fileThread's usleep(1000) while
// waiting for ring buffer space and usleep(10000) at the end of every
// iteration.
const (
	ringWaitPoll = time.Millisecond
	loopThrottle = 10 * time.Millisecond
)

// seeker is implemented by decoder backends that can reposition within
// their source. types.AudioDecoder itself has no seek method (the
// decoder library is out of scope), so this is detected opportunistically.
type seeker interface {
	SeekFrames(frame int64) error
}

// readerLoop is the file reader worker (Component B): it decodes the
// open file, runs it through sample-rate conversion if needed, and
// pushes stereo frames into the ring buffer for the realtime callback
// to drain. Grounded on zynaudioplayer.c's fileThread: same seek
// handling via ring-buffer reset, same short-read/loop/end-of-file
// detection, same poll-for-space backoff while the ring buffer is full.
func (e *Engine) readerLoop(stop <-chan struct{}) {
	defer e.wg.Done()

	e.mu.Lock()
	dec := e.decoder
	srcRate := e.srcRate
	channels := e.srcChans
	bytesPerSm := e.bytesPerSm
	e.mu.Unlock()

	if dec == nil {
		return
	}

	conv, err := src.New(srcRate, e.hostRate, channels)
	if err != nil {
		slog.Error("player: failed to create resampler", "error", err)
		return
	}
	defer conv.Close()

	readBuf := make([]byte, e.cfg.ReadBlockFrames*channels*bytesPerSm)
	convBuf := make([]byte, e.cfg.ReadBlockFrames*channels*bytesPerSm*2)
	// pushBuf must hold as many frames as convBuf can ever decode to, not
	// just one read block's worth: SoXR upsampling (e.g. 22050->44100) can
	// return up to 2x ReadBlockFrames frames in a single conv.Read.
	pushBuf := make([]framering.Frame, e.cfg.ReadBlockFrames*2)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if seekState(e.seekState.Load()) == seekSeeking {
			e.ring.Reset()
			e.lastFrame.Store(-1)

			if sk, ok := dec.(seeker); ok {
				targetSrcFrame := int64(float64(e.posFrames.Load()) * float64(srcRate) / float64(e.hostRate))
				if err := sk.SeekFrames(targetSrcFrame); err != nil {
					slog.Warn("player: seek failed", "error", err)
				}
			} else if e.posFrames.Load() == 0 {
				if reopened, err := decoders.NewDecoder(e.fileName); err == nil {
					dec.Close()
					dec = reopened
					e.mu.Lock()
					e.decoder = dec
					e.mu.Unlock()
				}
			}
			e.seekState.Store(int32(seekLoading))
			e.moreData.Store(true)
		}

		if !e.moreData.Load() && seekState(e.seekState.Load()) != seekLoading {
			select {
			case <-stop:
				return
			case <-time.After(loopThrottle):
			}
			continue
		}

		n, decErr := dec.DecodeSamples(e.cfg.ReadBlockFrames, readBuf)
		more := true
		if decErr != nil || n == 0 {
			if e.loop.Load() {
				if sk, ok := dec.(seeker); ok {
					sk.SeekFrames(0)
				} else if reopened, err := decoders.NewDecoder(e.fileName); err == nil {
					dec.Close()
					dec = reopened
					e.mu.Lock()
					e.decoder = dec
					e.mu.Unlock()
				}
				more = true
			} else {
				more = false
				if decErr != nil && !errors.Is(decErr, io.EOF) {
					slog.Debug("player: decode ended", "error", decErr)
				}
			}
		}
		e.moreData.Store(more)

		if n > 0 {
			bytesIn := n * channels * bytesPerSm
			conv.Write(readBuf[:bytesIn])
		}

		avail := conv.Available()
		read, _ := conv.Read(convBuf[:min(avail, len(convBuf))])
		if read > 0 {
			frameBytes := channels * 2 // 16-bit PCM, source channel count preserved by SoXR
			frames := read / frameBytes
			for i := 0; i < frames; i++ {
				base := i * frameBytes
				a := int16(uint16(convBuf[base]) | uint16(convBuf[base+1])<<8)
				b := a
				if channels > 1 {
					b = int16(uint16(convBuf[base+2]) | uint16(convBuf[base+3])<<8)
				}
				pushBuf[i] = framering.Frame{A: float32(a) / 32768.0, B: float32(b) / 32768.0}
			}

			toPush := pushBuf[:frames]
			for len(toPush) > 0 {
				written, _ := e.ring.Push(toPush)
				toPush = toPush[written:]
				if written == 0 {
					if seekState(e.seekState.Load()) == seekSeeking {
						break
					}
					select {
					case <-stop:
						return
					case <-time.After(ringWaitPoll):
					}
				}
			}
		}

		if !more {
			e.lastFrame.Store(int64(e.ring.ReadCursor() + e.ring.AvailableRead()))
		}

		if seekState(e.seekState.Load()) == seekLoading {
			e.seekState.Store(int32(seekIdle))
		}

		select {
		case <-stop:
			return
		case <-time.After(loopThrottle):
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

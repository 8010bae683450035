// Package src provides streaming sample-rate conversion for the file
// reader worker, wrapping the SoXR resampler the same way the teacher's
// offline transform command does, but fed incrementally block-by-block
// instead of with the whole file in memory.
package src

import (
	soxr "github.com/zaf/resample"

	"github.com/zynaudio/engine/pkg/ringbuffer"
)

// Quality mirrors the soxr quality presets exposed by zaf/resample.
type Quality = soxr.Quality

// sinkSize bounds the converter's output queue; a few blocks' worth of
// converted audio is enough headroom between reader pushes and Read
// drains, and ringbuffer.New rounds it up to the next power of 2 anyway.
const sinkSize = 1 << 18

// Converter streams 16-bit interleaved PCM through SoXR. Write accepts
// decoded input bytes as they arrive from the file decoder; converted
// output accumulates in a lock-free byte ring buffer drained by Read.
// If the input and output sample rates match, Converter degrades to a
// pass-through copy and never touches SoXR, mirroring the fast path the
// original reader takes when src_ratio == 1.0.
type Converter struct {
	passthrough bool
	sink        *ringbuffer.RingBuffer
	resampler   *soxr.Resampler
}

// New creates a Converter from fromRate to toRate for the given channel
// count, using SoXR's high-quality preset (matching cmd/transform.go).
func New(fromRate, toRate, channels int) (*Converter, error) {
	c := &Converter{sink: ringbuffer.New(sinkSize)}
	if fromRate == toRate {
		c.passthrough = true
		return c, nil
	}

	resampler, err := soxr.New(c.sink, float64(fromRate), float64(toRate), channels, soxr.I16, soxr.HighQ)
	if err != nil {
		return nil, err
	}
	c.resampler = resampler
	return c, nil
}

// Write feeds raw 16-bit PCM bytes in and returns once any resulting
// converted bytes have been queued for Read.
func (c *Converter) Write(p []byte) (int, error) {
	if c.passthrough {
		return c.sink.Write(p)
	}
	return c.resampler.Write(p)
}

// Read drains converted bytes produced so far. An empty sink is not an
// error here, unlike RingBuffer's own io.Reader contract, since the
// reader worker polls Read continuously while waiting on SoXR.
func (c *Converter) Read(p []byte) (int, error) {
	n, err := c.sink.Read(p)
	if err == ringbuffer.ErrInsufficientData {
		return 0, nil
	}
	return n, err
}

// Close flushes any tail samples buffered inside SoXR and closes the
// resampler. Safe to call on a passthrough converter.
func (c *Converter) Close() error {
	if c.passthrough {
		return nil
	}
	return c.resampler.Close()
}

// Available exposes the converter's queued-but-unread byte count,
// letting the reader worker decide how much more it can safely push
// before pausing for the ring buffer to drain.
func (c *Converter) Available() int { return int(c.sink.AvailableRead()) }

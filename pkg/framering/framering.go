// Package framering provides a lock-free single-producer single-consumer
// ring buffer of stereo audio frames, used to pass decoded sample pairs
// from a file reader worker to a real-time audio callback.
package framering

import (
	"sync/atomic"

	"github.com/zynaudio/engine/pkg/types"
)

// Re-export common ringbuffer errors for callers that want errors.Is checks.
var (
	ErrInsufficientSpace = types.ErrInsufficientSpace
	ErrInsufficientData  = types.ErrInsufficientData
)

// Frame is one stereo sample pair.
type Frame struct {
	A float32
	B float32
}

// Buffer is a lock-free SPSC ring buffer of Frame.
//
// Thread safety:
//   - Push must only be called by the producer (file reader worker)
//   - Pop must only be called by the consumer (real-time audio callback)
//
// Capacity is rounded up to the next power of 2 so index wrap uses a
// bitwise AND instead of a modulo.
type Buffer struct {
	buffer   []Frame
	size     uint64
	mask     uint64
	writePos atomic.Uint64
	readPos  atomic.Uint64
}

// New creates a ring buffer able to hold at least capacity frames.
func New(capacity uint64) *Buffer {
	capacity = nextPowerOf2(capacity)
	return &Buffer{
		buffer: make([]Frame, capacity),
		size:   capacity,
		mask:   capacity - 1,
	}
}

// Push writes frames to the ring buffer, writing as many as fit.
// Returns the number of frames actually written and ErrInsufficientSpace
// if none could be written at all. Producer-only.
func (b *Buffer) Push(frames []Frame) (int, error) {
	count := uint64(len(frames))
	if count == 0 {
		return 0, nil
	}

	available := b.AvailableWrite()
	toWrite := min(count, available)
	if toWrite == 0 {
		return 0, ErrInsufficientSpace
	}

	writePos := b.writePos.Load()
	for i := uint64(0); i < toWrite; i++ {
		b.buffer[(writePos+i)&b.mask] = frames[i]
	}
	b.writePos.Store(writePos + toWrite)
	return int(toWrite), nil
}

// Pop reads up to len(out) frames into out, reading as many as are
// available. Returns the number of frames read. Consumer-only. Unlike
// Push, Pop never errors on a partial/empty read: the real-time callback
// must silence the remainder of its block instead of failing.
func (b *Buffer) Pop(out []Frame) int {
	if len(out) == 0 {
		return 0
	}

	available := b.AvailableRead()
	if available == 0 {
		return 0
	}

	toRead := min(uint64(len(out)), available)
	readPos := b.readPos.Load()
	for i := uint64(0); i < toRead; i++ {
		out[i] = b.buffer[(readPos+i)&b.mask]
	}
	b.readPos.Store(readPos + toRead)
	return int(toRead)
}

// AvailableWrite returns the number of frames free for writing.
func (b *Buffer) AvailableWrite() uint64 {
	return b.size - (b.writePos.Load() - b.readPos.Load())
}

// AvailableRead returns the number of frames ready for reading.
func (b *Buffer) AvailableRead() uint64 {
	return b.writePos.Load() - b.readPos.Load()
}

// Size returns the total capacity in frames.
func (b *Buffer) Size() uint64 {
	return b.size
}

// ReadCursor returns the current read position. The reader worker uses
// it to record an end-of-file marker, and the realtime callback uses it
// to detect that playback has drained up to that marker.
func (b *Buffer) ReadCursor() uint64 {
	return b.readPos.Load()
}

// Reset discards all buffered frames by resetting both cursors to zero.
// Only safe to call when producer and consumer are both quiescent (e.g.
// during a seek, with the reader worker paused).
func (b *Buffer) Reset() {
	b.readPos.Store(0)
	b.writePos.Store(0)
}

func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

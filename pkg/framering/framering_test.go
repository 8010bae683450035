package framering

import (
	"sync"
	"testing"
)

func TestNewRoundsToPowerOf2(t *testing.T) {
	tests := []struct {
		input    uint64
		expected uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{100, 128},
		{1000, 1024},
		{1024, 1024},
	}

	for _, tt := range tests {
		b := New(tt.input)
		if b.Size() != tt.expected {
			t.Errorf("New(%d): got size %d, want %d", tt.input, b.Size(), tt.expected)
		}
	}
}

func TestPushPop(t *testing.T) {
	b := New(16)

	frames := []Frame{{A: 0.1, B: -0.1}, {A: 0.2, B: -0.2}, {A: 0.3, B: -0.3}}

	written, err := b.Push(frames)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if written != len(frames) {
		t.Fatalf("Push: got %d frames, want %d", written, len(frames))
	}

	if b.AvailableRead() != 3 {
		t.Errorf("AvailableRead: got %d, want 3", b.AvailableRead())
	}
	if b.AvailableWrite() != 13 {
		t.Errorf("AvailableWrite: got %d, want 13", b.AvailableWrite())
	}

	out := make([]Frame, 3)
	n := b.Pop(out)
	if n != 3 {
		t.Fatalf("Pop returned %d frames, want 3", n)
	}
	for i := range frames {
		if out[i] != frames[i] {
			t.Errorf("frame %d: got %+v, want %+v", i, out[i], frames[i])
		}
	}
}

func TestPopPartial(t *testing.T) {
	b := New(16)

	frames := make([]Frame, 5)
	for i := range frames {
		frames[i] = Frame{A: float32(i), B: -float32(i)}
	}
	if _, err := b.Push(frames); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	out := make([]Frame, 3)
	n := b.Pop(out)
	if n != 3 {
		t.Errorf("Pop returned %d, want 3", n)
	}
	for i := 0; i < 3; i++ {
		if out[i].A != float32(i) {
			t.Errorf("frame %d: got A=%v, want %v", i, out[i].A, i)
		}
	}

	if b.AvailableRead() != 2 {
		t.Errorf("AvailableRead: got %d, want 2", b.AvailableRead())
	}

	out = make([]Frame, 10)
	n = b.Pop(out)
	if n != 2 {
		t.Errorf("Pop returned %d, want 2", n)
	}
}

func TestPushInsufficientSpace(t *testing.T) {
	b := New(4)

	frames := make([]Frame, 5)
	written, err := b.Push(frames)
	if written != 4 {
		t.Errorf("expected to write 4 frames, got %d", written)
	}
	if err != nil {
		t.Errorf("expected nil error for partial write, got %v", err)
	}

	_, err = b.Push([]Frame{{A: 1}})
	if err != ErrInsufficientSpace {
		t.Errorf("expected ErrInsufficientSpace when full, got %v", err)
	}
}

func TestPopEmptyBuffer(t *testing.T) {
	b := New(16)
	out := make([]Frame, 1)
	if n := b.Pop(out); n != 0 {
		t.Errorf("expected 0 frames from empty buffer, got %d", n)
	}
}

func TestWrapAround(t *testing.T) {
	b := New(4)

	if _, err := b.Push([]Frame{{A: 1}, {A: 2}, {A: 3}}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	out := make([]Frame, 2)
	b.Pop(out) // drains the first two, leaves {A:3}

	if _, err := b.Push([]Frame{{A: 10}, {A: 11}, {A: 12}}); err != nil {
		t.Fatalf("Push after wrap failed: %v", err)
	}

	if b.AvailableRead() != 4 {
		t.Errorf("AvailableRead: got %d, want 4", b.AvailableRead())
	}

	out = make([]Frame, 4)
	n := b.Pop(out)
	if n != 4 {
		t.Fatalf("Pop returned %d, want 4", n)
	}
	want := []float32{3, 10, 11, 12}
	for i, w := range want {
		if out[i].A != w {
			t.Errorf("frame %d: got A=%v, want %v", i, out[i].A, w)
		}
	}
}

func TestReset(t *testing.T) {
	b := New(16)
	b.Push(make([]Frame, 3))
	b.Reset()

	if b.AvailableRead() != 0 {
		t.Errorf("after reset: AvailableRead got %d, want 0", b.AvailableRead())
	}
	if b.AvailableWrite() != b.Size() {
		t.Errorf("after reset: AvailableWrite got %d, want %d", b.AvailableWrite(), b.Size())
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	b := New(256)

	const numFrames = 10000
	const batchSize = 10

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < numFrames; i += batchSize {
			frames := make([]Frame, batchSize)
			for j := range frames {
				frames[j] = Frame{A: float32(i + j)}
			}
			toWrite := frames
			for len(toWrite) > 0 {
				n, _ := b.Push(toWrite)
				toWrite = toWrite[n:]
			}
		}
	}()

	received := 0
	go func() {
		defer wg.Done()
		out := make([]Frame, batchSize)
		for received < numFrames {
			n := b.Pop(out)
			if n == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				if out[i].A != float32(received) {
					t.Errorf("frame %d: got A=%v, want %v", received, out[i].A, received)
				}
				received++
			}
		}
	}()

	wg.Wait()

	if received != numFrames {
		t.Errorf("received %d frames, want %d", received, numFrames)
	}
}

package meter

import (
	"sync/atomic"
	"testing"
	"time"
)

type countingPublisher struct {
	calls atomic.Int64
}

func (p *countingPublisher) PublishMeters() {
	p.calls.Add(1)
}

func TestLoopPublishesOnInterval(t *testing.T) {
	pub := &countingPublisher{}
	l := New(pub, 2*time.Millisecond)
	l.Start()

	time.Sleep(25 * time.Millisecond)
	l.Stop()

	if pub.calls.Load() == 0 {
		t.Fatal("expected at least one PublishMeters call before Stop")
	}
}

func TestLoopStopsCleanly(t *testing.T) {
	pub := &countingPublisher{}
	l := New(pub, 2*time.Millisecond)
	l.Start()
	time.Sleep(10 * time.Millisecond)
	l.Stop()

	seenAtStop := pub.calls.Load()
	time.Sleep(10 * time.Millisecond)
	if pub.calls.Load() != seenAtStop {
		t.Errorf("calls increased after Stop: before=%d after=%d", seenAtStop, pub.calls.Load())
	}
}

func TestNewDefaultsZeroInterval(t *testing.T) {
	l := New(&countingPublisher{}, 0)
	if l.interval != DefaultInterval {
		t.Errorf("zero interval: got %v, want DefaultInterval (%v)", l.interval, DefaultInterval)
	}
}

package oscbus

import (
	"testing"
	"time"
)

func TestAddRemoveClient(t *testing.T) {
	r := NewRegistry(2, "/mixer", "channel")
	if r.ClientCount() != 0 {
		t.Fatalf("ClientCount: got %d, want 0", r.ClientCount())
	}

	if !r.AddClient("127.0.0.1", 9000) {
		t.Fatal("AddClient: expected success for a fresh subscriber")
	}
	if r.AddClient("127.0.0.1", 9000) {
		t.Error("AddClient: expected false for a duplicate subscriber")
	}
	if r.ClientCount() != 1 {
		t.Fatalf("ClientCount: got %d, want 1", r.ClientCount())
	}

	if !r.RemoveClient("127.0.0.1", 9000) {
		t.Error("RemoveClient: expected success for a registered subscriber")
	}
	if r.RemoveClient("127.0.0.1", 9000) {
		t.Error("RemoveClient: expected false once already removed")
	}
	if r.ClientCount() != 0 {
		t.Fatalf("ClientCount after remove: got %d, want 0", r.ClientCount())
	}
}

func TestAddClientRespectsCapacity(t *testing.T) {
	r := NewRegistry(1, "/mixer", "channel")
	if !r.AddClient("127.0.0.1", 9000) {
		t.Fatal("AddClient: expected first subscriber to succeed")
	}
	if r.AddClient("127.0.0.1", 9001) {
		t.Error("AddClient: expected failure once the registry is at capacity")
	}
}

func TestOnAddClientFiresForNewSubscribersOnly(t *testing.T) {
	r := NewRegistry(2, "/mixer", "channel")
	var fired []string
	r.OnAddClient(func(host string, port int) {
		fired = append(fired, host)
	})

	r.AddClient("127.0.0.1", 9000)
	r.AddClient("127.0.0.1", 9000) // duplicate, must not refire
	r.AddClient("127.0.0.1", 9001)

	if len(fired) != 2 {
		t.Fatalf("OnAddClient: fired %d times, want 2 (got %v)", len(fired), fired)
	}
}

func TestSendIsNoOpWithoutSubscribers(t *testing.T) {
	r := NewRegistry(2, "/mixer", "channel")
	// With no subscribers these must return immediately rather than
	// constructing and broadcasting a message.
	r.SendFloat(0, "level", 0.5)
	r.SendInt(0, "mute", 1)
	r.SendString(0, "name", "drums")
}

func TestSendFloatAndIntToLoopbackClient(t *testing.T) {
	r := NewRegistry(2, "/mixer", "channel")
	if !r.AddClient("127.0.0.1", 9900) {
		t.Fatal("AddClient failed")
	}
	defer r.Close()

	// UDP sends are fire-and-forget; this only exercises that
	// broadcasting doesn't block or panic with nobody listening.
	r.SendFloat(3, "level", 0.75)
	r.SendInt(3, "mute", 1)
	time.Sleep(10 * time.Millisecond)
}

func TestStripPathFormat(t *testing.T) {
	r := NewRegistry(2, "/mixer", "channel")
	got := r.stripPath(7, "level")
	want := "/mixer/channel/7/level"
	if got != want {
		t.Errorf("stripPath: got %q, want %q", got, want)
	}
}

func TestCloseStopsAllClients(t *testing.T) {
	r := NewRegistry(2, "/mixer", "channel")
	r.AddClient("127.0.0.1", 9901)
	r.AddClient("127.0.0.1", 9902)
	r.Close()
	if r.ClientCount() != 0 {
		t.Errorf("ClientCount after Close: got %d, want 0", r.ClientCount())
	}
}

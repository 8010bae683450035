package src

import "testing"

func TestPassthroughWhenRatesMatch(t *testing.T) {
	c, err := New(48000, 48000, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	n, err := c.Write(in)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(in) {
		t.Fatalf("Write: wrote %d bytes, want %d", n, len(in))
	}

	if got := c.Available(); got != len(in) {
		t.Fatalf("Available: got %d, want %d", got, len(in))
	}

	out := make([]byte, len(in))
	read, err := c.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read != len(in) {
		t.Fatalf("Read: got %d bytes, want %d", read, len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("byte %d: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestReadEmptyReturnsZeroNoError(t *testing.T) {
	c, err := New(48000, 48000, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	out := make([]byte, 16)
	n, err := c.Read(out)
	if err != nil {
		t.Fatalf("Read on empty sink: got error %v, want nil", err)
	}
	if n != 0 {
		t.Fatalf("Read on empty sink: got %d bytes, want 0", n)
	}
}

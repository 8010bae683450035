// Package host defines the boundary between this engine and the realtime
// audio server it runs inside. The server itself (port graph, scheduling,
// the hardware/software bridge) is out of scope here; this package
// specifies only the contract a server must offer: register ports,
// deliver fixed-size process blocks, and notify on routing/rate/size
// changes.
package host

// MIDIEvent is a single raw MIDI message delivered during one process
// block, time-stamped by its sample offset within the block.
type MIDIEvent struct {
	Offset uint32
	Data   []byte
}

// Port is an opaque handle to a registered audio or MIDI port.
type Port struct {
	id   int
	name string
}

// Name returns the port's registered name.
func (p Port) Name() string { return p.name }

// ProcessContext exposes the per-block buffers and MIDI queues available
// to a ProcessFunc. Implementations must make every method safe to call
// only from within the process callback invocation.
type ProcessContext interface {
	// Frames returns the number of sample frames in this block.
	Frames() int
	// Output returns the writable audio buffer backing an output port.
	Output(p Port) []float32
	// Input returns the readable audio buffer backing an input port.
	Input(p Port) []float32
	// MIDI returns the MIDI events queued for an input port this block.
	MIDI(p Port) []MIDIEvent
}

// ProcessFunc is invoked once per audio block on the realtime thread. It
// must not allocate, block, or take locks shared with non-realtime code.
type ProcessFunc func(ctx ProcessContext)

// Host is the realtime audio server contract. A concrete binding (a real
// server driver, or an in-memory double for tests) implements it.
type Host interface {
	// RegisterAudioOutput creates a new audio output port.
	RegisterAudioOutput(name string) (Port, error)
	// RegisterAudioInput creates a new audio input port.
	RegisterAudioInput(name string) (Port, error)
	// RegisterMIDIInput creates a new MIDI input port.
	RegisterMIDIInput(name string) (Port, error)
	// Unregister removes a previously registered port.
	Unregister(p Port) error
	// IsConnected reports whether a port currently carries a connection.
	IsConnected(p Port) bool

	// SetProcessCallback installs the realtime callback. Must be called
	// before Activate.
	SetProcessCallback(fn ProcessFunc)
	// SetSampleRateCallback installs a notification fired whenever the
	// server's sample rate changes.
	SetSampleRateCallback(fn func(rate int))
	// SetBufferSizeCallback installs a notification fired whenever the
	// server's block size changes. This is the place to re-cache any
	// port buffer pointers, never inside the process callback itself.
	SetBufferSizeCallback(fn func(size int))
	// SetConnectCallback installs a notification fired whenever a port's
	// connection state changes.
	SetConnectCallback(fn func(p Port, connected bool))

	// Activate starts delivering process callbacks.
	Activate() error
	// Close stops the server connection and releases all ports.
	Close() error

	SampleRate() int
	BufferSize() int
}

// NewPort is exported for Host implementations outside this package to
// construct Port values; callers of the interface never need it.
func NewPort(id int, name string) Port {
	return Port{id: id, name: name}
}

// ID returns the port's implementation-assigned identity, for use by a
// Host implementation indexing its own internal tables.
func (p Port) ID() int { return p.id }

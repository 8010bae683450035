package player

// Config holds the tunables for a Engine, mirroring the shape of
// audioplayer.Config/DefaultConfig in the teacher's blocking-stream
// player.
type Config struct {
	// RingBufferFrames is the capacity of the stereo frame ring buffer
	// shared between the reader worker and the realtime callback.
	RingBufferFrames uint64
	// ReadBlockFrames is how many source frames the reader worker
	// decodes per iteration before pushing to the ring buffer.
	ReadBlockFrames int
	// SRCQuality is stored but not read by the reader worker: the
	// resampler always uses SoXR's high-quality preset when the file's
	// native rate differs from the host rate.
	SRCQuality int
}

// DefaultConfig returns sensible defaults: a one-second ring buffer at a
// typical 48kHz host rate, 4096-frame read blocks.
func DefaultConfig() Config {
	return Config{
		RingBufferFrames: 48000,
		ReadBlockFrames:  4096,
		SRCQuality:       0,
	}
}

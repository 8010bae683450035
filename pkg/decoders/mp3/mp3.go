package mp3

import (
	"fmt"
	"io"
	"os"

	gomp3 "github.com/imcarsen/go-mp3"
)

// Decoder wraps go-mp3's streaming decoder to provide MP3 decoding.
// Implements types.AudioDecoder. The underlying decoder always yields
// 16-bit little-endian stereo frames regardless of the source channel
// count, so channels/bitsPerSample are fixed once a file is open.
type Decoder struct {
	file    *os.File
	decoder *gomp3.Decoder
	rate    int
}

// NewDecoder creates a new MP3 decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// GetFormat returns the audio format (rate, channels, bits per sample).
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, 2, 16
}

// DecodeSamples decodes up to the requested number of samples into audio.
// audio must be at least samples*4 bytes (2 channels, 16 bits).
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	want := samples * 4
	if len(audio) < want {
		want = len(audio) - (len(audio) % 4)
	}

	n, err := io.ReadFull(d.decoder, audio[:want])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n / 4, fmt.Errorf("mp3 decode: %w", err)
	}
	return n / 4, nil
}

// Open opens and initializes an MP3 file for decoding.
func (d *Decoder) Open(fileName string) error {
	f, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	d.file = f
	d.decoder = dec
	d.rate = dec.SampleRate()
	return nil
}

// Close closes the decoder and releases resources.
func (d *Decoder) Close() error {
	d.decoder = nil
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}

// Rate returns the sample rate in Hz.
func (d *Decoder) Rate() int {
	return d.rate
}

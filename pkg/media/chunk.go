// Package media defines the audio buffers that move between the capture,
// network and playback pipelines.
package media

import (
	"fmt"
	"time"
)

// Format describes raw little-endian PCM audio. It is fixed when a stream is
// opened and travels with every chunk produced by that stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Common formats
var (
	// 16-bit PCM at 16kHz mono, the usual speech capture format
	PCM16kMono = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

	// 16-bit PCM at 24kHz mono, the usual synthesized speech format
	PCM24kMono = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
)

// BytesPerFrame returns the size of one sample frame (all channels).
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// Duration returns how long n bytes of audio in this format last.
func (f Format) Duration(n int) time.Duration {
	bpf := f.BytesPerFrame()
	if f.SampleRate == 0 || bpf == 0 {
		return 0
	}
	frames := n / bpf
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// MIMEType returns the mime tag remote services expect for raw PCM.
func (f Format) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate)
}

// Validate reports whether the format can describe PCM audio.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("bits per sample must be a positive multiple of 8, got %d", f.BitsPerSample)
	}
	return nil
}

// Chunk is a buffer of raw audio samples. A chunk is not modified after it is
// created; handing it to a queue transfers it to the queue's consumer.
type Chunk struct {
	Data   []byte
	Format Format
}

// NewChunk creates a chunk. Data is not copied.
func NewChunk(data []byte, format Format) Chunk {
	return Chunk{Data: data, Format: format}
}

// Frames returns the number of sample frames in the chunk.
func (c Chunk) Frames() int {
	bpf := c.Format.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return len(c.Data) / bpf
}

// Duration returns the playback duration of the chunk.
func (c Chunk) Duration() time.Duration {
	return c.Format.Duration(len(c.Data))
}

// IsEmpty returns true if the chunk carries no audio.
func (c Chunk) IsEmpty() bool {
	return len(c.Data) == 0
}

// Clone creates a deep copy of the chunk.
func (c Chunk) Clone() Chunk {
	data := make([]byte, len(c.Data))
	copy(data, c.Data)
	return Chunk{Data: data, Format: c.Format}
}

// String returns a string representation of the chunk
func (c Chunk) String() string {
	return fmt.Sprintf("Chunk{frames=%d, rate=%d, duration=%v}", c.Frames(), c.Format.SampleRate, c.Duration())
}

// Package audio defines the local audio hardware boundary: a Device opens one
// capture stream and one playback stream with blocking read/write semantics.
// Concrete backends live in subpackages and register themselves by name.
package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/plugin"
)

// StreamConfig describes a capture or playback stream.
type StreamConfig struct {
	SampleRate int
	Channels   int
	// FrameSize is the number of sample frames returned by each capture Read.
	// Playback backends use it as their device buffer size.
	FrameSize int
}

// Format returns the 16-bit PCM format produced or consumed by the stream.
func (c StreamConfig) Format() media.Format {
	return media.Format{SampleRate: c.SampleRate, Channels: c.Channels, BitsPerSample: 16}
}

// Validate checks that the configuration is usable.
func (c StreamConfig) Validate() error {
	if err := c.Format().Validate(); err != nil {
		return err
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// Device is a handle on local audio hardware. It claims the hardware for its
// lifetime; Close releases it.
type Device interface {
	// OpenCapture opens the input stream.
	OpenCapture(cfg StreamConfig) (CaptureStream, error)

	// OpenPlayback opens the output stream.
	OpenPlayback(cfg StreamConfig) (PlaybackStream, error)

	// Close releases the device. Streams must be closed first.
	Close() error
}

// CaptureStream reads fixed-size frames from an input device.
type CaptureStream interface {
	// Read blocks until exactly FrameSize sample frames are available.
	// A *DeviceError classified as ErrOverflow means a frame was lost and the
	// stream is still usable; ErrDeviceFault means the stream is dead.
	Read(ctx context.Context) (media.Chunk, error)

	// Close stops the stream. A Read blocked in another goroutine returns a fault.
	Close() error
}

// PlaybackStream writes audio to an output device.
type PlaybackStream interface {
	// Write blocks until the device has accepted the chunk.
	Write(ctx context.Context, chunk media.Chunk) error

	// Close stops the stream. It is safe to call Close multiple times.
	Close() error
}

// Flusher is implemented by playback streams that hold back a partial device
// buffer between writes. Flush pads the held samples with silence and writes
// them.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options are passed to backend factories.
type Options struct {
	// Input selects the capture source (device name or file path, backend specific).
	Input string
	// Output selects the playback sink (device name or file path, backend specific).
	Output string
	Logger *slog.Logger
}

// Factory creates a Device.
type Factory func(opts Options) (Device, error)

var registry = plugin.NewRegistry[Factory]("audio")

// Register adds a device backend. It is typically called from init().
func Register(name, description string, factory Factory) {
	registry.Register(&plugin.Plugin[Factory]{
		Name:        name,
		Description: description,
		Factory:     factory,
		Available:   true,
	})
}

// RegisterUnavailable adds a stub for a backend that was compiled out.
func RegisterUnavailable(name, description string, factory Factory) {
	registry.Register(&plugin.Plugin[Factory]{
		Name:        name,
		Description: description,
		Factory:     factory,
	})
}

// Open creates a device from the named backend.
func Open(name string, opts Options) (Device, error) {
	factory, err := registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return factory(opts)
}

// Backends lists the registered device backends.
func Backends() []*plugin.Plugin[Factory] {
	return registry.List()
}

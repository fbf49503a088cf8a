//go:build portaudio

// Package portaudio is the hardware audio backend. It uses PortAudio blocking
// streams with 16-bit samples.
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/media"
)

func init() {
	audio.Register("portaudio", "System microphone and speaker via PortAudio", func(opts audio.Options) (audio.Device, error) {
		return New(opts)
	})
}

// Device holds an initialized PortAudio library.
type Device struct {
	input  string
	output string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New initializes PortAudio. Input and Output in opts select devices by name;
// empty names use the system defaults.
func New(opts audio.Options) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, audio.NewFaultError("open", fmt.Errorf("initialize portaudio: %w", err))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{input: opts.Input, output: opts.Output, logger: logger}, nil
}

// OpenCapture opens and starts an input stream.
func (d *Device) OpenCapture(cfg audio.StreamConfig) (audio.CaptureStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, audio.NewFaultError("open", err)
	}

	dev, err := d.find(d.input, true)
	if err != nil {
		return nil, audio.NewFaultError("open", err)
	}

	buf := make([]int16, cfg.FrameSize*cfg.Channels)
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameSize

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, audio.NewFaultError("open", fmt.Errorf("open input %q: %w", dev.Name, err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, audio.NewFaultError("open", fmt.Errorf("start input %q: %w", dev.Name, err))
	}

	d.logger.Info("Opened capture device",
		slog.String("device", dev.Name),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("frame_size", cfg.FrameSize))

	return &captureStream{stream: stream, buf: buf, format: cfg.Format()}, nil
}

// OpenPlayback opens and starts an output stream.
func (d *Device) OpenPlayback(cfg audio.StreamConfig) (audio.PlaybackStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, audio.NewFaultError("open", err)
	}

	dev, err := d.find(d.output, false)
	if err != nil {
		return nil, audio.NewFaultError("open", err)
	}

	buf := make([]int16, cfg.FrameSize*cfg.Channels)
	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameSize

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, audio.NewFaultError("open", fmt.Errorf("open output %q: %w", dev.Name, err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, audio.NewFaultError("open", fmt.Errorf("start output %q: %w", dev.Name, err))
	}

	d.logger.Info("Opened playback device",
		slog.String("device", dev.Name),
		slog.Int("sample_rate", cfg.SampleRate))

	ps := &playbackStream{stream: stream, format: cfg.Format(), logger: d.logger}
	ps.blocks = blockWriter{buf: buf, write: ps.writeBlock}
	return ps, nil
}

// Close terminates PortAudio.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return portaudio.Terminate()
}

func (d *Device) find(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name != name {
			continue
		}
		if input && dev.MaxInputChannels > 0 || !input && dev.MaxOutputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("audio device %q not found", name)
}

// Devices returns the names of the available input and output devices.
func Devices() (inputs, outputs []string, err error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, nil, err
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, err
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			inputs = append(inputs, dev.Name)
		}
		if dev.MaxOutputChannels > 0 {
			outputs = append(outputs, dev.Name)
		}
	}
	return inputs, outputs, nil
}

type captureStream struct {
	stream *portaudio.Stream
	buf    []int16
	format media.Format

	mu     sync.Mutex
	closed bool
}

// Read blocks in PortAudio until a full buffer is captured. The context is
// checked before the call; Close aborts a pending read.
func (s *captureStream) Read(ctx context.Context) (media.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return media.Chunk{}, err
	}

	err := s.stream.Read()
	if s.isClosed() {
		return media.Chunk{}, audio.NewFaultError("read", audio.ErrClosed)
	}
	if err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return media.Chunk{}, audio.NewOverflowError("read", err)
		}
		return media.Chunk{}, audio.NewFaultError("read", err)
	}

	data := make([]byte, len(s.buf)*2)
	for i, v := range s.buf {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return media.NewChunk(data, s.format), nil
}

func (s *captureStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *captureStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stream.Abort()
	return s.stream.Close()
}

type playbackStream struct {
	stream *portaudio.Stream
	blocks blockWriter
	format media.Format
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Write hands the chunk to the device a buffer at a time. Samples that do not
// fill a buffer are held for the next Write or Flush.
func (s *playbackStream) Write(ctx context.Context, chunk media.Chunk) error {
	if chunk.Format != s.format {
		return fmt.Errorf("playback expects %d Hz audio, got %d Hz", s.format.SampleRate, chunk.Format.SampleRate)
	}
	return s.blocks.Write(ctx, chunk.Data)
}

// Flush plays held samples padded with silence.
func (s *playbackStream) Flush(ctx context.Context) error {
	return s.blocks.Flush(ctx)
}

func (s *playbackStream) writeBlock() error {
	err := s.stream.Write()
	if s.isClosed() {
		return audio.NewFaultError("write", audio.ErrClosed)
	}
	if err != nil {
		if errors.Is(err, portaudio.OutputUnderflowed) {
			s.logger.Debug("Playback underflow")
			return nil
		}
		return audio.NewFaultError("write", err)
	}
	return nil
}

func (s *playbackStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *playbackStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stream.Abort()
	return s.stream.Close()
}

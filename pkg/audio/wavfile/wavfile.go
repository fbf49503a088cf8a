// Package wavfile is an audio backend that captures from a WAV file and plays
// back into another one. Both directions are paced in real time so the rest of
// the relay behaves as it would against hardware.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/audio/wav"
	"github.com/chriscow/livetranslate-go/pkg/media"
)

func init() {
	audio.Register("wav", "Reads capture audio from --input and records playback to --output (WAV files)", func(opts audio.Options) (audio.Device, error) {
		return New(opts), nil
	})
}

// Device opens WAV-backed streams.
type Device struct {
	input  string
	output string
	logger *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a file-backed device. An empty output path discards playback.
func New(opts audio.Options) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		input:  opts.Input,
		output: opts.Output,
		logger: logger,
		sleep:  sleepContext,
	}
}

// OpenCapture opens the input file. Its format must match cfg; no resampling
// is performed.
func (d *Device) OpenCapture(cfg audio.StreamConfig) (audio.CaptureStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, audio.NewFaultError("open", err)
	}
	if d.input == "" {
		return nil, audio.NewFaultError("open", errors.New("wav backend requires an input file"))
	}

	r, err := wav.Open(d.input)
	if err != nil {
		return nil, audio.NewFaultError("open", err)
	}
	if r.Format() != cfg.Format() {
		r.Close()
		return nil, audio.NewFaultError("open",
			fmt.Errorf("%s is %d Hz / %d ch, capture needs %d Hz / %d ch",
				d.input, r.Format().SampleRate, r.Format().Channels, cfg.SampleRate, cfg.Channels))
	}

	d.logger.Info("Capturing from WAV file",
		slog.String("path", d.input),
		slog.Duration("length", r.Format().Duration(int(r.Header().DataSize))))

	return &captureStream{
		cfg:    cfg,
		reader: r,
		sleep:  d.sleep,
		logger: d.logger,
		closed: make(chan struct{}),
	}, nil
}

// OpenPlayback creates the output file.
func (d *Device) OpenPlayback(cfg audio.StreamConfig) (audio.PlaybackStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, audio.NewFaultError("open", err)
	}

	s := &playbackStream{format: cfg.Format(), sleep: d.sleep, closed: make(chan struct{})}
	if d.output != "" {
		w, err := wav.Create(d.output, cfg.Format())
		if err != nil {
			return nil, audio.NewFaultError("open", err)
		}
		s.writer = w
		d.logger.Info("Recording playback to WAV file", slog.String("path", d.output))
	}
	return s, nil
}

// Close is a no-op; files are owned by their streams.
func (d *Device) Close() error {
	return nil
}

type captureStream struct {
	cfg    audio.StreamConfig
	reader *wav.Reader
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger

	mu        sync.Mutex
	eof       bool
	closed    chan struct{}
	closeOnce sync.Once
}

// Read returns the next frame after waiting its duration. Once the file is
// exhausted it keeps returning silence so the remote side can finish the turn.
func (s *captureStream) Read(ctx context.Context) (media.Chunk, error) {
	select {
	case <-s.closed:
		return media.Chunk{}, audio.NewFaultError("read", audio.ErrClosed)
	default:
	}

	format := s.cfg.Format()
	chunk, err := s.next()
	if err != nil {
		return media.Chunk{}, audio.NewFaultError("read", err)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if err := s.sleep(waitCtx, format.Duration(len(chunk.Data))); err != nil {
		if ctx.Err() != nil {
			return media.Chunk{}, ctx.Err()
		}
		return media.Chunk{}, audio.NewFaultError("read", audio.ErrClosed)
	}
	return chunk, nil
}

func (s *captureStream) next() (media.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	format := s.cfg.Format()
	if !s.eof {
		chunk, err := s.reader.ReadChunk(s.cfg.FrameSize)
		if err == nil {
			return chunk, nil
		}
		if !errors.Is(err, io.EOF) {
			return media.Chunk{}, err
		}
		s.eof = true
		s.logger.Info("Capture file exhausted, sending silence")
	}
	return media.NewChunk(make([]byte, s.cfg.FrameSize*format.BytesPerFrame()), format), nil
}

func (s *captureStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		err = s.reader.Close()
		s.mu.Unlock()
	})
	return err
}

type playbackStream struct {
	format media.Format
	writer *wav.Writer
	sleep  func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// Write appends the chunk to the file and blocks for its playing time.
func (s *playbackStream) Write(ctx context.Context, chunk media.Chunk) error {
	select {
	case <-s.closed:
		return audio.NewFaultError("write", audio.ErrClosed)
	default:
	}

	if chunk.Format != s.format {
		return fmt.Errorf("playback expects %d Hz audio, got %d Hz", s.format.SampleRate, chunk.Format.SampleRate)
	}

	s.mu.Lock()
	if s.writer != nil {
		if err := s.writer.WriteChunk(chunk); err != nil {
			s.mu.Unlock()
			return audio.NewFaultError("write", err)
		}
	}
	s.mu.Unlock()

	return s.sleep(ctx, chunk.Duration())
}

func (s *playbackStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.writer != nil {
			err = s.writer.Close()
		}
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

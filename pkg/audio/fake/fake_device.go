// Package fake provides in-memory audio devices for tests and dry runs.
package fake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/media"
)

func init() {
	audio.Register("fake", "In-memory device that captures silence and discards playback", func(opts audio.Options) (audio.Device, error) {
		return NewDevice(), nil
	})
}

// Step is one scripted capture result: either a frame or an error.
type Step struct {
	Data []byte
	Err  error
}

// Device is a fake audio.Device. The streams it returns are exposed so tests
// can script capture and inspect playback.
type Device struct {
	mu       sync.Mutex
	steps    []Step
	silence  bool
	capture  *CaptureStream
	playback *PlaybackStream
	closed   bool
}

// NewDevice creates a fake device that produces silence forever.
func NewDevice() *Device {
	return &Device{silence: true}
}

// NewScriptedDevice creates a fake device whose capture stream replays steps
// and then blocks until closed.
func NewScriptedDevice(steps ...Step) *Device {
	return &Device{steps: steps}
}

// OpenCapture opens the fake capture stream.
func (d *Device) OpenCapture(cfg audio.StreamConfig) (audio.CaptureStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, audio.NewFaultError("open", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capture = NewCaptureStream(cfg, d.steps...)
	d.capture.silence = d.silence
	return d.capture, nil
}

// OpenPlayback opens the fake playback stream.
func (d *Device) OpenPlayback(cfg audio.StreamConfig) (audio.PlaybackStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playback == nil {
		d.playback = NewPlaybackStream()
	}
	return d.playback, nil
}

// Capture returns the capture stream opened last, or nil.
func (d *Device) Capture() *CaptureStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capture
}

// Playback returns the playback stream. Configure it before the device is
// used by calling Playback before OpenPlayback.
func (d *Device) Playback() *PlaybackStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playback == nil {
		d.playback = NewPlaybackStream()
	}
	return d.playback
}

// Close marks the device released.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// CaptureStream is a scripted audio.CaptureStream.
type CaptureStream struct {
	cfg       audio.StreamConfig
	mu        sync.Mutex
	steps     []Step
	silence   bool
	reads     int
	closed    chan struct{}
	closeOnce sync.Once
}

// NewCaptureStream creates a capture stream that returns steps in order and
// then blocks until the context is done or the stream is closed.
func NewCaptureStream(cfg audio.StreamConfig, steps ...Step) *CaptureStream {
	return &CaptureStream{
		cfg:    cfg,
		steps:  steps,
		closed: make(chan struct{}),
	}
}

// Read returns the next scripted step.
func (s *CaptureStream) Read(ctx context.Context) (media.Chunk, error) {
	select {
	case <-s.closed:
		return media.Chunk{}, audio.NewFaultError("read", audio.ErrClosed)
	default:
	}

	s.mu.Lock()
	if len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]
		s.reads++
		s.mu.Unlock()
		if step.Err != nil {
			return media.Chunk{}, step.Err
		}
		return media.NewChunk(step.Data, s.cfg.Format()), nil
	}
	silence := s.silence
	s.mu.Unlock()

	if silence {
		frame := s.cfg.Format().BytesPerFrame() * s.cfg.FrameSize
		timer := time.NewTimer(s.cfg.Format().Duration(frame))
		defer timer.Stop()
		select {
		case <-timer.C:
			s.mu.Lock()
			s.reads++
			s.mu.Unlock()
			return media.NewChunk(make([]byte, frame), s.cfg.Format()), nil
		case <-ctx.Done():
			return media.Chunk{}, ctx.Err()
		case <-s.closed:
			return media.Chunk{}, audio.NewFaultError("read", audio.ErrClosed)
		}
	}

	select {
	case <-ctx.Done():
		return media.Chunk{}, ctx.Err()
	case <-s.closed:
		return media.Chunk{}, audio.NewFaultError("read", audio.ErrClosed)
	}
}

// Reads returns how many steps have been consumed.
func (s *CaptureStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close unblocks pending reads.
func (s *CaptureStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// PlaybackStream records every chunk written to it.
type PlaybackStream struct {
	mu        sync.Mutex
	writes    []media.Chunk
	notify    chan struct{}
	closed    bool
	closeOnce sync.Once

	// Delay is applied to every write, simulating device latency.
	Delay time.Duration
	// Fail, when set, is consulted before each write; a non-nil result is
	// returned instead of recording the chunk.
	Fail func(n int, chunk media.Chunk) error
	// Gate, when set, blocks each write until a value is received.
	Gate chan struct{}

	inFlight      atomic.Int32
	maxConcurrent atomic.Int32
	attempts      int
	flushes       int
}

// NewPlaybackStream creates an empty recording stream.
func NewPlaybackStream() *PlaybackStream {
	return &PlaybackStream{notify: make(chan struct{}, 1)}
}

// Write records the chunk.
func (s *PlaybackStream) Write(ctx context.Context, chunk media.Chunk) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxConcurrent.Load()
		if n <= cur || s.maxConcurrent.CompareAndSwap(cur, n) {
			break
		}
	}

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.NewFaultError("write", audio.ErrClosed)
	}
	attempt := s.attempts
	s.attempts++
	if s.Fail != nil {
		if err := s.Fail(attempt, chunk); err != nil {
			s.signal()
			return err
		}
	}
	s.writes = append(s.writes, chunk)
	s.signal()
	return nil
}

func (s *PlaybackStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Flush counts the call. The fake holds nothing back.
func (s *PlaybackStream) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

// Flushes returns how many times Flush was called.
func (s *PlaybackStream) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Writes returns a copy of the chunks written so far.
func (s *PlaybackStream) Writes() []media.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]media.Chunk, len(s.writes))
	copy(out, s.writes)
	return out
}

// Attempts returns the number of writes attempted, including failed ones.
func (s *PlaybackStream) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// MaxConcurrentWrites returns the highest number of simultaneous writers seen.
func (s *PlaybackStream) MaxConcurrentWrites() int {
	return int(s.maxConcurrent.Load())
}

// WaitForAttempts blocks until at least n writes were attempted or the timeout expires.
func (s *PlaybackStream) WaitForAttempts(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if s.Attempts() >= n {
			return true
		}
		select {
		case <-s.notify:
		case <-deadline:
			return s.Attempts() >= n
		}
	}
}

// Close marks the stream closed; later writes fail with a fault.
func (s *PlaybackStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return nil
}

// Closed reports whether Close was called.
func (s *PlaybackStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

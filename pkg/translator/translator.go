// Package translator runs one live translation session: it relays captured
// microphone audio to a streaming translation service and plays the
// translated audio it returns, discarding queued audio when the speaker
// interrupts.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/capture"
	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/metrics"
	"github.com/chriscow/livetranslate-go/pkg/playback"
	"github.com/chriscow/livetranslate-go/pkg/queue"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

var (
	// ErrSessionExpired is returned internally when a go-away deadline passes.
	// Run treats it as a graceful end.
	ErrSessionExpired = errors.New("session expired")

	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("orchestrator already started")
)

// Default stream parameters: 16 kHz mono capture in 512-frame chunks and
// 24 kHz mono playback.
var (
	DefaultCapture  = audio.StreamConfig{SampleRate: 16000, Channels: 1, FrameSize: 512}
	DefaultPlayback = audio.StreamConfig{SampleRate: 24000, Channels: 1, FrameSize: 1024}
)

// State is the lifecycle state of an Orchestrator.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds configuration for creating an Orchestrator.
type Config struct {
	// Device provides the capture and playback streams. The orchestrator
	// owns it and closes it when Run returns.
	Device    audio.Device
	Connector session.Connector

	// Session is passed to Connect. Zero input and output formats are
	// filled in from the stream configurations.
	Session session.Config

	Capture  audio.StreamConfig
	Playback audio.StreamConfig

	// QueueCapacity bounds the outbound queue. Zero means unbounded.
	QueueCapacity int

	Observer Observer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Orchestrator supervises the capture, send and receive pipelines for the
// lifetime of one session.
type Orchestrator struct {
	cfg      Config
	observer Observer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	state atomic.Int32

	handleMu sync.Mutex
	handle   string
}

// New creates an Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("audio device is required")
	}
	if cfg.Connector == nil {
		return nil, fmt.Errorf("session connector is required")
	}
	if cfg.Capture == (audio.StreamConfig{}) {
		cfg.Capture = DefaultCapture
	}
	if cfg.Playback == (audio.StreamConfig{}) {
		cfg.Playback = DefaultPlayback
	}
	if err := cfg.Capture.Validate(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if err := cfg.Playback.Validate(); err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	if cfg.QueueCapacity < 0 {
		return nil, fmt.Errorf("queue capacity must not be negative, got %d", cfg.QueueCapacity)
	}

	if cfg.Session.InputFormat == (media.Format{}) {
		cfg.Session.InputFormat = cfg.Capture.Format()
	}
	if cfg.Session.OutputFormat == (media.Format{}) {
		cfg.Session.OutputFormat = cfg.Playback.Format()
	}
	if cfg.Session.InputFormat != cfg.Capture.Format() {
		return nil, fmt.Errorf("session input format %+v does not match capture %+v", cfg.Session.InputFormat, cfg.Capture.Format())
	}
	if cfg.Session.OutputFormat != cfg.Playback.Format() {
		return nil, fmt.Errorf("session output format %+v does not match playback %+v", cfg.Session.OutputFormat, cfg.Playback.Format())
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NewLogObserver(logger)
	}

	return &Orchestrator{
		cfg:      cfg,
		observer: observer,
		logger:   logger,
		metrics:  cfg.Metrics,
		handle:   cfg.Session.ResumeHandle,
	}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// ResumptionHandle returns the last resumable handle announced by the
// service, or the handle the session was configured with.
func (o *Orchestrator) ResumptionHandle() string {
	o.handleMu.Lock()
	defer o.handleMu.Unlock()
	return o.handle
}

func (o *Orchestrator) setHandle(handle string) {
	o.handleMu.Lock()
	o.handle = handle
	o.handleMu.Unlock()
}

// Run opens the audio streams, connects the session and relays audio until
// ctx is cancelled, the service ends the session, or a fatal error occurs.
// Graceful ends return nil. Run may only be called once.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyStarted
	}

	start := time.Now()
	o.metrics.SessionStarted()
	defer func() {
		if cerr := o.cfg.Device.Close(); cerr != nil {
			o.logger.Warn("Failed to release audio device", slog.String("error", cerr.Error()))
		}
		o.state.Store(int32(StateStopped))
		o.metrics.SessionEnded(time.Since(start).Seconds(), err != nil)
		o.observer.SessionEnded(err)
	}()

	captureStream, err := o.cfg.Device.OpenCapture(o.cfg.Capture)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer captureStream.Close()

	playbackStream, err := o.cfg.Device.OpenPlayback(o.cfg.Playback)
	if err != nil {
		return fmt.Errorf("open playback: %w", err)
	}
	defer playbackStream.Close()

	sess, err := o.cfg.Connector.Connect(ctx, o.cfg.Session)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	o.logger.Info("Translation session started",
		slog.String("model", o.cfg.Session.Model),
		slog.String("input", o.cfg.Session.InputFormat.MIMEType()),
		slog.String("output", o.cfg.Session.OutputFormat.MIMEType()))
	o.state.Store(int32(StateRunning))

	g, gctx := errgroup.WithContext(ctx)

	// Device reads and writes cannot observe ctx, so closing the handles is
	// what unblocks them on teardown.
	var teardown sync.Once
	closeAll := func() {
		teardown.Do(func() {
			captureStream.Close()
			playbackStream.Close()
			sess.Close()
		})
	}
	stop := context.AfterFunc(gctx, closeAll)
	defer stop()

	out := queue.New[media.Chunk](o.cfg.QueueCapacity)
	defer out.Close()

	sched := playback.New(playbackStream, playback.Options{Logger: o.logger, Metrics: o.metrics})
	relay := capture.New(captureStream, out, capture.Options{Logger: o.logger, Metrics: o.metrics})
	d := &dispatcher{
		sched:    sched,
		observer: o.observer,
		logger:   o.logger,
		metrics:  o.metrics,
		onHandle: o.setHandle,
	}

	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		return o.send(gctx, sess, out)
	})
	g.Go(func() error {
		return d.run(gctx, sess)
	})
	g.Go(func() error {
		select {
		case err := <-sched.Faults():
			return fmt.Errorf("playback: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	closeAll()
	sched.Close()

	if overflows := relay.Overflows(); overflows > 0 {
		o.logger.Info("Capture overflows during session", slog.Int("dropped_frames", overflows))
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionExpired):
		o.logger.Info("Session expired after go-away")
		return nil
	case errors.Is(err, errStreamEnded):
		return nil
	}
	return err
}

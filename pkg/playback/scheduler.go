// Package playback serializes translated audio onto the output device and
// supports discarding everything that has not been played yet.
package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/metrics"
)

// Options configures a Scheduler.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Scheduler owns the playback queue. Chunks are written in the order they
// were enqueued by at most one worker goroutine at a time.
type Scheduler struct {
	stream  audio.PlaybackStream
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []media.Chunk
	active bool
	closed bool
	idle   *sync.Cond

	faults    chan error
	faultOnce sync.Once

	// spawn starts a worker; tests replace it to control scheduling.
	spawn func(func())
}

// New creates a Scheduler writing to stream.
func New(stream audio.PlaybackStream, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		stream:  stream,
		logger:  logger,
		metrics: opts.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		faults:  make(chan error, 1),
		spawn:   func(f func()) { go f() },
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Enqueue appends a chunk to the playback queue and starts a worker if none is
// running. It never blocks on the device.
func (s *Scheduler) Enqueue(chunk media.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.queue = append(s.queue, chunk)
	if !s.active {
		s.active = true
		s.spawn(s.work)
	}
}

// Interrupt discards every chunk that has not been handed to the device yet
// and returns how many were dropped. A write already in progress completes.
// Chunks enqueued after Interrupt returns are played normally.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.queue)
	clear(s.queue)
	s.queue = s.queue[:0]
	return n
}

// Pending returns the number of queued chunks not yet written.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Active reports whether a worker is currently draining the queue.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Faults delivers the first fatal device error seen by a worker.
func (s *Scheduler) Faults() <-chan error {
	return s.faults
}

// Close stops playback: queued chunks are discarded, new chunks are ignored,
// and Close waits for the worker to finish its current write.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	clear(s.queue)
	s.queue = s.queue[:0]
	s.cancel()
	for s.active {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// next pops the front chunk or marks the worker inactive when there is none.
func (s *Scheduler) next() (media.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 || s.closed {
		s.active = false
		s.idle.Broadcast()
		return media.Chunk{}, false
	}
	chunk := s.queue[0]
	s.queue[0] = media.Chunk{}
	s.queue = s.queue[1:]
	return chunk, true
}

// work drains the queue. Popping and the active flag share one lock, so a
// chunk discarded by Interrupt can never reach the device.
func (s *Scheduler) work() {
	for {
		chunk, ok := s.next()
		if !ok {
			return
		}
		s.play(chunk)
		if s.ctx.Err() == nil && s.Pending() == 0 {
			s.flush()
		}
	}
}

func (s *Scheduler) play(chunk media.Chunk) {
	if err := s.stream.Write(s.ctx, chunk); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.metrics.PlaybackError()
		if audio.IsFault(err) {
			s.reportFault(err)
			return
		}
		s.logger.Warn("Playback write failed, skipping chunk",
			slog.String("error", err.Error()),
			slog.Int("bytes", len(chunk.Data)))
		return
	}
	s.metrics.Played()
}

// flush pushes out audio the stream holds back once the queue runs dry.
func (s *Scheduler) flush() {
	f, ok := s.stream.(audio.Flusher)
	if !ok {
		return
	}
	if err := f.Flush(s.ctx); err != nil && s.ctx.Err() == nil {
		s.metrics.PlaybackError()
		if audio.IsFault(err) {
			s.reportFault(err)
			return
		}
		s.logger.Warn("Playback flush failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) reportFault(err error) {
	s.faultOnce.Do(func() {
		s.logger.Error("Playback device fault", slog.String("error", err.Error()))
		s.faults <- err
	})
}

// Package capture moves microphone frames onto the outbound queue.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/metrics"
	"github.com/chriscow/livetranslate-go/pkg/queue"
)

// Options configures a Relay.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Relay reads fixed-size frames from a capture stream and pushes them to the
// outbound queue. It is the only writer of that queue.
type Relay struct {
	stream  audio.CaptureStream
	out     *queue.Queue[media.Chunk]
	logger  *slog.Logger
	metrics *metrics.Metrics

	overflows int
}

// New creates a capture relay.
func New(stream audio.CaptureStream, out *queue.Queue[media.Chunk], opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		stream:  stream,
		out:     out,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Run captures until ctx is cancelled or the device fails. Overflowed frames
// are dropped and capture continues. Cancellation returns nil.
func (r *Relay) Run(ctx context.Context) error {
	for {
		chunk, err := r.stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if audio.IsOverflow(err) {
				r.overflows++
				r.metrics.Overflow()
				r.logger.Debug("Capture overflow, frame dropped", slog.Int("overflows", r.overflows))
				continue
			}
			return fmt.Errorf("capture read: %w", err)
		}
		if chunk.IsEmpty() {
			continue
		}

		if err := r.out.Push(ctx, chunk); err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return fmt.Errorf("capture enqueue: %w", err)
		}
		r.metrics.Captured()
	}
}

// Overflows returns how many frames were dropped. Only meaningful after Run returns.
func (r *Relay) Overflows() int {
	return r.overflows
}

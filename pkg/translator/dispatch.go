package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/metrics"
	"github.com/chriscow/livetranslate-go/pkg/playback"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

// errStreamEnded stops the pipeline group when the service closes the
// receive stream normally.
var errStreamEnded = errors.New("receive stream ended")

// dispatcher interprets session events: audio goes to the playback
// scheduler, transcripts to the turn accumulator, lifecycle notices to the
// observer.
type dispatcher struct {
	sched    *playback.Scheduler
	observer Observer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onHandle func(string)

	turn TurnAccumulator

	expire   context.CancelCauseFunc
	deadline *time.Timer
}

// run consumes the receive stream until it ends, fails, ctx is cancelled or
// an announced go-away deadline passes.
func (d *dispatcher) run(ctx context.Context, sess session.Session) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	d.expire = cancel
	defer func() {
		if d.deadline != nil {
			d.deadline.Stop()
		}
	}()

	for ev, err := range sess.Receive(ctx) {
		if err != nil {
			if errors.Is(context.Cause(ctx), ErrSessionExpired) {
				return ErrSessionExpired
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		d.handle(ev)
	}

	switch {
	case errors.Is(context.Cause(ctx), ErrSessionExpired):
		return ErrSessionExpired
	case ctx.Err() != nil:
		return nil
	}
	d.logger.Info("Session closed by the service")
	return errStreamEnded
}

func (d *dispatcher) handle(ev session.Event) {
	switch ev.Type {
	case session.EventAudio:
		if ev.Audio.IsEmpty() {
			return
		}
		d.metrics.Received()
		d.sched.Enqueue(ev.Audio)

	case session.EventInterrupted:
		// The turn may still be open, so transcripts are kept.
		n := d.sched.Interrupt()
		d.metrics.Discarded(n)
		d.observer.Interrupted(n)

	case session.EventInputTranscript:
		d.turn.AddInput(ev.Text)

	case session.EventOutputTranscript:
		d.turn.AddOutput(ev.Text)

	case session.EventTurnComplete:
		turn := d.turn.Complete()
		d.metrics.TurnCompleted()
		if !turn.IsEmpty() {
			d.observer.TurnCompleted(turn)
		}

	case session.EventResumptionUpdate:
		if !ev.Resumable || ev.Handle == "" {
			return
		}
		if d.onHandle != nil {
			d.onHandle(ev.Handle)
		}
		d.observer.ResumptionUpdated(ev.Handle)

	case session.EventGoAway:
		d.observer.GoingAway(ev.TimeLeft)
		d.armDeadline(ev.TimeLeft)

	default:
		d.logger.Debug("Ignoring session event", slog.String("type", ev.Type.String()))
	}
}

// armDeadline ends the receive loop once timeLeft has passed. A later
// go-away replaces the earlier deadline.
func (d *dispatcher) armDeadline(timeLeft time.Duration) {
	if d.deadline != nil {
		d.deadline.Stop()
	}
	expire := d.expire
	if expire == nil {
		return
	}
	d.deadline = time.AfterFunc(timeLeft, func() { expire(ErrSessionExpired) })
}

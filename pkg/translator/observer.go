package translator

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Observer receives session-level notifications from the dispatch loop.
// Calls are made from a single goroutine and must not block for long.
type Observer interface {
	// TurnCompleted is called once per turn that produced any transcript.
	TurnCompleted(turn Turn)

	// Interrupted is called when the remote side reports the user spoke over
	// playback. discarded is the number of queued chunks dropped.
	Interrupted(discarded int)

	// ResumptionUpdated is called when a new resumable handle is recorded.
	ResumptionUpdated(handle string)

	// GoingAway is called when the service announces the session will end.
	GoingAway(timeLeft time.Duration)

	// SessionEnded is called once when Run returns. err is nil for a
	// graceful end.
	SessionEnded(err error)
}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) TurnCompleted(turn Turn) {
	for _, obs := range o {
		obs.TurnCompleted(turn)
	}
}

func (o Observers) Interrupted(discarded int) {
	for _, obs := range o {
		obs.Interrupted(discarded)
	}
}

func (o Observers) ResumptionUpdated(handle string) {
	for _, obs := range o {
		obs.ResumptionUpdated(handle)
	}
}

func (o Observers) GoingAway(timeLeft time.Duration) {
	for _, obs := range o {
		obs.GoingAway(timeLeft)
	}
}

func (o Observers) SessionEnded(err error) {
	for _, obs := range o {
		obs.SessionEnded(err)
	}
}

// LogObserver writes transcripts and lifecycle notices to a logger.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver creates a LogObserver. A nil logger uses slog.Default.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (l *LogObserver) TurnCompleted(turn Turn) {
	if turn.Input != "" {
		l.Logger.Info("Input transcript", slog.String("text", turn.Input))
	}
	if turn.Output != "" {
		l.Logger.Info("Output transcript", slog.String("text", turn.Output))
	}
}

func (l *LogObserver) Interrupted(discarded int) {
	l.Logger.Info("Playback interrupted", slog.Int("discarded", discarded))
}

func (l *LogObserver) ResumptionUpdated(handle string) {
	l.Logger.Debug("Session resumption handle updated", slog.String("handle", handle))
}

func (l *LogObserver) GoingAway(timeLeft time.Duration) {
	l.Logger.Warn("Session is going away", slog.Duration("time_left", timeLeft))
}

func (l *LogObserver) SessionEnded(err error) {
	if err != nil {
		l.Logger.Error("Session ended", slog.String("error", err.Error()))
		return
	}
	l.Logger.Info("Session ended")
}

// TranscriptWriter appends completed turns to w as timestamped plain text.
type TranscriptWriter struct {
	w   io.Writer
	now func() time.Time
}

// NewTranscriptWriter creates a TranscriptWriter writing to w.
func NewTranscriptWriter(w io.Writer) *TranscriptWriter {
	return &TranscriptWriter{w: w, now: time.Now}
}

func (t *TranscriptWriter) TurnCompleted(turn Turn) {
	stamp := t.now().Format(time.TimeOnly)
	if turn.Input != "" {
		fmt.Fprintf(t.w, "%s  in: %s\n", stamp, turn.Input)
	}
	if turn.Output != "" {
		fmt.Fprintf(t.w, "%s out: %s\n", stamp, turn.Output)
	}
}

func (t *TranscriptWriter) Interrupted(int) {
	fmt.Fprintf(t.w, "%s  -- interrupted\n", t.now().Format(time.TimeOnly))
}

func (t *TranscriptWriter) ResumptionUpdated(string) {}

func (t *TranscriptWriter) GoingAway(time.Duration) {}

func (t *TranscriptWriter) SessionEnded(err error) {
	if err != nil {
		fmt.Fprintf(t.w, "%s  -- session failed: %v\n", t.now().Format(time.TimeOnly), err)
	}
}

// Package worker runs translation sessions in the background and exposes an
// idempotent start/stop control surface over them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/job"
)

// Runner is one translation session. *translator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context) error
	ResumptionHandle() string
}

// Factory builds a fresh Runner for every Start.
type Factory func() (Runner, error)

// Config configures a Worker.
type Config struct {
	// Name labels jobs in logs, usually backend and model.
	Name    string
	Factory Factory
	// MaxDuration ends a session after this long. Zero means no limit.
	MaxDuration time.Duration
}

// Status is a snapshot of the worker state.
type Status struct {
	Running   bool
	JobID     string
	Uptime    time.Duration
	LastError error
	// StopReason says why the last session ended.
	StopReason       string
	ResumptionHandle string
}

// Worker starts and stops translation sessions. At most one session runs at
// a time.
type Worker struct {
	name        string
	factory     Factory
	maxDuration time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	job     *job.Job
	runner  Runner
	done    chan struct{}
	lastErr error
	reason  string
	handle  string
}

// New creates a Worker.
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if config.Factory == nil {
		return nil, errors.New("session factory is required")
	}
	if config.Name == "" {
		config.Name = "translation"
	}
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	close(done)
	return &Worker{
		name:        config.Name,
		factory:     config.Factory,
		maxDuration: config.MaxDuration,
		logger:      logger,
		done:        done,
	}, nil
}

// Start begins a session on a background goroutine. It is a no-op while a
// session is running. The session ends when ctx is done, Stop is called, the
// maximum duration passes, or the session itself ends.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.job != nil {
		w.logger.Debug("Session already running", slog.String("job_id", w.job.ID))
		return nil
	}

	runner, err := w.factory()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	j, err := job.New(ctx, job.Config{
		Name:    w.name,
		Timeout: w.maxDuration,
		Logger:  w.logger,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	j.Context.OnShutdown(func(reason string) {
		j.Logger().Info("Stopping translation session", slog.String("reason", reason))
	})

	done := make(chan struct{})
	w.job = j
	w.runner = runner
	w.done = done
	w.lastErr = nil

	go w.run(j, runner, done)
	return nil
}

func (w *Worker) run(j *job.Job, runner Runner, done chan struct{}) {
	defer close(done)

	err := runner.Run(j.Context.Ctx)

	reason := "session ended"
	switch {
	case errors.Is(j.Context.Err(), context.DeadlineExceeded):
		reason = "max duration reached"
		j.Logger().Info("Maximum session duration reached", slog.Duration("max_duration", w.maxDuration))
	case err != nil:
		reason = "session failed"
	}
	if err != nil {
		j.Logger().Error("Translation session failed", slog.String("error", err.Error()))
	}

	// A Stop that got here first keeps its reason.
	j.Shutdown(reason)
	if info, ok := j.Context.Info(); ok {
		reason = info.Reason
	}

	w.mu.Lock()
	w.lastErr = err
	w.reason = reason
	w.handle = runner.ResumptionHandle()
	w.job = nil
	w.runner = nil
	w.mu.Unlock()

	j.Logger().Info("Translation session finished",
		slog.String("reason", reason),
		slog.Duration("uptime", j.Uptime()))
}

// Stop ends the running session and waits for it to finish. It returns the
// session's error, if any. Stop is a no-op when nothing is running.
func (w *Worker) Stop() error {
	w.mu.Lock()
	j, done := w.job, w.done
	w.mu.Unlock()

	if j == nil {
		return nil
	}

	j.Shutdown("stop requested")
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Running reports whether a session is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.job != nil
}

// Done returns a channel closed when the current session ends. When nothing
// is running the channel is already closed.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// LastError returns the error the most recent session ended with.
func (w *Worker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// ResumptionHandle returns the latest handle of the running session, or of
// the last one when nothing is running.
func (w *Worker) ResumptionHandle() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.runner != nil {
		return w.runner.ResumptionHandle()
	}
	return w.handle
}

// Status returns a snapshot of the worker state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		Running:          w.job != nil,
		LastError:        w.lastErr,
		StopReason:       w.reason,
		ResumptionHandle: w.handle,
	}
	if w.job != nil {
		s.JobID = w.job.ID
		s.Uptime = w.job.Uptime()
		s.ResumptionHandle = w.runner.ResumptionHandle()
	}
	return s
}

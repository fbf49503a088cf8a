package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

func newJobContext(parent context.Context, timeout time.Duration, logger *slog.Logger) *JobContext {
	if logger == nil {
		logger = slog.Default()
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	return &JobContext{
		Ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Shutdown initiates graceful shutdown of the job.
// This method is idempotent - calling it multiple times is safe.
// All registered shutdown hooks will be called exactly once.
func (jc *JobContext) Shutdown(reason string) {
	jc.mu.Lock()
	defer jc.mu.Unlock()

	if jc.info != nil {
		return
	}
	jc.info = &ShutdownInfo{Reason: reason, Timestamp: time.Now()}

	jc.logger.Info("Job shutdown initiated", slog.String("reason", reason))

	var wg sync.WaitGroup
	for _, hook := range jc.shutdownHooks {
		wg.Add(1)
		go func(h func(string)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					jc.logger.Error("Shutdown hook panicked", slog.Any("panic", r))
				}
			}()
			h(reason)
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		jc.logger.Debug("All shutdown hooks completed")
	case <-time.After(ShutdownHookTimeout):
		jc.logger.Warn("Shutdown hooks timed out", slog.Duration("timeout", ShutdownHookTimeout))
	}

	jc.cancel()
}

// OnShutdown registers a callback to be executed when Shutdown is called.
// Callbacks are executed concurrently and should handle their own errors.
// If the job has already been shut down, the callback is executed immediately.
func (jc *JobContext) OnShutdown(callback func(reason string)) {
	jc.mu.Lock()
	defer jc.mu.Unlock()

	if jc.info != nil {
		reason := jc.info.Reason
		go func() {
			defer func() {
				if r := recover(); r != nil {
					jc.logger.Error("Shutdown callback panicked", slog.Any("panic", r))
				}
			}()
			callback(reason)
		}()
		return
	}

	jc.shutdownHooks = append(jc.shutdownHooks, callback)
}

// Info returns why the job was shut down. The boolean is false while the
// job has not been shut down explicitly; a job that timed out has no info.
func (jc *JobContext) Info() (ShutdownInfo, bool) {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	if jc.info == nil {
		return ShutdownInfo{}, false
	}
	return *jc.info, true
}

// IsShutdown returns true if the job context is done.
func (jc *JobContext) IsShutdown() bool {
	return jc.Ctx.Err() != nil
}

// Done returns a channel that is closed when the job context is cancelled.
func (jc *JobContext) Done() <-chan struct{} {
	return jc.Ctx.Done()
}

// Err returns the error associated with the context cancellation.
func (jc *JobContext) Err() error {
	return jc.Ctx.Err()
}

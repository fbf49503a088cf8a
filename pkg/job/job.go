// Package job tracks the lifetime of a single translation session: its id,
// an optional maximum duration, and hooks that run when it is shut down.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// New creates a new Job with the given configuration.
// The job's context ends on Shutdown, when parentCtx is done, or after the
// configured timeout.
func New(parentCtx context.Context, cfg Config) (*Job, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("job timeout must not be negative, got %v", cfg.Timeout)
	}

	jobID := cfg.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job_id", jobID))

	job := &Job{
		ID:        jobID,
		Name:      cfg.Name,
		StartedAt: time.Now(),
		Context:   newJobContext(parentCtx, cfg.Timeout, logger),
		logger:    logger,
	}

	logger.Info("Created new job",
		slog.String("name", cfg.Name),
		slog.Duration("timeout", cfg.Timeout))

	return job, nil
}

// Logger returns a logger that tags records with the job id.
func (j *Job) Logger() *slog.Logger {
	return j.logger
}

// Shutdown gracefully shuts down the job with the given reason.
func (j *Job) Shutdown(reason string) {
	j.Context.Shutdown(reason)
}

// Uptime returns how long the job has existed.
func (j *Job) Uptime() time.Duration {
	return time.Since(j.StartedAt)
}

// String returns a string representation of the job for logging.
func (j *Job) String() string {
	status := "active"
	if j.Context.IsShutdown() {
		status = "shutdown"
	}
	return fmt.Sprintf("Job{ID: %s, Name: %s, Status: %s}", j.ID, j.Name, status)
}

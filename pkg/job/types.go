package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one translation session run. It carries the session's identity and
// manages its lifetime.
type Job struct {
	// ID is the unique identifier for this job
	ID string

	// Name describes what the job runs, usually backend and model
	Name string

	// StartedAt is when the job was created
	StartedAt time.Time

	// Context provides lifecycle management and shutdown coordination
	Context *JobContext

	logger *slog.Logger
}

// JobContext manages the lifecycle and cleanup of a job.
type JobContext struct {
	// Ctx is the context that gets cancelled when the job ends
	Ctx context.Context

	cancel        context.CancelFunc
	logger        *slog.Logger
	mu            sync.Mutex
	shutdownHooks []func(string)
	info          *ShutdownInfo
}

// ShutdownInfo contains information about why a job shutdown occurred.
type ShutdownInfo struct {
	// Reason describes why the shutdown was initiated
	Reason string

	// Timestamp when the shutdown was initiated
	Timestamp time.Time
}

// Config contains configuration options for creating a new Job.
type Config struct {
	// ID for the job (if empty, one will be generated)
	ID string

	// Name describes the job in logs
	Name string

	// Timeout caps the job's lifetime. Zero means no limit.
	Timeout time.Duration

	Logger *slog.Logger
}

// ShutdownHookTimeout bounds how long Shutdown waits for hooks.
const ShutdownHookTimeout = 5 * time.Second

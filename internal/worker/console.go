package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Console command names
const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandStatus = "status"
	CommandQuit   = "quit"
	CommandHelp   = "help"
)

// Console drives a Worker from line-oriented text commands.
type Console struct {
	worker *Worker
	out    io.Writer
	logger *slog.Logger
}

// NewConsole creates a Console writing replies to out.
func NewConsole(w *Worker, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{worker: w, out: out, logger: logger}
}

// Run reads commands from in until quit, end of input, or ctx is done. A
// running session is stopped before Run returns.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	defer c.stop()

	c.printf("Commands: start, stop, status, quit\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read commands: %w", err)
			}
			return nil
		case line := <-lines:
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle executes one command line and reports whether the console should exit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))
	c.logger.Debug("Processing command", slog.String("command", cmd))

	switch cmd {
	case "":
	case CommandStart:
		if c.worker.Running() {
			c.printf("already running\n")
			return false
		}
		if err := c.worker.Start(ctx); err != nil {
			c.printf("start failed: %v\n", err)
			return false
		}
		c.printf("started\n")

	case CommandStop:
		if !c.worker.Running() {
			c.printf("not running\n")
			return false
		}
		if err := c.worker.Stop(); err != nil {
			c.printf("stopped with error: %v\n", err)
			return false
		}
		c.printf("stopped\n")

	case CommandStatus:
		c.printStatus()

	case CommandQuit, "exit":
		return true

	case CommandHelp:
		c.printf("Commands: start, stop, status, quit\n")

	default:
		c.logger.Warn("Unknown command", slog.String("command", cmd))
		c.printf("unknown command %q\n", cmd)
	}
	return false
}

func (c *Console) printStatus() {
	s := c.worker.Status()
	if s.Running {
		c.printf("running job %s for %s\n", s.JobID, s.Uptime.Round(time.Second))
	} else if s.LastError != nil {
		c.printf("stopped, last session failed: %v\n", s.LastError)
	} else if s.StopReason != "" {
		c.printf("stopped (%s)\n", s.StopReason)
	} else {
		c.printf("stopped\n")
	}
	if s.ResumptionHandle != "" {
		c.printf("resumption handle: %s\n", s.ResumptionHandle)
	}
}

func (c *Console) stop() {
	if err := c.worker.Stop(); err != nil {
		c.logger.Error("Session ended with error", slog.String("error", err.Error()))
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Package session defines the boundary to a remote bidirectional streaming
// translation service. A Session accepts raw PCM input and produces a single
// ordered stream of events: synthesized audio, transcripts, turn boundaries,
// interruptions and lifecycle notices.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/plugin"
)

// EventType identifies the kind of a server event.
type EventType int

const (
	EventUnknown EventType = iota
	EventAudio
	EventInterrupted
	EventTurnComplete
	EventInputTranscript
	EventOutputTranscript
	EventResumptionUpdate
	EventGoAway
)

func (t EventType) String() string {
	switch t {
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turn_complete"
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventResumptionUpdate:
		return "resumption_update"
	case EventGoAway:
		return "go_away"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Event is one item of the receive stream. Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	// Audio carries synthesized speech for EventAudio.
	Audio media.Chunk

	// Text carries a transcript fragment for the transcript events.
	Text string

	// Handle and Resumable are set by EventResumptionUpdate.
	Handle    string
	Resumable bool

	// TimeLeft is the remaining session time announced by EventGoAway.
	TimeLeft time.Duration
}

// Config describes the translation session to open.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string

	// InputFormat is the format of audio passed to SendAudio.
	InputFormat media.Format
	// OutputFormat is the format the service synthesizes.
	OutputFormat media.Format

	InputTranscription  bool
	OutputTranscription bool

	// ResumeHandle continues a previous session when set.
	ResumeHandle string
}

// Validate checks that the configuration can open a session.
func (c Config) Validate() error {
	if c.Model == "" {
		return errors.New("session model is required")
	}
	if err := c.InputFormat.Validate(); err != nil {
		return fmt.Errorf("input format: %w", err)
	}
	if err := c.OutputFormat.Validate(); err != nil {
		return fmt.Errorf("output format: %w", err)
	}
	return nil
}

// Session is an open translation session.
//
// SendAudio may be called concurrently with ranging over Receive, but each
// must only be used from a single goroutine. Close unblocks both.
type Session interface {
	// SendAudio forwards one chunk of captured audio.
	SendAudio(ctx context.Context, chunk media.Chunk) error

	// Receive yields server events in arrival order. The sequence ends
	// without an error when the service closes the stream normally.
	Receive(ctx context.Context) iter.Seq2[Event, error]

	// Close tears the session down. It is safe to call more than once.
	Close() error
}

// Connector opens sessions.
type Connector interface {
	Connect(ctx context.Context, cfg Config) (Session, error)
}

// Options are passed to backend factories.
type Options struct {
	APIKey   string
	Endpoint string // overrides the service URL; empty uses the backend default
	Logger   *slog.Logger

	// Params holds backend specific settings such as model names.
	Params map[string]string
}

// Param returns a backend parameter or def when it is unset.
func (o Options) Param(key, def string) string {
	if v, ok := o.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// Factory creates a Connector for a backend.
type Factory func(opts Options) (Connector, error)

var registry = plugin.NewRegistry[Factory]("session")

// Register adds a session backend. It is typically called from init().
func Register(name, description string, factory Factory) {
	registry.Register(&plugin.Plugin[Factory]{
		Name:        name,
		Description: description,
		Factory:     factory,
		Available:   true,
	})
}

// Lookup creates a Connector from the named backend.
func Lookup(name string, opts Options) (Connector, error) {
	factory, err := registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return factory(opts)
}

// Backends lists the registered session backends.
func Backends() []*plugin.Plugin[Factory] {
	return registry.List()
}

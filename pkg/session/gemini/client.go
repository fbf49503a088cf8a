// Package gemini implements the translation session over the Gemini Live
// BidiGenerateContent websocket API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

// DefaultEndpoint is the Gemini Live websocket endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const (
	handshakeTimeout = 10 * time.Second
	setupTimeout     = 15 * time.Second
	closeTimeout     = time.Second
)

func init() {
	session.Register("gemini", "Gemini Live native audio session over websocket", func(opts session.Options) (session.Connector, error) {
		return New(opts)
	})
}

// Connector dials Gemini Live sessions.
type Connector struct {
	endpoint string
	apiKey   string
	logger   *slog.Logger
	dialer   *websocket.Dialer
}

// New creates a connector. An API key is required.
func New(opts session.Options) (*Connector, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key is required (set GEMINI_API_KEY)")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	return &Connector{
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		logger:   logger.With(slog.String("backend", "gemini")),
		dialer:   &dialer,
	}, nil
}

// Connect dials the service, sends the setup message and waits for
// setupComplete.
func (c *Connector) Connect(ctx context.Context, cfg session.Config) (session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	c.logger.Debug("Connecting to Gemini Live", slog.String("endpoint", c.endpoint), slog.String("model", cfg.Model))

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, session.NewTransportError("connect", err)
	}

	s := &Session{
		conn:   conn,
		format: cfg.OutputFormat,
		logger: c.logger,
		done:   make(chan struct{}),
	}
	if err := s.setup(ctx, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	c.logger.Info("Gemini Live session established",
		slog.String("model", cfg.Model),
		slog.String("voice", cfg.Voice),
		slog.Bool("resumed", cfg.ResumeHandle != ""))
	return s, nil
}

// Session is an open Gemini Live websocket.
type Session struct {
	conn   *websocket.Conn
	format media.Format
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (s *Session) setup(ctx context.Context, cfg session.Config) error {
	if err := s.writeJSON(newSetup(cfg)); err != nil {
		return session.NewTransportError("setup", err)
	}

	deadline := time.Now().Add(setupTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		msg, err := s.read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return session.NewTransportError("setup", err)
		}
		if msg != nil && msg.SetupComplete != nil {
			return nil
		}
		s.logger.Debug("Ignoring message before setupComplete")
	}
}

// SendAudio sends one realtime audio blob.
func (s *Session) SendAudio(ctx context.Context, chunk media.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := realtimeInputMessage{RealtimeInput: realtimeInput{
		Audio: &blob{MIMEType: chunk.Format.MIMEType(), Data: chunk.Data},
	}}
	if err := s.writeJSON(msg); err != nil {
		if s.isClosed() {
			return session.NewTransportError("send", session.ErrClosed)
		}
		return session.NewTransportError("send", err)
	}
	return nil
}

// Receive yields server events until the server closes the connection
// normally. Cancelling ctx aborts the pending read; the connection cannot be
// read again afterwards.
func (s *Session) Receive(ctx context.Context) iter.Seq2[session.Event, error] {
	return func(yield func(session.Event, error) bool) {
		stop := context.AfterFunc(ctx, func() { s.conn.SetReadDeadline(time.Now()) })
		defer stop()

		for {
			msg, err := s.read()
			if err != nil {
				switch {
				case ctx.Err() != nil:
					yield(session.Event{}, ctx.Err())
				case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
					s.logger.Debug("Gemini Live closed the stream")
				case s.isClosed():
					yield(session.Event{}, session.NewTransportError("receive", session.ErrClosed))
				default:
					yield(session.Event{}, session.NewTransportError("receive", err))
				}
				return
			}
			if msg == nil {
				continue
			}

			for _, ev := range events(msg, s.format) {
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

// read returns the next decoded message. Undecodable payloads are logged and
// reported as a nil message.
func (s *Session) read() (*serverMessage, error) {
	typ, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
		return nil, nil
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("Ignoring undecodable server message",
			slog.String("error", err.Error()),
			slog.Int("bytes", len(data)))
		return nil, nil
	}
	return &msg, nil
}

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close sends a close frame and closes the connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		err = s.conn.Close()
		s.logger.Debug("Gemini Live session closed")
	})
	return err
}

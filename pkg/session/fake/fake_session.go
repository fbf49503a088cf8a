// Package fake provides a scriptable translation session for tests and dry runs.
package fake

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/queue"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

func init() {
	session.Register("fake", "Accepts audio and never answers; for dry runs", func(opts session.Options) (session.Connector, error) {
		return NewConnector(), nil
	})
}

// Connector hands out scripted sessions in order. Once they are used up it
// creates empty sessions.
type Connector struct {
	mu       sync.Mutex
	sessions []*Session
	configs  []session.Config

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error
}

// NewConnector creates a connector that returns sessions in order.
func NewConnector(sessions ...*Session) *Connector {
	return &Connector{sessions: sessions}
}

// Connect returns the next scripted session.
func (c *Connector) Connect(ctx context.Context, cfg session.Config) (session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.configs = append(c.configs, cfg)
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.sessions) == 0 {
		return NewSession(), nil
	}
	s := c.sessions[0]
	c.sessions = c.sessions[1:]
	return s, nil
}

// Configs returns the configs passed to Connect.
func (c *Connector) Configs() []session.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Config(nil), c.configs...)
}

type item struct {
	ev  session.Event
	err error
}

// Session is a session.Session whose receive stream is fed by the test.
type Session struct {
	items *queue.Queue[item]

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	sent   []media.Chunk
	notify chan struct{}

	// SendErr, when set, is consulted before recording chunk n.
	SendErr func(n int, chunk media.Chunk) error
}

// NewSession creates a session with an empty receive stream. Events queued
// with Emit before the stream is consumed are delivered in order.
func NewSession(events ...session.Event) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		items:  queue.New[item](0),
		ctx:    ctx,
		cancel: cancel,
		notify: make(chan struct{}, 1),
	}
	for _, ev := range events {
		s.Emit(ev)
	}
	return s
}

// Emit appends an event to the receive stream.
func (s *Session) Emit(ev session.Event) {
	_ = s.items.Push(context.Background(), item{ev: ev})
}

// Fail appends an error to the receive stream. Receive yields it and stops.
func (s *Session) Fail(err error) {
	_ = s.items.Push(context.Background(), item{err: err})
}

// End closes the receive stream normally once queued events are consumed.
func (s *Session) End() {
	s.items.Close()
}

// SendAudio records the chunk.
func (s *Session) SendAudio(ctx context.Context, chunk media.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return session.NewTransportError("send", session.ErrClosed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		if err := s.SendErr(len(s.sent), chunk); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, chunk)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive yields queued events until End, Fail, Close, or ctx is done.
func (s *Session) Receive(ctx context.Context) iter.Seq2[session.Event, error] {
	return func(yield func(session.Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()

		for {
			it, err := s.items.Pop(ctx)
			if err != nil {
				switch {
				case errors.Is(err, queue.ErrClosed):
				case s.ctx.Err() != nil:
					yield(session.Event{}, session.NewTransportError("receive", session.ErrClosed))
				default:
					yield(session.Event{}, err)
				}
				return
			}
			if it.err != nil {
				yield(session.Event{}, it.err)
				return
			}
			if !yield(it.ev, nil) {
				return
			}
		}
	}
}

// Close tears the session down and unblocks Receive.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.ctx.Err() != nil
}

// Sent returns a copy of the chunks sent so far.
func (s *Session) Sent() []media.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.Chunk(nil), s.sent...)
}

// WaitForSent blocks until n chunks were sent or the timeout expires.
func (s *Session) WaitForSent(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		got := len(s.sent)
		s.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-s.notify:
		case <-deadline:
			return false
		}
	}
}

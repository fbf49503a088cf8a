package translator

import (
	"log/slog"
	"testing"

	"github.com/matryer/is"

	audiofake "github.com/chriscow/livetranslate-go/pkg/audio/fake"
	"github.com/chriscow/livetranslate-go/pkg/playback"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

func newDispatcher(t *testing.T) (*dispatcher, *recorder) {
	t.Helper()
	sched := playback.New(audiofake.NewPlaybackStream(), playback.Options{})
	t.Cleanup(sched.Close)
	obs := newRecorder()
	return &dispatcher{sched: sched, observer: obs, logger: slog.Default()}, obs
}

func TestDispatcher_TurnComplete(t *testing.T) {
	is := is.New(t)
	d, obs := newDispatcher(t)

	d.handle(session.Event{Type: session.EventInputTranscript, Text: "ho"})
	d.handle(session.Event{Type: session.EventInputTranscript, Text: "la"})
	d.handle(session.Event{Type: session.EventOutputTranscript, Text: "नमस्ते"})
	d.handle(session.Event{Type: session.EventTurnComplete})

	is.Equal(obs.Turns(), []Turn{{Input: "hola", Output: "नमस्ते"}})
	is.Equal(d.turn.Input(), "")
	is.Equal(d.turn.Output(), "")

	d.handle(session.Event{Type: session.EventTurnComplete})
	is.Equal(len(obs.Turns()), 1) // empty turns are not reported
}

func TestDispatcher_InterruptKeepsTranscripts(t *testing.T) {
	is := is.New(t)
	d, obs := newDispatcher(t)

	d.handle(session.Event{Type: session.EventInputTranscript, Text: "ho"})
	d.handle(session.Event{Type: session.EventInterrupted})
	d.handle(session.Event{Type: session.EventInputTranscript, Text: "la"})
	d.handle(session.Event{Type: session.EventTurnComplete})

	is.Equal(obs.Turns(), []Turn{{Input: "hola"}})
	is.Equal(<-obs.interrupted, 0)
}

func TestDispatcher_IgnoresUnknownEvents(t *testing.T) {
	is := is.New(t)
	d, obs := newDispatcher(t)

	d.handle(session.Event{Type: session.EventUnknown})
	d.handle(session.Event{Type: session.EventAudio}) // empty audio is dropped

	is.Equal(d.sched.Pending(), 0)
	is.Equal(len(obs.Turns()), 0)
}

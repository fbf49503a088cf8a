package translator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	audiofake "github.com/chriscow/livetranslate-go/pkg/audio/fake"
	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/session"
	sessionfake "github.com/chriscow/livetranslate-go/pkg/session/fake"
)

// recorder is an Observer that keeps every notification.
type recorder struct {
	mu          sync.Mutex
	turns       []Turn
	interrupts  []int
	handles     []string
	goAways     []time.Duration
	ended       []error
	interrupted chan int
}

func newRecorder() *recorder {
	return &recorder{interrupted: make(chan int, 10)}
}

func (r *recorder) TurnCompleted(turn Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
}

func (r *recorder) Interrupted(discarded int) {
	r.mu.Lock()
	r.interrupts = append(r.interrupts, discarded)
	r.mu.Unlock()
	r.interrupted <- discarded
}

func (r *recorder) ResumptionUpdated(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, handle)
}

func (r *recorder) GoingAway(timeLeft time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goAways = append(r.goAways, timeLeft)
}

func (r *recorder) SessionEnded(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, err)
}

func (r *recorder) Turns() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Turn(nil), r.turns...)
}

func (r *recorder) Ended() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.ended...)
}

type harness struct {
	orch    *Orchestrator
	device  *audiofake.Device
	conn    *sessionfake.Connector
	session *sessionfake.Session
	obs     *recorder
}

func newHarness(t *testing.T, device *audiofake.Device, sess *sessionfake.Session) *harness {
	t.Helper()
	h := &harness{
		device:  device,
		conn:    sessionfake.NewConnector(sess),
		session: sess,
		obs:     newRecorder(),
	}
	orch, err := New(Config{
		Device:    device,
		Connector: h.conn,
		Session:   session.Config{Model: "test-model"},
		Observer:  h.obs,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.orch = orch
	return h
}

// start runs the orchestrator in the background. The returned channel
// yields Run's result.
func (h *harness) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func frame(b byte) []byte {
	data := make([]byte, DefaultCapture.FrameSize*2)
	data[0] = b
	return data
}

func reply(id byte) session.Event {
	return session.Event{Type: session.EventAudio, Audio: media.NewChunk([]byte{id, 0}, media.PCM24kMono)}
}

func TestNew_Validation(t *testing.T) {
	device := audiofake.NewDevice()
	conn := sessionfake.NewConnector()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing device", Config{Connector: conn, Session: session.Config{Model: "m"}}},
		{"missing connector", Config{Device: device, Session: session.Config{Model: "m"}}},
		{"missing model", Config{Device: device, Connector: conn}},
		{"bad capture", Config{Device: device, Connector: conn, Session: session.Config{Model: "m"},
			Capture: audio.StreamConfig{SampleRate: 16000, Channels: 1}}},
		{"negative queue", Config{Device: device, Connector: conn, Session: session.Config{Model: "m"},
			QueueCapacity: -1}},
		{"output mismatch", Config{Device: device, Connector: conn,
			Session: session.Config{Model: "m", OutputFormat: media.PCM16kMono}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	is := is.New(t)
	o, err := New(Config{
		Device:    audiofake.NewDevice(),
		Connector: sessionfake.NewConnector(),
		Session:   session.Config{Model: "m", ResumeHandle: "prev"},
	})
	is.NoErr(err)
	is.Equal(o.cfg.Capture, DefaultCapture)
	is.Equal(o.cfg.Playback, DefaultPlayback)
	is.Equal(o.cfg.Session.InputFormat, media.PCM16kMono)
	is.Equal(o.cfg.Session.OutputFormat, media.PCM24kMono)
	is.Equal(o.ResumptionHandle(), "prev")
	is.Equal(o.State(), StateIdle)
}

func TestRun_TurnTranscripts(t *testing.T) {
	is := is.New(t)
	sess := sessionfake.NewSession(
		session.Event{Type: session.EventInputTranscript, Text: "hola"},
		session.Event{Type: session.EventOutputTranscript, Text: "नमस्ते"},
		session.Event{Type: session.EventTurnComplete},
	)
	sess.End()
	h := newHarness(t, audiofake.NewScriptedDevice(), sess)

	err := wait(t, h.start(context.Background()))
	is.NoErr(err) // a normal end of the stream is graceful

	is.Equal(h.obs.Turns(), []Turn{{Input: "hola", Output: "नमस्ते"}})
	is.Equal(h.obs.Ended(), []error{nil})
	is.True(h.device.Closed())
	is.True(sess.Closed())
	is.Equal(h.orch.State(), StateStopped)

	cfgs := h.conn.Configs()
	is.Equal(len(cfgs), 1)
	is.Equal(cfgs[0].InputFormat, media.PCM16kMono)
	is.Equal(cfgs[0].OutputFormat, media.PCM24kMono)
}

func TestRun_GoAwayEndsGracefully(t *testing.T) {
	is := is.New(t)
	sess := sessionfake.NewSession(
		session.Event{Type: session.EventGoAway, TimeLeft: 50 * time.Millisecond},
	)
	h := newHarness(t, audiofake.NewScriptedDevice(), sess)

	start := time.Now()
	err := wait(t, h.start(context.Background()))
	is.NoErr(err)
	is.True(time.Since(start) >= 50*time.Millisecond)

	h.obs.mu.Lock()
	is.Equal(h.obs.goAways, []time.Duration{50 * time.Millisecond})
	h.obs.mu.Unlock()
	is.Equal(h.obs.Ended(), []error{nil})
	is.True(sess.Closed())
}

func TestRun_SendsInCaptureOrder(t *testing.T) {
	is := is.New(t)
	device := audiofake.NewScriptedDevice(
		audiofake.Step{Data: frame(1)},
		audiofake.Step{Data: frame(2)},
		audiofake.Step{Data: frame(3)},
		audiofake.Step{Data: frame(4)},
	)
	sess := sessionfake.NewSession()
	h := newHarness(t, device, sess)

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)
	is.True(sess.WaitForSent(4, 5*time.Second))
	cancel()
	is.NoErr(wait(t, done)) // cancellation is graceful

	var got []byte
	for _, c := range sess.Sent() {
		is.Equal(c.Format, media.PCM16kMono)
		got = append(got, c.Data[0])
	}
	is.Equal(got, []byte{1, 2, 3, 4})
}

func TestRun_OverflowIsTolerated(t *testing.T) {
	is := is.New(t)
	device := audiofake.NewScriptedDevice(
		audiofake.Step{Data: frame(1)},
		audiofake.Step{Err: audio.NewOverflowError("read", errors.New("input overflowed"))},
		audiofake.Step{Data: frame(2)},
	)
	sess := sessionfake.NewSession()
	h := newHarness(t, device, sess)

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)
	is.True(sess.WaitForSent(2, 5*time.Second))
	cancel()
	is.NoErr(wait(t, done))

	sent := sess.Sent()
	is.Equal(len(sent), 2)
	is.Equal(sent[0].Data[0], byte(1))
	is.Equal(sent[1].Data[0], byte(2))
}

func TestRun_DeviceFaultTearsDown(t *testing.T) {
	is := is.New(t)
	device := audiofake.NewScriptedDevice(
		audiofake.Step{Data: frame(1)},
		audiofake.Step{Err: audio.NewFaultError("read", errors.New("device unplugged"))},
	)
	sess := sessionfake.NewSession()
	h := newHarness(t, device, sess)

	err := wait(t, h.start(context.Background()))
	is.True(audio.IsFault(err))
	is.True(sess.Closed())
	is.True(device.Closed())
	is.True(device.Playback().Closed())

	ended := h.obs.Ended()
	is.Equal(len(ended), 1) // the fatal error is reported once
	is.True(errors.Is(ended[0], audio.ErrDeviceFault))
}

func TestRun_PlaybackFaultTearsDown(t *testing.T) {
	is := is.New(t)
	device := audiofake.NewScriptedDevice()
	device.Playback().Fail = func(n int, chunk media.Chunk) error {
		return audio.NewFaultError("write", errors.New("output device lost"))
	}
	sess := sessionfake.NewSession(reply('A'))
	h := newHarness(t, device, sess)

	err := wait(t, h.start(context.Background()))
	is.True(audio.IsFault(err))
	is.True(sess.Closed())
}

func TestRun_TransportErrorIsFatal(t *testing.T) {
	is := is.New(t)
	sess := sessionfake.NewSession()
	sess.Fail(session.NewTransportError("receive", errors.New("connection reset")))
	h := newHarness(t, audiofake.NewScriptedDevice(), sess)

	err := wait(t, h.start(context.Background()))
	is.True(session.IsTransport(err))
	is.True(h.device.Closed())
}

func TestRun_SendErrorIsFatal(t *testing.T) {
	is := is.New(t)
	device := audiofake.NewScriptedDevice(audiofake.Step{Data: frame(1)})
	sess := sessionfake.NewSession()
	sess.SendErr = func(n int, chunk media.Chunk) error {
		return session.NewTransportError("send", errors.New("broken pipe"))
	}
	h := newHarness(t, device, sess)

	err := wait(t, h.start(context.Background()))
	is.True(session.IsTransport(err))
}

func TestRun_ConnectError(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, audiofake.NewScriptedDevice(), sessionfake.NewSession())
	h.conn.ConnectErr = session.NewTransportError("connect", errors.New("dial refused"))

	err := wait(t, h.start(context.Background()))
	is.True(session.IsTransport(err))
	is.True(h.device.Closed())
	is.True(h.device.Playback().Closed())
	is.Equal(len(h.obs.Ended()), 1)
}

func TestRun_OnlyOnce(t *testing.T) {
	is := is.New(t)
	sess := sessionfake.NewSession()
	sess.End()
	h := newHarness(t, audiofake.NewScriptedDevice(), sess)

	is.NoErr(wait(t, h.start(context.Background())))
	is.True(errors.Is(h.orch.Run(context.Background()), ErrAlreadyStarted))
}

func TestRun_InterruptDiscardsQueuedAudio(t *testing.T) {
	is := is.New(t)
	device := audiofake.NewScriptedDevice()
	gate := make(chan struct{})
	device.Playback().Gate = gate

	sess := sessionfake.NewSession(
		reply('A'), reply('B'), reply('C'),
		session.Event{Type: session.EventInterrupted},
		reply('D'),
	)
	h := newHarness(t, device, sess)

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)

	var discarded int
	select {
	case discarded = <-h.obs.interrupted:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt not observed")
	}
	// A may already be in flight; B and C are always still queued.
	is.True(discarded == 2 || discarded == 3)
	close(gate)

	playback := device.Playback()
	eventually(t, func() bool {
		writes := playback.Writes()
		return len(writes) > 0 && writes[len(writes)-1].Data[0] == 'D'
	})
	cancel()
	is.NoErr(wait(t, done))

	for _, c := range playback.Writes() {
		is.True(c.Data[0] != 'B' && c.Data[0] != 'C')
	}
	is.Equal(playback.MaxConcurrentWrites(), 1)
}

func TestRun_RecordsResumptionHandle(t *testing.T) {
	is := is.New(t)
	sess := sessionfake.NewSession(
		session.Event{Type: session.EventResumptionUpdate, Handle: "h1", Resumable: true},
		session.Event{Type: session.EventResumptionUpdate, Handle: "h2", Resumable: false},
		session.Event{Type: session.EventResumptionUpdate, Resumable: true},
	)
	sess.End()
	h := newHarness(t, audiofake.NewScriptedDevice(), sess)

	is.NoErr(wait(t, h.start(context.Background())))
	is.Equal(h.orch.ResumptionHandle(), "h1")

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	is.Equal(h.obs.handles, []string{"h1"})
}

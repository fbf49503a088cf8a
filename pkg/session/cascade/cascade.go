// Package cascade implements a translation session on top of the OpenAI API.
// Captured audio is segmented into utterances locally; each utterance is
// transcribed, translated and synthesized, and the results are surfaced as
// the same event stream a native speech-to-speech service produces.
package cascade

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/livetranslate-go/pkg/audio/wav"
	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/queue"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

// SpeechFormat is the raw PCM format returned by the speech endpoint.
var SpeechFormat = media.PCM24kMono

// speechChunkBytes is how much synthesized audio is surfaced per event (100ms).
const speechChunkBytes = 4800

var voices = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"shimmer": openai.VoiceShimmer,
}

func init() {
	session.Register("cascade", "OpenAI Whisper + chat + speech pipeline with local endpointing", func(opts session.Options) (session.Connector, error) {
		return New(opts)
	})
}

// Connector opens cascade sessions.
type Connector struct {
	client    *openai.Client
	logger    *slog.Logger
	sttModel  string
	chatModel string
	ttsModel  openai.SpeechModel
	voice     string
	language  string
	segmenter SegmenterOptions
}

// New creates a connector. Recognized params: transcription_model,
// chat_model, speech_model, voice, language.
func New(opts session.Options) (*Connector, error) {
	if opts.APIKey == "" {
		return nil, errors.New("cascade: API key is required (set OPENAI_API_KEY)")
	}
	config := openai.DefaultConfig(opts.APIKey)
	if opts.Endpoint != "" {
		config.BaseURL = opts.Endpoint
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Connector{
		client:    openai.NewClientWithConfig(config),
		logger:    logger.With(slog.String("backend", "cascade")),
		sttModel:  opts.Param("transcription_model", openai.Whisper1),
		chatModel: opts.Param("chat_model", openai.GPT4oMini),
		ttsModel:  openai.SpeechModel(opts.Param("speech_model", string(openai.TTSModel1))),
		voice:     opts.Param("voice", ""),
		language:  opts.Param("language", ""),
		segmenter: DefaultSegmenterOptions(),
	}, nil
}

// Connect starts a session. The output format must match the speech endpoint.
func (c *Connector) Connect(ctx context.Context, cfg session.Config) (session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputFormat != SpeechFormat {
		return nil, fmt.Errorf("cascade: output must be %d Hz mono 16-bit, got %+v", SpeechFormat.SampleRate, cfg.OutputFormat)
	}
	if cfg.InputFormat.BitsPerSample != 16 {
		return nil, fmt.Errorf("cascade: input must be 16-bit PCM, got %d-bit", cfg.InputFormat.BitsPerSample)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	voice := c.resolveVoice(cfg.Voice)
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:       c,
		cfg:        cfg,
		voice:      voice,
		logger:     c.logger,
		segmenter:  NewSegmenter(c.segmenter),
		utterances: queue.New[[]byte](0),
		events:     queue.New[item](0),
		ctx:        sctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		now:        time.Now,
	}
	go s.process()

	c.logger.Info("Cascade session started",
		slog.String("transcription_model", c.sttModel),
		slog.String("chat_model", c.chatModel),
		slog.String("voice", string(voice)))
	return s, nil
}

func (c *Connector) resolveVoice(requested string) openai.SpeechVoice {
	for _, name := range []string{c.voice, strings.ToLower(requested)} {
		if v, ok := voices[name]; ok {
			return v
		}
	}
	if requested != "" {
		c.logger.Debug("Voice not offered by the speech endpoint, using alloy", slog.String("voice", requested))
	}
	return openai.VoiceAlloy
}

type item struct {
	ev  session.Event
	err error
}

// Session segments input locally and runs one reply at a time.
type Session struct {
	conn   *Connector
	cfg    session.Config
	voice  openai.SpeechVoice
	logger *slog.Logger

	segmenter  *Segmenter // used only by SendAudio
	utterances *queue.Queue[[]byte]
	events     *queue.Queue[item]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu orders reply output against interruptions: a reply may only emit
	// while its context is live, checked under mu.
	mu           sync.Mutex
	replyCancel  context.CancelFunc
	replyAudible bool
	// playingUntil estimates when the emitted audio finishes playing.
	playingUntil time.Time
	now          func() time.Time
}

// SendAudio feeds the endpointer. Speech onset while translated audio is
// playing emits Interrupted.
func (s *Session) SendAudio(ctx context.Context, chunk media.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return session.NewTransportError("send", session.ErrClosed)
	}

	ev, utterance := s.segmenter.Process(chunk)
	switch ev {
	case SpeechStarted:
		s.interrupt()
	case SpeechEnded:
		if err := s.utterances.Push(ctx, utterance); err != nil && !errors.Is(err, queue.ErrClosed) {
			return err
		}
	}
	return nil
}

// interrupt handles speech onset while translated audio is still playing:
// the audible reply is cancelled and Interrupted is emitted, followed by
// TurnComplete to close the cut-off turn. Replies that have not produced
// audio yet keep running.
func (s *Session) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.now().Before(s.playingUntil) {
		return
	}
	cancelled := false
	if s.replyCancel != nil && s.replyAudible {
		s.replyCancel()
		s.replyCancel = nil
		cancelled = true
	}
	s.playingUntil = time.Time{}
	s.push(item{ev: session.Event{Type: session.EventInterrupted}})
	if cancelled {
		s.push(item{ev: session.Event{Type: session.EventTurnComplete}})
	}
	s.logger.Debug("Reply interrupted by new speech")
}

// Receive yields events until the session is closed or fails.
func (s *Session) Receive(ctx context.Context) iter.Seq2[session.Event, error] {
	return func(yield func(session.Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()

		for {
			it, err := s.events.Pop(ctx)
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
			if !yield(it.ev, it.err) || it.err != nil {
				return
			}
		}
	}
}

// Close stops processing and waits for the reply worker.
func (s *Session) Close() error {
	s.cancel()
	s.utterances.Close()
	<-s.done
	return nil
}

func (s *Session) push(it item) {
	_ = s.events.Push(context.Background(), it)
}

// process runs utterances through the pipeline one at a time.
func (s *Session) process() {
	defer close(s.done)
	for {
		utterance, err := s.utterances.Pop(s.ctx)
		if err != nil {
			return
		}

		rctx, cancel := context.WithCancel(s.ctx)
		s.mu.Lock()
		s.replyCancel = cancel
		s.replyAudible = false
		s.mu.Unlock()

		err = s.reply(rctx, utterance)

		s.mu.Lock()
		s.replyCancel = nil
		s.mu.Unlock()
		cancel()

		if err != nil && rctx.Err() == nil {
			s.push(item{err: session.NewTransportError("receive", err)})
			s.events.Close()
			return
		}
	}
}

// emit pushes ev unless the reply was interrupted. The check and the push
// share mu with interrupt, so nothing from a cancelled reply follows
// Interrupted in the stream.
func (s *Session) emit(ctx context.Context, ev session.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	switch ev.Type {
	case session.EventAudio:
		s.replyAudible = true
		s.playingUntil = later(s.now(), s.playingUntil).Add(ev.Audio.Duration())
	case session.EventTurnComplete:
		s.replyAudible = false // the turn is closed, nothing left to cancel
	}
	s.push(item{ev: ev})
	return true
}

func (s *Session) reply(ctx context.Context, utterance []byte) error {
	text, err := s.transcribe(ctx, utterance)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	if s.cfg.InputTranscription && !s.emit(ctx, session.Event{Type: session.EventInputTranscript, Text: text}) {
		return nil
	}

	translated, err := s.translate(ctx, text)
	if err != nil {
		return err
	}
	if translated == "" {
		return nil
	}
	if s.cfg.OutputTranscription && !s.emit(ctx, session.Event{Type: session.EventOutputTranscript, Text: translated}) {
		return nil
	}

	if err := s.synthesize(ctx, translated); err != nil {
		return err
	}
	s.emit(ctx, session.Event{Type: session.EventTurnComplete})
	return nil
}

func (s *Session) transcribe(ctx context.Context, utterance []byte) (string, error) {
	wavData, err := wav.Encode(utterance, s.cfg.InputFormat)
	if err != nil {
		return "", fmt.Errorf("failed to convert audio to WAV: %w", err)
	}

	req := openai.AudioRequest{
		Model:    s.conn.sttModel,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wavData),
		Format:   openai.AudioResponseFormatJSON,
		Language: s.conn.language,
	}
	resp, err := s.conn.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	s.logger.Debug("Utterance transcribed",
		slog.Duration("audio", s.cfg.InputFormat.Duration(len(utterance))),
		slog.String("text", resp.Text))
	return strings.TrimSpace(resp.Text), nil
}

func (s *Session) translate(ctx context.Context, text string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if s.cfg.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.cfg.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := s.conn.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.conn.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// synthesize streams the speech response as audio events while it downloads.
func (s *Session) synthesize(ctx context.Context, text string) error {
	resp, err := s.conn.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.conn.ttsModel,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	buf := make([]byte, speechChunkBytes)
	for {
		n, err := io.ReadFull(resp, buf)
		// keep whole samples; a trailing odd byte cannot be played
		n -= n % SpeechFormat.BytesPerFrame()
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.emit(ctx, session.Event{Type: session.EventAudio, Audio: media.NewChunk(data, SpeechFormat)}) {
				return nil
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read speech response: %w", err)
		}
	}
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

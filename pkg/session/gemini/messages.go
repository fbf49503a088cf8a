package gemini

import (
	"strconv"
	"strings"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/media"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

// Client messages

type setupMessage struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *content           `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
	SessionResumption        *sessionResumption `json:"sessionResumption,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type sessionResumption struct {
	Handle string `json:"handle,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

// blob data is base64 encoded on the wire; encoding/json does that for []byte.
type blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio *blob `json:"audio,omitempty"`
}

// Server messages. Fields the relay does not use are not decoded.

type serverMessage struct {
	SetupComplete           *struct{}         `json:"setupComplete,omitempty"`
	ServerContent           *serverContent    `json:"serverContent,omitempty"`
	GoAway                  *goAway           `json:"goAway,omitempty"`
	SessionResumptionUpdate *resumptionUpdate `json:"sessionResumptionUpdate,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

type resumptionUpdate struct {
	NewHandle string `json:"newHandle"`
	Resumable bool   `json:"resumable"`
}

func newSetup(cfg session.Config) setupMessage {
	s := setup{
		Model: modelName(cfg.Model),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		s.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	// Always request resumption updates so a handle is available.
	s.SessionResumption = &sessionResumption{Handle: cfg.ResumeHandle}
	return setupMessage{Setup: s}
}

func modelName(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// events converts one server message into relay events. The order is fixed:
// resumption update, go-away, interrupted, input transcript, output
// transcript, audio, turn complete.
func events(msg *serverMessage, output media.Format) []session.Event {
	var evs []session.Event

	if u := msg.SessionResumptionUpdate; u != nil {
		evs = append(evs, session.Event{
			Type:      session.EventResumptionUpdate,
			Handle:    u.NewHandle,
			Resumable: u.Resumable,
		})
	}

	if g := msg.GoAway; g != nil {
		evs = append(evs, session.Event{Type: session.EventGoAway, TimeLeft: parseDuration(g.TimeLeft)})
	}

	sc := msg.ServerContent
	if sc == nil {
		return evs
	}

	if sc.Interrupted {
		evs = append(evs, session.Event{Type: session.EventInterrupted})
	}
	if tr := sc.InputTranscription; tr != nil && tr.Text != "" {
		evs = append(evs, session.Event{Type: session.EventInputTranscript, Text: tr.Text})
	}
	if tr := sc.OutputTranscription; tr != nil && tr.Text != "" {
		evs = append(evs, session.Event{Type: session.EventOutputTranscript, Text: tr.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(p.InlineData.MIMEType, "audio/pcm") {
				continue
			}
			evs = append(evs, session.Event{
				Type:  session.EventAudio,
				Audio: media.NewChunk(p.InlineData.Data, formatFor(p.InlineData.MIMEType, output)),
			})
		}
	}
	if sc.TurnComplete {
		evs = append(evs, session.Event{Type: session.EventTurnComplete})
	}
	return evs
}

// formatFor applies the rate parameter of an "audio/pcm;rate=N" mime type.
func formatFor(mime string, def media.Format) media.Format {
	for _, param := range strings.Split(mime, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || key != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			def.SampleRate = rate
		}
	}
	return def
}

// parseDuration parses protobuf JSON durations such as "5s" or "0.250s".
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

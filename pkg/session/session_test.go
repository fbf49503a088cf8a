package session

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/chriscow/livetranslate-go/pkg/media"
)

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Model:        "models/test",
		InputFormat:  media.PCM16kMono,
		OutputFormat: media.PCM24kMono,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no model", func(c *Config) { c.Model = "" }, "model"},
		{"bad input", func(c *Config) { c.InputFormat.SampleRate = 0 }, "input format"},
		{"bad output", func(c *Config) { c.OutputFormat.Channels = 0 }, "output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	is := is.New(t)

	err := NewTransportError("receive", io.ErrUnexpectedEOF)
	is.True(IsTransport(err))
	is.True(errors.Is(err, io.ErrUnexpectedEOF)) // cause stays reachable
	is.Equal(err.Error(), "session receive: unexpected EOF")
	is.True(!IsTransport(io.EOF))
}

func TestEventType_String(t *testing.T) {
	is := is.New(t)
	is.Equal(EventAudio.String(), "audio")
	is.Equal(EventGoAway.String(), "go_away")
	is.Equal(EventType(99).String(), "unknown(99)")
}

func TestOptions_Param(t *testing.T) {
	is := is.New(t)
	opts := Options{Params: map[string]string{"model": "x", "empty": ""}}
	is.Equal(opts.Param("model", "d"), "x")
	is.Equal(opts.Param("empty", "d"), "d")
	is.Equal(opts.Param("missing", "d"), "d")
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("does-not-exist", Options{})
	if err == nil || !strings.Contains(err.Error(), "unknown session backend") {
		t.Fatalf("Lookup() error = %v", err)
	}
}

// Package config loads lt-go settings from defaults, an optional YAML file,
// a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/session"
)

// EnvPrefix prefixes every environment variable read into Config.
const EnvPrefix = "LT_"

// Config represents the complete lt-go configuration
type Config struct {
	Audio   AudioConfig   `yaml:"audio" envPrefix:"AUDIO_"`
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Gemini  GeminiConfig  `yaml:"gemini" envPrefix:"GEMINI_"`
	OpenAI  OpenAIConfig  `yaml:"openai" envPrefix:"OPENAI_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// AudioConfig selects the audio device and stream parameters
type AudioConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	// Input and Output name a device or a WAV file depending on the backend.
	Input          string `yaml:"input" env:"INPUT"`
	Output         string `yaml:"output" env:"OUTPUT"`
	CaptureRate    int    `yaml:"capture_rate" env:"CAPTURE_RATE"`
	PlaybackRate   int    `yaml:"playback_rate" env:"PLAYBACK_RATE"`
	Channels       int    `yaml:"channels" env:"CHANNELS"`
	FrameSize      int    `yaml:"frame_size" env:"FRAME_SIZE"`           // sample frames per capture read
	PlaybackBuffer int    `yaml:"playback_buffer" env:"PLAYBACK_BUFFER"` // sample frames per device write
	QueueCapacity  int    `yaml:"queue_capacity" env:"QUEUE_CAPACITY"`   // 0 = unbounded
}

// SessionConfig describes the translation session
type SessionConfig struct {
	Backend        string `yaml:"backend" env:"BACKEND"`
	Model          string `yaml:"model" env:"MODEL"`
	Voice          string `yaml:"voice" env:"VOICE"`
	TargetLanguage string `yaml:"target_language" env:"TARGET_LANGUAGE"`
	// Instruction replaces the instruction derived from TargetLanguage.
	Instruction         string        `yaml:"instruction" env:"INSTRUCTION"`
	InputTranscription  bool          `yaml:"input_transcription" env:"INPUT_TRANSCRIPTION"`
	OutputTranscription bool          `yaml:"output_transcription" env:"OUTPUT_TRANSCRIPTION"`
	ResumeHandle        string        `yaml:"resume_handle" env:"RESUME_HANDLE"`
	MaxDuration         time.Duration `yaml:"max_duration" env:"MAX_DURATION"`
}

// GeminiConfig contains Gemini Live API settings
type GeminiConfig struct {
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// OpenAIConfig contains settings for the cascade backend
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key" env:"API_KEY"`
	BaseURL            string `yaml:"base_url" env:"BASE_URL"`
	TranscriptionModel string `yaml:"transcription_model" env:"TRANSCRIPTION_MODEL"`
	ChatModel          string `yaml:"chat_model" env:"CHAT_MODEL"`
	SpeechModel        string `yaml:"speech_model" env:"SPEECH_MODEL"`
	Voice              string `yaml:"voice" env:"VOICE"`
	// Language is the ISO-639-1 hint passed to transcription.
	Language string `yaml:"language" env:"LANGUAGE"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	// Transcript, when set, is a file completed turns are appended to.
	Transcript string `yaml:"transcript" env:"TRANSCRIPT"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr" env:"ADDR"`
}

// apiKeys are read without the prefix, under the names the providers document.
type apiKeys struct {
	Gemini string `env:"GEMINI_API_KEY"`
	OpenAI string `env:"OPENAI_API_KEY"`
}

// Default returns the built-in configuration: 16 kHz mono capture in
// 512-frame chunks, 24 kHz playback, Gemini Live translating to Hindi.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:        "portaudio",
			CaptureRate:    16000,
			PlaybackRate:   24000,
			Channels:       1,
			FrameSize:      512,
			PlaybackBuffer: 1024,
		},
		Session: SessionConfig{
			Backend:             "gemini",
			Model:               "gemini-2.0-flash-exp",
			Voice:               "Puck",
			TargetLanguage:      "Hindi",
			InputTranscription:  true,
			OutputTranscription: true,
		},
		OpenAI: OpenAIConfig{
			TranscriptionModel: "whisper-1",
			ChatModel:          "gpt-4o-mini",
			SpeechModel:        "tts-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. Later sources override earlier ones:
// defaults, the YAML file at path (if path is not empty), .env in the working
// directory (if present), then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var keys apiKeys
	if err := env.Parse(&keys); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	if keys.Gemini != "" {
		c.Gemini.APIKey = keys.Gemini
	}
	if keys.OpenAI != "" {
		c.OpenAI.APIKey = keys.OpenAI
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	switch c.Session.Backend {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return errors.New("gemini backend requires an API key (set GEMINI_API_KEY)")
		}
	case "cascade":
		if c.OpenAI.APIKey == "" {
			return errors.New("cascade backend requires an API key (set OPENAI_API_KEY)")
		}
		if c.Audio.PlaybackRate != 24000 {
			return fmt.Errorf("cascade backend plays 24000 Hz audio, playback_rate is %d", c.Audio.PlaybackRate)
		}
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.Backend == "" {
		return errors.New("backend cannot be empty")
	}
	if err := a.CaptureStream().Validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := a.PlaybackStream().Validate(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	if a.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative, got %d", a.QueueCapacity)
	}
	return nil
}

// CaptureStream returns the capture stream parameters.
func (a *AudioConfig) CaptureStream() audio.StreamConfig {
	return audio.StreamConfig{SampleRate: a.CaptureRate, Channels: a.Channels, FrameSize: a.FrameSize}
}

// PlaybackStream returns the playback stream parameters.
func (a *AudioConfig) PlaybackStream() audio.StreamConfig {
	return audio.StreamConfig{SampleRate: a.PlaybackRate, Channels: a.Channels, FrameSize: a.PlaybackBuffer}
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.Backend == "" {
		return errors.New("backend cannot be empty")
	}
	if s.Model == "" {
		return errors.New("model cannot be empty")
	}
	if s.TargetLanguage == "" && s.Instruction == "" {
		return errors.New("either target_language or instruction must be set")
	}
	if s.MaxDuration < 0 {
		return fmt.Errorf("max_duration must not be negative, got %v", s.MaxDuration)
	}
	return nil
}

// SystemInstruction returns the instruction sent to the service.
func (s *SessionConfig) SystemInstruction() string {
	if s.Instruction != "" {
		return s.Instruction
	}
	return Instruction(s.TargetLanguage)
}

// Instruction returns the default translator instruction for a language.
func Instruction(language string) string {
	return fmt.Sprintf("You are a live voice translator. Translate whatever the speaker says, "+
		"in any language, into %[1]s. Reply only with the spoken %[1]s translation, "+
		"without commentary or explanation.", language)
}

// Validate validates logging configuration
func (l *LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn or error, got %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "console", "text", "json":
	default:
		return fmt.Errorf("format must be console or json, got %q", l.Format)
	}
	return nil
}

// SessionConfig returns the parameters passed to session.Connector.Connect.
func (c *Config) SessionConfig() session.Config {
	model := c.Session.Model
	if c.Session.Backend == "cascade" {
		model = c.OpenAI.ChatModel
	}
	return session.Config{
		Model:               model,
		Voice:               c.Session.Voice,
		SystemInstruction:   c.Session.SystemInstruction(),
		InputFormat:         c.Audio.CaptureStream().Format(),
		OutputFormat:        c.Audio.PlaybackStream().Format(),
		InputTranscription:  c.Session.InputTranscription,
		OutputTranscription: c.Session.OutputTranscription,
		ResumeHandle:        c.Session.ResumeHandle,
	}
}

// SessionOptions returns the backend options for the configured session backend.
func (c *Config) SessionOptions() session.Options {
	switch c.Session.Backend {
	case "gemini":
		return session.Options{APIKey: c.Gemini.APIKey, Endpoint: c.Gemini.Endpoint}
	case "cascade":
		return session.Options{
			APIKey:   c.OpenAI.APIKey,
			Endpoint: c.OpenAI.BaseURL,
			Params: map[string]string{
				"transcription_model": c.OpenAI.TranscriptionModel,
				"chat_model":          c.OpenAI.ChatModel,
				"speech_model":        c.OpenAI.SpeechModel,
				"voice":               c.OpenAI.Voice,
				"language":            c.OpenAI.Language,
			},
		}
	}
	return session.Options{}
}

// AudioOptions returns the device backend options.
func (c *Config) AudioOptions() audio.Options {
	return audio.Options{Input: c.Audio.Input, Output: c.Audio.Output}
}

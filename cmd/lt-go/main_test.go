package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/spf13/cobra"

	"github.com/chriscow/livetranslate-go/internal/config"
	"github.com/chriscow/livetranslate-go/pkg/metrics"
	"github.com/chriscow/livetranslate-go/pkg/translator"
)

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("log-format", "", "")
	addSessionFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestApplyFlags(t *testing.T) {
	is := is.New(t)
	cfg := config.Default()
	cmd := newTestCommand(t,
		"--backend", "fake",
		"--language", "French",
		"--log-level", "debug",
		"--max-duration", "90s",
		"--resume", "h1",
		"--transcript", "turns.txt")

	is.NoErr(applyFlags(cmd, cfg))
	is.Equal(cfg.Session.Backend, "fake")
	is.Equal(cfg.Session.TargetLanguage, "French")
	is.Equal(cfg.Log.Level, "debug")
	is.Equal(cfg.Session.MaxDuration, 90*time.Second)
	is.Equal(cfg.Session.ResumeHandle, "h1")
	is.Equal(cfg.Log.Transcript, "turns.txt")

	// unset flags leave the loaded values alone
	is.Equal(cfg.Session.Voice, config.Default().Session.Voice)
	is.Equal(cfg.Audio.Backend, config.Default().Audio.Backend)
}

func TestNewRunner_FakeBackends(t *testing.T) {
	is := is.New(t)
	cfg := config.Default()
	cfg.Audio.Backend = "fake"
	cfg.Session.Backend = "fake"
	a := &app{cfg: cfg, logger: slog.New(slog.DiscardHandler), metrics: metrics.New()}

	runner, err := a.newRunner()
	is.NoErr(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		is.NoErr(err) // cancellation is a graceful end
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestNewRunner_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Backend = "fake"
	cfg.Session.Backend = "nope"
	a := &app{cfg: cfg, logger: slog.New(slog.DiscardHandler)}

	if _, err := a.newRunner(); err == nil {
		t.Fatal("expected an error for an unknown session backend")
	}
}

func TestApp_Observer(t *testing.T) {
	is := is.New(t)
	logger := slog.New(slog.DiscardHandler)

	a := &app{logger: logger}
	_, ok := a.observer().(*translator.LogObserver)
	is.True(ok) // without a transcript only the log observer is used

	var buf bytes.Buffer
	a = &app{logger: logger, transcript: &buf}
	obs := a.observer()
	is.Equal(len(obs.(translator.Observers)), 2)

	obs.TurnCompleted(translator.Turn{Input: "hola", Output: "नमस्ते"})
	is.True(strings.Contains(buf.String(), "in: hola"))
	is.True(strings.Contains(buf.String(), "out: नमस्ते"))
	is.NoErr(a.Close()) // a buffer has nothing to close
}

func TestListDevices(t *testing.T) {
	var buf bytes.Buffer
	if err := listDevices(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Audio backends:", "fake", "wav", "Session backends:", "gemini", "cascade"} {
		if !strings.Contains(out, want) {
			t.Errorf("device listing missing %q:\n%s", want, out)
		}
	}
}

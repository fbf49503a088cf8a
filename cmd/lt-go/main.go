package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/livetranslate-go/internal/config"
	"github.com/chriscow/livetranslate-go/internal/logging"
	"github.com/chriscow/livetranslate-go/internal/worker"
	"github.com/chriscow/livetranslate-go/pkg/audio"
	_ "github.com/chriscow/livetranslate-go/pkg/audio/fake" // Import to register the fake device
	"github.com/chriscow/livetranslate-go/pkg/audio/portaudio"
	_ "github.com/chriscow/livetranslate-go/pkg/audio/wavfile" // Import to register the WAV file device
	"github.com/chriscow/livetranslate-go/pkg/metrics"
	"github.com/chriscow/livetranslate-go/pkg/session"
	_ "github.com/chriscow/livetranslate-go/pkg/session/cascade" // Import to register the OpenAI cascade
	_ "github.com/chriscow/livetranslate-go/pkg/session/fake"    // Import to register the fake session
	_ "github.com/chriscow/livetranslate-go/pkg/session/gemini"  // Import to register Gemini Live
	"github.com/chriscow/livetranslate-go/pkg/translator"
	"github.com/chriscow/livetranslate-go/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "lt-go",
	Short: "Live speech translation between your microphone and a streaming translation service",
	Long: `lt-go captures speech from the microphone, streams it to a live translation
service and plays the translated speech as it arrives. Speaking over the
playback interrupts it.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Translate until interrupted or the session ends",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		a.serveMetrics(ctx)

		w, err := a.newWorker()
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		a.logger.Info("Translator ready, speak to translate",
			slog.String("language", a.cfg.Session.TargetLanguage))

		<-w.Done()
		if handle := w.ResumptionHandle(); handle != "" {
			a.logger.Info("Session can be resumed", slog.String("handle", handle))
		}
		return w.LastError()
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start and stop translation sessions interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		a.serveMetrics(ctx)

		w, err := a.newWorker()
		if err != nil {
			return err
		}
		return worker.NewConsole(w, cmd.OutOrStdout(), a.logger).Run(ctx, cmd.InOrStdin())
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices and translation backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices(cmd.OutOrStdout())
	},
}

// app holds what every session command needs.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	transcript io.Writer
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	logger := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("Starting lt-go",
		slog.String("version", version.Version),
		slog.String("commit", version.GitCommit),
		slog.String("audio", cfg.Audio.Backend),
		slog.String("session", cfg.Session.Backend))

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	if cfg.Log.Transcript != "" {
		f, err := os.OpenFile(cfg.Log.Transcript, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open transcript: %w", err)
		}
		a.transcript = f
	}
	return a, nil
}

// Close releases the transcript file.
func (a *app) Close() error {
	if c, ok := a.transcript.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// observer logs session notices and appends turns to the transcript when one
// is configured.
func (a *app) observer() translator.Observer {
	log := translator.NewLogObserver(a.logger)
	if a.transcript == nil {
		return log
	}
	return translator.Observers{log, translator.NewTranscriptWriter(a.transcript)}
}

// applyFlags overrides configuration with flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	stringFlags := map[string]*string{
		"log-level":    &cfg.Log.Level,
		"log-format":   &cfg.Log.Format,
		"metrics-addr": &cfg.Metrics.Addr,
		"audio":        &cfg.Audio.Backend,
		"input":        &cfg.Audio.Input,
		"output":       &cfg.Audio.Output,
		"backend":      &cfg.Session.Backend,
		"model":        &cfg.Session.Model,
		"voice":        &cfg.Session.Voice,
		"language":     &cfg.Session.TargetLanguage,
		"resume":       &cfg.Session.ResumeHandle,
		"transcript":   &cfg.Log.Transcript,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Changed("max-duration") {
		d, err := flags.GetDuration("max-duration")
		if err != nil {
			return err
		}
		cfg.Session.MaxDuration = d
	}
	return nil
}

func (a *app) newWorker() (*worker.Worker, error) {
	name := a.cfg.Session.Backend + "/" + a.cfg.SessionConfig().Model
	return worker.New(worker.Config{
		Name:        name,
		Factory:     a.newRunner,
		MaxDuration: a.cfg.Session.MaxDuration,
	}, a.logger)
}

// newRunner opens the audio device and session backend for one session.
func (a *app) newRunner() (worker.Runner, error) {
	audioOpts := a.cfg.AudioOptions()
	audioOpts.Logger = a.logger
	device, err := audio.Open(a.cfg.Audio.Backend, audioOpts)
	if err != nil {
		return nil, fmt.Errorf("open audio device %q: %w", a.cfg.Audio.Backend, err)
	}

	sessionOpts := a.cfg.SessionOptions()
	sessionOpts.Logger = a.logger
	connector, err := session.Lookup(a.cfg.Session.Backend, sessionOpts)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("session backend %q: %w", a.cfg.Session.Backend, err)
	}

	orch, err := translator.New(translator.Config{
		Device:        device,
		Connector:     connector,
		Session:       a.cfg.SessionConfig(),
		Capture:       a.cfg.Audio.CaptureStream(),
		Playback:      a.cfg.Audio.PlaybackStream(),
		QueueCapacity: a.cfg.Audio.QueueCapacity,
		Observer:      a.observer(),
		Logger:        a.logger,
		Metrics:       a.metrics,
	})
	if err != nil {
		device.Close()
		return nil, err
	}
	return orch, nil
}

// serveMetrics exposes /metrics until ctx is done when an address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("Metrics server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
}

func listDevices(out io.Writer) error {
	fmt.Fprintln(out, "Audio backends:")
	for _, p := range audio.Backends() {
		fmt.Fprintf(out, "  %-10s %s%s\n", p.Name, p.Description, unavailable(p.Available))
	}

	fmt.Fprintln(out, "Session backends:")
	for _, p := range session.Backends() {
		fmt.Fprintf(out, "  %-10s %s%s\n", p.Name, p.Description, unavailable(p.Available))
	}

	inputs, outputs, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(out, "Sound devices: %v\n", err)
		return nil
	}
	fmt.Fprintln(out, "Input devices:")
	for _, name := range inputs {
		fmt.Fprintf(out, "  %s\n", name)
	}
	fmt.Fprintln(out, "Output devices:")
	for _, name := range outputs {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func unavailable(available bool) string {
	if available {
		return ""
	}
	return " (unavailable)"
}

// addSessionFlags registers the flags shared by the session commands.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().String("audio", "", "Audio backend (portaudio, wav, fake)")
	cmd.Flags().String("input", "", "Capture device name or WAV file")
	cmd.Flags().String("output", "", "Playback device name or WAV file")
	cmd.Flags().String("backend", "", "Translation backend (gemini, cascade, fake)")
	cmd.Flags().String("model", "", "Model name")
	cmd.Flags().String("voice", "", "Voice for the translated speech")
	cmd.Flags().String("language", "", "Target language")
	cmd.Flags().String("resume", "", "Session resumption handle from a previous run")
	cmd.Flags().String("transcript", "", "Append completed turns to this file")
	cmd.Flags().Duration("max-duration", 0, "End the session after this long (0 = no limit)")
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (console, json)")

	addSessionFlags(runCmd)
	addSessionFlags(consoleCmd)

	rootCmd.AddCommand(versionCmd, runCmd, consoleCmd, devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"chorus/internal/agent"
	"chorus/internal/chat"
	"chorus/internal/config"
	"chorus/internal/speech"
	"chorus/internal/store"
	"chorus/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
)

const cleanupTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "Error: ")
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CHORUS_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	green := color.New(color.FgGreen)
	green.Print("▶ ")
	fmt.Printf("Log file:   %s\n", cfg.Logging.File)

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	chatSvc := chat.New(
		chat.NewClient(cfg.OpenAI.Endpoint, cfg.OpenAI.APIKey),
		chat.Config{
			Deployment:   cfg.OpenAI.Deployment,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
			MaxTokens:    cfg.OpenAI.MaxTokens,
			Temperature:  &cfg.OpenAI.Temperature,
		},
		logger,
	)

	green.Print("▶ ")
	fmt.Println("Creating search agent...")
	agentSvc, err := agent.New(ctx,
		agent.NewRESTClient(cfg.Agent.Endpoint, cfg.Agent.Key, cfg.Agent.APIVersion),
		agent.Config{
			Model:           cfg.OpenAI.Deployment,
			Name:            cfg.Agent.Name,
			Instructions:    cfg.Agent.Instructions,
			Connection:      cfg.Agent.Connection,
			PollInterval:    cfg.Agent.PollInterval,
			MaxPollAttempts: cfg.Agent.MaxPollAttempts,
		},
		logger,
	)
	if err != nil {
		return err
	}
	defer func() {
		cctx, ccancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer ccancel()
		agentSvc.Cleanup(cctx)
	}()

	speechSvc, closeSpeech := newSpeech(ctx, cfg.Speech, logger)
	defer closeSpeech()

	deps := ui.Deps{
		Chat:       chatSvc,
		Search:     agentSvc,
		Speech:     speechSvc,
		Store:      st,
		Deployment: cfg.OpenAI.Deployment,
		Logger:     logger,
	}

	p, _ := ui.NewProgram(ctx, deps)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running terminal ui: %w", err)
	}
	return nil
}

func newSpeech(ctx context.Context, cfg config.SpeechConfig, logger *slog.Logger) (*speech.Service, func()) {
	capture := cfg.CaptureCommand
	if len(capture) == 0 {
		capture = speech.DefaultCaptureCommand(cfg.RecordSeconds)
	}
	playback := cfg.PlaybackCommand
	if len(playback) == 0 {
		playback = speech.DefaultPlaybackCommand()
	}

	var (
		recognizer  speech.Recognizer
		synthesizer speech.Synthesizer
		closeFn     = func() {}
	)
	if cfg.Key != "" && cfg.Region != "" {
		synthesizer = speech.NewAzureSynthesizer(cfg.Key, cfg.Region)
	}

	switch cfg.Provider {
	case "google":
		g, err := speech.NewGoogleRecognizer(ctx)
		if err != nil {
			logger.Warn("voice input disabled", "provider", cfg.Provider, "error", err)
			break
		}
		recognizer = g
		closeFn = func() { _ = g.Close() }
	default:
		recognizer = speech.NewAzureRecognizer(cfg.Key, cfg.Region)
	}

	svc := speech.New(
		recognizer,
		synthesizer,
		speech.CommandSource{Command: capture},
		speech.CommandSink{Command: playback},
		logger,
	)
	return svc, closeFn
}

func setupLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// The terminal UI owns stdout, so logs go to a file.
	var w io.Writer = io.Discard
	closeFn := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	relay "github.com/copilothq/copilot-core/core"
	"github.com/copilothq/copilot-core/core/llms/groq"
	"github.com/copilothq/copilot-core/core/speechtotext/deepgram"
	"github.com/copilothq/copilot-core/internal/config"
	"github.com/copilothq/copilot-core/internal/metrics"
	"github.com/copilothq/copilot-core/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// .env is optional; plain environment variables still apply
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if cfg.Deepgram.APIKey == "" {
		logger.Warn("DEEPGRAM_API_KEY not set, transcription will not work")
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("GROQ_API_KEY not set, LLM responses will not work")
	}

	resume, err := cfg.LLM.ResumeText()
	if err != nil {
		return fmt.Errorf("failed to load resume: %w", err)
	}

	llm := groq.NewClient(cfg.LLM.APIKey,
		groq.WithModel(cfg.LLM.Model),
		groq.WithSystemPrompt(groq.BuildSystemPrompt(resume)),
		groq.WithTemperature(cfg.LLM.Temperature),
		groq.WithMaxTokens(cfg.LLM.MaxTokens),
	)

	newTranscriber := func() relay.SpeechToText {
		return deepgram.NewTranscriptionClient(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			Encoding:       cfg.Deepgram.Encoding,
			SampleRate:     cfg.Deepgram.SampleRate,
			UtteranceEndMS: cfg.Deepgram.UtteranceEndMS,
		})
	}

	srv := server.New(cfg, logger, llm, newTranscriber, metrics.NewMetrics())
	srv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/events"
	"github.com/voxwire/voxwire/internal/llm"
	"github.com/voxwire/voxwire/internal/logging"
	"github.com/voxwire/voxwire/internal/metrics"
	"github.com/voxwire/voxwire/internal/server"
	"github.com/voxwire/voxwire/internal/session"
	"github.com/voxwire/voxwire/internal/storage"
	"github.com/voxwire/voxwire/internal/summary"
	"github.com/voxwire/voxwire/internal/transcribe"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxwire: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.WithComponent("main")
	for _, w := range warnings {
		log.Warn().Msg(w)
	}

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		return fmt.Errorf("build transcriber: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var summarizer session.Summarizer
	creds := llm.Credentials{
		OpenAI:    cfg.OpenAIAPIKey,
		Anthropic: cfg.AnthropicAPIKey,
		Gemini:    cfg.GeminiAPIKey,
	}
	if client, err := llm.NewForModel(cfg.SummaryModel, creds); err != nil {
		log.Warn().Err(err).Str("model", cfg.SummaryModel).Msg("summaries disabled")
	} else {
		summarizer = summary.New(client)
	}

	publisher := events.New(events.Config{
		Brokers:     cfg.Kafka.Brokers,
		TopicFinal:  cfg.Kafka.TopicFinal,
		TopicEvents: cfg.Kafka.TopicEvents,
	})
	defer func() { _ = publisher.Close() }()

	hub := server.NewHub()

	registry := session.NewRegistry(session.Options{
		MaxSessions:         cfg.MaxConcurrentSessions,
		BufferSize:          cfg.BufferSize,
		EnqueueWait:         cfg.ParsedEnqueueWait(),
		IdleTimeout:         cfg.ParsedIdleTimeout(),
		SweepInterval:       cfg.ParsedSweepInterval(),
		GracePeriod:         cfg.ParsedEndGracePeriod(),
		WindowMaxChunks:     cfg.WindowMaxChunks,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
	}, session.Deps{
		Transcriber: transcriber,
		Sink:        hub,
		Store:       store,
		Summarizer:  summarizer,
		Publisher:   publisher,
	})
	registry.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		errCh <- server.Serve(cfg.ListenAddr, hub, registry)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	registry.Close(shutdownCtx)

	return nil
}

func buildTranscriber(cfg config.Config) (session.Transcriber, error) {
	var inner transcribe.Transcriber
	var err error

	switch cfg.Transcriber.Provider {
	case "deepgram":
		inner, err = transcribe.NewDeepgramClient(cfg.Transcriber.DeepgramAPIKey, cfg.Transcriber.Model)
	case "http":
		inner, err = transcribe.NewHTTPClient(
			cfg.Transcriber.Endpoint,
			cfg.Transcriber.APIKey,
			cfg.Transcriber.Model,
			cfg.ParsedTranscriberTimeout(),
		)
	default:
		return nil, fmt.Errorf("unknown transcriber provider %q", cfg.Transcriber.Provider)
	}
	if err != nil {
		return nil, err
	}

	prom := metrics.Default()
	retrier := transcribe.NewRetrier(inner, cfg.Transcriber.MaxRetries, cfg.ParsedRetryBackoff())
	retrier.OnRetry(func(attempt int, err error) {
		prom.TranscriptionRetries.Inc()
	})
	return retrier, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ent0n29/synthdesk/internal/artifact"
	"github.com/ent0n29/synthdesk/internal/audio"
	"github.com/ent0n29/synthdesk/internal/config"
	"github.com/ent0n29/synthdesk/internal/contentcache"
	"github.com/ent0n29/synthdesk/internal/desktop"
	"github.com/ent0n29/synthdesk/internal/generation"
	"github.com/ent0n29/synthdesk/internal/httpapi"
	"github.com/ent0n29/synthdesk/internal/journal"
	"github.com/ent0n29/synthdesk/internal/live"
	"github.com/ent0n29/synthdesk/internal/logging"
	"github.com/ent0n29/synthdesk/internal/observability"
)

const liveInstruction = "You are the voice of a generative desktop. Answer briefly and conversationally."

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	journalStore, err := journal.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("journal store init failed: %w", err)
	}
	defer journalStore.Close()

	generator, configErr := newGenerator(ctx, cfg, logger)
	orchestrator := generation.NewOrchestrator(generator, generation.Options{
		PreviousContentBudget: cfg.PreviousContentBudget,
		WebSearchApps:         cfg.WebSearchApps,
	}, logger, metrics)

	coordinator := desktop.NewCoordinator(desktop.Deps{
		Orchestrator: orchestrator,
		Cache:        contentcache.New(cfg.StatelessAppID),
		Journal:      journalStore,
		Logger:       logger,
		Metrics:      metrics,
		MaxHistory:   cfg.MaxHistory,
		ConfigErr:    configErr,
	})
	defer coordinator.Close()

	bridge := audio.NewBridge()
	var devices audio.DeviceOpener = bridge
	if cfg.AudioRecordPath != "" {
		devices = audio.RecordingOpener{DeviceOpener: bridge, Path: cfg.AudioRecordPath}
		logger.Info("recording audio playback", zap.String("path", cfg.AudioRecordPath))
	}
	dialer, err := newDialer(cfg, logger)
	if err != nil {
		return err
	}

	backend, err := newArtifactBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	artifacts := artifact.NewService(backend, cfg.ArtifactRatePerSecond, cfg.ArtifactBurst, logger, metrics)

	// The API broadcasts audio transitions, so the manager is built after it.
	var api *httpapi.Server
	audioManager := audio.NewManager(audio.PipelineConfig{
		Devices: devices,
		Dialer:  dialer,
		Logger:  logger,
		Metrics: metrics,
		OnState: func(id string, state audio.State) {
			if api != nil {
				api.BroadcastAudioState(id, state)
			}
		},
	})
	defer func() { _ = audioManager.Stop() }()
	coordinator.SetAudio(audioManager)

	api = httpapi.New(cfg, httpapi.Deps{
		Desktop:   coordinator,
		Audio:     audioManager,
		Bridge:    bridge,
		Artifacts: artifacts,
		Journal:   journalStore,
		Metrics:   metrics,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("listen error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}
	logger.Info("shutdown complete")
	return nil
}

// newGenerator resolves GENERATOR_MODE. A missing credential is not fatal:
// the desktop starts and shows the returned error on every screen.
func newGenerator(ctx context.Context, cfg config.Config, logger *zap.Logger) (generation.Generator, error) {
	switch cfg.GeneratorMode {
	case "mock":
		logger.Info("content generator: mock")
		return generation.NewMockGenerator(), nil
	case "http":
		logger.Info("content generator: http", zap.String("url", cfg.GeneratorHTTPURL))
		return generation.NewHTTPGenerator(cfg.GeneratorHTTPURL, cfg.GeneratorHTTPStrict), nil
	case "auto":
		if cfg.GeminiAPIKey == "" {
			logger.Info("content generator: mock (GEMINI_API_KEY not set)")
			return generation.NewMockGenerator(), nil
		}
	}
	gen, err := generation.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiTextModel)
	if err != nil {
		logger.Error("content generator unavailable", zap.Error(err))
		return nil, err
	}
	logger.Info("content generator: gemini", zap.String("model", cfg.GeminiTextModel))
	return gen, nil
}

func newDialer(cfg config.Config, logger *zap.Logger) (audio.Dialer, error) {
	if cfg.AudioTransport == "echo" || (cfg.AudioTransport == "auto" && cfg.GeminiAPIKey == "") {
		logger.Info("audio transport: echo")
		return live.EchoDialer{}, nil
	}
	dialer, err := live.NewGeminiDialer(live.GeminiConfig{
		URL:               cfg.GeminiLiveURL,
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiLiveModel,
		Voice:             cfg.GeminiLiveVoice,
		SystemInstruction: liveInstruction,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("audio transport init failed: %w", err)
	}
	logger.Info("audio transport: gemini live", zap.String("model", cfg.GeminiLiveModel))
	return dialer, nil
}

func newArtifactBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (artifact.Backend, error) {
	if cfg.ArtifactMode == "mock" || (cfg.ArtifactMode == "auto" && cfg.GeminiAPIKey == "") {
		logger.Info("artifact backend: mock")
		return artifact.MockBackend{}, nil
	}
	backend, err := artifact.NewGeminiBackend(ctx, artifact.GeminiConfig{
		APIKey:          cfg.GeminiAPIKey,
		ImageModel:      cfg.GeminiImageModel,
		VideoModel:      cfg.GeminiVideoModel,
		IconModel:       cfg.GeminiIconModel,
		PollInterval:    cfg.VideoPollInterval,
		PollMaxInterval: cfg.VideoPollMaxInterval,
		VideoTimeout:    cfg.VideoGenerationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact backend init failed: %w", err)
	}
	return backend, nil
}

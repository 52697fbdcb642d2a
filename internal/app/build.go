package app

import (
	"context"
	"fmt"

	"github.com/akvinayaktiwari/veezy/internal/config"
	"github.com/akvinayaktiwari/veezy/internal/httpapi"
	"github.com/akvinayaktiwari/veezy/internal/llm"
	"github.com/akvinayaktiwari/veezy/internal/observability"
	"github.com/akvinayaktiwari/veezy/internal/session"
	"github.com/akvinayaktiwari/veezy/internal/transcriptstore"
	"github.com/akvinayaktiwari/veezy/internal/voice"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *voice.Orchestrator
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := transcriptstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	var generator voice.Generator
	if cfg.LLMHTTPURL != "" {
		generator = llm.NewHTTPGenerator(cfg.LLMHTTPURL)
	} else {
		generator = voice.NewMockGenerator()
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	pipelineCfg := voice.PipelineConfig{
		HistoryWindow:    cfg.HistoryWindow,
		GenerateAttempts: cfg.GenerateAttempts,
		BackoffBase:      cfg.BackoffBase,
		BackoffCap:       cfg.BackoffCap,
		FallbackReply:    cfg.FallbackReply,
	}

	orchestrator := voice.NewOrchestrator(
		sessions,
		voice.NewMockRecognizerProvider(),
		generator,
		voice.NewMockSynthesizer(),
		store,
		metrics,
		voice.RuntimeConfig{
			SampleRate:    cfg.SampleRate,
			WindowSamples: cfg.WindowSamples,
			GateThreshold: cfg.GateThreshold,
			QuietInterval: cfg.QuietInterval,
			Pipeline:      pipelineCfg,
		},
	)

	api := httpapi.New(cfg, sessions, orchestrator, metrics)

	cleanup := func() error {
		return store.Close()
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}

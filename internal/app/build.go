package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mfiorillo/choir/internal/config"
	"github.com/mfiorillo/choir/internal/httpapi"
	"github.com/mfiorillo/choir/internal/memory"
	"github.com/mfiorillo/choir/internal/observability"
	"github.com/mfiorillo/choir/internal/orchestrator"
	"github.com/mfiorillo/choir/internal/providers"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Engine   *orchestrator.Engine
	Store    memory.Store
	Registry *providers.Registry
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	registry := providers.DefaultRegistry()
	caller := providers.NewCaller(cfg.ProviderTimeout, logger)
	engine := orchestrator.New(registry, store, caller, metrics, logger, cfg.ProviderTimeout)

	api := httpapi.New(cfg, store, registry, engine, metrics, logger)

	cleanup := func() error {
		var errs []string
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Engine:   engine,
		Store:    store,
		Registry: registry,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}

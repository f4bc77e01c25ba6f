package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/config"
	"github.com/blackwell-systems/appregistry/internal/logging"
	"github.com/blackwell-systems/appregistry/internal/metrics"
	"github.com/blackwell-systems/appregistry/internal/provider"
	"github.com/blackwell-systems/appregistry/internal/registry"
	"github.com/blackwell-systems/appregistry/internal/store"
)

// env is everything a command needs to talk to the registry.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	store   *store.Store
	engine  *registry.Engine
}

// openEnv loads configuration, opens (and if needed migrates) the registry
// database and wires an engine around it.
func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	st, err := store.Open(cfg.DBPath, store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	p, err := newProvider(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	m := metrics.New()
	engine, err := registry.New(st, p, registry.Options{
		CacheSize: cfg.CacheSize,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create registry engine: %w", err)
	}

	return &env{cfg: cfg, logger: logger, metrics: m, store: st, engine: engine}, nil
}

// Close shuts the engine down before the store it publishes from.
func (e *env) Close() error {
	engineErr := e.engine.Close()
	storeErr := e.store.Close()
	_ = e.logger.Sync()
	if engineErr != nil {
		return engineErr
	}
	return storeErr
}

// newProvider picks the external command provider when one is configured
// and the manifest directory otherwise.
func newProvider(cfg *config.Config, logger *zap.Logger) (provider.Provider, error) {
	if cfg.ProviderCommand != "" {
		p, err := provider.NewCommandProvider(cfg.ProviderCommand)
		if err != nil {
			return nil, fmt.Errorf("invalid provider command: %w", err)
		}
		return p, nil
	}
	return provider.NewManifestProvider(cfg.ManifestDir, logger.Named("provider")), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

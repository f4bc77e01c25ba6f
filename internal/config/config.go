// Package config resolves appregistry settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "APPREGISTRY"

// Config holds all appregistry configuration. Empty paths are filled in
// under Dir() by Load.
type Config struct {
	DBPath          string        `envconfig:"DB"`
	ManifestDir     string        `envconfig:"MANIFESTS"`
	ProviderCommand string        `envconfig:"PROVIDER_CMD"`
	LaunchLog       string        `envconfig:"LAUNCH_LOG"`
	PIDFile         string        `envconfig:"PID_FILE"`
	DaemonLog       string        `envconfig:"DAEMON_LOG"`
	CacheSize       int           `envconfig:"CACHE_SIZE" default:"512"`
	FlushInterval   time.Duration `envconfig:"FLUSH_INTERVAL" default:"2s"`
	LaunchInterval  time.Duration `envconfig:"LAUNCH_INTERVAL" default:"30s"`
	MetricsAddr     string        `envconfig:"METRICS_ADDR"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"warn"`
	LogDevelopment  bool          `envconfig:"LOG_DEV" default:"false"`
}

// Dir returns the appregistry config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/appregistry if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "appregistry"), nil
}

// Load reads APPREGISTRY_* variables and fills in default paths.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	cfg.applyDefaults(dir)
	return &cfg, nil
}

// Default returns the configuration used when the environment sets nothing.
func Default() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		CacheSize:      512,
		FlushInterval:  2 * time.Second,
		LaunchInterval: 30 * time.Second,
		LogLevel:       "warn",
	}
	cfg.applyDefaults(dir)
	return cfg, nil
}

func (c *Config) applyDefaults(dir string) {
	defaults := []struct {
		field *string
		name  string
	}{
		{&c.DBPath, "registry.db"},
		{&c.ManifestDir, "manifests"},
		{&c.LaunchLog, "launches.log"},
		{&c.PIDFile, "watch.pid"},
		{&c.DaemonLog, "watch.log"},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = filepath.Join(dir, d.name)
		}
	}
}

// LaunchOffsetFile is where the watcher records how far it has read the
// launch log.
func (c *Config) LaunchOffsetFile() string {
	return c.LaunchLog + ".offset"
}

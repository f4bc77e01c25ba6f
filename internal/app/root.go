package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appregistry/internal/config"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var (
	dbPath       string
	manifestDir  string
	providerCmd  string
	outputFormat string
	logLevel     string

	// RootCmd is the root command for appregistry
	RootCmd = &cobra.Command{
		Use:   "appregistry",
		Short: "Keep a persistent application registry in sync with installed packages",
		Long: `appregistry maintains a registry of launchable applications (identity,
title, icon and launch count) and keeps it consistent with the packages the
package provider reports as installed.

Package changes arrive as added/changed/removed events, either from the
watcher on the manifest directory or from 'appregistry event'. Launches are
counted from the launch log written by appregistry-launch.

Quick Start:
  1. appregistry sync
  2. appregistry watch --daemon
  3. appregistry list --sort launches

Configuration is read from APPREGISTRY_* environment variables; the flags
below override them.`,
		Example: `  # Reconcile the whole registry against the provider
  appregistry sync

  # Tell the registry a package was updated
  appregistry event changed com.example

  # Show the most launched applications first
  appregistry list --sort launches`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if outputFormat != formatText && outputFormat != formatJSON {
				return fmt.Errorf("invalid --format %q: must be %q or %q", outputFormat, formatText, formatJSON)
			}
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "registry database path (default: ~/.config/appregistry/registry.db)")
	RootCmd.PersistentFlags().StringVar(&manifestDir, "manifests", "", "manifest directory read by the package provider")
	RootCmd.PersistentFlags().StringVar(&providerCmd, "provider-cmd", "", "external command that prints installed activities as JSON")
	RootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatText, "output format: text or json")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(syncCmd)
	RootCmd.AddCommand(eventCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(launchCmd)
	RootCmd.AddCommand(countCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(watchCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig reads the environment configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if manifestDir != "" {
		cfg.ManifestDir = manifestDir
	}
	if providerCmd != "" {
		cfg.ProviderCommand = providerCmd
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

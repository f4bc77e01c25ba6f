package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appregistry/internal/config"
	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/launch"
	"github.com/blackwell-systems/appregistry/internal/store"
)

var (
	launchKind string

	launchCmd = &cobra.Command{
		Use:   "launch <identity|alias>",
		Short: "Record a launch of an application",
		Long: `Record one launch directly in the registry, bypassing the launch log.

Only main entry points are counted; shortcut and other launches are
accepted and ignored. An application that is not registered yet is created
with its class name as title.

Names are resolved through ~/.config/appregistry/aliases first, then parsed
as "package/class".`,
		Example: `  appregistry launch com.example/.Main
  appregistry launch mail`,
		Args: cobra.ExactArgs(1),
		RunE: runLaunch,
	}

	countCmd = &cobra.Command{
		Use:   "count <identity|alias>",
		Short: "Show the launch count of an application",
		Args:  cobra.ExactArgs(1),
		RunE:  runCount,
	}
)

func init() {
	launchCmd.Flags().StringVar(&launchKind, "kind", string(launch.KindMain), "launch kind: main, shortcut or other")
}

// resolveName turns a command-line name into an identity using the alias
// file in the config directory.
func resolveName(name string) (identity.Key, error) {
	dir, err := config.Dir()
	if err != nil {
		return identity.Key{}, err
	}
	aliases, err := config.LoadAliases(dir)
	if err != nil {
		return identity.Key{}, fmt.Errorf("failed to load aliases: %w", err)
	}
	key, ok := aliases.Resolve(name)
	if !ok {
		return identity.Key{}, fmt.Errorf("%q is neither an alias nor a package/class identity", name)
	}
	return key, nil
}

func runLaunch(cmd *cobra.Command, args []string) error {
	kind, err := launch.ParseKind(launchKind)
	if err != nil {
		return err
	}
	key, err := resolveName(args[0])
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.engine.RecordLaunch(cmd.Context(), launch.Launch{Identity: key, Kind: kind}); err != nil {
		return fmt.Errorf("failed to record launch: %w", err)
	}
	if kind != launch.KindMain {
		fmt.Fprintf(cmd.OutOrStdout(), "%s launch of %s not counted\n", kind, key)
		return nil
	}
	return printCount(cmd, e, key)
}

func runCount(cmd *cobra.Command, args []string) error {
	key, err := resolveName(args[0])
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	return printCount(cmd, e, key)
}

func printCount(cmd *cobra.Command, e *env, key identity.Key) error {
	n, err := e.engine.LookupLaunchCount(cmd.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s is not registered", key)
	}
	if err != nil {
		return fmt.Errorf("failed to read launch count: %w", err)
	}

	if outputFormat == formatJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"identity":     key.String(),
			"launch_count": n,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", key, n)
	return nil
}

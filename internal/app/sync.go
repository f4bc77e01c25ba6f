package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appregistry/internal/output"
	"github.com/blackwell-systems/appregistry/internal/reconciler"
	"github.com/blackwell-systems/appregistry/internal/store"
)

var (
	syncQuiet bool

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the whole registry against the package provider",
		Long: `Run a full rescan: every installed package is queried from the provider
and diffed against the registry in a single transaction.

Applications that disappeared are removed, new ones are added with a launch
count of zero and changed titles or icons are updated in place. Record ids
and launch counts of surviving applications are preserved.

On an empty registry this performs the first-run population.`,
		Example: `  # Reconcile against ~/.config/appregistry/manifests
  appregistry sync

  # Reconcile against an external query command
  appregistry sync --provider-cmd "pm query --json"`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}

	eventCmd = &cobra.Command{
		Use:   "event <added|changed|removed|rescan> [package]",
		Short: "Apply a single package event",
		Long: `Apply one package lifecycle event to the registry.

  added    insert the package's applications, keeping existing records
  changed  diff the package against the provider
  removed  drop every record of the package
  rescan   reconcile all packages (same as 'appregistry sync')`,
		Example: `  appregistry event added com.example
  appregistry event removed com.example`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runEvent,
	}
)

func init() {
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "suppress progress output")
}

func runSync(cmd *cobra.Command, args []string) error {
	return applyEvent(cmd, reconciler.Event{Kind: reconciler.FullRescan})
}

func runEvent(cmd *cobra.Command, args []string) error {
	kind, err := reconciler.ParseEventKind(args[0])
	if err != nil {
		return err
	}

	ev := reconciler.Event{Kind: kind}
	switch {
	case kind == reconciler.FullRescan && len(args) == 2:
		return fmt.Errorf("rescan takes no package argument")
	case kind != reconciler.FullRescan && len(args) != 2:
		return fmt.Errorf("%s requires a package argument", kind)
	case len(args) == 2:
		ev.Package = args[1]
	}
	return applyEvent(cmd, ev)
}

func applyEvent(cmd *cobra.Command, ev reconciler.Event) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	var spinner *output.Spinner
	if !syncQuiet && outputFormat == formatText {
		spinner = output.NewSpinner(fmt.Sprintf("Applying %s", ev))
		spinner.SetWriter(cmd.ErrOrStderr())
		spinner.Start()
	}

	change, err := e.engine.Handle(cmd.Context(), ev)
	if spinner != nil {
		if err != nil {
			spinner.Stop()
		} else {
			spinner.StopWithMessage("✓ Registry reconciled")
		}
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", ev, err)
	}

	if outputFormat == formatJSON {
		if change == nil {
			change = &store.ChangeRecord{}
		}
		return writeJSON(cmd.OutOrStdout(), change)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderChangeDetail(change))
	return nil
}

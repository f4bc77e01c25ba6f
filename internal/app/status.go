package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appregistry/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry size, paths and watcher state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

type statusJSON struct {
	Records      int    `json:"records"`
	Database     string `json:"database"`
	Manifests    string `json:"manifests"`
	Provider     string `json:"provider,omitempty"`
	LaunchLog    string `json:"launch_log"`
	WatchRunning bool   `json:"watch_running"`
	WatchPIDFile string `json:"watch_pid_file"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	count, err := e.store.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	running, err := watcher.IsDaemonRunning(e.cfg.PIDFile)
	if err != nil {
		return fmt.Errorf("failed to check watcher status: %w", err)
	}

	st := statusJSON{
		Records:      count,
		Database:     e.cfg.DBPath,
		Manifests:    e.cfg.ManifestDir,
		Provider:     e.cfg.ProviderCommand,
		LaunchLog:    e.cfg.LaunchLog,
		WatchRunning: running,
		WatchPIDFile: e.cfg.PIDFile,
	}
	if outputFormat == formatJSON {
		return writeJSON(cmd.OutOrStdout(), st)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Records:    %d\n", st.Records)
	fmt.Fprintf(out, "Database:   %s\n", st.Database)
	if st.Provider != "" {
		fmt.Fprintf(out, "Provider:   %s\n", st.Provider)
	} else {
		fmt.Fprintf(out, "Manifests:  %s\n", st.Manifests)
	}
	fmt.Fprintf(out, "Launch log: %s\n", st.LaunchLog)
	if st.WatchRunning {
		fmt.Fprintf(out, "Watcher:    running (PID file: %s)\n", st.WatchPIDFile)
	} else {
		fmt.Fprintln(out, "Watcher:    stopped (run 'appregistry watch --daemon')")
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/appregistry/internal/config"
	"github.com/blackwell-systems/appregistry/internal/output"
	"github.com/blackwell-systems/appregistry/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool
	watchMetricsAddr string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Keep the registry in sync as packages and launches change",
		Long: `Watch the manifest directory and the launch log and apply changes to the
registry as they happen.

On start the watcher runs a full rescan and ingests launches already in the
log. Afterwards filesystem activity under each package directory is
coalesced and applied as an added, changed or removed event, and the launch
log is read incrementally.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process
  • Stop: Stop a running daemon

With --metrics-addr the watcher also serves Prometheus metrics on /metrics.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  appregistry watch

  # Run as background daemon with metrics
  appregistry watch --daemon --metrics-addr 127.0.0.1:9464

  # Stop running daemon
  appregistry watch --stop`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.config/appregistry/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.config/appregistry/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchPIDFile == "" {
		watchPIDFile = cfg.PIDFile
	}
	if watchLogFile == "" {
		watchLogFile = cfg.DaemonLog
	}
	if watchMetricsAddr == "" {
		watchMetricsAddr = cfg.MetricsAddr
	}

	switch {
	case watchStop:
		return stopWatchDaemon(cmd)
	case watchDaemonChild:
		// Output goes to the daemon log file.
		return watcher.RunDaemon(context.Background(), watchPIDFile, runWatchServices)
	case watchDaemon:
		return startWatchDaemon(cmd)
	default:
		return runWatchForeground(cmd)
	}
}

func stopWatchDaemon(cmd *cobra.Command) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon...")
	spinner.SetWriter(cmd.ErrOrStderr())
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command) error {
	for _, path := range []string{watchPIDFile, watchLogFile} {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	spinner := output.NewSpinner("Starting daemon...")
	spinner.SetWriter(cmd.ErrOrStderr())
	if err := watcher.StartDaemon(watchPIDFile, watchLogFile, daemonArgs(os.Args[1:])); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRegistry watcher started\n")
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: appregistry watch --stop\n")
	return nil
}

func runWatchForeground(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Watching for package and launch changes (press Ctrl+C to stop)...")
	if err := runWatchServices(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Watcher stopped")
	return nil
}

// runWatchServices runs the watcher and, when configured, the metrics
// server until ctx is done or one of them fails.
func runWatchServices(ctx context.Context) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	aliases, err := config.LoadAliases(dir)
	if err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}

	w, err := watcher.New(e.engine, watcher.Options{
		ManifestDir:    e.cfg.ManifestDir,
		LaunchLog:      e.cfg.LaunchLog,
		OffsetFile:     e.cfg.LaunchOffsetFile(),
		Aliases:        aliases,
		FlushInterval:  e.cfg.FlushInterval,
		LaunchInterval: e.cfg.LaunchInterval,
		Logger:         e.logger.Named("watcher"),
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})

	if watchMetricsAddr != "" {
		srv := &http.Server{
			Addr:              watchMetricsAddr,
			Handler:           metricsMux(e),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			e.logger.Info("serving metrics", zap.String("addr", watchMetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux(e *env) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	return mux
}

// daemonArgs strips the flags that only make sense to the parent process.
func daemonArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--daemon" || a == "--daemon=true" {
			continue
		}
		out = append(out, a)
	}
	return out
}

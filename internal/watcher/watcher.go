package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/config"
	"github.com/blackwell-systems/appregistry/internal/launch"
	"github.com/blackwell-systems/appregistry/internal/reconciler"
	"github.com/blackwell-systems/appregistry/internal/store"
)

// Target receives the events the watcher produces. *registry.Engine
// implements it.
type Target interface {
	Handle(ctx context.Context, ev reconciler.Event) (*store.ChangeRecord, error)
	RecordLaunch(ctx context.Context, l launch.Launch) error
}

// Options configures a Watcher.
type Options struct {
	// ManifestDir is the provider root; every sub-directory is a package.
	ManifestDir string

	// LaunchLog and OffsetFile locate the launch log. Launch processing is
	// disabled when LaunchLog is empty.
	LaunchLog  string
	OffsetFile string
	Aliases    *config.AliasConfig

	// FlushInterval batches filesystem events per package.
	FlushInterval time.Duration
	// LaunchInterval is how often the launch log is read.
	LaunchInterval time.Duration

	Logger *zap.Logger
}

// Watcher turns filesystem activity under the manifest directory into
// package events and feeds launch-log entries to the launch counter.
type Watcher struct {
	target Target
	opts   Options
	logger *zap.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	known   map[string]bool
}

// New creates a new Watcher instance.
func New(target Target, opts Options) (*Watcher, error) {
	if target == nil {
		return nil, fmt.Errorf("target cannot be nil")
	}
	if opts.ManifestDir == "" {
		return nil, fmt.Errorf("manifest directory cannot be empty")
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.LaunchInterval <= 0 {
		opts.LaunchInterval = 30 * time.Second
	}
	if opts.OffsetFile == "" && opts.LaunchLog != "" {
		opts.OffsetFile = opts.LaunchLog + ".offset"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		target:  target,
		opts:    opts,
		logger:  logger,
		stopCh:  make(chan struct{}),
		pending: make(map[string]struct{}),
		known:   make(map[string]bool),
	}, nil
}

// Start runs a full rescan, processes launches already in the log and then
// watches for changes in the background.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.ManifestDir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.opts.ManifestDir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.opts.ManifestDir, err)
	}
	w.fsw = fsw

	entries, err := os.ReadDir(w.opts.ManifestDir)
	if err != nil {
		fsw.Close()
		return fmt.Errorf("failed to read manifest directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			w.known[e.Name()] = true
			w.watchPackage(e.Name())
		}
	}

	if _, err := w.target.Handle(ctx, reconciler.Event{Kind: reconciler.FullRescan}); err != nil {
		w.logger.Error("initial rescan failed", zap.Error(err))
	}
	w.processLaunches(ctx)

	w.wg.Add(2)
	go w.runEvents()
	go w.runTickers(ctx)

	return nil
}

// Stop halts the watcher, flushing pending package events and the launch log.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

func (w *Watcher) runEvents() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.observe(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		case <-w.stopCh:
			return
		}
	}
}

// runTickers flushes package events and reads the launch log on their
// tickers, and does a final pass of both when stopped.
func (w *Watcher) runTickers(ctx context.Context) {
	defer w.wg.Done()

	// Stop must drain even when ctx is already cancelled.
	ctx = context.WithoutCancel(ctx)

	flush := time.NewTicker(w.opts.FlushInterval)
	defer flush.Stop()
	launches := time.NewTicker(w.opts.LaunchInterval)
	defer launches.Stop()

	for {
		select {
		case <-flush.C:
			w.Flush(ctx)
		case <-launches.C:
			w.processLaunches(ctx)
		case <-w.stopCh:
			w.Flush(ctx)
			w.processLaunches(ctx)
			return
		}
	}
}

// observe records which package an event touched.
func (w *Watcher) observe(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.opts.ManifestDir, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	pkg := strings.Split(rel, string(filepath.Separator))[0]
	if hidden(pkg) {
		return
	}

	// A new package directory needs its own watch to see manifest writes.
	if rel == pkg && ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.watchPackage(pkg)
		}
	}

	w.mu.Lock()
	w.pending[pkg] = struct{}{}
	w.mu.Unlock()
}

// Flush turns pending package activity into events. A package whose
// directory is gone is removed, one seen for the first time is added, and
// anything else is changed.
func (w *Watcher) Flush(ctx context.Context) {
	w.mu.Lock()
	pkgs := make([]string, 0, len(w.pending))
	for pkg := range w.pending {
		pkgs = append(pkgs, pkg)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, pkg := range pkgs {
		ev, ok := w.classify(pkg)
		if !ok {
			continue
		}
		if _, err := w.target.Handle(ctx, ev); err != nil {
			w.logger.Error("package event failed", zap.Stringer("event", ev), zap.Error(err))
		}
	}
}

func (w *Watcher) classify(pkg string) (reconciler.Event, bool) {
	_, err := os.Stat(filepath.Join(w.opts.ManifestDir, pkg))
	exists := err == nil

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case !exists && w.known[pkg]:
		delete(w.known, pkg)
		return reconciler.Event{Kind: reconciler.PackageRemoved, Package: pkg}, true
	case !exists:
		return reconciler.Event{}, false
	case !w.known[pkg]:
		w.known[pkg] = true
		return reconciler.Event{Kind: reconciler.PackageAdded, Package: pkg}, true
	default:
		return reconciler.Event{Kind: reconciler.PackageChanged, Package: pkg}, true
	}
}

func (w *Watcher) watchPackage(pkg string) {
	if w.fsw == nil {
		return
	}
	if err := w.fsw.Add(filepath.Join(w.opts.ManifestDir, pkg)); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("failed to watch package directory", zap.String("package", pkg), zap.Error(err))
	}
}

func (w *Watcher) processLaunches(ctx context.Context) {
	if w.opts.LaunchLog == "" {
		return
	}
	n, err := ProcessLaunchLog(ctx, w.target, LaunchLogOptions{
		LogPath:    w.opts.LaunchLog,
		OffsetPath: w.opts.OffsetFile,
		Aliases:    w.opts.Aliases,
		Logger:     w.logger,
	})
	if err != nil {
		w.logger.Error("launch log processing failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Debug("processed launches", zap.Int("launches", n))
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

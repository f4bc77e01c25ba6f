// Package watcher feeds the registry engine from the outside world.
//
// Package events come from fsnotify on the manifest directory: activity
// under a package sub-directory is coalesced and flushed on a ticker as an
// added, changed or removed event. Launches come from the launch log that
// cmd/appregistry-launch appends to; the watcher reads it incrementally,
// remembering its byte offset in a side file that is replaced atomically.
//
// Key features:
//   - Full rescan on start, so a first run populates an empty registry
//   - Per-package event coalescing
//   - Crash-safe offset tracking (temp file + rename pattern)
//   - Daemon mode support with PID file management
//   - Graceful shutdown with SIGTERM/SIGINT handling
//
// Example usage:
//
//	w, err := watcher.New(engine, watcher.Options{
//		ManifestDir: cfg.ManifestDir,
//		LaunchLog:   cfg.LaunchLog,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package watcher

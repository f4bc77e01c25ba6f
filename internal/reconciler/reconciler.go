// Package reconciler keeps the registry store in line with the live set of
// applications reported by a provider.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/iconcache"
	"github.com/blackwell-systems/appregistry/internal/metrics"
	"github.com/blackwell-systems/appregistry/internal/provider"
	"github.com/blackwell-systems/appregistry/internal/store"
)

// ErrProvider wraps a failed live-entry query. The registry is untouched
// when a pass fails with it.
var ErrProvider = errors.New("provider query failed")

// Options configures a Reconciler. Every field is optional.
type Options struct {
	Cache   *iconcache.Cache
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Reconciler runs reconciliation passes. A pass that has started always
// runs to completion or failure; failed passes are not retried.
type Reconciler struct {
	store    *store.Store
	provider provider.Provider
	cache    *iconcache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a Reconciler for the given store and provider.
func New(s *store.Store, p provider.Provider, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    s,
		provider: p,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Handle dispatches ev to the matching pass.
func (r *Reconciler) Handle(ctx context.Context, ev Event) (*store.ChangeRecord, error) {
	if ev.Kind != FullRescan && strings.TrimSpace(ev.Package) == "" {
		return nil, fmt.Errorf("%s event without a package", ev.Kind)
	}

	switch ev.Kind {
	case PackageAdded:
		return r.PackageAdded(ctx, ev.Package)
	case PackageChanged:
		return r.PackageChanged(ctx, ev.Package)
	case PackageRemoved:
		return r.PackageRemoved(ctx, ev.Package)
	case FullRescan:
		return r.FullRescan(ctx)
	default:
		return nil, fmt.Errorf("unsupported event kind %s", ev.Kind)
	}
}

// PackageAdded inserts every live entry of pkg. Identities already in the
// registry are skipped, so a repeated delivery changes nothing.
func (r *Reconciler) PackageAdded(ctx context.Context, pkg string) (change *store.ChangeRecord, err error) {
	log, done := r.begin(PackageAdded, pkg)
	defer func() { done(change, err) }()

	live, err := r.queryLive(ctx, pkg, log)
	if err != nil {
		return nil, err
	}

	batch := store.Batch{SkipDuplicates: true}
	for _, e := range live {
		batch.Added = append(batch.Added, store.NewRecord{Identity: e.key, Title: e.title, Icon: e.icon})
	}

	change, err = r.store.ApplyBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to add package %s: %w", pkg, err)
	}

	r.warm(batch, nil)
	return change, nil
}

// PackageChanged brings the records of pkg in line with its live entries in
// one transaction. Stored ids and launch counts of surviving identities are
// preserved.
func (r *Reconciler) PackageChanged(ctx context.Context, pkg string) (change *store.ChangeRecord, err error) {
	log, done := r.begin(PackageChanged, pkg)
	defer func() { done(change, err) }()

	change, err = r.sync(ctx, pkg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile package %s: %w", pkg, err)
	}
	return change, nil
}

// FullRescan runs the PackageChanged diff across every package. It also
// populates an empty registry on first run.
func (r *Reconciler) FullRescan(ctx context.Context) (change *store.ChangeRecord, err error) {
	log, done := r.begin(FullRescan, "")
	defer func() { done(change, err) }()

	change, err = r.sync(ctx, "", log)
	if err != nil {
		return nil, fmt.Errorf("failed to rescan: %w", err)
	}
	return change, nil
}

// PackageRemoved deletes every record of pkg and flushes the icon cache.
// The published change names the package even when nothing was stored.
func (r *Reconciler) PackageRemoved(ctx context.Context, pkg string) (change *store.ChangeRecord, err error) {
	log, done := r.begin(PackageRemoved, pkg)
	defer func() { done(change, err) }()

	removed, err := r.store.DeleteByPackage(ctx, pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to remove package %s: %w", pkg, err)
	}
	log.Debug("deleted package records", zap.Int("records", len(removed)))

	if r.cache != nil {
		r.cache.Flush()
	}
	return &store.ChangeRecord{RemovedPackage: pkg}, nil
}

func (r *Reconciler) sync(ctx context.Context, pkg string, log *zap.Logger) (*store.ChangeRecord, error) {
	live, err := r.queryLive(ctx, pkg, log)
	if err != nil {
		return nil, err
	}

	var (
		batch    store.Batch
		storedBy map[int64]*store.Record
	)
	change, err := r.store.Sync(ctx, pkg, func(stored []*store.Record) (store.Batch, error) {
		batch, storedBy = plan(stored, live)
		return batch, nil
	})
	if err != nil {
		return nil, err
	}

	r.warm(batch, storedBy)
	if r.cache != nil {
		for _, key := range change.RemovedIdentities {
			r.cache.Invalidate(key)
		}
	}
	return change, nil
}

// warm pre-populates the cache with the titles and icons just written.
func (r *Reconciler) warm(batch store.Batch, storedBy map[int64]*store.Record) {
	if r.cache == nil {
		return
	}
	for _, a := range batch.Added {
		r.cache.Put(a.Identity, a.Title, a.Icon)
	}
	for _, u := range batch.Updated {
		if rec, ok := storedBy[u.ID]; ok {
			r.cache.Put(rec.Identity, u.Title, u.Icon)
		}
	}
}

func (r *Reconciler) queryLive(ctx context.Context, pkg string, log *zap.Logger) ([]liveEntry, error) {
	entries, err := r.provider.QueryLiveEntries(ctx, pkg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	live := prepare(entries, pkg, log)
	log.Debug("queried live entries", zap.Int("reported", len(entries)), zap.Int("kept", len(live)))
	return live, nil
}

// begin tags a pass with a correlation id and returns the completion hook
// that logs and records its outcome.
func (r *Reconciler) begin(kind EventKind, pkg string) (*zap.Logger, func(*store.ChangeRecord, error)) {
	log := r.logger.With(
		zap.String("pass", uuid.NewString()),
		zap.Stringer("event", kind),
	)
	if pkg != "" {
		log = log.With(zap.String("package", pkg))
	}
	start := time.Now()

	return log, func(change *store.ChangeRecord, err error) {
		r.metrics.ObservePass(kind.String(), start, err)
		if err != nil {
			log.Error("reconciliation failed", zap.Error(err))
			return
		}
		removed := len(change.RemovedIdentities)
		r.metrics.ObserveChanges(len(change.AddedIDs), len(change.UpdatedIDs), removed)
		log.Info("reconciliation finished",
			zap.Int("added", len(change.AddedIDs)),
			zap.Int("updated", len(change.UpdatedIDs)),
			zap.Int("removed", removed),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

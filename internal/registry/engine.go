// Package registry assembles the store, provider, icon cache, reconciler,
// launch counter and change notifier into one engine.
package registry

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/iconcache"
	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/launch"
	"github.com/blackwell-systems/appregistry/internal/metrics"
	"github.com/blackwell-systems/appregistry/internal/notify"
	"github.com/blackwell-systems/appregistry/internal/provider"
	"github.com/blackwell-systems/appregistry/internal/reconciler"
	"github.com/blackwell-systems/appregistry/internal/store"
)

// Options configures an Engine. Zero values are usable.
type Options struct {
	CacheSize int
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// View is a record as presented to consumers, with title and icon taken
// from the icon cache.
type View struct {
	ID           int64
	Identity     identity.Key
	Title        string
	Icon         []byte
	IconFallback bool
	LaunchCount  int64
}

// Engine is the entry point for embedders. The store is owned by the
// caller; Close does not close it.
type Engine struct {
	store      *store.Store
	notifier   *notify.Notifier
	cache      *iconcache.Cache
	reconciler *reconciler.Reconciler
	counter    *launch.Counter
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New wires an engine around s and p and installs its notifier as the
// store's publisher.
func New(s *store.Store, p provider.Provider, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := iconcache.New(iconcache.ProviderResolver{Provider: p}, iconcache.Options{
		Size:    opts.CacheSize,
		Metrics: opts.Metrics,
		Logger:  logger.Named("iconcache"),
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:    s,
		notifier: notify.New(logger.Named("notify")),
		cache:    cache,
		metrics:  opts.Metrics,
		logger:   logger,
	}
	e.reconciler = reconciler.New(s, p, reconciler.Options{
		Cache:   cache,
		Metrics: opts.Metrics,
		Logger:  logger.Named("reconciler"),
	})
	e.counter = launch.NewCounter(s, opts.Metrics, logger.Named("launch"))

	s.SetPublisher(e)
	return e, nil
}

// Publish implements store.Publisher.
func (e *Engine) Publish(change *store.ChangeRecord) {
	e.metrics.Published()
	e.notifier.Publish(change)
}

// Subscribe registers handler for every change committed from now on.
func (e *Engine) Subscribe(handler notify.Handler) (unsubscribe func()) {
	return e.notifier.Subscribe(handler)
}

// Handle runs the reconciliation pass for ev.
func (e *Engine) Handle(ctx context.Context, ev reconciler.Event) (*store.ChangeRecord, error) {
	return e.reconciler.Handle(ctx, ev)
}

// FullRescan reconciles every package.
func (e *Engine) FullRescan(ctx context.Context) (*store.ChangeRecord, error) {
	return e.reconciler.FullRescan(ctx)
}

// RecordLaunch counts a launch.
func (e *Engine) RecordLaunch(ctx context.Context, l launch.Launch) error {
	return e.counter.RecordLaunch(ctx, l)
}

// LookupLaunchCount returns the launch count of key, or store.ErrNotFound.
func (e *Engine) LookupLaunchCount(ctx context.Context, key identity.Key) (int64, error) {
	return e.counter.LaunchCount(ctx, key)
}

// ListAll returns every record ordered by id. Titles and icons come from
// the cache; uncached records are seeded from their stored icon, and
// resolved through the provider when none is stored. A stored title is kept
// when resolution falls back.
func (e *Engine) ListAll(ctx context.Context) ([]View, error) {
	records, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry: %w", err)
	}
	e.metrics.SetRecords(len(records))

	views := make([]View, 0, len(records))
	for _, rec := range records {
		entry, ok := e.cache.Peek(rec.Identity)
		switch {
		case ok:
		case len(rec.Icon) > 0:
			entry = e.cache.Put(rec.Identity, rec.Title, rec.Icon)
		default:
			entry = e.cache.Get(ctx, rec.Identity)
		}
		if entry.Fallback && rec.Title != "" {
			entry.Title = rec.Title
		}

		views = append(views, View{
			ID:           rec.ID,
			Identity:     rec.Identity,
			Title:        entry.Title,
			Icon:         entry.Icon,
			IconFallback: entry.Fallback,
			LaunchCount:  rec.LaunchCount,
		})
	}
	return views, nil
}

// Cache exposes the icon cache.
func (e *Engine) Cache() *iconcache.Cache {
	return e.cache
}

// Close detaches the engine from the store and waits for subscribers to
// drain their queues.
func (e *Engine) Close() error {
	e.store.SetPublisher(nil)
	e.notifier.Close()
	return nil
}

// SortByLaunches orders views by launch count, most launched first, then
// by id.
func SortByLaunches(views []View) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].LaunchCount != views[j].LaunchCount {
			return views[i].LaunchCount > views[j].LaunchCount
		}
		return views[i].ID < views[j].ID
	})
}

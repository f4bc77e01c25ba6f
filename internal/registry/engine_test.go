package registry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blackwell-systems/appregistry/internal/icon"
	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/launch"
	"github.com/blackwell-systems/appregistry/internal/metrics"
	"github.com/blackwell-systems/appregistry/internal/provider"
	"github.com/blackwell-systems/appregistry/internal/reconciler"
	"github.com/blackwell-systems/appregistry/internal/store"
)

type harness struct {
	engine   *Engine
	store    *store.Store
	provider *provider.Memory
	metrics  *metrics.Metrics
	changes  chan *store.ChangeRecord
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mem := provider.NewMemory()
	m := metrics.New()
	e, err := New(s, mem, Options{Metrics: m, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	changes := make(chan *store.ChangeRecord, 32)
	e.Subscribe(func(c *store.ChangeRecord) { changes <- c })

	return &harness{engine: e, store: s, provider: mem, metrics: m, changes: changes}
}

func (h *harness) next(t *testing.T) *store.ChangeRecord {
	t.Helper()
	select {
	case c := <-h.changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change record published")
		return nil
	}
}

func (h *harness) quiet(t *testing.T) {
	t.Helper()
	select {
	case c := <-h.changes:
		t.Fatalf("unexpected change record: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

var mainActivity = identity.MustNew("com.example", "MainActivity")

func TestEngine_Scenarios(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.Set("com.example", provider.LiveEntry{Identity: mainActivity, Title: "Example"})
	_, err := h.engine.Handle(ctx, reconciler.Event{Kind: reconciler.PackageAdded, Package: "com.example"})
	require.NoError(t, err)
	assert.Equal(t, &store.ChangeRecord{AddedIDs: []int64{1}}, h.next(t))

	views, err := h.engine.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].ID)
	assert.Equal(t, "Example", views[0].Title)
	assert.Equal(t, int64(0), views[0].LaunchCount)

	h.provider.Set("com.example", provider.LiveEntry{Identity: mainActivity, Title: "Example Pro"})
	_, err = h.engine.Handle(ctx, reconciler.Event{Kind: reconciler.PackageChanged, Package: "com.example"})
	require.NoError(t, err)
	assert.Equal(t, &store.ChangeRecord{UpdatedIDs: []int64{1}}, h.next(t))

	views, err = h.engine.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Example Pro", views[0].Title)

	h.provider.Remove("com.example")
	_, err = h.engine.Handle(ctx, reconciler.Event{Kind: reconciler.PackageRemoved, Package: "com.example"})
	require.NoError(t, err)
	assert.Equal(t, &store.ChangeRecord{RemovedPackage: "com.example"}, h.next(t))

	_, err = h.engine.LookupLaunchCount(ctx, mainActivity)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.ChangesPublished))
}

func TestEngine_EmptyDiffPublishesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.Set("com.example", provider.LiveEntry{Identity: mainActivity, Title: "Example"})
	_, err := h.engine.FullRescan(ctx)
	require.NoError(t, err)
	h.next(t)

	_, err = h.engine.FullRescan(ctx)
	require.NoError(t, err)
	h.quiet(t)
}

func TestEngine_LaunchMonotonicAcrossReconciliation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.provider.Set("com.example", provider.LiveEntry{Identity: mainActivity, Title: "Example"})
	_, err := h.engine.FullRescan(ctx)
	require.NoError(t, err)

	var last int64
	for i := 1; i <= 5; i++ {
		require.NoError(t, h.engine.RecordLaunch(ctx, launch.Launch{Identity: mainActivity, Kind: launch.KindMain}))
		if i%2 == 0 {
			h.provider.Set("com.example", provider.LiveEntry{Identity: mainActivity, Title: "Example"})
			_, err := h.engine.Handle(ctx, reconciler.Event{Kind: reconciler.PackageChanged, Package: "com.example"})
			require.NoError(t, err)
		}
		n, err := h.engine.LookupLaunchCount(ctx, mainActivity)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, last)
		last = n
	}
	assert.Equal(t, int64(5), last)
}

func TestEngine_ListAllFallsBackForUnknownIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Launched before any install event reached the registry.
	deepLink := identity.MustNew("com.deeplink", ".Entry")
	require.NoError(t, h.engine.RecordLaunch(ctx, launch.Launch{Identity: deepLink, Kind: launch.KindMain}))

	views, err := h.engine.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].IconFallback)
	assert.True(t, icon.IsFallback(views[0].Icon))
	assert.Equal(t, "com.deeplink.Entry", views[0].Title)
	assert.Equal(t, int64(1), views[0].LaunchCount)
	assert.True(t, h.engine.Cache().IsFallback(deepLink))
}

func TestEngine_ListAllSeedsFromStoredIcon(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.store.Insert(ctx, mainActivity, "Stored", []byte{1, 2, 3})
	require.NoError(t, err)

	views, err := h.engine.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, []byte{1, 2, 3}, views[0].Icon)
	assert.False(t, views[0].IconFallback)
	assert.Equal(t, 0, h.provider.Queries())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RegistryRecords))
}

func TestSortByLaunches(t *testing.T) {
	views := []View{
		{ID: 1, LaunchCount: 2},
		{ID: 2, LaunchCount: 5},
		{ID: 3, LaunchCount: 2},
		{ID: 4},
	}
	SortByLaunches(views)

	var ids []int64
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []int64{2, 1, 3, 4}, ids)
}

func TestEngine_CloseStopsDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Close())

	_, err := h.store.Insert(ctx, mainActivity, "After close", nil)
	require.NoError(t, err)
	h.quiet(t)
}

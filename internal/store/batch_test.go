package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/appregistry/internal/identity"
)

func TestApplyBatch_RemovesUpdatesAndAdds(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	mainID, err := s.Insert(ctx, exampleMain, "Example", nil)
	require.NoError(t, err)
	settingsID, err := s.Insert(ctx, exampleSettings, "Settings", nil)
	require.NoError(t, err)
	require.NoError(t, s.IncrementLaunchCount(ctx, mainID))

	change, err := s.ApplyBatch(ctx, Batch{
		RemovedIDs: []int64{settingsID, 404},
		Updated:    []Update{{ID: mainID, Title: "Example 2", Icon: []byte{9}}},
		Added:      []NewRecord{{Identity: otherMain, Title: "Other"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []identity.Key{exampleSettings}, change.RemovedIdentities)
	assert.Equal(t, []int64{mainID}, change.UpdatedIDs)
	require.Len(t, change.AddedIDs, 1)
	assert.Greater(t, change.AddedIDs[0], settingsID)

	rec, err := s.Lookup(ctx, exampleMain)
	require.NoError(t, err)
	assert.Equal(t, "Example 2", rec.Title)
	assert.Equal(t, []byte{9}, rec.Icon)
	assert.Equal(t, int64(1), rec.LaunchCount)

	_, err = s.Lookup(ctx, exampleSettings)
	assert.ErrorIs(t, err, ErrNotFound)

	changes := pub.all()
	assert.Same(t, change, changes[len(changes)-1])
}

func TestApplyBatch_EmptyPublishesNothing(t *testing.T) {
	s, pub := newTestStore(t)

	change, err := s.ApplyBatch(context.Background(), Batch{})
	require.NoError(t, err)
	assert.True(t, change.Empty())
	assert.Empty(t, pub.all())
}

func TestApplyBatch_DuplicateFailsWholeBatch(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, exampleMain, "Example", nil)
	require.NoError(t, err)

	_, err = s.ApplyBatch(ctx, Batch{Added: []NewRecord{
		{Identity: otherMain, Title: "Other"},
		{Identity: exampleMain, Title: "Again"},
	}})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = s.Lookup(ctx, otherMain)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, pub.all(), 1)
}

func TestApplyBatch_SkipDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, exampleMain, "Example", nil)
	require.NoError(t, err)

	change, err := s.ApplyBatch(ctx, Batch{
		SkipDuplicates: true,
		Added: []NewRecord{
			{Identity: exampleMain, Title: "Again"},
			{Identity: exampleSettings, Title: "Settings"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, change.AddedIDs, 1)

	rec, err := s.Lookup(ctx, exampleMain)
	require.NoError(t, err)
	assert.Equal(t, "Example", rec.Title)
}

func TestApplyBatch_StorageFailureRollsBack(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	mainID, err := s.Insert(ctx, exampleMain, "Example", nil)
	require.NoError(t, err)
	settingsID, err := s.Insert(ctx, exampleSettings, "Settings", nil)
	require.NoError(t, err)

	_, err = s.DB().Exec(`
		CREATE TRIGGER fail_other BEFORE INSERT ON appinfos
		WHEN NEW.componentname = 'com.other/com.other.Main'
		BEGIN SELECT RAISE(ABORT, 'disk full'); END;`)
	require.NoError(t, err)

	before, err := s.ListAll(ctx)
	require.NoError(t, err)
	published := len(pub.all())

	change, err := s.ApplyBatch(ctx, Batch{
		RemovedIDs: []int64{settingsID},
		Updated:    []Update{{ID: mainID, Title: "Changed"}},
		Added:      []NewRecord{{Identity: otherMain, Title: "Other"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Nil(t, change)

	after, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, pub.all(), published)
}

func TestSync_PlanSeesSnapshot(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, exampleMain, "Example", nil)
	require.NoError(t, err)
	_, err = s.Insert(ctx, otherMain, "Other", nil)
	require.NoError(t, err)

	var seen []*Record
	change, err := s.Sync(ctx, "com.example", func(stored []*Record) (Batch, error) {
		seen = stored
		return Batch{RemovedIDs: []int64{stored[0].ID}}, nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, exampleMain, seen[0].Identity)
	assert.Equal(t, []identity.Key{exampleMain}, change.RemovedIdentities)
	assert.Len(t, pub.all(), 3)

	change, err = s.Sync(ctx, "", func(stored []*Record) (Batch, error) {
		seen = stored
		return Batch{}, nil
	})
	require.NoError(t, err)
	assert.True(t, change.Empty())
	assert.Len(t, seen, 1)
	assert.Len(t, pub.all(), 3)
}

func TestSync_PlanErrorAbortsWithoutWrites(t *testing.T) {
	s, pub := newTestStore(t)
	planErr := errors.New("provider down")

	_, err := s.Sync(context.Background(), "", func([]*Record) (Batch, error) {
		return Batch{}, planErr
	})
	assert.ErrorIs(t, err, planErr)
	assert.Empty(t, pub.all())
}

func TestChangeRecord_Empty(t *testing.T) {
	var nilRecord *ChangeRecord
	assert.True(t, nilRecord.Empty())
	assert.True(t, (&ChangeRecord{}).Empty())
	assert.False(t, (&ChangeRecord{RemovedPackage: "com.example"}).Empty())
}

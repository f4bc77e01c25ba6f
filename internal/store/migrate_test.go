package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCreateSchema_MigratesLegacyTable(t *testing.T) {
	s, err := New(":memory:", WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().Exec(`
		CREATE TABLE appinfos (
		    _id INTEGER PRIMARY KEY,
		    componentname TEXT,
		    launchcount INTEGER
		);
		CREATE INDEX idx_appinfos_componentname ON appinfos(componentname);
		INSERT INTO appinfos (_id, componentname, launchcount) VALUES
		    (3, 'ComponentInfo{com.example/com.example.Main}', 4),
		    (5, 'com.example/.Main', 2),
		    (7, 'not-an-identity', 9),
		    (8, 'com.other/com.other.Main', NULL);`)
	require.NoError(t, err)

	require.NoError(t, s.CreateSchema())
	ctx := context.Background()

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, exampleMain, all[0].Identity)
	assert.Equal(t, int64(6), all[0].LaunchCount)
	assert.Equal(t, int64(8), all[1].ID)
	assert.Equal(t, otherMain, all[1].Identity)
	assert.Equal(t, int64(0), all[1].LaunchCount)

	// The unique index is in place and ids continue past the legacy maximum.
	_, err = s.Insert(ctx, exampleMain, "dup", nil)
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	id, err := s.Insert(ctx, exampleSettings, "Settings", nil)
	require.NoError(t, err)
	assert.Greater(t, id, int64(8))

	v, err := s.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
}

func TestCreateSchema_MigratesLegacyTitlesAndIcons(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().Exec(`
		CREATE TABLE appinfos (
		    _id INTEGER PRIMARY KEY,
		    componentname TEXT,
		    title TEXT,
		    icon BLOB,
		    launchcount INTEGER
		);
		INSERT INTO appinfos VALUES (1, 'com.example/.Main', NULL, NULL, 1);
		INSERT INTO appinfos VALUES (2, 'com.example/com.example.Main', 'Example', x'0102', 1);`)
	require.NoError(t, err)

	require.NoError(t, s.CreateSchema())

	rec, err := s.Lookup(context.Background(), exampleMain)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, "Example", rec.Title)
	assert.Equal(t, []byte{1, 2}, rec.Icon)
	assert.Equal(t, int64(2), rec.LaunchCount)
}

package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/appregistry/internal/config"
	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/launch"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestParseLaunchLine(t *testing.T) {
	tests := []struct {
		line     string
		wantOK   bool
		wantKind launch.Kind
		wantName string
	}{
		{"1700000000000000000,main,com.example/.Main", true, launch.KindMain, "com.example/.Main"},
		{"1700000000000000000,shortcut,com.example/.Main", true, launch.KindShortcut, "com.example/.Main"},
		{"1700000000000000000,com.example/.Main", true, launch.KindMain, "com.example/.Main"},
		{"1700000000000000000,mail", true, launch.KindMain, "mail"},
		{"notatimestamp,main,com.example/.Main", false, "", ""},
		{"0,main,com.example/.Main", false, "", ""},
		{"1700000000000000000,teleport,com.example/.Main", false, "", ""},
		{"1700000000000000000,main, ", false, "", ""},
		{"1700000000000000000", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, kind, name, ok := parseLaunchLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantKind, kind)
				assert.Equal(t, tt.wantName, name)
			}
		})
	}
}

func TestProcessLaunchLog_MissingLog(t *testing.T) {
	dir := t.TempDir()
	n, err := ProcessLaunchLog(context.Background(), &fakeTarget{}, LaunchLogOptions{
		LogPath: filepath.Join(dir, "launches.log"),
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoFileExists(t, filepath.Join(dir, "launches.log.offset"))
}

func TestProcessLaunchLog_IncrementalOffset(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "launches.log")
	target := &fakeTarget{}
	opts := LaunchLogOptions{LogPath: logPath}
	ctx := context.Background()

	writeLog(t, logPath, "1700000000000000000,main,com.example/.Main\n1700000000000000001,shortcut,com.example/.Main\n")

	n, err := ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	offset, err := readOffset(logPath + ".offset")
	require.NoError(t, err)
	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), offset)

	// Nothing new.
	n, err = ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)
	assert.Zero(t, n)

	appendLog(t, logPath, "1700000000000000002,main,com.other/.Main\n")
	n, err = ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	launches := target.Launches()
	require.Len(t, launches, 3)
	assert.Equal(t, launch.KindShortcut, launches[1].Kind)
	assert.Equal(t, identity.MustNew("com.other", ".Main"), launches[2].Identity)
}

func TestProcessLaunchLog_PartialTrailingLine(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "launches.log")
	target := &fakeTarget{}
	opts := LaunchLogOptions{LogPath: logPath}
	ctx := context.Background()

	writeLog(t, logPath, "1700000000000000000,main,com.example/.Main\n1700000000000000001,main,com.oth")

	n, err := ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	appendLog(t, logPath, "er/.Main\n")
	n, err = ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	launches := target.Launches()
	require.Len(t, launches, 2)
	assert.Equal(t, identity.MustNew("com.other", ".Main"), launches[1].Identity)
}

func TestProcessLaunchLog_SkipsMalformedAndUnknown(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "launches.log")
	target := &fakeTarget{}

	writeLog(t, logPath, "garbage\n\n1700000000000000000,main,nosuchalias\n1700000000000000001,mail\n")

	aliases := &config.AliasConfig{Aliases: map[string]identity.Key{
		"mail": identity.MustNew("com.example.mail", ".Inbox"),
	}}
	n, err := ProcessLaunchLog(context.Background(), target, LaunchLogOptions{
		LogPath: logPath,
		Aliases: aliases,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	launches := target.Launches()
	require.Len(t, launches, 1)
	assert.Equal(t, "com.example.mail/com.example.mail.Inbox", launches[0].Identity.String())
	assert.Equal(t, launch.KindMain, launches[0].Kind)

	offset, err := readOffset(logPath + ".offset")
	require.NoError(t, err)
	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), offset)
}

func TestProcessLaunchLog_FailedLaunchIsRetried(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "launches.log")
	errBusy := errors.New("database is locked")
	target := &fakeTarget{failOn: map[string]error{
		"com.other/com.other.Main": errBusy,
	}}
	opts := LaunchLogOptions{LogPath: logPath}
	ctx := context.Background()

	writeLog(t, logPath, "1700000000000000000,main,com.example/.Main\n1700000000000000001,main,com.other/.Main\n")

	n, err := ProcessLaunchLog(ctx, target, opts)
	require.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, n)

	target.mu.Lock()
	target.failOn = nil
	target.mu.Unlock()

	n, err = ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	launches := target.Launches()
	require.Len(t, launches, 2)
	assert.Equal(t, "com.example/com.example.Main", launches[0].Identity.String())
	assert.Equal(t, "com.other/com.other.Main", launches[1].Identity.String())
}

func TestProcessLaunchLog_TruncatedLogRestarts(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "launches.log")
	offsetPath := filepath.Join(dir, "state", "launches.offset")
	target := &fakeTarget{}
	opts := LaunchLogOptions{LogPath: logPath, OffsetPath: offsetPath}
	ctx := context.Background()

	writeLog(t, logPath, "1700000000000000000,main,com.example/.Main\n1700000000000000001,main,com.example/.Main\n")
	_, err := ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)

	writeLog(t, logPath, "1700000000000000002,main,com.b/.B\n")
	n, err := ProcessLaunchLog(ctx, target, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	launches := target.Launches()
	require.Len(t, launches, 3)
	assert.Equal(t, "com.b/com.b.B", launches[2].Identity.String())
}

func TestWriteOffsetAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "offset")

	require.NoError(t, writeOffsetAtomic(path, 42))
	got, err := readOffset(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
	assert.NoFileExists(t, path+".tmp")
}

func TestReadOffset_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offset")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0600))

	_, err := readOffset(path)
	assert.Error(t, err)
}

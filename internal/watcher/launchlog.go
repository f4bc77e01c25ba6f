package watcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/config"
	"github.com/blackwell-systems/appregistry/internal/launch"
)

const maxLaunchLinesPerTick = 10_000

// Launcher records one launch. *registry.Engine and *launch.Counter
// implement it.
type Launcher interface {
	RecordLaunch(ctx context.Context, l launch.Launch) error
}

// LaunchLogOptions locates the launch log and its offset file.
type LaunchLogOptions struct {
	LogPath    string
	OffsetPath string
	Aliases    *config.AliasConfig
	Logger     *zap.Logger
}

// ProcessLaunchLog reads entries appended to the launch log since the last
// processed offset and records each of them. It returns the number of
// launches recorded, and nil when the log does not exist yet.
//
// Log format (one entry per line, written by cmd/appregistry-launch):
//
//	<unix_nano>,<kind>,<identity or alias>
//
// Lines written as "<unix_nano>,<identity>" count as main launches. The
// offset only advances past lines that were handled, so a failed launch is
// retried on the next call and a half-written trailing line is left for later.
func ProcessLaunchLog(ctx context.Context, l Launcher, opts LaunchLogOptions) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	offsetPath := opts.OffsetPath
	if offsetPath == "" {
		offsetPath = opts.LogPath + ".offset"
	}

	info, err := os.Stat(opts.LogPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("launch log: stat: %w", err)
	}

	offset, err := readOffset(offsetPath)
	if err != nil {
		return 0, fmt.Errorf("launch log: read offset: %w", err)
	}
	if offset > info.Size() {
		// The log was truncated or rotated underneath us.
		logger.Warn("launch log shrank, reading from the start",
			zap.Int64("offset", offset), zap.Int64("size", info.Size()))
		offset = 0
	}

	f, err := os.Open(opts.LogPath)
	if err != nil {
		return 0, fmt.Errorf("launch log: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("launch log: seek: %w", err)
	}

	var (
		reader   = bufio.NewReader(f)
		consumed = offset
		lines    int
		recorded int
	)
	for lines < maxLaunchLinesPerTick {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return recorded, fmt.Errorf("launch log: read: %w", err)
		}
		lines++

		text := strings.TrimRight(line, "\r\n")
		if text == "" {
			consumed += int64(len(line))
			continue
		}

		ts, kind, name, ok := parseLaunchLine(text)
		if !ok {
			logger.Warn("skipping malformed launch line", zap.String("line", text))
			consumed += int64(len(line))
			continue
		}

		key, ok := opts.Aliases.Resolve(name)
		if !ok {
			logger.Debug("skipping launch of unknown name", zap.String("name", name))
			consumed += int64(len(line))
			continue
		}

		if err := l.RecordLaunch(ctx, launch.Launch{Identity: key, Kind: kind}); err != nil {
			if werr := writeOffsetAtomic(offsetPath, consumed); werr != nil {
				logger.Error("failed to save launch log offset", zap.Error(werr))
			}
			return recorded, fmt.Errorf("launch log: record %s: %w", key, err)
		}
		logger.Debug("recorded launch",
			zap.Stringer("identity", key),
			zap.String("kind", string(kind)),
			zap.Time("at", time.Unix(0, ts)),
		)
		consumed += int64(len(line))
		recorded++
	}

	if consumed != offset {
		if err := writeOffsetAtomic(offsetPath, consumed); err != nil {
			return recorded, err
		}
	}
	return recorded, nil
}

// parseLaunchLine parses "<unix_nano>,<kind>,<name>" or "<unix_nano>,<name>".
func parseLaunchLine(line string) (int64, launch.Kind, string, bool) {
	parts := strings.SplitN(line, ",", 3)
	if len(parts) < 2 {
		return 0, "", "", false
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || ts <= 0 {
		return 0, "", "", false
	}

	kind := launch.KindMain
	name := parts[1]
	if len(parts) == 3 {
		kind, err = launch.ParseKind(parts[1])
		if err != nil {
			return 0, "", "", false
		}
		name = parts[2]
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, "", "", false
	}
	return ts, kind, name, true
}

// readOffset reads the byte offset from the offset tracking file.
// Returns 0 if the file does not exist.
func readOffset(offsetPath string) (int64, error) {
	data, err := os.ReadFile(offsetPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	offset, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse offset %q: %w", s, err)
	}
	return offset, nil
}

// writeOffsetAtomic writes newOffset to offsetPath via a temp-file rename.
func writeOffsetAtomic(offsetPath string, newOffset int64) error {
	if err := os.MkdirAll(filepath.Dir(offsetPath), 0755); err != nil {
		return fmt.Errorf("create offset directory: %w", err)
	}
	tmpPath := offsetPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(strconv.FormatInt(newOffset, 10)), 0600); err != nil {
		return fmt.Errorf("write temp offset file: %w", err)
	}
	if err := os.Rename(tmpPath, offsetPath); err != nil {
		return fmt.Errorf("rename offset file: %w", err)
	}
	return nil
}

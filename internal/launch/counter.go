// Package launch counts application launches against registry records.
package launch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/metrics"
	"github.com/blackwell-systems/appregistry/internal/store"
)

// Kind classifies the entry point a launch went through.
type Kind string

const (
	// KindMain is a MAIN/LAUNCHER entry point. Only these launches count.
	KindMain Kind = "main"
	// KindShortcut is a pinned or dynamic shortcut into the application.
	KindShortcut Kind = "shortcut"
	// KindOther covers every remaining intent.
	KindOther Kind = "other"
)

// ParseKind accepts the lowercase names above.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMain, KindShortcut, KindOther:
		return k, nil
	}
	return "", fmt.Errorf("unknown launch kind %q", s)
}

// Launch is one launch notification.
type Launch struct {
	Identity identity.Key
	Kind     Kind
}

// Counter records launches. Identities the registry has not seen yet are
// created on first launch.
type Counter struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCounter creates a Counter. m and logger may be nil.
func NewCounter(s *store.Store, m *metrics.Metrics, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{store: s, metrics: m, logger: logger}
}

// RecordLaunch increments the launch count of l.Identity when l is a main
// entry point launch; every other kind is ignored.
func (c *Counter) RecordLaunch(ctx context.Context, l Launch) error {
	if l.Kind != KindMain {
		c.metrics.Launch("ignored")
		return nil
	}
	if err := l.Identity.Validate(); err != nil {
		return err
	}

	id, err := c.resolveOrCreate(ctx, l.Identity)
	if err != nil {
		return err
	}
	if err := c.store.IncrementLaunchCount(ctx, id); err != nil {
		return fmt.Errorf("failed to record launch of %s: %w", l.Identity, err)
	}

	c.metrics.Launch("counted")
	return nil
}

// LaunchCount returns the stored count for key, or store.ErrNotFound.
func (c *Counter) LaunchCount(ctx context.Context, key identity.Key) (int64, error) {
	return c.store.LaunchCount(ctx, key)
}

func (c *Counter) resolveOrCreate(ctx context.Context, key identity.Key) (int64, error) {
	rec, err := c.store.Lookup(ctx, key)
	if err == nil {
		return rec.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("failed to look up %s: %w", key, err)
	}

	id, err := c.store.Insert(ctx, key, key.Class, nil)
	if err == nil {
		c.logger.Info("registered identity on first launch", zap.Stringer("identity", key), zap.Int64("id", id))
		return id, nil
	}
	if !errors.Is(err, store.ErrDuplicateIdentity) {
		return 0, fmt.Errorf("failed to register %s: %w", key, err)
	}

	// Lost a race with another writer; use its row.
	rec, err = c.store.Lookup(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	return rec.ID, nil
}

// Package iconcache keeps display titles and icons of registered identities
// in a bounded LRU in front of the package-information provider.
package iconcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/icon"
	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/metrics"
)

// DefaultSize is the number of entries kept when no size is configured.
const DefaultSize = 512

// Entry is a cached title/icon pair. Fallback is set when Icon is the
// generic fallback image rather than the application's own.
type Entry struct {
	Title    string
	Icon     []byte
	Fallback bool
}

// Resolver produces the title and encoded icon of an identity on a miss.
type Resolver interface {
	Resolve(ctx context.Context, key identity.Key) (title string, icon []byte, err error)
}

// Options configures a Cache.
type Options struct {
	Size    int
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Cache is safe for concurrent use. Two goroutines missing on the same key
// may both resolve it; the later Add wins.
type Cache struct {
	entries  *lru.Cache[identity.Key, Entry]
	resolver Resolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a cache in front of resolver.
func New(resolver Resolver, opts Options) (*Cache, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[identity.Key, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create icon cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries:  entries,
		resolver: resolver,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

// Get returns the entry for key, resolving it on a miss. Resolution failures
// are not returned: the entry falls back to the class name and the generic
// icon, and is cached like any other.
func (c *Cache) Get(ctx context.Context, key identity.Key) Entry {
	if e, ok := c.entries.Get(key); ok {
		c.metrics.CacheHit()
		return e
	}
	c.metrics.CacheMiss()

	e := c.resolve(ctx, key)
	c.entries.Add(key, e)
	return e
}

// Peek returns the cached entry without resolving or touching recency.
func (c *Cache) Peek(key identity.Key) (Entry, bool) {
	return c.entries.Peek(key)
}

// Put stores a known title and icon. An empty title becomes the class name
// and a missing icon becomes the fallback.
func (c *Cache) Put(key identity.Key, title string, data []byte) Entry {
	e := makeEntry(key, title, data)
	c.entries.Add(key, e)
	return e
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(key identity.Key) {
	c.entries.Remove(key)
}

// InvalidatePackage drops every entry whose package is pkg.
func (c *Cache) InvalidatePackage(pkg string) {
	for _, key := range c.entries.Keys() {
		if key.Package == pkg {
			c.entries.Remove(key)
		}
	}
}

// Flush drops every entry.
func (c *Cache) Flush() {
	c.entries.Purge()
}

// IsFallback reports whether key is cached with the fallback icon.
func (c *Cache) IsFallback(key identity.Key) bool {
	e, ok := c.entries.Peek(key)
	return ok && e.Fallback
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) resolve(ctx context.Context, key identity.Key) Entry {
	if c.resolver == nil {
		c.metrics.CacheResolved(true)
		return makeEntry(key, "", nil)
	}

	title, data, err := c.resolver.Resolve(ctx, key)
	if err != nil {
		c.logger.Debug("icon resolution failed, using fallback",
			zap.Stringer("identity", key), zap.Error(err))
		c.metrics.CacheResolved(true)
		return makeEntry(key, "", nil)
	}

	e := makeEntry(key, title, data)
	c.metrics.CacheResolved(e.Fallback)
	return e
}

func makeEntry(key identity.Key, title string, data []byte) Entry {
	if title == "" {
		title = key.Class
	}
	if len(data) == 0 {
		return Entry{Title: title, Icon: icon.Fallback(), Fallback: true}
	}
	return Entry{Title: title, Icon: data}
}

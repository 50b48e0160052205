// Package cache keeps recent collection lists so repeated dashboard starts do
// not hit the catalog every time. Granule searches are never cached since
// their result depends on the drawn box.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/go-maap/pkg/cmr"
)

// Store holds collection lists by key.
type Store interface {
	Get(ctx context.Context, key string) ([]cmr.CollectionName, bool, error)
	Set(ctx context.Context, key string, names []cmr.CollectionName, ttl time.Duration) error
}

// Catalog is the subset of the catalog client the cache wraps.
type Catalog interface {
	SearchCollections(ctx context.Context) ([]cmr.CollectionName, error)
	SearchGranules(ctx context.Context, collection cmr.CollectionName, box cmr.BoundingBox) ([]cmr.GranuleReference, error)
}

// CachingCatalog serves SearchCollections from a Store and passes granule
// searches through. Store failures are logged and fall back to the catalog.
type CachingCatalog struct {
	next  Catalog
	store Store
	key   string
	ttl   time.Duration
}

// NewCachingCatalog wraps next. key should identify the catalog host and
// provider so different catalogs never share entries.
func NewCachingCatalog(next Catalog, store Store, key string, ttl time.Duration) *CachingCatalog {
	return &CachingCatalog{next: next, store: store, key: key, ttl: ttl}
}

// Key builds the cache key for a catalog host and provider.
func Key(host, provider string) string {
	return "maap:collections:" + host + ":" + provider
}

func (c *CachingCatalog) SearchCollections(ctx context.Context) ([]cmr.CollectionName, error) {
	names, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		slog.Warn("collection cache read failed", "key", c.key, "error", err)
	} else if ok {
		return names, nil
	}

	names, err = c.next.SearchCollections(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, c.key, names, c.ttl); err != nil {
		slog.Warn("collection cache write failed", "key", c.key, "error", err)
	}
	return names, nil
}

func (c *CachingCatalog) SearchGranules(ctx context.Context, collection cmr.CollectionName, box cmr.BoundingBox) ([]cmr.GranuleReference, error) {
	return c.next.SearchGranules(ctx, collection, box)
}

type memoryEntry struct {
	names   []cmr.CollectionName
	expires time.Time
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]cmr.CollectionName, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]cmr.CollectionName(nil), entry.names...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, names []cmr.CollectionName, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		names:   append([]cmr.CollectionName(nil), names...),
		expires: m.now().Add(ttl),
	}
	return nil
}

package pool

import (
	"sync"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

// Cache is a thread-safe in-memory index over the manifests the storage
// service persists. It is not the source of truth: it starts empty on process
// start and is repopulated by the discovery pass. Keys are normalized manifest
// ids, so lookups are case-insensitive like the rest of the pool.
type Cache struct {
	mu        sync.RWMutex
	manifests map[string]*manifest.ContentManifest
}

func NewCache() *Cache {
	return &Cache{manifests: make(map[string]*manifest.ContentManifest)}
}

// Get returns the cached manifest or nil when absent.
func (c *Cache) Get(id manifest.Id) *manifest.ContentManifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifests[id.Normalized()]
}

// Upsert inserts or replaces a manifest. Last write wins.
func (c *Cache) Upsert(m *manifest.ContentManifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests[m.Id.Normalized()] = m
}

// Remove evicts a manifest. Removing an absent id is a no-op.
func (c *Cache) Remove(id manifest.Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.manifests, id.Normalized())
}

// GetAll returns a snapshot of all cached manifests in no particular order.
func (c *Cache) GetAll() []*manifest.ContentManifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := make([]*manifest.ContentManifest, 0, len(c.manifests))
	for _, m := range c.manifests {
		all = append(all, m)
	}
	return all
}

// Clear drops every cached manifest.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests = make(map[string]*manifest.ContentManifest)
}

// Len returns the number of cached manifests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.manifests)
}

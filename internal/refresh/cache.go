package refresh

import (
	"sync"

	"github.com/cloudshelf/cloudshelf/internal/models"
)

// Cache keeps the last materialized index per scanned root so browse
// requests do not hit the settings table for every page load. It is
// process-local; a completed scan repopulates it.
type Cache struct {
	mu    sync.RWMutex
	roots map[string]*models.MetaInfo
}

func NewCache() *Cache {
	return &Cache{roots: make(map[string]*models.MetaInfo)}
}

func (c *Cache) Get(root string) (*models.MetaInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.roots[root]
	return meta, ok
}

func (c *Cache) Set(root string, meta *models.MetaInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots[root] = meta
}

func (c *Cache) Invalidate(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roots, root)
}

package coordinator

import "github.com/ayusman/drishti/internal/detector"

// Cache holds the most recent non-empty batch produced by a real inference.
// It is not safe for concurrent use; the Coordinator guards it.
type Cache struct {
	batch detector.Batch
}

// Store replaces the cached batch. An empty batch clears the cache.
func (c *Cache) Store(b detector.Batch) {
	c.batch = b.Clone()
}

// Load returns a copy of the cached batch, nil when empty.
func (c *Cache) Load() detector.Batch {
	return c.batch.Clone()
}

// Len returns the number of cached objects.
func (c *Cache) Len() int {
	return len(c.batch)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.batch = nil
}

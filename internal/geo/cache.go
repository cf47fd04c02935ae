// Package geo provides the in-memory fence cache.
package geo

import (
	"log/slog"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// Cache is the in-memory fence id -> fence mapping. It is replaced wholesale
// on every reconfiguration and never partially mutated. The cache itself is
// not synchronized; the engine serializes all access.
type Cache struct {
	fences []models.Fence
	byID   map[string]models.Fence
}

// NewCache creates an empty fence cache.
func NewCache() *Cache {
	return &Cache{byID: make(map[string]models.Fence)}
}

// Replace swaps the entire fence set.
func (c *Cache) Replace(fences []models.Fence) {
	c.fences = make([]models.Fence, len(fences))
	copy(c.fences, fences)
	c.byID = make(map[string]models.Fence, len(fences))
	for _, f := range fences {
		c.byID[f.ID] = f
	}
	slog.Debug("FenceCache replaced", "count", len(fences))
}

// Get returns the fence with the given id.
func (c *Cache) Get(id string) (models.Fence, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// Name returns the fence name for an id, or UnknownFenceName when absent.
func (c *Cache) Name(id string) string {
	if f, ok := c.byID[id]; ok && f.Name != "" {
		return f.Name
	}
	return models.UnknownFenceName
}

// All returns the cached fences in insertion order.
func (c *Cache) All() []models.Fence {
	return c.fences
}

// Len returns the number of cached fences.
func (c *Cache) Len() int {
	return len(c.fences)
}

// NearestContaining returns the first fence (in insertion order) containing
// the position with the given hysteresis factor. Overlapping fences have no
// defined precedence; first match wins.
func (c *Cache) NearestContaining(pos models.Position, hysteresis float64) (models.Fence, bool) {
	for _, f := range c.fences {
		if Contains(pos, f, hysteresis) {
			return f, true
		}
	}
	return models.Fence{}, false
}

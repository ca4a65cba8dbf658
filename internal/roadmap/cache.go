package roadmap

import (
	"encoding/json"
	"log/slog"

	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/storage"
)

// StoreCache persists role mappings in the role_mappings table. Concurrent
// writers for the same role key are last-writer-wins, which is safe since a
// mapping is a pure function of static inputs.
type StoreCache struct {
	store  *storage.Store
	logger *slog.Logger
}

var _ MappingCache = (*StoreCache)(nil)

// NewStoreCache creates a StoreCache over the given storage.
func NewStoreCache(store *storage.Store, logger *slog.Logger) *StoreCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreCache{store: store, logger: logger}
}

// Get loads a cached mapping. Missing and corrupt entries both report a
// miss so callers recompute.
func (c *StoreCache) Get(roleKey string) (catalog.CanonicalRoadmap, bool) {
	roadmapJSON, err := c.store.GetRoleMapping(roleKey)
	if err != nil {
		return catalog.CanonicalRoadmap{}, false
	}
	var roadmap catalog.CanonicalRoadmap
	if err := json.Unmarshal([]byte(roadmapJSON), &roadmap); err != nil {
		c.logger.Warn("corrupt role mapping cache entry, recomputing", "role", roleKey, "error", err)
		return catalog.CanonicalRoadmap{}, false
	}
	return roadmap, true
}

// Put stores a computed mapping under the role key.
func (c *StoreCache) Put(roleKey string, roadmap catalog.CanonicalRoadmap) error {
	data, err := json.Marshal(roadmap)
	if err != nil {
		return err
	}
	return c.store.SaveRoleMapping(roleKey, string(data))
}

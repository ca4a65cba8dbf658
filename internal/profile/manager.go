package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/skillmap/internal/storage"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	GetUserProfile(userID string) (string, error)
	SaveUserProfile(userID, profileJSON string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile  map[string]any
	cachedAt time.Time
}

// Manager provides cached access to user profiles stored as JSON blobs.
//
// ApplyPatch is read-modify-write without cross-process coordination:
// concurrent patches for the same user from different processes may race.
// Within one process the manager serializes writes under its mutex.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Get returns the raw profile map for a user. Returns storage.ErrNotFound
// when the user has no stored profile.
func (m *Manager) Get(userID string) (map[string]any, error) {
	m.mu.RLock()
	if entry, ok := m.cache[userID]; ok && m.clock.Now().Before(entry.cachedAt.Add(m.ttl)) {
		p := deepCopyMap(entry.profile)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.cache[userID]; ok && m.clock.Now().Before(entry.cachedAt.Add(m.ttl)) {
		return deepCopyMap(entry.profile), nil
	}

	raw, err := m.store.GetUserProfile(userID)
	if err != nil {
		return nil, err
	}
	var p map[string]any
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("parsing profile for %s: %w", userID, err)
	}

	m.cache[userID] = cacheEntry{profile: p, cachedAt: m.clock.Now()}
	return deepCopyMap(p), nil
}

// ApplyPatch merges a patch into the user's stored profile and persists the
// result. A missing profile starts from an empty one.
func (m *Manager) ApplyPatch(userID string, patch map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := map[string]any{}
	raw, err := m.store.GetUserProfile(userID)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &base); err != nil {
			return nil, fmt.Errorf("parsing profile for %s: %w", userID, err)
		}
	case errors.Is(err, storage.ErrNotFound):
		// First write for this user.
	default:
		return nil, err
	}

	merged := Reconcile(base, patch)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshalling profile for %s: %w", userID, err)
	}
	if err := m.store.SaveUserProfile(userID, string(data)); err != nil {
		return nil, fmt.Errorf("saving profile for %s: %w", userID, err)
	}

	m.cache[userID] = cacheEntry{profile: merged, cachedAt: m.clock.Now()}
	return deepCopyMap(merged), nil
}

func deepCopyMap(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

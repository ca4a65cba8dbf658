package retrieval

import (
	"context"
	"sync"

	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/kb"
)

// Components is the shared read-only state built during warmup. No field is
// mutated after initialization, so a single instance is safe to share across
// concurrent requests.
type Components struct {
	Scorer   *Scorer
	Store    *kb.Store
	Catalog  *catalog.Catalog
	Roadmaps *catalog.RoadmapLoader
}

// Runtime guards lazy initialization of retrieval components. The first
// Acquire triggers the load; concurrent callers block until it completes.
// A failed load is retried on the next Acquire.
type Runtime struct {
	mu         sync.Mutex
	initFn     func(context.Context) (*Components, error)
	components *Components
}

// NewRuntime creates a Runtime that builds its components with initFn on
// first use.
func NewRuntime(initFn func(context.Context) (*Components, error)) *Runtime {
	return &Runtime{initFn: initFn}
}

// Acquire returns the shared components, running the initializer exactly
// once across concurrent callers.
func (r *Runtime) Acquire(ctx context.Context) (*Components, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.components != nil {
		return r.components, nil
	}
	if r.initFn == nil {
		return nil, ErrUninitialized
	}
	c, err := r.initFn(ctx)
	if err != nil {
		return nil, err
	}
	r.components = c
	return c, nil
}

// Ready reports whether initialization has completed, without triggering it.
func (r *Runtime) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.components != nil
}

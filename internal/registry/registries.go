package registry

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"chartline/internal/store"
)

const warmConcurrency = 8

// Registries owns one Registry per organization. Instances are built on first use; concurrent
// first uses of the same organization share one load.
type Registries struct {
	store store.Store
	opts  Options

	mu    sync.RWMutex
	byOrg map[string]*Registry
	group singleflight.Group
}

func NewRegistries(st store.Store, opts Options) *Registries {
	return &Registries{store: st, opts: opts.withDefaults(), byOrg: make(map[string]*Registry)}
}

// Get returns orgID's registry, loading it when needed.
func (rs *Registries) Get(ctx context.Context, orgID string) (*Registry, error) {
	if r, ok := rs.lookup(orgID); ok {
		return r, nil
	}
	v, err, _ := rs.group.Do(orgID, func() (any, error) {
		if r, ok := rs.lookup(orgID); ok {
			return r, nil
		}
		r, err := Open(ctx, orgID, rs.store, rs.opts)
		if err != nil {
			return nil, err
		}
		rs.mu.Lock()
		rs.byOrg[orgID] = r
		rs.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Registry), nil
}

func (rs *Registries) lookup(orgID string) (*Registry, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.byOrg[orgID]
	return r, ok
}

// Warm loads several organizations concurrently. The first failure cancels the rest.
func (rs *Registries) Warm(ctx context.Context, orgIDs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, id := range orgIDs {
		g.Go(func() error {
			_, err := rs.Get(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// Loaded returns the ids of loaded organizations, sorted.
func (rs *Registries) Loaded() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	ids := make([]string, 0, len(rs.byOrg))
	for id := range rs.byOrg {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close drops every instance. Call it only after in-flight requests have finished.
func (rs *Registries) Close() {
	rs.mu.Lock()
	rs.byOrg = make(map[string]*Registry)
	rs.mu.Unlock()
}

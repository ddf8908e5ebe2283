// Package profile resolves user profiles in bulk through a small in-process
// cache. Profiles are read-only to this service and change rarely, so a
// short TTL keeps roster assembly cheap without a staleness problem.
package profile

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/registry/store"
)

// Resolver batch-resolves user profiles against a backend adapter, caching
// hits in memory. User IDs are globally unique principals, so one shared
// cache serves both regions.
type Resolver struct {
	cache *ristretto.Cache[string, model.UserProfile]
	ttl   time.Duration
}

// NewResolver creates a Resolver with the given cache capacity and TTL.
func NewResolver(maxEntries int64, ttl time.Duration) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, model.UserProfile]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Resolver{cache: cache, ttl: ttl}, nil
}

// Resolve returns profiles for the given IDs keyed by user ID. IDs unknown
// to the backend are absent from the result.
func (r *Resolver) Resolve(ctx context.Context, st store.ChatStore, ids []string) (map[string]model.UserProfile, error) {
	resolved := make(map[string]model.UserProfile, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.cache.Get(id); ok {
			resolved[id] = p
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return resolved, nil
	}

	profiles, err := st.GetUserProfiles(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		resolved[p.ID] = p
		r.cache.SetWithTTL(p.ID, p, 1, r.ttl)
	}
	return resolved, nil
}

// Close releases the cache resources.
func (r *Resolver) Close() {
	r.cache.Close()
}

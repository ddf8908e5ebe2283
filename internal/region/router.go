// Package region dispatches each authenticated principal to the backend
// adapter of their home region. Pure dispatch: stateless per request, no
// fallbacks.
package region

import (
	"errors"
	"fmt"

	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/security"
)

// ErrUnknownRegion means the principal's region does not map to a configured
// backend. Callers must surface this as an authentication failure, not a
// data error; the router never guesses.
var ErrUnknownRegion = errors.New("no backend configured for principal region")

// Router resolves principals to their regional ChatStore. Constructed once
// per process and passed down explicitly.
type Router struct {
	backends map[model.Region]store.ChatStore
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{backends: map[model.Region]store.ChatStore{}}
}

// Mount registers the backend serving a region, replacing any previous one.
func (r *Router) Mount(region model.Region, s store.ChatStore) {
	r.backends[region] = s
}

// Resolve returns the backend adapter serving the principal's region.
func (r *Router) Resolve(p security.Principal) (store.ChatStore, error) {
	s, ok := r.backends[p.Region]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, p.Region)
	}
	return s, nil
}

// Regions returns the mounted regions, for startup logging.
func (r *Router) Regions() []model.Region {
	regions := make([]model.Region, 0, len(r.backends))
	for region := range r.backends {
		regions = append(regions, region)
	}
	return regions
}

// Package noop provides the cache plugin used when no cache backend is
// configured. Every read is a miss; writes are discarded.
package noop

import (
	"context"
	"time"

	"github.com/google/uuid"
	registrycache "github.com/workstream-im/chat-service/internal/registry/cache"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrycache.UnreadCache, error) {
			return Cache{}, nil
		},
	})
}

// Cache is the no-op UnreadCache.
type Cache struct{}

func (Cache) Available() bool { return false }

func (Cache) Get(ctx context.Context, userID string) (map[uuid.UUID]int64, bool, error) {
	return nil, false, nil
}

func (Cache) Set(ctx context.Context, userID string, counts map[uuid.UUID]int64, ttl time.Duration) error {
	return nil
}

func (Cache) Remove(ctx context.Context, userID string) error {
	return nil
}

var _ registrycache.UnreadCache = Cache{}

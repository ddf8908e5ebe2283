// Package unread provides the unread-count aggregator consumed by the
// conversation directory. Counts come from the backend adapter and are
// fronted by the pluggable cache; the directory treats the whole thing as an
// opaque count source that may degrade to empty.
package unread

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/model"
	registrycache "github.com/workstream-im/chat-service/internal/registry/cache"
	"github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/security"
)

// Aggregator supplies per-conversation unread counts for one user.
type Aggregator interface {
	Counts(ctx context.Context, st store.ChatStore, userID string, memberships []model.Membership) (map[uuid.UUID]int64, error)
	// Invalidate drops cached counts for the given users. Best-effort.
	Invalidate(ctx context.Context, userIDs ...string)
}

// New returns an Aggregator backed by the adapter's count query and the
// given cache.
func New(cache registrycache.UnreadCache, ttl time.Duration) Aggregator {
	return &cachedAggregator{cache: cache, ttl: ttl}
}

type cachedAggregator struct {
	cache registrycache.UnreadCache
	ttl   time.Duration
}

func (a *cachedAggregator) Counts(ctx context.Context, st store.ChatStore, userID string, memberships []model.Membership) (map[uuid.UUID]int64, error) {
	if a.cache.Available() {
		counts, ok, err := a.cache.Get(ctx, userID)
		if err != nil {
			log.Warn("Unread cache read failed", "user", userID, "err", err)
		} else if ok {
			if security.UnreadCacheHitsTotal != nil {
				security.UnreadCacheHitsTotal.Inc()
			}
			return counts, nil
		}
		if security.UnreadCacheMissesTotal != nil {
			security.UnreadCacheMissesTotal.Inc()
		}
	}

	counts, err := st.CountUnread(ctx, userID, memberships)
	if err != nil {
		return nil, err
	}
	if a.cache.Available() {
		if err := a.cache.Set(ctx, userID, counts, a.ttl); err != nil {
			log.Warn("Unread cache write failed", "user", userID, "err", err)
		}
	}
	return counts, nil
}

func (a *cachedAggregator) Invalidate(ctx context.Context, userIDs ...string) {
	if !a.cache.Available() {
		return
	}
	for _, userID := range userIDs {
		if err := a.cache.Remove(ctx, userID); err != nil {
			log.Warn("Unread cache invalidation failed", "user", userID, "err", err)
		}
	}
}

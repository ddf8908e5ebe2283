package unread_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/plugin/cache/noop"
	"github.com/workstream-im/chat-service/internal/storetest"
	"github.com/workstream-im/chat-service/internal/unread"
)

// fakeCache is an always-available in-memory UnreadCache.
type fakeCache struct {
	entries map[string]map[uuid.UUID]int64
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]map[uuid.UUID]int64{}}
}

func (c *fakeCache) Available() bool { return true }

func (c *fakeCache) Get(_ context.Context, userID string) (map[uuid.UUID]int64, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	counts, ok := c.entries[userID]
	return counts, ok, nil
}

func (c *fakeCache) Set(_ context.Context, userID string, counts map[uuid.UUID]int64, _ time.Duration) error {
	c.entries[userID] = counts
	return nil
}

func (c *fakeCache) Remove(_ context.Context, userID string) error {
	delete(c.entries, userID)
	return nil
}

func seed(t *testing.T, st *storetest.Store) []model.Membership {
	t.Helper()
	ctx := context.Background()
	conv := model.Conversation{ID: uuid.New(), Type: model.ConversationGroup, CreatedBy: "alice", CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, st.CreateConversation(ctx, &conv))
	require.NoError(t, st.CreateMembership(ctx, &model.Membership{ConversationID: conv.ID, UserID: "alice", CreatedAt: conv.CreatedAt}))
	require.NoError(t, st.InsertMessage(ctx, &model.Message{
		ID: uuid.New(), ConversationID: conv.ID, SenderID: "bob",
		Content: "hi", Type: model.MessageText, CreatedAt: time.Now(),
	}))
	memberships, err := st.ListVisibleMemberships(ctx, "alice")
	require.NoError(t, err)
	return memberships
}

func TestCountsCacheMissThenHit(t *testing.T) {
	st := storetest.New()
	memberships := seed(t, st)
	cache := newFakeCache()
	agg := unread.New(cache, time.Minute)
	ctx := context.Background()

	counts, err := agg.Counts(ctx, st, "alice", memberships)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[memberships[0].ConversationID])

	// Second call is served from cache, surviving a failing backend.
	st.FailUnread = errors.New("count query down")
	counts, err = agg.Counts(ctx, st, "alice", memberships)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[memberships[0].ConversationID])
}

func TestInvalidateDropsCachedCounts(t *testing.T) {
	st := storetest.New()
	memberships := seed(t, st)
	cache := newFakeCache()
	agg := unread.New(cache, time.Minute)
	ctx := context.Background()

	_, err := agg.Counts(ctx, st, "alice", memberships)
	require.NoError(t, err)

	agg.Invalidate(ctx, "alice")

	st.FailUnread = errors.New("count query down")
	_, err = agg.Counts(ctx, st, "alice", memberships)
	require.Error(t, err)
}

func TestCacheReadFailureFallsThrough(t *testing.T) {
	st := storetest.New()
	memberships := seed(t, st)
	cache := newFakeCache()
	cache.getErr = errors.New("cache down")
	agg := unread.New(cache, time.Minute)

	counts, err := agg.Counts(context.Background(), st, "alice", memberships)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[memberships[0].ConversationID])
}

func TestNoopCacheAlwaysCounts(t *testing.T) {
	st := storetest.New()
	memberships := seed(t, st)
	agg := unread.New(noop.Cache{}, time.Minute)
	ctx := context.Background()

	counts, err := agg.Counts(ctx, st, "alice", memberships)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[memberships[0].ConversationID])

	// Invalidate on an unavailable cache is a no-op, not a panic.
	agg.Invalidate(ctx, "alice")
}

package rules

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/workstream-im/chat-service/internal/model"
)

func TestContactSetIncludesSelf(t *testing.T) {
	set := NewContactSet("alice", []string{"bob"})
	assert.True(t, set.Contains("alice"))
	assert.True(t, set.Contains("bob"))
	assert.False(t, set.Contains("carol"))
}

func TestIsVisibleMembership(t *testing.T) {
	now := time.Now()
	assert.True(t, IsVisibleMembership(model.Membership{}))
	assert.False(t, IsVisibleMembership(model.Membership{IsHidden: true}))
	assert.False(t, IsVisibleMembership(model.Membership{DeletedAt: &now}))
}

func TestIsContactVisibleDirect(t *testing.T) {
	contacts := NewContactSet("alice", []string{"bob"})

	// Non-direct conversations always pass this gate.
	assert.True(t, IsContactVisibleDirect(model.ConversationGroup, []string{"alice", "stranger"}, "alice", contacts))

	// Direct with a contact is visible; with a non-contact it is not.
	assert.True(t, IsContactVisibleDirect(model.ConversationDirect, []string{"alice", "bob"}, "alice", contacts))
	assert.False(t, IsContactVisibleDirect(model.ConversationDirect, []string{"alice", "stranger"}, "alice", contacts))

	// Self-conversation has no other participant to gate on.
	assert.True(t, IsContactVisibleDirect(model.ConversationDirect, []string{"alice"}, "alice", contacts))

	// Empty contact set hides rather than leaks.
	assert.False(t, IsContactVisibleDirect(model.ConversationDirect, []string{"alice", "bob"}, "alice", NewContactSet("alice", nil)))
}

func TestDirectPairKeyIsOrderInsensitive(t *testing.T) {
	assert.Equal(t, DirectPairKey([]string{"alice", "bob"}), DirectPairKey([]string{"bob", "alice"}))
	assert.NotEqual(t, DirectPairKey([]string{"alice", "bob"}), DirectPairKey([]string{"alice", "carol"}))
	assert.Equal(t, DirectPairKey([]string{"alice"}), DirectPairKey([]string{"alice"}))
}

func TestPreferDirectTotalOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := base.Add(-time.Hour)
	newer := base.Add(time.Hour)

	withActivity := model.Conversation{ID: uuid.New(), CreatedAt: base, LastMessageAt: &base}
	silent := model.Conversation{ID: uuid.New(), CreatedAt: older}

	// Any activity beats none, regardless of argument order.
	assert.Equal(t, withActivity.ID, PreferDirect(withActivity, silent).ID)
	assert.Equal(t, withActivity.ID, PreferDirect(silent, withActivity).ID)

	// More recent activity wins.
	busier := model.Conversation{ID: uuid.New(), CreatedAt: base, LastMessageAt: &newer}
	assert.Equal(t, busier.ID, PreferDirect(withActivity, busier).ID)
	assert.Equal(t, busier.ID, PreferDirect(busier, withActivity).ID)

	// No activity on either side: the older conversation survives.
	evenOlder := model.Conversation{ID: uuid.New(), CreatedAt: older.Add(-time.Hour)}
	assert.Equal(t, evenOlder.ID, PreferDirect(silent, evenOlder).ID)
	assert.Equal(t, evenOlder.ID, PreferDirect(evenOlder, silent).ID)

	// Full tie falls back to the smallest ID, still deterministic.
	a := model.Conversation{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: base}
	b := model.Conversation{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), CreatedAt: base}
	assert.Equal(t, a.ID, PreferDirect(a, b).ID)
	assert.Equal(t, a.ID, PreferDirect(b, a).ID)
}

func TestOtherDirectMembers(t *testing.T) {
	assert.Equal(t, []string{"bob"}, OtherDirectMembers([]string{"alice", "bob"}, "alice"))
	assert.Empty(t, OtherDirectMembers([]string{"alice"}, "alice"))
}

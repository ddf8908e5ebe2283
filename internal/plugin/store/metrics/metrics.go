package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/security"
)

// Wrap returns a ChatStore that records StoreLatency for every operation,
// labeled with the region the backend serves.
func Wrap(inner store.ChatStore, region model.Region) store.ChatStore {
	return &metricsStore{inner: inner, region: string(region)}
}

type metricsStore struct {
	inner  store.ChatStore
	region string
}

func (m *metricsStore) observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(m.region, op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	defer m.observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, id)
}

func (m *metricsStore) GetConversations(ctx context.Context, ids []uuid.UUID) ([]model.Conversation, error) {
	defer m.observe("get_conversations", time.Now())
	return m.inner.GetConversations(ctx, ids)
}

func (m *metricsStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	defer m.observe("create_conversation", time.Now())
	return m.inner.CreateConversation(ctx, conv)
}

func (m *metricsStore) SetLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer m.observe("set_last_message_at", time.Now())
	return m.inner.SetLastMessageAt(ctx, id, at)
}

func (m *metricsStore) ListVisibleMemberships(ctx context.Context, userID string) ([]model.Membership, error) {
	defer m.observe("list_visible_memberships", time.Now())
	return m.inner.ListVisibleMemberships(ctx, userID)
}

func (m *metricsStore) ListMembershipsByConversations(ctx context.Context, conversationIDs []uuid.UUID) ([]model.Membership, error) {
	defer m.observe("list_memberships_by_conversations", time.Now())
	return m.inner.ListMembershipsByConversations(ctx, conversationIDs)
}

func (m *metricsStore) GetMembership(ctx context.Context, conversationID uuid.UUID, userID string) (*model.Membership, error) {
	defer m.observe("get_membership", time.Now())
	return m.inner.GetMembership(ctx, conversationID, userID)
}

func (m *metricsStore) CreateMembership(ctx context.Context, membership *model.Membership) error {
	defer m.observe("create_membership", time.Now())
	return m.inner.CreateMembership(ctx, membership)
}

func (m *metricsStore) SetMembershipPinned(ctx context.Context, conversationID uuid.UUID, userID string, pinned bool, at time.Time) error {
	defer m.observe("set_membership_pinned", time.Now())
	return m.inner.SetMembershipPinned(ctx, conversationID, userID, pinned, at)
}

func (m *metricsStore) SetMembershipHidden(ctx context.Context, conversationID uuid.UUID, userID string, hidden bool, at time.Time) error {
	defer m.observe("set_membership_hidden", time.Now())
	return m.inner.SetMembershipHidden(ctx, conversationID, userID, hidden, at)
}

func (m *metricsStore) SetMembershipLastRead(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	defer m.observe("set_membership_last_read", time.Now())
	return m.inner.SetMembershipLastRead(ctx, conversationID, userID, at)
}

func (m *metricsStore) SoftDeleteMembership(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	defer m.observe("soft_delete_membership", time.Now())
	return m.inner.SoftDeleteMembership(ctx, conversationID, userID, at)
}

func (m *metricsStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	defer m.observe("insert_message", time.Now())
	return m.inner.InsertMessage(ctx, msg)
}

func (m *metricsStore) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	defer m.observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, id)
}

func (m *metricsStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	defer m.observe("update_message", time.Now())
	return m.inner.UpdateMessage(ctx, msg)
}

func (m *metricsStore) ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, error) {
	defer m.observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, conversationID, before, limit)
}

func (m *metricsStore) LatestMessages(ctx context.Context, viewerID string, conversationIDs []uuid.UUID) (map[uuid.UUID]model.Message, error) {
	defer m.observe("latest_messages", time.Now())
	return m.inner.LatestMessages(ctx, viewerID, conversationIDs)
}

func (m *metricsStore) CountUnread(ctx context.Context, userID string, memberships []model.Membership) (map[uuid.UUID]int64, error) {
	defer m.observe("count_unread", time.Now())
	return m.inner.CountUnread(ctx, userID, memberships)
}

func (m *metricsStore) HideMessage(ctx context.Context, userID string, messageID uuid.UUID) error {
	defer m.observe("hide_message", time.Now())
	return m.inner.HideMessage(ctx, userID, messageID)
}

func (m *metricsStore) UnhideMessage(ctx context.Context, userID string, messageID uuid.UUID) error {
	defer m.observe("unhide_message", time.Now())
	return m.inner.UnhideMessage(ctx, userID, messageID)
}

func (m *metricsStore) ListHiddenMessageIDs(ctx context.Context, userID string, conversationID uuid.UUID) ([]uuid.UUID, error) {
	defer m.observe("list_hidden_message_ids", time.Now())
	return m.inner.ListHiddenMessageIDs(ctx, userID, conversationID)
}

func (m *metricsStore) ListContactIDs(ctx context.Context, userID string) ([]string, error) {
	defer m.observe("list_contact_ids", time.Now())
	return m.inner.ListContactIDs(ctx, userID)
}

func (m *metricsStore) AddContact(ctx context.Context, userID, contactUserID string) error {
	defer m.observe("add_contact", time.Now())
	return m.inner.AddContact(ctx, userID, contactUserID)
}

func (m *metricsStore) RemoveContact(ctx context.Context, userID, contactUserID string) error {
	defer m.observe("remove_contact", time.Now())
	return m.inner.RemoveContact(ctx, userID, contactUserID)
}

func (m *metricsStore) GetUserProfiles(ctx context.Context, ids []string) ([]model.UserProfile, error) {
	defer m.observe("get_user_profiles", time.Now())
	return m.inner.GetUserProfiles(ctx, ids)
}

var _ store.ChatStore = (*metricsStore)(nil)

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/model"
)

// ChatStore is the backend adapter interface. Implementations are raw CRUD
// primitives against one physical store; all cross-entity logic (visibility,
// dedup, contact gating) lives above this interface and must never branch on
// the backend kind.
//
// Every call is expected to enforce its own timeout against the underlying
// driver; callers fail closed on error rather than returning partial data.
type ChatStore interface {
	// Conversations
	GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	GetConversations(ctx context.Context, ids []uuid.UUID) ([]model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	// SetLastMessageAt writes the denormalized activity hint. Last write wins;
	// concurrent sends may race and that is accepted.
	SetLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error

	// Memberships
	//
	// ListVisibleMemberships returns the caller's memberships with
	// deleted_at IS NULL and is_hidden false; this is the sole definition of
	// "the user's conversation list".
	ListVisibleMemberships(ctx context.Context, userID string) ([]model.Membership, error)
	ListMembershipsByConversations(ctx context.Context, conversationIDs []uuid.UUID) ([]model.Membership, error)
	GetMembership(ctx context.Context, conversationID uuid.UUID, userID string) (*model.Membership, error)
	CreateMembership(ctx context.Context, m *model.Membership) error
	SetMembershipPinned(ctx context.Context, conversationID uuid.UUID, userID string, pinned bool, at time.Time) error
	SetMembershipHidden(ctx context.Context, conversationID uuid.UUID, userID string, hidden bool, at time.Time) error
	SetMembershipLastRead(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error
	SoftDeleteMembership(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error

	// Messages
	InsertMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// UpdateMessage persists the mutable fields of msg (content, metadata,
	// reactions, flags, updated_at) keyed by msg.ID.
	UpdateMessage(ctx context.Context, msg *model.Message) error
	// ListMessages returns messages for one conversation ordered by created_at
	// descending, optionally only those created before the given time.
	ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, error)
	// LatestMessages returns the most recent message per conversation ID as
	// seen by viewerID: messages the viewer hid are skipped so the preview
	// falls back to the next newest. Conversations with no eligible messages
	// are absent from the result.
	LatestMessages(ctx context.Context, viewerID string, conversationIDs []uuid.UUID) (map[uuid.UUID]model.Message, error)
	// CountUnread counts, per membership, messages created after the
	// membership's last_read_at that were not sent by the member and are not
	// deleted. A nil last_read_at counts everything.
	CountUnread(ctx context.Context, userID string, memberships []model.Membership) (map[uuid.UUID]int64, error)

	// Hidden messages (per-user suppression; both directions are idempotent)
	HideMessage(ctx context.Context, userID string, messageID uuid.UUID) error
	UnhideMessage(ctx context.Context, userID string, messageID uuid.UUID) error
	ListHiddenMessageIDs(ctx context.Context, userID string, conversationID uuid.UUID) ([]uuid.UUID, error)

	// Contacts
	ListContactIDs(ctx context.Context, userID string) ([]string, error)
	AddContact(ctx context.Context, userID, contactUserID string) error
	RemoveContact(ctx context.Context, userID, contactUserID string) error

	// Profiles. Read-only; the users table/collection is owned by the auth
	// subsystem. Unknown IDs are silently absent from the result.
	GetUserProfiles(ctx context.Context, ids []string) ([]model.UserProfile, error)
}

// Loader creates a ChatStore for one regional deployment from its
// connection URL.
type Loader func(ctx context.Context, dbURL string) (ChatStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Region identifies which regional deployment owns a user's data.
type Region string

const (
	// RegionA is backed by the document store (MongoDB).
	RegionA Region = "a"
	// RegionB is backed by the relational store (PostgreSQL).
	RegionB Region = "b"
)

// ParseRegion normalizes a region string. Returns false for anything that is
// not a known region; callers must treat that as an authentication failure,
// never fall back to a default backend.
func ParseRegion(raw string) (Region, bool) {
	switch Region(raw) {
	case RegionA, RegionB:
		return Region(raw), true
	case "A":
		return RegionA, true
	case "B":
		return RegionB, true
	default:
		return "", false
	}
}

// ConversationType classifies a conversation.
type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationGroup   ConversationType = "group"
	ConversationChannel ConversationType = "channel"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageVideo  MessageType = "video"
	MessageAudio  MessageType = "audio"
	MessageSystem MessageType = "system"
	MessageCode   MessageType = "code"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageVideo, MessageAudio, MessageSystem, MessageCode:
		return true
	default:
		return false
	}
}

// MemberRole is the role a user holds within a conversation.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// UserProfile is the read-only projection of a user owned by the auth
// subsystem. This core never writes users.
type UserProfile struct {
	ID          string `json:"id"          gorm:"primaryKey;column:id"`
	Region      Region `json:"-"           gorm:"column:region"`
	DisplayName string `json:"displayName" gorm:"column:display_name"`
	AvatarURL   string `json:"avatarUrl"   gorm:"column:avatar_url"`
	Status      string `json:"status"      gorm:"column:status"`
}

func (UserProfile) TableName() string { return "users" }

// Conversation is the shared conversation entity. Rows are never hard
// deleted; per-user removal lives on Membership.
type Conversation struct {
	ID        uuid.UUID        `json:"id"             gorm:"primaryKey;type:uuid"`
	Type      ConversationType `json:"type"           gorm:"not null"`
	Name      *string          `json:"name,omitempty"`
	IsPrivate bool             `json:"isPrivate"      gorm:"not null;default:false"`
	CreatedBy string           `json:"createdBy"      gorm:"not null"`
	CreatedAt time.Time        `json:"createdAt"      gorm:"not null;default:now()"`
	// LastMessageAt is a denormalized display hint bumped best-effort on every
	// accepted message. Never authoritative for correctness-sensitive ordering.
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// Membership is the per-(user, conversation) row carrying every piece of
// user-scoped view state: role, read cursor, pin, hide, soft leave. Pin,
// hide, and delete are per-user and must never leak onto the Conversation.
type Membership struct {
	ConversationID uuid.UUID  `json:"conversationId"       gorm:"primaryKey;type:uuid"`
	UserID         string     `json:"userId"               gorm:"primaryKey"`
	Role           MemberRole `json:"role"                 gorm:"not null;default:'member'"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
	IsPinned       bool       `json:"isPinned"             gorm:"not null;default:false"`
	PinnedAt       *time.Time `json:"pinnedAt,omitempty"`
	IsHidden       bool       `json:"isHidden"             gorm:"not null;default:false"`
	HiddenAt       *time.Time `json:"hiddenAt,omitempty"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"            gorm:"not null;default:now()"`
}

func (Membership) TableName() string { return "conversation_members" }

// Reaction is one emoji bucket on a message. A bucket with no user IDs must
// not be stored.
type Reaction struct {
	Emoji   string   `json:"emoji"   bson:"emoji"`
	UserIDs []string `json:"userIds" bson:"user_ids"`
}

// Message is the shared message entity. IsDeleted and IsRecalled are
// mutually exclusive terminal flags; once either is set the content has been
// replaced by a placeholder and content edits are rejected.
type Message struct {
	ID             uuid.UUID      `json:"id"                 gorm:"primaryKey;type:uuid"`
	ConversationID uuid.UUID      `json:"conversationId"     gorm:"not null;type:uuid;index"`
	SenderID       string         `json:"senderId"           gorm:"not null"`
	Content        string         `json:"content"            gorm:"type:text;not null"`
	Type           MessageType    `json:"type"               gorm:"not null"`
	Metadata       map[string]any `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	Reactions      []Reaction     `json:"reactions"          gorm:"type:jsonb;serializer:json"`
	IsEdited       bool           `json:"isEdited"           gorm:"not null;default:false"`
	IsDeleted      bool           `json:"isDeleted"          gorm:"not null;default:false"`
	IsRecalled     bool           `json:"isRecalled"         gorm:"not null;default:false"`
	CreatedAt      time.Time      `json:"createdAt"          gorm:"not null;default:now()"`
	UpdatedAt      time.Time      `json:"updatedAt"          gorm:"not null;default:now()"`
}

func (Message) TableName() string { return "messages" }

// Terminal reports whether the message reached a terminal state.
func (m *Message) Terminal() bool { return m.IsDeleted || m.IsRecalled }

// HiddenMessage is a per-user message suppression, independent of the global
// IsDeleted flag. Owned by the subject user.
type HiddenMessage struct {
	UserID    string    `json:"userId"    gorm:"primaryKey"`
	MessageID uuid.UUID `json:"messageId" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

func (HiddenMessage) TableName() string { return "hidden_messages" }

// Contact is a (user -> contact) edge. Used only as the visibility gate for
// direct conversations.
type Contact struct {
	UserID        string    `json:"userId"        gorm:"primaryKey"`
	ContactUserID string    `json:"contactUserId" gorm:"primaryKey"`
	CreatedAt     time.Time `json:"createdAt"     gorm:"not null;default:now()"`
}

func (Contact) TableName() string { return "contacts" }

// Package storetest provides an in-memory ChatStore for unit tests of the
// service and route layers. It mirrors the semantics the real adapters
// implement: soft deletes, idempotent hide/contact writes, newest-first
// message listings.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/registry/store"
)

type memberKey struct {
	conversationID uuid.UUID
	userID         string
}

type hiddenKey struct {
	userID    string
	messageID uuid.UUID
}

type contactKey struct {
	userID        string
	contactUserID string
}

// Store is an in-memory ChatStore. Safe for concurrent use.
//
// Error hooks (FailContacts, FailUnread, ...) force specific operations to
// fail so degraded paths can be exercised without a real backend.
type Store struct {
	mu sync.Mutex

	conversations map[uuid.UUID]model.Conversation
	memberships   map[memberKey]model.Membership
	messages      map[uuid.UUID]model.Message
	hidden        map[hiddenKey]time.Time
	contacts      map[contactKey]time.Time
	profiles      map[string]model.UserProfile

	FailContacts    error
	FailUnread      error
	FailLatest      error
	FailMemberships error
	FailBump        error
}

var _ store.ChatStore = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		conversations: map[uuid.UUID]model.Conversation{},
		memberships:   map[memberKey]model.Membership{},
		messages:      map[uuid.UUID]model.Message{},
		hidden:        map[hiddenKey]time.Time{},
		contacts:      map[contactKey]time.Time{},
		profiles:      map[string]model.UserProfile{},
	}
}

// AddProfile seeds a user profile.
func (s *Store) AddProfile(p model.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *Store) GetConversation(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, &store.NotFoundError{Resource: "conversation", ID: id.String()}
	}
	return &conv, nil
}

func (s *Store) GetConversations(_ context.Context, ids []uuid.UUID) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]model.Conversation, 0, len(ids))
	for _, id := range ids {
		if conv, ok := s.conversations[id]; ok {
			result = append(result, conv)
		}
	}
	return result, nil
}

func (s *Store) CreateConversation(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = *conv
	return nil
}

func (s *Store) SetLastMessageAt(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailBump != nil {
		return s.FailBump
	}
	conv, ok := s.conversations[id]
	if !ok {
		return &store.NotFoundError{Resource: "conversation", ID: id.String()}
	}
	conv.LastMessageAt = &at
	s.conversations[id] = conv
	return nil
}

func (s *Store) ListVisibleMemberships(_ context.Context, userID string) ([]model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMemberships != nil {
		return nil, s.FailMemberships
	}
	var result []model.Membership
	for _, m := range s.memberships {
		if m.UserID == userID && m.DeletedAt == nil && !m.IsHidden {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListMembershipsByConversations(_ context.Context, conversationIDs []uuid.UUID) ([]model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range conversationIDs {
		want[id] = true
	}
	var result []model.Membership
	for _, m := range s.memberships {
		if want[m.ConversationID] {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ConversationID != result[j].ConversationID {
			return result[i].ConversationID.String() < result[j].ConversationID.String()
		}
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

func (s *Store) GetMembership(_ context.Context, conversationID uuid.UUID, userID string) (*model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[memberKey{conversationID, userID}]
	if !ok {
		return nil, &store.NotFoundError{Resource: "membership", ID: conversationID.String()}
	}
	return &m, nil
}

func (s *Store) CreateMembership(_ context.Context, m *model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[memberKey{m.ConversationID, m.UserID}] = *m
	return nil
}

func (s *Store) updateMembership(conversationID uuid.UUID, userID string, mutate func(*model.Membership)) error {
	m, ok := s.memberships[memberKey{conversationID, userID}]
	if !ok {
		return &store.NotFoundError{Resource: "membership", ID: conversationID.String()}
	}
	mutate(&m)
	s.memberships[memberKey{conversationID, userID}] = m
	return nil
}

func (s *Store) SetMembershipPinned(_ context.Context, conversationID uuid.UUID, userID string, pinned bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembership(conversationID, userID, func(m *model.Membership) {
		m.IsPinned = pinned
		if pinned {
			m.PinnedAt = &at
		} else {
			m.PinnedAt = nil
		}
	})
}

func (s *Store) SetMembershipHidden(_ context.Context, conversationID uuid.UUID, userID string, hidden bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembership(conversationID, userID, func(m *model.Membership) {
		m.IsHidden = hidden
		if hidden {
			m.HiddenAt = &at
		} else {
			m.HiddenAt = nil
		}
	})
}

func (s *Store) SetMembershipLastRead(_ context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembership(conversationID, userID, func(m *model.Membership) {
		m.LastReadAt = &at
	})
}

func (s *Store) SoftDeleteMembership(_ context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembership(conversationID, userID, func(m *model.Membership) {
		m.DeletedAt = &at
	})
}

func (s *Store) InsertMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *Store) GetMessage(_ context.Context, id uuid.UUID) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, &store.NotFoundError{Resource: "message", ID: id.String()}
	}
	return &msg, nil
}

func (s *Store) UpdateMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; !ok {
		return &store.NotFoundError{Resource: "message", ID: msg.ID.String()}
	}
	s.messages[msg.ID] = *msg
	return nil
}

func (s *Store) ListMessages(_ context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Message
	for _, msg := range s.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if before != nil && !msg.CreatedAt.Before(*before) {
			continue
		}
		result = append(result, msg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) LatestMessages(_ context.Context, viewerID string, conversationIDs []uuid.UUID) (map[uuid.UUID]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLatest != nil {
		return nil, s.FailLatest
	}
	want := map[uuid.UUID]bool{}
	for _, id := range conversationIDs {
		want[id] = true
	}
	result := map[uuid.UUID]model.Message{}
	for _, msg := range s.messages {
		if !want[msg.ConversationID] {
			continue
		}
		if _, hidden := s.hidden[hiddenKey{viewerID, msg.ID}]; hidden {
			continue
		}
		if cur, ok := result[msg.ConversationID]; !ok || msg.CreatedAt.After(cur.CreatedAt) {
			result[msg.ConversationID] = msg
		}
	}
	return result, nil
}

func (s *Store) CountUnread(_ context.Context, userID string, memberships []model.Membership) (map[uuid.UUID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUnread != nil {
		return nil, s.FailUnread
	}
	result := map[uuid.UUID]int64{}
	for _, m := range memberships {
		var count int64
		for _, msg := range s.messages {
			if msg.ConversationID != m.ConversationID || msg.SenderID == userID || msg.IsDeleted {
				continue
			}
			if m.LastReadAt == nil || msg.CreatedAt.After(*m.LastReadAt) {
				count++
			}
		}
		if count > 0 {
			result[m.ConversationID] = count
		}
	}
	return result, nil
}

func (s *Store) HideMessage(_ context.Context, userID string, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := hiddenKey{userID, messageID}
	if _, ok := s.hidden[k]; !ok {
		s.hidden[k] = time.Now()
	}
	return nil
}

func (s *Store) UnhideMessage(_ context.Context, userID string, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hidden, hiddenKey{userID, messageID})
	return nil
}

func (s *Store) ListHiddenMessageIDs(_ context.Context, userID string, conversationID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []uuid.UUID
	for k := range s.hidden {
		if k.userID != userID {
			continue
		}
		if msg, ok := s.messages[k.messageID]; ok && msg.ConversationID == conversationID {
			result = append(result, k.messageID)
		}
	}
	return result, nil
}

func (s *Store) ListContactIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailContacts != nil {
		return nil, s.FailContacts
	}
	var result []string
	for k := range s.contacts {
		if k.userID == userID {
			result = append(result, k.contactUserID)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (s *Store) AddContact(_ context.Context, userID, contactUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := contactKey{userID, contactUserID}
	if _, ok := s.contacts[k]; !ok {
		s.contacts[k] = time.Now()
	}
	return nil
}

func (s *Store) RemoveContact(_ context.Context, userID, contactUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, contactKey{userID, contactUserID})
	return nil
}

func (s *Store) GetUserProfiles(_ context.Context, ids []string) ([]model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]model.UserProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

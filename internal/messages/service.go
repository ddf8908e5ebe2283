// Package messages implements message CRUD: send, edit, delete, recall,
// react, and per-user hide, plus the best-effort last-activity bump on the
// parent conversation.
package messages

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/region"
	"github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/rules"
	"github.com/workstream-im/chat-service/internal/security"
	"github.com/workstream-im/chat-service/internal/unread"
)

const (
	// RecallWindow is how long after creation a message may still be recalled.
	RecallWindow = 120 * time.Second

	deletedPlaceholder  = "This message was deleted"
	recalledPlaceholder = "This message was recalled"
)

// SendRequest carries the inputs of a message send.
type SendRequest struct {
	ConversationID uuid.UUID
	Content        string
	Type           model.MessageType
	Metadata       map[string]any
}

// EditRequest carries the inputs of a message edit. Nil fields are left
// unchanged.
type EditRequest struct {
	Content  *string
	Metadata map[string]any
}

// Service implements the message operations. Stateless between requests.
type Service struct {
	Router *region.Router
	Policy rules.Policy
	Unread unread.Aggregator

	// now is swappable for tests exercising the recall window.
	now func() time.Time
}

// NewService creates a message service.
func NewService(router *region.Router, policy rules.Policy, aggregator unread.Aggregator) *Service {
	return &Service{Router: router, Policy: policy, Unread: aggregator, now: time.Now}
}

// Send persists a new message. Requires an active, visible membership. For
// direct conversations the contact gate is checked; a send to a non-contact
// is permitted when the workspace override policy allows it, and is logged
// rather than blocked.
//
// The last_message_at bump on the conversation is best-effort: its failure
// is logged and swallowed, never surfaced to the sender.
func (s *Service) Send(ctx context.Context, p security.Principal, req SendRequest) (*model.Message, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	if req.Content == "" {
		return nil, &store.ValidationError{Field: "content", Message: "must not be empty"}
	}
	if req.Type == "" {
		req.Type = model.MessageText
	}
	if !model.ValidMessageType(req.Type) {
		return nil, &store.ValidationError{Field: "type", Message: "unknown message type"}
	}

	conv, err := st.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	membership, err := st.GetMembership(ctx, req.ConversationID, p.ID)
	if err != nil {
		return nil, err
	}
	if membership.DeletedAt != nil {
		return nil, &store.ForbiddenError{}
	}

	if conv.Type == model.ConversationDirect {
		if err := s.checkContactGate(ctx, st, conv, p.ID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	msg := &model.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       p.ID,
		Content:        req.Content,
		Type:           req.Type,
		Metadata:       req.Metadata,
		Reactions:      []model.Reaction{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := st.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := st.SetLastMessageAt(ctx, conv.ID, msg.CreatedAt); err != nil {
		log.Warn("Failed to bump conversation last_message_at", "conversation", conv.ID, "err", err)
	}
	s.invalidateUnread(ctx, st, conv.ID, p.ID)

	return msg, nil
}

// checkContactGate applies the direct-conversation contact rule for a send.
// A missing contact edge is not fatal when the workspace override is on;
// the bypass is logged and counted.
func (s *Service) checkContactGate(ctx context.Context, st store.ChatStore, conv *model.Conversation, senderID string) error {
	roster, err := st.ListMembershipsByConversations(ctx, []uuid.UUID{conv.ID})
	if err != nil {
		return err
	}
	memberIDs := make([]string, 0, len(roster))
	for _, m := range roster {
		memberIDs = append(memberIDs, m.UserID)
	}

	contactIDs, err := st.ListContactIDs(ctx, senderID)
	if err != nil {
		// Fail closed unless the override says the gate cannot block sends.
		if !s.Policy.AllowNonContactDirect {
			return err
		}
		log.Warn("Contact lookup failed during send, override permits it", "sender", senderID, "err", err)
		contactIDs = nil
	}
	contacts := rules.NewContactSet(senderID, contactIDs)

	if rules.IsContactVisibleDirect(conv.Type, memberIDs, senderID, contacts) {
		return nil
	}
	if !s.Policy.AllowNonContactDirect {
		return &store.ForbiddenError{}
	}
	log.Info("Direct send to non-contact permitted by workspace override",
		"sender", senderID, "conversation", conv.ID)
	if security.ContactGateBypassesTotal != nil {
		security.ContactGateBypassesTotal.Inc()
	}
	return nil
}

// Edit updates content and/or metadata. Content edits on deleted or recalled
// messages are rejected; IsEdited is set only when the content actually
// changes.
func (s *Service) Edit(ctx context.Context, p security.Principal, messageID uuid.UUID, req EditRequest) (*model.Message, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	msg, err := st.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != p.ID {
		return nil, &store.ForbiddenError{}
	}

	changed := false
	if req.Content != nil {
		if msg.Terminal() {
			return nil, &store.ConflictError{Message: "cannot edit a deleted or recalled message"}
		}
		if *req.Content != msg.Content {
			msg.Content = *req.Content
			msg.IsEdited = true
			changed = true
		}
	}
	if req.Metadata != nil {
		msg.Metadata = req.Metadata
		changed = true
	}
	if !changed {
		return msg, nil
	}

	msg.UpdatedAt = s.now()
	if err := st.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete flips the terminal deleted flag and replaces the content with a
// fixed placeholder. Idempotent: deleting an already-deleted message returns
// it unchanged. Metadata and reactions are left untouched.
func (s *Service) Delete(ctx context.Context, p security.Principal, messageID uuid.UUID) (*model.Message, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	msg, err := st.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != p.ID {
		return nil, &store.ForbiddenError{}
	}
	if msg.IsDeleted {
		return msg, nil
	}
	if msg.IsRecalled {
		return nil, &store.ConflictError{Message: "message is already recalled"}
	}

	msg.IsDeleted = true
	msg.Content = deletedPlaceholder
	msg.UpdatedAt = s.now()
	if err := st.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Recall withdraws a recent message for everyone. Allowed only within
// RecallWindow of creation and only while the message is not already in a
// terminal state. A late recall returns RecallWindowError so callers can
// distinguish "too old" from "not found".
func (s *Service) Recall(ctx context.Context, p security.Principal, messageID uuid.UUID) (*model.Message, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	msg, err := st.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != p.ID {
		return nil, &store.ForbiddenError{}
	}
	if msg.Terminal() {
		return nil, &store.ConflictError{Message: "message is already deleted or recalled"}
	}
	if s.now().Sub(msg.CreatedAt) > RecallWindow {
		return nil, &store.RecallWindowError{ID: messageID.String()}
	}

	msg.IsRecalled = true
	msg.Content = recalledPlaceholder
	msg.UpdatedAt = s.now()
	if err := st.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// AddReaction records the user under the emoji bucket. Idempotent per
// (emoji, user).
func (s *Service) AddReaction(ctx context.Context, p security.Principal, messageID uuid.UUID, emoji string) (*model.Message, error) {
	if emoji == "" {
		return nil, &store.ValidationError{Field: "emoji", Message: "must not be empty"}
	}
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	msg, err := st.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	for i, bucket := range msg.Reactions {
		if bucket.Emoji != emoji {
			continue
		}
		for _, userID := range bucket.UserIDs {
			if userID == p.ID {
				return msg, nil // already reacted
			}
		}
		msg.Reactions[i].UserIDs = append(bucket.UserIDs, p.ID)
		return s.saveReactions(ctx, st, msg)
	}
	msg.Reactions = append(msg.Reactions, model.Reaction{Emoji: emoji, UserIDs: []string{p.ID}})
	return s.saveReactions(ctx, st, msg)
}

// RemoveReaction drops the user from the emoji bucket and removes the bucket
// once it holds no users. Removing a reaction that was never added is a
// no-op success.
func (s *Service) RemoveReaction(ctx context.Context, p security.Principal, messageID uuid.UUID, emoji string) (*model.Message, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	msg, err := st.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	for i, bucket := range msg.Reactions {
		if bucket.Emoji != emoji {
			continue
		}
		kept := bucket.UserIDs[:0]
		for _, userID := range bucket.UserIDs {
			if userID != p.ID {
				kept = append(kept, userID)
			}
		}
		if len(kept) == len(bucket.UserIDs) {
			return msg, nil // user never reacted
		}
		if len(kept) == 0 {
			// Empty buckets are never stored.
			msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
		} else {
			msg.Reactions[i].UserIDs = kept
		}
		return s.saveReactions(ctx, st, msg)
	}
	return msg, nil
}

func (s *Service) saveReactions(ctx context.Context, st store.ChatStore, msg *model.Message) (*model.Message, error) {
	msg.UpdatedAt = s.now()
	if err := st.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Hide suppresses the message from the caller's own view. Idempotent.
func (s *Service) Hide(ctx context.Context, p security.Principal, messageID uuid.UUID) error {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return err
	}
	if _, err := st.GetMessage(ctx, messageID); err != nil {
		return err
	}
	return st.HideMessage(ctx, p.ID, messageID)
}

// Unhide reverses Hide. Idempotent.
func (s *Service) Unhide(ctx context.Context, p security.Principal, messageID uuid.UUID) error {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return err
	}
	return st.UnhideMessage(ctx, p.ID, messageID)
}

// List reads the conversation history newest-first, excluding messages the
// caller has hidden. Requires an active membership.
func (s *Service) List(ctx context.Context, p security.Principal, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	membership, err := st.GetMembership(ctx, conversationID, p.ID)
	if err != nil {
		return nil, err
	}
	if membership.DeletedAt != nil {
		return nil, &store.ForbiddenError{}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	msgs, err := st.ListMessages(ctx, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	hiddenIDs, err := st.ListHiddenMessageIDs(ctx, p.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if len(hiddenIDs) == 0 {
		return msgs, nil
	}
	hidden := make(map[uuid.UUID]struct{}, len(hiddenIDs))
	for _, id := range hiddenIDs {
		hidden[id] = struct{}{}
	}
	filtered := msgs[:0]
	for _, m := range msgs {
		if _, ok := hidden[m.ID]; !ok {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// invalidateUnread drops cached unread counts for every member of the
// conversation besides the sender. Best-effort.
func (s *Service) invalidateUnread(ctx context.Context, st store.ChatStore, conversationID uuid.UUID, senderID string) {
	roster, err := st.ListMembershipsByConversations(ctx, []uuid.UUID{conversationID})
	if err != nil {
		log.Warn("Failed to load roster for unread invalidation", "conversation", conversationID, "err", err)
		return
	}
	var userIDs []string
	for _, m := range roster {
		if m.UserID != senderID && m.DeletedAt == nil {
			userIDs = append(userIDs, m.UserID)
		}
	}
	s.Unread.Invalidate(ctx, userIDs...)
}

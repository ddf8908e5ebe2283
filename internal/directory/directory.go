// Package directory builds the user-facing conversation list: memberships
// joined with conversations, rosters, last messages, unread counts, and
// per-user pin state, with contact-gated visibility and duplicate-direct
// collapse applied on top. It also owns the per-user membership operations
// (pin, hide, mark-read, leave) and conversation creation.
package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/profile"
	"github.com/workstream-im/chat-service/internal/region"
	"github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/rules"
	"github.com/workstream-im/chat-service/internal/security"
	"github.com/workstream-im/chat-service/internal/unread"
)

// ConversationSummary is the backend-agnostic shape handed to the
// presentation layer.
type ConversationSummary struct {
	ID            uuid.UUID              `json:"id"`
	Type          model.ConversationType `json:"type"`
	Name          *string                `json:"name,omitempty"`
	IsPrivate     bool                   `json:"isPrivate"`
	Members       []model.UserProfile    `json:"members"`
	LastMessage   *model.Message         `json:"lastMessage,omitempty"`
	UnreadCount   int64                  `json:"unreadCount"`
	IsPinned      bool                   `json:"isPinned"`
	PinnedAt      *time.Time             `json:"pinnedAt,omitempty"`
	LastMessageAt *time.Time             `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// CreateConversationRequest carries the inputs for conversation creation.
type CreateConversationRequest struct {
	Type      model.ConversationType
	Name      *string
	IsPrivate bool
	// MemberIDs are the initial members besides the creator. A direct
	// conversation takes exactly one (or none, for a self-conversation).
	MemberIDs []string
}

// Service is the conversation directory. Stateless between requests; every
// method resolves the caller's regional backend through the router.
type Service struct {
	Router   *region.Router
	Unread   unread.Aggregator
	Profiles *profile.Resolver
}

// ListConversations materializes the caller's conversation list.
//
// The primary fetches (memberships, conversations, rosters, last messages,
// profiles) fail the whole call; the secondary inputs (contacts, unread
// counts) degrade to empty so the list stays available. Degrading contacts
// to empty hides direct conversations rather than leaking them.
func (s *Service) ListConversations(ctx context.Context, p security.Principal) ([]ConversationSummary, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}

	memberships, err := st.ListVisibleMemberships(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []ConversationSummary{}, nil
	}

	ownByConv := make(map[uuid.UUID]model.Membership, len(memberships))
	convIDs := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		ownByConv[m.ConversationID] = m
		convIDs = append(convIDs, m.ConversationID)
	}

	conversations, err := st.GetConversations(ctx, convIDs)
	if err != nil {
		return nil, err
	}

	// The remaining sub-fetches are read-only and mutually independent, so
	// they run concurrently and join before any filtering happens.
	var (
		wg         sync.WaitGroup
		rosters    []model.Membership
		rostersErr error
		contactIDs []string
		contactErr error
		lastMsgs   map[uuid.UUID]model.Message
		lastErr    error
		unreadMap  map[uuid.UUID]int64
		unreadErr  error
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		rosters, rostersErr = st.ListMembershipsByConversations(ctx, convIDs)
	}()
	go func() {
		defer wg.Done()
		contactIDs, contactErr = st.ListContactIDs(ctx, p.ID)
	}()
	go func() {
		defer wg.Done()
		lastMsgs, lastErr = st.LatestMessages(ctx, p.ID, convIDs)
	}()
	go func() {
		defer wg.Done()
		unreadMap, unreadErr = s.Unread.Counts(ctx, st, p.ID, memberships)
	}()
	wg.Wait()

	if rostersErr != nil {
		return nil, rostersErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	if contactErr != nil {
		// Empty contact set hides direct conversations instead of leaking them.
		log.Warn("Contact lookup failed, treating contact set as empty", "user", p.ID, "err", contactErr)
		contactIDs = nil
	}
	if unreadErr != nil {
		log.Warn("Unread count lookup failed, omitting counts", "user", p.ID, "err", unreadErr)
		unreadMap = nil
	}

	rosterByConv := make(map[uuid.UUID][]string, len(convIDs))
	memberIDSet := make(map[string]struct{})
	for _, m := range rosters {
		rosterByConv[m.ConversationID] = append(rosterByConv[m.ConversationID], m.UserID)
		memberIDSet[m.UserID] = struct{}{}
	}
	memberIDs := make([]string, 0, len(memberIDSet))
	for id := range memberIDSet {
		memberIDs = append(memberIDs, id)
	}
	profiles, err := s.Profiles.Resolve(ctx, st, memberIDs)
	if err != nil {
		return nil, err
	}

	contacts := rules.NewContactSet(p.ID, contactIDs)

	// Contact gate, then duplicate-direct collapse. The survivor of each
	// direct pair is chosen by a total order so it never flaps between
	// requests.
	visible := conversations[:0]
	for _, conv := range conversations {
		if rules.IsContactVisibleDirect(conv.Type, rosterByConv[conv.ID], p.ID, contacts) {
			visible = append(visible, conv)
		}
	}
	byPair := make(map[string]model.Conversation)
	var order []string
	for _, conv := range visible {
		if conv.Type != model.ConversationDirect {
			continue
		}
		key := rules.DirectPairKey(rosterByConv[conv.ID])
		if existing, ok := byPair[key]; ok {
			byPair[key] = rules.PreferDirect(existing, conv)
		} else {
			byPair[key] = conv
			order = append(order, key)
		}
	}
	deduped := make([]model.Conversation, 0, len(visible))
	for _, conv := range visible {
		if conv.Type != model.ConversationDirect {
			deduped = append(deduped, conv)
		}
	}
	for _, key := range order {
		deduped = append(deduped, byPair[key])
	}

	summaries := make([]ConversationSummary, 0, len(deduped))
	for _, conv := range deduped {
		own := ownByConv[conv.ID]
		summary := ConversationSummary{
			ID:            conv.ID,
			Type:          conv.Type,
			Name:          conv.Name,
			IsPrivate:     conv.IsPrivate,
			Members:       make([]model.UserProfile, 0, len(rosterByConv[conv.ID])),
			UnreadCount:   unreadMap[conv.ID],
			IsPinned:      own.IsPinned,
			PinnedAt:      own.PinnedAt,
			LastMessageAt: conv.LastMessageAt,
			CreatedAt:     conv.CreatedAt,
		}
		for _, memberID := range rosterByConv[conv.ID] {
			if prof, ok := profiles[memberID]; ok {
				summary.Members = append(summary.Members, prof)
			}
		}
		if last, ok := lastMsgs[conv.ID]; ok {
			msg := last
			summary.LastMessage = &msg
			// The resolved message beats the denormalized hint when both exist.
			at := last.CreatedAt
			summary.LastMessageAt = &at
		}
		summaries = append(summaries, summary)
	}

	sortSummaries(summaries)
	return summaries, nil
}

// sortSummaries orders pinned conversations first, then by most recent
// activity. Ties fall back to creation time, newest first.
func sortSummaries(summaries []ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		at, bt := activityTime(a), activityTime(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func activityTime(s ConversationSummary) time.Time {
	if s.LastMessageAt != nil {
		return *s.LastMessageAt
	}
	return s.CreatedAt
}

// CreateConversation creates a conversation plus memberships for the creator
// and the requested members. All rows land in the creator's regional backend.
func (s *Service) CreateConversation(ctx context.Context, p security.Principal, req CreateConversationRequest) (*ConversationSummary, error) {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return nil, err
	}
	if req.Type != model.ConversationDirect && req.Type != model.ConversationGroup && req.Type != model.ConversationChannel {
		return nil, &store.ValidationError{Field: "type", Message: "must be direct, group, or channel"}
	}
	if req.Type == model.ConversationDirect && len(req.MemberIDs) > 1 {
		return nil, &store.ValidationError{Field: "memberIds", Message: "a direct conversation takes at most one other member"}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.New(),
		Type:      req.Type,
		Name:      req.Name,
		IsPrivate: req.IsPrivate,
		CreatedBy: p.ID,
		CreatedAt: now,
	}
	if err := st.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	members := append([]string{p.ID}, req.MemberIDs...)
	seen := make(map[string]bool, len(members))
	for _, userID := range members {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		role := model.RoleMember
		if userID == p.ID {
			role = model.RoleOwner
		}
		m := &model.Membership{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           role,
			CreatedAt:      now,
		}
		if err := st.CreateMembership(ctx, m); err != nil {
			return nil, err
		}
	}

	profiles, err := s.Profiles.Resolve(ctx, st, members)
	if err != nil {
		return nil, err
	}
	summary := &ConversationSummary{
		ID:        conv.ID,
		Type:      conv.Type,
		Name:      conv.Name,
		IsPrivate: conv.IsPrivate,
		IsPinned:  false,
		CreatedAt: conv.CreatedAt,
	}
	for _, userID := range members {
		if prof, ok := profiles[userID]; ok {
			summary.Members = append(summary.Members, prof)
		}
	}
	return summary, nil
}

// SetPinned pins or unpins the conversation for the caller only. The
// membership row is located first so legacy rows missing optional fields
// still resolve, and only the pin fields are touched.
func (s *Service) SetPinned(ctx context.Context, p security.Principal, conversationID uuid.UUID, pinned bool) error {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return err
	}
	if _, err := s.activeMembership(ctx, st, conversationID, p.ID); err != nil {
		return err
	}
	return st.SetMembershipPinned(ctx, conversationID, p.ID, pinned, time.Now())
}

// SetHidden hides or unhides the conversation from the caller's list.
func (s *Service) SetHidden(ctx context.Context, p security.Principal, conversationID uuid.UUID, hidden bool) error {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return err
	}
	if _, err := s.activeMembership(ctx, st, conversationID, p.ID); err != nil {
		return err
	}
	return st.SetMembershipHidden(ctx, conversationID, p.ID, hidden, time.Now())
}

// MarkRead moves the caller's read cursor to now and invalidates their
// cached unread counts.
func (s *Service) MarkRead(ctx context.Context, p security.Principal, conversationID uuid.UUID) error {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return err
	}
	if _, err := s.activeMembership(ctx, st, conversationID, p.ID); err != nil {
		return err
	}
	if err := st.SetMembershipLastRead(ctx, conversationID, p.ID, time.Now()); err != nil {
		return err
	}
	s.Unread.Invalidate(ctx, p.ID)
	return nil
}

// Leave soft-deletes the caller's membership. The conversation itself and
// every other member's state are untouched.
func (s *Service) Leave(ctx context.Context, p security.Principal, conversationID uuid.UUID) error {
	st, err := s.Router.Resolve(p)
	if err != nil {
		return err
	}
	if _, err := s.activeMembership(ctx, st, conversationID, p.ID); err != nil {
		return err
	}
	if err := st.SoftDeleteMembership(ctx, conversationID, p.ID, time.Now()); err != nil {
		return err
	}
	s.Unread.Invalidate(ctx, p.ID)
	return nil
}

// activeMembership loads the caller's membership and rejects rows that were
// soft-deleted.
func (s *Service) activeMembership(ctx context.Context, st store.ChatStore, conversationID uuid.UUID, userID string) (*model.Membership, error) {
	m, err := st.GetMembership(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if m.DeletedAt != nil {
		return nil, &store.NotFoundError{Resource: "membership", ID: conversationID.String() + "/" + userID}
	}
	return m, nil
}

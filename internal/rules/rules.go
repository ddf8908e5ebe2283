// Package rules holds the shared visibility and membership predicates. Both
// the conversation directory and the message service consume these; nothing
// else may reimplement them.
package rules

import (
	"sort"
	"strings"

	"github.com/workstream-im/chat-service/internal/model"
)

// Policy holds the named policy switches for the consistency core.
type Policy struct {
	// AllowNonContactDirect permits sends into a direct conversation even when
	// the other participant is not in the sender's contact list. Organizational
	// members may message across contact boundaries; such sends are logged,
	// not blocked.
	AllowNonContactDirect bool
}

// ContactSet is a user's contact IDs, including the user's own ID so that
// self-conversations always pass the gate.
type ContactSet map[string]struct{}

// NewContactSet builds a ContactSet for viewerID from its contact IDs.
func NewContactSet(viewerID string, contactIDs []string) ContactSet {
	set := make(ContactSet, len(contactIDs)+1)
	set[viewerID] = struct{}{}
	for _, id := range contactIDs {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is in the set.
func (s ContactSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IsVisibleMembership reports whether a membership row places its
// conversation in the owning user's list: not soft-deleted and not hidden.
func IsVisibleMembership(m model.Membership) bool {
	return m.DeletedAt == nil && !m.IsHidden
}

// OtherDirectMembers returns the member IDs of a direct conversation other
// than the viewer. Empty for a self-conversation.
func OtherDirectMembers(memberIDs []string, viewerID string) []string {
	others := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != viewerID {
			others = append(others, id)
		}
	}
	return others
}

// IsContactVisibleDirect reports whether the viewer may see a direct
// conversation given their contact set. Non-direct conversations are always
// visible at this gate. A direct conversation is visible when every other
// participant is a contact (or there is no other participant). On doubt the
// caller must prefer hiding over leaking.
func IsContactVisibleDirect(convType model.ConversationType, memberIDs []string, viewerID string, contacts ContactSet) bool {
	if convType != model.ConversationDirect {
		return true
	}
	for _, other := range OtherDirectMembers(memberIDs, viewerID) {
		if !contacts.Contains(other) {
			return false
		}
	}
	return true
}

// DirectPairKey returns a canonical key for the participant pair of a direct
// conversation, used to group duplicates created by races. Self-conversations
// key on the single participant.
func DirectPairKey(memberIDs []string) string {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

// PreferDirect returns the conversation to keep when two direct
// conversations exist for the same participant pair. The order is total and
// deterministic so the surviving conversation never flaps between requests:
// most recent last_message_at first, then oldest created_at, then smallest ID.
func PreferDirect(a, b model.Conversation) model.Conversation {
	switch {
	case a.LastMessageAt != nil && b.LastMessageAt == nil:
		return a
	case a.LastMessageAt == nil && b.LastMessageAt != nil:
		return b
	case a.LastMessageAt != nil && b.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
		if a.LastMessageAt.After(*b.LastMessageAt) {
			return a
		}
		return b
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return a
		}
		return b
	}
	if a.ID.String() < b.ID.String() {
		return a
	}
	return b
}

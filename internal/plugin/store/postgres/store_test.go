package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstream-im/chat-service/internal/config"
	"github.com/workstream-im/chat-service/internal/model"
	pgstore "github.com/workstream-im/chat-service/internal/plugin/store/postgres"
	registrymigrate "github.com/workstream-im/chat-service/internal/registry/migrate"
	registrystore "github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/testutil/testpg"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) (registrystore.ChatStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.RegionBDBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure the postgres store plugin is registered
	_ = pgstore.ForceImport

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx, dbURL)
	require.NoError(t, err)

	seedUsers(t, dbURL)
	return store, ctx
}

// seedUsers writes user rows directly; the users table is owned by the auth
// subsystem, so the store interface has no write path for it.
func seedUsers(t *testing.T, dbURL string) {
	t.Helper()
	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	require.NoError(t, err)
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, db.Create(&model.UserProfile{
			ID: id, Region: model.RegionB, DisplayName: id,
		}).Error)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	_ = sqlDB.Close()
}

func createConversation(t *testing.T, store registrystore.ChatStore, ctx context.Context, convType model.ConversationType, memberIDs ...string) model.Conversation {
	t.Helper()
	conv := model.Conversation{
		ID:        uuid.New(),
		Type:      convType,
		CreatedBy: memberIDs[0],
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.CreateConversation(ctx, &conv))
	for _, id := range memberIDs {
		require.NoError(t, store.CreateMembership(ctx, &model.Membership{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           model.RoleMember,
			CreatedAt:      conv.CreatedAt,
		}))
	}
	return conv
}

func insertMessage(t *testing.T, store registrystore.ChatStore, ctx context.Context, convID uuid.UUID, senderID, content string, at time.Time) model.Message {
	t.Helper()
	msg := model.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Type:           model.MessageText,
		Reactions:      []model.Reaction{},
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	require.NoError(t, store.InsertMessage(ctx, &msg))
	return msg
}

func TestCreateAndGetConversation(t *testing.T) {
	store, ctx := setupTestStore(t)

	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, model.ConversationGroup, got.Type)
	assert.Nil(t, got.LastMessageAt)

	_, err = store.GetConversation(ctx, uuid.New())
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGetConversationsSkipsUnknownIDs(t *testing.T) {
	store, ctx := setupTestStore(t)

	a := createConversation(t, store, ctx, model.ConversationGroup, "alice")
	b := createConversation(t, store, ctx, model.ConversationGroup, "alice")

	convs, err := store.GetConversations(ctx, []uuid.UUID{a.ID, uuid.New(), b.ID})
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestVisibleMembershipsFilterHiddenAndDeleted(t *testing.T) {
	store, ctx := setupTestStore(t)

	visible := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")
	hidden := createConversation(t, store, ctx, model.ConversationGroup, "alice")
	left := createConversation(t, store, ctx, model.ConversationGroup, "alice")

	require.NoError(t, store.SetMembershipHidden(ctx, hidden.ID, "alice", true, time.Now()))
	require.NoError(t, store.SoftDeleteMembership(ctx, left.ID, "alice", time.Now()))

	memberships, err := store.ListVisibleMemberships(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, visible.ID, memberships[0].ConversationID)

	// Unhide restores the membership to the list.
	require.NoError(t, store.SetMembershipHidden(ctx, hidden.ID, "alice", false, time.Now()))
	memberships, err = store.ListVisibleMemberships(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, memberships, 2)
}

func TestPinRoundTrip(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice")

	require.NoError(t, store.SetMembershipPinned(ctx, conv.ID, "alice", true, time.Now()))
	m, err := store.GetMembership(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, m.IsPinned)
	require.NotNil(t, m.PinnedAt)

	require.NoError(t, store.SetMembershipPinned(ctx, conv.ID, "alice", false, time.Now()))
	m, err = store.GetMembership(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.False(t, m.IsPinned)
	assert.Nil(t, m.PinnedAt)
}

func TestMembershipUpdatesRequireExistingRow(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice")

	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, store.SetMembershipPinned(ctx, conv.ID, "ghost", true, time.Now()), &notFound)
	require.ErrorAs(t, store.SetMembershipLastRead(ctx, uuid.New(), "alice", time.Now()), &notFound)
	require.ErrorAs(t, store.SoftDeleteMembership(ctx, conv.ID, "ghost", time.Now()), &notFound)
}

func TestSetLastMessageAt(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice")

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SetLastMessageAt(ctx, conv.ID, at))

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(at))

	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, store.SetLastMessageAt(ctx, uuid.New(), at), &notFound)
}

func TestMessagesNewestFirstWithCursor(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	first := insertMessage(t, store, ctx, conv.ID, "alice", "one", base)
	second := insertMessage(t, store, ctx, conv.ID, "bob", "two", base.Add(time.Minute))
	third := insertMessage(t, store, ctx, conv.ID, "alice", "three", base.Add(2*time.Minute))

	msgs, err := store.ListMessages(ctx, conv.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, third.ID, msgs[0].ID)
	assert.Equal(t, first.ID, msgs[2].ID)

	// The before cursor excludes messages at or after the bound.
	before := second.CreatedAt
	older, err := store.ListMessages(ctx, conv.ID, &before, 10)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, first.ID, older[0].ID)

	limited, err := store.ListMessages(ctx, conv.ID, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpdateMessagePersistsMutableFields(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice")
	msg := insertMessage(t, store, ctx, conv.ID, "alice", "draft", time.Now().UTC())

	msg.Content = "final"
	msg.IsEdited = true
	msg.Reactions = []model.Reaction{{Emoji: "👍", UserIDs: []string{"bob"}}}
	msg.Metadata = map[string]any{"clientId": "m-1"}
	msg.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateMessage(ctx, &msg))

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Content)
	assert.True(t, got.IsEdited)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, []string{"bob"}, got.Reactions[0].UserIDs)
	assert.Equal(t, "m-1", got.Metadata["clientId"])
}

func TestLatestMessagesPerConversation(t *testing.T) {
	store, ctx := setupTestStore(t)

	a := createConversation(t, store, ctx, model.ConversationGroup, "alice")
	b := createConversation(t, store, ctx, model.ConversationGroup, "alice")
	empty := createConversation(t, store, ctx, model.ConversationGroup, "alice")

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	insertMessage(t, store, ctx, a.ID, "alice", "a-old", base)
	aNew := insertMessage(t, store, ctx, a.ID, "alice", "a-new", base.Add(time.Minute))
	bOnly := insertMessage(t, store, ctx, b.ID, "alice", "b-only", base)

	latest, err := store.LatestMessages(ctx, "alice", []uuid.UUID{a.ID, b.ID, empty.ID})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, aNew.ID, latest[a.ID].ID)
	assert.Equal(t, bOnly.ID, latest[b.ID].ID)
	_, ok := latest[empty.ID]
	assert.False(t, ok)
}

func TestLatestMessagesSkipViewerHidden(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	older := insertMessage(t, store, ctx, conv.ID, "bob", "keep", base)
	newest := insertMessage(t, store, ctx, conv.ID, "bob", "noise", base.Add(time.Minute))

	require.NoError(t, store.HideMessage(ctx, "alice", newest.ID))

	// The hidden message never surfaces as alice's preview; the next newest does.
	latest, err := store.LatestMessages(ctx, "alice", []uuid.UUID{conv.ID})
	require.NoError(t, err)
	assert.Equal(t, older.ID, latest[conv.ID].ID)

	// The hide is personal; bob's preview is unchanged.
	latest, err = store.LatestMessages(ctx, "bob", []uuid.UUID{conv.ID})
	require.NoError(t, err)
	assert.Equal(t, newest.ID, latest[conv.ID].ID)

	// With every message hidden the conversation has no preview at all.
	require.NoError(t, store.HideMessage(ctx, "alice", older.ID))
	latest, err = store.LatestMessages(ctx, "alice", []uuid.UUID{conv.ID})
	require.NoError(t, err)
	_, ok := latest[conv.ID]
	assert.False(t, ok)
}

func TestCountUnread(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	insertMessage(t, store, ctx, conv.ID, "bob", "one", base)
	insertMessage(t, store, ctx, conv.ID, "bob", "two", base.Add(time.Minute))
	insertMessage(t, store, ctx, conv.ID, "alice", "own message", base.Add(2*time.Minute))
	deleted := insertMessage(t, store, ctx, conv.ID, "bob", "gone", base.Add(3*time.Minute))
	deleted.IsDeleted = true
	require.NoError(t, store.UpdateMessage(ctx, &deleted))

	memberships, err := store.ListVisibleMemberships(ctx, "alice")
	require.NoError(t, err)

	// No read cursor: everything from others that is not deleted counts.
	counts, err := store.CountUnread(ctx, "alice", memberships)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[conv.ID])

	// Cursor after the first message leaves one unread.
	cursor := base.Add(30 * time.Second)
	require.NoError(t, store.SetMembershipLastRead(ctx, conv.ID, "alice", cursor))
	memberships, err = store.ListVisibleMemberships(ctx, "alice")
	require.NoError(t, err)
	counts, err = store.CountUnread(ctx, "alice", memberships)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[conv.ID])
}

func TestHiddenMessages(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")
	other := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")

	msg := insertMessage(t, store, ctx, conv.ID, "bob", "noise", time.Now().UTC())
	elsewhere := insertMessage(t, store, ctx, other.ID, "bob", "elsewhere", time.Now().UTC())

	require.NoError(t, store.HideMessage(ctx, "alice", msg.ID))
	require.NoError(t, store.HideMessage(ctx, "alice", msg.ID)) // idempotent
	require.NoError(t, store.HideMessage(ctx, "alice", elsewhere.ID))

	// Scoped to the requested conversation and user.
	ids, err := store.ListHiddenMessageIDs(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{msg.ID}, ids)

	ids, err = store.ListHiddenMessageIDs(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.UnhideMessage(ctx, "alice", msg.ID))
	require.NoError(t, store.UnhideMessage(ctx, "alice", msg.ID)) // idempotent
	ids, err = store.ListHiddenMessageIDs(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestContacts(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.AddContact(ctx, "alice", "bob"))
	require.NoError(t, store.AddContact(ctx, "alice", "bob")) // idempotent
	require.NoError(t, store.AddContact(ctx, "alice", "carol"))

	ids, err := store.ListContactIDs(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, ids)

	// Edges are directional.
	ids, err = store.ListContactIDs(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.RemoveContact(ctx, "alice", "bob"))
	require.NoError(t, store.RemoveContact(ctx, "alice", "bob")) // idempotent
	ids, err = store.ListContactIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, ids)
}

func TestGetUserProfiles(t *testing.T) {
	store, ctx := setupTestStore(t)

	profiles, err := store.GetUserProfiles(ctx, []string{"alice", "bob", "ghost"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	byID := map[string]model.UserProfile{}
	for _, p := range profiles {
		byID[p.ID] = p
	}
	assert.Equal(t, "alice", byID["alice"].DisplayName)
	_, ok := byID["ghost"]
	assert.False(t, ok)
}

func TestSoftDeleteLeavesOtherMembersIntact(t *testing.T) {
	store, ctx := setupTestStore(t)
	conv := createConversation(t, store, ctx, model.ConversationGroup, "alice", "bob")

	require.NoError(t, store.SoftDeleteMembership(ctx, conv.ID, "alice", time.Now()))

	m, err := store.GetMembership(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.NotNil(t, m.DeletedAt)

	// Bob's membership and the conversation survive.
	m, err = store.GetMembership(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Nil(t, m.DeletedAt)
	_, err = store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)

	// Roster queries still include the departed member's row.
	roster, err := store.ListMembershipsByConversations(ctx, []uuid.UUID{conv.ID})
	require.NoError(t, err)
	assert.Len(t, roster, 2)
}

func TestErrorsAreTyped(t *testing.T) {
	store, ctx := setupTestStore(t)

	var notFound *registrystore.NotFoundError
	_, err := store.GetMessage(ctx, uuid.New())
	require.True(t, errors.As(err, &notFound))
	_, err = store.GetMembership(ctx, uuid.New(), "nobody")
	require.True(t, errors.As(err, &notFound))
}

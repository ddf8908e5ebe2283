package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/config"
	"github.com/workstream-im/chat-service/internal/model"
	registrymigrate "github.com/workstream-im/chat-service/internal/registry/migrate"
	registrystore "github.com/workstream-im/chat-service/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// opTimeout bounds every adapter call; callers fail closed on expiry.
const opTimeout = 10 * time.Second

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context, dbURL string) (registrystore.ChatStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(dbURL)
			if cfg != nil {
				if cfg.DBMaxOpenConns > 0 {
					opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
				}
				if cfg.DBMaxIdleConns > 0 {
					opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
				}
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}

			dbName := "workspace_chat"
			if cfg != nil && cfg.MongoDatabase != "" {
				dbName = cfg.MongoDatabase
			}
			return &MongoStore{client: client, db: client.Database(dbName)}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-indexes" }

func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.RegionAStoreKind != "mongo" || cfg.RegionADBURL == "" {
		return nil // skip if region A is not mongo-backed
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.RegionADBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDatabase)

	collections := map[string][]mongo.IndexModel{
		"conversations": {
			{Keys: bson.D{{Key: "type", Value: 1}}},
		},
		"conversation_members": {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "deleted_at", Value: 1}, {Key: "is_hidden", Value: 1}}},
		},
		"messages": {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "sender_id", Value: 1}}},
		},
		"hidden_messages": {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "message_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"contacts": {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "contact_user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for name, indexes := range collections {
		if err := db.CreateCollection(ctx, name); err != nil {
			// NamespaceExists (48) just means a prior run created it.
			var cmdErr mongo.CommandError
			if !errors.As(err, &cmdErr) || !cmdErr.HasErrorCode(48) {
				return fmt.Errorf("mongo migration: failed to create collection %s: %w", name, err)
			}
		}
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB index migration complete")
	return nil
}

// MongoStore implements ChatStore using MongoDB (region A).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// --- MongoDB document types ---

type convDoc struct {
	ID            string     `bson:"_id"`
	Type          string     `bson:"type"`
	Name          *string    `bson:"name,omitempty"`
	IsPrivate     bool       `bson:"is_private"`
	CreatedBy     string     `bson:"created_by"`
	CreatedAt     time.Time  `bson:"created_at"`
	LastMessageAt *time.Time `bson:"last_message_at,omitempty"`
}

type memberDoc struct {
	ConversationID string     `bson:"conversation_id"`
	UserID         string     `bson:"user_id"`
	Role           string     `bson:"role"`
	LastReadAt     *time.Time `bson:"last_read_at,omitempty"`
	IsPinned       bool       `bson:"is_pinned"`
	PinnedAt       *time.Time `bson:"pinned_at,omitempty"`
	IsHidden       bool       `bson:"is_hidden"`
	HiddenAt       *time.Time `bson:"hidden_at,omitempty"`
	DeletedAt      *time.Time `bson:"deleted_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
}

type messageDoc struct {
	ID             string           `bson:"_id"`
	ConversationID string           `bson:"conversation_id"`
	SenderID       string           `bson:"sender_id"`
	Content        string           `bson:"content"`
	Type           string           `bson:"type"`
	Metadata       map[string]any   `bson:"metadata,omitempty"`
	Reactions      []model.Reaction `bson:"reactions,omitempty"`
	IsEdited       bool             `bson:"is_edited"`
	IsDeleted      bool             `bson:"is_deleted"`
	IsRecalled     bool             `bson:"is_recalled"`
	CreatedAt      time.Time        `bson:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at"`
}

type hiddenDoc struct {
	UserID    string    `bson:"user_id"`
	MessageID string    `bson:"message_id"`
	CreatedAt time.Time `bson:"created_at"`
}

type contactDoc struct {
	UserID        string    `bson:"user_id"`
	ContactUserID string    `bson:"contact_user_id"`
	CreatedAt     time.Time `bson:"created_at"`
}

type userDoc struct {
	ID          string `bson:"_id"`
	Region      string `bson:"region"`
	DisplayName string `bson:"display_name"`
	AvatarURL   string `bson:"avatar_url"`
	Status      string `bson:"status"`
}

// --- Collection accessors ---

func (s *MongoStore) conversations() *mongo.Collection { return s.db.Collection("conversations") }
func (s *MongoStore) members() *mongo.Collection       { return s.db.Collection("conversation_members") }
func (s *MongoStore) messages() *mongo.Collection      { return s.db.Collection("messages") }
func (s *MongoStore) hidden() *mongo.Collection        { return s.db.Collection("hidden_messages") }
func (s *MongoStore) contacts() *mongo.Collection      { return s.db.Collection("contacts") }
func (s *MongoStore) users() *mongo.Collection         { return s.db.Collection("users") }

// --- UUID helpers ---

func uuidToStr(id uuid.UUID) string { return id.String() }
func strToUUID(s string) uuid.UUID  { u, _ := uuid.Parse(s); return u }
func uuidsToStrs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// --- Document conversions ---

func convFromDoc(d convDoc) model.Conversation {
	return model.Conversation{
		ID:            strToUUID(d.ID),
		Type:          model.ConversationType(d.Type),
		Name:          d.Name,
		IsPrivate:     d.IsPrivate,
		CreatedBy:     d.CreatedBy,
		CreatedAt:     d.CreatedAt,
		LastMessageAt: d.LastMessageAt,
	}
}

func memberFromDoc(d memberDoc) model.Membership {
	return model.Membership{
		ConversationID: strToUUID(d.ConversationID),
		UserID:         d.UserID,
		Role:           model.MemberRole(d.Role),
		LastReadAt:     d.LastReadAt,
		IsPinned:       d.IsPinned,
		PinnedAt:       d.PinnedAt,
		IsHidden:       d.IsHidden,
		HiddenAt:       d.HiddenAt,
		DeletedAt:      d.DeletedAt,
		CreatedAt:      d.CreatedAt,
	}
}

func messageFromDoc(d messageDoc) model.Message {
	return model.Message{
		ID:             strToUUID(d.ID),
		ConversationID: strToUUID(d.ConversationID),
		SenderID:       d.SenderID,
		Content:        d.Content,
		Type:           model.MessageType(d.Type),
		Metadata:       d.Metadata,
		Reactions:      d.Reactions,
		IsEdited:       d.IsEdited,
		IsDeleted:      d.IsDeleted,
		IsRecalled:     d.IsRecalled,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func messageToDoc(m *model.Message) messageDoc {
	return messageDoc{
		ID:             uuidToStr(m.ID),
		ConversationID: uuidToStr(m.ConversationID),
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           string(m.Type),
		Metadata:       m.Metadata,
		Reactions:      m.Reactions,
		IsEdited:       m.IsEdited,
		IsDeleted:      m.IsDeleted,
		IsRecalled:     m.IsRecalled,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// --- Conversations ---

func (s *MongoStore) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var doc convDoc
	err := s.conversations().FindOne(ctx, bson.M{"_id": uuidToStr(id)}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &registrystore.NotFoundError{Resource: "conversation", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv := convFromDoc(doc)
	return &conv, nil
}

func (s *MongoStore) GetConversations(ctx context.Context, ids []uuid.UUID) ([]model.Conversation, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.conversations().Find(ctx, bson.M{"_id": bson.M{"$in": uuidsToStrs(ids)}})
	if err != nil {
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}
	var docs []convDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	convs := make([]model.Conversation, len(docs))
	for i, d := range docs {
		convs[i] = convFromDoc(d)
	}
	return convs, nil
}

func (s *MongoStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	doc := convDoc{
		ID:            uuidToStr(conv.ID),
		Type:          string(conv.Type),
		Name:          conv.Name,
		IsPrivate:     conv.IsPrivate,
		CreatedBy:     conv.CreatedBy,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
	}
	if _, err := s.conversations().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &registrystore.ConflictError{Message: "conversation already exists"}
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) SetLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	result, err := s.conversations().UpdateByID(ctx, uuidToStr(id), bson.M{"$set": bson.M{"last_message_at": at}})
	if err != nil {
		return fmt.Errorf("failed to set last_message_at: %w", err)
	}
	if result.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: id.String()}
	}
	return nil
}

// --- Memberships ---

func (s *MongoStore) ListVisibleMemberships(ctx context.Context, userID string) ([]model.Membership, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cur, err := s.members().Find(ctx, bson.M{
		"user_id":    userID,
		"deleted_at": bson.M{"$exists": false},
		"is_hidden":  bson.M{"$ne": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	var docs []memberDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	memberships := make([]model.Membership, len(docs))
	for i, d := range docs {
		memberships[i] = memberFromDoc(d)
	}
	return memberships, nil
}

func (s *MongoStore) ListMembershipsByConversations(ctx context.Context, conversationIDs []uuid.UUID) ([]model.Membership, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if len(conversationIDs) == 0 {
		return nil, nil
	}
	cur, err := s.members().Find(ctx, bson.M{"conversation_id": bson.M{"$in": uuidsToStrs(conversationIDs)}})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation memberships: %w", err)
	}
	var docs []memberDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	memberships := make([]model.Membership, len(docs))
	for i, d := range docs {
		memberships[i] = memberFromDoc(d)
	}
	return memberships, nil
}

func (s *MongoStore) GetMembership(ctx context.Context, conversationID uuid.UUID, userID string) (*model.Membership, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var doc memberDoc
	err := s.members().FindOne(ctx, bson.M{
		"conversation_id": uuidToStr(conversationID),
		"user_id":         userID,
	}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &registrystore.NotFoundError{Resource: "membership", ID: conversationID.String() + "/" + userID}
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m := memberFromDoc(doc)
	return &m, nil
}

func (s *MongoStore) CreateMembership(ctx context.Context, m *model.Membership) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	doc := memberDoc{
		ConversationID: uuidToStr(m.ConversationID),
		UserID:         m.UserID,
		Role:           string(m.Role),
		LastReadAt:     m.LastReadAt,
		IsPinned:       m.IsPinned,
		PinnedAt:       m.PinnedAt,
		IsHidden:       m.IsHidden,
		HiddenAt:       m.HiddenAt,
		DeletedAt:      m.DeletedAt,
		CreatedAt:      m.CreatedAt,
	}
	if _, err := s.members().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &registrystore.ConflictError{Message: "user is already a member of this conversation"}
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (s *MongoStore) SetMembershipPinned(ctx context.Context, conversationID uuid.UUID, userID string, pinned bool, at time.Time) error {
	update := bson.M{"$set": bson.M{"is_pinned": pinned}, "$unset": bson.M{"pinned_at": ""}}
	if pinned {
		update = bson.M{"$set": bson.M{"is_pinned": true, "pinned_at": at}}
	}
	return s.updateMembership(ctx, conversationID, userID, update)
}

func (s *MongoStore) SetMembershipHidden(ctx context.Context, conversationID uuid.UUID, userID string, hidden bool, at time.Time) error {
	update := bson.M{"$set": bson.M{"is_hidden": hidden}, "$unset": bson.M{"hidden_at": ""}}
	if hidden {
		update = bson.M{"$set": bson.M{"is_hidden": true, "hidden_at": at}}
	}
	return s.updateMembership(ctx, conversationID, userID, update)
}

func (s *MongoStore) SetMembershipLastRead(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	return s.updateMembership(ctx, conversationID, userID, bson.M{"$set": bson.M{"last_read_at": at}})
}

func (s *MongoStore) SoftDeleteMembership(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	return s.updateMembership(ctx, conversationID, userID, bson.M{"$set": bson.M{"deleted_at": at}})
}

func (s *MongoStore) updateMembership(ctx context.Context, conversationID uuid.UUID, userID string, update bson.M) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	result, err := s.members().UpdateOne(ctx, bson.M{
		"conversation_id": uuidToStr(conversationID),
		"user_id":         userID,
	}, update)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if result.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "membership", ID: conversationID.String() + "/" + userID}
	}
	return nil
}

// --- Messages ---

func (s *MongoStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if _, err := s.messages().InsertOne(ctx, messageToDoc(msg)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &registrystore.ConflictError{Message: "message already exists"}
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *MongoStore) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var doc messageDoc
	err := s.messages().FindOne(ctx, bson.M{"_id": uuidToStr(id)}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	msg := messageFromDoc(doc)
	return &msg, nil
}

func (s *MongoStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	reactions := msg.Reactions
	if reactions == nil {
		reactions = []model.Reaction{}
	}
	result, err := s.messages().UpdateByID(ctx, uuidToStr(msg.ID), bson.M{"$set": bson.M{
		"content":     msg.Content,
		"metadata":    msg.Metadata,
		"reactions":   reactions,
		"is_edited":   msg.IsEdited,
		"is_deleted":  msg.IsDeleted,
		"is_recalled": msg.IsRecalled,
		"updated_at":  msg.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if result.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: msg.ID.String()}
	}
	return nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	filter := bson.M{"conversation_id": uuidToStr(conversationID)}
	if before != nil {
		filter["created_at"] = bson.M{"$lt": *before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	msgs := make([]model.Message, len(docs))
	for i, d := range docs {
		msgs[i] = messageFromDoc(d)
	}
	return msgs, nil
}

func (s *MongoStore) LatestMessages(ctx context.Context, viewerID string, conversationIDs []uuid.UUID) (map[uuid.UUID]model.Message, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	latest := make(map[uuid.UUID]model.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	// The viewer's hidden messages never surface as a preview, so they are
	// excluded up front and the scan lands on the next newest candidate.
	hiddenCur, err := s.hidden().Find(ctx, bson.M{"user_id": viewerID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hidden messages: %w", err)
	}
	var hiddenDocs []hiddenDoc
	if err := hiddenCur.All(ctx, &hiddenDocs); err != nil {
		return nil, fmt.Errorf("failed to decode hidden messages: %w", err)
	}

	filter := bson.M{"conversation_id": bson.M{"$in": uuidsToStrs(conversationIDs)}}
	if len(hiddenDocs) > 0 {
		hiddenIDs := make([]string, len(hiddenDocs))
		for i, d := range hiddenDocs {
			hiddenIDs[i] = d.MessageID
		}
		filter["_id"] = bson.M{"$nin": hiddenIDs}
	}

	// Newest-first scan keeping the first message seen per conversation.
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest messages: %w", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		convID := strToUUID(doc.ConversationID)
		if _, ok := latest[convID]; ok {
			continue
		}
		latest[convID] = messageFromDoc(doc)
		if len(latest) == len(conversationIDs) {
			break
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan latest messages: %w", err)
	}
	return latest, nil
}

func (s *MongoStore) CountUnread(ctx context.Context, userID string, memberships []model.Membership) (map[uuid.UUID]int64, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	counts := make(map[uuid.UUID]int64, len(memberships))
	for _, m := range memberships {
		filter := bson.M{
			"conversation_id": uuidToStr(m.ConversationID),
			"sender_id":       bson.M{"$ne": userID},
			"is_deleted":      bson.M{"$ne": true},
		}
		if m.LastReadAt != nil {
			filter["created_at"] = bson.M{"$gt": *m.LastReadAt}
		}
		n, err := s.messages().CountDocuments(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count unread messages: %w", err)
		}
		if n > 0 {
			counts[m.ConversationID] = n
		}
	}
	return counts, nil
}

// --- Hidden messages ---

func (s *MongoStore) HideMessage(ctx context.Context, userID string, messageID uuid.UUID) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	_, err := s.hidden().UpdateOne(ctx,
		bson.M{"user_id": userID, "message_id": uuidToStr(messageID)},
		bson.M{"$setOnInsert": hiddenDoc{UserID: userID, MessageID: uuidToStr(messageID), CreatedAt: time.Now()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to hide message: %w", err)
	}
	return nil
}

func (s *MongoStore) UnhideMessage(ctx context.Context, userID string, messageID uuid.UUID) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	_, err := s.hidden().DeleteOne(ctx, bson.M{"user_id": userID, "message_id": uuidToStr(messageID)})
	if err != nil {
		return fmt.Errorf("failed to unhide message: %w", err)
	}
	return nil
}

func (s *MongoStore) ListHiddenMessageIDs(ctx context.Context, userID string, conversationID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cur, err := s.hidden().Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list hidden messages: %w", err)
	}
	var docs []hiddenDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode hidden messages: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	// Narrow to the requested conversation.
	hiddenIDs := make([]string, len(docs))
	for i, d := range docs {
		hiddenIDs[i] = d.MessageID
	}
	msgCur, err := s.messages().Find(ctx, bson.M{
		"_id":             bson.M{"$in": hiddenIDs},
		"conversation_id": uuidToStr(conversationID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hidden messages: %w", err)
	}
	var msgs []messageDoc
	if err := msgCur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode hidden message ids: %w", err)
	}
	ids := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		ids[i] = strToUUID(m.ID)
	}
	return ids, nil
}

// --- Contacts ---

func (s *MongoStore) ListContactIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cur, err := s.contacts().Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	var docs []contactDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode contacts: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ContactUserID
	}
	return ids, nil
}

func (s *MongoStore) AddContact(ctx context.Context, userID, contactUserID string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	_, err := s.contacts().UpdateOne(ctx,
		bson.M{"user_id": userID, "contact_user_id": contactUserID},
		bson.M{"$setOnInsert": contactDoc{UserID: userID, ContactUserID: contactUserID, CreatedAt: time.Now()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	return nil
}

func (s *MongoStore) RemoveContact(ctx context.Context, userID, contactUserID string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	_, err := s.contacts().DeleteOne(ctx, bson.M{"user_id": userID, "contact_user_id": contactUserID})
	if err != nil {
		return fmt.Errorf("failed to remove contact: %w", err)
	}
	return nil
}

// --- Profiles ---

func (s *MongoStore) GetUserProfiles(ctx context.Context, ids []string) ([]model.UserProfile, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to get user profiles: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode user profiles: %w", err)
	}
	profiles := make([]model.UserProfile, len(docs))
	for i, d := range docs {
		profiles[i] = model.UserProfile{
			ID:          d.ID,
			Region:      model.Region(d.Region),
			DisplayName: d.DisplayName,
			AvatarURL:   d.AvatarURL,
			Status:      d.Status,
		}
	}
	return profiles, nil
}

var _ registrystore.ChatStore = (*MongoStore)(nil)

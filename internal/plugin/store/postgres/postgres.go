package postgres

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
	"github.com/workstream-im/chat-service/internal/security"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// opTimeout bounds every adapter call; callers fail closed on expiry.
const opTimeout = 10 * time.Second

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context, dbURL string) (registrystore.ChatStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			if cfg != nil {
				sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
				sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.WithLabelValues(string(model.RegionB)).Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &PostgresStore{db: db}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }

func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.RegionBStoreKind != "postgres" || cfg.RegionBDBURL == "" {
		return nil // skip if region B is not postgres-backed
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.RegionBDBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements ChatStore using GORM + PostgreSQL (region B).
type PostgresStore struct {
	db *gorm.DB
}

func opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// --- Conversations ---

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var conv model.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "conversation", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *PostgresStore) GetConversations(ctx context.Context, ids []uuid.UUID) ([]model.Conversation, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if len(ids) == 0 {
		return nil, nil
	}
	var convs []model.Conversation
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}
	return convs, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("last_message_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to set last_message_at: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: id.String()}
	}
	return nil
}

// --- Memberships ---

func (s *PostgresStore) ListVisibleMemberships(ctx context.Context, userID string) ([]model.Membership, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var memberships []model.Membership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL AND is_hidden = false", userID).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

func (s *PostgresStore) ListMembershipsByConversations(ctx context.Context, conversationIDs []uuid.UUID) ([]model.Membership, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if len(conversationIDs) == 0 {
		return nil, nil
	}
	var memberships []model.Membership
	err := s.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIDs).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation memberships: %w", err)
	}
	return memberships, nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, conversationID uuid.UUID, userID string) (*model.Membership, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var m model.Membership
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "membership", ID: conversationID.String() + "/" + userID}
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) CreateMembership(ctx context.Context, m *model.Membership) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetMembershipPinned(ctx context.Context, conversationID uuid.UUID, userID string, pinned bool, at time.Time) error {
	updates := map[string]any{"is_pinned": pinned, "pinned_at": nil}
	if pinned {
		updates["pinned_at"] = at
	}
	return s.updateMembership(ctx, conversationID, userID, updates)
}

func (s *PostgresStore) SetMembershipHidden(ctx context.Context, conversationID uuid.UUID, userID string, hidden bool, at time.Time) error {
	updates := map[string]any{"is_hidden": hidden, "hidden_at": nil}
	if hidden {
		updates["hidden_at"] = at
	}
	return s.updateMembership(ctx, conversationID, userID, updates)
}

func (s *PostgresStore) SetMembershipLastRead(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	return s.updateMembership(ctx, conversationID, userID, map[string]any{"last_read_at": at})
}

func (s *PostgresStore) SoftDeleteMembership(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) error {
	return s.updateMembership(ctx, conversationID, userID, map[string]any{"deleted_at": at})
}

func (s *PostgresStore) updateMembership(ctx context.Context, conversationID uuid.UUID, userID string, updates map[string]any) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).Model(&model.Membership{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update membership: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "membership", ID: conversationID.String() + "/" + userID}
	}
	return nil
}

// --- Messages ---

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var msg model.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (s *PostgresStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", msg.ID).
		Select("content", "metadata", "reactions", "is_edited", "is_deleted", "is_recalled", "updated_at").
		Updates(msg)
	if result.Error != nil {
		return fmt.Errorf("failed to update message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: msg.ID.String()}
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	tx := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		tx = tx.Where("created_at < ?", *before)
	}
	var msgs []model.Message
	if err := tx.Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) LatestMessages(ctx context.Context, viewerID string, conversationIDs []uuid.UUID) (map[uuid.UUID]model.Message, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if len(conversationIDs) == 0 {
		return map[uuid.UUID]model.Message{}, nil
	}
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (conversation_id) *
		     FROM messages msg
		     WHERE conversation_id IN ?
		       AND NOT EXISTS (
		         SELECT 1 FROM hidden_messages h
		         WHERE h.user_id = ? AND h.message_id = msg.id
		       )
		     ORDER BY conversation_id, created_at DESC`, conversationIDs, viewerID).
		Scan(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest messages: %w", err)
	}
	latest := make(map[uuid.UUID]model.Message, len(msgs))
	for _, m := range msgs {
		latest[m.ConversationID] = m
	}
	return latest, nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, userID string, memberships []model.Membership) (map[uuid.UUID]int64, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	counts := make(map[uuid.UUID]int64, len(memberships))
	if len(memberships) == 0 {
		return counts, nil
	}
	conversationIDs := make([]uuid.UUID, len(memberships))
	for i, m := range memberships {
		conversationIDs[i] = m.ConversationID
	}

	type row struct {
		ConversationID uuid.UUID `gorm:"column:conversation_id"`
		Count          int64     `gorm:"column:count"`
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Raw(`SELECT m.conversation_id, COUNT(*) AS count
		     FROM messages m
		     JOIN conversation_members cm
		       ON cm.conversation_id = m.conversation_id AND cm.user_id = ?
		     WHERE m.conversation_id IN ?
		       AND m.sender_id != ?
		       AND m.is_deleted = false
		       AND (cm.last_read_at IS NULL OR m.created_at > cm.last_read_at)
		     GROUP BY m.conversation_id`, userID, conversationIDs, userID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	for _, r := range rows {
		counts[r.ConversationID] = r.Count
	}
	return counts, nil
}

// --- Hidden messages ---

func (s *PostgresStore) HideMessage(ctx context.Context, userID string, messageID uuid.UUID) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	hidden := model.HiddenMessage{UserID: userID, MessageID: messageID, CreatedAt: time.Now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&hidden).Error
	if err != nil {
		return fmt.Errorf("failed to hide message: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnhideMessage(ctx context.Context, userID string, messageID uuid.UUID) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Delete(&model.HiddenMessage{}).Error
	if err != nil {
		return fmt.Errorf("failed to unhide message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHiddenMessageIDs(ctx context.Context, userID string, conversationID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Table("hidden_messages h").
		Select("h.message_id").
		Joins("JOIN messages m ON m.id = h.message_id").
		Where("h.user_id = ? AND m.conversation_id = ?", userID, conversationID).
		Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list hidden messages: %w", err)
	}
	return ids, nil
}

// --- Contacts ---

func (s *PostgresStore) ListContactIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var ids []string
	err := s.db.WithContext(ctx).Model(&model.Contact{}).
		Where("user_id = ?", userID).
		Pluck("contact_user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) AddContact(ctx context.Context, userID, contactUserID string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	contact := model.Contact{UserID: userID, ContactUserID: contactUserID, CreatedAt: time.Now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&contact).Error
	if err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveContact(ctx context.Context, userID, contactUserID string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).
		Where("user_id = ? AND contact_user_id = ?", userID, contactUserID).
		Delete(&model.Contact{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove contact: %w", err)
	}
	return nil
}

// --- Profiles ---

func (s *PostgresStore) GetUserProfiles(ctx context.Context, ids []string) ([]model.UserProfile, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []model.UserProfile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to get user profiles: %w", err)
	}
	return profiles, nil
}

var _ registrystore.ChatStore = (*PostgresStore)(nil)

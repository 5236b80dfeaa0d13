package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/sellerchat/internal/entity"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB, rdb *redis.Client) *ConversationRepo {
	return &ConversationRepo{db: db, rdb: rdb}
}

// CreateIfAbsent inserts conv unless the participant pair already has a
// conversation about the same item. Returns false when another writer won.
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, conv *entity.Conversation) (bool, error) {
	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "participant_low"},
			{Name: "participant_high"},
			{Name: "subject_item_id"},
		},
		DoNothing: true,
	}).Create(conv)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetById gets conversation by Id, nil when absent
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	return r.GetByIdWithTx(ctx, r.db, id)
}

// GetByIdWithTx gets conversation by Id with transaction
func (r *ConversationRepo) GetByIdWithTx(ctx context.Context, tx *gorm.DB, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := tx.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetByParticipants finds the conversation for a user pair and item in
// either participant order, nil when absent
func (r *ConversationRepo) GetByParticipants(ctx context.Context, userA, userB, subjectItemId string) (*entity.Conversation, error) {
	low, high := entity.SortParticipants(userA, userB)

	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_low = ? AND participant_high = ? AND subject_item_id = ?", low, high, subjectItemId).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetUserConversations gets all conversations for a user, most recently
// updated first
func (r *ConversationRepo) GetUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ?", userId).
		Order("conversations.updated_at DESC").
		Order("conversations.id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// Touch updates the updated_at timestamp
func (r *ConversationRepo) Touch(ctx context.Context, tx *gorm.DB, id string, now int64) error {
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", now).Error
}

// Deactivate marks the conversation inactive
func (r *ConversationRepo) Deactivate(ctx context.Context, tx *gorm.DB, id string, now int64) error {
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
		}).Error
}

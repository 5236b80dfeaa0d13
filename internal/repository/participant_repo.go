package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mbeoliero/sellerchat/internal/entity"
)

// ParticipantRepo is the repository for per-user conversation state
type ParticipantRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewParticipantRepo creates a new ParticipantRepo
func NewParticipantRepo(db *gorm.DB, rdb *redis.Client) *ParticipantRepo {
	return &ParticipantRepo{db: db, rdb: rdb}
}

// CreateBatch inserts participant rows within a transaction
func (r *ParticipantRepo) CreateBatch(ctx context.Context, tx *gorm.DB, participants []*entity.ConversationParticipant) error {
	return tx.WithContext(ctx).Create(&participants).Error
}

// Get gets a participant row, nil when the user is not a participant
func (r *ParticipantRepo) Get(ctx context.Context, conversationId, userId string) (*entity.ConversationParticipant, error) {
	var p entity.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetUserParticipants gets a user's participant rows keyed by conversation
func (r *ParticipantRepo) GetUserParticipants(ctx context.Context, userId string) (map[string]*entity.ConversationParticipant, error) {
	var rows []*entity.ConversationParticipant
	err := r.db.WithContext(ctx).Where("user_id = ?", userId).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]*entity.ConversationParticipant, len(rows))
	for _, p := range rows {
		result[p.ConversationId] = p
	}
	return result, nil
}

// AdvanceLastRead moves last_read_at forward to readAt. A marker already at
// or past readAt is left untouched, so the result is monotonic.
func (r *ParticipantRepo) AdvanceLastRead(ctx context.Context, conversationId, userId string, readAt int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Where("last_read_at IS NULL OR last_read_at < ?", readAt).
		Update("last_read_at", readAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

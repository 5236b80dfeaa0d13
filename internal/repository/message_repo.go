package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/sellerchat/internal/entity"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB, rdb *redis.Client) *MessageRepo {
	return &MessageRepo{db: db, rdb: rdb}
}

// Create inserts a message and then its attachments within tx
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(msg).Error; err != nil {
		return err
	}
	if len(msg.Attachments) == 0 {
		return nil
	}
	for i, a := range msg.Attachments {
		a.MessageId = msg.Id
		a.Position = i
	}
	return tx.WithContext(ctx).Create(&msg.Attachments).Error
}

func preloadAttachments(db *gorm.DB) *gorm.DB {
	return db.Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// GetPage gets up to limit messages with seq below beforeSeq (or the latest
// when beforeSeq is 0), returned oldest first
func (r *MessageRepo) GetPage(ctx context.Context, conversationId string, beforeSeq int64, limit int) ([]*entity.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)
	if beforeSeq > 0 {
		query = query.Where("seq < ?", beforeSeq)
	}

	var messages []*entity.Message
	err := preloadAttachments(query).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse to ascending order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// GetMaxSeq gets the highest committed seq of a conversation, 0 if empty
func (r *MessageRepo) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	var maxSeq int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ?", conversationId).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	return maxSeq, err
}

// GetLatestByConversationIds gets the newest message of each conversation
func (r *MessageRepo) GetLatestByConversationIds(ctx context.Context, conversationIds []string) (map[string]*entity.Message, error) {
	result := make(map[string]*entity.Message, len(conversationIds))
	if len(conversationIds) == 0 {
		return result, nil
	}

	latest := r.db.Model(&entity.Message{}).
		Select("conversation_id, MAX(seq) AS max_seq").
		Where("conversation_id IN ?", conversationIds).
		Group("conversation_id")

	var messages []*entity.Message
	err := preloadAttachments(r.db.WithContext(ctx)).
		Joins("JOIN (?) AS latest ON latest.conversation_id = messages.conversation_id AND latest.max_seq = messages.seq", latest).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for _, m := range messages {
		result[m.ConversationId] = m
	}
	return result, nil
}

// CountUnread counts messages from anyone but userId sent after lastReadAt,
// or all of them when lastReadAt is nil
func (r *MessageRepo) CountUnread(ctx context.Context, conversationId, userId string, lastReadAt *int64) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationId, userId)
	if lastReadAt != nil {
		query = query.Where("send_at > ?", *lastReadAt)
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}

type unreadRow struct {
	ConversationId string
	Unread         int64
}

// CountUnreadByUser counts unread messages for every conversation of userId
func (r *MessageRepo) CountUnreadByUser(ctx context.Context, userId string) (map[string]int64, error) {
	var rows []unreadRow
	err := r.db.WithContext(ctx).
		Table("conversation_participants p").
		Select("p.conversation_id AS conversation_id, COUNT(m.id) AS unread").
		Joins("JOIN messages m ON m.conversation_id = p.conversation_id").
		Where("p.user_id = ? AND m.sender_id <> p.user_id", userId).
		Where("p.last_read_at IS NULL OR m.send_at > p.last_read_at").
		Group("p.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.ConversationId] = row.Unread
	}
	return result, nil
}

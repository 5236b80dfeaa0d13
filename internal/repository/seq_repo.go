package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mbeoliero/sellerchat/pkg/constant"
)

// SeqRepo is the repository for sequence operations
type SeqRepo struct {
	db       *gorm.DB
	rdb      *redis.Client
	messages *MessageRepo
}

// NewSeqRepo creates a new SeqRepo
func NewSeqRepo(db *gorm.DB, rdb *redis.Client, messages *MessageRepo) *SeqRepo {
	return &SeqRepo{db: db, rdb: rdb, messages: messages}
}

func seqKey(conversationId string) string {
	return fmt.Sprintf(constant.RedisKeySeqConversation(), conversationId)
}

// AllocSeq allocates a new sequence number for a conversation using Redis
// INCR. A missing counter is first seeded from the highest committed seq.
func (r *SeqRepo) AllocSeq(ctx context.Context, conversationId string) (int64, error) {
	key := seqKey(conversationId)

	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		maxSeq, err := r.messages.GetMaxSeq(ctx, conversationId)
		if err != nil {
			return 0, err
		}
		if err := r.rdb.SetNX(ctx, key, maxSeq, 0).Err(); err != nil {
			return 0, err
		}
	}

	return r.rdb.Incr(ctx, key).Result()
}

// GetMaxSeq gets the current max sequence for a conversation
func (r *SeqRepo) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	// Try Redis first
	key := seqKey(conversationId)
	seq, err := r.rdb.Get(ctx, key).Int64()
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}

	// Fall back to the ledger
	maxSeq, err := r.messages.GetMaxSeq(ctx, conversationId)
	if err != nil {
		return 0, err
	}

	// Restore to Redis
	r.rdb.SetNX(ctx, key, maxSeq, 0)

	return maxSeq, nil
}

package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/internal/repository"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

// ReadStateService tracks how far each participant has read. A user's
// marker is written only by that user; other writers only drop the derived
// unread cache.
type ReadStateService struct {
	convRepo   *repository.ConversationRepo
	partRepo   *repository.ParticipantRepo
	msgRepo    *repository.MessageRepo
	unreadRepo *repository.UnreadCacheRepo
	// locks is shared with MessageService so marks and sends on one
	// conversation are stamped in a single order
	locks *stripedLock
	now   func() int64
}

// NewReadStateService creates a new ReadStateService
func NewReadStateService(repos *repository.Repositories) *ReadStateService {
	return &ReadStateService{
		convRepo:   repos.Conversation,
		partRepo:   repos.Participant,
		msgRepo:    repos.Message,
		unreadRepo: repos.Unread,
		locks:      newStripedLock(),
		now:        entity.NowUnixMilli,
	}
}

// SetClock replaces the time source
func (s *ReadStateService) SetClock(now func() int64) {
	s.now = now
}

// participant returns the caller's participant row or the error that
// explains why there is none
func (s *ReadStateService) participant(ctx context.Context, userId, conversationId string) (*entity.ConversationParticipant, error) {
	if conversationId == "" {
		return nil, errcode.ErrInvalidParam
	}

	p, err := s.partRepo.Get(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "get participant failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		return nil, errcode.ErrTransient
	}
	if p != nil {
		return p, nil
	}

	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrTransient
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	return nil, errcode.ErrNotParticipant
}

// MarkRead moves the caller's marker to now, or to the newest message stamp
// if sends have run ahead of the clock. The marker never moves backward and
// repeating the call changes nothing observable.
func (s *ReadStateService) MarkRead(ctx context.Context, userId, conversationId string) error {
	if _, err := s.participant(ctx, userId, conversationId); err != nil {
		return err
	}

	unlock := s.locks.Lock(conversationId)
	defer unlock()

	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return errcode.ErrTransient
	}
	readAt := s.now()
	if conv != nil && conv.UpdatedAt > readAt {
		readAt = conv.UpdatedAt
	}

	advanced, err := s.partRepo.AdvanceLastRead(ctx, conversationId, userId, readAt)
	if err != nil {
		log.CtxError(ctx, "mark read failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		return errcode.ErrTransient
	}

	s.Invalidate(ctx, userId, conversationId)
	log.CtxDebug(ctx, "conversation marked read: conversation_id=%s, user_id=%s, advanced=%v", conversationId, userId, advanced)
	return nil
}

// GetUnreadCount returns how many of the peer's messages the caller has not
// read, served from cache when possible. The cache version is read before
// the marker so a send or mark-read landing mid-count voids the write-back.
func (s *ReadStateService) GetUnreadCount(ctx context.Context, userId, conversationId string) (int64, error) {
	if conversationId == "" {
		return 0, errcode.ErrInvalidParam
	}

	version, verr := s.unreadRepo.Version(ctx, conversationId, userId)
	if verr != nil {
		log.CtxWarn(ctx, "read unread cache version failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, verr)
	}

	p, err := s.participant(ctx, userId, conversationId)
	if err != nil {
		return 0, err
	}

	if verr == nil {
		if n, ok, err := s.unreadRepo.Get(ctx, conversationId, userId); err != nil {
			log.CtxWarn(ctx, "read unread cache failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		} else if ok {
			return n, nil
		}
	}

	n, err := s.msgRepo.CountUnread(ctx, conversationId, userId, p.LastReadAt)
	if err != nil {
		log.CtxError(ctx, "count unread failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		return 0, errcode.ErrTransient
	}

	if verr == nil {
		stored, err := s.unreadRepo.SetIfVersion(ctx, conversationId, userId, version, n)
		if err != nil {
			log.CtxWarn(ctx, "write unread cache failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
		} else if !stored {
			log.CtxDebug(ctx, "unread cache write skipped, invalidated mid-count: conversation_id=%s, user_id=%s", conversationId, userId)
		}
	}
	return n, nil
}

// GetUnreadByConversation returns unread counts for every conversation of
// the caller; conversations with nothing unread are absent
func (s *ReadStateService) GetUnreadByConversation(ctx context.Context, userId string) (map[string]int64, error) {
	counts, err := s.msgRepo.CountUnreadByUser(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "count unread by user failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrTransient
	}
	return counts, nil
}

// GetTotalUnread sums the caller's unread messages over all conversations
func (s *ReadStateService) GetTotalUnread(ctx context.Context, userId string) (int64, error) {
	counts, err := s.GetUnreadByConversation(ctx, userId)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Invalidate drops userId's cached unread count for a conversation so the
// next read recomputes it, and voids any count still being computed. It
// never touches the read marker.
func (s *ReadStateService) Invalidate(ctx context.Context, userId, conversationId string) {
	if err := s.unreadRepo.Invalidate(ctx, conversationId, userId); err != nil {
		log.CtxWarn(ctx, "invalidate unread cache failed: conversation_id=%s, user_id=%s, error=%v", conversationId, userId, err)
	}
}

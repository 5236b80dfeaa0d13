package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/sellerchat/internal/catalog"
	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/internal/repository"
	"github.com/mbeoliero/sellerchat/pkg/constant"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
	"github.com/mbeoliero/sellerchat/pkg/idgen"
)

const closedNotice = "This conversation has been closed."

// ConversationService handles conversation-related business logic
type ConversationService struct {
	convRepo  *repository.ConversationRepo
	partRepo  *repository.ParticipantRepo
	msgRepo   *repository.MessageRepo
	repos     *repository.Repositories
	catalog   catalog.Resolver
	messages  *MessageService
	readState *ReadStateService
	now       func() int64
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories, resolver catalog.Resolver, messages *MessageService, readState *ReadStateService) *ConversationService {
	return &ConversationService{
		convRepo:  repos.Conversation,
		partRepo:  repos.Participant,
		msgRepo:   repos.Message,
		repos:     repos,
		catalog:   resolver,
		messages:  messages,
		readState: readState,
		now:       entity.NowUnixMilli,
	}
}

// SetClock replaces the time source
func (s *ConversationService) SetClock(now func() int64) {
	s.now = now
}

// CreateConversationRequest represents create conversation request
type CreateConversationRequest struct {
	CounterpartId string `json:"counterpart_id"`
	SubjectItemId string `json:"subject_item_id"`
}

// CreateConversation returns the conversation between the caller and the
// counterpart about the item, creating it when absent. Either participant
// order finds the same conversation.
func (s *ConversationService) CreateConversation(ctx context.Context, initiatorId string, req *CreateConversationRequest) (*entity.ConversationInfo, error) {
	if initiatorId == "" || req.CounterpartId == "" || req.SubjectItemId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if initiatorId == req.CounterpartId {
		return nil, errcode.ErrSelfConversation
	}

	existing, err := s.convRepo.GetByParticipants(ctx, initiatorId, req.CounterpartId, req.SubjectItemId)
	if err != nil {
		log.CtxError(ctx, "find conversation failed: initiator_id=%s, counterpart_id=%s, error=%v", initiatorId, req.CounterpartId, err)
		return nil, errcode.ErrTransient
	}
	if existing != nil {
		return s.resume(ctx, existing, initiatorId)
	}

	title, err := s.catalog.ItemName(ctx, req.SubjectItemId)
	if err != nil {
		var e *errcode.Error
		if errors.As(err, &e) {
			return nil, e
		}
		log.CtxError(ctx, "resolve catalog item failed: item_id=%s, error=%v", req.SubjectItemId, err)
		return nil, errcode.ErrTransient
	}

	id, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate conversation id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	now := s.now()
	low, high := entity.SortParticipants(initiatorId, req.CounterpartId)
	conv := &entity.Conversation{
		Id:              id,
		InitiatorId:     initiatorId,
		CounterpartId:   req.CounterpartId,
		SubjectItemId:   req.SubjectItemId,
		ParticipantLow:  low,
		ParticipantHigh: high,
		Title:           title,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var created bool
	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.convRepo.CreateIfAbsent(ctx, tx, conv)
		if err != nil || !created {
			return err
		}
		return s.partRepo.CreateBatch(ctx, tx, []*entity.ConversationParticipant{
			{ConversationId: id, UserId: initiatorId, CreatedAt: now},
			{ConversationId: id, UserId: req.CounterpartId, CreatedAt: now},
		})
	})
	if err != nil {
		log.CtxError(ctx, "create conversation failed: initiator_id=%s, counterpart_id=%s, item_id=%s, error=%v",
			initiatorId, req.CounterpartId, req.SubjectItemId, err)
		return nil, errcode.ErrTransient
	}

	if !created {
		// A concurrent creator won the unique index; hand back its row.
		winner, err := s.convRepo.GetByParticipants(ctx, initiatorId, req.CounterpartId, req.SubjectItemId)
		if err != nil || winner == nil {
			log.CtxError(ctx, "reload conversation after conflict failed: initiator_id=%s, counterpart_id=%s, error=%v", initiatorId, req.CounterpartId, err)
			return nil, errcode.ErrTransient
		}
		return s.resume(ctx, winner, initiatorId)
	}

	log.CtxInfo(ctx, "conversation created: conversation_id=%s, initiator_id=%s, counterpart_id=%s, item_id=%s",
		id, initiatorId, req.CounterpartId, req.SubjectItemId)
	return conv.ToConversationInfo(initiatorId), nil
}

func (s *ConversationService) resume(ctx context.Context, conv *entity.Conversation, userId string) (*entity.ConversationInfo, error) {
	if !conv.IsActive {
		return nil, errcode.ErrConversationInactive
	}
	return s.describe(ctx, conv, userId)
}

// describe annotates one conversation for userId
func (s *ConversationService) describe(ctx context.Context, conv *entity.Conversation, userId string) (*entity.ConversationInfo, error) {
	info := conv.ToConversationInfo(userId)

	participant, err := s.partRepo.Get(ctx, conv.Id, userId)
	if err != nil {
		log.CtxError(ctx, "get participant failed: conversation_id=%s, user_id=%s, error=%v", conv.Id, userId, err)
		return nil, errcode.ErrTransient
	}
	var lastReadAt *int64
	if participant != nil {
		lastReadAt = participant.LastReadAt
		info.LastReadAt = lastReadAt
	}

	latest, err := s.msgRepo.GetLatestByConversationIds(ctx, []string{conv.Id})
	if err != nil {
		log.CtxError(ctx, "get last message failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, errcode.ErrTransient
	}
	if m, ok := latest[conv.Id]; ok {
		info.LastMessage = m.ToMessageInfo(userId, lastReadAt)
	}

	unread, err := s.readState.GetUnreadCount(ctx, userId, conv.Id)
	if err != nil {
		return nil, err
	}
	info.UnreadCount = unread
	return info, nil
}

// GetUserConversations lists the caller's conversations, most recently
// updated first, each with its last message and unread count
func (s *ConversationService) GetUserConversations(ctx context.Context, userId string) ([]*entity.ConversationInfo, error) {
	convs, err := s.convRepo.GetUserConversations(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get user conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrTransient
	}

	result := make([]*entity.ConversationInfo, 0, len(convs))
	if len(convs) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Id)
	}

	latest, err := s.msgRepo.GetLatestByConversationIds(ctx, ids)
	if err != nil {
		log.CtxError(ctx, "get last messages failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrTransient
	}
	participants, err := s.partRepo.GetUserParticipants(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get participants failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrTransient
	}
	unread, err := s.readState.GetUnreadByConversation(ctx, userId)
	if err != nil {
		return nil, err
	}

	for _, c := range convs {
		info := c.ToConversationInfo(userId)
		var lastReadAt *int64
		if p, ok := participants[c.Id]; ok {
			lastReadAt = p.LastReadAt
			info.LastReadAt = lastReadAt
		}
		if m, ok := latest[c.Id]; ok {
			info.LastMessage = m.ToMessageInfo(userId, lastReadAt)
		}
		info.UnreadCount = unread[c.Id]
		result = append(result, info)
	}

	return result, nil
}

// GetConversation gets a specific conversation for a participant
func (s *ConversationService) GetConversation(ctx context.Context, userId, conversationId string) (*entity.ConversationInfo, error) {
	conv, err := s.getForParticipant(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}
	return s.describe(ctx, conv, userId)
}

func (s *ConversationService) getForParticipant(ctx context.Context, userId, conversationId string) (*entity.Conversation, error) {
	if conversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: user_id=%s, conversation_id=%s, error=%v", userId, conversationId, err)
		return nil, errcode.ErrTransient
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	if !conv.HasParticipant(userId) {
		return nil, errcode.ErrNotParticipant
	}
	return conv, nil
}

// DeactivateConversation closes a conversation for both participants. A
// system message announcing the close is committed in the same transaction
// that clears is_active. Closing an inactive conversation is a no-op.
func (s *ConversationService) DeactivateConversation(ctx context.Context, userId, conversationId string) error {
	unlock := s.messages.locks.Lock(conversationId)
	defer unlock()

	conv, err := s.getForParticipant(ctx, userId, conversationId)
	if err != nil {
		return err
	}
	if !conv.IsActive {
		return nil
	}

	_, err = s.messages.appendLocked(ctx, conv, &draft{
		senderId: userId,
		content:  closedNotice,
		kind:     constant.MsgKindSystem,
	}, func(tx *gorm.DB, notice *entity.Message) error {
		return s.convRepo.Deactivate(ctx, tx, conv.Id, notice.SendAt)
	})
	if err != nil {
		return err
	}

	log.CtxInfo(ctx, "conversation deactivated: conversation_id=%s, user_id=%s", conv.Id, userId)
	return nil
}

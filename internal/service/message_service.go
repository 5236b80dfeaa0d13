package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/sellerchat/internal/bus"
	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/internal/repository"
	"github.com/mbeoliero/sellerchat/pkg/constant"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
	"github.com/mbeoliero/sellerchat/pkg/idgen"
)

// MessagePublisher hands committed messages to the fan-out bus
type MessagePublisher interface {
	Enqueue(channel string, payload []byte) bool
}

// MessageService handles message-related business logic
type MessageService struct {
	msgRepo   *repository.MessageRepo
	seqRepo   *repository.SeqRepo
	convRepo  *repository.ConversationRepo
	partRepo  *repository.ParticipantRepo
	repos     *repository.Repositories
	readState *ReadStateService
	publisher MessagePublisher
	cfg       config.MessagingConfig
	locks     *stripedLock
	now       func() int64
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories, readState *ReadStateService, cfg config.MessagingConfig) *MessageService {
	return &MessageService{
		msgRepo:   repos.Message,
		seqRepo:   repos.Seq,
		convRepo:  repos.Conversation,
		partRepo:  repos.Participant,
		repos:     repos,
		readState: readState,
		cfg:       cfg,
		locks:     readState.locks,
		now:       entity.NowUnixMilli,
	}
}

// SetPublisher sets the message publisher
func (s *MessageService) SetPublisher(publisher MessagePublisher) {
	s.publisher = publisher
}

// SetClock replaces the time source
func (s *MessageService) SetClock(now func() int64) {
	s.now = now
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string                   `json:"conversation_id"`
	Content        string                   `json:"content,omitempty"`
	Kind           int32                    `json:"kind"`
	Attachments    []*entity.AttachmentInfo `json:"attachments,omitempty"`
	ClientMsgId    string                   `json:"client_msg_id,omitempty"`
}

// draft is a validated message waiting for a seq
type draft struct {
	senderId    string
	content     string
	kind        int32
	attachments []*entity.AttachmentInfo
	clientMsgId string
}

// validateSend checks the payload before any store is touched
func (s *MessageService) validateSend(req *SendMessageRequest) error {
	if req.ConversationId == "" {
		return errcode.ErrInvalidParam
	}
	if req.Kind == constant.MsgKindSystem {
		return errcode.ErrSystemMessageRejected
	}
	if req.Kind != 0 && !entity.IsValidKind(req.Kind) {
		return errcode.ErrInvalidParam
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return errcode.ErrEmptyMessage
	}
	if s.cfg.MaxContentLength > 0 && utf8.RuneCountInString(req.Content) > s.cfg.MaxContentLength {
		return errcode.ErrContentTooLong
	}
	if s.cfg.MaxAttachments > 0 && len(req.Attachments) > s.cfg.MaxAttachments {
		return errcode.ErrInvalidAttachment.Wrap(fmt.Errorf("at most %d attachments", s.cfg.MaxAttachments))
	}
	for _, a := range req.Attachments {
		if a == nil || !entity.IsValidMediaKind(a.MediaKind) || !isAbsoluteHTTPURL(a.URL) {
			return errcode.ErrInvalidAttachment
		}
	}
	return nil
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SendMessage appends a message to a conversation. The message, its
// attachments and the conversation's updated_at are committed together;
// afterwards the message is queued for fan-out and the peer's unread cache
// dropped. Fan-out failures never fail the send.
func (s *MessageService) SendMessage(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.MessageInfo, error) {
	if err := s.validateSend(req); err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == 0 {
		attachments := make([]entity.AttachmentInfo, 0, len(req.Attachments))
		for _, a := range req.Attachments {
			attachments = append(attachments, *a)
		}
		kind = entity.InferKind(req.Content, attachments)
	}

	unlock := s.locks.Lock(req.ConversationId)
	defer unlock()

	conv, err := s.convRepo.GetById(ctx, req.ConversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", req.ConversationId, err)
		return nil, errcode.ErrTransient
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	if !conv.HasParticipant(senderId) {
		return nil, errcode.ErrNotParticipant
	}
	if !conv.IsActive {
		return nil, errcode.ErrConversationInactive
	}

	msg, err := s.appendLocked(ctx, conv, &draft{
		senderId:    senderId,
		content:     req.Content,
		kind:        kind,
		attachments: req.Attachments,
		clientMsgId: req.ClientMsgId,
	}, nil)
	if err != nil {
		return nil, err
	}

	log.CtxInfo(ctx, "message sent: conversation_id=%s, sender_id=%s, seq=%d", conv.Id, senderId, msg.Seq)
	return msg.ToMessageInfo(senderId, nil), nil
}

// nextSendAt stamps a message strictly after the previous one and after the
// peer's read marker, so a message is never hidden by a same-millisecond
// mark-read. The caller holds conv's lock.
func (s *MessageService) nextSendAt(ctx context.Context, conv *entity.Conversation, senderId string) (int64, error) {
	sendAt := s.now()
	if conv.UpdatedAt >= sendAt {
		sendAt = conv.UpdatedAt + 1
	}

	peer, err := s.partRepo.Get(ctx, conv.Id, conv.PeerOf(senderId))
	if err != nil {
		return 0, err
	}
	if peer != nil && peer.LastReadAt != nil && *peer.LastReadAt >= sendAt {
		sendAt = *peer.LastReadAt + 1
	}
	return sendAt, nil
}

// appendLocked writes d to conv. The caller holds conv's lock, which keeps
// seq allocation, commit and enqueue in one order per conversation. extra
// runs inside the same transaction.
func (s *MessageService) appendLocked(ctx context.Context, conv *entity.Conversation, d *draft, extra func(tx *gorm.DB, msg *entity.Message) error) (*entity.Message, error) {
	sendAt, err := s.nextSendAt(ctx, conv, d.senderId)
	if err != nil {
		log.CtxError(ctx, "read peer marker failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, errcode.ErrTransient
	}

	seq, err := s.seqRepo.AllocSeq(ctx, conv.Id)
	if err != nil {
		log.CtxError(ctx, "alloc seq failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, errcode.ErrSeqAllocFailed
	}

	ids, err := idgen.NextIDs(1 + len(d.attachments))
	if err != nil {
		log.CtxError(ctx, "generate message ids failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	msg := &entity.Message{
		Id:             ids[0],
		ConversationId: conv.Id,
		Seq:            seq,
		SenderId:       d.senderId,
		Kind:           d.kind,
		SendAt:         sendAt,
		CreatedAt:      sendAt,
	}
	if d.content != "" {
		content := d.content
		msg.Content = &content
	}
	if d.clientMsgId != "" {
		clientMsgId := d.clientMsgId
		msg.ClientMsgId = &clientMsgId
	}
	for i, a := range d.attachments {
		msg.Attachments = append(msg.Attachments, &entity.Attachment{
			Id:        ids[i+1],
			URL:       a.URL,
			MediaKind: a.MediaKind,
		})
	}

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.msgRepo.Create(ctx, tx, msg); err != nil {
			return err
		}
		if err := s.convRepo.Touch(ctx, tx, conv.Id, sendAt); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx, msg)
		}
		return nil
	})
	if err != nil {
		log.CtxError(ctx, "append message failed: conversation_id=%s, seq=%d, error=%v", conv.Id, seq, err)
		return nil, errcode.ErrSendFailed
	}

	s.publish(ctx, msg)
	s.readState.Invalidate(ctx, conv.PeerOf(d.senderId), conv.Id)
	return msg, nil
}

// publish queues the committed message on its conversation channel
func (s *MessageService) publish(ctx context.Context, msg *entity.Message) {
	if s.publisher == nil {
		return
	}

	// Push payloads are viewer-neutral; receivers derive is_read themselves.
	payload, err := json.Marshal(msg.ToMessageInfo("", nil))
	if err != nil {
		log.CtxWarn(ctx, "encode push payload failed: conversation_id=%s, seq=%d, error=%v", msg.ConversationId, msg.Seq, err)
		return
	}
	if !s.publisher.Enqueue(bus.ConversationChannel(msg.ConversationId), payload) {
		log.CtxWarn(ctx, "message not queued for fan-out: conversation_id=%s, seq=%d", msg.ConversationId, msg.Seq)
	}
}

// ListMessagesRequest represents list messages request
type ListMessagesRequest struct {
	ConversationId string `json:"conversation_id"`
	Limit          int    `json:"limit"`
	BeforeSeq      int64  `json:"before_seq"`
}

// ListMessagesResponse is one page of history, oldest first
type ListMessagesResponse struct {
	Messages      []*entity.MessageInfo `json:"messages"`
	HasMore       bool                  `json:"has_more"`
	NextBeforeSeq int64                 `json:"next_before_seq"`
}

func (s *MessageService) pageSize(limit int) int {
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if s.cfg.MaxPageSize > 0 && limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if limit <= 0 {
		limit = 50
	}
	return limit
}

// ListMessages returns the newest page (BeforeSeq 0) or the page just older
// than BeforeSeq. Opening the newest page marks the conversation read; the
// returned is_read flags reflect the marker from before the open.
func (s *MessageService) ListMessages(ctx context.Context, userId string, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	if req.ConversationId == "" || req.BeforeSeq < 0 {
		return nil, errcode.ErrInvalidParam
	}

	conv, err := s.convRepo.GetById(ctx, req.ConversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", req.ConversationId, err)
		return nil, errcode.ErrTransient
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	participant, err := s.partRepo.Get(ctx, conv.Id, userId)
	if err != nil {
		log.CtxError(ctx, "get participant failed: conversation_id=%s, user_id=%s, error=%v", conv.Id, userId, err)
		return nil, errcode.ErrTransient
	}
	if participant == nil {
		return nil, errcode.ErrNotParticipant
	}

	limit := s.pageSize(req.Limit)
	messages, err := s.msgRepo.GetPage(ctx, conv.Id, req.BeforeSeq, limit+1)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%s, error=%v", conv.Id, err)
		return nil, errcode.ErrPullFailed
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[1:]
	}

	resp := &ListMessagesResponse{
		Messages: make([]*entity.MessageInfo, 0, len(messages)),
		HasMore:  hasMore,
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, m.ToMessageInfo(userId, participant.LastReadAt))
	}
	if len(messages) > 0 {
		resp.NextBeforeSeq = messages[0].Seq
	}

	if req.BeforeSeq == 0 {
		if err := s.readState.MarkRead(ctx, userId, conv.Id); err != nil {
			log.CtxWarn(ctx, "implicit mark read failed: conversation_id=%s, user_id=%s, error=%v", conv.Id, userId, err)
		}
	}

	return resp, nil
}

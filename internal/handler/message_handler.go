package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/sellerchat/internal/middleware"
	"github.com/mbeoliero/sellerchat/internal/service"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
	"github.com/mbeoliero/sellerchat/pkg/response"
)

// MessageHandler handles message-related requests
type MessageHandler struct {
	msgService *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService) *MessageHandler {
	return &MessageHandler{msgService: msgService}
}

// SendMessage handles send message request
func (h *MessageHandler) SendMessage(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req service.SendMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.SendMessage(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg)
}

// ListMessages handles one page of conversation history
func (h *MessageHandler) ListMessages(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	req := &service.ListMessagesRequest{ConversationId: conversationId}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
			return
		}
		req.Limit = limit
	}
	if v := c.Query("before_seq"); v != "" {
		beforeSeq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
			return
		}
		req.BeforeSeq = beforeSeq
	}

	page, err := h.msgService.ListMessages(ctx, userId, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, page)
}

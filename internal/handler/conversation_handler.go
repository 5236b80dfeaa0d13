package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/sellerchat/internal/middleware"
	"github.com/mbeoliero/sellerchat/internal/service"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
	"github.com/mbeoliero/sellerchat/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	convService      *service.ConversationService
	readStateService *service.ReadStateService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService, readStateService *service.ReadStateService) *ConversationHandler {
	return &ConversationHandler{convService: convService, readStateService: readStateService}
}

// ConversationIdRequest carries a single conversation id in the body
type ConversationIdRequest struct {
	ConversationId string `json:"conversation_id"`
}

// CreateConversation handles create-or-resume conversation request
func (h *ConversationHandler) CreateConversation(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req service.CreateConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.convService.CreateConversation(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// GetConversationList handles get conversation list request
func (h *ConversationHandler) GetConversationList(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	convs, err := h.convService.GetUserConversations(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, convs)
}

// GetConversation handles get single conversation request
func (h *ConversationHandler) GetConversation(ctx context.Context, c *app.RequestContext) {
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

	conv, err := h.convService.GetConversation(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// MarkRead handles mark conversation as read request
func (h *ConversationHandler) MarkRead(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req ConversationIdRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.readStateService.MarkRead(ctx, userId, req.ConversationId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// Deactivate handles close conversation request
func (h *ConversationHandler) Deactivate(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	var req ConversationIdRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.convService.DeactivateConversation(ctx, userId, req.ConversationId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// GetUnreadCount handles get unread count request
func (h *ConversationHandler) GetUnreadCount(ctx context.Context, c *app.RequestContext) {
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

	unreadCount, err := h.readStateService.GetUnreadCount(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"unread_count": unreadCount,
	})
}

// GetTotalUnread handles the dashboard badge request
func (h *ConversationHandler) GetTotalUnread(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthenticated)
		return
	}

	total, err := h.readStateService.GetTotalUnread(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"unread_total": total,
	})
}

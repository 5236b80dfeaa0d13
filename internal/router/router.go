package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/gateway"
	"github.com/mbeoliero/sellerchat/internal/handler"
	"github.com/mbeoliero/sellerchat/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
}

// SetupRouter sets up all routes. wsServer may be nil when the WebSocket
// gateway is not served by this instance.
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	auth := []app.HandlerFunc{
		middleware.JWTAuth(cfg),
		middleware.RequireRoles(cfg.Auth.AllowedRoles),
	}

	msgGroup := h.Group("/msg", auth...)
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.GET("/list", handlers.Message.ListMessages)
	}

	convGroup := h.Group("/conversation", auth...)
	{
		convGroup.POST("/create", handlers.Conversation.CreateConversation)
		convGroup.GET("/list", handlers.Conversation.GetConversationList)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.POST("/mark_read", handlers.Conversation.MarkRead)
		convGroup.POST("/deactivate", handlers.Conversation.Deactivate)
		convGroup.GET("/unread_count", handlers.Conversation.GetUnreadCount)
		convGroup.GET("/unread_total", handlers.Conversation.GetTotalUnread)
	}

	if wsServer == nil {
		return
	}

	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// Non-browser clients send no origin
	if origin == "" {
		return true
	}

	if len(allowedOrigins) == 0 {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}

	return false
}

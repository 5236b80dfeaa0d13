package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/sellerchat/internal/middleware"
)

// HandleHertzConnection authenticates the handshake and serves the
// connection until it closes
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(consts.StatusServiceUnavailable, "connection limit exceeded")
		return
	}

	token := c.Query(QueryToken)
	sendId := c.Query(QuerySendId)
	sdkType := c.Query(QuerySDKType)

	if token == "" {
		c.String(consts.StatusUnauthorized, "missing token")
		return
	}

	claims, err := middleware.ParseTokenWithFallback(token, s.cfg)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		c.String(consts.StatusUnauthorized, "unauthorized")
		return
	}
	if sendId != "" && sendId != claims.UserId {
		c.String(consts.StatusUnauthorized, "send_id does not match token")
		return
	}
	if !claims.HasAnyRole(s.cfg.Auth.AllowedRoles...) {
		c.String(consts.StatusForbidden, "forbidden")
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		client := NewClient(newHertzConn(conn, s.cfg.WebSocket), claims.UserId, claims.PlatformId, sdkType, uuid.NewString(), s)
		s.RegisterClient(client)

		// Blocks until the connection ends
		client.readLoop()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}

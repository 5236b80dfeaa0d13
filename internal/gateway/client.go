package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/sellerchat/internal/bus"
	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

// ClientConn represents a WebSocket connection wrapper
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Client represents a connected WebSocket client
type Client struct {
	mu         sync.Mutex
	conn       ClientConn
	UserId     string
	PlatformId int
	SDKType    string
	ConnId     string
	server     *WsServer
	closed     atomic.Bool
	closedErr  error
	ctx        context.Context
	cancel     context.CancelFunc

	subsMu sync.Mutex
	subs   map[string]bus.Subscription // conversation_id -> live feed
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId string, platformId int, sdkType, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		UserId:     userId,
		PlatformId: platformId,
		SDKType:    sdkType,
		ConnId:     connId,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[string]bus.Subscription),
	}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming message. Business failures are
// replied to the client; only a failed write ends the connection.
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.reply(&req, errcode.ErrInvalidProtocol, nil)
	}

	// Validate sender Id matches authenticated user
	if req.SendId != "" && req.SendId != c.UserId {
		return c.reply(&req, errcode.ErrTokenMismatch, nil)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s", req.ReqIdentifier, c.UserId)

	var resp []byte
	var err error

	switch req.ReqIdentifier {
	case WSSubscribe:
		resp, err = c.server.HandleSubscribe(c.ctx, c, &req)
	case WSUnsubscribe:
		resp, err = c.server.HandleUnsubscribe(c.ctx, c, &req)
	case WSSendMsg:
		resp, err = c.server.HandleSendMsg(c.ctx, c, &req)
	case WSGetPeerOnline:
		resp, err = c.server.HandleGetPeerOnline(c.ctx, c, &req)
	case WSPullMsg:
		resp, err = c.server.HandlePullMsg(c.ctx, c, &req)
	case WSMarkRead:
		resp, err = c.server.HandleMarkRead(c.ctx, c, &req)
	default:
		err = errcode.ErrInvalidProtocol
	}

	return c.reply(&req, err, resp)
}

// reply sends a response to the client
func (c *Client) reply(req *WSRequest, err error, data []byte) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		Data:          data,
	}

	if err != nil {
		e := errcode.From(err)
		resp.ErrCode = e.Code
		resp.ErrMsg = e.Msg
		resp.Data = nil
	}

	return c.writeResponse(resp)
}

// writeResponse writes a response to the connection
func (c *Client) writeResponse(resp WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// PushMessage pushes a message to the client
func (c *Client) PushMessage(ctx context.Context, msg *entity.MessageInfo) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	data, err := json.Marshal(&PushMsgData{
		Msgs: map[string][]*entity.MessageInfo{
			msg.ConversationId: {msg},
		},
	})
	if err != nil {
		return err
	}

	return c.writeResponse(WSResponse{
		ReqIdentifier: WSPushMsg,
		Data:          data,
	})
}

// subscribe attaches a live feed for conversationId. It reports false when
// the client already holds one.
func (c *Client) subscribe(conversationId string, sub bus.Subscription) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if _, ok := c.subs[conversationId]; ok || c.closed.Load() {
		return false
	}
	c.subs[conversationId] = sub
	return true
}

func (c *Client) isSubscribed(conversationId string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	_, ok := c.subs[conversationId]
	return ok
}

// unsubscribe closes the live feed of conversationId, if any
func (c *Client) unsubscribe(conversationId string) {
	c.subsMu.Lock()
	sub, ok := c.subs[conversationId]
	delete(c.subs, conversationId)
	c.subsMu.Unlock()

	if ok {
		_ = sub.Close()
	}
}

// release closes sub and detaches it from conversationId unless a newer
// subscription has taken its place
func (c *Client) release(conversationId string, sub bus.Subscription) {
	c.subsMu.Lock()
	if cur, ok := c.subs[conversationId]; ok && cur == sub {
		delete(c.subs, conversationId)
	}
	c.subsMu.Unlock()

	_ = sub.Close()
}

// forward relays a conversation feed to the connection until the feed or
// the client ends. Own messages are marked read for this viewer.
func (c *Client) forward(conversationId string, sub bus.Subscription) {
	defer c.release(conversationId, sub)

	for {
		select {
		case <-c.ctx.Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}

			var msg entity.MessageInfo
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.CtxWarn(c.ctx, "decode push payload failed: conversation_id=%s, error=%v", conversationId, err)
				continue
			}
			msg.IsRead = msg.SenderId == c.UserId

			if err := c.PushMessage(c.ctx, &msg); err != nil {
				log.CtxDebug(c.ctx, "push to client failed: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
			}
		}
	}
}

// Close closes the client connection and all of its subscriptions
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.closed.Store(true)
	c.cancel()
	err := c.conn.Close()
	c.mu.Unlock()

	c.subsMu.Lock()
	subs := c.subs
	c.subs = make(map[string]bus.Subscription)
	c.subsMu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return err
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	_ = c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

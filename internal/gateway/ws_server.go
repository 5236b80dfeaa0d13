package gateway

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/sellerchat/internal/bus"
	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/service"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

const presenceRefreshPeriod = 30 * time.Second

// WsServer is the WebSocket server. Each client subscription is a bus
// subscription of its own, so any instance can serve any conversation.
type WsServer struct {
	cfg            *config.Config
	userMap        *UserMap
	registerChan   chan *Client
	unregisterChan chan *Client
	bus            bus.Bus
	msgService     *service.MessageService
	convService    *service.ConversationService
	readState      *service.ReadStateService
	onlineUserNum  atomic.Int64
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, rdb *redis.Client, b bus.Bus, msgService *service.MessageService,
	convService *service.ConversationService, readState *service.ReadStateService) *WsServer {
	return &WsServer{
		cfg:            cfg,
		userMap:        NewUserMap(rdb),
		registerChan:   make(chan *Client, 1000),
		unregisterChan: make(chan *Client, 1000),
		bus:            b,
		msgService:     msgService,
		convService:    convService,
		readState:      readState,
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
}

// Run starts the WebSocket server
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)
	go s.presenceLoop(ctx)
	log.Info("websocket server started: max_conn_num=%d", s.maxConnNum)
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// presenceLoop keeps the online keys of connected users alive
func (s *WsServer) presenceLoop(ctx context.Context) {
	ticker := time.NewTicker(presenceRefreshPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, userId := range s.userMap.GetAllOnlineUserIds() {
				s.userMap.RefreshOnlineStatus(ctx, userId)
			}
		}
	}
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	existingClients, exists := s.userMap.GetAll(client.UserId)
	if !exists {
		s.onlineUserNum.Add(1)
	}

	s.userMap.Register(ctx, client)
	s.onlineConnNum.Add(1)

	log.CtxInfo(ctx, "client registered: user_id=%s, platform_id=%d, conn_id=%s, existing_conns=%d, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, len(existingClients), s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	isUserOffline := s.userMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)

	if isUserOffline {
		s.onlineUserNum.Add(-1)
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform_id=%d, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// RegisterClient queues client for registration
func (s *WsServer) RegisterClient(client *Client) {
	s.registerChan <- client
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: user_id=%s", client.UserId)
	}
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

func decodeConversationReq(req *WSRequest) (*ConversationReq, error) {
	var r ConversationReq
	if err := json.Unmarshal(req.Data, &r); err != nil || r.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	return &r, nil
}

// ========== Message Handlers ==========

// HandleSubscribe starts relaying a conversation's new messages to the
// client. Only participants may subscribe; repeating it is a no-op.
func (s *WsServer) HandleSubscribe(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	r, err := decodeConversationReq(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.convService.GetConversation(ctx, client.UserId, r.ConversationId); err != nil {
		return nil, err
	}

	if !client.isSubscribed(r.ConversationId) {
		sub, err := s.bus.Subscribe(ctx, bus.ConversationChannel(r.ConversationId))
		if err != nil {
			log.CtxError(ctx, "bus subscribe failed: user_id=%s, conversation_id=%s, error=%v", client.UserId, r.ConversationId, err)
			return nil, errcode.ErrTransient
		}
		if client.subscribe(r.ConversationId, sub) {
			go client.forward(r.ConversationId, sub)
		} else {
			_ = sub.Close()
		}
	}

	return json.Marshal(SubscribeResp{ConversationId: r.ConversationId})
}

// HandleUnsubscribe stops a subscription
func (s *WsServer) HandleUnsubscribe(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	r, err := decodeConversationReq(req)
	if err != nil {
		return nil, err
	}

	client.unsubscribe(r.ConversationId)
	return json.Marshal(SubscribeResp{ConversationId: r.ConversationId})
}

// HandleSendMsg handles send message request
func (s *WsServer) HandleSendMsg(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var sendReq service.SendMessageRequest
	if err := json.Unmarshal(req.Data, &sendReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	msg, err := s.msgService.SendMessage(ctx, client.UserId, &sendReq)
	if err != nil {
		return nil, err
	}

	return json.Marshal(msg)
}

// HandlePullMsg handles pull messages request
func (s *WsServer) HandlePullMsg(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var pullReq PullMsgReq
	if err := json.Unmarshal(req.Data, &pullReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	page, err := s.msgService.ListMessages(ctx, client.UserId, &service.ListMessagesRequest{
		ConversationId: pullReq.ConversationId,
		Limit:          pullReq.Limit,
		BeforeSeq:      pullReq.BeforeSeq,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(page)
}

// HandleMarkRead handles mark conversation read request
func (s *WsServer) HandleMarkRead(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	r, err := decodeConversationReq(req)
	if err != nil {
		return nil, err
	}

	if err := s.readState.MarkRead(ctx, client.UserId, r.ConversationId); err != nil {
		return nil, err
	}
	return nil, nil
}

// HandleGetPeerOnline reports whether the other participant is connected
// to any instance
func (s *WsServer) HandleGetPeerOnline(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	r, err := decodeConversationReq(req)
	if err != nil {
		return nil, err
	}

	conv, err := s.convService.GetConversation(ctx, client.UserId, r.ConversationId)
	if err != nil {
		return nil, err
	}

	return json.Marshal(PeerOnlineResp{
		UserId: conv.PeerUserId,
		Online: s.userMap.IsOnline(ctx, conv.PeerUserId),
	})
}

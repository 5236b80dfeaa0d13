package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/sellerchat/internal/bus"
	"github.com/mbeoliero/sellerchat/internal/catalog"
	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/internal/service"
	"github.com/mbeoliero/sellerchat/internal/testkit"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

const (
	buyer  = "by__1"
	seller = "sl__2"
)

// memConn is a ClientConn fed and drained by the test
type memConn struct {
	in        chan []byte
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newMemConn() *memConn {
	return &memConn{
		in:   make(chan []byte, 16),
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *memConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.done:
		return nil, ErrConnClosed
	}
}

func (c *memConn) WriteMessage(data []byte) error {
	select {
	case c.out <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *memConn) SetReadDeadline(time.Time) error  { return nil }
func (c *memConn) SetWriteDeadline(time.Time) error { return nil }

type fixture struct {
	server   *WsServer
	messages *service.MessageService
	convs    *service.ConversationService
	conv     *entity.ConversationInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stores := testkit.NewStores(t)
	cfg := &config.Config{}
	cfg.SetDefaults()

	memBus := bus.NewMemoryBus(64)
	dispatcher := bus.NewDispatcher(memBus, 2, 64)
	dispatcher.Start()
	t.Cleanup(func() {
		dispatcher.Close()
		_ = memBus.Close()
	})

	readState := service.NewReadStateService(stores.Repos)
	messages := service.NewMessageService(stores.Repos, readState, cfg.Messaging)
	messages.SetPublisher(dispatcher)
	convs := service.NewConversationService(stores.Repos, catalog.NewStaticResolver(map[string]string{"item-1": "Blue Mug"}), messages, readState)

	conv, err := convs.CreateConversation(context.Background(), buyer, &service.CreateConversationRequest{
		CounterpartId: seller,
		SubjectItemId: "item-1",
	})
	require.NoError(t, err)

	return &fixture{
		server:   NewWsServer(cfg, stores.Redis, memBus, messages, convs, readState),
		messages: messages,
		convs:    convs,
		conv:     conv,
	}
}

// session drives one connected client
type session struct {
	t       *testing.T
	conn    *memConn
	client  *Client
	pending []WSResponse
	incr    int
}

func (f *fixture) connect(t *testing.T, userId string) *session {
	conn := newMemConn()
	client := NewClient(conn, userId, 5, SDKTypeGo, userId+"-conn", f.server)
	f.server.userMap.Register(context.Background(), client)
	client.Start()
	t.Cleanup(func() { _ = client.Close() })
	return &session{t: t, conn: conn, client: client}
}

func (s *session) await(match func(WSResponse) bool) WSResponse {
	s.t.Helper()
	for i, r := range s.pending {
		if match(r) {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return r
		}
	}
	for {
		select {
		case data := <-s.conn.out:
			var resp WSResponse
			require.NoError(s.t, json.Unmarshal(data, &resp))
			if match(resp) {
				return resp
			}
			s.pending = append(s.pending, resp)
		case <-time.After(2 * time.Second):
			s.t.Fatal("timed out waiting for frame")
		}
	}
}

func (s *session) call(reqId int32, data interface{}) WSResponse {
	s.t.Helper()
	s.incr++
	req := WSRequest{ReqIdentifier: reqId, MsgIncr: string(rune('a' + s.incr))}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(s.t, err)
		req.Data = raw
	}
	frame, err := json.Marshal(req)
	require.NoError(s.t, err)
	s.conn.in <- frame

	return s.await(func(r WSResponse) bool {
		return r.ReqIdentifier == reqId && r.MsgIncr == req.MsgIncr
	})
}

func (s *session) push() *entity.MessageInfo {
	s.t.Helper()
	resp := s.await(func(r WSResponse) bool { return r.ReqIdentifier == WSPushMsg })

	var data PushMsgData
	require.NoError(s.t, json.Unmarshal(resp.Data, &data))
	for _, msgs := range data.Msgs {
		require.Len(s.t, msgs, 1)
		return msgs[0]
	}
	s.t.Fatal("empty push")
	return nil
}

func (s *session) noPush() {
	s.t.Helper()
	select {
	case data := <-s.conn.out:
		s.t.Fatalf("unexpected frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeRelaysNewMessages(t *testing.T) {
	f := newFixture(t)
	convId := f.conv.ConversationId
	s := f.connect(t, seller)

	resp := s.call(WSSubscribe, ConversationReq{ConversationId: convId})
	require.Zero(t, resp.ErrCode, resp.ErrMsg)

	sent, err := f.messages.SendMessage(context.Background(), buyer, &service.SendMessageRequest{
		ConversationId: convId,
		Content:        "Still available?",
	})
	require.NoError(t, err)

	pushed := s.push()
	assert.Equal(t, sent.Id, pushed.Id)
	assert.Equal(t, "Still available?", pushed.Content)
	assert.False(t, pushed.IsRead)

	resp = s.call(WSSendMsg, service.SendMessageRequest{ConversationId: convId, Content: "Yes", ClientMsgId: "local-1"})
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	var confirmed entity.MessageInfo
	require.NoError(t, json.Unmarshal(resp.Data, &confirmed))
	assert.Equal(t, "local-1", confirmed.ClientMsgId)
	assert.EqualValues(t, 2, confirmed.Seq)

	own := s.push()
	assert.Equal(t, confirmed.Id, own.Id)
	assert.True(t, own.IsRead)

	// A second subscribe must not double the feed.
	require.Zero(t, s.call(WSSubscribe, ConversationReq{ConversationId: convId}).ErrCode)
	_, err = f.messages.SendMessage(context.Background(), buyer, &service.SendMessageRequest{ConversationId: convId, Content: "ok"})
	require.NoError(t, err)
	s.push()
	s.noPush()

	require.Zero(t, s.call(WSUnsubscribe, ConversationReq{ConversationId: convId}).ErrCode)
	_, err = f.messages.SendMessage(context.Background(), buyer, &service.SendMessageRequest{ConversationId: convId, Content: "gone?"})
	require.NoError(t, err)
	s.noPush()
}

// endedFeed is a subscription whose feed is already over
type endedFeed struct {
	ch chan []byte
}

func newEndedFeed() *endedFeed {
	ch := make(chan []byte)
	close(ch)
	return &endedFeed{ch: ch}
}

func (f *endedFeed) C() <-chan []byte { return f.ch }
func (f *endedFeed) Close() error     { return nil }

func TestStaleFeedDoesNotDropResubscription(t *testing.T) {
	f := newFixture(t)
	convId := f.conv.ConversationId
	s := f.connect(t, seller)

	old := newEndedFeed()
	require.True(t, s.client.subscribe(convId, old))
	require.Zero(t, s.call(WSUnsubscribe, ConversationReq{ConversationId: convId}).ErrCode)
	require.Zero(t, s.call(WSSubscribe, ConversationReq{ConversationId: convId}).ErrCode)

	// the old relay only now notices its feed ended
	s.client.forward(convId, old)
	assert.True(t, s.client.isSubscribed(convId))

	sent, err := f.messages.SendMessage(context.Background(), buyer, &service.SendMessageRequest{ConversationId: convId, Content: "still here"})
	require.NoError(t, err)
	assert.Equal(t, sent.Id, s.push().Id)
}

func TestSubscribeRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t, "by__99")

	resp := s.call(WSSubscribe, ConversationReq{ConversationId: f.conv.ConversationId})
	assert.Equal(t, errcode.ErrNotParticipant.Code, resp.ErrCode)

	resp = s.call(WSSubscribe, ConversationReq{})
	assert.Equal(t, errcode.ErrInvalidParam.Code, resp.ErrCode)
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t, buyer)

	resp := s.call(4242, nil)
	assert.Equal(t, errcode.ErrInvalidProtocol.Code, resp.ErrCode)

	resp = s.call(WSSendMsg, service.SendMessageRequest{ConversationId: f.conv.ConversationId})
	assert.Equal(t, errcode.ErrEmptyMessage.Code, resp.ErrCode)

	frame, err := json.Marshal(WSRequest{ReqIdentifier: WSSendMsg, MsgIncr: "x", SendId: seller})
	require.NoError(t, err)
	s.conn.in <- frame
	resp = s.await(func(r WSResponse) bool { return r.MsgIncr == "x" })
	assert.Equal(t, errcode.ErrTokenMismatch.Code, resp.ErrCode)

	assert.False(t, s.client.IsClosed())
}

func TestPullAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convId := f.conv.ConversationId
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.messages.SendMessage(ctx, buyer, &service.SendMessageRequest{ConversationId: convId, Content: text})
		require.NoError(t, err)
	}

	s := f.connect(t, seller)
	resp := s.call(WSPullMsg, PullMsgReq{ConversationId: convId, Limit: 2, BeforeSeq: 3})
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	var page service.ListMessagesResponse
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Messages, 2)
	assert.EqualValues(t, 1, page.Messages[0].Seq)
	assert.False(t, page.HasMore)

	info, err := f.convs.GetConversation(ctx, seller, convId)
	require.NoError(t, err)
	assert.EqualValues(t, 3, info.UnreadCount)

	resp = s.call(WSMarkRead, ConversationReq{ConversationId: convId})
	require.Zero(t, resp.ErrCode, resp.ErrMsg)

	info, err = f.convs.GetConversation(ctx, seller, convId)
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.UnreadCount)
}

func TestPeerOnline(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t, buyer)

	var presence PeerOnlineResp
	resp := s.call(WSGetPeerOnline, ConversationReq{ConversationId: f.conv.ConversationId})
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	require.NoError(t, json.Unmarshal(resp.Data, &presence))
	assert.Equal(t, seller, presence.UserId)
	assert.False(t, presence.Online)

	f.connect(t, seller)
	resp = s.call(WSGetPeerOnline, ConversationReq{ConversationId: f.conv.ConversationId})
	require.NoError(t, json.Unmarshal(resp.Data, &presence))
	assert.True(t, presence.Online)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	f := newFixture(t)
	s := f.connect(t, seller)
	require.Zero(t, s.call(WSSubscribe, ConversationReq{ConversationId: f.conv.ConversationId}).ErrCode)
	require.True(t, s.client.isSubscribed(f.conv.ConversationId))

	require.NoError(t, s.client.Close())
	assert.True(t, s.client.IsClosed())
	assert.False(t, s.client.isSubscribed(f.conv.ConversationId))
}

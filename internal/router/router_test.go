package router

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/sellerchat/internal/bus"
	"github.com/mbeoliero/sellerchat/internal/catalog"
	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/internal/handler"
	"github.com/mbeoliero/sellerchat/internal/service"
	"github.com/mbeoliero/sellerchat/internal/testkit"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
	"github.com/mbeoliero/sellerchat/pkg/jwt"
)

const secret = "router-test-secret"

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type api struct {
	t *testing.T
	h *server.Hertz
}

func newAPI(t *testing.T) *api {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = secret
	cfg.SetDefaults()

	stores := testkit.NewStores(t)
	memBus := bus.NewMemoryBus(16)
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

	h := server.New()
	SetupRouter(h, cfg, &Handlers{
		Message:      handler.NewMessageHandler(messages),
		Conversation: handler.NewConversationHandler(convs, readState),
	}, nil)
	return &api{t: t, h: h}
}

func token(t *testing.T, userId string, roles ...string) string {
	t.Helper()
	tok, err := jwt.GenerateToken(userId, 5, roles, secret, 1)
	require.NoError(t, err)
	return tok
}

func (a *api) do(method, path, tok string, body interface{}) envelope {
	a.t.Helper()

	var reqBody *ut.Body
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}
	}

	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if tok != "" {
		headers = append(headers, ut.Header{Key: "Authorization", Value: "Bearer " + tok})
	}

	w := ut.PerformRequest(a.h.Engine, method, path, reqBody, headers...)
	resp := w.Result()
	require.Equal(a.t, consts.StatusOK, resp.StatusCode())

	var env envelope
	require.NoError(a.t, json.Unmarshal(resp.Body(), &env))
	return env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	require.Zero(t, env.Code, env.Msg)
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	w := ut.PerformRequest(a.h.Engine, consts.MethodGet, "/health", nil)
	assert.Equal(t, consts.StatusOK, w.Result().StatusCode())
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	env := a.do(consts.MethodGet, "/conversation/list", "", nil)
	assert.Equal(t, errcode.ErrTokenMissing.Code, env.Code)

	env = a.do(consts.MethodGet, "/conversation/list", "not-a-jwt", nil)
	assert.Equal(t, errcode.ErrTokenInvalid.Code, env.Code)

	env = a.do(consts.MethodGet, "/conversation/list", token(t, "ad__1", "admin"), nil)
	assert.Equal(t, errcode.ErrNoPermission.Code, env.Code)
}

func TestConversationOverHTTP(t *testing.T) {
	a := newAPI(t)
	buyerTok := token(t, "by__1", "buyer")
	sellerTok := token(t, "sl__2", "seller")

	conv := decode[entity.ConversationInfo](t, a.do(consts.MethodPost, "/conversation/create", buyerTok,
		map[string]string{"counterpart_id": "sl__2", "subject_item_id": "item-1"}))
	assert.Equal(t, "Blue Mug", conv.Title)

	same := decode[entity.ConversationInfo](t, a.do(consts.MethodPost, "/conversation/create", sellerTok,
		map[string]string{"counterpart_id": "by__1", "subject_item_id": "item-1"}))
	assert.Equal(t, conv.ConversationId, same.ConversationId)

	env := a.do(consts.MethodPost, "/conversation/create", buyerTok,
		map[string]string{"counterpart_id": "by__1", "subject_item_id": "item-1"})
	assert.Equal(t, errcode.ErrSelfConversation.Code, env.Code)

	sent := decode[entity.MessageInfo](t, a.do(consts.MethodPost, "/msg/send", buyerTok, map[string]interface{}{
		"conversation_id": conv.ConversationId,
		"content":         "Is it dishwasher safe?",
		"client_msg_id":   "c-1",
	}))
	assert.EqualValues(t, 1, sent.Seq)
	assert.Equal(t, "c-1", sent.ClientMsgId)

	env = a.do(consts.MethodPost, "/msg/send", buyerTok, map[string]interface{}{"conversation_id": conv.ConversationId})
	assert.Equal(t, errcode.ErrEmptyMessage.Code, env.Code)

	unread := decode[map[string]int64](t, a.do(consts.MethodGet, "/conversation/unread_total", sellerTok, nil))
	assert.EqualValues(t, 1, unread["unread_total"])

	page := decode[service.ListMessagesResponse](t, a.do(consts.MethodGet,
		"/msg/list?conversation_id="+conv.ConversationId+"&limit=10", sellerTok, nil))
	require.Len(t, page.Messages, 1)
	assert.False(t, page.Messages[0].IsRead)

	unread = decode[map[string]int64](t, a.do(consts.MethodGet,
		"/conversation/unread_count?conversation_id="+conv.ConversationId, sellerTok, nil))
	assert.EqualValues(t, 0, unread["unread_count"])

	env = a.do(consts.MethodGet, "/msg/list?conversation_id="+conv.ConversationId+"&limit=abc", sellerTok, nil)
	assert.Equal(t, errcode.ErrInvalidParam.Code, env.Code)

	outsider := token(t, "by__3", "buyer")
	env = a.do(consts.MethodGet, "/conversation/info?conversation_id="+conv.ConversationId, outsider, nil)
	assert.Equal(t, errcode.ErrNotParticipant.Code, env.Code)

	env = a.do(consts.MethodPost, "/conversation/deactivate", sellerTok, map[string]string{"conversation_id": conv.ConversationId})
	require.Zero(t, env.Code, env.Msg)

	list := decode[[]entity.ConversationInfo](t, a.do(consts.MethodGet, "/conversation/list", buyerTok, nil))
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
	assert.EqualValues(t, 1, list[0].UnreadCount)

	env = a.do(consts.MethodPost, "/conversation/mark_read", buyerTok, map[string]string{"conversation_id": conv.ConversationId})
	require.Zero(t, env.Code, env.Msg)
	list = decode[[]entity.ConversationInfo](t, a.do(consts.MethodGet, "/conversation/list", buyerTok, nil))
	assert.EqualValues(t, 0, list[0].UnreadCount)
}

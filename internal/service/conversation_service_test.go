package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/pkg/constant"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

type resolverFunc func(ctx context.Context, itemId string) (string, error)

func (f resolverFunc) ItemName(ctx context.Context, itemId string) (string, error) {
	return f(ctx, itemId)
}

func countRows(t *testing.T, e *testEnv, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.stores.DB.Model(model).Count(&n).Error)
	return n
}

func TestCreateConversationResumesInEitherOrder(t *testing.T) {
	e := newTestEnv(t)

	first := e.open(t, buyer, seller, "item-1")
	assert.Equal(t, "Blue Mug", first.Title)
	assert.Equal(t, buyer, first.InitiatorId)
	assert.Equal(t, seller, first.PeerUserId)
	assert.True(t, first.IsActive)

	again := e.open(t, buyer, seller, "item-1")
	assert.Equal(t, first.ConversationId, again.ConversationId)

	reversed := e.open(t, seller, buyer, "item-1")
	assert.Equal(t, first.ConversationId, reversed.ConversationId)
	assert.Equal(t, buyer, reversed.PeerUserId)
	assert.Equal(t, buyer, reversed.InitiatorId)

	otherItem := e.open(t, buyer, seller, "item-2")
	assert.NotEqual(t, first.ConversationId, otherItem.ConversationId)

	assert.EqualValues(t, 2, countRows(t, e, &entity.Conversation{}))
	assert.EqualValues(t, 4, countRows(t, e, &entity.ConversationParticipant{}))
}

func TestCreateConversationConcurrentCallersShareOne(t *testing.T) {
	e := newTestEnv(t)

	const callers = 12
	ids := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			initiator, counterpart := buyer, seller
			if i%2 == 1 {
				initiator, counterpart = seller, buyer
			}
			info, err := e.convs.CreateConversation(context.Background(), initiator, &CreateConversationRequest{
				CounterpartId: counterpart,
				SubjectItemId: "item-1",
			})
			errs[i] = err
			if err == nil {
				ids[i] = info.ConversationId
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.EqualValues(t, 1, countRows(t, e, &entity.Conversation{}))
	assert.EqualValues(t, 2, countRows(t, e, &entity.ConversationParticipant{}))
}

func TestCreateConversationRejectsInvalidInput(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.convs.CreateConversation(ctx, buyer, &CreateConversationRequest{CounterpartId: buyer, SubjectItemId: "item-1"})
	assert.ErrorIs(t, err, errcode.ErrSelfConversation)

	_, err = e.convs.CreateConversation(ctx, buyer, &CreateConversationRequest{SubjectItemId: "item-1"})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	_, err = e.convs.CreateConversation(ctx, buyer, &CreateConversationRequest{CounterpartId: seller})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	assert.EqualValues(t, 0, countRows(t, e, &entity.Conversation{}))
}

func TestCreateConversationCatalogFailures(t *testing.T) {
	ctx := context.Background()
	req := &CreateConversationRequest{CounterpartId: seller, SubjectItemId: "item-9"}

	t.Run("unknown item", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.convs.CreateConversation(ctx, buyer, req)
		assert.ErrorIs(t, err, errcode.ErrCatalogItemNotFound)
		assert.Equal(t, errcode.KindNotFound, errcode.KindOf(err))
		assert.EqualValues(t, 0, countRows(t, e, &entity.Conversation{}))
	})

	t.Run("catalog unreachable", func(t *testing.T) {
		e := newTestEnvWithResolver(t, resolverFunc(func(ctx context.Context, itemId string) (string, error) {
			return "", errors.New("connection refused")
		}))
		_, err := e.convs.CreateConversation(ctx, buyer, req)
		assert.Equal(t, errcode.KindTransient, errcode.KindOf(err))
		assert.EqualValues(t, 0, countRows(t, e, &entity.Conversation{}))
	})

	t.Run("catalog reports transient", func(t *testing.T) {
		e := newTestEnvWithResolver(t, resolverFunc(func(ctx context.Context, itemId string) (string, error) {
			return "", errcode.ErrTransient.Wrap(errors.New("timeout"))
		}))
		_, err := e.convs.CreateConversation(ctx, buyer, req)
		assert.ErrorIs(t, err, errcode.ErrTransient)
	})
}

func TestCreateConversationDoesNotFanOut(t *testing.T) {
	e := newTestEnv(t)
	info := e.open(t, buyer, seller, "item-1")
	sub := e.subscribe(t, info.ConversationId)

	e.open(t, seller, buyer, "item-1")
	e.dispatcher.Close()

	select {
	case payload := <-sub.C():
		t.Fatalf("unexpected push: %s", payload)
	default:
	}
}

func TestDeactivateConversation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	info := e.open(t, buyer, seller, "item-1")
	e.send(t, buyer, info.ConversationId, "hi")
	sub := e.subscribe(t, info.ConversationId)

	require.NoError(t, e.convs.DeactivateConversation(ctx, seller, info.ConversationId))

	notice := receive(t, sub)
	assert.EqualValues(t, constant.MsgKindSystem, notice.Kind)
	assert.Equal(t, seller, notice.SenderId)
	assert.EqualValues(t, 2, notice.Seq)

	got, err := e.convs.GetConversation(ctx, buyer, info.ConversationId)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.LastMessage)
	assert.EqualValues(t, constant.MsgKindSystem, got.LastMessage.Kind)

	_, err = e.messages.SendMessage(ctx, buyer, &SendMessageRequest{ConversationId: info.ConversationId, Content: "still there?"})
	assert.ErrorIs(t, err, errcode.ErrConversationInactive)

	_, err = e.convs.CreateConversation(ctx, buyer, &CreateConversationRequest{CounterpartId: seller, SubjectItemId: "item-1"})
	assert.ErrorIs(t, err, errcode.ErrConversationInactive)

	// Closing twice is a no-op and writes no second notice.
	require.NoError(t, e.convs.DeactivateConversation(ctx, buyer, info.ConversationId))
	assert.EqualValues(t, 2, countRows(t, e, &entity.Message{}))

	err = e.convs.DeactivateConversation(ctx, other, info.ConversationId)
	assert.ErrorIs(t, err, errcode.ErrNotParticipant)
	err = e.convs.DeactivateConversation(ctx, buyer, "missing")
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)
}

func TestGetConversationChecksParticipant(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	info := e.open(t, buyer, seller, "item-1")

	_, err := e.convs.GetConversation(ctx, other, info.ConversationId)
	assert.ErrorIs(t, err, errcode.ErrNotParticipant)
	_, err = e.convs.GetConversation(ctx, buyer, "missing")
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)
	_, err = e.convs.GetConversation(ctx, buyer, "")
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
}

func TestGetUserConversations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	mug := e.open(t, buyer, seller, "item-1")
	kettle := e.open(t, buyer, seller, "item-2")
	unrelated := e.open(t, other, seller, "item-1")

	e.send(t, seller, kettle.ConversationId, "kettle ships monday")
	e.send(t, seller, mug.ConversationId, "mug in stock")
	e.send(t, seller, mug.ConversationId, "two colours")
	e.send(t, seller, unrelated.ConversationId, "hello")

	list, err := e.convs.GetUserConversations(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, mug.ConversationId, list[0].ConversationId)
	assert.Equal(t, "two colours", list[0].LastMessage.Content)
	assert.EqualValues(t, 2, list[0].UnreadCount)
	assert.False(t, list[0].LastMessage.IsRead)
	assert.Nil(t, list[0].LastReadAt)

	assert.Equal(t, kettle.ConversationId, list[1].ConversationId)
	assert.EqualValues(t, 1, list[1].UnreadCount)

	require.NoError(t, e.readState.MarkRead(ctx, buyer, mug.ConversationId))
	list, err = e.convs.GetUserConversations(ctx, buyer)
	require.NoError(t, err)
	assert.EqualValues(t, 0, list[0].UnreadCount)
	assert.True(t, list[0].LastMessage.IsRead)
	assert.NotNil(t, list[0].LastReadAt)

	empty, err := e.convs.GetUserConversations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/sellerchat/internal/bus"
	"github.com/mbeoliero/sellerchat/internal/catalog"
	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/internal/entity"
	"github.com/mbeoliero/sellerchat/internal/testkit"
)

const (
	buyer  = "buyer-1"
	seller = "seller-1"
	other  = "buyer-2"
)

var testItems = map[string]string{
	"item-1": "Blue Mug",
	"item-2": "Red Kettle",
}

// tickClock returns strictly increasing millisecond timestamps
type tickClock struct {
	t atomic.Int64
}

func (c *tickClock) Now() int64 {
	return c.t.Add(1)
}

type testEnv struct {
	stores     *testkit.Stores
	bus        *bus.MemoryBus
	dispatcher *bus.Dispatcher
	clock      *tickClock
	readState  *ReadStateService
	messages   *MessageService
	convs      *ConversationService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithResolver(t, catalog.NewStaticResolver(testItems))
}

func newTestEnvWithResolver(t *testing.T, resolver catalog.Resolver) *testEnv {
	t.Helper()

	stores := testkit.NewStores(t)
	clock := &tickClock{}
	clock.t.Store(1_000)

	memBus := bus.NewMemoryBus(256)
	dispatcher := bus.NewDispatcher(memBus, 4, 256)
	dispatcher.Start()
	t.Cleanup(func() {
		dispatcher.Close()
		_ = memBus.Close()
	})

	cfg := config.MessagingConfig{
		DefaultPageSize:  50,
		MaxPageSize:      200,
		MaxContentLength: 20,
		MaxAttachments:   2,
	}

	readState := NewReadStateService(stores.Repos)
	readState.SetClock(clock.Now)
	messages := NewMessageService(stores.Repos, readState, cfg)
	messages.SetClock(clock.Now)
	messages.SetPublisher(dispatcher)
	convs := NewConversationService(stores.Repos, resolver, messages, readState)
	convs.SetClock(clock.Now)

	return &testEnv{
		stores:     stores,
		bus:        memBus,
		dispatcher: dispatcher,
		clock:      clock,
		readState:  readState,
		messages:   messages,
		convs:      convs,
	}
}

func (e *testEnv) open(t *testing.T, initiator, counterpart, item string) *entity.ConversationInfo {
	t.Helper()
	info, err := e.convs.CreateConversation(context.Background(), initiator, &CreateConversationRequest{
		CounterpartId: counterpart,
		SubjectItemId: item,
	})
	require.NoError(t, err)
	return info
}

func (e *testEnv) send(t *testing.T, sender, convId, content string) *entity.MessageInfo {
	t.Helper()
	msg, err := e.messages.SendMessage(context.Background(), sender, &SendMessageRequest{
		ConversationId: convId,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) subscribe(t *testing.T, convId string) bus.Subscription {
	t.Helper()
	sub, err := e.bus.Subscribe(context.Background(), bus.ConversationChannel(convId))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// receive waits for the next pushed message on sub
func receive(t *testing.T, sub bus.Subscription) *entity.MessageInfo {
	t.Helper()
	select {
	case payload := <-sub.C():
		var msg entity.MessageInfo
		require.NoError(t, json.Unmarshal(payload, &msg))
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
		return nil
	}
}

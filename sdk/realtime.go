package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Realtime is a live connection to the gateway. Messages pushed for every
// subscribed conversation arrive on Messages in server order.
type Realtime struct {
	conn   *websocket.Conn
	userId string

	messages chan *MessageInfo
	closing  chan struct{}
	done     chan struct{}

	writeMu sync.Mutex

	mu   sync.Mutex
	acks map[string]chan *wsResponse
	err  error

	closeOnce sync.Once
}

// Dial opens a realtime connection authenticated with the client's token
func (c *Client) Dial(ctx context.Context) (*Realtime, error) {
	endpoint, err := c.wsURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial websocket: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	r := &Realtime{
		conn:     conn,
		userId:   c.userId,
		messages: make(chan *MessageInfo, 64),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		acks:     make(map[string]chan *wsResponse),
	}
	go r.readLoop()
	return r, nil
}

// Subscribe dials and subscribes to a single conversation
func (c *Client) Subscribe(ctx context.Context, conversationId string) (*Realtime, error) {
	r, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Subscribe(ctx, conversationId); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Subscribe starts the live feed of a conversation on this connection
func (r *Realtime) Subscribe(ctx context.Context, conversationId string) error {
	return r.call(ctx, wsSubscribe, &conversationReq{ConversationId: conversationId})
}

// Unsubscribe stops the live feed of a conversation
func (r *Realtime) Unsubscribe(ctx context.Context, conversationId string) error {
	return r.call(ctx, wsUnsubscribe, &conversationReq{ConversationId: conversationId})
}

// Messages returns the pushed messages. The channel is closed when the
// connection ends.
func (r *Realtime) Messages() <-chan *MessageInfo {
	return r.messages
}

// Done is closed once the connection has ended
func (r *Realtime) Done() <-chan struct{} {
	return r.done
}

// Err reports why the connection ended
func (r *Realtime) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close ends the connection
func (r *Realtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closing)
		r.writeMu.Lock()
		_ = r.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		r.writeMu.Unlock()
		err = r.conn.Close()
	})
	return err
}

// call sends a request and waits for its acknowledgement
func (r *Realtime) call(ctx context.Context, reqIdentifier int32, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	msgIncr := uuid.NewString()
	ack := make(chan *wsResponse, 1)
	r.mu.Lock()
	r.acks[msgIncr] = ack
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.acks, msgIncr)
		r.mu.Unlock()
	}()

	req := wsRequest{
		ReqIdentifier: reqIdentifier,
		MsgIncr:       msgIncr,
		OperationId:   uuid.NewString(),
		SendId:        r.userId,
		Data:          data,
	}
	r.writeMu.Lock()
	err = r.conn.WriteJSON(req)
	r.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	select {
	case resp := <-ack:
		if resp.ErrCode != CodeSuccess {
			return &Error{Code: resp.ErrCode, Msg: resp.ErrMsg}
		}
		return nil
	case <-r.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, ctx.Err())
	}
}

func (r *Realtime) readLoop() {
	defer func() {
		close(r.messages)
		close(r.done)
	}()

	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			select {
			case <-r.closing:
				r.err = ErrStreamClosed
			default:
				r.err = err
			}
			r.mu.Unlock()
			return
		}

		var resp wsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}

		if resp.ReqIdentifier != wsPushMsg {
			r.mu.Lock()
			ack, ok := r.acks[resp.MsgIncr]
			r.mu.Unlock()
			if ok {
				select {
				case ack <- &resp:
				default:
				}
			}
			continue
		}

		var push pushMsgData
		if err := json.Unmarshal(resp.Data, &push); err != nil {
			continue
		}
		for _, msgs := range push.Msgs {
			for _, msg := range msgs {
				select {
				case r.messages <- msg:
				case <-r.closing:
					return
				}
			}
		}
	}
}

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/nats-io/nats.go"
)

// NatsBus fans out through core NATS subjects
type NatsBus struct {
	nc     *nats.Conn
	buffer int

	mu     sync.Mutex
	subs   map[*natsSubscription]struct{}
	closed bool
}

// NewNatsBus connects to the NATS server at url
func NewNatsBus(url string, buffer int) (*NatsBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("sellerchat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected: url=%s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &NatsBus{nc: nc, buffer: buffer, subs: make(map[*natsSubscription]struct{})}, nil
}

type natsSubscription struct {
	bus  *NatsBus
	sub  *nats.Subscription
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *natsSubscription) C() <-chan []byte {
	return s.ch
}

func (s *natsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.bus.forget(s)
		err = s.sub.Unsubscribe()
		close(s.done)
	})
	return err
}

func (b *NatsBus) forget(s *natsSubscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

func (b *NatsBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Publish publishes payload on the subject named channel
func (b *NatsBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := b.nc.Publish(channel, payload); err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to the subject named channel. The subscription is
// flushed to the server before returning.
func (b *NatsBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	msgs := make(chan *nats.Msg, b.buffer)
	sub, err := b.nc.ChanSubscribe(channel, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject '%s': %w", channel, err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	s := &natsSubscription{
		bus:  b,
		sub:  sub,
		ch:   make(chan []byte, b.buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(s.ch)
		for {
			select {
			case <-s.done:
				return
			case m := <-msgs:
				select {
				case s.ch <- m.Data:
				default:
					log.Warn("subscriber buffer full, payload dropped: subject=%s", channel)
				}
			}
		}
	}()
	return s, nil
}

// Close ends every open subscription, closing its feed, then drains and
// closes the NATS connection
func (b *NatsBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	open := make([]*natsSubscription, 0, len(b.subs))
	for s := range b.subs {
		open = append(open, s)
	}
	b.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
	if b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}

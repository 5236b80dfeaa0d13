package bus

import (
	"context"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
)

// RedisBus fans out through Redis pub/sub so every server instance sees
// every publication
type RedisBus struct {
	rdb    *redis.Client
	buffer int
}

// NewRedisBus creates a RedisBus on an existing client
func NewRedisBus(rdb *redis.Client, buffer int) *RedisBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisBus{rdb: rdb, buffer: buffer}
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan []byte
	once sync.Once
}

func (s *redisSubscription) C() <-chan []byte {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
	})
	return err
}

// Publish publishes payload on channel
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe subscribes to channel and waits for the server to confirm, so
// publications issued after it returns are not missed
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps: ps,
		ch: make(chan []byte, b.buffer),
	}
	go func() {
		defer close(sub.ch)
		for msg := range ps.Channel() {
			select {
			case sub.ch <- []byte(msg.Payload):
			default:
				log.Warn("subscriber buffer full, payload dropped: channel=%s", channel)
			}
		}
	}()
	return sub, nil
}

// Close is a no-op; the redis client is owned by the repositories
func (b *RedisBus) Close() error {
	return nil
}

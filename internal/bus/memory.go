package bus

import (
	"context"
	"sync"

	"github.com/mbeoliero/kit/log"
)

// MemoryBus fans out within a single process
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
	closed bool
}

// NewMemoryBus creates a MemoryBus whose subscriptions buffer up to buffer
// payloads before dropping
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: buffer,
	}
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	ch      chan []byte
	once    sync.Once
}

func (s *memorySubscription) C() <-chan []byte {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		s.bus.removeLocked(s)
	})
	return nil
}

// Publish delivers payload to every current subscriber of channel
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
			log.CtxWarn(ctx, "subscriber buffer full, payload dropped: channel=%s", channel)
		}
	}
	return nil
}

// Subscribe registers a new subscriber of channel
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		bus:     b,
		channel: channel,
		ch:      make(chan []byte, b.buffer),
	}
	room := b.subs[channel]
	if room == nil {
		room = make(map[*memorySubscription]struct{})
		b.subs[channel] = room
	}
	room[sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, room := range b.subs {
		for sub := range room {
			b.removeLocked(sub)
		}
	}
	return nil
}

// removeLocked drops sub and closes its feed. Callers hold b.mu.
func (b *MemoryBus) removeLocked(sub *memorySubscription) {
	room := b.subs[sub.channel]
	if _, ok := room[sub]; !ok {
		return
	}
	delete(room, sub)
	if len(room) == 0 {
		delete(b.subs, sub.channel)
	}
	close(sub.ch)
}

// subscriberCount is used by tests
func (b *MemoryBus) subscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

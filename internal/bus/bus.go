// Package bus carries committed messages to every live subscriber of a
// conversation channel. Delivery is at-most-once and live-only: a subscriber
// sees what is published after it subscribed, in publication order.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/pkg/constant"
)

// ErrClosed is returned by operations on a closed bus or subscription
var ErrClosed = errors.New("bus closed")

// Bus publishes payloads to named channels
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription is a live feed of one channel. C is closed after Close.
type Subscription interface {
	C() <-chan []byte
	Close() error
}

// New builds the bus selected by cfg.Driver
func New(cfg config.BusConfig, rdb *redis.Client) (Bus, error) {
	constant.InitChannelPrefix(cfg.ChannelPrefix)

	switch cfg.Driver {
	case "", constant.BusDriverMemory:
		return NewMemoryBus(cfg.SubscriberBuffer), nil
	case constant.BusDriverRedis:
		if rdb == nil {
			return nil, errors.New("redis bus requires a redis client")
		}
		return NewRedisBus(rdb, cfg.SubscriberBuffer), nil
	case constant.BusDriverNats:
		return NewNatsBus(cfg.NatsURL, cfg.SubscriberBuffer)
	default:
		return nil, fmt.Errorf("unknown bus driver: %s", cfg.Driver)
	}
}

// ConversationChannel names the channel carrying a conversation's messages
func ConversationChannel(conversationId string) string {
	return constant.ChannelConversation(conversationId)
}

package bus

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
)

const publishTimeout = 5 * time.Second

type publishTask struct {
	channel string
	payload []byte
}

// Dispatcher publishes off the request path. Tasks are sharded by channel,
// so one channel is always served by the same worker and its publications
// leave in enqueue order.
type Dispatcher struct {
	bus    Bus
	queues []chan publishTask
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with workers queues of queueSize
func NewDispatcher(b Bus, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	d := &Dispatcher{
		bus:    b,
		queues: make([]chan publishTask, workers),
	}
	for i := range d.queues {
		d.queues[i] = make(chan publishTask, queueSize)
	}
	return d
}

// Start starts the publish workers
func (d *Dispatcher) Start() {
	for i := range d.queues {
		d.wg.Add(1)
		go d.publishLoop(d.queues[i])
	}
	log.Info("started %d publish workers", len(d.queues))
}

// Enqueue queues payload for channel. It never blocks; when the shard is
// full the payload is dropped and false returned.
func (d *Dispatcher) Enqueue(channel string, payload []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Warn("dispatcher closed, payload dropped: channel=%s", channel)
		return false
	}

	select {
	case d.queues[d.shard(channel)] <- publishTask{channel: channel, payload: payload}:
		return true
	default:
		log.Warn("publish queue full, payload dropped: channel=%s", channel)
		return false
	}
}

// Close stops accepting work and waits for queued tasks to be published
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) shard(channel string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channel))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) publishLoop(queue <-chan publishTask) {
	defer d.wg.Done()
	for task := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.bus.Publish(ctx, task.channel, task.payload); err != nil {
			log.CtxWarn(ctx, "publish failed: channel=%s, error=%v", task.channel, err)
		}
		cancel()
	}
}

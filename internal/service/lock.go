package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// stripedLock serializes work per key with a fixed set of mutexes. Two keys
// may share a stripe; that only costs throughput.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func newStripedLock() *stripedLock {
	return &stripedLock{}
}

// Lock locks the stripe of key and returns its unlock func
func (l *stripedLock) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

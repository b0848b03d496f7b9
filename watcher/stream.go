package watcher

import (
	"sync"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
)

// Stream fans block updates out to every subscriber. A subscriber whose buffer is full
// misses the update; the next block of the chain triggers it again.
type Stream struct {
	mutex       sync.RWMutex
	subscribers map[uint64]chan types.BlockUpdate
	nextID      uint64
}

// NewStream creates a stream without subscribers
func NewStream() *Stream {
	return &Stream{subscribers: make(map[uint64]chan types.BlockUpdate)}
}

// Subscribe registers a subscriber. The returned function unregisters it and closes the channel.
func (s *Stream) Subscribe(buffer int) (<-chan types.BlockUpdate, func()) {
	ch := make(chan types.BlockUpdate, buffer)

	s.mutex.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	s.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mutex.Lock()
			delete(s.subscribers, id)
			s.mutex.Unlock()
			close(ch)
		})
	}
}

// Publish delivers update to every subscriber
func (s *Stream) Publish(update types.BlockUpdate) {
	metrics.BlockUpdate(update.ChainID)

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			log.Warnf("block stream subscriber %d is full, %s dropped", id, update)
		}
	}
}

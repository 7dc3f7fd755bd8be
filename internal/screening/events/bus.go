package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Bus is an in-process publisher that fans events out to subscriber channels.
// Delivery never blocks the publisher: a full subscriber buffer drops the event.
type Bus struct {
	mu          sync.RWMutex
	logger      *zap.SugaredLogger
	subscribers map[uint64]*subscription
	nextID      uint64
	dropped     atomic.Int64
}

type subscription struct {
	ch    chan Event
	types map[Type]struct{}
}

func (s *subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// NewBus creates an empty bus
func NewBus(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[uint64]*subscription),
	}
}

// Subscribe registers a subscriber for the given types (all types when none
// are given). The returned function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int, types ...Type) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{
		ch:    make(chan Event, buffer),
		types: make(map[Type]struct{}, len(types)),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers the event to every interested subscriber
func (b *Bus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warnw("Event subscriber buffer full, dropping event",
				"event_id", event.ID,
				"type", event.Type)
		}
	}
	return nil
}

// Dropped returns how many deliveries were discarded because of full buffers
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Consume calls handle for every event received on ch until ch is closed
func Consume(ch <-chan Event, handle func(Event)) {
	for event := range ch {
		handle(event)
	}
}

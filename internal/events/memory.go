package events

import (
	"context"
	"sync"

	"github.com/maumercado/task-queue-go/internal/logger"
)

// subscription is one Subscribe call's delivery channel, filtered to the
// event types it asked for.
type subscription struct {
	ch     chan *Event
	types  map[EventType]bool
	closed bool
}

func (s *subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	return s.types[t]
}

// MemoryBus implements Publisher in-process, for the redis.enabled=false
// path: the supervisor and any local status API share one process, so
// events only need to fan out to goroutine-local subscribers, not across a
// network. Grounded on RedisPubSub's Subscribe/Publish shape, generalized
// to deliver in-memory instead of round-tripping through Redis.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]*subscription)}
}

// Publish fans event out to every subscriber whose filter matches. A full
// subscriber channel drops the event rather than blocking the publisher,
// matching RedisPubSub's drop-on-full behavior.
func (b *MemoryBus) Publish(_ context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.closed || !s.wants(event.Type) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			logger.Warn().Str("event_type", string(event.Type)).Msg("event channel full, dropping event")
		}
	}
	return nil
}

// Subscribe returns a channel of events matching eventTypes (all types when
// none are given), closed when ctx is done or Close is called.
func (b *MemoryBus) Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error) {
	types := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	sub := &subscription{ch: make(chan *Event, 100), types: types}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeSub(id)
	}()

	return sub.ch, nil
}

func (b *MemoryBus) removeSub(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok && !sub.closed {
		sub.closed = true
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Close releases every subscriber's channel.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		delete(b.subs, id)
	}
	return nil
}

var _ Publisher = (*MemoryBus)(nil)

package events

import (
	"sync"
	"sync/atomic"

	"github.com/ubc-biztech/btx/internal/domain"
)

const defaultBuffer = 64

// Subscription receives market events until it is cancelled.
type Subscription struct {
	C     <-chan domain.MarketEvent
	ch    chan domain.MarketEvent
	kinds map[domain.MarketEventKind]struct{}
}

func (s *Subscription) wants(kind domain.MarketEventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// MarketBroadcaster fans out market events to subscribers via buffered channels.
// Publish never blocks: events for a subscriber whose buffer is full are dropped.
type MarketBroadcaster struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewMarketBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewMarketBroadcaster(buffer int) *MarketBroadcaster {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &MarketBroadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to every interested subscriber.
func (b *MarketBroadcaster) Publish(e domain.MarketEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.wants(e.Kind) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. With no kinds every event is delivered.
// After Close the returned subscription is already closed.
func (b *MarketBroadcaster) Subscribe(kinds ...domain.MarketEventKind) *Subscription {
	ch := make(chan domain.MarketEvent, b.buffer)
	sub := &Subscription{C: ch, ch: ch}
	if len(kinds) > 0 {
		sub.kinds = make(map[domain.MarketEventKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *MarketBroadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (b *MarketBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was slow.
func (b *MarketBroadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes are no-ops.
func (b *MarketBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

package events

import (
	"sync"
	"time"
)

// Event types published on the order bus
const (
	OrderPlaced    = "order.placed"
	OrderExecuted  = "order.executed"
	OrderCancelled = "order.cancelled"
	OrderExpired   = "order.expired"
	TradeSettled   = "trade.settled"
)

const subscriberBuffer = 100

// Event is a state change of one user's orders or trades
type Event struct {
	Type      string    `json:"type"`
	UserID    uint      `json:"user_id"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"ts"`
}

// Bus fans events out to subscribers. Slow subscribers drop events
// instead of blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]uint
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]uint)}
}

// Subscribe returns a channel of events for userID. Zero receives every event.
func (b *Bus) Subscribe(userID uint) chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = userID
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers evt without blocking. A nil Bus discards it.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	for ch, userID := range b.subs {
		if userID != 0 && userID != evt.UserID {
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

// Subscribers is the number of open subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

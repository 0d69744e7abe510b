// Package alert carries trigger events from monitors to any interested
// component in the process.
//
// A Bus replaces a shared boolean flag: subscribers receive one Event per
// exceed episode, and Raised exposes the latched flag for components that
// only need to poll. Monitors never clear the latch; Clear is for the
// component that acknowledges the alert.
package alert

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event describes one trigger firing.
type Event struct {
	ID        string    `json:"id"`
	Monitor   string    `json:"monitor"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Duration  float64   `json:"duration_seconds"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent returns an Event with a fresh ID and timestamp.
func NewEvent(monitor, metric string, value, threshold, duration float64) Event {
	return Event{
		ID:        uuid.NewString(),
		Monitor:   monitor,
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		Duration:  duration,
		At:        time.Now(),
	}
}

// Bus fans events out to subscribers without blocking the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	raised  atomic.Bool
	last    atomic.Pointer[Event]
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function unregisters it and closes the channel.
func (b *Bus) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Event, buf)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish latches the raised flag and delivers ev to every subscriber.
// Subscribers whose buffer is full miss the event.
func (b *Bus) Publish(ev Event) {
	b.raised.Store(true)
	b.last.Store(&ev)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Raised reports whether any event has been published since the last Clear.
func (b *Bus) Raised() bool {
	return b.raised.Load()
}

// Clear resets the raised flag.
func (b *Bus) Clear() {
	b.raised.Store(false)
}

// Last returns the most recent event, if any.
func (b *Bus) Last() (Event, bool) {
	ev := b.last.Load()
	if ev == nil {
		return Event{}, false
	}
	return *ev, true
}

// Dropped returns how many deliveries were skipped due to full buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

package events

import "sync"

// feedBufferSize is the per-subscriber channel buffer.
const feedBufferSize = 100

// Feed turns bus events into buffered channels for streaming observers.
//
// Feed registers one listener per kind on the bus. Events are sent to each
// subscriber without blocking; if a subscriber's buffer is full the event
// is dropped for that subscriber so a slow client cannot stall a worker.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewFeed creates a [Feed] attached to every event kind on bus.
func NewFeed(bus *Bus) *Feed {
	f := &Feed{subscribers: make(map[chan Event]struct{})}
	for _, kind := range []Kind{KindSample, KindBlocklist, KindProgress} {
		bus.Subscribe(kind, f.broadcast)
	}
	return f
}

// Subscribe returns a channel that receives all events.
//
// Caller must call [Feed.Unsubscribe] when done to prevent leaks.
func (f *Feed) Subscribe() <-chan Event {
	ch := make(chan Event, feedBufferSize)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once or with an unknown channel.
func (f *Feed) Unsubscribe(ch <-chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for subCh := range f.subscribers {
		if subCh == ch {
			delete(f.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *Feed) broadcast(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
		}
	}
}

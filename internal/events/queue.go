package events

import "sync"

// Publisher is anything events can be handed to, usually a [*Bus].
type Publisher interface {
	Publish(Event)
}

// Queue orders the events of one producer and delivers them with none of
// the producer's locks held.
//
// A producer calls [Queue.Push] while holding its state lock, so queue
// order matches mutation order, then releases the lock and calls
// [Queue.Flush]. Only one goroutine delivers at a time. A Flush that finds
// delivery already running returns immediately and its events are
// delivered by the running goroutine, so a listener may trigger further
// events from the same producer without deadlocking; those events arrive
// after the listener returns.
type Queue struct {
	pub Publisher

	mu       sync.Mutex
	pending  []Event
	draining bool
}

// NewQueue creates a [Queue] delivering to pub. A nil pub drops events.
func NewQueue(pub Publisher) *Queue {
	return &Queue{pub: pub}
}

// Push appends ev for delivery by the next Flush.
func (q *Queue) Push(ev Event) {
	if q.pub == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()
}

// Flush delivers pending events in order unless another goroutine is
// already delivering.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true

	for len(q.pending) > 0 {
		ev := q.pending[0]
		q.pending[0] = Event{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.deliver(ev)

		q.mu.Lock()
	}
	q.draining = false
	q.mu.Unlock()
}

// deliver publishes one event. If the publisher panics the queue is released
// before the panic continues, so later flushes still deliver.
func (q *Queue) deliver(ev Event) {
	ok := false
	defer func() {
		if !ok {
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
		}
	}()
	q.pub.Publish(ev)
	ok = true
}

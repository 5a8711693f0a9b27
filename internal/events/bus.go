package events

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// slowListenerThreshold is how long a single listener may run before the
// bus logs a warning about it.
const slowListenerThreshold = 250 * time.Millisecond

// Listener receives events of the kind it was subscribed to.
//
// Listeners run synchronously on a worker goroutine and must not block.
// Long-running work should be handed off to another goroutine. Engine
// components publish through a [Queue] with no lock held, so a listener
// may call back into them.
type Listener func(Event)

// Bus fans out events to listeners registered per [Kind].
//
// Delivery is synchronous, in registration order. The listener list is
// snapshotted under a read lock and listeners are invoked with no lock
// held, so a listener may itself subscribe or publish. A panicking listener
// is recovered and logged; delivery continues with the next listener.
//
// Bus is safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Kind][]Listener
	logger    *slog.Logger
}

// NewBus creates an empty [Bus].
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[Kind][]Listener),
		logger:    logger,
	}
}

// Subscribe appends a listener for the given kind.
func (b *Bus) Subscribe(kind Kind, l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners[kind] = append(b.listeners[kind], l)
	b.mu.Unlock()
}

// Publish delivers ev to every listener of ev.Kind.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	ls := b.listeners[ev.Kind]
	b.mu.RUnlock()

	// append-only: the snapshot header is immutable even if Subscribe grows the slice
	for _, l := range ls {
		b.deliver(l, ev)
	}
}

// ListenerCount returns the number of listeners registered for kind.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

// deliver invokes one listener with panic recovery.
func (b *Bus) deliver(l Listener, ev Event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				"correlation_id", uuid.NewString(),
				"kind", string(ev.Kind),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			return
		}
		if elapsed := time.Since(start); elapsed > slowListenerThreshold {
			b.logger.Warn("slow event listener",
				"kind", string(ev.Kind),
				"elapsed_ms", elapsed.Milliseconds(),
			)
		}
	}()
	l(ev)
}

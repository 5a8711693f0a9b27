// Package blocklist tracks endpoints withdrawn from probe rotation.
//
// This package is internal to SpeedBoard. An endpoint is blocked when a
// probe to it times out and stays blocked until a caller reinstates it;
// there is no passive recovery.
package blocklist

import (
	"log/slog"
	"sync"

	"github.com/jpalmerr/speedboard/internal/endpoint"
	"github.com/jpalmerr/speedboard/internal/events"
)

// Manager holds the set of blocked endpoint ids.
//
// Every call that changes the set publishes a blocklist event carrying the
// full list of blocked endpoint records, in endpoint-source order. Calls
// that leave the set unchanged publish nothing.
//
// Manager is safe for concurrent use. Events are queued in mutation order
// and delivered with no manager lock held, so the last event always
// reflects the current set and a blocklist listener may call Block or
// Unblock itself.
type Manager struct {
	mu        sync.Mutex
	blocked   map[string]struct{}
	source    endpoint.Source
	events    *events.Queue
	onUnblock []func(id string)
	logger    *slog.Logger
}

// NewManager creates a [Manager] resolving ids against source.
func NewManager(source endpoint.Source, publisher events.Publisher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		blocked:   make(map[string]struct{}),
		source:    source,
		events:    events.NewQueue(publisher),
		logger:    logger,
	}
}

// OnUnblock registers a hook run for every id removed by [Manager.Unblock].
//
// Hooks run while the manager's lock is held, before the change becomes
// visible through [Manager.IsBlocked], so state reset by a hook (such as
// warm-up membership) is guaranteed to be in place before the endpoint
// re-enters rotation. Hooks must not call back into the Manager.
func (m *Manager) OnUnblock(hook func(id string)) {
	m.mu.Lock()
	m.onUnblock = append(m.onUnblock, hook)
	m.mu.Unlock()
}

// Block adds id to the blocked set. Returns true if the set changed.
func (m *Manager) Block(id string) bool {
	m.mu.Lock()
	if _, exists := m.blocked[id]; exists {
		m.mu.Unlock()
		return false
	}
	m.blocked[id] = struct{}{}
	list := m.materialize()
	m.events.Push(events.NewBlocklistEvent(list))
	m.mu.Unlock()

	m.logger.Warn("endpoint blocked", "endpoint", id, "blocked_count", len(list))
	m.events.Flush()
	return true
}

// Unblock removes id from the blocked set and runs the unblock hooks.
// Returns true if the set changed.
func (m *Manager) Unblock(id string) bool {
	m.mu.Lock()
	if _, exists := m.blocked[id]; !exists {
		m.mu.Unlock()
		return false
	}
	for _, hook := range m.onUnblock {
		hook(id)
	}
	delete(m.blocked, id)
	list := m.materialize()
	m.events.Push(events.NewBlocklistEvent(list))
	m.mu.Unlock()

	m.logger.Info("endpoint reinstated", "endpoint", id, "blocked_count", len(list))
	m.events.Flush()
	return true
}

// IsBlocked reports whether id is currently blocked.
func (m *Manager) IsBlocked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[id]
	return ok
}

// BlockedIDs returns a snapshot of the blocked id set.
func (m *Manager) BlockedIDs() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(map[string]struct{}, len(m.blocked))
	for id := range m.blocked {
		cp[id] = struct{}{}
	}
	return cp
}

// Blocked returns the blocked endpoint records in source order.
func (m *Manager) Blocked() []endpoint.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.materialize()
}

// Count returns the number of blocked endpoints.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocked)
}

// materialize resolves the blocked ids to records. Must hold mu.
// Ids missing from the source are skipped.
func (m *Manager) materialize() []endpoint.Endpoint {
	list := make([]endpoint.Endpoint, 0, len(m.blocked))
	if len(m.blocked) == 0 {
		return list
	}
	for _, ep := range m.source.List() {
		if _, ok := m.blocked[ep.ID]; ok {
			list = append(list, ep)
		}
	}
	return list
}

package trial

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventStateChanged     EventType = "state_changed"
	EventTimeUpdated      EventType = "time_updated"
	EventTrialExpired     EventType = "trial_expired"
	EventCountdownPaused  EventType = "countdown_paused"
	EventCountdownResumed EventType = "countdown_resumed"
)

// Event is a lifecycle notification. Previous and Next are populated for
// state changes; Remaining and TotalPaused for the countdown events.
// Previous and Next must never be omitted: Production is the tier zero
// value and a transition from it is still a transition.
type Event struct {
	Type        EventType     `json:"type"`
	Previous    AccessTier    `json:"previous"`
	Next        AccessTier    `json:"next"`
	Remaining   time.Duration `json:"remaining,omitempty"`
	TotalPaused time.Duration `json:"total_paused,omitempty"`
}

// Listener receives lifecycle events. Listeners are invoked synchronously
// in subscription order; a slow listener delays the others but never
// reorders emissions from the same manager.
type Listener func(Event)

type subscriber struct {
	id string
	fn Listener
}

// Subscribe registers a listener and returns a handle for Unsubscribe.
func (m *Manager) Subscribe(fn Listener) string {
	id := uuid.NewString()
	m.subMu.Lock()
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.subMu.Unlock()
	return id
}

// Unsubscribe removes a listener. Unknown handles are ignored.
func (m *Manager) Unsubscribe(id string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, sub := range m.subs {
		if sub.id == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return
		}
	}
}

// emit broadcasts events collected during a locked operation. It runs
// outside the state mutex so listeners may call back into the manager, and
// under its own mutex so event order matches operation order.
func (m *Manager) emit(events []Event) {
	if len(events) == 0 {
		return
	}

	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.subMu.RLock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subMu.RUnlock()

	for _, ev := range events {
		for _, sub := range subs {
			sub.fn(ev)
		}
	}
}

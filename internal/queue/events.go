package queue

import (
	"encoding/json"
	"sync"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

// EventType distinguishes lifecycle notifications.
type EventType string

const (
	EventCommandEnqueued EventType = "command_enqueued"
	EventSyncStarted     EventType = "sync_started"
	EventCommandSynced   EventType = "command_synced"
	EventCommandFailed   EventType = "command_failed"
	EventSyncCompleted   EventType = "sync_completed"
	EventSyncFailed      EventType = "sync_failed"
)

// Event is a fire-and-forget lifecycle notification. Only the fields
// relevant to the event type are populated.
type Event struct {
	Type EventType

	// Command is set for command_enqueued, command_synced, command_failed.
	Command *command.Command

	// Result carries the remote response for command_synced.
	Result json.RawMessage

	// ErrorKind and Error describe the failure for command_failed and
	// sync_failed.
	ErrorKind command.ErrorKind
	Error     string

	// Count is the pending-set size for sync_started.
	Count int

	// SuccessCount and FailureCount summarize sync_completed.
	SuccessCount int
	FailureCount int
}

// Bus fans events out to subscribers, at most once per occurrence.
//
// Delivery is best-effort: publishing never blocks, and an event is
// dropped for a subscriber whose buffer is full. Observers drive UI
// counters and opportunistic sync triggers; none of them may stall the
// replay loop.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer with the given channel buffer.
// The returned cancel function removes the subscription and closes the
// channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber lagging; drop rather than stall the publisher.
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
// Used for testing.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

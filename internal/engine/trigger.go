package engine

import "sync"

// Trigger names the reason a sync pass was requested.
type Trigger int

const (
	// TriggerConnectivity fires after a connectivity-restored signal
	// survives the anti-flap window.
	TriggerConnectivity Trigger = iota + 1
	// TriggerEnqueue fires opportunistically after a successful enqueue
	// while online.
	TriggerEnqueue
	// TriggerForce is an explicit force-sync request.
	TriggerForce
	// TriggerVisibility fires when the host regains visibility with
	// commands still pending.
	TriggerVisibility
	// TriggerRetry fires when a backoff window expires.
	TriggerRetry
)

func (t Trigger) String() string {
	switch t {
	case TriggerConnectivity:
		return "connectivity"
	case TriggerEnqueue:
		return "enqueue"
	case TriggerForce:
		return "force"
	case TriggerVisibility:
		return "visibility"
	case TriggerRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// triggerQueue is a thread-safe FIFO of sync trigger reasons.
//
// External callers (event subscribers, timers, the CLI) enqueue while
// the Run loop dequeues. The signal channel is buffered at one so
// multiple enqueues coalesce into a single wakeup, and a consecutive
// duplicate reason is dropped outright: one pending sync pass serves
// them all.
type triggerQueue struct {
	mu       sync.Mutex
	triggers []Trigger
	closed   bool
	signal   chan struct{}
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{
		triggers: make([]Trigger, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a trigger. Returns false if the queue is closed.
func (q *triggerQueue) Enqueue(t Trigger) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if n := len(q.triggers); n > 0 && q.triggers[n-1] == t {
		return true
	}
	q.triggers = append(q.triggers, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front trigger without blocking.
func (q *triggerQueue) TryDequeue() (Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.triggers) == 0 {
		return 0, false
	}
	t := q.triggers[0]
	if len(q.triggers) == 1 {
		q.triggers = q.triggers[:0]
	} else {
		q.triggers = q.triggers[1:]
	}
	return t, true
}

// Wait returns the wakeup channel for use in a select alongside
// context cancellation.
func (q *triggerQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *triggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.triggers)
}

// Close stops accepting triggers and wakes any waiter.
func (q *triggerQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

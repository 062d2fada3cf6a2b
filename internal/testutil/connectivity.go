package testutil

import "sync"

// ManualSource is a connectivity feed driven entirely by the test.
//
// It satisfies the engine's connectivity source contract: Online
// reports the current state and Changes delivers every transition in
// order. The channel is buffered so SetOnline never blocks the test.
type ManualSource struct {
	mu      sync.Mutex
	online  bool
	changes chan bool
}

// NewManualSource creates a source in the given initial state.
func NewManualSource(online bool) *ManualSource {
	return &ManualSource{
		online:  online,
		changes: make(chan bool, 64),
	}
}

// Online reports the current state.
func (s *ManualSource) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Changes returns the transition feed.
func (s *ManualSource) Changes() <-chan bool {
	return s.changes
}

// SetOnline flips the state and publishes the transition. Setting the
// same state twice is a no-op so tests can be sloppy about ordering.
func (s *ManualSource) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == online {
		return
	}
	s.online = online
	s.changes <- online
}

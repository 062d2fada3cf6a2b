package testutil

import (
	"context"
	"encoding/json"
	"sync"
)

// RemoteCall records one call the engine made against the scripted
// remote service.
type RemoteCall struct {
	Op         string // "insert", "update", or "delete"
	EntityType string
	EntityID   string
	Payload    json.RawMessage
}

// RemoteOutcome is one scripted response. A nil Err means success with
// Result as the remote's answer.
type RemoteOutcome struct {
	Result json.RawMessage
	Err    error
}

// ScriptedService implements remote.Service by consuming a FIFO script
// of outcomes. When the script runs dry every call succeeds with
// {"ok":true}, so tests only script the interesting failures.
type ScriptedService struct {
	mu     sync.Mutex
	script []RemoteOutcome
	calls  []RemoteCall
}

// NewScriptedService creates a service with an empty script.
func NewScriptedService() *ScriptedService {
	return &ScriptedService{}
}

// Push appends outcomes to the script.
func (s *ScriptedService) Push(outcomes ...RemoteOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, outcomes...)
}

// FailNext scripts n consecutive failures with err.
func (s *ScriptedService) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.script = append(s.script, RemoteOutcome{Err: err})
	}
}

// Calls returns a copy of every call made so far, in order.
func (s *ScriptedService) Calls() []RemoteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RemoteCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls have been made.
func (s *ScriptedService) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *ScriptedService) next(call RemoteCall) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call)

	if len(s.script) == 0 {
		return json.RawMessage(`{"ok":true}`), nil
	}
	out := s.script[0]
	s.script = s.script[1:]
	return out.Result, out.Err
}

// Insert consumes the next scripted outcome.
func (s *ScriptedService) Insert(ctx context.Context, entityType string, payload json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.next(RemoteCall{Op: "insert", EntityType: entityType, Payload: payload})
}

// Update consumes the next scripted outcome.
func (s *ScriptedService) Update(ctx context.Context, entityType, entityID string, payload json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.next(RemoteCall{Op: "update", EntityType: entityType, EntityID: entityID, Payload: payload})
}

// Delete consumes the next scripted outcome, discarding its result.
func (s *ScriptedService) Delete(ctx context.Context, entityType, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.next(RemoteCall{Op: "delete", EntityType: entityType, EntityID: entityID})
	return err
}

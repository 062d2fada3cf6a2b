// Package queue turns mutation intents into durable, deduplicated,
// priority-tagged commands, and publishes lifecycle events for the sync
// engine and UI observers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
	"github.com/dieee-93/g-admin-sync/internal/policy"
	"github.com/dieee-93/g-admin-sync/internal/store"
)

// Duplicate is the sentinel id returned when an equivalent non-terminal
// command is already queued. It is deliberately not an error: the
// caller's intent is durably recorded either way.
const Duplicate int64 = -1

// Queue wraps the durable store with command semantics: dedup key,
// priority derivation, status lifecycle, and enqueue notifications.
type Queue struct {
	store  *store.Store
	policy policy.Policy
	bus    *Bus
	now    func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithBus attaches a shared event bus. Without it the queue creates its
// own, reachable via Bus().
func WithBus(bus *Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// New creates a command queue over the given store and policy.
func New(st *store.Store, pol policy.Policy, opts ...Option) *Queue {
	q := &Queue{
		store:  st,
		policy: pol,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bus == nil {
		q.bus = NewBus()
	}
	return q
}

// Bus returns the queue's lifecycle event bus.
func (q *Queue) Bus() *Bus { return q.bus }

// Enqueue records one intended mutation and returns the assigned id, or
// Duplicate when an equivalent (entityType, entityId, operation) command
// is already queued and non-terminal.
//
// Structural problems (missing entity id on update/delete, malformed
// payload JSON) are the only errors surfaced to the caller; everything
// downstream is the sync engine's concern.
//
// A successful enqueue publishes command_enqueued so an online engine
// can opportunistically trigger replay.
func (q *Queue) Enqueue(ctx context.Context, entityType, entityID string, op command.Operation, payload json.RawMessage) (int64, error) {
	canonical, err := command.CanonicalizeRaw(payload)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s %s: %w", op, entityType, err)
	}

	cmd := command.Command{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    canonical,
		Timestamp:  q.now(),
		Priority:   q.policy.Priority(entityType),
		Status:     command.StatusPending,
	}
	if err := cmd.Validate(); err != nil {
		return 0, fmt.Errorf("enqueue %s %s: %w", op, entityType, err)
	}

	id, inserted, err := q.store.InsertCommand(ctx, cmd)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s %s/%s: %w", op, entityType, entityID, err)
	}
	if !inserted {
		slog.Debug("duplicate enqueue ignored",
			"entity_type", entityType,
			"entity_id", entityID,
			"operation", op,
		)
		return Duplicate, nil
	}

	cmd.ID = id
	slog.Info("command enqueued",
		"command_id", id,
		"entity_type", entityType,
		"entity_id", entityID,
		"operation", op,
		"priority", cmd.Priority,
	)
	q.bus.Publish(Event{Type: EventCommandEnqueued, Command: &cmd})

	return id, nil
}

// Pending returns the pending commands in replay order: priority
// ascending, then enqueue time. Within one priority bucket, enqueue
// order is preserved; this ordering is a hard contract for replay.
func (q *Queue) Pending(ctx context.Context) ([]command.Command, error) {
	return q.store.PendingCommands(ctx)
}

// Update applies a partial patch to a queued command.
func (q *Queue) Update(ctx context.Context, id int64, patch store.CommandPatch) error {
	return q.store.UpdateCommand(ctx, id, patch)
}

// Delete removes a command, normally after successful replay.
func (q *Queue) Delete(ctx context.Context, id int64) error {
	return q.store.DeleteCommand(ctx, id)
}

// Stats summarizes the queue by status.
func (q *Queue) Stats(ctx context.Context) (command.QueueStats, error) {
	return q.store.QueueStats(ctx)
}

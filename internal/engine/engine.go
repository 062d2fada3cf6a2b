package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
	"github.com/dieee-93/g-admin-sync/internal/policy"
	"github.com/dieee-93/g-admin-sync/internal/queue"
	"github.com/dieee-93/g-admin-sync/internal/remote"
	"github.com/dieee-93/g-admin-sync/internal/resolve"
	"github.com/dieee-93/g-admin-sync/internal/store"
)

// Guard sentinels returned by Sync. None of them indicate damage; they
// report why a pass did not run.
var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOffline        = errors.New("offline")
	ErrNothingPending = errors.New("nothing pending")
)

// Engine replays queued commands against the remote service.
//
// One engine instance serializes its own replay: the in-process syncing
// flag rejects concurrent sync attempts within this instance only.
// Multiple instances over one store risk double-submission and must be
// prevented by the host (a single dedicated worker, or leader election).
type Engine struct {
	store    *store.Store
	queue    *queue.Queue
	svc      remote.Service
	resolver *resolve.Engine
	pol      policy.Policy
	clock    Clock
	source   Source
	logger   *slog.Logger

	triggers *triggerQueue
	flap     *flapDetector

	mu       sync.Mutex
	syncing  bool
	nextWake time.Time

	stopOnce sync.Once
	stopped  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy overrides the default policy.
func WithPolicy(pol policy.Policy) Option {
	return func(e *Engine) { e.pol = pol }
}

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithConnectivity subscribes the engine to a connectivity source.
// Without one the engine assumes it is always online.
func WithConnectivity(source Source) Option {
	return func(e *Engine) { e.source = source }
}

// WithResolver wires a conflict resolution engine. Without one,
// conflict-kind failures take the ordinary retry path.
func WithResolver(resolver *resolve.Engine) Option {
	return func(e *Engine) { e.resolver = resolver }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an engine over an explicit store, queue, and remote
// service. Nothing starts until Run or Sync is called.
func New(st *store.Store, q *queue.Queue, svc remote.Service, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		queue:    q,
		svc:      svc,
		pol:      policy.Default(),
		clock:    SystemClock(),
		logger:   slog.Default(),
		triggers: newTriggerQueue(),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.flap = newFlapDetector(e.pol.FlapWindow, e.pol.FlapThreshold)
	return e
}

// Resume flips commands stranded in syncing back to pending. A crash
// mid-sync leaves such rows behind; they are resumable work, not
// corruption. Run calls this once at startup.
func (e *Engine) Resume(ctx context.Context) error {
	n, err := e.store.ResumeInFlight(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.Info("resumed in-flight commands", "count", n)
	}
	return nil
}

// ForceSync requests a sync pass from the Run loop. Callers without a
// running loop should use Sync directly.
func (e *Engine) ForceSync() {
	e.triggers.Enqueue(TriggerForce)
}

// NotifyVisible signals that the host regained visibility; pending
// commands get an opportunistic sync pass.
func (e *Engine) NotifyVisible() {
	e.triggers.Enqueue(TriggerVisibility)
}

// Stop shuts the Run loop down. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		e.triggers.Close()
	})
}

func (e *Engine) online() bool {
	return e.source == nil || e.source.Online()
}

// Run is the engine's event loop: it resumes stranded commands, then
// reacts to connectivity transitions (debounced by the anti-flap
// window), enqueue notifications, retry-timer expiries, and force-sync
// requests until the context is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Resume(ctx); err != nil {
		return fmt.Errorf("engine startup: %w", err)
	}

	var changes <-chan bool
	if e.source != nil {
		changes = e.source.Changes()
	}
	events, cancelEvents := e.queue.Bus().Subscribe(16)
	defer cancelEvents()

	// Pick up whatever survived the last shutdown.
	if e.online() {
		e.triggers.Enqueue(TriggerRetry)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-e.stopped:
			return nil

		case online, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			now := e.clock.Now()
			e.flap.Record(now)
			if online {
				delay := e.flap.Debounce(e.pol.DebounceDelay, now)
				e.logger.Info("connectivity restored", "debounce", delay)
				time.AfterFunc(delay, func() {
					e.triggers.Enqueue(TriggerConnectivity)
				})
			} else {
				e.logger.Info("connectivity lost")
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Type == queue.EventCommandEnqueued && e.online() {
				e.triggers.Enqueue(TriggerEnqueue)
			}

		case <-e.triggers.Wait():
			for {
				trig, ok := e.triggers.TryDequeue()
				if !ok {
					break
				}
				e.runPass(ctx, trig)
			}
			select {
			case <-e.stopped:
				return nil
			default:
			}
		}
	}
}

func (e *Engine) runPass(ctx context.Context, trig Trigger) {
	err := e.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress),
		errors.Is(err, ErrOffline),
		errors.Is(err, ErrNothingPending):
		e.logger.Debug("sync pass skipped", "trigger", trig.String(), "reason", err)
	default:
		e.logger.Error("sync pass failed", "trigger", trig.String(), "error", err)
	}

	// Wake up again when the earliest backoff window expires.
	if wake := e.takeNextWake(); !wake.IsZero() {
		delay := wake.Sub(e.clock.Now())
		if delay < 0 {
			delay = 0
		}
		time.AfterFunc(delay, func() {
			e.triggers.Enqueue(TriggerRetry)
		})
	}
}

func (e *Engine) setNextWake(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nextWake.IsZero() || t.Before(e.nextWake) {
		e.nextWake = t
	}
}

func (e *Engine) takeNextWake() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.nextWake
	e.nextWake = time.Time{}
	return t
}

// Sync runs one guarded replay pass synchronously. It refuses to run
// while another pass is active, while offline, or with nothing eligible
// to replay, returning the matching sentinel.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return ErrSyncInProgress
	}
	if !e.online() {
		e.mu.Unlock()
		return ErrOffline
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	return e.replay(ctx)
}

func (e *Engine) replay(ctx context.Context) error {
	now := e.clock.Now()

	pending, err := e.store.PendingCommands(ctx)
	if err != nil {
		e.queue.Bus().Publish(queue.Event{Type: queue.EventSyncFailed, Error: err.Error()})
		return fmt.Errorf("load pending commands: %w", err)
	}

	eligible := make([]command.Command, 0, len(pending))
	for _, cmd := range pending {
		if cmd.RetryEligible(now) {
			eligible = append(eligible, cmd)
			continue
		}
		e.setNextWake(time.UnixMilli(cmd.NextRetryAt))
	}
	if len(eligible) == 0 {
		return ErrNothingPending
	}

	e.queue.Bus().Publish(queue.Event{Type: queue.EventSyncStarted, Count: len(eligible)})
	e.logger.Info("sync started", "eligible", len(eligible), "pending", len(pending))

	successCount, failureCount := 0, 0
	interrupted := false

	// Batches are a scheduling convenience, not a transaction: each
	// command is tracked individually.
	for start := 0; start < len(eligible) && !interrupted; start += e.pol.BatchSize {
		end := min(start+e.pol.BatchSize, len(eligible))
		for _, cmd := range eligible[start:end] {
			if ctx.Err() != nil || !e.online() {
				// Going offline mid-replay does not roll anything back.
				// Remaining commands keep their persisted state for the
				// next pass.
				e.logger.Warn("sync interrupted", "remaining", len(eligible)-successCount-failureCount)
				interrupted = true
				break
			}
			if e.replayOne(ctx, cmd) {
				successCount++
			} else {
				failureCount++
			}
		}
	}

	e.queue.Bus().Publish(queue.Event{
		Type:         queue.EventSyncCompleted,
		SuccessCount: successCount,
		FailureCount: failureCount,
	})
	e.logger.Info("sync completed", "synced", successCount, "failed", failureCount)
	return nil
}

// replayOne processes a single command and reports whether it synced.
// Every state change lands in the store before the next command runs.
func (e *Engine) replayOne(ctx context.Context, cmd command.Command) bool {
	now := e.clock.Now()

	if cmd.RetryCount >= e.pol.MaxRetries {
		failed := command.StatusFailed
		lastErr := &command.LastError{
			Kind:    command.KindUnknown,
			Message: "max retries exceeded",
			Time:    now,
		}
		if err := e.store.UpdateCommand(ctx, cmd.ID, store.CommandPatch{Status: &failed, LastError: lastErr}); err != nil {
			e.logger.Error("mark command failed", "command_id", cmd.ID, "error", err)
		}
		cmd.Status = failed
		cmd.LastError = lastErr
		e.queue.Bus().Publish(queue.Event{
			Type:      queue.EventCommandFailed,
			Command:   &cmd,
			ErrorKind: command.KindUnknown,
			Error:     lastErr.Message,
		})
		e.logger.Warn("command terminally failed",
			"command_id", cmd.ID,
			"entity_type", cmd.EntityType,
			"entity_id", cmd.EntityID,
			"retries", cmd.RetryCount,
		)
		return false
	}

	syncing := command.StatusSyncing
	if err := e.store.UpdateCommand(ctx, cmd.ID, store.CommandPatch{Status: &syncing}); err != nil {
		e.logger.Error("mark command syncing", "command_id", cmd.ID, "error", err)
		return false
	}

	result, callErr := e.call(ctx, cmd)
	if callErr == nil {
		if err := e.store.DeleteCommand(ctx, cmd.ID); err != nil {
			e.logger.Error("delete synced command", "command_id", cmd.ID, "error", err)
		}
		e.queue.Bus().Publish(queue.Event{Type: queue.EventCommandSynced, Command: &cmd, Result: result})
		e.logger.Info("command synced",
			"command_id", cmd.ID,
			"entity_type", cmd.EntityType,
			"entity_id", cmd.EntityID,
			"operation", cmd.Operation,
		)
		return true
	}

	kind := remote.Classify(callErr)
	delay := Backoff(e.pol.InitialDelay, e.pol.MaxDelay, cmd.RetryCount)
	retry := cmd.RetryCount + 1
	nextAt := now.Add(delay).UnixMilli()
	pendingStatus := command.StatusPending
	lastErr := &command.LastError{Kind: kind, Message: callErr.Error(), Time: now}

	if err := e.store.UpdateCommand(ctx, cmd.ID, store.CommandPatch{
		Status:      &pendingStatus,
		RetryCount:  &retry,
		LastError:   lastErr,
		NextRetryAt: &nextAt,
	}); err != nil {
		e.logger.Error("reschedule command", "command_id", cmd.ID, "error", err)
	}
	e.setNextWake(time.UnixMilli(nextAt))

	e.queue.Bus().Publish(queue.Event{
		Type:      queue.EventCommandFailed,
		Command:   &cmd,
		ErrorKind: kind,
		Error:     callErr.Error(),
	})
	e.logger.Warn("command failed",
		"command_id", cmd.ID,
		"entity_type", cmd.EntityType,
		"entity_id", cmd.EntityID,
		"kind", kind,
		"retry", retry,
		"delay", delay,
	)

	if kind == command.KindConflict {
		e.handleConflict(ctx, cmd, callErr)
	}
	return false
}

func (e *Engine) call(ctx context.Context, cmd command.Command) (json.RawMessage, error) {
	switch cmd.Operation {
	case command.OpCreate:
		return e.svc.Insert(ctx, cmd.EntityType, cmd.Payload)
	case command.OpUpdate:
		return e.svc.Update(ctx, cmd.EntityType, cmd.EntityID, cmd.Payload)
	case command.OpDelete:
		return nil, e.svc.Delete(ctx, cmd.EntityType, cmd.EntityID)
	default:
		return nil, fmt.Errorf("unknown operation %q", cmd.Operation)
	}
}

// handleConflict records a unique-constraint collision as a conflict
// and, when the chain resolves it without user confirmation, rewrites
// the command's payload with the merged value so the next retry sends
// the reconciled state. Without a resolver or remote details the
// command just takes the ordinary retry path.
func (e *Engine) handleConflict(ctx context.Context, cmd command.Command, callErr error) {
	if e.resolver == nil {
		return
	}
	var re *remote.Error
	if !errors.As(callErr, &re) || len(re.Details) == 0 {
		return
	}

	var localValue, remoteValue any
	if err := json.Unmarshal(cmd.Payload, &localValue); err != nil {
		e.logger.Warn("conflict payload undecodable", "command_id", cmd.ID, "error", err)
		return
	}
	if err := json.Unmarshal(re.Details, &remoteValue); err != nil {
		e.logger.Warn("conflict details undecodable", "command_id", cmd.ID, "error", err)
		return
	}

	conflict := resolve.Conflict{
		EntityType:  cmd.EntityType,
		EntityID:    cmd.EntityID,
		Field:       "payload",
		FieldType:   resolve.FieldObject,
		LocalValue:  localValue,
		RemoteValue: remoteValue,
		Metadata: resolve.Metadata{
			LocalTimestamp:  cmd.Timestamp,
			RemoteTimestamp: e.clock.Now(),
		},
	}

	id, err := e.resolver.Record(ctx, conflict)
	if err != nil {
		e.logger.Warn("record conflict", "command_id", cmd.ID, "error", err)
		return
	}

	out := e.resolver.Resolve(ctx, conflict)
	if !out.Success || out.RequiresUserConfirmation {
		e.logger.Info("conflict deferred for manual resolution",
			"command_id", cmd.ID, "conflict_id", id, "strategy", out.Strategy)
		return
	}

	merged, err := command.MarshalCanonical(out.ResolvedValue)
	if err != nil {
		e.logger.Warn("encode resolved payload", "conflict_id", id, "error", err)
		return
	}
	payload := json.RawMessage(merged)
	if err := e.store.UpdateCommand(ctx, cmd.ID, store.CommandPatch{Payload: &payload}); err != nil {
		e.logger.Warn("apply resolved payload", "command_id", cmd.ID, "error", err)
		return
	}
	if err := e.store.DeleteConflict(ctx, id); err != nil {
		e.logger.Warn("clear resolved conflict", "conflict_id", id, "error", err)
	}
	e.logger.Info("conflict resolved",
		"command_id", cmd.ID,
		"conflict_id", id,
		"strategy", out.Strategy,
		"confidence", out.Confidence,
	)
}

// Package harness executes YAML-defined sync scenarios against a real
// in-memory store, queue, and engine, with a manual clock, a scripted
// remote service, and manually driven connectivity. The lifecycle event
// trace it collects is deterministic, which makes golden-file
// comparison of whole scenario runs possible.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
	"github.com/dieee-93/g-admin-sync/internal/engine"
	"github.com/dieee-93/g-admin-sync/internal/policy"
	"github.com/dieee-93/g-admin-sync/internal/queue"
	"github.com/dieee-93/g-admin-sync/internal/remote"
	"github.com/dieee-93/g-admin-sync/internal/resolve"
	"github.com/dieee-93/g-admin-sync/internal/store"
	"github.com/dieee-93/g-admin-sync/internal/testutil"
)

// baseTime anchors the manual clock. Every scenario starts here, so
// traces and backoff arithmetic are reproducible.
var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// TraceEvent is one entry in the deterministic scenario trace.
type TraceEvent struct {
	Type      string
	ID        int64
	Entity    string // entityType/entityId
	Op        string
	ErrorKind string
	Count     int
	Synced    int
	Failed    int
	Reason    string
}

// Result is the outcome of one scenario run.
type Result struct {
	Trace   []TraceEvent
	Stats   command.QueueStats
	Pending []command.Command
}

// transportFailure satisfies net.Error so the engine classifies it as a
// network problem.
type transportFailure struct{}

func (transportFailure) Error() string   { return "transport failure" }
func (transportFailure) Timeout() bool   { return true }
func (transportFailure) Temporary() bool { return true }

// Run executes a scenario in a fresh in-memory database and returns the
// collected trace plus the final queue state.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("scenario %s: open store: %w", scenario.Name, err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pol := policy.Default()
	clock := testutil.NewManualClock(baseTime)
	q := queue.New(st, pol, queue.WithClock(clock.Now))
	svc := testutil.NewScriptedService()

	online := true
	if scenario.Online != nil {
		online = *scenario.Online
	}
	src := testutil.NewManualSource(online)

	resolver := resolve.New(st, pol,
		resolve.WithLogger(logger),
		resolve.WithClock(clock.Now),
	)
	eng := engine.New(st, q, svc,
		engine.WithPolicy(pol),
		engine.WithClock(clock),
		engine.WithConnectivity(src),
		engine.WithResolver(resolver),
		engine.WithLogger(logger),
	)

	events, cancel := q.Bus().Subscribe(1024)
	defer cancel()

	ctx := context.Background()
	result := &Result{}

	for i, step := range scenario.Steps {
		if err := runStep(ctx, step, q, eng, svc, src, clock, result); err != nil {
			return nil, fmt.Errorf("scenario %s, step %d: %w", scenario.Name, i, err)
		}
		drainEvents(events, result)
	}

	result.Stats, err = st.QueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: final stats: %w", scenario.Name, err)
	}
	result.Pending, err = st.PendingCommands(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: final pending: %w", scenario.Name, err)
	}
	return result, nil
}

func runStep(
	ctx context.Context,
	step Step,
	q *queue.Queue,
	eng *engine.Engine,
	svc *testutil.ScriptedService,
	src *testutil.ManualSource,
	clock *testutil.ManualClock,
	result *Result,
) error {
	switch {
	case step.Enqueue != nil:
		payload, err := json.Marshal(step.Enqueue.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		_, err = q.Enqueue(ctx,
			step.Enqueue.EntityType,
			step.Enqueue.EntityID,
			command.Operation(step.Enqueue.Operation),
			payload,
		)
		return err

	case step.Online != nil:
		src.SetOnline(*step.Online)
		return nil

	case len(step.Remote) > 0:
		for _, r := range step.Remote {
			svc.Push(outcomeFrom(r))
		}
		return nil

	case step.Sync:
		err := eng.Sync(ctx)
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrOffline):
			result.Trace = append(result.Trace, TraceEvent{Type: "sync_skipped", Reason: "offline"})
		case errors.Is(err, engine.ErrNothingPending):
			result.Trace = append(result.Trace, TraceEvent{Type: "sync_skipped", Reason: "nothing_pending"})
		default:
			return err
		}
		return nil

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		clock.Advance(d)
		return nil

	default:
		return fmt.Errorf("empty step")
	}
}

func outcomeFrom(r RemoteStep) testutil.RemoteOutcome {
	if r.Network {
		return testutil.RemoteOutcome{Err: transportFailure{}}
	}
	if r.Code != "" {
		re := &remote.Error{Code: r.Code, Message: r.Message}
		if r.Details != nil {
			details, err := json.Marshal(r.Details)
			if err == nil {
				re.Details = details
			}
		}
		return testutil.RemoteOutcome{Err: re}
	}
	if r.Result != nil {
		body, err := json.Marshal(r.Result)
		if err == nil {
			return testutil.RemoteOutcome{Result: body}
		}
	}
	return testutil.RemoteOutcome{Result: json.RawMessage(`{"ok":true}`)}
}

func drainEvents(events <-chan queue.Event, result *Result) {
	for {
		select {
		case e := <-events:
			result.Trace = append(result.Trace, traceEvent(e))
		default:
			return
		}
	}
}

func traceEvent(e queue.Event) TraceEvent {
	te := TraceEvent{Type: string(e.Type)}
	if e.Command != nil {
		te.ID = e.Command.ID
		te.Entity = e.Command.EntityType + "/" + e.Command.EntityID
		te.Op = string(e.Command.Operation)
	}
	switch e.Type {
	case queue.EventSyncStarted:
		te.Count = e.Count
	case queue.EventSyncCompleted:
		te.Synced = e.SuccessCount
		te.Failed = e.FailureCount
	case queue.EventCommandFailed:
		te.ErrorKind = string(e.ErrorKind)
	}
	return te
}

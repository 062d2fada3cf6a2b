package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestManualClock_AdvanceOnly(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(1500 * time.Millisecond)
	want := start.Add(1500 * time.Millisecond)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("after Advance: Now() = %v, want %v", got, want)
	}

	// Now must be stable between advances.
	if !c.Now().Equal(c.Now()) {
		t.Error("Now() moved without Advance")
	}
}

func TestScriptedService_ConsumesScriptThenSucceeds(t *testing.T) {
	svc := NewScriptedService()
	scriptErr := errors.New("scripted failure")
	svc.Push(RemoteOutcome{Err: scriptErr})
	svc.Push(RemoteOutcome{Result: json.RawMessage(`{"id":"m1"}`)})

	ctx := context.Background()

	if _, err := svc.Insert(ctx, "materials", json.RawMessage(`{}`)); !errors.Is(err, scriptErr) {
		t.Fatalf("first call err = %v, want scripted failure", err)
	}

	res, err := svc.Update(ctx, "materials", "m1", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if string(res) != `{"id":"m1"}` {
		t.Errorf("second call result = %s", res)
	}

	// Script exhausted: calls succeed with the default body.
	if err := svc.Delete(ctx, "materials", "m1"); err != nil {
		t.Errorf("post-script call: %v", err)
	}

	calls := svc.Calls()
	if len(calls) != 3 {
		t.Fatalf("CallCount = %d, want 3", len(calls))
	}
	if calls[0].Op != "insert" || calls[1].Op != "update" || calls[2].Op != "delete" {
		t.Errorf("call ops = %v %v %v", calls[0].Op, calls[1].Op, calls[2].Op)
	}
	if calls[1].EntityID != "m1" {
		t.Errorf("update entity id = %q", calls[1].EntityID)
	}
}

func TestManualSource_TransitionsInOrder(t *testing.T) {
	src := NewManualSource(false)

	src.SetOnline(true)
	src.SetOnline(true) // duplicate, no transition
	src.SetOnline(false)

	if src.Online() {
		t.Error("Online() = true after final SetOnline(false)")
	}

	want := []bool{true, false}
	for i, w := range want {
		select {
		case got := <-src.Changes():
			if got != w {
				t.Errorf("transition %d = %v, want %v", i, got, w)
			}
		default:
			t.Fatalf("missing transition %d", i)
		}
	}
	select {
	case got := <-src.Changes():
		t.Errorf("unexpected extra transition %v", got)
	default:
	}
}

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCommand(entityType, entityID string, op command.Operation) command.Command {
	payload, _ := command.CanonicalizeRaw(json.RawMessage(`{"name":"flour","stock":10}`))
	return command.Command{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    payload,
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Priority:   1,
		Status:     command.StatusPending,
	}
}

func TestInsertCommand_AssignsID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, inserted, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate))
	if err != nil {
		t.Fatalf("InsertCommand() failed: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should succeed")
	}
	if id <= 0 {
		t.Errorf("id = %d, want positive", id)
	}
}

func TestInsertCommand_DuplicateDetected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	_, inserted, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate))
	if err != nil {
		t.Fatalf("duplicate insert should not error: %v", err)
	}
	if inserted {
		t.Error("duplicate (entityType, entityId, operation) should not insert")
	}

	count, err := s.CommandCount(ctx)
	if err != nil {
		t.Fatalf("CommandCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestInsertCommand_DifferentOperationIsNotDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate)); err != nil {
		t.Fatalf("create insert failed: %v", err)
	}

	_, inserted, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpUpdate))
	if err != nil {
		t.Fatalf("update insert failed: %v", err)
	}
	if !inserted {
		t.Error("create followed by update for the same entity must both be retained")
	}
}

func TestInsertCommand_FailedRowDoesNotBlockRetry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	failed := command.StatusFailed
	if err := s.UpdateCommand(ctx, id, CommandPatch{Status: &failed}); err != nil {
		t.Fatalf("UpdateCommand() failed: %v", err)
	}

	// The dedup index only covers live rows; a fresh attempt is allowed.
	_, inserted, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate))
	if err != nil {
		t.Fatalf("re-insert failed: %v", err)
	}
	if !inserted {
		t.Error("terminally failed command should not block a new enqueue")
	}
}

func TestUpdateCommand_PartialPatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _, err := s.InsertCommand(ctx, testCommand("sales", "s1", command.OpUpdate))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	syncing := command.StatusSyncing
	retries := 2
	nextRetry := int64(1717243200000)
	lastErr := &command.LastError{
		Kind:    command.KindNetwork,
		Message: "connection refused",
		Time:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	err = s.UpdateCommand(ctx, id, CommandPatch{
		Status:      &syncing,
		RetryCount:  &retries,
		LastError:   lastErr,
		NextRetryAt: &nextRetry,
	})
	if err != nil {
		t.Fatalf("UpdateCommand() failed: %v", err)
	}

	got, err := s.GetCommand(ctx, id)
	if err != nil {
		t.Fatalf("GetCommand() failed: %v", err)
	}
	if got.Status != command.StatusSyncing {
		t.Errorf("status = %q, want syncing", got.Status)
	}
	if got.RetryCount != 2 {
		t.Errorf("retryCount = %d, want 2", got.RetryCount)
	}
	if got.NextRetryAt != nextRetry {
		t.Errorf("nextRetryAt = %d, want %d", got.NextRetryAt, nextRetry)
	}
	if got.LastError == nil || got.LastError.Kind != command.KindNetwork {
		t.Errorf("lastError = %+v, want network kind", got.LastError)
	}

	// Untouched fields survive the patch.
	if got.EntityType != "sales" || got.Operation != command.OpUpdate {
		t.Errorf("identity fields changed: %+v", got)
	}
}

func TestUpdateCommand_NotFound(t *testing.T) {
	s := openTestStore(t)

	pending := command.StatusPending
	err := s.UpdateCommand(context.Background(), 9999, CommandPatch{Status: &pending})
	if err == nil {
		t.Error("expected error for missing command")
	}
}

func TestDeleteCommand(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _, err := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := s.DeleteCommand(ctx, id); err != nil {
		t.Fatalf("DeleteCommand() failed: %v", err)
	}

	count, _ := s.CommandCount(ctx)
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	// Second delete is a no-op, not an error.
	if err := s.DeleteCommand(ctx, id); err != nil {
		t.Errorf("repeated delete should not error: %v", err)
	}
}

func TestResumeInFlight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, _, _ := s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate))
	id2, _, _ := s.InsertCommand(ctx, testCommand("materials", "m2", command.OpCreate))

	syncing := command.StatusSyncing
	if err := s.UpdateCommand(ctx, id1, CommandPatch{Status: &syncing}); err != nil {
		t.Fatalf("mark syncing failed: %v", err)
	}

	n, err := s.ResumeInFlight(ctx)
	if err != nil {
		t.Fatalf("ResumeInFlight() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("resumed = %d, want 1", n)
	}

	for _, id := range []int64{id1, id2} {
		got, err := s.GetCommand(ctx, id)
		if err != nil {
			t.Fatalf("GetCommand(%d) failed: %v", id, err)
		}
		if got.Status != command.StatusPending {
			t.Errorf("command %d status = %q, want pending", id, got.Status)
		}
	}
}

func TestClearCommands(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.InsertCommand(ctx, testCommand("materials", "m1", command.OpCreate))
	s.InsertCommand(ctx, testCommand("sales", "s1", command.OpUpdate))

	if err := s.ClearCommands(ctx); err != nil {
		t.Fatalf("ClearCommands() failed: %v", err)
	}

	count, _ := s.CommandCount(ctx)
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

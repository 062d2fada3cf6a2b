package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func testConflict(entityID, field string) ConflictRecord {
	return ConflictRecord{
		EntityType:  "sales",
		EntityID:    entityID,
		Field:       field,
		FieldType:   "monetary",
		LocalValue:  json.RawMessage(`10.5`),
		RemoteValue: json.RawMessage(`12.0`),
		BaseValue:   json.RawMessage(`10.0`),
		Metadata:    json.RawMessage(`{"module":"sales"}`),
		DetectedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveConflict_AndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveConflict(ctx, testConflict("s1", "total"))
	if err != nil {
		t.Fatalf("SaveConflict() failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("id = %d, want positive", id)
	}

	conflicts, err := s.ListConflicts(ctx)
	if err != nil {
		t.Fatalf("ListConflicts() failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}

	got := conflicts[0]
	if got.Field != "total" || got.FieldType != "monetary" {
		t.Errorf("conflict = %+v", got)
	}
	if string(got.LocalValue) != "10.5" || string(got.RemoteValue) != "12.0" {
		t.Errorf("values = %s / %s", got.LocalValue, got.RemoteValue)
	}
	if string(got.BaseValue) != "10.0" {
		t.Errorf("base = %s, want 10.0", got.BaseValue)
	}
}

func TestSaveConflict_UpsertsSameField(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SaveConflict(ctx, testConflict("s1", "total"))
	if err != nil {
		t.Fatalf("first SaveConflict() failed: %v", err)
	}

	updated := testConflict("s1", "total")
	updated.RemoteValue = json.RawMessage(`15.0`)
	second, err := s.SaveConflict(ctx, updated)
	if err != nil {
		t.Fatalf("second SaveConflict() failed: %v", err)
	}
	if first != second {
		t.Errorf("upsert produced new id %d, want %d", second, first)
	}

	conflicts, _ := s.ListConflicts(ctx)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	if string(conflicts[0].RemoteValue) != "15.0" {
		t.Errorf("remote = %s, want 15.0", conflicts[0].RemoteValue)
	}
}

func TestSaveConflict_NilBase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testConflict("s1", "status")
	c.BaseValue = nil
	if _, err := s.SaveConflict(ctx, c); err != nil {
		t.Fatalf("SaveConflict() failed: %v", err)
	}

	conflicts, _ := s.ListConflicts(ctx)
	if conflicts[0].BaseValue != nil {
		t.Errorf("base = %s, want nil", conflicts[0].BaseValue)
	}
}

func TestDeleteConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.SaveConflict(ctx, testConflict("s1", "total"))

	if err := s.DeleteConflict(ctx, id); err != nil {
		t.Fatalf("DeleteConflict() failed: %v", err)
	}

	conflicts, _ := s.ListConflicts(ctx)
	if len(conflicts) != 0 {
		t.Errorf("got %d conflicts, want 0", len(conflicts))
	}
}

func TestPreference_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.Preference(ctx, "sales", "notes")
	if err != nil {
		t.Fatalf("Preference() failed: %v", err)
	}
	if got != "" {
		t.Errorf("unset preference = %q, want empty", got)
	}

	if err := s.SetPreference(ctx, "sales", "notes", PreferAlwaysLocal); err != nil {
		t.Fatalf("SetPreference() failed: %v", err)
	}
	got, _ = s.Preference(ctx, "sales", "notes")
	if got != PreferAlwaysLocal {
		t.Errorf("preference = %q, want %q", got, PreferAlwaysLocal)
	}

	// Overwrite with the opposite side.
	if err := s.SetPreference(ctx, "sales", "notes", PreferAlwaysRemote); err != nil {
		t.Fatalf("SetPreference() overwrite failed: %v", err)
	}
	got, _ = s.Preference(ctx, "sales", "notes")
	if got != PreferAlwaysRemote {
		t.Errorf("preference = %q, want %q", got, PreferAlwaysRemote)
	}
}

func TestSetPreference_RejectsUnknownValue(t *testing.T) {
	s := openTestStore(t)

	err := s.SetPreference(context.Background(), "sales", "notes", "ask_me")
	if err == nil {
		t.Error("expected CHECK constraint violation")
	}
}

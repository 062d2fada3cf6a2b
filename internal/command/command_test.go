package command

import (
	"testing"
	"time"
)

func TestOperation_Valid(t *testing.T) {
	for _, op := range []Operation{OpCreate, OpUpdate, OpDelete} {
		if !op.Valid() {
			t.Errorf("%q should be valid", op)
		}
	}
	if Operation("upsert").Valid() {
		t.Error("unknown operation should be invalid")
	}
}

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{
			name: "create without entity id is allowed",
			cmd:  Command{EntityType: "materials", Operation: OpCreate},
		},
		{
			name: "update with entity id",
			cmd:  Command{EntityType: "sales", EntityID: "s1", Operation: OpUpdate},
		},
		{
			name:    "update without entity id",
			cmd:     Command{EntityType: "sales", Operation: OpUpdate},
			wantErr: true,
		},
		{
			name:    "delete without entity id",
			cmd:     Command{EntityType: "sales", Operation: OpDelete},
			wantErr: true,
		},
		{
			name:    "missing entity type",
			cmd:     Command{Operation: OpCreate},
			wantErr: true,
		},
		{
			name:    "unknown operation",
			cmd:     Command{EntityType: "sales", EntityID: "s1", Operation: "merge"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCommand_RetryEligible(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c := Command{}
	if !c.RetryEligible(now) {
		t.Error("zero NextRetryAt should be eligible immediately")
	}

	c.NextRetryAt = now.Add(time.Second).UnixMilli()
	if c.RetryEligible(now) {
		t.Error("future NextRetryAt should not be eligible")
	}

	c.NextRetryAt = now.UnixMilli()
	if !c.RetryEligible(now) {
		t.Error("NextRetryAt equal to now should be eligible")
	}
}

func TestErrorKind_Valid(t *testing.T) {
	kinds := []ErrorKind{KindNetwork, KindDependency, KindValidation, KindConflict, KindUnknown}
	for _, k := range kinds {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if ErrorKind("fatal").Valid() {
		t.Error("unknown kind should be invalid")
	}
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want command.ErrorKind
	}{
		{"nil", nil, command.KindUnknown},
		{"unique violation numeric", &Error{Code: "23505"}, command.KindConflict},
		{"unique violation symbolic", &Error{Code: "unique_violation"}, command.KindConflict},
		{"not null", &Error{Code: "23502"}, command.KindValidation},
		{"check constraint", &Error{Code: "23514"}, command.KindValidation},
		{"foreign key", &Error{Code: "23503"}, command.KindDependency},
		{"foreign key symbolic", &Error{Code: "foreign_key_violation"}, command.KindDependency},
		{"unrecognized code", &Error{Code: "53300"}, command.KindUnknown},
		{"net error", fakeNetError{}, command.KindNetwork},
		{"wrapped net error", fmt.Errorf("do request: %w", fakeNetError{}), command.KindNetwork},
		{"wrapped remote error", fmt.Errorf("insert: %w", &Error{Code: "23505"}), command.KindConflict},
		{"context deadline", context.DeadlineExceeded, command.KindNetwork},
		{"context canceled", context.Canceled, command.KindNetwork},
		{"plain error", errors.New("boom"), command.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Code: "23505", Message: "duplicate key"}
	want := "remote error 23505: duplicate key"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

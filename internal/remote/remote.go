// Package remote abstracts the backend data service the sync engine
// replays commands against. The core only requires insert, update, and
// delete by entity type and id; everything else about the backend is the
// host application's business.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

// Service is the remote data service contract.
//
// Implementations must return *Error for failures the backend reported
// with a code, and wrap transport problems so Classify buckets them as
// network errors. All calls honor context cancellation.
type Service interface {
	Insert(ctx context.Context, entityType string, payload json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, entityType, entityID string, payload json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, entityType, entityID string) error
}

// Error is a failure the remote service reported with a code.
// Codes follow SQLSTATE conventions (23505 unique violation, ...) but
// symbolic names are accepted too. On unique-constraint collisions
// Details may carry the remote record that won, which lets the conflict
// resolver compare both sides.
type Error struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
}

// Classify maps a replay failure onto the retry taxonomy.
//
//	unique-constraint           → conflict (resolver path when wired)
//	not-null / check constraint → validation (needs a payload fix)
//	foreign-key                 → dependency (may self-heal later)
//	transport / cancellation    → network
//	anything else               → unknown
func Classify(err error) command.ErrorKind {
	if err == nil {
		return command.KindUnknown
	}

	var re *Error
	if errors.As(err, &re) {
		switch re.Code {
		case "23505", "unique_violation":
			return command.KindConflict
		case "23502", "not_null_violation", "23514", "check_violation":
			return command.KindValidation
		case "23503", "foreign_key_violation":
			return command.KindDependency
		default:
			return command.KindUnknown
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return command.KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return command.KindNetwork
	}

	return command.KindUnknown
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

// timeFormat is a fixed-width RFC 3339 variant. Fixed nanosecond padding
// keeps lexicographic order equal to chronological order, which the
// replay ORDER BY relies on.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// InsertCommand persists a new command and returns its assigned id.
//
// Deduplication uses the partial unique index on
// (entity_type, entity_id, operation): the insert runs with
// ON CONFLICT DO NOTHING, and a zero rows-affected result means an
// equivalent non-terminal command already exists. In that case inserted
// is false and id is 0 - the caller's intent is already queued and
// nothing is lost.
func (s *Store) InsertCommand(ctx context.Context, cmd command.Command) (id int64, inserted bool, err error) {
	lastErrJSON, err := marshalLastError(cmd.LastError)
	if err != nil {
		return 0, false, fmt.Errorf("insert command: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO commands
		(entity_type, entity_id, operation, payload, checksum, timestamp, priority, status, retry_count, last_error, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		cmd.EntityType,
		cmd.EntityID,
		string(cmd.Operation),
		string(cmd.Payload),
		command.Checksum(cmd.Payload),
		formatTime(cmd.Timestamp),
		cmd.Priority,
		string(cmd.Status),
		cmd.RetryCount,
		lastErrJSON,
		cmd.NextRetryAt,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert command: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert command: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Dedup hit - an equivalent live command is already queued.
		return 0, false, nil
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("insert command: last insert id: %w", err)
	}
	return id, true, nil
}

// CommandPatch is a partial update applied to a persisted command.
// Nil fields are left untouched.
type CommandPatch struct {
	Status      *command.Status
	RetryCount  *int
	LastError   *command.LastError
	NextRetryAt *int64

	// Payload replaces the command's payload, e.g. with a merged value
	// after conflict resolution. The stored checksum follows it.
	Payload *json.RawMessage
}

// UpdateCommand applies a patch to the command with the given id.
// Returns an error if the command does not exist.
func (s *Store) UpdateCommand(ctx context.Context, id int64, patch CommandPatch) error {
	var sets []string
	var args []any

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *patch.RetryCount)
	}
	if patch.LastError != nil {
		lastErrJSON, err := marshalLastError(patch.LastError)
		if err != nil {
			return fmt.Errorf("update command %d: %w", id, err)
		}
		sets = append(sets, "last_error = ?")
		args = append(args, lastErrJSON)
	}
	if patch.NextRetryAt != nil {
		sets = append(sets, "next_retry_at = ?")
		args = append(args, *patch.NextRetryAt)
	}
	if patch.Payload != nil {
		sets = append(sets, "payload = ?", "checksum = ?")
		args = append(args, string(*patch.Payload), command.Checksum(*patch.Payload))
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE commands SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update command %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update command %d: rows affected: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update command %d: not found", id)
	}
	return nil
}

// DeleteCommand removes a command. Deleting an absent id is a no-op;
// replay deletes commands after remote success and a crashed-then-resumed
// pass may delete twice.
func (s *Store) DeleteCommand(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM commands WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete command %d: %w", id, err)
	}
	return nil
}

// ClearCommands removes every command regardless of status.
func (s *Store) ClearCommands(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM commands"); err != nil {
		return fmt.Errorf("clear commands: %w", err)
	}
	return nil
}

// ResumeInFlight flips commands stranded in syncing back to pending.
// Called at engine startup: a crash mid-sync leaves syncing rows behind,
// and they must be treated as resumable, not as corruption.
// Returns the number of rows recovered.
func (s *Store) ResumeInFlight(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE commands SET status = ? WHERE status = ?
	`, string(command.StatusPending), string(command.StatusSyncing))
	if err != nil {
		return 0, fmt.Errorf("resume in-flight commands: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resume in-flight commands: rows affected: %w", err)
	}
	return n, nil
}

// marshalLastError serializes a LastError to JSON TEXT, or NULL when nil.
func marshalLastError(le *command.LastError) (any, error) {
	if le == nil {
		return nil, nil
	}
	data, err := json.Marshal(le)
	if err != nil {
		return nil, fmt.Errorf("marshal last error: %w", err)
	}
	return string(data), nil
}

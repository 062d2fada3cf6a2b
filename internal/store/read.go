package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

const commandColumns = `id, entity_type, entity_id, operation, payload, checksum, timestamp, priority, status, retry_count, last_error, next_retry_at`

// GetCommand retrieves a single command by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetCommand(ctx context.Context, id int64) (command.Command, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+commandColumns+" FROM commands WHERE id = ?", id)
	return scanCommand(row)
}

// PendingCommands returns every pending command in replay order:
// priority ascending, then enqueue time, then id as a final tiebreak.
// Backoff eligibility is the replay loop's concern, so rows with a
// future next_retry_at are still included.
//
// Returns an empty slice (not nil) when nothing is pending.
func (s *Store) PendingCommands(ctx context.Context) ([]command.Command, error) {
	return s.commandsWhere(ctx, "WHERE status = ?", string(command.StatusPending))
}

// CommandsByEntity returns the live commands targeting one entity, in
// enqueue order. Used to inspect what is still queued for a record.
func (s *Store) CommandsByEntity(ctx context.Context, entityType, entityID string) ([]command.Command, error) {
	return s.commandsWhere(ctx,
		"WHERE entity_type = ? AND entity_id = ?", entityType, entityID)
}

// AllCommands returns every persisted command in replay order.
func (s *Store) AllCommands(ctx context.Context) ([]command.Command, error) {
	return s.commandsWhere(ctx, "")
}

func (s *Store) commandsWhere(ctx context.Context, where string, args ...any) ([]command.Command, error) {
	query := "SELECT " + commandColumns + " FROM commands " + where +
		" ORDER BY priority ASC, timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	commands := []command.Command{}
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return commands, nil
}

// CommandCount returns the total number of persisted commands.
func (s *Store) CommandCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM commands").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count commands: %w", err)
	}
	return count, nil
}

// QueueStats aggregates command counts by status.
func (s *Store) QueueStats(ctx context.Context) (command.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM commands GROUP BY status")
	if err != nil {
		return command.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats command.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return command.QueueStats{}, fmt.Errorf("queue stats: scan: %w", err)
		}
		stats.Total += count
		switch command.Status(status) {
		case command.StatusPending:
			stats.Pending = count
		case command.StatusSyncing:
			stats.Syncing = count
		case command.StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return command.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (command.Command, error) {
	var (
		cmd        command.Command
		operation  string
		payload    string
		checksum   string
		timestamp  string
		status     string
		lastErrStr sql.NullString
	)

	err := row.Scan(
		&cmd.ID,
		&cmd.EntityType,
		&cmd.EntityID,
		&operation,
		&payload,
		&checksum,
		&timestamp,
		&cmd.Priority,
		&status,
		&cmd.RetryCount,
		&lastErrStr,
		&cmd.NextRetryAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return command.Command{}, err
		}
		return command.Command{}, fmt.Errorf("scan command: %w", err)
	}

	cmd.Operation = command.Operation(operation)
	cmd.Payload = json.RawMessage(payload)
	cmd.Status = command.Status(status)

	cmd.Timestamp, err = parseTime(timestamp)
	if err != nil {
		return command.Command{}, fmt.Errorf("scan command %d: parse timestamp: %w", cmd.ID, err)
	}

	if lastErrStr.Valid && lastErrStr.String != "" {
		var le command.LastError
		if err := json.Unmarshal([]byte(lastErrStr.String), &le); err != nil {
			return command.Command{}, fmt.Errorf("scan command %d: parse last error: %w", cmd.ID, err)
		}
		cmd.LastError = &le
	}

	// Corruption detection is advisory: log and keep serving the row.
	if got := command.Checksum(cmd.Payload); got != checksum {
		slog.Warn("payload checksum mismatch",
			"command_id", cmd.ID,
			"entity_type", cmd.EntityType,
			"entity_id", cmd.EntityID,
			"stored", checksum,
			"computed", got,
		)
	}

	return cmd, nil
}

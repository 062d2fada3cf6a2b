package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ConflictRecord is the persisted form of an unresolved conflict. The
// active conflict set lives here until a strategy or a user resolves it.
// Values are stored as raw JSON; interpretation belongs to the resolver.
type ConflictRecord struct {
	ID          int64
	EntityType  string
	EntityID    string
	Field       string
	FieldType   string
	LocalValue  json.RawMessage
	RemoteValue json.RawMessage
	BaseValue   json.RawMessage // nil when no common ancestor is known
	Metadata    json.RawMessage
	DetectedAt  time.Time
}

// Preference values accepted by the resolution_preferences table.
const (
	PreferAlwaysLocal  = "always_local"
	PreferAlwaysRemote = "always_remote"
)

// SaveConflict upserts a conflict into the active set. One conflict per
// (entity_type, entity_id, field): re-detecting the same divergence
// replaces the stored values rather than accumulating rows.
func (s *Store) SaveConflict(ctx context.Context, c ConflictRecord) (int64, error) {
	var base any
	if c.BaseValue != nil {
		base = string(c.BaseValue)
	}
	metadata := "{}"
	if c.Metadata != nil {
		metadata = string(c.Metadata)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflicts
		(entity_type, entity_id, field, field_type, local_value, remote_value, base_value, metadata, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id, field) DO UPDATE SET
			field_type   = excluded.field_type,
			local_value  = excluded.local_value,
			remote_value = excluded.remote_value,
			base_value   = excluded.base_value,
			metadata     = excluded.metadata,
			detected_at  = excluded.detected_at
	`,
		c.EntityType, c.EntityID, c.Field, c.FieldType,
		string(c.LocalValue), string(c.RemoteValue), base, metadata,
		formatTime(c.DetectedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("save conflict: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM conflicts WHERE entity_type = ? AND entity_id = ? AND field = ?
	`, c.EntityType, c.EntityID, c.Field).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save conflict: read id: %w", err)
	}
	return id, nil
}

// ListConflicts returns the active conflict set ordered by detection time.
// Returns an empty slice (not nil) when the set is empty.
func (s *Store) ListConflicts(ctx context.Context) ([]ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, field, field_type, local_value, remote_value, base_value, metadata, detected_at
		FROM conflicts
		ORDER BY detected_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []ConflictRecord{}
	for rows.Next() {
		var (
			c          ConflictRecord
			local      string
			remote     string
			base       sql.NullString
			metadata   string
			detectedAt string
		)
		err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.Field, &c.FieldType,
			&local, &remote, &base, &metadata, &detectedAt)
		if err != nil {
			return nil, fmt.Errorf("list conflicts: scan: %w", err)
		}

		c.LocalValue = json.RawMessage(local)
		c.RemoteValue = json.RawMessage(remote)
		if base.Valid {
			c.BaseValue = json.RawMessage(base.String)
		}
		c.Metadata = json.RawMessage(metadata)
		c.DetectedAt, err = parseTime(detectedAt)
		if err != nil {
			return nil, fmt.Errorf("list conflicts: parse detected_at: %w", err)
		}

		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

// DeleteConflict removes a conflict from the active set.
// Deleting an absent id is a no-op.
func (s *Store) DeleteConflict(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conflicts WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete conflict %d: %w", id, err)
	}
	return nil
}

// SetPreference stores a per-(entity, field) resolution preference.
// Must be PreferAlwaysLocal or PreferAlwaysRemote; the table's CHECK
// constraint rejects anything else.
func (s *Store) SetPreference(ctx context.Context, entityType, field, preference string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolution_preferences (entity_type, field, preference, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, field) DO UPDATE SET
			preference = excluded.preference,
			updated_at = excluded.updated_at
	`, entityType, field, preference, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set preference %s.%s: %w", entityType, field, err)
	}
	return nil
}

// Preference returns the stored preference for (entityType, field), or
// "" when none is set.
func (s *Store) Preference(ctx context.Context, entityType, field string) (string, error) {
	var pref string
	err := s.db.QueryRowContext(ctx, `
		SELECT preference FROM resolution_preferences
		WHERE entity_type = ? AND field = ?
	`, entityType, field).Scan(&pref)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s.%s: %w", entityType, field, err)
	}
	return pref, nil
}

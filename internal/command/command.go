package command

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation identifies the kind of mutation a command carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether the operation is one of the three supported kinds.
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a persisted command.
//
// pending → syncing → (deleted on success | failed on retry exhaustion).
// A crash mid-sync leaves rows in syncing; they are flipped back to
// pending on the next startup, never treated as corruption.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// DefaultPriority is assigned to entity types absent from the priority
// table. Lower numbers replay first.
const DefaultPriority = 999

// LastError records the most recent replay failure for a command.
type LastError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Command is the persisted record of one intended mutation.
//
// The tuple (EntityType, EntityID, Operation) is unique among non-terminal
// commands; the store enforces this with a partial unique index. Fields are
// additive-only: removing or retyping one is a breaking schema change.
type Command struct {
	ID         int64           // assigned by the store at insert time
	EntityType string          // e.g. "materials", "sales"
	EntityID   string          // may be a client-generated UUIDv7
	Operation  Operation
	Payload    json.RawMessage // canonical JSON, opaque to the queue
	Timestamp  time.Time       // creation time
	Priority   int             // lower replays first
	Status     Status
	RetryCount int
	LastError  *LastError // nil until the first failure
	NextRetryAt int64     // epoch ms; 0 means eligible immediately
}

// RetryEligible reports whether the command's backoff window has expired.
func (c *Command) RetryEligible(now time.Time) bool {
	return c.NextRetryAt == 0 || now.UnixMilli() >= c.NextRetryAt
}

// Validate checks the structural requirements for enqueueing.
// Update and delete must name an existing entity id.
func (c *Command) Validate() error {
	if c.EntityType == "" {
		return fmt.Errorf("entity type is required")
	}
	if !c.Operation.Valid() {
		return fmt.Errorf("unknown operation %q", c.Operation)
	}
	if c.EntityID == "" && c.Operation != OpCreate {
		return fmt.Errorf("%s requires an entity id", c.Operation)
	}
	return nil
}

// QueueStats summarizes the persisted queue by status.
type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Failed  int `json:"failed"`
}

// Package resolve implements the conflict resolution engine: given a
// divergent local and remote value for one logical field, an ordered
// strategy chain deterministically picks a winner or defers to manual
// resolution. The chain is evaluated highest priority first; the first
// strategy whose condition matches produces the outcome.
package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
	"github.com/dieee-93/g-admin-sync/internal/store"
)

// FieldType tells strategies how to interpret the conflicting values.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldMonetary  FieldType = "monetary"
	FieldQuantity  FieldType = "quantity"
	FieldStatus    FieldType = "status"
	FieldArray     FieldType = "array"
	FieldObject    FieldType = "object"
	FieldDate      FieldType = "date"
	FieldReference FieldType = "reference"
)

// Metadata carries the context a strategy may need beyond the values
// themselves: who wrote each side, when, and at which version.
// BaseVersion is nil when the provenance of BaseValue is unknown, which
// downgrades accumulation results to manual-review confidence.
type Metadata struct {
	LocalTimestamp  time.Time `json:"localTimestamp"`
	RemoteTimestamp time.Time `json:"remoteTimestamp"`
	LocalVersion    int       `json:"localVersion,omitempty"`
	RemoteVersion   int       `json:"remoteVersion,omitempty"`
	BaseVersion     *int      `json:"baseVersion,omitempty"`
	LocalRole       string    `json:"localRole,omitempty"`
	RemoteRole      string    `json:"remoteRole,omitempty"`
	Module          string    `json:"module,omitempty"`
	Importance      string    `json:"importance,omitempty"`
	Rules           []string  `json:"rules,omitempty"`
	Dependencies    []string  `json:"dependencies,omitempty"`
}

// Conflict is one detected divergence between a local and a remote
// value for the same field. BaseValue is only meaningful when HasBase
// is set; a JSON null base is a legitimate ancestor value.
//
// Preference holds the stored per-(entity, field) resolution preference
// when one exists. The engine fills it from the store before evaluating
// the chain; callers constructing conflicts by hand may set it directly.
type Conflict struct {
	EntityType  string
	EntityID    string
	Field       string
	FieldType   FieldType
	LocalValue  any
	RemoteValue any
	BaseValue   any
	HasBase     bool
	Metadata    Metadata
	Preference  string
}

// SideEffectKind classifies the follow-up work a resolution requests.
type SideEffectKind string

const (
	EffectNotify  SideEffectKind = "notify"
	EffectLog     SideEffectKind = "log"
	EffectCascade SideEffectKind = "cascade"
	EffectUpdate  SideEffectKind = "update"
)

// SideEffect is follow-up work attached to a resolution outcome.
// Application is best-effort: a failed side effect is logged and never
// unwinds the resolution itself.
type SideEffect struct {
	Kind   SideEffectKind `json:"kind"`
	Target string         `json:"target,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Outcome is what a strategy returns. A conflict leaves the active set
// only when Success is true and RequiresUserConfirmation is false.
type Outcome struct {
	Success                  bool
	ResolvedValue            any
	Strategy                 string
	Confidence               int // 0-100
	Explanation              string
	RequiresUserConfirmation bool
	SideEffects              []SideEffect
}

// Strategy is one (condition, resolver) pair in the chain. Strategies
// are pure: Applies and Resolve see only the conflict, so each is
// testable without constructing the engine.
type Strategy struct {
	Name     string
	Priority int
	Applies  func(Conflict) bool
	Resolve  func(Conflict) Outcome
}

// FromRecord decodes a persisted conflict into its evaluable form.
func FromRecord(rec store.ConflictRecord) (Conflict, error) {
	c := Conflict{
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Field:      rec.Field,
		FieldType:  FieldType(rec.FieldType),
	}
	if err := json.Unmarshal(rec.LocalValue, &c.LocalValue); err != nil {
		return Conflict{}, fmt.Errorf("conflict %d: decode local value: %w", rec.ID, err)
	}
	if err := json.Unmarshal(rec.RemoteValue, &c.RemoteValue); err != nil {
		return Conflict{}, fmt.Errorf("conflict %d: decode remote value: %w", rec.ID, err)
	}
	if rec.BaseValue != nil {
		c.HasBase = true
		if err := json.Unmarshal(rec.BaseValue, &c.BaseValue); err != nil {
			return Conflict{}, fmt.Errorf("conflict %d: decode base value: %w", rec.ID, err)
		}
	}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &c.Metadata); err != nil {
			return Conflict{}, fmt.Errorf("conflict %d: decode metadata: %w", rec.ID, err)
		}
	}
	return c, nil
}

// ToRecord encodes a conflict for persistence in the active set.
func ToRecord(c Conflict, detectedAt time.Time) (store.ConflictRecord, error) {
	local, err := json.Marshal(c.LocalValue)
	if err != nil {
		return store.ConflictRecord{}, fmt.Errorf("encode local value: %w", err)
	}
	remote, err := json.Marshal(c.RemoteValue)
	if err != nil {
		return store.ConflictRecord{}, fmt.Errorf("encode remote value: %w", err)
	}
	rec := store.ConflictRecord{
		EntityType:  c.EntityType,
		EntityID:    c.EntityID,
		Field:       c.Field,
		FieldType:   string(c.FieldType),
		LocalValue:  local,
		RemoteValue: remote,
		DetectedAt:  detectedAt,
	}
	if c.HasBase {
		base, err := json.Marshal(c.BaseValue)
		if err != nil {
			return store.ConflictRecord{}, fmt.Errorf("encode base value: %w", err)
		}
		rec.BaseValue = base
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return store.ConflictRecord{}, fmt.Errorf("encode metadata: %w", err)
	}
	rec.Metadata = metadata
	return rec, nil
}

// valuesEqual compares two decoded values by canonical JSON form, so
// int 10 and float64 10 from different decode paths compare equal.
func valuesEqual(a, b any) bool {
	ca, err := command.MarshalCanonical(a)
	if err != nil {
		return false
	}
	cb, err := command.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// asFloat extracts a numeric value from the decode forms JSON and
// hand-built test conflicts produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		// Monetary values sometimes travel as strings.
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// Package policy holds the declarative configuration that drives replay
// ordering, retry behavior, and conflict resolution: the entity priority
// table, backoff parameters, user authority ranking, and per-entity status
// precedence chains.
//
// A policy can be loaded from a CUE file (see Load) or taken wholesale
// from Default(). Loaded files override defaults field by field, so a
// policy file only needs to state what it changes.
package policy

import (
	"fmt"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

// Policy is the resolved configuration consumed by the queue, the sync
// engine, and the conflict resolver. Immutable after construction.
type Policy struct {
	// EntityPriorities orders replay across entity types.
	// Lower numbers replay first. Unlisted types get DefaultPriority.
	EntityPriorities map[string]int

	// DefaultPriority applies to entity types absent from the table.
	DefaultPriority int

	// MaxRetries is the number of replay failures before a command is
	// marked terminally failed.
	MaxRetries int

	// InitialDelay and MaxDelay bound the exponential backoff:
	// delay = min(InitialDelay * 2^retryCount, MaxDelay).
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// BatchSize groups commands per replay pass. A batch is a scheduling
	// convenience, not a transaction.
	BatchSize int

	// DebounceDelay is the anti-flap window after a connectivity-restored
	// signal. It doubles when FlapThreshold or more transitions occurred
	// within FlapWindow.
	DebounceDelay time.Duration
	FlapWindow    time.Duration
	FlapThreshold int

	// AuthorityRanks maps user roles to a numeric authority used by the
	// user-authority conflict strategy. Unknown roles get DefaultAuthority.
	AuthorityRanks   map[string]int
	DefaultAuthority int

	// StatusPrecedence maps entity type to its ordered status chain,
	// earliest state first. Used by the business-rule and
	// status-precedence strategies.
	StatusPrecedence map[string][]string

	// MonetaryScale is the number of decimal places of the smallest
	// currency unit. Monetary values equal after rounding to this scale
	// are treated as non-conflicting.
	MonetaryScale int
}

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		EntityPriorities: map[string]int{
			"customers": 0,
			"materials": 1,
			"products":  2,
			"sales":     3,
			"staff":     4,
			"schedules": 5,
		},
		DefaultPriority: command.DefaultPriority,
		MaxRetries:      3,
		InitialDelay:    1000 * time.Millisecond,
		MaxDelay:        32000 * time.Millisecond,
		BatchSize:       10,
		DebounceDelay:   5 * time.Second,
		FlapWindow:      30 * time.Second,
		FlapThreshold:   3,
		AuthorityRanks: map[string]int{
			"admin":      100,
			"manager":    80,
			"supervisor": 60,
			"employee":   40,
			"temp":       20,
		},
		DefaultAuthority: 40,
		StatusPrecedence: map[string][]string{
			"sales": {"pending", "confirmed", "preparing", "ready", "delivered", "cancelled"},
		},
		MonetaryScale: 2,
	}
}

// Priority returns the replay priority for an entity type.
func (p Policy) Priority(entityType string) int {
	if pr, ok := p.EntityPriorities[entityType]; ok {
		return pr
	}
	return p.DefaultPriority
}

// Authority returns the numeric authority for a user role.
func (p Policy) Authority(role string) int {
	if a, ok := p.AuthorityRanks[role]; ok {
		return a
	}
	return p.DefaultAuthority
}

// StatusRank returns the position of status in the entity's precedence
// chain, or -1 when the entity or status is unknown.
func (p Policy) StatusRank(entityType, status string) int {
	chain, ok := p.StatusPrecedence[entityType]
	if !ok {
		return -1
	}
	for i, s := range chain {
		if s == status {
			return i
		}
	}
	return -1
}

// Validate checks internal consistency. Called by Load; callers building
// a Policy by hand should call it too.
func (p Policy) Validate() error {
	if p.MaxRetries < 1 {
		return fmt.Errorf("maxRetries must be at least 1, got %d", p.MaxRetries)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initialDelay must be positive, got %v", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("maxDelay %v is below initialDelay %v", p.MaxDelay, p.InitialDelay)
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("batchSize must be at least 1, got %d", p.BatchSize)
	}
	if p.DefaultPriority < 0 {
		return fmt.Errorf("defaultPriority must be non-negative, got %d", p.DefaultPriority)
	}
	for entity, pr := range p.EntityPriorities {
		if pr < 0 {
			return fmt.Errorf("priority for %q must be non-negative, got %d", entity, pr)
		}
	}
	if p.MonetaryScale < 0 {
		return fmt.Errorf("monetaryScale must be non-negative, got %d", p.MonetaryScale)
	}
	return nil
}

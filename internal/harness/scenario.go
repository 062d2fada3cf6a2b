package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML-defined end-to-end test: a sequence of steps
// driven against a real store, queue, and engine with a manual clock, a
// scripted remote, and manual connectivity.
type Scenario struct {
	// Name uniquely identifies the scenario; golden files use it.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Online is the starting connectivity state. Defaults to true.
	Online *bool `yaml:"online,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final queue state and the event trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	// Enqueue records a mutation intent.
	Enqueue *EnqueueStep `yaml:"enqueue,omitempty"`

	// Online flips the connectivity source.
	Online *bool `yaml:"online,omitempty"`

	// Remote scripts upcoming remote-call outcomes, consumed in order.
	Remote []RemoteStep `yaml:"remote,omitempty"`

	// Sync forces one replay pass. Guard refusals (offline, nothing
	// pending) are not errors; they are part of the scenario.
	Sync bool `yaml:"sync,omitempty"`

	// Advance moves the manual clock forward, e.g. "1001ms", "5s".
	Advance string `yaml:"advance,omitempty"`
}

// EnqueueStep names the intent to queue.
type EnqueueStep struct {
	EntityType string         `yaml:"entityType"`
	EntityID   string         `yaml:"entityId"`
	Operation  string         `yaml:"operation"`
	Payload    map[string]any `yaml:"payload,omitempty"`
}

// RemoteStep scripts one remote outcome. A zero step scripts a plain
// success.
type RemoteStep struct {
	// Result is the success body.
	Result map[string]any `yaml:"result,omitempty"`

	// Code and Message script a coded remote failure (e.g. "23505").
	// Details optionally carries the remote record that won a
	// unique-constraint race, feeding the conflict resolver.
	Code    string         `yaml:"code,omitempty"`
	Message string         `yaml:"message,omitempty"`
	Details map[string]any `yaml:"details,omitempty"`

	// Network scripts a transport failure instead.
	Network bool `yaml:"network,omitempty"`
}

// Assertion validates the final state. Type selects which check runs.
type Assertion struct {
	// Type is one of stats, pending_order, event_count.
	Type string `yaml:"type"`

	// Stats: expected queue stats (stats assertion).
	Stats *StatsExpect `yaml:"stats,omitempty"`

	// Order: expected pending commands as entityType/entityId keys, in
	// replay order (pending_order assertion).
	Order []string `yaml:"order,omitempty"`

	// Event and Count: how many times an event type must appear in the
	// trace (event_count assertion).
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// StatsExpect mirrors the queue stats shape.
type StatsExpect struct {
	Total   int `yaml:"total"`
	Pending int `yaml:"pending"`
	Syncing int `yaml:"syncing"`
	Failed  int `yaml:"failed"`
}

// Assertion type names.
const (
	AssertStats        = "stats"
	AssertPendingOrder = "pending_order"
	AssertEventCount   = "event_count"
)

// LoadScenario reads and strictly parses a scenario file. Unknown YAML
// fields are rejected so typos fail loudly instead of silently skipping
// a step.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		set := 0
		if step.Enqueue != nil {
			set++
			if step.Enqueue.EntityType == "" || step.Enqueue.Operation == "" {
				return fmt.Errorf("step %d: enqueue needs entityType and operation", i)
			}
		}
		if step.Online != nil {
			set++
		}
		if len(step.Remote) > 0 {
			set++
		}
		if step.Sync {
			set++
		}
		if step.Advance != "" {
			set++
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("step %d: bad advance duration: %w", i, err)
			}
		}
		if set != 1 {
			return fmt.Errorf("step %d: exactly one action per step, got %d", i, set)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertStats:
			if a.Stats == nil {
				return fmt.Errorf("assertion %d: stats block is required", i)
			}
		case AssertPendingOrder:
		case AssertEventCount:
			if a.Event == "" {
				return fmt.Errorf("assertion %d: event name is required", i)
			}
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}

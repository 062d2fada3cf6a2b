package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

// snapshot flattens a result into plain maps for canonical JSON. Only
// the fields relevant to each trace event type are emitted, so golden
// files stay small and stable.
func snapshot(name string, result *Result) map[string]any {
	trace := make([]any, len(result.Trace))
	for i, te := range result.Trace {
		m := map[string]any{"type": te.Type}
		if te.ID != 0 {
			m["id"] = te.ID
		}
		if te.Entity != "" {
			m["entity"] = te.Entity
		}
		if te.Op != "" {
			m["op"] = te.Op
		}
		if te.ErrorKind != "" {
			m["error_kind"] = te.ErrorKind
		}
		if te.Reason != "" {
			m["reason"] = te.Reason
		}
		switch te.Type {
		case "sync_started":
			m["count"] = te.Count
		case "sync_completed":
			m["synced"] = te.Synced
			m["failed"] = te.Failed
		}
		trace[i] = m
	}

	return map[string]any{
		"scenario": name,
		"stats": map[string]any{
			"total":   result.Stats.Total,
			"pending": result.Stats.Pending,
			"syncing": result.Stats.Syncing,
			"failed":  result.Stats.Failed,
		},
		"trace": trace,
	}
}

// RunWithGolden executes a scenario, verifies its assertions, and
// compares the canonical-JSON trace snapshot against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if err := result.Verify(scenario.Assertions); err != nil {
		t.Errorf("scenario %s: %v", scenario.Name, err)
	}

	data, err := command.MarshalCanonical(snapshot(scenario.Name, result))
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result
}

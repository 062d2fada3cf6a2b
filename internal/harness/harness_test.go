package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return s
}

func TestScenario_EnqueueDedup(t *testing.T) {
	s := loadTestScenario(t, "enqueue_dedup.yaml")
	result, err := Run(s)
	require.NoError(t, err)
	require.NoError(t, result.Verify(s.Assertions))
}

func TestScenario_PriorityOrder(t *testing.T) {
	s := loadTestScenario(t, "priority_order.yaml")
	result, err := Run(s)
	require.NoError(t, err)
	require.NoError(t, result.Verify(s.Assertions))
}

func TestScenario_ConflictResolution(t *testing.T) {
	s := loadTestScenario(t, "conflict_resolution.yaml")
	result, err := Run(s)
	require.NoError(t, err)
	require.NoError(t, result.Verify(s.Assertions))
}

func TestScenario_OfflineReplay_Golden(t *testing.T) {
	result := RunWithGolden(t, loadTestScenario(t, "offline_replay.yaml"))

	// The trace ends with a completed pass that drained both commands.
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "sync_completed", last.Type)
	assert.Equal(t, 2, last.Synced)
	assert.Equal(t, 0, last.Failed)
}

func TestScenario_RetryBackoff_Golden(t *testing.T) {
	result := RunWithGolden(t, loadTestScenario(t, "retry_backoff.yaml"))

	var kinds []string
	for _, te := range result.Trace {
		if te.Type == "command_failed" {
			kinds = append(kinds, te.ErrorKind)
		}
	}
	assert.Equal(t, []string{"network"}, kinds)
}

func TestVerify_ReportsFailures(t *testing.T) {
	result := &Result{Trace: []TraceEvent{{Type: "command_enqueued"}}}

	err := result.Verify([]Assertion{{Type: AssertEventCount, Event: "command_enqueued", Count: 2}})
	assert.Error(t, err)

	err = result.Verify([]Assertion{{Type: AssertEventCount, Event: "command_enqueued", Count: 1}})
	assert.NoError(t, err)
}

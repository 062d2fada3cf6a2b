package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_EmptyQueue(t *testing.T) {
	db := tempDB(t)

	out, err := executeCLI("status", "--db", db, "--format", "json")
	require.NoError(t, err)

	result := decodeResponse[statusResult](t, out)
	assert.Equal(t, 0, result.Stats.Total)
	assert.Empty(t, result.Pending)
}

func TestStatus_CountsAndReplayOrder(t *testing.T) {
	db := tempDB(t)

	// sales has a lower priority than customers in the default policy,
	// so the customer create replays first despite enqueue order.
	_, err := executeCLI("enqueue", "sales", "create",
		"--db", db, "--id", "s1", "--payload", `{"total":10}`)
	require.NoError(t, err)
	_, err = executeCLI("enqueue", "customers", "create",
		"--db", db, "--id", "c1", "--payload", `{"name":"ana"}`)
	require.NoError(t, err)

	out, err := executeCLI("status", "--db", db, "--pending", "--format", "json")
	require.NoError(t, err)

	result := decodeResponse[statusResult](t, out)
	assert.Equal(t, 2, result.Stats.Total)
	assert.Equal(t, 2, result.Stats.Pending)
	assert.Equal(t, 0, result.Stats.Failed)

	require.Len(t, result.Pending, 2)
	assert.Equal(t, "customers", result.Pending[0].EntityType)
	assert.Equal(t, "sales", result.Pending[1].EntityType)
}

func TestStatus_TextOutput(t *testing.T) {
	db := tempDB(t)

	_, err := executeCLI("enqueue", "materials", "create",
		"--db", db, "--id", "m1", "--payload", `{"name":"flour"}`)
	require.NoError(t, err)

	out, err := executeCLI("status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "total 1")
	assert.Contains(t, out, "pending 1")
}

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "gsync", cmd.Use)
	assert.Contains(t, cmd.Long, "offline")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"enqueue", "sync", "status", "conflicts"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	policyFlag := cmd.PersistentFlags().Lookup("policy")
	require.NotNil(t, policyFlag)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)
}

func TestEnqueueCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	enqueueCmd, _, err := cmd.Find([]string{"enqueue"})
	require.NoError(t, err)

	idFlag := enqueueCmd.Flags().Lookup("id")
	require.NotNil(t, idFlag)

	payloadFlag := enqueueCmd.Flags().Lookup("payload")
	require.NotNil(t, payloadFlag)
	assert.Equal(t, "{}", payloadFlag.DefValue)
}

func TestSyncCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)

	endpointFlag := syncCmd.Flags().Lookup("endpoint")
	require.NotNil(t, endpointFlag)
}

func TestConflictsSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	listCmd, _, err := cmd.Find([]string{"conflicts", "list"})
	require.NoError(t, err)
	assert.Equal(t, "list", listCmd.Name())

	resolveCmd, _, err := cmd.Find([]string{"conflicts", "resolve"})
	require.NoError(t, err)
	assert.Equal(t, "resolve", resolveCmd.Name())

	preferFlag := resolveCmd.Flags().Lookup("prefer")
	require.NotNil(t, preferFlag)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "missing flag")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "sync failed", assert.AnError)))
}

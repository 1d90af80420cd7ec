package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cosim", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "validate", "test", "trace", "replay"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"board", "log", "db", "max-ticks", "stop-when-done", "echo"} {
		assert.NotNil(t, run.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "0", run.Flags().Lookup("max-ticks").DefValue)
}

func TestTraceAndReplayFlags(t *testing.T) {
	cmd := NewRootCommand()

	trace, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)
	for _, name := range []string{"db", "run", "peripheral", "event"} {
		assert.NotNil(t, trace.Flags().Lookup(name), "trace flag %s", name)
	}

	replay, _, err := cmd.Find([]string{"replay"})
	require.NoError(t, err)
	for _, name := range []string{"db", "run", "script"} {
		assert.NotNil(t, replay.Flags().Lookup(name), "replay flag %s", name)
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	script, _ := echoFixture(t, 'A')
	_, _, err := execute(t, "--format", "invalid", "validate", script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

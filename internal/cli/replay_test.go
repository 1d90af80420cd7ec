package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/payload"
	"github.com/roach88/cosim/internal/store"
	"github.com/roach88/cosim/internal/testutil"
)

func TestReplay_Identical(t *testing.T) {
	script, board := echoFixture(t, 'h', 'i')
	db := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, db, "run-1", script, board)

	out, _, err := execute(t, "replay", "--db", db, "--run", "run-1", "--script", script)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1: 2 recorded, 2 replayed")
	assert.Contains(t, out, "✓ Replay identical")
}

func TestReplay_FailedRun(t *testing.T) {
	script, _ := echoFixture(t, 'A')
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	failing := testutil.WriteFile(t, dir, "spi.yaml", "spi:\n  - command: 0x42\n")

	root := &RootOptions{Format: "text"}
	cmd := NewRunCommand(root)
	cmd.SetOut(&testutil.Recorder{})
	cmd.SetErr(&testutil.Recorder{})
	opts := &RunOptions{RootOptions: root, Board: failing, Database: db, IDGenerator: store.NewFixedGenerator("run-bad")}
	require.Error(t, runSimulation(opts, script, cmd))

	_, _, err := execute(t, "replay", "--db", db, "--run", "run-bad", "--script", script)
	require.NoError(t, err)
}

func TestReplay_DigestMismatch(t *testing.T) {
	script, board := echoFixture(t, 'h')
	other, _ := echoFixture(t, 'x')
	db := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, db, "run-1", script, board)

	out, _, err := execute(t, "--format", "json", "replay", "--db", db, "--run", "run-1", "--script", other)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeDigestChanged, resp.Error.Code)
}

func TestReplay_Diverged(t *testing.T) {
	script, board := echoFixture(t, 'h')
	db := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, db, "run-1", script, board)

	st, err := store.Open(db)
	require.NoError(t, err)
	extra := ledger.Entry{Timestamp: 90, Peripheral: "uart", Event: "tx", Payload: payload.Int(0)}
	require.NoError(t, st.AppendEvent(context.Background(), "run-1", 1, extra))
	require.NoError(t, st.Close())

	out, _, err := execute(t, "replay", "--db", db, "--run", "run-1", "--script", script)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Logs differ at entry 1")
	assert.Contains(t, out, "recorded: @90 uart/tx 0")
	assert.NotContains(t, out, "replayed:")

	out, _, err = execute(t, "--format", "json", "replay", "--db", db, "--run", "run-1", "--script", script)
	require.Error(t, err)
	var cmp store.Comparison
	resp := decodeResponse(t, out, &cmp)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeNotIdentical, resp.Error.Code)
	assert.Equal(t, 1, cmp.FirstDiff)
	assert.Equal(t, 2, cmp.Recorded)
	assert.Equal(t, 1, cmp.Replayed)
}

func TestReplay_NotFound(t *testing.T) {
	script, board := echoFixture(t, 'h')
	db := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, db, "run-1", script, board)

	_, _, err := execute(t, "replay", "--db", db, "--run", "nope", "--script", script)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "replay", "--db", db, "--run", "run-1")
	require.Error(t, err)
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cosim/internal/testutil"
)

const fastBoard = "baud_div: 8\n"

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut testutil.Recorder
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// echoFixture writes an echo script for data and a fast board into a temp
// directory.
func echoFixture(t *testing.T, data ...byte) (scriptPath, boardPath string) {
	t.Helper()
	dir := t.TempDir()
	return testutil.WriteFile(t, dir, "echo.json", testutil.EchoScript(data...)),
		testutil.WriteFile(t, dir, "board.yaml", fastBoard)
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}

func harnessTestdata(t *testing.T) string {
	t.Helper()
	dir := filepath.Join("..", "harness", "testdata")
	_, err := os.Stat(dir)
	require.NoError(t, err)
	return dir
}

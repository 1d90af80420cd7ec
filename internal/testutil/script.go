package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// EchoScript returns a JSON script that sends each byte to the UART,
// waits for each echo in order, then exits.
//
//	EchoScript('h', 'i')
//	// action uart/tx 104, action uart/tx 105,
//	// wait uart/tx 104, wait uart/tx 105, action sim/exit
func EchoScript(data ...byte) string {
	var cmds []string
	for _, b := range data {
		cmds = append(cmds, command("action", "uart", "tx", fmt.Sprint(b)))
	}
	for _, b := range data {
		cmds = append(cmds, command("wait", "uart", "tx", fmt.Sprint(b)))
	}
	cmds = append(cmds, command("action", "sim", "exit", "null"))
	return Script(cmds...)
}

// Script wraps raw command objects in a script document.
func Script(cmds ...string) string {
	return "{\n  \"commands\": [\n    " + strings.Join(cmds, ",\n    ") + "\n  ]\n}\n"
}

func command(kind, periph, event, payload string) string {
	return fmt.Sprintf(`{ "type": %q, "peripheral": %q, "event": %q, "payload": %s }`, kind, periph, event, payload)
}

// Action returns a raw action command with a JSON payload.
func Action(periph, event, payload string) string {
	return command("action", periph, event, payload)
}

// Wait returns a raw wait command with a JSON payload.
func Wait(periph, event, payload string) string {
	return command("wait", periph, event, payload)
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

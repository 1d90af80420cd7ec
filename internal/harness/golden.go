package harness

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cosim/internal/payload"
)

// Snapshot renders the deterministic part of a result as canonical JSON:
// the trace, flash reads, stop condition, script summary, and error code.
func Snapshot(name string, res *Result) ([]byte, error) {
	events := make(payload.Array, len(res.Trace))
	for i, e := range res.Trace {
		p := e.Payload
		if p == nil {
			p = payload.Null{}
		}
		events[i] = payload.Object{
			"timestamp":  payload.Int(e.Timestamp),
			"peripheral": payload.String(e.Peripheral),
			"event":      payload.String(e.Event),
			"payload":    p,
		}
	}

	reads := make(payload.Array, len(res.Reads))
	for i, r := range res.Reads {
		reads[i] = payload.Object{
			"command": payload.Int(r.Command),
			"address": payload.Int(r.Address),
			"data":    payload.String(hex.EncodeToString(r.Data)),
		}
	}

	snap := payload.Object{
		"name":   payload.String(name),
		"events": events,
		"reads":  reads,
		"stop": payload.Object{
			"reason":    payload.String(res.Stop.Reason),
			"ticks":     payload.Int(res.Stop.Ticks),
			"timestamp": payload.Int(res.Stop.Timestamp),
		},
		"summary": payload.Object{
			"total":     payload.Int(res.Summary.Total),
			"cursor":    payload.Int(res.Summary.Cursor),
			"unmatched": payload.Int(res.Summary.Unmatched),
			"events":    payload.Int(res.Summary.Events),
		},
	}
	if res.ErrorCode != "" {
		snap["error"] = payload.String(res.ErrorCode)
	}
	return payload.Marshal(snap)
}

// GoldenPath returns the golden file for a scenario file:
// <dir>/golden/<base name>.golden.
func GoldenPath(scenarioPath string) string {
	dir := filepath.Dir(scenarioPath)
	name := strings.TrimSuffix(filepath.Base(scenarioPath), filepath.Ext(scenarioPath))
	return filepath.Join(dir, "golden", name+".golden")
}

// WriteGolden writes data to path, creating the golden directory.
func WriteGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// ErrNoGolden reports a missing golden file.
var ErrNoGolden = errors.New("golden file not found")

// CompareGolden reports whether data equals the golden file at path.
func CompareGolden(path string, data []byte) (bool, error) {
	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%w: %s (run with --update to create)", ErrNoGolden, path)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	return bytes.Equal(want, data), nil
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(s)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, s.Name, res); err != nil {
		return res, err
	}
	return res, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()

	data, err := Snapshot(name, res)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/payload"
	"github.com/roach88/cosim/internal/testutil"
)

// createTestStore creates a new store in a temp directory with a fixed
// clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = testutil.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), 0).Now
	return s
}

// createTestRun inserts a running run with minimal fields.
func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateRun(context.Background(), Run{
		ID:           id,
		ScriptPath:   "script.json",
		ScriptDigest: "digest-" + id,
	}))
}

func entry(ts uint64, periph, event string, p payload.Value) ledger.Entry {
	return ledger.Entry{Timestamp: ts, Peripheral: periph, Event: event, Payload: p}
}

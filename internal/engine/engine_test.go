package engine

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/payload"
	"github.com/roach88/cosim/internal/script"
)

func act(periph, event string, p payload.Value) script.Command {
	return script.Command{Kind: script.Action, Peripheral: periph, Event: event, Payload: p}
}

func wait(periph, event string, p payload.Value) script.Command {
	return script.Command{Kind: script.Wait, Peripheral: periph, Event: event, Payload: p}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestNew_PrefetchesLeadingActions(t *testing.T) {
	e := New([]script.Command{
		act("uart", "tx", payload.Int(0x58)),
		act("flash", "load", payload.String("fw.bin")),
		wait("uart", "tx", payload.Int(0x58)),
		act("uart", "tx", payload.Int(0x59)),
	}, nil, WithLogger(quietLogger()))

	assert.Equal(t, 2, e.Cursor(), "cursor should stop on the first wait")
	assert.Equal(t, 1, e.queue.len("uart"))
	assert.Equal(t, 1, e.queue.len("flash"))

	got := e.PendingActions("uart")
	require.Len(t, got, 1)
	assert.Equal(t, Action{Event: "tx", Payload: payload.Int(0x58)}, got[0])
	assert.Empty(t, e.PendingActions("uart"), "actions are delivered once")
}

func TestNew_AllActions(t *testing.T) {
	e := New([]script.Command{
		act("uart", "tx", payload.Int(1)),
		act("uart", "tx", payload.Int(2)),
	}, nil, WithLogger(quietLogger()))

	assert.True(t, e.Done())
	assert.Len(t, e.PendingActions("uart"), 2)
}

func TestNew_EmptyScript(t *testing.T) {
	e := New(nil, nil, WithLogger(quietLogger()))
	assert.True(t, e.Done())
	assert.Equal(t, 0, e.Len())

	s, err := e.Close()
	require.NoError(t, err)
	assert.Equal(t, Summary{}, s)
	assert.True(t, s.Complete())
}

func TestEmit_MatchAdvancesAndPrefetches(t *testing.T) {
	sink := &ledger.Memory{}
	e := New([]script.Command{
		wait("uart", "tx", payload.Int(0x58)),
		act("uart", "tx", payload.Int(0x59)),
		act("sim", "exit", payload.Null{}),
		wait("uart", "rx", payload.Int(0x59)),
	}, sink, WithLogger(quietLogger()))

	require.Equal(t, 0, e.Cursor())
	assert.Empty(t, e.PendingActions("uart"))

	require.NoError(t, e.Emit(10, "uart", "tx", payload.Int(0x58)))
	assert.Equal(t, 3, e.Cursor())
	assert.Len(t, e.PendingActions("uart"), 1)
	assert.Len(t, e.PendingActions("sim"), 1)

	require.Len(t, sink.Entries, 1)
	assert.Equal(t, ledger.Entry{Timestamp: 10, Peripheral: "uart", Event: "tx", Payload: payload.Int(0x58)}, sink.Entries[0])
}

func TestEmit_MismatchIsLoggedOnly(t *testing.T) {
	sink := &ledger.Memory{}
	e := New([]script.Command{
		wait("uart", "tx", payload.Int(0x58)),
	}, sink, WithLogger(quietLogger()))

	tests := []struct {
		name   string
		periph string
		event  string
		p      payload.Value
	}{
		{"wrong peripheral", "flash", "tx", payload.Int(0x58)},
		{"wrong event", "uart", "rx", payload.Int(0x58)},
		{"wrong payload", "uart", "tx", payload.Int(0x59)},
		{"payload type differs", "uart", "tx", payload.String("X")},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, e.Emit(uint64(i), tt.periph, tt.event, tt.p))
			assert.Equal(t, 0, e.Cursor())
		})
	}
	assert.Len(t, sink.Entries, len(tests))
}

func TestEmit_AfterScriptEnd(t *testing.T) {
	sink := &ledger.Memory{}
	e := New(nil, sink, WithLogger(quietLogger()))

	require.NoError(t, e.Emit(0, "uart", "rx", payload.Int(1)))
	require.NoError(t, e.Emit(0, "uart", "rx", payload.Int(2)))
	assert.Len(t, sink.Entries, 2, "events are logged even with no script left")
}

func TestEmit_NilPayloadIsNull(t *testing.T) {
	sink := &ledger.Memory{}
	e := New([]script.Command{wait("flash", "ready", payload.Null{})}, sink, WithLogger(quietLogger()))

	require.NoError(t, e.Emit(3, "flash", "ready", nil))
	assert.True(t, e.Done())
	assert.Equal(t, payload.Null{}, sink.Entries[0].Payload)
}

func TestEmit_TimestampOrder(t *testing.T) {
	e := New(nil, &ledger.Memory{}, WithLogger(quietLogger()))

	require.NoError(t, e.Emit(5, "uart", "rx", payload.Int(1)))
	require.NoError(t, e.Emit(5, "uart", "rx", payload.Int(2)), "equal timestamps are allowed")

	err := e.Emit(4, "uart", "rx", payload.Int(3))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeTimestampOrder))
	assert.Equal(t, 2, e.Events())
}

type failingSink struct{ appendErr, closeErr error }

func (f failingSink) Append(ledger.Entry) error { return f.appendErr }
func (f failingSink) Close() error              { return f.closeErr }

func TestEmit_SinkFailure(t *testing.T) {
	e := New([]script.Command{wait("uart", "tx", payload.Int(1))},
		failingSink{appendErr: errors.New("disk full")}, WithLogger(quietLogger()))

	err := e.Emit(0, "uart", "tx", payload.Int(1))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeLogWrite))
	assert.Equal(t, 0, e.Cursor(), "a failed append must not advance the script")
}

func TestClose_ReportsUnmatched(t *testing.T) {
	var logs bytes.Buffer
	sink := &ledger.Memory{}
	e := New([]script.Command{
		act("uart", "tx", payload.Int(0x41)),
		wait("uart", "tx", payload.Int(0x41)),
		wait("uart", "rx", payload.Int(0x41)),
	}, sink, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	require.NoError(t, e.Emit(1, "uart", "tx", payload.Int(0x41)))

	s, err := e.Close()
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 3, Cursor: 2, Unmatched: 1, Events: 1}, s)
	assert.False(t, s.Complete())
	assert.True(t, sink.Closed)
	assert.Contains(t, logs.String(), "not all script commands were satisfied")
	assert.Contains(t, logs.String(), "remaining=1")

	again, err := e.Close()
	require.NoError(t, err)
	assert.Equal(t, s, again)

	err = e.Emit(2, "uart", "rx", payload.Int(0x41))
	assert.True(t, IsCode(err, ErrCodeLogWrite), "emit after close: %v", err)
	assert.Len(t, sink.Entries, 1)
}

func TestClose_SinkFailure(t *testing.T) {
	e := New(nil, failingSink{closeErr: errors.New("flush failed")}, WithLogger(quietLogger()))
	_, err := e.Close()
	assert.True(t, IsCode(err, ErrCodeLogWrite))
}

func TestLoadScript_Codes(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadScript(filepath.Join(dir, "missing.json"))
	assert.True(t, IsCode(err, ErrCodeScriptRead))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"commands": [{"type": "jump"}]}`), 0o644))
	_, err = LoadScript(bad)
	assert.True(t, IsCode(err, ErrCodeScriptParse))

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"commands": [{"type": "action", "peripheral": "uart", "event": "tx", "payload": 88}]}`), 0o644))
	cmds, err := LoadScript(good)
	require.NoError(t, err)
	assert.Equal(t, []script.Command{act("uart", "tx", payload.Int(88))}, cmds)
}

package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosim/internal/board"
	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/payload"
)

func entry(ts uint64, periph, event string, p payload.Value) ledger.Entry {
	return ledger.Entry{Timestamp: ts, Peripheral: periph, Event: event, Payload: p}
}

func sampleTrace() []ledger.Entry {
	return []ledger.Entry{
		entry(10, "uart", "tx", payload.Int('a')),
		entry(20, "flash", "busy", payload.Null{}),
		entry(30, "uart", "tx", payload.Int('b')),
		entry(40, "uart", "tx", payload.Int('a')),
	}
}

func TestEventPattern_Matches(t *testing.T) {
	e := entry(1, "uart", "tx", payload.Int(7))

	assert.True(t, EventPattern{Peripheral: "uart", Event: "tx"}.Matches(e))
	assert.True(t, EventPattern{Peripheral: "uart", Event: "tx", Payload: payload.Int(7)}.Matches(e))
	assert.False(t, EventPattern{Peripheral: "uart", Event: "tx", Payload: payload.Int(8)}.Matches(e))
	assert.False(t, EventPattern{Peripheral: "uart", Event: "tx", Payload: payload.Null{}}.Matches(e))
	assert.False(t, EventPattern{Peripheral: "flash", Event: "tx"}.Matches(e))
}

func TestAssertEventContains(t *testing.T) {
	trace := sampleTrace()

	ok := Assertion{Type: AssertEventContains, EventPattern: EventPattern{Peripheral: "flash", Event: "busy"}}
	assert.NoError(t, assertEventContains(trace, ok))

	missing := Assertion{Type: AssertEventContains, EventPattern: EventPattern{Peripheral: "uart", Event: "tx", Payload: payload.Int('z')}}
	err := assertEventContains(trace, missing)
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertEventContains, ae.Type)
	assert.Contains(t, err.Error(), "uart/tx 122")
	assert.Contains(t, err.Error(), "[4] @40 uart/tx 97")
}

func TestAssertEventOrder(t *testing.T) {
	trace := sampleTrace()
	tx := func(c byte) EventPattern {
		return EventPattern{Peripheral: "uart", Event: "tx", Payload: payload.Int(c)}
	}

	tests := []struct {
		name   string
		events []EventPattern
		ok     bool
	}{
		{"in order", []EventPattern{tx('a'), tx('b')}, true},
		{"non adjacent", []EventPattern{tx('a'), tx('a')}, true},
		{"later repeat", []EventPattern{tx('b'), tx('a')}, true},
		{"reversed", []EventPattern{tx('b'), tx('a'), tx('b')}, false},
		{"missing", []EventPattern{tx('c')}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertEventOrder(trace, Assertion{Type: AssertEventOrder, Events: tt.events})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertEventCount(t *testing.T) {
	trace := sampleTrace()

	a := Assertion{Type: AssertEventCount, EventPattern: EventPattern{Peripheral: "uart", Event: "tx"}, Count: 3}
	assert.NoError(t, assertEventCount(trace, a))

	a.Payload = payload.Int('a')
	a.Count = 2
	assert.NoError(t, assertEventCount(trace, a))

	a.Count = 1
	err := assertEventCount(trace, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 1 occurrences")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertScriptComplete(t *testing.T) {
	assert.NoError(t, assertScriptComplete(engine.Summary{Total: 2, Cursor: 2}, nil))

	err := assertScriptComplete(engine.Summary{Total: 3, Cursor: 1, Unmatched: 2}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cursor at 1, 2 unmatched")
}

func TestAssertFlashRead(t *testing.T) {
	reads := []board.Read{{Command: 0x03, Data: []byte{1, 2}}}

	assert.NoError(t, assertFlashRead(reads, Assertion{Transaction: 0, Data: []byte{1, 2}}))

	err := assertFlashRead(reads, Assertion{Transaction: 0, Data: []byte{1, 3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read 01 02")

	err = assertFlashRead(reads, Assertion{Transaction: 1, Data: []byte{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 1 transactions completed")
}

func TestEvaluateAssertions(t *testing.T) {
	res := NewResult()
	res.Trace = sampleTrace()
	res.Summary = engine.Summary{Total: 1, Cursor: 1}

	errs := EvaluateAssertions(res, []Assertion{
		{Type: AssertScriptComplete},
		{Type: AssertEventCount, EventPattern: EventPattern{Peripheral: "flash", Event: "busy"}, Count: 1},
		{Type: AssertEventContains, EventPattern: EventPattern{Peripheral: "uart", Event: "rx"}},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "event_contains")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosim/internal/payload"
)

func sampleEntries() []Entry {
	return []Entry{
		{Timestamp: 10, Peripheral: "uart", Event: "tx", Payload: payload.Int(0x58)},
		{Timestamp: 10, Peripheral: "uart", Event: "tx", Payload: payload.Int(0x0A)},
		{Timestamp: 42, Peripheral: "flash", Event: "note", Payload: payload.Object{"b": payload.String("x"), "a": payload.Array{payload.Bool(true)}}},
	}
}

func TestWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, e := range sampleEntries()[:2] {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	want := "{\n\"events\": [\n" +
		`{ "timestamp": 10, "peripheral": "uart", "event": "tx", "payload": 88 },` + "\n" +
		`{ "timestamp": 10, "peripheral": "uart", "event": "tx", "payload": 10 }` +
		"\n]\n}\n"
	assert.Equal(t, want, buf.String())
	assert.True(t, json.Valid(buf.Bytes()))
	assert.Equal(t, 2, w.Count())
}

func TestWriterEmptyDocumentIsValid(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")

	assert.True(t, json.Valid(buf.Bytes()))
	log, err := Read(&buf)
	require.NoError(t, err)
	assert.Empty(t, log.Entries)
	assert.False(t, log.Truncated)
}

func TestWriterAppendAfterClose(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.Append(sampleEntries()[0]))
}

type failingWriter struct{ after int }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.after == 0 {
		return 0, errors.New("disk full")
	}
	f.after--
	return len(p), nil
}

func TestWriterPropagatesErrors(t *testing.T) {
	_, err := NewWriter(&failingWriter{after: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write log header")

	w, err := NewWriter(&failingWriter{after: 1})
	require.NoError(t, err)
	err = w.Append(sampleEntries()[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	w, err := Create(path)
	require.NoError(t, err)
	for _, e := range sampleEntries() {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	log, err := ReadFile(path)
	require.NoError(t, err)
	assert.False(t, log.Truncated)
	require.Len(t, log.Entries, 3)
	assert.Equal(t, -1, Compare(sampleEntries(), log.Entries))
}

func TestReadTruncatedPrefix(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, e := range sampleEntries() {
		require.NoError(t, w.Append(e))
	}
	// No Close: the footer is never written, as after a crash.
	full := buf.String()

	log, err := Read(strings.NewReader(full))
	require.NoError(t, err)
	assert.True(t, log.Truncated)
	assert.Len(t, log.Entries, 3)

	// Cut in the middle of the last entry.
	cut := full[:len(full)-10]
	log, err = Read(strings.NewReader(cut))
	require.NoError(t, err)
	assert.True(t, log.Truncated)
	assert.Len(t, log.Entries, 2)

	// Header only.
	log, err = Read(strings.NewReader("{\n\"events\": [\n"))
	require.NoError(t, err)
	assert.True(t, log.Truncated)
	assert.Empty(t, log.Entries)
}

func TestReadRejectsMalformed(t *testing.T) {
	_, err := Read(strings.NewReader(`["not", "an", "object"]`))
	assert.Error(t, err)

	_, err = Read(strings.NewReader(`{"events": [{"peripheral": "uart"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing timestamp")

	_, err = Read(strings.NewReader(`{"events": [{"timestamp": 1, "payload": 1.5}]}`))
	assert.Error(t, err)
}

func TestReadSkipsUnknownFields(t *testing.T) {
	log, err := Read(strings.NewReader(`{"version": 1, "events": [{"timestamp": 3, "peripheral": "uart", "event": "tx"}]}`))
	require.NoError(t, err)
	require.Len(t, log.Entries, 1)
	assert.Equal(t, payload.Null{}, log.Entries[0].Payload)
}

func TestCompare(t *testing.T) {
	a := sampleEntries()
	b := sampleEntries()
	assert.Equal(t, -1, Compare(a, b))

	b[1].Payload = payload.Int(0x0B)
	assert.Equal(t, 1, Compare(a, b))

	assert.Equal(t, 2, Compare(a, a[:2]))
}

func TestTee(t *testing.T) {
	var m1, m2 Memory
	s := Tee(&m1, &m2, Discard)
	for _, e := range sampleEntries() {
		require.NoError(t, s.Append(e))
	}
	require.NoError(t, s.Close())

	assert.Len(t, m1.Entries, 3)
	assert.Len(t, m2.Entries, 3)
	assert.True(t, m1.Closed)
	assert.True(t, m2.Closed)
}

func TestCreateFailsOnMissingDir(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "events.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEntryString(t *testing.T) {
	assert.Equal(t, "@10 uart/tx 88", sampleEntries()[0].String())
}

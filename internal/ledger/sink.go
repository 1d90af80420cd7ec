package ledger

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Sink receives log entries in emission order.
type Sink interface {
	Append(e Entry) error
	Close() error
}

const (
	logHeader = "{\n\"events\": [\n"
	logFooter = "\n]\n}\n"
)

// Writer streams entries to an io.Writer as a JSON document.
// Each entry is written with a single Write call.
type Writer struct {
	w      io.Writer
	closer io.Closer
	count  int
	closed bool
}

// NewWriter writes the document header to w and returns a Writer.
// If w is also an io.Closer it is closed by Close.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := io.WriteString(w, logHeader); err != nil {
		return nil, fmt.Errorf("write log header: %w", err)
	}
	lw := &Writer{w: w}
	if c, ok := w.(io.Closer); ok {
		lw.closer = c
	}
	return lw, nil
}

// Create truncates or creates the file at path and returns a Writer on it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Append writes e, preceded by a separator when it is not the first entry.
func (w *Writer) Append(e Entry) error {
	if w.closed {
		return errors.New("append to closed event log")
	}
	line, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("event log entry %d: %w", w.count, err)
	}
	if w.count > 0 {
		line = append([]byte(",\n"), line...)
	}
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write event log entry %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of entries written.
func (w *Writer) Count() int { return w.count }

// Close writes the closing brackets and closes the underlying writer.
// Calling Close twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := io.WriteString(w.w, logFooter)
	if err != nil {
		err = fmt.Errorf("write log footer: %w", err)
	}
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	return err
}

// Memory keeps entries in a slice. Used by the harness and in tests.
type Memory struct {
	Entries []Entry
	Closed  bool
}

// Append implements Sink.
func (m *Memory) Append(e Entry) error {
	m.Entries = append(m.Entries, e)
	return nil
}

// Close implements Sink.
func (m *Memory) Close() error {
	m.Closed = true
	return nil
}

// Tee fans every entry out to all sinks in order. Append stops at the
// first failing sink; Close closes all of them and joins the errors.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Append(e Entry) error {
	for _, s := range t {
		if err := s.Append(e); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(Entry) error { return nil }
func (discard) Close() error       { return nil }

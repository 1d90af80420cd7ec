package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/cosim/internal/payload"
)

// Log is the parsed content of an event log document.
type Log struct {
	Entries []Entry
	// Truncated is true when the document ended before its closing
	// brackets, e.g. after a crashed run.
	Truncated bool
}

type rawEntry struct {
	Timestamp  *uint64         `json:"timestamp"`
	Peripheral string          `json:"peripheral"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}

// ReadFile reads the event log at path.
func ReadFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses an event log document. A document cut short at any point
// yields the complete entries before the cut and Truncated set.
func Read(r io.Reader) (*Log, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	log := &Log{Entries: []Entry{}}

	truncated := func(err error) bool {
		return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
	}

	if err := expectDelim(dec, '{'); err != nil {
		if truncated(err) {
			log.Truncated = true
			return log, nil
		}
		return nil, err
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if truncated(err) {
				log.Truncated = true
				return log, nil
			}
			return nil, fmt.Errorf("read event log: %w", err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return log, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("read event log: unexpected token %v", tok)
		}
		if key != "events" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				if truncated(err) {
					log.Truncated = true
					return log, nil
				}
				return nil, fmt.Errorf("read event log: field %q: %w", key, err)
			}
			continue
		}

		done, err := readEvents(dec, log)
		if err != nil {
			if truncated(err) {
				log.Truncated = true
				return log, nil
			}
			return nil, err
		}
		if !done {
			log.Truncated = true
			return log, nil
		}
	}
}

// readEvents consumes the events array. It returns done=false if the
// array did not close.
func readEvents(dec *json.Decoder, log *Log) (bool, error) {
	if err := expectDelim(dec, '['); err != nil {
		return false, err
	}
	for dec.More() {
		var raw rawEntry
		if err := dec.Decode(&raw); err != nil {
			return false, err
		}
		e, err := raw.entry()
		if err != nil {
			return false, fmt.Errorf("event %d: %w", len(log.Entries), err)
		}
		log.Entries = append(log.Entries, e)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return false, err
	}
	return true, nil
}

func (r rawEntry) entry() (Entry, error) {
	if r.Timestamp == nil {
		return Entry{}, errors.New("missing timestamp")
	}
	var (
		v   payload.Value = payload.Null{}
		err error
	)
	if len(r.Payload) > 0 {
		v, err = payload.Unmarshal(r.Payload)
		if err != nil {
			return Entry{}, fmt.Errorf("payload: %w", err)
		}
	}
	return Entry{
		Timestamp:  *r.Timestamp,
		Peripheral: r.Peripheral,
		Event:      r.Event,
		Payload:    v,
	}, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("read event log: expected %q, got %v", want, tok)
	}
	return nil
}

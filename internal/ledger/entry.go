package ledger

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/roach88/cosim/internal/payload"
)

// Entry is one logged event.
type Entry struct {
	Timestamp  uint64
	Peripheral string
	Event      string
	Payload    payload.Value
}

// Equal reports whether e and o are identical, comparing payloads
// structurally.
func (e Entry) Equal(o Entry) bool {
	return e.Timestamp == o.Timestamp &&
		e.Peripheral == o.Peripheral &&
		e.Event == o.Event &&
		payload.Equal(e.Payload, o.Payload)
}

func (e Entry) String() string {
	return fmt.Sprintf("@%d %s/%s %s", e.Timestamp, e.Peripheral, e.Event, payload.Format(e.Payload))
}

// MarshalJSON renders the entry exactly as it appears in the log file.
func (e Entry) MarshalJSON() ([]byte, error) {
	periph, err := payload.MarshalString(e.Peripheral)
	if err != nil {
		return nil, fmt.Errorf("marshal peripheral: %w", err)
	}
	event, err := payload.MarshalString(e.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	body, err := payload.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{ "timestamp": `)
	buf.WriteString(strconv.FormatUint(e.Timestamp, 10))
	buf.WriteString(`, "peripheral": `)
	buf.Write(periph)
	buf.WriteString(`, "event": `)
	buf.Write(event)
	buf.WriteString(`, "payload": `)
	buf.Write(body)
	buf.WriteString(` }`)
	return buf.Bytes(), nil
}

// Compare returns the index of the first entry that differs between a and
// b, or -1 when both logs are identical.
func Compare(a, b []Entry) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if !a[i].Equal(b[i]) {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}

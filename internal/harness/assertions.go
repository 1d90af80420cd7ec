package harness

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cosim/internal/board"
	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/payload"
)

// Assertion type constants.
const (
	AssertEventContains  = "event_contains"
	AssertEventOrder     = "event_order"
	AssertEventCount     = "event_count"
	AssertScriptComplete = "script_complete"
	AssertFlashRead      = "flash_read"
)

// EventPattern selects trace entries by peripheral and event, and
// optionally by payload.
type EventPattern struct {
	Peripheral string
	Event      string
	// Payload nil matches any payload. Null matches only null.
	Payload payload.Value
}

// Matches reports whether e fits the pattern.
func (p EventPattern) Matches(e ledger.Entry) bool {
	if e.Peripheral != p.Peripheral || e.Event != p.Event {
		return false
	}
	return p.Payload == nil || payload.Equal(p.Payload, e.Payload)
}

func (p EventPattern) String() string {
	if p.Payload == nil {
		return p.Peripheral + "/" + p.Event
	}
	return fmt.Sprintf("%s/%s %s", p.Peripheral, p.Event, payload.Format(p.Payload))
}

// Assertion validates the outcome of a run.
//
//   - event_contains: an entry matches the pattern
//   - event_order: Events match entries in this order, not necessarily adjacent
//   - event_count: exactly Count entries match the pattern
//   - script_complete: every script command was consumed
//   - flash_read: SPI transaction number Transaction read Data
type Assertion struct {
	Type string

	EventPattern

	Count       int
	Events      []EventPattern
	Transaction int
	Data        []byte
}

var assertionFields = []string{"type", "peripheral", "event", "payload", "count", "events", "transaction", "data"}

var patternFields = []string{"peripheral", "event", "payload"}

// UnmarshalYAML decodes an assertion. A payload key that is present but
// null matches only null payloads; an absent key matches any payload.
func (a *Assertion) UnmarshalYAML(n *yaml.Node) error {
	if err := checkFields(n, "assertion", assertionFields); err != nil {
		return err
	}
	var raw struct {
		Type        string      `yaml:"type"`
		Peripheral  string      `yaml:"peripheral"`
		Event       string      `yaml:"event"`
		Payload     yaml.Node   `yaml:"payload"`
		Count       int         `yaml:"count"`
		Events      []yaml.Node `yaml:"events"`
		Transaction int         `yaml:"transaction"`
		Data        []int       `yaml:"data"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}

	p, err := decodePayload(&raw.Payload)
	if err != nil {
		return err
	}
	a.Type = raw.Type
	a.EventPattern = EventPattern{Peripheral: raw.Peripheral, Event: raw.Event, Payload: p}
	a.Count = raw.Count
	a.Transaction = raw.Transaction

	a.Events = nil
	for i := range raw.Events {
		ep, err := decodePattern(&raw.Events[i])
		if err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		a.Events = append(a.Events, ep)
	}

	a.Data = nil
	if raw.Data != nil {
		a.Data = make([]byte, len(raw.Data))
		for i, b := range raw.Data {
			if b < 0 || b > 0xFF {
				return fmt.Errorf("line %d: data[%d]: %d is not a byte", n.Line, i, b)
			}
			a.Data[i] = byte(b)
		}
	}
	return nil
}

func decodePattern(n *yaml.Node) (EventPattern, error) {
	if err := checkFields(n, "event pattern", patternFields); err != nil {
		return EventPattern{}, err
	}
	var raw struct {
		Peripheral string    `yaml:"peripheral"`
		Event      string    `yaml:"event"`
		Payload    yaml.Node `yaml:"payload"`
	}
	if err := n.Decode(&raw); err != nil {
		return EventPattern{}, err
	}
	p, err := decodePayload(&raw.Payload)
	if err != nil {
		return EventPattern{}, err
	}
	return EventPattern{Peripheral: raw.Peripheral, Event: raw.Event, Payload: p}, nil
}

// decodePayload returns nil for an absent node.
func decodePayload(n *yaml.Node) (payload.Value, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	p, err := payload.FromAny(v)
	if err != nil {
		return nil, fmt.Errorf("line %d: payload: %w", n.Line, err)
	}
	return p, nil
}

// checkFields rejects mapping keys outside allowed. Custom unmarshalers
// do not inherit the decoder's KnownFields setting.
func checkFields(n *yaml.Node, what string, allowed []string) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping", n.Line, what)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		known := false
		for _, f := range allowed {
			if key.Value == f {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("line %d: field %s not found in %s", key.Line, key.Value, what)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	requirePattern := func(p EventPattern, where string) error {
		if p.Peripheral == "" || p.Event == "" {
			return fmt.Errorf("assertions[%d]: peripheral and event are required%s for %s", index, where, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertEventContains:
		return requirePattern(a.EventPattern, "")
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
		return requirePattern(a.EventPattern, "")
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
		for i, p := range a.Events {
			if err := requirePattern(p, fmt.Sprintf(" in events[%d]", i)); err != nil {
				return err
			}
		}
	case AssertScriptComplete:
	case AssertFlashRead:
		if a.Transaction < 0 {
			return fmt.Errorf("assertions[%d]: transaction must be non-negative for flash_read", index)
		}
		if a.Data == nil {
			return fmt.Errorf("assertions[%d]: data is required for flash_read", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []ledger.Entry
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, entry)
		}
	}
	return buf.String()
}

func assertEventContains(trace []ledger.Entry, a Assertion) error {
	for _, e := range trace {
		if a.EventPattern.Matches(e) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: a.EventPattern.String(),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func assertEventOrder(trace []ledger.Entry, a Assertion) error {
	pos := 0
	for i, p := range a.Events {
		start := pos
		found := false
		for ; pos < len(trace); pos++ {
			if p.Matches(trace[pos]) {
				found = true
				pos++
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("events[%d] %s not found at or after entry %d", i, p, start),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertEventCount(trace []ledger.Entry, a Assertion) error {
	count := 0
	for _, e := range trace {
		if a.EventPattern.Matches(e) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.EventPattern),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertScriptComplete(s engine.Summary, trace []ledger.Entry) error {
	if s.Complete() {
		return nil
	}
	return &AssertionError{
		Type:     AssertScriptComplete,
		Expected: fmt.Sprintf("all %d commands consumed", s.Total),
		Actual:   fmt.Sprintf("cursor at %d, %d unmatched", s.Cursor, s.Unmatched),
		Trace:    trace,
	}
}

func assertFlashRead(reads []board.Read, a Assertion) error {
	if a.Transaction >= len(reads) {
		return &AssertionError{
			Type:     AssertFlashRead,
			Expected: fmt.Sprintf("transaction %d", a.Transaction),
			Actual:   fmt.Sprintf("only %d transactions completed", len(reads)),
		}
	}
	r := reads[a.Transaction]
	if !bytes.Equal(r.Data, a.Data) {
		return &AssertionError{
			Type:     AssertFlashRead,
			Expected: fmt.Sprintf("transaction %d read % x", a.Transaction, a.Data),
			Actual:   fmt.Sprintf("read % x", r.Data),
		}
	}
	return nil
}

// EvaluateAssertions checks every assertion against res and returns the
// failure messages.
func EvaluateAssertions(res *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventContains:
			err = assertEventContains(res.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(res.Trace, a)
		case AssertEventCount:
			err = assertEventCount(res.Trace, a)
		case AssertScriptComplete:
			err = assertScriptComplete(res.Summary, res.Trace)
		case AssertFlashRead:
			err = assertFlashRead(res.Reads, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// Package script models the ordered wait/action command list that drives
// a co-simulation run, and loads it from JSON, YAML, or CUE documents.
//
// A script document is either an object with a "commands" array or a bare
// array. Every command has:
//
//	type:       "wait" | "action"
//	peripheral: target peripheral name ("uart", "flash", "sim", ...)
//	event:      event type ("tx", "exit", ...)
//	payload:    any JSON value except floats (optional, defaults to null)
package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/roach88/cosim/internal/payload"
)

// Kind distinguishes waits from actions.
type Kind int

const (
	// Wait blocks the cursor until a matching event is emitted.
	Wait Kind = iota + 1
	// Action is queued for its peripheral as soon as the cursor reaches it.
	Action
)

func (k Kind) String() string {
	switch k {
	case Wait:
		return "wait"
	case Action:
		return "action"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a document "type" value to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "wait":
		return Wait, true
	case "action":
		return Action, true
	default:
		return 0, false
	}
}

// Command is one script entry.
type Command struct {
	Kind       Kind
	Peripheral string
	Event      string
	Payload    payload.Value
}

// Matches reports whether the command's triple equals the given event.
func (c Command) Matches(peripheral, event string, p payload.Value) bool {
	return c.Peripheral == peripheral && c.Event == event && payload.Equal(c.Payload, p)
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s/%s %s", c.Kind, c.Peripheral, c.Event, payload.Format(c.Payload))
}

// Value returns the command as a payload object in document form.
func (c Command) Value() payload.Value {
	p := c.Payload
	if p == nil {
		p = payload.Null{}
	}
	return payload.Object{
		"type":       payload.String(c.Kind.String()),
		"peripheral": payload.String(c.Peripheral),
		"event":      payload.String(c.Event),
		"payload":    p,
	}
}

// Digest returns the hex SHA-256 of the canonical JSON encoding of cmds.
// Two scripts with the same digest drive identical runs.
func Digest(cmds []Command) (string, error) {
	arr := make(payload.Array, len(cmds))
	for i, c := range cmds {
		arr[i] = c.Value()
	}
	data, err := payload.Marshal(arr)
	if err != nil {
		return "", fmt.Errorf("digest script: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Summary describes the shape of a script.
type Summary struct {
	Total       int            `json:"total"`
	Waits       int            `json:"waits"`
	Actions     int            `json:"actions"`
	Prefetched  int            `json:"prefetched"`
	Peripherals []string       `json:"peripherals"`
	PerPeriph   map[string]int `json:"per_peripheral"`
}

// Summarize counts commands by kind and peripheral. Prefetched is the
// number of leading actions queued before the first wait.
func Summarize(cmds []Command) Summary {
	s := Summary{Total: len(cmds), PerPeriph: make(map[string]int)}
	leading := true
	for _, c := range cmds {
		switch c.Kind {
		case Wait:
			s.Waits++
			leading = false
		case Action:
			s.Actions++
			if leading {
				s.Prefetched++
			}
		}
		s.PerPeriph[c.Peripheral]++
	}
	for name := range s.PerPeriph {
		s.Peripherals = append(s.Peripherals, name)
	}
	sort.Strings(s.Peripherals)
	return s
}

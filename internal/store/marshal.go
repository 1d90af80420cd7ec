package store

import (
	"fmt"
	"time"

	"github.com/roach88/cosim/internal/payload"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
// Canonical form keeps stored traces byte-comparable across runs.
func marshalPayload(v payload.Value) (string, error) {
	if v == nil {
		v = payload.Null{}
	}
	data, err := payload.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload converts JSON TEXT from the database back to a payload.
func unmarshalPayload(s string) (payload.Value, error) {
	v, err := payload.Unmarshal([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cosim/internal/ledger"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusFinished RunStatus = "finished"
	StatusFailed   RunStatus = "failed"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is a recorded simulation.
type Run struct {
	ID           string    `json:"id"`
	ScriptPath   string    `json:"script_path"`
	ScriptDigest string    `json:"script_digest"`
	BoardConfig  string    `json:"board_config"`
	MaxTicks     uint64    `json:"max_ticks"`
	Status       RunStatus `json:"status"`
	StopReason   string    `json:"stop_reason,omitempty"`
	Ticks        uint64    `json:"ticks"`
	Total        int       `json:"total"`
	Cursor       int       `json:"cursor"`
	Unmatched    int       `json:"unmatched"`
	Events       int       `json:"events"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
}

// Outcome is what FinishRun records about a completed run.
type Outcome struct {
	Status     RunStatus
	StopReason string
	Ticks      uint64
	Total      int
	Cursor     int
	Unmatched  int
	Events     int
	Error      string
}

// CreateRun inserts a run in the running state. BoardConfig defaults to
// "{}" and StartedAt to the current time.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("create run: empty run id")
	}
	if run.BoardConfig == "" {
		run.BoardConfig = "{}"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, script_path, script_digest, board_config, max_ticks, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ScriptPath,
		run.ScriptDigest,
		run.BoardConfig,
		int64(run.MaxTicks),
		string(StatusRunning),
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run. Only a running run can be
// finished.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, stop_reason = ?, ticks = ?, total = ?, script_cursor = ?,
		    unmatched = ?, event_count = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`,
		string(out.Status),
		out.StopReason,
		int64(out.Ticks),
		out.Total,
		out.Cursor,
		out.Unmatched,
		out.Events,
		out.Error,
		formatTime(s.now()),
		id,
		string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// AppendEvent inserts the entry at position seq of the run's log.
func (s *Store) AppendEvent(ctx context.Context, runID string, seq int, e ledger.Entry) error {
	p, err := marshalPayload(e.Payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, timestamp, peripheral, event, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		int64(e.Timestamp),
		e.Peripheral,
		e.Event,
		p,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

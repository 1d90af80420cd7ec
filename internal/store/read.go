package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cosim/internal/ledger"
)

// EventFilter narrows an event query. Empty fields match everything.
type EventFilter struct {
	Peripheral string
	Event      string
}

const runColumns = `id, script_path, script_digest, board_config, max_ticks, status, stop_reason,
	ticks, total, script_cursor, unmatched, event_count, error, started_at, finished_at`

// GetRun returns the run with the given ID or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run in ID order.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Events returns the run's events in log order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Events(ctx context.Context, runID string, f EventFilter) ([]ledger.Entry, error) {
	var (
		where = []string{"run_id = ?"}
		args  = []any{runID}
	)
	if f.Peripheral != "" {
		where = append(where, "peripheral = ?")
		args = append(args, f.Peripheral)
	}
	if f.Event != "" {
		where = append(where, "event = ?")
		args = append(args, f.Event)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, peripheral, event, payload
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var (
			ts      int64
			e       ledger.Entry
			payload string
		)
		if err := rows.Scan(&ts, &e.Peripheral, &e.Event, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = uint64(ts)
		if e.Payload, err = unmarshalPayload(payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run               Run
		maxTicks, ticks   int64
		status            string
		started, finished string
	)
	err := row.Scan(
		&run.ID,
		&run.ScriptPath,
		&run.ScriptDigest,
		&run.BoardConfig,
		&maxTicks,
		&status,
		&run.StopReason,
		&ticks,
		&run.Total,
		&run.Cursor,
		&run.Unmatched,
		&run.Events,
		&run.Error,
		&started,
		&finished,
	)
	if err != nil {
		return Run{}, err
	}
	run.MaxTicks = uint64(maxTicks)
	run.Ticks = uint64(ticks)
	run.Status = RunStatus(status)
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, err
	}
	return run, nil
}

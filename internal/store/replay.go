package store

import (
	"context"
	"fmt"

	"github.com/roach88/cosim/internal/ledger"
)

// Comparison is the result of checking a replayed log against a recorded
// run.
type Comparison struct {
	RunID     string        `json:"run_id"`
	Identical bool          `json:"identical"`
	Recorded  int           `json:"recorded"`
	Replayed  int           `json:"replayed"`
	FirstDiff int           `json:"first_diff"`
	Want      *ledger.Entry `json:"want,omitempty"`
	Got       *ledger.Entry `json:"got,omitempty"`
}

// CompareRun compares replayed against the events recorded for runID.
// FirstDiff is -1 when the logs are identical; otherwise Want and Got hold
// the entries at that index, nil where one log has already ended.
func (s *Store) CompareRun(ctx context.Context, runID string, replayed []ledger.Entry) (Comparison, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return Comparison{}, fmt.Errorf("compare run: %w", err)
	}
	recorded, err := s.Events(ctx, runID, EventFilter{})
	if err != nil {
		return Comparison{}, fmt.Errorf("compare run: %w", err)
	}

	c := Comparison{
		RunID:     runID,
		Recorded:  len(recorded),
		Replayed:  len(replayed),
		FirstDiff: ledger.Compare(recorded, replayed),
	}
	c.Identical = c.FirstDiff < 0
	if !c.Identical {
		if c.FirstDiff < len(recorded) {
			c.Want = &recorded[c.FirstDiff]
		}
		if c.FirstDiff < len(replayed) {
			c.Got = &replayed[c.FirstDiff]
		}
	}
	return c, nil
}

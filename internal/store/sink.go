package store

import (
	"context"

	"github.com/roach88/cosim/internal/ledger"
)

// RunSink mirrors a run's event log into the store. Each Append is one
// insert, so a crash leaves every emitted event on disk.
//
// The sink holds the context it was created with because ledger.Sink
// methods take none.
type RunSink struct {
	ctx   context.Context
	store *Store
	runID string
	seq   int
}

var _ ledger.Sink = (*RunSink)(nil)

// NewRunSink returns a sink appending to runID, which must already exist.
func (s *Store) NewRunSink(ctx context.Context, runID string) *RunSink {
	return &RunSink{ctx: ctx, store: s, runID: runID}
}

// Append implements ledger.Sink.
func (r *RunSink) Append(e ledger.Entry) error {
	if err := r.store.AppendEvent(r.ctx, r.runID, r.seq, e); err != nil {
		return err
	}
	r.seq++
	return nil
}

// Close implements ledger.Sink. The store itself stays open.
func (r *RunSink) Close() error { return nil }

// Count returns the number of events written.
func (r *RunSink) Count() int { return r.seq }

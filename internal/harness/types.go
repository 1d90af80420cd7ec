package harness

import (
	"github.com/roach88/cosim/internal/board"
	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/sim"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when the run behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace is every event emitted, in order.
	Trace []ledger.Entry `json:"trace"`

	Summary engine.Summary `json:"summary"`
	Stop    sim.Result     `json:"stop"`

	// Reads are the completed SPI transactions.
	Reads []board.Read `json:"reads"`

	// ErrorCode classifies the error the run ended with, if any.
	ErrorCode engine.ErrorCode `json:"error_code,omitempty"`

	Errors []string `json:"errors,omitempty"`

	err error
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ledger.Entry{},
		Reads:  []board.Read{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Err is the error the run ended with, or nil.
func (r *Result) Err() error { return r.err }

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cosim/internal/board"
	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/script"
	"github.com/roach88/cosim/internal/sim"
)

// Harness holds the settings shared by scenario runs.
type Harness struct {
	logger *slog.Logger
	sinks  []ledger.Sink
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the engine and peripherals.
// Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithSink additionally records the trace to s. The harness closes s.
func WithSink(s ledger.Sink) Option {
	return func(h *Harness) { h.sinks = append(h.sinks, s) }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with default settings.
func Run(s *Scenario) (*Result, error) {
	return New().Run(context.Background(), s)
}

// Run executes the scenario in a fresh system and evaluates its
// assertions. Simulation failures are reported in the result; the error
// is reserved for a canceled context or a nil scenario.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	if s == nil {
		return nil, fmt.Errorf("nil scenario")
	}

	res := NewResult()
	runErr := h.execute(ctx, s, res)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runErr != nil {
		res.err = runErr
		res.ErrorCode = engine.CodeOf(runErr)
	}

	switch {
	case s.ExpectError != "" && runErr == nil:
		res.AddError(fmt.Sprintf("expected %s error, run succeeded", s.ExpectError))
	case s.ExpectError != "" && string(res.ErrorCode) != s.ExpectError:
		res.AddError(fmt.Sprintf("expected %s error, got: %v", s.ExpectError, runErr))
	case s.ExpectError == "" && runErr != nil:
		res.AddError(fmt.Sprintf("run failed: %v", runErr))
	}

	for _, msg := range EvaluateAssertions(res, s.Assertions) {
		res.AddError(msg)
	}
	return res, nil
}

func (h *Harness) execute(ctx context.Context, s *Scenario, res *Result) error {
	cmds, err := h.commands(s)
	if err != nil {
		return err
	}

	sys, err := board.NewSystem(s.Board, board.Options{BaseDir: s.dir, Logger: h.logger})
	if err != nil {
		return err
	}

	mem := &ledger.Memory{}
	var sink ledger.Sink = mem
	if len(h.sinks) > 0 {
		sink = ledger.Tee(append([]ledger.Sink{mem}, h.sinks...)...)
	}
	eng := engine.New(cmds, sink, engine.WithLogger(h.logger))

	opts := []sim.Option{sim.WithLogger(h.logger)}
	if s.StopWhenDone {
		opts = append(opts, sim.StopWhenDone())
	}
	stop, runErr := sys.Driver(eng, opts...).Run(ctx, s.MaxTicks)
	summary, closeErr := eng.Close()

	res.Trace = append(res.Trace, mem.Entries...)
	res.Reads = append(res.Reads, sys.Board.Reads()...)
	res.Summary = summary
	res.Stop = stop

	if runErr != nil {
		return runErr
	}
	return closeErr
}

func (h *Harness) commands(s *Scenario) ([]script.Command, error) {
	if s.Script != "" {
		return engine.LoadScript(s.resolve(s.Script))
	}
	cmds, err := script.Decode(s.Commands)
	if err != nil {
		return nil, engine.WrapError(engine.ErrCodeScriptParse, "failed to parse inline commands", err)
	}
	return cmds, nil
}

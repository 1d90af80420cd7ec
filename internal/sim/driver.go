package sim

import (
	"context"
	"log/slog"

	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/periph"
	"github.com/roach88/cosim/internal/signal"
)

// ControlPeripheral is the script peripheral name addressed to the driver.
const ControlPeripheral = "sim"

// EventExit is the control action that ends the run after the current tick.
const EventExit = "exit"

// Evaluator is the circuit under test. Step settles the circuit for the
// current input values.
type Evaluator interface {
	Step() error
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func() error

// Step implements Evaluator.
func (f EvaluatorFunc) Step() error { return f() }

// StopReason says why Run returned.
type StopReason string

const (
	StopExit     StopReason = "exit"
	StopMaxTicks StopReason = "max_ticks"
	StopDone     StopReason = "script_done"
	StopCanceled StopReason = "canceled"
	StopError    StopReason = "error"
)

// Result describes a finished run.
type Result struct {
	Reason    StopReason `json:"reason"`
	Ticks     uint64     `json:"ticks"`
	Timestamp uint64     `json:"timestamp"`
}

// Driver steps peripherals and the evaluator in lock step.
type Driver struct {
	eng    *engine.Engine
	clock  signal.Port
	eval   Evaluator
	periph []periph.Peripheral

	ts     uint64
	ticks  uint64
	exited bool

	stopWhenDone bool
	logger       *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithPeripherals registers models in stepping order.
func WithPeripherals(p ...periph.Peripheral) Option {
	return func(d *Driver) { d.periph = append(d.periph, p...) }
}

// StopWhenDone ends Run once every script command has been reached and
// no released action is left unconsumed.
func StopWhenDone() Option {
	return func(d *Driver) { d.stopWhenDone = true }
}

// WithLogger sets the driver logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDriver creates a driver for eval clocked through clock.
func NewDriver(eng *engine.Engine, clock signal.Port, eval Evaluator, opts ...Option) *Driver {
	d := &Driver{eng: eng, clock: clock, eval: eval, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timestamp returns the timestamp of the next half step.
func (d *Driver) Timestamp() uint64 { return d.ts }

// Ticks returns the number of completed ticks.
func (d *Driver) Ticks() uint64 { return d.ticks }

// Tick runs one full clock cycle, falling half first.
func (d *Driver) Tick() error {
	for _, level := range [2]uint64{0, 1} {
		if err := d.half(level); err != nil {
			return err
		}
	}
	d.ticks++
	return nil
}

func (d *Driver) half(level uint64) error {
	for _, p := range d.periph {
		if err := p.Step(d.eng, d.ts); err != nil {
			return err
		}
	}
	d.control()

	d.clock.Set(level)
	if err := d.eval.Step(); err != nil {
		if engine.CodeOf(err) != "" {
			return err
		}
		return engine.WrapError(engine.ErrCodeEvaluator, "evaluator step failed", err)
	}
	d.ts++
	return nil
}

// control consumes actions addressed to the driver.
func (d *Driver) control() {
	for _, a := range d.eng.PendingActions(ControlPeripheral) {
		switch a.Event {
		case EventExit:
			d.logger.Debug("exit requested", "timestamp", d.ts)
			d.exited = true
		default:
			d.logger.Warn("unknown sim action", "event", a.Event)
		}
	}
}

// Run ticks until the script exits, maxTicks ticks have run (0 means no
// limit), the script completes under StopWhenDone, ctx is canceled, or a
// step fails. The context is checked between ticks only.
func (d *Driver) Run(ctx context.Context, maxTicks uint64) (Result, error) {
	for {
		if r, ok := d.stopReason(maxTicks); ok {
			return d.result(r), nil
		}
		if err := ctx.Err(); err != nil {
			return d.result(StopCanceled), err
		}
		if err := d.Tick(); err != nil {
			return d.result(StopError), err
		}
	}
}

func (d *Driver) stopReason(maxTicks uint64) (StopReason, bool) {
	switch {
	case d.exited:
		return StopExit, true
	case d.stopWhenDone && d.eng.Done() && d.eng.Queued() == 0:
		return StopDone, true
	case maxTicks > 0 && d.ticks >= maxTicks:
		return StopMaxTicks, true
	}
	return "", false
}

func (d *Driver) result(r StopReason) Result {
	d.logger.Debug("run stopped", "reason", r, "ticks", d.ticks, "timestamp", d.ts)
	return Result{Reason: r, Ticks: d.ticks, Timestamp: d.ts}
}

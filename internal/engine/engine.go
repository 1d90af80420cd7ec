package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/payload"
	"github.com/roach88/cosim/internal/script"
)

// Engine is the simulation context: script cursor, pending actions, and
// event log.
type Engine struct {
	script []script.Command
	cursor int
	queue  *actionQueue
	sink   ledger.Sink
	logger *slog.Logger

	events int
	lastTS uint64
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for protocol diagnostics.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Summary describes the script progress when the engine is closed.
type Summary struct {
	Total     int `json:"total"`
	Cursor    int `json:"cursor"`
	Unmatched int `json:"unmatched"`
	Events    int `json:"events"`
}

// Complete reports whether every script command was reached.
func (s Summary) Complete() bool { return s.Unmatched == 0 }

// New creates an engine for cmds writing events to sink, and queues the
// leading actions of the script. The command slice is copied.
func New(cmds []script.Command, sink ledger.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = ledger.Discard
	}
	e := &Engine{
		script: append([]script.Command(nil), cmds...),
		queue:  newActionQueue(),
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.prefetch()
	return e
}

// prefetch queues every action from the cursor up to the next wait.
func (e *Engine) prefetch() {
	for e.cursor < len(e.script) {
		cmd := e.script[e.cursor]
		if cmd.Kind != script.Action {
			break
		}
		e.queue.push(cmd.Peripheral, Action{Event: cmd.Event, Payload: cmd.Payload})
		e.logger.Debug("action queued",
			"index", e.cursor,
			"peripheral", cmd.Peripheral,
			"event", cmd.Event,
			"payload", payload.Format(cmd.Payload),
		)
		e.cursor++
	}
}

// Emit records an event observed at timestamp and advances the script if
// it satisfies the pending wait.
//
// The entry reaches the sink before the cursor moves, so the log always
// shows the event that released a batch of actions ahead of their effects.
func (e *Engine) Emit(timestamp uint64, peripheral, event string, p payload.Value) error {
	if e.closed {
		return NewError(ErrCodeLogWrite, "emit on closed engine")
	}
	if p == nil {
		p = payload.Null{}
	}
	if e.events > 0 && timestamp < e.lastTS {
		return &SimError{
			Code:       ErrCodeTimestampOrder,
			Message:    fmt.Sprintf("event at %d is older than last logged event at %d", timestamp, e.lastTS),
			Peripheral: peripheral,
		}
	}

	entry := ledger.Entry{Timestamp: timestamp, Peripheral: peripheral, Event: event, Payload: p}
	if err := e.sink.Append(entry); err != nil {
		return WrapError(ErrCodeLogWrite, "append event", err)
	}
	e.events++
	e.lastTS = timestamp

	if e.cursor >= len(e.script) {
		return nil
	}
	cmd := e.script[e.cursor]
	if cmd.Kind != script.Wait {
		// prefetch never leaves the cursor on an action.
		panic(fmt.Sprintf("engine: cursor %d on %s", e.cursor, cmd))
	}
	if !cmd.Matches(peripheral, event, p) {
		return nil
	}

	e.logger.Debug("wait satisfied",
		"index", e.cursor,
		"timestamp", timestamp,
		"peripheral", peripheral,
		"event", event,
	)
	e.cursor++
	e.prefetch()
	return nil
}

// PendingActions removes and returns every queued action for peripheral.
func (e *Engine) PendingActions(peripheral string) []Action {
	return e.queue.drain(peripheral)
}

// Queued returns the number of actions released by the script that no
// peripheral has consumed yet.
func (e *Engine) Queued() int {
	return e.queue.Len()
}

// Cursor returns the index of the next unprocessed script command.
func (e *Engine) Cursor() int { return e.cursor }

// Len returns the number of script commands.
func (e *Engine) Len() int { return len(e.script) }

// Done reports whether the cursor has reached the end of the script.
func (e *Engine) Done() bool { return e.cursor >= len(e.script) }

// Waiting returns the wait command the cursor is on, if any.
func (e *Engine) Waiting() (script.Command, bool) {
	if e.Done() {
		return script.Command{}, false
	}
	return e.script[e.cursor], true
}

// Events returns the number of events emitted so far.
func (e *Engine) Events() int { return e.events }

// Summary returns the current script progress.
func (e *Engine) Summary() Summary {
	return Summary{
		Total:     len(e.script),
		Cursor:    e.cursor,
		Unmatched: len(e.script) - e.cursor,
		Events:    e.events,
	}
}

// Close closes the sink and reports script progress. Unmatched commands
// are reported as a warning, not an error. Calling Close twice returns
// the same summary and closes the sink once.
func (e *Engine) Close() (Summary, error) {
	s := e.Summary()
	if e.closed {
		return s, nil
	}
	e.closed = true

	var err error
	if cerr := e.sink.Close(); cerr != nil {
		err = WrapError(ErrCodeLogWrite, "close event log", cerr)
	}
	if s.Unmatched > 0 {
		attrs := []any{"remaining", s.Unmatched, "total", s.Total}
		if cmd, ok := e.Waiting(); ok {
			attrs = append(attrs, "waiting_for", cmd.String())
		}
		e.logger.Warn("not all script commands were satisfied", attrs...)
	}
	return s, err
}

// LoadScript loads a script file and classifies failures as
// ErrCodeScriptRead or ErrCodeScriptParse.
func LoadScript(path string) ([]script.Command, error) {
	cmds, err := script.Load(path)
	if err == nil {
		return cmds, nil
	}
	var re *script.ReadError
	if errors.As(err, &re) {
		return nil, WrapError(ErrCodeScriptRead, "failed to read script", err)
	}
	return nil, WrapError(ErrCodeScriptParse, "failed to parse script", err)
}

package periph

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/payload"
	"github.com/roach88/cosim/internal/signal"
)

// DefaultBaudDiv is the number of clock ticks per bit for 115200 baud at
// 48 MHz.
const DefaultBaudDiv = 48_000_000 / 115_200

// ConsoleName is the UART whose received bytes are echoed to the console.
const ConsoleName = "uart"

// EventTx is the action that transmits a byte to the circuit and the event
// emitted when the circuit transmits one.
const EventTx = "tx"

// Uart is an 8N1 UART model.
//
// Timestamps count half clock periods and the driver steps peripherals on
// both halves. The UART runs once per tick, on the even step, so the baud
// divisor is in clock ticks.
//
// The receive side decodes frames the circuit sends on tx and emits them as
// "tx" events. The transmit side drives rx toward the circuit with bytes
// queued by "tx" actions.
type Uart struct {
	name    string
	tx      signal.Port
	rx      signal.Port
	baudDiv int

	lastTx  bool
	rxCount int
	rxSR    byte

	txQueue  []byte
	txActive bool
	txCount  int
	txData   byte

	console io.Writer
	logger  *slog.Logger
}

// UartOption configures a Uart.
type UartOption func(*Uart)

// WithBaudDiv sets the number of clock ticks per bit.
func WithBaudDiv(n int) UartOption {
	return func(u *Uart) { u.baudDiv = n }
}

// WithConsole echoes received bytes to w. Only the UART named ConsoleName
// echoes.
func WithConsole(w io.Writer) UartOption {
	return func(u *Uart) { u.console = w }
}

// WithUartLogger sets the logger for the UART model.
func WithUartLogger(l *slog.Logger) UartOption {
	return func(u *Uart) { u.logger = l }
}

// NewUart creates a UART reading the circuit's tx line and driving its rx
// line. The baud divisor must be at least 2.
func NewUart(name string, tx, rx signal.Port, opts ...UartOption) (*Uart, error) {
	u := &Uart{name: name, tx: tx, rx: rx, baudDiv: DefaultBaudDiv}
	for _, opt := range opts {
		opt(u)
	}
	if u.baudDiv < 2 {
		return nil, fmt.Errorf("uart %s: baud divisor must be at least 2, got %d", name, u.baudDiv)
	}
	u.logger = loggerOrDefault(u.logger)
	return u, nil
}

// Name implements Peripheral.
func (u *Uart) Name() string { return u.name }

// BaudDiv returns the clock ticks per bit.
func (u *Uart) BaudDiv() int { return u.baudDiv }

// busy reports whether a frame is being transmitted or bytes are queued.
func (u *Uart) busy() bool { return u.txActive || len(u.txQueue) > 0 }

// Step implements Peripheral. Steps at odd timestamps are the second half
// of a tick and do nothing.
func (u *Uart) Step(eng *engine.Engine, timestamp uint64) error {
	if timestamp%2 != 0 {
		return nil
	}
	for _, a := range eng.PendingActions(u.name) {
		if err := u.accept(a); err != nil {
			return err
		}
	}
	if !u.txActive && len(u.txQueue) > 0 {
		u.txData, u.txQueue = u.txQueue[0], u.txQueue[1:]
		u.txActive = true
		u.txCount = 0
	}

	if err := u.receive(eng, timestamp); err != nil {
		return err
	}
	u.transmit()
	return nil
}

func (u *Uart) accept(a engine.Action) error {
	if a.Event != EventTx {
		u.logger.Warn("unknown uart action", "peripheral", u.name, "event", a.Event)
		return nil
	}
	n, ok := a.Payload.(payload.Int)
	if !ok || n < 0 || n > 0xFF {
		return engine.PeripheralError(engine.ErrCodeBadAction, u.name,
			fmt.Sprintf("tx payload must be an integer in 0-255, got %s", payload.Format(a.Payload)))
	}
	u.txQueue = append(u.txQueue, byte(n))
	return nil
}

func (u *Uart) receive(eng *engine.Engine, timestamp uint64) error {
	line := signal.High(u.tx)
	defer func() { u.lastTx = line }()

	if u.rxCount == 0 {
		if u.lastTx && !line {
			u.rxCount = 1
		}
		return nil
	}

	u.rxCount++
	half := u.baudDiv / 2
	if u.rxCount <= half || (u.rxCount-half)%u.baudDiv != 0 {
		return nil
	}

	bit := (u.rxCount - half) / u.baudDiv
	if bit >= 1 && bit <= 8 {
		var top byte
		if line {
			top = 0x80
		}
		u.rxSR = top | u.rxSR>>1
	}
	if bit == 8 {
		if u.console != nil && u.name == ConsoleName {
			if _, err := u.console.Write([]byte{u.rxSR}); err != nil {
				u.logger.Warn("console write failed", "peripheral", u.name, "error", err)
			}
		}
		if err := eng.Emit(timestamp, u.name, EventTx, payload.Int(u.rxSR)); err != nil {
			return err
		}
	}
	if bit == 9 {
		u.rxCount = 0
	}
	return nil
}

func (u *Uart) transmit() {
	if !u.txActive {
		u.txCount = 0
		u.rx.Set(1)
		return
	}

	bit := u.txCount / u.baudDiv
	u.txCount++
	switch {
	case bit == 0:
		u.rx.Set(0)
	case bit <= 8:
		u.rx.Set(uint64(u.txData>>(bit-1)) & 1)
	case bit == 9:
		u.rx.Set(1)
	default:
		u.txActive = false
		u.txCount = 0
		u.rx.Set(1)
	}
}

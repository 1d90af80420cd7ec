// Package periph models the external devices attached to the simulated
// circuit: a SPI NOR flash and a UART.
//
// Models are stepped by the driver once per half clock. They read their
// input ports, update internal state, drive their output ports, and report
// observations to the engine.
package periph

import (
	"log/slog"

	"github.com/roach88/cosim/internal/engine"
)

// Peripheral is a cycle-stepped device model.
type Peripheral interface {
	// Name is the peripheral name used in scripts and the event log.
	Name() string

	// Step advances the model by one step at timestamp.
	Step(eng *engine.Engine, timestamp uint64) error
}

var (
	_ Peripheral = (*SpiFlash)(nil)
	_ Peripheral = (*Uart)(nil)
)

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

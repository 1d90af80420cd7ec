package board

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/periph"
	"github.com/roach88/cosim/internal/sim"
)

// System is a Loopback wired to a flash and a UART.
type System struct {
	Board *Loopback
	Flash *periph.SpiFlash
	Uart  *periph.Uart
}

// Options are host-side settings that are not part of Config.
type Options struct {
	// BaseDir resolves a relative flash image path.
	BaseDir string

	// Console receives bytes decoded by the UART. Nil disables echo.
	Console io.Writer

	Logger *slog.Logger
}

// NewSystem builds the circuit and peripherals described by cfg and loads
// the flash image, if any.
func NewSystem(cfg Config, opts Options) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid board config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := NewLoopback(cfg.SPI)
	flash := periph.NewSpiFlash(FlashName, b.SpiClk, b.SpiCsn, b.SpiDO, b.SpiDOE, b.SpiDI,
		periph.WithFlashLogger(logger))

	if img := cfg.Flash.Image; img != "" {
		if !filepath.IsAbs(img) && opts.BaseDir != "" {
			img = filepath.Join(opts.BaseDir, img)
		}
		if err := flash.LoadImage(img, cfg.Flash.Offset); err != nil {
			return nil, err
		}
	}

	uartOpts := []periph.UartOption{periph.WithBaudDiv(cfg.baudDiv()), periph.WithUartLogger(logger)}
	if opts.Console != nil {
		uartOpts = append(uartOpts, periph.WithConsole(opts.Console))
	}
	uart, err := periph.NewUart(UartName, b.UartTx, b.UartRx, uartOpts...)
	if err != nil {
		return nil, err
	}

	return &System{Board: b, Flash: flash, Uart: uart}, nil
}

// Peripherals returns the models in stepping order.
func (s *System) Peripherals() []periph.Peripheral {
	return []periph.Peripheral{s.Flash, s.Uart}
}

// Driver returns a driver stepping this system under eng.
func (s *System) Driver(eng *engine.Engine, opts ...sim.Option) *sim.Driver {
	opts = append([]sim.Option{sim.WithPeripherals(s.Peripherals()...)}, opts...)
	return sim.NewDriver(eng, s.Board.Clk, s.Board, opts...)
}

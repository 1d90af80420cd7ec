package board

import "github.com/roach88/cosim/internal/signal"

// Loopback is a minimal circuit: a UART echo wire and a QSPI host.
type Loopback struct {
	// Clk is the system clock, driven by the simulation driver.
	Clk *signal.Wire

	// UartTx is the circuit's UART output; UartRx its input.
	UartTx *signal.Wire
	UartRx *signal.Wire

	// QSPI bus, named from the circuit's side.
	SpiClk *signal.Wire
	SpiCsn *signal.Wire
	SpiDO  *signal.Wire
	SpiDOE *signal.Wire
	SpiDI  *signal.Wire

	host    *qspiHost
	lastClk bool
}

// NewLoopback creates the circuit with idle lines: UART high, chip
// select high.
func NewLoopback(txs []Transaction) *Loopback {
	b := &Loopback{
		Clk:    signal.NewWire("clk", 1),
		UartTx: signal.NewWire("uart_tx", 1),
		UartRx: signal.NewWire("uart_rx", 1),
		SpiClk: signal.NewWire("qspi_sck", 1),
		SpiCsn: signal.NewWire("qspi_cs", 1),
		SpiDO:  signal.NewWire("qspi_io_o", 4),
		SpiDOE: signal.NewWire("qspi_io_oe", 4),
		SpiDI:  signal.NewWire("qspi_io_i", 4),
	}
	b.UartTx.Set(1)
	b.UartRx.Set(1)
	b.host = newQSPIHost(b.SpiClk, b.SpiCsn, b.SpiDO, b.SpiDOE, b.SpiDI, txs)
	return b
}

// Step implements sim.Evaluator.
func (b *Loopback) Step() error {
	b.UartTx.Set(b.UartRx.Get())

	clk := signal.High(b.Clk)
	if clk && !b.lastClk {
		b.host.advance()
	}
	b.lastClk = clk
	return nil
}

// HostDone reports whether every configured transaction has completed.
func (b *Loopback) HostDone() bool { return b.host.done() }

// Reads returns the data read by each completed transaction.
func (b *Loopback) Reads() []Read {
	return append([]Read(nil), b.host.reads...)
}

// Package signal defines the fixed-width digital signal handles shared
// between the circuit evaluator and the peripheral models.
//
// The evaluator owns the storage; models only read and write values
// through Port. Values wider than the port are masked on Set.
package signal

import "fmt"

// MaxWidth is the widest supported port.
const MaxWidth = 64

// Port is a readable/writable fixed-width bit vector.
type Port interface {
	// Width returns the number of bits in the port.
	Width() int
	// Get returns the current value. Bits above Width are always 0.
	Get() uint64
	// Set stores v masked to Width bits.
	Set(v uint64)
}

// Wire is an in-memory Port. Evaluators that keep their nets in Go
// memory hand out Wires directly.
type Wire struct {
	name  string
	width int
	mask  uint64
	v     uint64
}

// NewWire returns a zero-valued wire of the given width.
// It panics if width is outside [1, MaxWidth].
func NewWire(name string, width int) *Wire {
	if width < 1 || width > MaxWidth {
		panic(fmt.Sprintf("signal: wire %q: invalid width %d", name, width))
	}
	mask := ^uint64(0)
	if width < MaxWidth {
		mask = 1<<uint(width) - 1
	}
	return &Wire{name: name, width: width, mask: mask}
}

// Name returns the wire name given at construction.
func (w *Wire) Name() string { return w.name }

// Width implements Port.
func (w *Wire) Width() int { return w.width }

// Get implements Port.
func (w *Wire) Get() uint64 { return w.v }

// Set implements Port.
func (w *Wire) Set(v uint64) { w.v = v & w.mask }

func (w *Wire) String() string {
	return fmt.Sprintf("%s[%d]=%#x", w.name, w.width, w.v)
}

// High reports whether any bit of p is set. For 1-bit ports this is the
// logic level.
func High(p Port) bool { return p.Get() != 0 }

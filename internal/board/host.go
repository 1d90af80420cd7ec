package board

import (
	"fmt"

	"github.com/roach88/cosim/internal/periph"
	"github.com/roach88/cosim/internal/signal"
)

// gapHalfPeriods keeps chip select high between transactions.
const gapHalfPeriods = 2

// Read is what the host clocked in during one transaction.
type Read struct {
	Command uint8  `json:"command"`
	Address uint32 `json:"address"`
	Data    []byte `json:"data"`
}

func (r Read) String() string {
	return fmt.Sprintf("%02x@%06x: % x", r.Command, r.Address, r.Data)
}

// beat is one SPI clock period.
type beat struct {
	out    uint64
	oe     uint64
	width  uint
	sample bool
}

func singleBeats(b []beat, v byte, sample bool) []beat {
	for i := 7; i >= 0; i-- {
		b = append(b, beat{out: uint64(v>>uint(i)) & 1, oe: 0x1, width: 1, sample: sample})
	}
	return b
}

func quadBeats(b []beat, v byte, oe uint64, sample bool) []beat {
	return append(b,
		beat{out: uint64(v >> 4), oe: oe, width: 4, sample: sample},
		beat{out: uint64(v & 0xF), oe: oe, width: 4, sample: sample},
	)
}

func (t Transaction) beats() []beat {
	b := singleBeats(nil, t.Command, false)
	addr := []byte{byte(t.Address >> 16), byte(t.Address >> 8), byte(t.Address)}

	switch t.Command {
	case periph.CmdRead:
		for _, a := range addr {
			b = singleBeats(b, a, false)
		}
		for i := 0; i < t.Read; i++ {
			b = singleBeats(b, 0, true)
		}
	case periph.CmdQuadRead:
		for _, a := range addr {
			b = quadBeats(b, a, 0xF, false)
		}
		b = quadBeats(b, 0, 0xF, false)
		for i := 0; i < t.Read; i++ {
			b = quadBeats(b, 0, 0, true)
		}
	default:
		for i := 0; i < t.Read; i++ {
			b = singleBeats(b, 0, true)
		}
	}
	return b
}

type hostPhase int

const (
	phaseGap hostPhase = iota
	phaseSelect
	phaseHigh
	phaseLow
	phaseDeselect
	phaseDone
)

// qspiHost bit-bangs transactions, one phase per advance call.
type qspiHost struct {
	sck, csn, dO, dOE, dI signal.Port

	txs   []Transaction
	reads []Read

	phase hostPhase
	gap   int
	tx    int
	beats []beat
	beat  int

	acc   uint
	nbits uint
	data  []byte
}

func newQSPIHost(sck, csn, dO, dOE, dI signal.Port, txs []Transaction) *qspiHost {
	csn.Set(1)
	return &qspiHost{
		sck: sck, csn: csn, dO: dO, dOE: dOE, dI: dI,
		txs: append([]Transaction(nil), txs...),
		gap: gapHalfPeriods,
	}
}

func (h *qspiHost) done() bool { return h.phase == phaseDone }

func (h *qspiHost) advance() {
	switch h.phase {
	case phaseGap:
		h.csn.Set(1)
		h.sck.Set(0)
		if h.gap > 0 {
			h.gap--
			return
		}
		if h.tx >= len(h.txs) {
			h.phase = phaseDone
			return
		}
		h.beats = h.txs[h.tx].beats()
		h.beat = 0
		h.data = nil
		h.phase = phaseSelect
	case phaseSelect:
		h.csn.Set(0)
		h.sck.Set(0)
		h.phase = phaseHigh
	case phaseHigh:
		b := h.beats[h.beat]
		if b.sample {
			h.shiftIn(b.width)
		}
		h.dO.Set(b.out)
		h.dOE.Set(b.oe)
		h.sck.Set(1)
		h.phase = phaseLow
	case phaseLow:
		h.sck.Set(0)
		h.beat++
		if h.beat == len(h.beats) {
			h.phase = phaseDeselect
		} else {
			h.phase = phaseHigh
		}
	case phaseDeselect:
		h.csn.Set(1)
		t := h.txs[h.tx]
		h.reads = append(h.reads, Read{Command: t.Command, Address: t.Address, Data: h.data})
		h.tx++
		h.gap = gapHalfPeriods
		h.phase = phaseGap
	}
}

// shiftIn samples d_i: bit 1 in single mode, the low nibble in quad mode.
func (h *qspiHost) shiftIn(width uint) {
	in := h.dI.Get()
	if width == 4 {
		h.acc = h.acc<<4 | uint(in&0xF)
	} else {
		h.acc = h.acc<<1 | uint(in>>1&1)
	}
	h.nbits += width
	if h.nbits == 8 {
		h.data = append(h.data, byte(h.acc))
		h.acc, h.nbits = 0, 0
	}
}

package periph

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/signal"
)

// FlashSize is the capacity of the simulated flash in bytes.
const FlashSize = 16 * 1024 * 1024

// SPI command bytes understood by the flash.
const (
	CmdRead       byte = 0x03
	CmdQuadRead   byte = 0xEB
	CmdReadID     byte = 0x9F
	CmdPowerUp    byte = 0xAB
	CmdReset      byte = 0xFF
	CmdReadSR2    byte = 0x35
	CmdWriteSR2   byte = 0x31
	CmdVolatileWE byte = 0x50
	CmdReadSR1    byte = 0x05
	CmdWriteSR1   byte = 0x01
	CmdWriteEn    byte = 0x06
)

const addrMask = 0x00FFFFFF

// FlashID is returned, cycling, by the read-ID command.
var FlashID = [4]byte{0xCA, 0x7C, 0xA7, 0xFF}

// acceptedCommands lists command bytes that are valid but need no state
// beyond the command latch.
var acceptedCommands = map[byte]bool{
	CmdRead:       true,
	CmdReadID:     true,
	CmdPowerUp:    true,
	CmdReset:      true,
	CmdReadSR2:    true,
	CmdWriteSR2:   true,
	CmdVolatileWE: true,
	CmdReadSR1:    true,
	CmdWriteSR1:   true,
	CmdWriteEn:    true,
}

// flashState is the per-transaction state of the flash.
type flashState struct {
	lastClk   bool
	lastCsn   bool
	bitCount  int
	byteCount int
	width     uint
	addr      uint32
	currByte  byte
	command   byte
	out       byte
}

// SpiFlash is a SPI NOR flash supporting single and quad reads.
type SpiFlash struct {
	name string
	data []byte

	clk signal.Port
	csn signal.Port
	dO  signal.Port
	dOE signal.Port
	dI  signal.Port

	s      flashState
	logger *slog.Logger
}

// FlashOption configures a SpiFlash.
type FlashOption func(*SpiFlash)

// WithFlashLogger sets the logger for the flash model.
func WithFlashLogger(l *slog.Logger) FlashOption {
	return func(f *SpiFlash) { f.logger = l }
}

// NewSpiFlash creates a flash attached to the given ports. dOE may be nil;
// when present it masks dO. The contents start erased (all 0xFF).
func NewSpiFlash(name string, clk, csn, dO, dOE, dI signal.Port, opts ...FlashOption) *SpiFlash {
	f := &SpiFlash{
		name: name,
		data: make([]byte, FlashSize),
		clk:  clk,
		csn:  csn,
		dO:   dO,
		dOE:  dOE,
		dI:   dI,
	}
	for i := range f.data {
		f.data[i] = 0xFF
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = loggerOrDefault(f.logger)
	f.s.width = 1
	return f
}

// Name implements Peripheral.
func (f *SpiFlash) Name() string { return f.name }

// LoadImage copies the file at path into the flash at offset.
func (f *SpiFlash) LoadImage(path string, offset uint32) error {
	if int64(offset) >= FlashSize {
		return f.imageError(fmt.Sprintf("offset 0x%x beyond end", offset), nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return f.imageError("failed to read input file "+path, err)
	}
	defer file.Close()

	n, err := f.Load(file, offset)
	if err != nil {
		return err
	}
	f.logger.Debug("flash image loaded", "peripheral", f.name, "path", path, "offset", offset, "bytes", n)
	return nil
}

// Load copies r into the flash at offset and returns the byte count.
// An image larger than the space after offset is rejected and leaves the
// contents untouched.
func (f *SpiFlash) Load(r io.Reader, offset uint32) (int, error) {
	if int64(offset) >= FlashSize {
		return 0, f.imageError(fmt.Sprintf("offset 0x%x beyond end", offset), nil)
	}
	avail := int64(FlashSize) - int64(offset)
	img, err := io.ReadAll(io.LimitReader(r, avail+1))
	if err != nil {
		return 0, f.imageError("failed to read image", err)
	}
	if int64(len(img)) > avail {
		return 0, f.imageError(fmt.Sprintf("image does not fit at offset 0x%x (%d bytes free)", offset, avail), nil)
	}
	return copy(f.data[offset:], img), nil
}

func (f *SpiFlash) imageError(msg string, err error) error {
	return &engine.SimError{Code: engine.ErrCodeFlashImage, Message: msg, Peripheral: f.name, Err: err}
}

// ReadAt implements io.ReaderAt over the flash contents.
func (f *SpiFlash) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Reset returns the transaction state to power-on. Contents are kept.
func (f *SpiFlash) Reset() {
	f.s = flashState{width: 1}
}

// Step implements Peripheral.
func (f *SpiFlash) Step(eng *engine.Engine, _ uint64) error {
	for _, a := range eng.PendingActions(f.name) {
		f.logger.Warn("flash ignores actions", "peripheral", f.name, "event", a.Event)
	}

	clk := signal.High(f.clk)
	csn := signal.High(f.csn)
	var err error

	switch {
	case csn && !f.s.lastCsn:
		f.s.bitCount = 0
		f.s.byteCount = 0
		f.s.width = 1
	case clk && !f.s.lastClk && !csn:
		err = f.risingEdge()
	case !clk && f.s.lastClk && !csn:
		f.fallingEdge()
	}

	f.s.lastClk = clk
	f.s.lastCsn = csn
	return err
}

func (f *SpiFlash) risingEdge() error {
	in := f.dO.Get()
	if f.dOE != nil {
		in &= f.dOE.Get()
	}
	if f.s.width == 4 {
		f.s.currByte = f.s.currByte<<4 | byte(in&0xF)
	} else {
		f.s.currByte = f.s.currByte<<1 | byte(in&1)
	}
	f.s.out <<= f.s.width
	f.s.bitCount += int(f.s.width)
	if f.s.bitCount < 8 {
		return nil
	}
	err := f.processByte()
	f.s.byteCount++
	f.s.bitCount = 0
	return err
}

func (f *SpiFlash) fallingEdge() {
	if f.s.width == 4 {
		f.dI.Set(uint64(f.s.out>>4) & 0xF)
	} else {
		f.dI.Set(uint64(f.s.out>>7&1) << 1)
	}
}

func (f *SpiFlash) processByte() error {
	s := &f.s
	s.out = 0

	if s.byteCount == 0 {
		s.addr = 0
		s.width = 1
		s.command = s.currByte
		switch {
		case s.command == CmdQuadRead:
			s.width = 4
		case acceptedCommands[s.command]:
		default:
			return engine.PeripheralError(engine.ErrCodeUnknownCommand, f.name,
				fmt.Sprintf("unknown command %02x", s.command))
		}
		f.logger.Debug("flash command", "peripheral", f.name, "command", fmt.Sprintf("%02x", s.command))
	} else {
		switch s.command {
		case CmdRead:
			f.readByte(3)
		case CmdQuadRead:
			f.readByte(4)
		}
	}

	if s.command == CmdReadID {
		s.out = FlashID[s.byteCount%len(FlashID)]
	}
	return nil
}

// readByte accumulates the 24-bit address from bytes 1-3 and loads data
// from byte firstData on.
func (f *SpiFlash) readByte(firstData int) {
	s := &f.s
	if s.byteCount <= 3 {
		s.addr |= uint32(s.currByte) << ((3 - s.byteCount) * 8)
	}
	if s.byteCount >= firstData {
		s.out = f.data[s.addr]
		s.addr = (s.addr + 1) & addrMask
	}
}

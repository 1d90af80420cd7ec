package board

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/payload"
	"github.com/roach88/cosim/internal/periph"
	"github.com/roach88/cosim/internal/script"
	"github.com/roach88/cosim/internal/sim"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// runHost ticks until the QSPI host has issued every transaction.
func runHost(t *testing.T, sys *System) error {
	t.Helper()
	d := sys.Driver(engine.New(nil, nil, engine.WithLogger(quiet)), sim.WithLogger(quiet))
	for i := 0; !sys.Board.HostDone(); i++ {
		require.Less(t, i, 100000, "host did not finish")
		if err := d.Tick(); err != nil {
			return err
		}
	}
	return nil
}

func TestLoopback_IdleLines(t *testing.T) {
	b := NewLoopback(nil)
	assert.Equal(t, uint64(1), b.UartTx.Get())
	assert.Equal(t, uint64(1), b.UartRx.Get())
	assert.Equal(t, uint64(1), b.SpiCsn.Get())
}

func TestLoopback_EchoLatency(t *testing.T) {
	b := NewLoopback(nil)
	b.UartRx.Set(0)
	assert.Equal(t, uint64(1), b.UartTx.Get())

	require.NoError(t, b.Step())
	assert.Equal(t, uint64(0), b.UartTx.Get())
}

func TestSystem_SPIReads(t *testing.T) {
	img := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF}
	cfg := Config{
		Flash: FlashConfig{Image: writeImage(t, img), Offset: 0x100000},
		SPI: []Transaction{
			{Command: 0xAB},
			{Command: 0x9F, Read: 6},
			{Command: 0x03, Address: 0x100000, Read: 4},
			{Command: 0xEB, Address: 0x100004, Read: 4},
			{Command: 0x03, Address: 0x0FFFFF, Read: 2},
		},
	}
	sys, err := NewSystem(cfg, Options{Logger: quiet})
	require.NoError(t, err)
	require.NoError(t, runHost(t, sys))

	assert.Equal(t, []Read{
		{Command: 0xAB, Address: 0, Data: nil},
		{Command: 0x9F, Address: 0, Data: []byte{0xCA, 0x7C, 0xA7, 0xFF, 0xCA, 0x7C}},
		{Command: 0x03, Address: 0x100000, Data: []byte{0x01, 0x23, 0x45, 0x67}},
		{Command: 0xEB, Address: 0x100004, Data: []byte{0x89, 0xAB, 0xCD, 0xEF}},
		{Command: 0x03, Address: 0x0FFFFF, Data: []byte{0xFF, 0x01}},
	}, sys.Board.Reads())
}

func TestSystem_UnknownCommand(t *testing.T) {
	sys, err := NewSystem(Config{SPI: []Transaction{{Command: 0x42}}}, Options{Logger: quiet})
	require.NoError(t, err)

	err = runHost(t, sys)
	require.Error(t, err)
	assert.True(t, engine.IsCode(err, engine.ErrCodeUnknownCommand))
}

func TestSystem_FlashImageErrors(t *testing.T) {
	_, err := NewSystem(Config{Flash: FlashConfig{Image: "missing.bin"}}, Options{BaseDir: t.TempDir(), Logger: quiet})
	assert.True(t, engine.IsCode(err, engine.ErrCodeFlashImage))
}

func TestSystem_RelativeImage(t *testing.T) {
	path := writeImage(t, []byte{0x5A})
	sys, err := NewSystem(Config{Flash: FlashConfig{Image: filepath.Base(path)}}, Options{BaseDir: filepath.Dir(path), Logger: quiet})
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = sys.Flash.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x5A}, buf)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero value", Config{}, ""},
		{"divisor too small", Config{BaudDiv: 1}, "baud_div"},
		{"offset past end", Config{Flash: FlashConfig{Offset: 0x1000000}}, "flash.offset"},
		{"negative read", Config{SPI: []Transaction{{Command: 0x03, Read: -1}}}, "spi[0]"},
		{"wide address", Config{SPI: []Transaction{{Command: 0x03, Address: 0x1000000}}}, "24 bits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func uartScript(data ...int64) []script.Command {
	var cmds []script.Command
	for _, b := range data {
		cmds = append(cmds, script.Command{Kind: script.Action, Peripheral: UartName, Event: "tx", Payload: payload.Int(b)})
	}
	for _, b := range data {
		cmds = append(cmds, script.Command{Kind: script.Wait, Peripheral: UartName, Event: "tx", Payload: payload.Int(b)})
	}
	return append(cmds, script.Command{Kind: script.Action, Peripheral: sim.ControlPeripheral, Event: sim.EventExit, Payload: payload.Null{}})
}

func runEcho(t *testing.T, console io.Writer) ([]ledger.Entry, engine.Summary, sim.Result) {
	t.Helper()
	sys, err := NewSystem(Config{BaudDiv: 8}, Options{Console: console, Logger: quiet})
	require.NoError(t, err)

	sink := &ledger.Memory{}
	eng := engine.New(uartScript('o', 'k'), sink, engine.WithLogger(quiet))
	res, err := sys.Driver(eng, sim.WithLogger(quiet)).Run(context.Background(), 10000)
	require.NoError(t, err)

	summary, err := eng.Close()
	require.NoError(t, err)
	return sink.Entries, summary, res
}

func TestSystem_UartEcho(t *testing.T) {
	var console bytes.Buffer
	entries, summary, res := runEcho(t, &console)

	assert.Equal(t, sim.StopExit, res.Reason)
	assert.True(t, summary.Complete())
	require.Len(t, entries, 2)
	assert.Equal(t, payload.Int('o'), entries[0].Payload)
	assert.Equal(t, payload.Int('k'), entries[1].Payload)
	assert.Equal(t, "ok", console.String())
}

func TestSystem_Deterministic(t *testing.T) {
	first, _, res1 := runEcho(t, nil)
	second, _, res2 := runEcho(t, nil)

	assert.Equal(t, -1, ledger.Compare(first, second))
	assert.Equal(t, res1, res2)
}

func TestSystem_UartBitTiming(t *testing.T) {
	sys, err := NewSystem(Config{}, Options{Logger: quiet})
	require.NoError(t, err)
	b := periph.DefaultBaudDiv

	sink := &ledger.Memory{}
	eng := engine.New(uartScript(0x41), sink, engine.WithLogger(quiet))
	d := sys.Driver(eng, sim.WithLogger(quiet))

	// The start bit is driven low for exactly B ticks, then bit 0 of 0x41.
	low := 0
	for {
		require.NoError(t, d.Tick())
		if sys.Board.UartRx.Get() != 0 {
			break
		}
		low++
		require.LessOrEqual(t, low, 2*b)
	}
	assert.Equal(t, b, low)

	res, err := d.Run(context.Background(), 0)
	require.NoError(t, err)

	// The echo reaches the receiver one tick later; bit 8 is sampled
	// B/2 + 8B ticks after that.
	sampleTick := uint64(b/2 + 8*b)
	require.Len(t, sink.Entries, 1)
	assert.Equal(t, ledger.Entry{Timestamp: 2 * sampleTick, Peripheral: UartName, Event: "tx", Payload: payload.Int(0x41)}, sink.Entries[0])
	assert.Equal(t, sim.Result{Reason: sim.StopExit, Ticks: sampleTick + 1, Timestamp: 2 * (sampleTick + 1)}, res)
}

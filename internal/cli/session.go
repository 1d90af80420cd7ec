package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cosim/internal/board"
	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/script"
	"github.com/roach88/cosim/internal/sim"
)

// setupLogging installs a text handler on w as the default logger, at
// Debug when verbose and Info otherwise.
func setupLogging(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadScript loads a script file and returns its commands and digest.
func loadScript(path string) ([]script.Command, string, error) {
	cmds, err := engine.LoadScript(path)
	if err != nil {
		return nil, "", err
	}
	digest, err := script.Digest(cmds)
	if err != nil {
		return nil, "", engine.WrapError(engine.ErrCodeScriptParse, "failed to digest script", err)
	}
	return cmds, digest, nil
}

// loadBoard reads a YAML board description. A relative flash image path
// is made absolute against the board file's directory so the stored
// config can be replayed from anywhere. An empty path yields the default
// board.
func loadBoard(path string) (board.Config, error) {
	var cfg board.Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read board file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("failed to parse board file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid board file: %w", err)
	}
	if img := cfg.Flash.Image; img != "" && !filepath.IsAbs(img) {
		abs, err := filepath.Abs(filepath.Join(filepath.Dir(path), img))
		if err != nil {
			return cfg, fmt.Errorf("resolve flash image: %w", err)
		}
		cfg.Flash.Image = abs
	}
	return cfg, nil
}

// encodeBoard renders cfg in the form stored with a recorded run.
func encodeBoard(cfg board.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode board config: %w", err)
	}
	return string(data), nil
}

func decodeBoard(s string) (board.Config, error) {
	var cfg board.Config
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode board config: %w", err)
	}
	return cfg, nil
}

// simSpec is everything one simulation needs.
type simSpec struct {
	Commands     []script.Command
	Board        board.Config
	MaxTicks     uint64
	StopWhenDone bool
	Console      io.Writer
	Sinks        []ledger.Sink
	Logger       *slog.Logger
}

// simOutcome is what a simulation produced.
type simOutcome struct {
	Stop    sim.Result
	Summary engine.Summary
	Reads   []board.Read
	Events  []ledger.Entry

	// SPIPending counts configured transactions the host never finished.
	SPIPending int
}

// simulate builds the board, runs the driver, and closes the engine and
// every sink. A canceled context ends the run normally with reason
// canceled.
func simulate(ctx context.Context, spec simSpec) (simOutcome, error) {
	mem := &ledger.Memory{}
	sink := ledger.Tee(append([]ledger.Sink{mem}, spec.Sinks...)...)

	sys, err := board.NewSystem(spec.Board, board.Options{Console: spec.Console, Logger: spec.Logger})
	if err != nil {
		_ = sink.Close()
		return simOutcome{}, err
	}

	eng := engine.New(spec.Commands, sink, engine.WithLogger(spec.Logger))
	opts := []sim.Option{sim.WithLogger(spec.Logger)}
	if spec.StopWhenDone {
		opts = append(opts, sim.StopWhenDone())
	}

	stop, runErr := sys.Driver(eng, opts...).Run(ctx, spec.MaxTicks)
	if stop.Reason == sim.StopCanceled {
		runErr = nil
	}
	summary, closeErr := eng.Close()

	out := simOutcome{
		Stop:    stop,
		Summary: summary,
		Reads:   sys.Board.Reads(),
		Events:  mem.Entries,
	}
	if !sys.Board.HostDone() {
		out.SPIPending = len(spec.Board.SPI) - len(out.Reads)
	}
	if runErr != nil {
		return out, runErr
	}
	return out, closeErr
}

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cosim/internal/board"
	"github.com/roach88/cosim/internal/engine"
	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/sim"
	"github.com/roach88/cosim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Board        string
	Log          string
	Database     string
	MaxTicks     uint64
	StopWhenDone bool
	Echo         bool

	// IDGenerator overrides run ID generation (for testing).
	// Defaults to store.UUIDv7Generator.
	IDGenerator store.IDGenerator
}

// RunReport is the output of the run command.
type RunReport struct {
	RunID   string         `json:"run_id,omitempty"`
	Script  string         `json:"script"`
	Digest  string         `json:"script_digest"`
	Log     string         `json:"log,omitempty"`
	Stop    sim.Result     `json:"stop"`
	Summary engine.Summary `json:"summary"`
	Reads   []board.Read   `json:"reads,omitempty"`

	SPIPending int `json:"spi_pending,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script against the loopback board",
		Long: `Run a wait/action script against the loopback board until the script
issues sim/exit, --max-ticks is reached, or the process is interrupted.

Events are written to --log as they are emitted and, with --db, recorded
in SQLite under a new run ID for trace and replay.

Exit codes:
  0 - Run completed (unmatched script commands are only a warning)
  2 - Command error or fatal simulation error

Examples:
  cosim run script.json --log events.json
  cosim run script.yaml --board board.yaml --max-ticks 100000 --echo
  cosim run script.cue --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Board, "board", "", "board description (YAML)")
	cmd.Flags().StringVar(&opts.Log, "log", "", "event log output path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().Uint64Var(&opts.MaxTicks, "max-ticks", 0, "stop after this many ticks (0 = no limit)")
	cmd.Flags().BoolVar(&opts.StopWhenDone, "stop-when-done", false, "stop once every script command is consumed")
	cmd.Flags().BoolVar(&opts.Echo, "echo", false, "print bytes received by the UART")

	return cmd
}

func runSimulation(opts *RunOptions, scriptPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	cmds, digest, err := loadScript(scriptPath)
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err, CodeGeneric), "failed to load script", err)
	}
	cfg, err := loadBoard(opts.Board)
	if err != nil {
		return f.Fail(ExitCommandError, CodeBoardConfig, "failed to load board", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := RunReport{Script: scriptPath, Digest: digest, Log: opts.Log}
	spec := simSpec{
		Commands:     cmds,
		Board:        cfg,
		MaxTicks:     opts.MaxTicks,
		StopWhenDone: opts.StopWhenDone,
		Logger:       logger,
	}
	if opts.Echo {
		spec.Console = cmd.OutOrStdout()
		if f.JSON() {
			spec.Console = cmd.ErrOrStderr()
		}
	}

	if opts.Log != "" {
		w, err := ledger.Create(opts.Log)
		if err != nil {
			err = engine.WrapError(engine.ErrCodeLogOpen, "failed to open event log", err)
			return f.Fail(ExitCommandError, string(engine.ErrCodeLogOpen), "failed to open event log", err)
		}
		spec.Sinks = append(spec.Sinks, w)
	}

	var rec *recorder
	if opts.Database != "" {
		rec, err = startRecording(ctx, opts, scriptPath, digest, cfg)
		if err != nil {
			closeSinks(spec.Sinks)
			return f.Fail(ExitCommandError, CodeDatabase, "failed to record run", err)
		}
		defer rec.close(logger)
		report.RunID = rec.id
		spec.Sinks = append(spec.Sinks, rec.sink)
	}

	logger.Info("run starting", "script", scriptPath, "commands", len(cmds), "max_ticks", opts.MaxTicks)
	out, simErr := simulate(ctx, spec)
	report.Stop, report.Summary, report.Reads = out.Stop, out.Summary, out.Reads
	report.SPIPending = out.SPIPending
	logger.Info("run stopped", "reason", out.Stop.Reason, "ticks", out.Stop.Ticks, "events", out.Summary.Events)

	if rec != nil {
		// The run context may be canceled by now.
		if err := rec.finish(context.Background(), out, simErr); err != nil {
			logger.Error("failed to record run outcome", "run_id", rec.id, "error", err)
		}
	}

	if simErr != nil {
		return f.Fail(ExitCommandError, errorCode(simErr, CodeGeneric), "simulation failed", simErr)
	}

	if f.JSON() {
		return f.Respond(CLIResponse{Status: "ok", Data: report, RunID: report.RunID})
	}
	writeRunReport(cmd.OutOrStdout(), report)
	return nil
}

func closeSinks(sinks []ledger.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}

func writeRunReport(w io.Writer, r RunReport) {
	fmt.Fprintf(w, "Run stopped: %s after %d ticks (timestamp %d)\n", r.Stop.Reason, r.Stop.Ticks, r.Stop.Timestamp)
	fmt.Fprintf(w, "Events: %d\n", r.Summary.Events)
	fmt.Fprintf(w, "Script: %d/%d commands consumed", r.Summary.Cursor, r.Summary.Total)
	if r.Summary.Unmatched > 0 {
		fmt.Fprintf(w, " (%d unmatched)", r.Summary.Unmatched)
	}
	fmt.Fprintln(w)
	for _, read := range r.Reads {
		fmt.Fprintf(w, "  SPI %s\n", read)
	}
	if r.SPIPending > 0 {
		fmt.Fprintf(w, "  SPI: %d transaction(s) not completed\n", r.SPIPending)
	}
	if r.Log != "" {
		fmt.Fprintf(w, "Log: %s\n", r.Log)
	}
	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", r.RunID)
	}
}

// recorder mirrors one run into the store.
type recorder struct {
	st   *store.Store
	id   string
	sink *store.RunSink
}

func startRecording(ctx context.Context, opts *RunOptions, scriptPath, digest string, cfg board.Config) (*recorder, error) {
	boardJSON, err := encodeBoard(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, err
	}

	gen := opts.IDGenerator
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	id := gen.Generate()
	err = st.CreateRun(ctx, store.Run{
		ID:           id,
		ScriptPath:   scriptPath,
		ScriptDigest: digest,
		BoardConfig:  boardJSON,
		MaxTicks:     opts.MaxTicks,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	// The sink outlives the run context so a canceled run keeps its events.
	return &recorder{st: st, id: id, sink: st.NewRunSink(context.Background(), id)}, nil
}

func (r *recorder) finish(ctx context.Context, out simOutcome, simErr error) error {
	o := store.Outcome{
		Status:     store.StatusFinished,
		StopReason: string(out.Stop.Reason),
		Ticks:      out.Stop.Ticks,
		Total:      out.Summary.Total,
		Cursor:     out.Summary.Cursor,
		Unmatched:  out.Summary.Unmatched,
		Events:     r.sink.Count(),
	}
	if simErr != nil {
		o.Status = store.StatusFailed
		o.Error = simErr.Error()
	}
	return r.st.FinishRun(ctx, r.id, o)
}

func (r *recorder) close(logger *slog.Logger) {
	if err := r.st.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}

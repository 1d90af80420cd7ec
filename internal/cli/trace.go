package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cosim/internal/ledger"
	"github.com/roach88/cosim/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	RunID      string
	Peripheral string
	Event      string
}

// TraceResult is a recorded run and its (filtered) events.
type TraceResult struct {
	Run    store.Run      `json:"run"`
	Events []ledger.Entry `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded runs and their events",
		Long: `Show runs recorded with "cosim run --db". Without --run, lists every run.
With --run, prints the run's outcome and its event log, optionally
filtered by peripheral and event.

Examples:
  cosim trace --db runs.db
  cosim trace --db runs.db --run 0190c5a2-... --peripheral uart
  cosim trace --db runs.db --run 0190c5a2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show")
	cmd.Flags().StringVar(&opts.Peripheral, "peripheral", "", "only events from this peripheral")
	cmd.Flags().StringVar(&opts.Event, "event", "", "only events of this type")

	return cmd
}

// openExisting opens a store that must already exist; store.Open would
// otherwise create an empty database.
func openExisting(f *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.Fail(ExitCommandError, CodeNotFound, fmt.Sprintf("database not found: %s", path), nil)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, CodeDatabase, "failed to open database", err)
	}
	return st, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	st, err := openExisting(f, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, f, st)
	}

	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, CodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, CodeDatabase, "failed to get run", err)
	}
	events, err := st.Events(ctx, run.ID, store.EventFilter{Peripheral: opts.Peripheral, Event: opts.Event})
	if err != nil {
		return f.Fail(ExitCommandError, CodeDatabase, "failed to read events", err)
	}

	if f.JSON() {
		return f.Respond(CLIResponse{Status: "ok", Data: TraceResult{Run: run, Events: events}, RunID: run.ID})
	}

	w := f.Writer
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  script:  %s (%s)\n", run.ScriptPath, shortDigest(run.ScriptDigest))
	fmt.Fprintf(w, "  status:  %s", run.Status)
	if run.StopReason != "" {
		fmt.Fprintf(w, ", stopped by %s after %d ticks", run.StopReason, run.Ticks)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  script:  %d/%d commands consumed\n", run.Cursor, run.Total)
	if run.Error != "" {
		fmt.Fprintf(w, "  error:   %s\n", run.Error)
	}
	if opts.Verbose {
		fmt.Fprintf(w, "  board:   %s\n", run.BoardConfig)
	}

	fmt.Fprintln(w)
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintln(w, e)
	}
	return nil
}

func listRuns(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, CodeDatabase, "failed to list runs", err)
	}
	if f.JSON() {
		return f.Respond(CLIResponse{Status: "ok", Data: runs})
	}
	if len(runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(f.Writer, "%s  %-8s  %-11s  %6d events  %s\n",
			r.ID, r.Status, r.StopReason, r.Events, r.ScriptPath)
	}
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

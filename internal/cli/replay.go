package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cosim/internal/sim"
	"github.com/roach88/cosim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
	Script   string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run a recorded run and verify determinism",
		Long: `Re-run a recorded run with the same script, board, and tick limit, and
compare the new event log with the recorded one entry by entry.

The script must have the digest recorded with the run.

Exit codes:
  0 - Logs are identical
  1 - Logs differ
  2 - Command error (database or run not found, digest mismatch, etc.)

Examples:
  cosim replay --db runs.db --run 0190c5a2-... --script script.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to replay (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().StringVar(&opts.Script, "script", "", "script the run was made with (required)")
	_ = cmd.MarkFlagRequired("script")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := setupLogging(cmd.ErrOrStderr(), opts.Verbose)
	ctx := context.Background()

	st, err := openExisting(f, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, CodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, CodeDatabase, "failed to get run", err)
	}

	cmds, digest, err := loadScript(opts.Script)
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err, CodeGeneric), "failed to load script", err)
	}
	if digest != run.ScriptDigest {
		return f.Fail(ExitCommandError, CodeDigestChanged,
			fmt.Sprintf("script digest %s does not match recorded %s", shortDigest(digest), shortDigest(run.ScriptDigest)), nil)
	}
	cfg, err := decodeBoard(run.BoardConfig)
	if err != nil {
		return f.Fail(ExitCommandError, CodeBoardConfig, "invalid recorded board", err)
	}

	f.VerboseLog("replaying run %s (%d commands, max %d ticks)", run.ID, len(cmds), run.MaxTicks)
	out, simErr := simulate(ctx, simSpec{
		Commands:     cmds,
		Board:        cfg,
		MaxTicks:     run.MaxTicks,
		StopWhenDone: run.StopReason == string(sim.StopDone),
		Logger:       logger,
	})
	if simErr != nil && run.Status != store.StatusFailed {
		return f.Fail(ExitCommandError, errorCode(simErr, CodeGeneric), "replay failed", simErr)
	}

	cmp, err := st.CompareRun(ctx, run.ID, out.Events)
	if err != nil {
		return f.Fail(ExitCommandError, CodeDatabase, "failed to compare run", err)
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: cmp, RunID: run.ID}
		if !cmp.Identical {
			resp.Status = "error"
			resp.Error = &CLIError{Code: CodeNotIdentical, Message: fmt.Sprintf("logs differ at entry %d", cmp.FirstDiff)}
		}
		if err := f.Respond(resp); err != nil {
			return err
		}
	} else {
		w := f.Writer
		fmt.Fprintf(w, "Run %s: %d recorded, %d replayed\n", run.ID, cmp.Recorded, cmp.Replayed)
		if cmp.Identical {
			fmt.Fprintln(w, "✓ Replay identical")
		} else {
			fmt.Fprintf(w, "✗ Logs differ at entry %d\n", cmp.FirstDiff)
			if cmp.Want != nil {
				fmt.Fprintf(w, "  recorded: %s\n", cmp.Want)
			}
			if cmp.Got != nil {
				fmt.Fprintf(w, "  replayed: %s\n", cmp.Got)
			}
		}
	}

	if !cmp.Identical {
		return NewExitError(ExitFailure, fmt.Sprintf("replay of %s diverged at entry %d", run.ID, cmp.FirstDiff))
	}
	return nil
}

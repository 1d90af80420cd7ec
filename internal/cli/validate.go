package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cosim/internal/script"
)

// ScriptReport describes one validated script.
type ScriptReport struct {
	Path    string          `json:"path"`
	Valid   bool            `json:"valid"`
	Digest  string          `json:"digest,omitempty"`
	Summary *script.Summary `json:"summary,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool           `json:"valid"`
	Scripts []ScriptReport `json:"scripts"`
	Board   string         `json:"board,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var boardPath string

	cmd := &cobra.Command{
		Use:   "validate <script>...",
		Short: "Check scripts without running them",
		Long: `Parse one or more scripts (JSON, YAML, or CUE by extension) and report
their structure: command counts, the actions queued before the first wait,
the peripherals addressed, and the script digest.

Exit codes:
  0 - All scripts valid
  1 - One or more scripts invalid
  2 - Board file invalid`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, boardPath, args, cmd)
		},
	}

	cmd.Flags().StringVar(&boardPath, "board", "", "also validate this board description")

	return cmd
}

func runValidate(opts *RootOptions, boardPath string, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if boardPath != "" {
		if _, err := loadBoard(boardPath); err != nil {
			return f.Fail(ExitCommandError, CodeBoardConfig, "invalid board", err)
		}
		f.VerboseLog("board %s is valid", boardPath)
	}

	result := ValidationResult{Valid: true, Scripts: make([]ScriptReport, 0, len(paths)), Board: boardPath}
	for _, path := range paths {
		r := validateScript(path)
		if !r.Valid {
			result.Valid = false
		}
		result.Scripts = append(result.Scripts, r)
	}

	failed := 0
	for _, r := range result.Scripts {
		if !r.Valid {
			failed++
		}
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failed > 0 {
			resp.Status = "error"
			first := firstInvalid(result.Scripts)
			resp.Error = &CLIError{Code: first.Code, Message: first.Error}
		}
		if err := f.Respond(resp); err != nil {
			return err
		}
	} else {
		w := f.Writer
		for _, r := range result.Scripts {
			if !r.Valid {
				fmt.Fprintf(w, "✗ %s\n  %s\n", r.Path, r.Error)
				continue
			}
			s := r.Summary
			fmt.Fprintf(w, "✓ %s: %d commands (%d waits, %d actions, %d prefetched)\n",
				r.Path, s.Total, s.Waits, s.Actions, s.Prefetched)
			if len(s.Peripherals) > 0 {
				fmt.Fprintf(w, "  peripherals: %s\n", strings.Join(s.Peripherals, ", "))
			}
			if opts.Verbose {
				fmt.Fprintf(w, "  digest: %s\n", r.Digest)
			}
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d script(s)", failed))
	}
	return nil
}

func validateScript(path string) ScriptReport {
	cmds, digest, err := loadScript(path)
	if err != nil {
		return ScriptReport{Path: path, Code: errorCode(err, CodeGeneric), Error: err.Error()}
	}
	s := script.Summarize(cmds)
	return ScriptReport{Path: path, Valid: true, Digest: digest, Summary: &s}
}

func firstInvalid(rs []ScriptReport) ScriptReport {
	for _, r := range rs {
		if !r.Valid {
			return r
		}
	}
	return ScriptReport{}
}

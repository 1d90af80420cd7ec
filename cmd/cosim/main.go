// Command cosim runs scripted co-simulations of a SPI flash and UART
// loopback board.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/cosim/internal/cli"
)

func main() {
	err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:])
	os.Exit(cli.GetExitCode(err))
}

// run executes the command line in args. Errors already reported by a
// command arrive as *cli.ExitError; anything else (flag parsing, unknown
// commands) is printed here.
func run(ctx context.Context, out, errOut io.Writer, args []string) error {
	cmd := cli.NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return cli.WrapExitError(cli.ExitCommandError, "invalid invocation", err)
	}
	return err
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/tastythames/jobdispatch/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code. Any
// failure is printed as a single line on stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := cli.Execute(ctx, &cli.App{Out: stdout, Err: stderr}, args)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "%s %v\n", prefix(stderr), err)
	return 1
}

func prefix(w io.Writer) string {
	const p = "jobdispatch:"
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return p
	}
	c := color.New(color.FgRed, color.Bold)
	c.EnableColor()
	return c.Sprint(p)
}

// Command psexplorer computes, repairs and explores the solved grid of a
// P–T phase diagram.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ExitError carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, out io.Writer, args []string) error
}

var commands = []command{
	{"grid", "compute the grid, repair it and save it", runGrid},
	{"repair", "retry failed points of the saved grid from their neighbours", runRepair},
	{"isopleths", "contour a phase property over the saved grid", runIsopleths},
	{"tab", "export gridded phase variables as a .tab table", runTab},
	{"status", "summarise the saved grid", runStatus},
	{"serve", "serve the saved grid over a read-only HTTP API", runServe},
	{"demo", "run the whole pipeline against the synthetic solver", runDemo},
}

func main() {
	// Use a minimal logger until the configured one is built.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		usage(out)
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, out, args[1:])
		}
	}
	usage(out)
	return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", args[0])}
}

func usage(out io.Writer) {
	fmt.Fprint(out, "psexplorer - explore computed P–T phase diagrams\n\nUsage:\n  psexplorer <command> [options]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.usage)
	}
}

// newFlagSet returns a flag set with the options every command shares.
func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	cfgPath := fs.String("config", "psexplorer.yaml", "Path to the YAML configuration file.")
	return fs, cfgPath
}

// parse turns flag errors into exit codes; help exits cleanly.
func parse(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, &ExitError{Code: 2, Message: err.Error()}
	}
	return false, nil
}

// rbatool builds, inspects and unpacks RBA archives, and reads files through
// a mount layout.
//
// Usage:
//
//	rbatool pack [flags] SRC DST
//	rbatool unpack ARCHIVE DEST
//	rbatool list ARCHIVE
//	rbatool info ARCHIVE
//	rbatool cat --config FILE PATH
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
)

// command is one rbatool subcommand.
type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

// env carries the process streams and logger into commands.
type env struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// commands is populated in init because newFlagSet refers back to it.
var commands []command

func init() {
	commands = []command{
		{"pack", "pack [flags] SRC DST", "build an archive from a directory", runPack},
		{"unpack", "unpack [flags] ARCHIVE DEST", "extract every entry of an archive", runUnpack},
		{"list", "list [flags] ARCHIVE", "list archive entries", runList},
		{"info", "info [flags] ARCHIVE", "show the archive header and digest", runInfo},
		{"cat", "cat --config FILE [flags] PATH", "print a logical file resolved through a mount layout", runCat},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "rbatool: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return errors.New("missing command")
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(ctx, &env{stdout: stdout, stderr: stderr}, args[1:])
		}
	}
	printUsage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: rbatool COMMAND [flags] [args]")
	fmt.Fprintln(w)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
}

// newFlagSet returns a flag set for cmd with the shared logging flags.
func newFlagSet(cmd string, e *env, verbose *bool) *pflag.FlagSet {
	fset := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fset.SetOutput(e.stderr)
	fset.BoolVarP(verbose, "verbose", "v", false, "log progress to stderr")
	for _, c := range commands {
		if c.name == cmd {
			fset.Usage = func() {
				fmt.Fprintf(e.stderr, "usage: rbatool %s\n", c.usage)
				fset.PrintDefaults()
			}
		}
	}
	return fset
}

// parse parses args and sets up the logger. It fails unless exactly nargs
// positional arguments remain.
func parse(fset *pflag.FlagSet, e *env, verbose *bool, args []string, nargs int) ([]string, error) {
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	e.logger = slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: level}))

	rest := fset.Args()
	if len(rest) != nargs {
		fset.Usage()
		return nil, fmt.Errorf("%s: want %d arguments, got %d", fset.Name(), nargs, len(rest))
	}
	return rest, nil
}

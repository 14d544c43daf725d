// Command dosimap queries a calibration dataset from the command line.
//
// Usage:
//
//	dosimap <command> [flags]
//
// Commands:
//
//	predict  predict TDS₀ for one valve time and cumulative time
//	plan     run the dosing controller and list the chosen valve times
//	table    generate the lookup table as json, bin or c
//	plot     draw predicted curves for a set of valve times as PNG
//
// Every command accepts -source, -source-path, -source-opt, -profile,
// -log-level and -log-format. predict and plan also accept -addr to query a
// running predictor over gRPC instead of loading the source locally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is set via ldflags at build time
var version = "dev"

const usage = `Usage: dosimap <command> [flags]

Commands:
  predict  predict TDS₀ for one valve time and cumulative time
  plan     run the dosing controller and list the chosen valve times
  table    generate the lookup table as json, bin or c
  plot     draw predicted curves for a set of valve times as PNG
  version  print the version

Run 'dosimap <command> -h' for the flags of a command.
`

var commands = map[string]func(ctx context.Context, args []string, stdout, stderr io.Writer) error{
	"predict": runPredict,
	"plan":    runPlan,
	"table":   runTable,
	"plot":    runPlot,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	name := args[0]
	switch name {
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "version":
		fmt.Fprintln(stdout, "dosimap", version)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "dosimap: unknown command %q\n\n%s", name, usage)
		return 2
	}

	if err := cmd(ctx, args[1:], stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "dosimap %s: %v\n", name, err)
		return 1
	}
	return 0
}

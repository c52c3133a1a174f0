// escrowd runs the escrow custody service: a single-writer ledger, the escrow
// state machine and its HTTP API.
//
// Usage:
//
//	escrowd [serve] --config escrowd.toml
//	escrowd init --config escrowd.toml
//	escrowd token --config escrowd.toml --subject esc1...
//	escrowd export --config escrowd.toml --format jsonl
//	escrowd keygen --out owner.json
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, args, stderr)
	case "init":
		return runInit(args, stdout)
	case "token":
		return runToken(args, stdout)
	case "export":
		return runExport(args, stdout, stderr)
	case "keygen":
		return runKeygen(args, stdout)
	case "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: escrowd [serve|init|token|export|keygen] [flags]")
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", os.Getenv("ESCROWD_CONFIG"), "path to a .toml or .yaml config file")
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string, out io.Writer) (bool, error) {
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return false, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return true, nil
}

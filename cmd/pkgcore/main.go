// Command pkgcore is the reference CLI driving the core package
// manager library: query, install, remove, upgrade, reinstall.
// Commands are dispatched over a small command interface, one
// flag.FlagSet each. Exit codes: 0 success, 1 user or dependency
// error, 2 usage error, 130 interrupted.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/packagecore/pkgcore/iface"
	"github.com/packagecore/pkgcore/perrors"
)

var verbose = flag.Bool("v", false, "enable verbose logging")

type command interface {
	Name() string
	Args() string
	ShortHelp() string
	LongHelp() string
	Register(*flag.FlagSet)
	Run(ctx context.Context, c *appContext, args []string) error
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ui := iface.NewTTY(os.Stdout, os.Stderr, os.Stdin)

	commands := []command{
		&queryCommand{},
		&installCommand{},
		&removeCommand{},
		&upgradeCommand{},
		&reinstallCommand{},
	}

	usage := func() {
		fmt.Fprintln(os.Stderr, "Usage: pkgcore <command> [flags] [args]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr)
		w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
		}
		w.Flush()
		fmt.Fprintln(os.Stderr)
	}

	if len(args) == 0 || strings.ToLower(args[0]) == "-h" || strings.Contains(strings.ToLower(args[0]), "help") {
		usage()
		return 2
	}

	for _, cmd := range commands {
		if cmd.Name() != args[0] {
			continue
		}

		fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
		fs.BoolVar(verbose, "v", false, "enable verbose logging")
		var configDir string
		fs.StringVar(&configDir, "config-dir", defaultConfigDir(), "pkgcore state directory")
		cmd.Register(fs)
		resetUsage(fs, cmd.Name(), cmd.Args(), cmd.LongHelp())

		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		c, err := newContext(configDir, *verbose, ui)
		if err != nil {
			ui.Error(err.Error())
			return exitCode(err)
		}

		err = cmd.Run(runCtx, c, fs.Args())
		if runCtx.Err() != nil {
			return 130
		}
		if err != nil {
			ui.Error(err.Error())
			return exitCode(err)
		}
		return 0
	}

	fmt.Fprintf(os.Stderr, "pkgcore: no such command %q\n", args[0])
	usage()
	return 2
}

// exitCode maps an error to the process exit code: usage errors are 2,
// everything else that reaches main is a user-facing or dependency
// failure (1).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*perrors.UsageError); ok {
		return 2
	}
	return 1
}

func resetUsage(fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pkgcore %s %s\n", name, args)
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, strings.TrimSpace(longHelp))
		fmt.Fprintln(os.Stderr)
		if hasFlags {
			fmt.Fprintln(os.Stderr, "Flags:")
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, flagBlock.String())
		}
	}
}

package main

import (
	"context"
	"flag"

	"github.com/packagecore/pkgcore/transaction"
)

const reinstallShortHelp = `Reinstall one or more already-installed packages`
const reinstallLongHelp = `
Reinstalls packages that are already present in the system. A spec
matching only uninstalled packages is skipped with a warning rather
than failing the whole run.
`

type reinstallCommand struct{ txnFlags }

func (cmd *reinstallCommand) Name() string      { return "reinstall" }
func (cmd *reinstallCommand) Args() string      { return "<spec> [spec...]" }
func (cmd *reinstallCommand) ShortHelp() string { return reinstallShortHelp }
func (cmd *reinstallCommand) LongHelp() string  { return reinstallLongHelp }

func (cmd *reinstallCommand) Register(fs *flag.FlagSet) { cmd.txnFlags.register(fs) }

func (cmd *reinstallCommand) Run(ctx context.Context, c *appContext, args []string) error {
	ids, err := resolveArgs(c, args, true)
	if err != nil {
		return err
	}
	return runTxn(ctx, c, &cmd.txnFlags, transaction.QReinstall, ids)
}

package main

import (
	"context"
	"flag"

	"github.com/packagecore/pkgcore/transaction"
)

const removeShortHelp = `Remove one or more installed packages`
const removeLongHelp = `
Resolves and removes the installed packages matching each given spec,
cascading to anything that depended solely on them.
`

type removeCommand struct{ txnFlags }

func (cmd *removeCommand) Name() string      { return "remove" }
func (cmd *removeCommand) Args() string      { return "<spec> [spec...]" }
func (cmd *removeCommand) ShortHelp() string { return removeShortHelp }
func (cmd *removeCommand) LongHelp() string  { return removeLongHelp }

func (cmd *removeCommand) Register(fs *flag.FlagSet) { cmd.txnFlags.register(fs) }

func (cmd *removeCommand) Run(ctx context.Context, c *appContext, args []string) error {
	ids, err := resolveArgs(c, args, true)
	if err != nil {
		return err
	}
	return runTxn(ctx, c, &cmd.txnFlags, transaction.QRemove, ids)
}

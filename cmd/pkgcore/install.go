package main

import (
	"context"
	"flag"

	"github.com/packagecore/pkgcore/transaction"
)

const installShortHelp = `Install one or more packages`
const installLongHelp = `
Resolves and installs the packages matching each given spec, pulling in
whatever else the transaction requires.
`

type installCommand struct{ txnFlags }

func (cmd *installCommand) Name() string      { return "install" }
func (cmd *installCommand) Args() string      { return "<spec> [spec...]" }
func (cmd *installCommand) ShortHelp() string { return installShortHelp }
func (cmd *installCommand) LongHelp() string  { return installLongHelp }

func (cmd *installCommand) Register(fs *flag.FlagSet) { cmd.txnFlags.register(fs) }

func (cmd *installCommand) Run(ctx context.Context, c *appContext, args []string) error {
	ids, err := resolveArgs(c, args, false)
	if err != nil {
		return err
	}
	return runTxn(ctx, c, &cmd.txnFlags, transaction.QInstall, ids)
}

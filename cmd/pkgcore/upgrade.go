package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/query"
	"github.com/packagecore/pkgcore/transaction"
	"github.com/packagecore/pkgcore/version"
)

const upgradeShortHelp = `Upgrade installed packages to their latest available version`
const upgradeLongHelp = `
With no arguments, upgrades every installed package that has a newer
version available. With one or more specs, restricts the upgrade to
the matching package names.
`

type upgradeCommand struct{ txnFlags }

func (cmd *upgradeCommand) Name() string      { return "upgrade" }
func (cmd *upgradeCommand) Args() string      { return "[spec...]" }
func (cmd *upgradeCommand) ShortHelp() string { return upgradeShortHelp }
func (cmd *upgradeCommand) LongHelp() string  { return upgradeLongHelp }

func (cmd *upgradeCommand) Register(fs *flag.FlagSet) { cmd.txnFlags.register(fs) }

func (cmd *upgradeCommand) Run(ctx context.Context, c *appContext, args []string) error {
	names, err := upgradeTargetNames(c, args)
	if err != nil {
		return err
	}

	var ids []pkg.Identity
	for _, name := range names {
		if id, ok := latestUpgradeFor(c, name); ok {
			ids = append(ids, id)
		}
	}
	return runTxn(ctx, c, &cmd.txnFlags, transaction.QUpgrade, ids)
}

func upgradeTargetNames(c *appContext, args []string) ([]string, error) {
	if len(args) == 0 {
		seen := map[string]bool{}
		var names []string
		for _, p := range c.cache.GetPackages("") {
			if p.Installed && !seen[p.Name] {
				seen[p.Name] = true
				names = append(names, p.Name)
			}
		}
		return names, nil
	}

	var names []string
	for _, arg := range args {
		res := query.Search(c.cache, arg)
		if len(res.Packages) == 0 {
			return nil, perrors.NewUsageError(fmt.Sprintf("%q matches no packages", arg))
		}
		seen := map[string]bool{}
		for _, p := range res.Packages {
			if !seen[p.Name] {
				seen[p.Name] = true
				names = append(names, p.Name)
			}
		}
	}
	return names, nil
}

// latestUpgradeFor returns the highest-versioned candidate for name
// that is strictly newer than the currently installed version, if any.
func latestUpgradeFor(c *appContext, name string) (pkg.Identity, bool) {
	candidates := c.cache.GetPackages(name) // sorted version-descending

	var installedVersion *version.Version
	for _, p := range candidates {
		if p.Installed {
			v := p.Version
			installedVersion = &v
			break
		}
	}
	if installedVersion == nil {
		return pkg.Identity{}, false
	}

	for _, p := range candidates {
		if version.Compare(p.Version, *installedVersion) > 0 {
			return p.Identity, true
		}
	}
	return pkg.Identity{}, false
}

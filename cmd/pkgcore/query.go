package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/query"
)

const queryShortHelp = `Search for packages and inspect their relations`
const queryLongHelp = `
With one or more package specs, prints matching packages. A spec may be
a bare name, "name-version", a shell-style glob, or a /regex/.

The --provides/--requires/--conflicts/--obsoletes flags print the
matching packages' declared relations instead of a bare package list.
The --whoprovides/--whorequires/--whoconflicts/--whoobsoletes flags
(repeatable) print the packages that declare a relation matching DEP,
a "name[=version]" spec; repeating a flag keeps only packages that
match every DEP given to it. --satisfies is shorthand for a single
--whoprovides lookup. Only one kind of relation filter is applied, the
first given in the order --satisfies, --whoprovides, --whorequires,
--whoconflicts, --whoobsoletes; the others and any spec arguments are
ignored.
`

type queryCommand struct {
	showProvides  bool
	showRequires  bool
	showConflicts bool
	showObsoletes bool
	satisfies     string

	whoProvides  stringList
	whoRequires  stringList
	whoConflicts stringList
	whoObsoletes stringList
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (cmd *queryCommand) Name() string      { return "query" }
func (cmd *queryCommand) Args() string      { return "[spec...]" }
func (cmd *queryCommand) ShortHelp() string { return queryShortHelp }
func (cmd *queryCommand) LongHelp() string  { return queryLongHelp }

func (cmd *queryCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.showProvides, "provides", false, "print each match's provides")
	fs.BoolVar(&cmd.showRequires, "requires", false, "print each match's requires")
	fs.BoolVar(&cmd.showConflicts, "conflicts", false, "print each match's conflicts")
	fs.BoolVar(&cmd.showObsoletes, "obsoletes", false, "print each match's obsoletes")
	fs.StringVar(&cmd.satisfies, "satisfies", "", "print packages satisfying a \"name[=version]\" spec")
	fs.Var(&cmd.whoProvides, "whoprovides", "print packages that provide DEP (repeatable)")
	fs.Var(&cmd.whoRequires, "whorequires", "print packages that require DEP (repeatable)")
	fs.Var(&cmd.whoConflicts, "whoconflicts", "print packages that conflict with DEP (repeatable)")
	fs.Var(&cmd.whoObsoletes, "whoobsoletes", "print packages that obsolete DEP (repeatable)")
}

func (cmd *queryCommand) Run(ctx context.Context, c *appContext, args []string) error {
	switch {
	case cmd.satisfies != "":
		return cmd.printWho(c, []string{cmd.satisfies}, query.WhoProvides)
	case len(cmd.whoProvides) > 0:
		return cmd.printWho(c, cmd.whoProvides, query.WhoProvides)
	case len(cmd.whoRequires) > 0:
		return cmd.printWho(c, cmd.whoRequires, query.WhoRequires)
	case len(cmd.whoConflicts) > 0:
		return cmd.printWho(c, cmd.whoConflicts, query.WhoConflicts)
	case len(cmd.whoObsoletes) > 0:
		return cmd.printWho(c, cmd.whoObsoletes, query.WhoObsoletes)
	}

	if len(args) == 0 {
		for _, p := range c.cache.GetPackages("") {
			cmd.printPackage(c, p)
		}
		return nil
	}

	for _, arg := range args {
		res := query.Search(c.cache, arg)
		if len(res.Packages) == 0 {
			if len(res.Suggestions) > 0 {
				c.ui.Info(fmt.Sprintf("%q matches no packages. Suggestions:", arg))
				for _, s := range res.Suggestions {
					c.ui.Info(fmt.Sprintf("    %s", s.Package.Identity))
				}
				continue
			}
			return perrors.NewUsageError(fmt.Sprintf("%q matches no packages", arg))
		}
		for _, p := range res.Packages {
			cmd.printPackage(c, p)
		}
	}
	return nil
}

// printWho runs fn for every spec, intersecting results across specs
// so repeated --who* filters narrow one candidate set rather than
// printing each result set independently.
func (cmd *queryCommand) printWho(c *appContext, specs []string, fn func(*cache.Cache, string) []*pkg.Package) error {
	var matched map[pkg.Identity]*pkg.Package
	for _, spec := range specs {
		found := fn(c.cache, spec)
		if matched == nil {
			matched = make(map[pkg.Identity]*pkg.Package, len(found))
			for _, p := range found {
				matched[p.Identity] = p
			}
			continue
		}
		next := make(map[pkg.Identity]*pkg.Package, len(matched))
		for _, p := range found {
			if _, ok := matched[p.Identity]; ok {
				next[p.Identity] = p
			}
		}
		matched = next
	}
	if len(matched) == 0 {
		c.ui.Info("no packages match")
		return nil
	}
	for _, p := range c.cache.GetPackages("") {
		if _, ok := matched[p.Identity]; ok {
			cmd.printPackage(c, p)
		}
	}
	return nil
}

func (cmd *queryCommand) printPackage(c *appContext, p *pkg.Package) {
	c.ui.Info(p.Identity.String())
	if cmd.showProvides {
		for _, pr := range p.Provides {
			c.ui.Info("  provides: " + pr.String())
		}
	}
	if cmd.showRequires {
		for _, d := range p.Requires {
			c.ui.Info("  requires: " + d.String())
		}
	}
	if cmd.showConflicts {
		for _, d := range p.Conflicts {
			c.ui.Info("  conflicts: " + d.String())
		}
	}
	if cmd.showObsoletes {
		for _, d := range p.Obsoletes {
			c.ui.Info("  obsoletes: " + d.String())
		}
	}
}

package main

import (
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/transaction"
)

// lockedSet resolves sysconf's persisted package-locks (identity
// strings) against the current cache.
func lockedSet(c *appContext) map[pkg.Identity]bool {
	locked := map[pkg.Identity]bool{}
	want := map[string]bool{}
	for _, s := range c.store.PackageLocks() {
		want[s] = true
	}
	if len(want) == 0 {
		return locked
	}
	for _, p := range c.cache.GetPackages("") {
		if want[p.Identity.String()] {
			locked[p.Identity] = true
		}
	}
	return locked
}

// priorityFunc reads sysconf's package-priorities tree
// (name -> alias-or-"" -> integer), falling back to default-priority.
func priorityFunc(c *appContext) transaction.PriorityFunc {
	priorities := c.store.PackagePriorities()
	def := c.store.DefaultPriority()
	return func(id pkg.Identity) int {
		byAlias, ok := priorities[id.Name]
		if !ok {
			return def
		}
		p, found := c.cache.GetPackage(id)
		if !found {
			if v, ok := byAlias[""]; ok {
				return v
			}
			return def
		}
		best := def
		seen := false
		for _, l := range p.Loaders {
			if v, ok := byAlias[l.Channel()]; ok {
				if !seen || v > best {
					best = v
					seen = true
				}
			}
		}
		if !seen {
			if v, ok := byAlias[""]; ok {
				return v
			}
		}
		return best
	}
}

func buildPolicy(c *appContext, upgrade bool) policy.Policy {
	locked := lockedSet(c)
	if upgrade {
		return policy.NewUpgradePolicy(locked)
	}
	return policy.NewInstallPolicy(locked)
}

func buildTransaction(c *appContext, upgrade bool) *transaction.Transaction {
	t := transaction.New(c.cache, buildPolicy(c, upgrade))
	t.Priority = priorityFunc(c)
	t.Log = c.log
	return t
}

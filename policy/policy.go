// Package policy implements the cost function and locking rules that
// drive the solver.
package policy

import (
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/version"
)

// Op is a planned state change for one package identity.
type Op int

const (
	Keep Op = iota
	Install
	Remove
	Reinstall
)

func (o Op) String() string {
	switch o {
	case Install:
		return "INSTALL"
	case Remove:
		return "REMOVE"
	case Reinstall:
		return "REINSTALL"
	default:
		return "KEEP"
	}
}

// Changeset maps package identity to planned op. A package absent from
// the map is implicitly Keep.
type Changeset map[pkg.Identity]Op

// Clone returns a shallow copy, used by the solver when branching.
func (cs Changeset) Clone() Changeset {
	out := make(Changeset, len(cs))
	for k, v := range cs {
		out[k] = v
	}
	return out
}

// Policy scores candidate changesets and reports locked identities.
type Policy interface {
	// Weight scores cs; lower is better.
	Weight(cs Changeset, c Context) int
	// LockedSet returns identities that must not change state.
	LockedSet() map[pkg.Identity]bool
}

// Context is the read-only package lookup a Policy needs to score a
// changeset (installed flags, names, versions) without depending on
// the cache package directly, avoiding an import cycle with
// transaction/cache.
type Context interface {
	Package(id pkg.Identity) (*pkg.Package, bool)
}

// InstallPolicy encourages installing the queued targets: cost
// increases with additional installs, removal of installed packages,
// and lock violations.
type InstallPolicy struct {
	Locked map[pkg.Identity]bool
}

func NewInstallPolicy(locked map[pkg.Identity]bool) *InstallPolicy {
	if locked == nil {
		locked = map[pkg.Identity]bool{}
	}
	return &InstallPolicy{Locked: locked}
}

func (p *InstallPolicy) LockedSet() map[pkg.Identity]bool { return p.Locked }

func (p *InstallPolicy) Weight(cs Changeset, c Context) int {
	weight := 0
	for id, op := range cs {
		switch op {
		case Install:
			weight += 1
		case Remove:
			if pp, ok := c.Package(id); ok && pp.Installed {
				weight += 3
			}
		case Reinstall:
			weight += 1
		}
		if p.Locked[id] && op != Keep {
			weight += 1000
		}
	}
	return weight
}

// UpgradePolicy additionally rewards replacing an installed package
// with a strictly higher version of the same name.
type UpgradePolicy struct {
	InstallPolicy
}

func NewUpgradePolicy(locked map[pkg.Identity]bool) *UpgradePolicy {
	return &UpgradePolicy{InstallPolicy: *NewInstallPolicy(locked)}
}

func (p *UpgradePolicy) Weight(cs Changeset, c Context) int {
	weight := p.InstallPolicy.Weight(cs, c)
	for id, op := range cs {
		if op != Install {
			continue
		}
		for oid, oop := range cs {
			if oop != Remove || oid.Name != id.Name {
				continue
			}
			if version.Compare(id.Version, oid.Version) > 0 {
				weight -= 2
			}
		}
	}
	return weight
}

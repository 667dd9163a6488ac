// Package report classifies a changeset into the categories a human or
// UI needs: plain installs/removes, upgrades/downgrades (with inverse
// maps), pulled-in dependencies, and conflict-driven removals
// Classification is a pure function of the changeset and the cache.
package report

import (
	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/version"
)

// Report is the classified view of a changeset.
type Report struct {
	Install []*pkg.Package
	Remove  []*pkg.Package

	Upgrading   map[pkg.Identity][]*pkg.Package // installing p removes these older same-name packages
	Downgrading map[pkg.Identity][]*pkg.Package // installing p removes these newer same-name packages
	Upgraded    map[pkg.Identity][]*pkg.Package // inverse of Upgrading
	Downgraded  map[pkg.Identity][]*pkg.Package // inverse of Downgrading

	Requires   map[pkg.Identity][]*pkg.Package // fresh installs pulled in as deps of p
	RequiredBy map[pkg.Identity][]*pkg.Package // installed packages that depended on removed p
	Conflicts  map[pkg.Identity][]*pkg.Package // removed packages that conflicted with p
}

func newReport() *Report {
	return &Report{
		Upgrading:   map[pkg.Identity][]*pkg.Package{},
		Downgrading: map[pkg.Identity][]*pkg.Package{},
		Upgraded:    map[pkg.Identity][]*pkg.Package{},
		Downgraded:  map[pkg.Identity][]*pkg.Package{},
		Requires:    map[pkg.Identity][]*pkg.Package{},
		RequiredBy:  map[pkg.Identity][]*pkg.Package{},
		Conflicts:   map[pkg.Identity][]*pkg.Package{},
	}
}

// Classify computes a Report for cs against c.
func Classify(cs policy.Changeset, c *cache.Cache) *Report {
	r := newReport()

	var installed, removed []*pkg.Package
	for id, op := range cs {
		p, ok := c.GetPackage(id)
		if !ok {
			continue
		}
		switch op {
		case policy.Install, policy.Reinstall:
			installed = append(installed, p)
		case policy.Remove:
			removed = append(removed, p)
		}
	}
	r.Install = installed
	r.Remove = removed

	classifyUpgradesAndDowngrades(r, installed, removed)
	classifyRequires(r, cs, c, installed)
	classifyConflicts(r, c, installed, removed)

	return r
}

func classifyUpgradesAndDowngrades(r *Report, installed, removed []*pkg.Package) {
	for _, in := range installed {
		for _, rm := range removed {
			if rm.Name != in.Name {
				continue
			}
			if in.Version.String() == rm.Version.String() && in.Tag == rm.Tag {
				continue
			}
			if cmpVersion(in, rm) > 0 {
				r.Upgrading[in.Identity] = append(r.Upgrading[in.Identity], rm)
				r.Upgraded[rm.Identity] = append(r.Upgraded[rm.Identity], in)
			} else {
				r.Downgrading[in.Identity] = append(r.Downgrading[in.Identity], rm)
				r.Downgraded[rm.Identity] = append(r.Downgraded[rm.Identity], in)
			}
		}
	}
}

// cmpVersion compares two same-named packages' versions, used to tell
// an upgrade (positive) from a downgrade (negative).
func cmpVersion(a, b *pkg.Package) int {
	return version.Compare(a.Version, b.Version)
}

func classifyRequires(r *Report, cs policy.Changeset, c *cache.Cache, installed []*pkg.Package) {
	for _, in := range installed {
		for _, req := range in.Requires {
			for _, ref := range c.ProvidedBy(in, depend.KindRequires, req) {
				op, ok := cs[ref.Pkg.Identity]
				if !ok || (op != policy.Install && op != policy.Reinstall) {
					continue
				}
				if ref.Pkg.Identity == in.Identity {
					continue
				}
				r.Requires[in.Identity] = appendUnique(r.Requires[in.Identity], ref.Pkg)
			}
		}
	}
}

func classifyConflicts(r *Report, c *cache.Cache, installed, removed []*pkg.Package) {
	upgradeSet := map[pkg.Identity]bool{}
	for _, pkgs := range r.Upgrading {
		for _, p := range pkgs {
			upgradeSet[p.Identity] = true
		}
	}
	for _, pkgs := range r.Downgrading {
		for _, p := range pkgs {
			upgradeSet[p.Identity] = true
		}
	}

	for _, rm := range removed {
		// Upgrade/downgrade replacements are not reported as conflicts,
		// but the packages that required them still are.
		for _, in := range installed {
			if upgradeSet[rm.Identity] {
				break
			}
			for _, cf := range in.Conflicts {
				for _, ref := range c.ProvidedBy(in, depend.KindConflicts, cf) {
					if ref.Pkg.Identity == rm.Identity {
						r.Conflicts[in.Identity] = appendUnique(r.Conflicts[in.Identity], rm)
					}
				}
			}
		}

		for _, installedPkg := range c.GetPackages("") {
			if installedPkg.Identity == rm.Identity || !installedPkg.Installed {
				continue
			}
			for _, req := range installedPkg.Requires {
				for _, ref := range c.ProvidedBy(installedPkg, depend.KindRequires, req) {
					if ref.Pkg.Identity == rm.Identity {
						r.RequiredBy[rm.Identity] = appendUnique(r.RequiredBy[rm.Identity], installedPkg)
					}
				}
			}
		}
	}
}

func appendUnique(list []*pkg.Package, p *pkg.Package) []*pkg.Package {
	for _, e := range list {
		if e.Identity == p.Identity {
			return list
		}
	}
	return append(list, p)
}

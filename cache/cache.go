// Package cache owns the set of known packages and the indexed,
// cross-linked view over their Provides/Requires/Conflicts/Obsoletes
// relations.
//
// Packages and relations are plain values (pkg.Package, depend.Provides,
// depend.Depend); back-links are not stored as mutable fields on those
// values but are computed and cached by linkDeps into the Cache's own
// index structures, keyed by stable entry indexes, so the cyclic
// package/relation graph never holds owning references.
// ProvidedBy/RequiredBy below are the query surface over those
// back-link tables.
package cache

import (
	"fmt"
	"io"
	"sort"

	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/internal/plog"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/sirupsen/logrus"
)

// DependRef names one Depend-shaped relation declared by a package.
type DependRef struct {
	Pkg  *pkg.Package
	Kind depend.Kind
	Dep  depend.Depend
}

// ProvidesRef names one Provides declared by a package.
type ProvidesRef struct {
	Pkg  *pkg.Package
	Prov depend.Provides
}

// Cache owns all known packages, the per-relation name indexes, and the
// loaders that populate them.
type Cache struct {
	log *plog.Logger

	packages map[pkg.Identity]*pkg.Package
	order    []pkg.Identity // insertion order, used as the stable tie-break

	loaders []pkg.Loader

	providesIdx  relationIndex // provides name -> indexes into provEntries
	requiresIdx  relationIndex
	conflictsIdx relationIndex
	obsoletesIdx relationIndex

	provEntries []ProvidesRef
	relEntries  []DependRef

	// providedBy[relEntry index] -> indexes into provEntries that match it.
	providedBy map[int][]int
	// requiredBy[provEntry index] -> indexes into relEntries it satisfies.
	requiredBy map[int][]int
}

// New returns an empty Cache. Log may be nil, in which case trace
// output is discarded.
func New(log *plog.Logger) *Cache {
	if log == nil {
		log = plog.New(io.Discard, logrus.WarnLevel)
	}
	return &Cache{
		log:          log,
		packages:     make(map[pkg.Identity]*pkg.Package),
		providesIdx:  newRelationIndex(),
		requiresIdx:  newRelationIndex(),
		conflictsIdx: newRelationIndex(),
		obsoletesIdx: newRelationIndex(),
	}
}

// RegisterLoader adds a loader to be driven by the next Load call.
func (c *Cache) RegisterLoader(l pkg.Loader) {
	c.loaders = append(c.loaders, l)
}

// AddPackage implements pkg.Populator. It merges p onto any existing
// package sharing its identity (unioning relations, ORing Installed),
// or inserts it fresh, and records owner in its Loaders list.
func (c *Cache) AddPackage(p *pkg.Package, owner pkg.Loader) {
	existing, found := c.packages[p.Identity]
	if !found {
		cp := *p
		cp.Loaders = append([]pkg.Loader(nil), p.Loaders...)
		cp.Loaders = appendLoader(cp.Loaders, owner)
		cp.Installed = cp.Installed || owner.Installed()
		c.packages[p.Identity] = &cp
		c.order = append(c.order, p.Identity)
		return
	}

	existing.Provides = mergeProvides(existing.Provides, p.Provides)
	existing.Requires = mergeDepends(existing.Requires, p.Requires)
	existing.Conflicts = mergeDepends(existing.Conflicts, p.Conflicts)
	existing.Obsoletes = mergeDepends(existing.Obsoletes, p.Obsoletes)
	existing.Installed = existing.Installed || p.Installed || owner.Installed()
	existing.Loaders = appendLoader(existing.Loaders, owner)
}

func appendLoader(ls []pkg.Loader, owner pkg.Loader) []pkg.Loader {
	for _, l := range ls {
		if l == owner {
			return ls
		}
	}
	return append(ls, owner)
}

func mergeProvides(a, b []depend.Provides) []depend.Provides {
	for _, bp := range b {
		dup := false
		for _, ap := range a {
			if providesEqual(ap, bp) {
				dup = true
				break
			}
		}
		if !dup {
			a = append(a, bp)
		}
	}
	return a
}

func providesEqual(a, b depend.Provides) bool {
	if a.Name != b.Name {
		return false
	}
	if a.Version == nil || b.Version == nil {
		return a.Version == b.Version
	}
	return *a.Version == *b.Version
}

func mergeDepends(a, b []depend.Depend) []depend.Depend {
	for _, bd := range b {
		dup := false
		for _, ad := range a {
			if ad.Equal(bd) {
				dup = true
				break
			}
		}
		if !dup {
			a = append(a, bd)
		}
	}
	return a
}

// Load drives every registered loader's Load method, then rebuilds the
// indexes and back-links. It is safe to call multiple times; loaders
// must themselves be idempotent.
func (c *Cache) Load() error {
	for _, l := range c.loaders {
		if err := l.Load(c); err != nil {
			return err
		}
	}
	c.linkDeps()
	c.log.WithField("packages", len(c.packages)).Debug("cache loaded")
	return nil
}

// Unload detaches every registered loader's packages from the cache and
// rebuilds indexes. Packages whose loader set becomes empty are
// removed.
func (c *Cache) Unload() {
	for _, l := range c.loaders {
		l.Unload()
	}
	for id, p := range c.packages {
		var kept []pkg.Loader
		for _, ld := range p.Loaders {
			if !containsLoader(c.loaders, ld) {
				kept = append(kept, ld)
			}
		}
		if len(kept) == 0 {
			delete(c.packages, id)
		} else {
			p.Loaders = kept
		}
	}
	c.rebuildOrder()
	c.linkDeps()
}

func containsLoader(ls []pkg.Loader, needle pkg.Loader) bool {
	for _, l := range ls {
		if l == needle {
			return true
		}
	}
	return false
}

func (c *Cache) rebuildOrder() {
	order := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.packages[id]; ok {
			order = append(order, id)
		}
	}
	c.order = order
}

// GetPackages returns all packages, or those whose name equals name if
// name is non-empty, in stable identity order.
func (c *Cache) GetPackages(name string) []*pkg.Package {
	var out []*pkg.Package
	for _, id := range c.order {
		p := c.packages[id]
		if p == nil {
			continue
		}
		if name == "" || p.Name == name {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// GetPackage returns the package with the given identity, if any.
func (c *Cache) GetPackage(id pkg.Identity) (*pkg.Package, bool) {
	p, ok := c.packages[id]
	return p, ok
}

// GetProvides returns every Provides with the given name (or all, if
// name is empty), across all packages.
func (c *Cache) GetProvides(name string) []ProvidesRef {
	return filterRefs(c.providesIdx, name, c.provEntries)
}

// GetRequires, GetConflicts, GetObsoletes are the Depend-shaped
// equivalents of GetProvides.
func (c *Cache) GetRequires(name string) []DependRef  { return c.getDepends(c.requiresIdx, name) }
func (c *Cache) GetConflicts(name string) []DependRef { return c.getDepends(c.conflictsIdx, name) }
func (c *Cache) GetObsoletes(name string) []DependRef { return c.getDepends(c.obsoletesIdx, name) }

func (c *Cache) getDepends(idx relationIndex, name string) []DependRef {
	var out []DependRef
	if name == "" {
		idx.walk(func(_ string, ids []int) {
			for _, i := range ids {
				out = append(out, c.relEntries[i])
			}
		})
		return out
	}
	if ids, ok := idx.get(name); ok {
		for _, i := range ids {
			out = append(out, c.relEntries[i])
		}
	}
	return out
}

func filterRefs(idx relationIndex, name string, entries []ProvidesRef) []ProvidesRef {
	var out []ProvidesRef
	if name == "" {
		idx.walk(func(_ string, ids []int) {
			for _, i := range ids {
				out = append(out, entries[i])
			}
		})
		return out
	}
	if ids, ok := idx.get(name); ok {
		for _, i := range ids {
			out = append(out, entries[i])
		}
	}
	return out
}

// ProvidedBy returns the Provides in the cache that satisfy d.
func (c *Cache) ProvidedBy(p *pkg.Package, kind depend.Kind, d depend.Depend) []ProvidesRef {
	idx := c.relIndexOf(d, kind, p)
	if idx < 0 {
		return c.computeProvidedBy(d)
	}
	var out []ProvidesRef
	for _, pi := range c.providedBy[idx] {
		out = append(out, c.provEntries[pi])
	}
	return out
}

func (c *Cache) relIndexOf(d depend.Depend, kind depend.Kind, p *pkg.Package) int {
	for i, r := range c.relEntries {
		if r.Kind == kind && r.Pkg == p && r.Dep.Equal(d) {
			return i
		}
	}
	return -1
}

func (c *Cache) computeProvidedBy(d depend.Depend) []ProvidesRef {
	var out []ProvidesRef
	for _, ref := range c.GetProvides(d.Name) {
		if d.Matches(ref.Prov) {
			out = append(out, ref)
		}
	}
	return out
}

// RequiredBy returns every Depend (of any kind) that prov satisfies.
func (c *Cache) RequiredBy(prov ProvidesRef) []DependRef {
	idx := c.provIndexOf(prov)
	if idx < 0 {
		return c.computeRequiredBy(prov)
	}
	var out []DependRef
	for _, ri := range c.requiredBy[idx] {
		out = append(out, c.relEntries[ri])
	}
	return out
}

func (c *Cache) provIndexOf(prov ProvidesRef) int {
	for i, p := range c.provEntries {
		if p.Pkg == prov.Pkg && providesEqual(p.Prov, prov.Prov) {
			return i
		}
	}
	return -1
}

func (c *Cache) computeRequiredBy(prov ProvidesRef) []DependRef {
	var out []DependRef
	for _, k := range []depend.Kind{depend.KindRequires, depend.KindConflicts, depend.KindObsoletes} {
		for _, ref := range c.getDependsOfKind(k, prov.Prov.Name) {
			if ref.Dep.Matches(prov.Prov) {
				out = append(out, ref)
			}
		}
	}
	return out
}

func (c *Cache) getDependsOfKind(k depend.Kind, name string) []DependRef {
	switch k {
	case depend.KindRequires:
		return c.GetRequires(name)
	case depend.KindConflicts:
		return c.GetConflicts(name)
	case depend.KindObsoletes:
		return c.GetObsoletes(name)
	default:
		return nil
	}
}

// Declarers returns the packages that declare Provides prov.
func (c *Cache) Declarers(prov depend.Provides) []*pkg.Package {
	var out []*pkg.Package
	for _, ref := range c.GetProvides(prov.Name) {
		if providesEqual(ref.Prov, prov) {
			out = append(out, ref.Pkg)
		}
	}
	return out
}

// linkDeps rebuilds every name index and the providedby/requiredby
// back-link tables from the current package set. It is the only place
// that mutates the indexes, keeping them a pure function of the
// packages map.
func (c *Cache) linkDeps() {
	c.providesIdx = newRelationIndex()
	c.requiresIdx = newRelationIndex()
	c.conflictsIdx = newRelationIndex()
	c.obsoletesIdx = newRelationIndex()
	c.provEntries = nil
	c.relEntries = nil

	for _, id := range c.order {
		p, ok := c.packages[id]
		if !ok {
			continue
		}
		for _, prov := range p.Provides {
			c.provEntries = append(c.provEntries, ProvidesRef{Pkg: p, Prov: prov})
			c.providesIdx.append(prov.Name, len(c.provEntries)-1)
		}
		c.indexDepends(p, depend.KindRequires, p.Requires, c.requiresIdx)
		c.indexDepends(p, depend.KindConflicts, p.Conflicts, c.conflictsIdx)
		c.indexDepends(p, depend.KindObsoletes, p.Obsoletes, c.obsoletesIdx)
	}

	c.providedBy = make(map[int][]int)
	c.requiredBy = make(map[int][]int)
	for ri, rel := range c.relEntries {
		for pi, prov := range c.provEntries {
			if rel.Dep.Matches(prov.Prov) {
				c.providedBy[ri] = append(c.providedBy[ri], pi)
				c.requiredBy[pi] = append(c.requiredBy[pi], ri)
			}
		}
	}
}

func (c *Cache) indexDepends(p *pkg.Package, kind depend.Kind, deps []depend.Depend, idx relationIndex) {
	for _, d := range deps {
		c.relEntries = append(c.relEntries, DependRef{Pkg: p, Kind: kind, Dep: d})
		idx.append(d.Name, len(c.relEntries)-1)
	}
}

// Len returns the number of packages in the cache.
func (c *Cache) Len() int { return len(c.packages) }

func (c *Cache) String() string {
	return fmt.Sprintf("cache(%d packages)", c.Len())
}

// Package pkg defines package identity, the four relation lists a
// package carries, and the loader contract that populates a cache.
package pkg

import (
	"fmt"

	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/version"
)

// Identity is a package's (name, version, tag) triple. Tag disambiguates
// packages of the same name and version from different architectures
// or backends.
type Identity struct {
	Name    string
	Version version.Version
	Tag     string
}

func (id Identity) String() string {
	if id.Tag == "" {
		return fmt.Sprintf("%s-%s", id.Name, id.Version)
	}
	return fmt.Sprintf("%s-%s.%s", id.Name, id.Version, id.Tag)
}

// Package is the cache's unit of identity. Provides/Requires/Conflicts
// /Obsoletes are owned here; Installed and Loaders are maintained by
// the cache during load/unload.
type Package struct {
	Identity

	Provides  []depend.Provides
	Requires  []depend.Depend
	Conflicts []depend.Depend
	Obsoletes []depend.Depend

	Installed bool
	Loaders   []Loader
}

// Less implements the total package order: name ascending, version
// descending (newer first), then tag.
func (p *Package) Less(o *Package) bool {
	if p.Name != o.Name {
		return p.Name < o.Name
	}
	if c := version.Compare(p.Version, o.Version); c != 0 {
		return c > 0
	}
	return p.Tag < o.Tag
}

// Equal is identity equality: same name, version and tag.
func (p *Package) Equal(o *Package) bool {
	return p.Name == o.Name && p.Tag == o.Tag && version.Equal(p.Version, o.Version)
}

// List returns the Depend slice for a given relation Kind, used by
// generic code that walks all three Depend-shaped lists uniformly.
func (p *Package) List(k depend.Kind) []depend.Depend {
	switch k {
	case depend.KindRequires:
		return p.Requires
	case depend.KindConflicts:
		return p.Conflicts
	case depend.KindObsoletes:
		return p.Obsoletes
	default:
		return nil
	}
}

// Loader materializes packages from a backend channel into a cache.
// Implementations must be idempotent: calling Load twice against an
// unchanged backing store must not duplicate packages or relations.
type Loader interface {
	// Load populates c with this loader's packages and relations.
	Load(c Populator) error
	// Unload detaches this loader's packages from the cache that last
	// loaded it; packages whose loader set becomes empty are removed.
	Unload()
	// Installed reports whether this loader's packages should be
	// considered installed.
	Installed() bool
	// Channel identifies the originating channel, used for priority
	// resolution.
	Channel() string
}

// Populator is the subset of the cache a Loader is allowed to mutate:
// adding packages and merging relations onto them. It is intentionally
// narrower than the full cache API so loaders cannot read or mutate
// indexes directly; only the cache maintains those.
type Populator interface {
	// AddPackage merges p onto the cache's existing package of the same
	// identity (unioning relations, ORing Installed), or inserts it if
	// no such package exists yet. The owning loader is attached to the
	// stored package's Loaders list.
	AddPackage(p *Package, owner Loader)
}

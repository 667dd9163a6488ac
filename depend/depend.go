// Package depend implements the four relation kinds a package declares
// (Provides, Requires, Conflicts, Obsoletes) and the matching rule
// between them.
package depend

import (
	"fmt"

	"github.com/packagecore/pkgcore/version"
)

// Provides is a capability a package advertises. A Provides without a
// version is version-less, and matches only version-less Depends.
type Provides struct {
	Name    string
	Version *version.Version
}

func (p Provides) String() string {
	if p.Version == nil {
		return p.Name
	}
	return fmt.Sprintf("%s = %s", p.Name, p.Version)
}

// Less orders Provides lexicographically on (name, version).
func (p Provides) Less(o Provides) bool {
	if p.Name != o.Name {
		return p.Name < o.Name
	}
	if p.Version == nil || o.Version == nil {
		return o.Version != nil
	}
	return version.Compare(*p.Version, *o.Version) < 0
}

// Depend is the shared shape of Requires, Conflicts and Obsoletes: a
// name, an optional relation, and an optional version.
type Depend struct {
	Name     string
	Relation version.Relation
	Version  *version.Version
}

func (d Depend) String() string {
	if d.Relation == version.RelNone || d.Version == nil {
		return d.Name
	}
	return fmt.Sprintf("%s %s %s", d.Name, d.Relation, d.Version)
}

// Matches reports whether d matches Provides p: names must be equal,
// and when d carries a relation it must hold between p's version and
// d's version per the version algebra. An absent Provides.Version
// requires an absent Depend.Version.
func (d Depend) Matches(p Provides) bool {
	if d.Name != p.Name {
		return false
	}
	return version.Match(d.Relation, p.Version, d.Version)
}

// Less orders Depends lexicographically on (name, relation-tag, version).
func (d Depend) Less(o Depend) bool {
	if d.Name != o.Name {
		return d.Name < o.Name
	}
	if d.Relation != o.Relation {
		return d.Relation < o.Relation
	}
	if d.Version == nil || o.Version == nil {
		return o.Version != nil
	}
	return version.Compare(*d.Version, *o.Version) < 0
}

// Equal reports whether d and o denote the same relation; used when
// folding duplicate relations declared by merged loaders.
func (d Depend) Equal(o Depend) bool {
	if d.Name != o.Name || d.Relation != o.Relation {
		return false
	}
	if d.Version == nil || o.Version == nil {
		return d.Version == o.Version
	}
	return version.Equal(*d.Version, *o.Version)
}

// Kind distinguishes the three Depend-shaped relation lists a package
// may carry.
type Kind int

const (
	KindRequires Kind = iota
	KindConflicts
	KindObsoletes
)

func (k Kind) String() string {
	switch k {
	case KindRequires:
		return "Requires"
	case KindConflicts:
		return "Conflicts"
	case KindObsoletes:
		return "Obsoletes"
	default:
		return "Unknown"
	}
}

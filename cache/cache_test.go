package cache

import (
	"testing"

	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/version"
)

// staticLoader is a trivial pkg.Loader that loads a fixed package list,
// used to exercise the cache without a real backend.
type staticLoader struct {
	channel   string
	installed bool
	packages  []*pkg.Package
}

func (s *staticLoader) Load(p pkg.Populator) error {
	for _, pp := range s.packages {
		p.AddPackage(pp, s)
	}
	return nil
}
func (s *staticLoader) Unload()         {}
func (s *staticLoader) Installed() bool { return s.installed }
func (s *staticLoader) Channel() string { return s.channel }

func ver(s string) version.Version { return version.Parse(s) }

func newPkg(name, v string) *pkg.Package {
	return &pkg.Package{Identity: pkg.Identity{Name: name, Version: ver(v)}}
}

func TestCacheBackLinksSymmetric(t *testing.T) {
	bar := newPkg("bar", "2.0")
	gev := version.Parse("1")
	bar.Requires = []depend.Depend{{Name: "libx", Relation: version.RelGE, Version: &gev}}

	libx := newPkg("libx", "1.2")
	libxv := version.Parse("1.2")
	libx.Provides = []depend.Provides{{Name: "libx", Version: &libxv}}

	c := New(nil)
	c.RegisterLoader(&staticLoader{channel: "test", packages: []*pkg.Package{bar, libx}})
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	barPkg, _ := c.GetPackage(bar.Identity)
	reqs := c.GetRequires("libx")
	if len(reqs) != 1 {
		t.Fatalf("expected 1 requires entry, got %d", len(reqs))
	}
	providedBy := c.ProvidedBy(barPkg, depend.KindRequires, reqs[0].Dep)
	if len(providedBy) != 1 || providedBy[0].Pkg.Name != "libx" {
		t.Fatalf("expected libx to satisfy bar's requirement, got %+v", providedBy)
	}

	// Invariant 3: symmetric back-link.
	requiredBy := c.RequiredBy(providedBy[0])
	found := false
	for _, rb := range requiredBy {
		if rb.Pkg == barPkg && rb.Kind == depend.KindRequires {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected symmetric requiredby link back to bar's requirement")
	}

	// Invariant 4: provider declares its own provides.
	declarers := c.Declarers(providedBy[0].Prov)
	if len(declarers) != 1 || declarers[0].Name != "libx" {
		t.Fatalf("expected libx to declare its own provides, got %+v", declarers)
	}
}

func TestCacheMergesLoadersOfSameIdentity(t *testing.T) {
	a := newPkg("foo", "1.0")
	a.Provides = []depend.Provides{{Name: "foo"}}
	b := newPkg("foo", "1.0")
	b.Provides = []depend.Provides{{Name: "foo"}, {Name: "extra"}}

	c := New(nil)
	c.RegisterLoader(&staticLoader{channel: "a", packages: []*pkg.Package{a}})
	c.RegisterLoader(&staticLoader{channel: "b", installed: true, packages: []*pkg.Package{b}})
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	pkgs := c.GetPackages("foo")
	if len(pkgs) != 1 {
		t.Fatalf("expected merge to a single package, got %d", len(pkgs))
	}
	if len(pkgs[0].Provides) != 2 {
		t.Fatalf("expected union of provides (2), got %d", len(pkgs[0].Provides))
	}
	if !pkgs[0].Installed {
		t.Fatalf("expected Installed to OR across loaders")
	}
	if len(pkgs[0].Loaders) != 2 {
		t.Fatalf("expected both loaders attached, got %d", len(pkgs[0].Loaders))
	}
}

func TestCacheUnloadRemovesOrphanedPackages(t *testing.T) {
	foo := newPkg("foo", "1.0")
	loader := &staticLoader{channel: "a", packages: []*pkg.Package{foo}}

	c := New(nil)
	c.RegisterLoader(loader)
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 package after load")
	}

	c.Unload()
	if c.Len() != 0 {
		t.Fatalf("expected 0 packages after unload, got %d", c.Len())
	}
}

func TestGetPackagesOrdering(t *testing.T) {
	c := New(nil)
	c.RegisterLoader(&staticLoader{channel: "a", packages: []*pkg.Package{
		newPkg("foo", "1.0"),
		newPkg("foo", "2.0"),
		newPkg("bar", "1.0"),
	}})
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	all := c.GetPackages("")
	if len(all) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(all))
	}
	if all[0].Name != "bar" {
		t.Fatalf("expected name-ascending order first, got %s", all[0].Name)
	}
	if all[1].Name != "foo" || all[1].Version.String() != "2.0" {
		t.Fatalf("expected foo-2.0 before foo-1.0, got %s-%s", all[1].Name, all[1].Version)
	}
}

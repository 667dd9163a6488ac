package report

import (
	"testing"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/version"
)

type staticLoader struct {
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
func (s *staticLoader) Channel() string { return "test" }

func newPkg(name, v string) *pkg.Package {
	return &pkg.Package{Identity: pkg.Identity{Name: name, Version: version.Parse(v)}}
}

// Installing a newer same-name package classifies as an upgrade.
func TestClassifyUpgrade(t *testing.T) {
	baz1 := newPkg("baz", "1.0")
	baz1.Installed = true
	baz2 := newPkg("baz", "2.0")

	c := cache.New(nil)
	c.RegisterLoader(&staticLoader{installed: true, packages: []*pkg.Package{baz1}})
	c.RegisterLoader(&staticLoader{packages: []*pkg.Package{baz2}})
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	cs := policy.Changeset{
		baz2.Identity: policy.Install,
		baz1.Identity: policy.Remove,
	}
	r := Classify(cs, c)

	if len(r.Upgrading[baz2.Identity]) != 1 || r.Upgrading[baz2.Identity][0].Identity != baz1.Identity {
		t.Fatalf("expected baz-2.0 to upgrade baz-1.0, got %+v", r.Upgrading)
	}
	if len(r.Upgraded[baz1.Identity]) != 1 || r.Upgraded[baz1.Identity][0].Identity != baz2.Identity {
		t.Fatalf("expected inverse upgraded map, got %+v", r.Upgraded)
	}
}

func TestClassifyRequires(t *testing.T) {
	bar := newPkg("bar", "2.0")
	v1 := version.Parse("1")
	bar.Requires = []depend.Depend{{Name: "libx", Relation: version.RelGE, Version: &v1}}

	libx := newPkg("libx", "1.2")
	libxv := version.Parse("1.2")
	libx.Provides = []depend.Provides{{Name: "libx", Version: &libxv}}

	c := cache.New(nil)
	c.RegisterLoader(&staticLoader{packages: []*pkg.Package{bar, libx}})
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	cs := policy.Changeset{
		bar.Identity:  policy.Install,
		libx.Identity: policy.Install,
	}
	r := Classify(cs, c)

	if len(r.Requires[bar.Identity]) != 1 || r.Requires[bar.Identity][0].Identity != libx.Identity {
		t.Fatalf("expected bar to pull in libx, got %+v", r.Requires)
	}
}

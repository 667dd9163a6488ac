package order_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/order"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/version"
)

type staticLoader struct {
	pkgs      []*pkg.Package
	installed bool
}

func (l *staticLoader) Load(p pkg.Populator) error {
	for _, pp := range l.pkgs {
		p.AddPackage(pp, l)
	}
	return nil
}
func (l *staticLoader) Unload()        {}
func (l *staticLoader) Installed() bool { return l.installed }
func (l *staticLoader) Channel() string { return "test" }

func ident(name, v string) pkg.Identity {
	return pkg.Identity{Name: name, Version: version.Parse(v)}
}

func TestPlanRequiresBeforeInstall(t *testing.T) {
	bar := &pkg.Package{
		Identity: ident("bar", "2.0"),
		Requires: []depend.Depend{{Name: "libx", Relation: version.RelGE, Version: v("1")}},
	}
	libx := &pkg.Package{
		Identity: ident("libx", "1.2"),
		Provides: []depend.Provides{{Name: "libx", Version: v("1.2")}},
	}
	c := cache.New(nil)
	c.RegisterLoader(&staticLoader{pkgs: []*pkg.Package{bar, libx}})
	require.NoError(t, c.Load())

	cs := policy.Changeset{bar.Identity: policy.Install, libx.Identity: policy.Install}
	steps := order.Plan(cs, c)
	require.Len(t, steps, 2)

	pos := map[pkg.Identity]int{}
	for i, s := range steps {
		pos[s.Pkg] = i
	}
	require.Less(t, pos[libx.Identity], pos[bar.Identity])
}

func TestPlanCycleFallsBackToGroup(t *testing.T) {
	a := &pkg.Package{
		Identity: ident("a", "1.0"),
		Provides: []depend.Provides{{Name: "a"}},
		Requires: []depend.Depend{{Name: "b"}},
	}
	b := &pkg.Package{
		Identity: ident("b", "1.0"),
		Provides: []depend.Provides{{Name: "b"}},
		Requires: []depend.Depend{{Name: "a"}},
	}
	c := cache.New(nil)
	c.RegisterLoader(&staticLoader{pkgs: []*pkg.Package{a, b}})
	require.NoError(t, c.Load())

	cs := policy.Changeset{a.Identity: policy.Install, b.Identity: policy.Install}
	steps := order.Plan(cs, c)
	require.Len(t, steps, 1)
	require.Len(t, steps[0].Grouped, 2)
}

func v(s string) *version.Version {
	p := version.Parse(s)
	return &p
}

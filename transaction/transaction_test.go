package transaction_test

import (
	"context"
	"testing"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/report"
	"github.com/packagecore/pkgcore/transaction"
	"github.com/packagecore/pkgcore/version"
)

// staticLoader is a trivial pkg.Loader that loads a fixed package list,
// used to build test caches without a real backend (same shape as
// cache's and report's own test loaders).
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

func ver(s string) version.Version { return version.Parse(s) }
func verPtr(s string) *version.Version {
	v := version.Parse(s)
	return &v
}

func newPkg(name, v string) *pkg.Package {
	return &pkg.Package{Identity: pkg.Identity{Name: name, Version: ver(v)}}
}

func buildCache(t *testing.T, installed, available []*pkg.Package) *cache.Cache {
	t.Helper()
	c := cache.New(nil)
	if len(installed) > 0 {
		c.RegisterLoader(&staticLoader{installed: true, packages: installed})
	}
	if len(available) > 0 {
		c.RegisterLoader(&staticLoader{packages: available})
	}
	if err := c.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

// A dependency-free install changes only the queued package.
func TestSolveExactInstallNoDeps(t *testing.T) {
	foo := newPkg("foo", "1.0")
	c := buildCache(t, nil, []*pkg.Package{foo})

	txn := transaction.New(c, policy.NewInstallPolicy(nil))
	if err := txn.Enqueue(foo.Identity, transaction.QInstall); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cs, err := txn.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(cs) != 1 || cs[foo.Identity] != policy.Install {
		t.Fatalf("expected {foo-1.0: INSTALL}, got %+v", cs)
	}
}

// Installing a package pulls in the provider of its requirement.
func TestSolveInstallPullsInRequirement(t *testing.T) {
	bar := newPkg("bar", "2.0")
	bar.Requires = []depend.Depend{{Name: "libx", Relation: version.RelGE, Version: verPtr("1")}}
	libx := newPkg("libx", "1.2")
	libx.Provides = []depend.Provides{{Name: "libx", Version: verPtr("1.2")}}

	c := buildCache(t, nil, []*pkg.Package{bar, libx})

	txn := transaction.New(c, policy.NewInstallPolicy(nil))
	if err := txn.Enqueue(bar.Identity, transaction.QInstall); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cs, err := txn.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cs[bar.Identity] != policy.Install || cs[libx.Identity] != policy.Install {
		t.Fatalf("expected both bar-2.0 and libx-1.2 installed, got %+v", cs)
	}
	if len(cs) != 2 {
		t.Fatalf("expected exactly 2 changeset entries, got %d: %+v", len(cs), cs)
	}
}

// Installing a newer version of an installed package removes the old one.
func TestSolveUpgradeReplacesInstalled(t *testing.T) {
	baz1 := newPkg("baz", "1.0")
	baz2 := newPkg("baz", "2.0")
	c := buildCache(t, []*pkg.Package{baz1}, []*pkg.Package{baz2})

	txn := transaction.New(c, policy.NewUpgradePolicy(nil))
	if err := txn.Enqueue(baz2.Identity, transaction.QInstall); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cs, err := txn.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cs[baz2.Identity] != policy.Install {
		t.Fatalf("expected baz-2.0 installed, got %+v", cs)
	}
	if cs[baz1.Identity] != policy.Remove {
		t.Fatalf("expected baz-1.0 removed by the upgrade, got %+v", cs)
	}

	r := report.Classify(cs, c)
	if got := r.Upgrading[baz2.Identity]; len(got) != 1 || got[0].Identity != baz1.Identity {
		t.Fatalf("expected report.upgrading[baz-2.0] = {baz-1.0}, got %+v", got)
	}
	if got := r.Upgraded[baz1.Identity]; len(got) != 1 || got[0].Identity != baz2.Identity {
		t.Fatalf("expected report.upgraded[baz-1.0] = {baz-2.0}, got %+v", got)
	}
}

// A requirement nothing provides fails resolution and leaves the cache alone.
func TestSolveUnsatisfiableRequirementFails(t *testing.T) {
	qux := newPkg("qux", "1.0")
	qux.Requires = []depend.Depend{{Name: "missing", Relation: version.RelGE, Version: verPtr("1")}}
	c := buildCache(t, nil, []*pkg.Package{qux})

	txn := transaction.New(c, policy.NewInstallPolicy(nil))
	if err := txn.Enqueue(qux.Identity, transaction.QInstall); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err := txn.Resolve(context.Background())
	if err == nil {
		t.Fatalf("expected DependencyError, got nil")
	}
	depErr, ok := err.(*perrors.DependencyError)
	if !ok {
		t.Fatalf("expected *perrors.DependencyError, got %T: %v", err, err)
	}
	if got := perrors.TraceString(depErr); !contains(got, "missing") {
		t.Fatalf("expected error to mention %q, got %q", "missing", got)
	}

	// Cache is untouched: qux is still the only known package and still
	// not installed.
	if c.Len() != 1 {
		t.Fatalf("expected cache unchanged (1 package), got %d", c.Len())
	}
}

// A conflict that can only be resolved by moving a locked package fails.
func TestSolveConflictWithLockedFails(t *testing.T) {
	alpha := newPkg("alpha", "1.0")
	alpha.Conflicts = []depend.Depend{{Name: "beta", Relation: version.RelNone}}
	beta := newPkg("beta", "1.0")
	beta.Provides = []depend.Provides{{Name: "beta"}}

	c := buildCache(t, []*pkg.Package{alpha}, []*pkg.Package{beta})

	locked := map[pkg.Identity]bool{alpha.Identity: true}
	txn := transaction.New(c, policy.NewInstallPolicy(locked))
	if err := txn.Enqueue(beta.Identity, transaction.QInstall); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err := txn.Resolve(context.Background())
	if err == nil {
		t.Fatalf("expected LockedError, got nil")
	}
	lockErr, ok := err.(*perrors.LockedError)
	if !ok {
		t.Fatalf("expected *perrors.LockedError, got %T: %v", err, err)
	}
	if !contains(lockErr.Error(), "alpha") {
		t.Fatalf("expected LockedError to cite alpha-1.0, got %q", lockErr.Error())
	}
}

func TestSolveAllProvidersLockedIsPolicyError(t *testing.T) {
	bar := newPkg("bar", "2.0")
	bar.Requires = []depend.Depend{{Name: "libx", Relation: version.RelGE, Version: verPtr("1")}}
	libx := newPkg("libx", "1.2")
	libx.Provides = []depend.Provides{{Name: "libx", Version: verPtr("1.2")}}
	c := buildCache(t, nil, []*pkg.Package{bar, libx})

	locked := map[pkg.Identity]bool{libx.Identity: true}
	txn := transaction.New(c, policy.NewInstallPolicy(locked))
	if err := txn.Enqueue(bar.Identity, transaction.QInstall); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err := txn.Resolve(context.Background())
	if err == nil {
		t.Fatalf("expected PolicyError when the only provider is locked")
	}
	if _, ok := err.(*perrors.PolicyError); !ok {
		t.Fatalf("expected *perrors.PolicyError, got %T: %v", err, err)
	}
}

// Identical cache, queue and policy must produce identical changesets.
func TestSolveIsDeterministic(t *testing.T) {
	bar := newPkg("bar", "2.0")
	bar.Requires = []depend.Depend{{Name: "libx", Relation: version.RelGE, Version: verPtr("1")}}
	libxA := newPkg("libx", "1.2")
	libxA.Tag = "a"
	libxA.Provides = []depend.Provides{{Name: "libx", Version: verPtr("1.2")}}
	libxB := newPkg("libx", "1.2")
	libxB.Tag = "b"
	libxB.Provides = []depend.Provides{{Name: "libx", Version: verPtr("1.2")}}

	run := func() policy.Changeset {
		c := buildCache(t, nil, []*pkg.Package{bar, libxA, libxB})
		txn := transaction.New(c, policy.NewInstallPolicy(nil))
		if err := txn.Enqueue(bar.Identity, transaction.QInstall); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		cs, err := txn.Resolve(context.Background())
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		return cs
	}

	first := run()
	for i := 0; i < 5; i++ {
		next := run()
		if len(first) != len(next) {
			t.Fatalf("run %d: changeset size differs: %+v vs %+v", i, first, next)
		}
		for id, op := range first {
			if next[id] != op {
				t.Fatalf("run %d: changeset differs at %s: %v vs %v", i, id, op, next[id])
			}
		}
	}
}

// Reinstalling an installed package touches nothing else.
func TestReinstallRoundTrip(t *testing.T) {
	foo := newPkg("foo", "1.0")
	other := newPkg("other", "1.0")
	c := buildCache(t, []*pkg.Package{foo, other}, []*pkg.Package{newPkg("foo", "1.0")})

	txn := transaction.New(c, policy.NewInstallPolicy(nil))
	if err := txn.Enqueue(foo.Identity, transaction.QReinstall); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cs, err := txn.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(cs) != 1 {
		t.Fatalf("expected only foo in the changeset, got %+v", cs)
	}
	if cs[foo.Identity] != policy.Reinstall {
		t.Fatalf("expected foo-1.0 REINSTALL, got %v", cs[foo.Identity])
	}
	if op, ok := cs[other.Identity]; ok && op != policy.Keep {
		t.Fatalf("expected other-1.0 to stay implicitly KEEP, got %v", op)
	}
}

func TestReinstallRejectsUninstalledPackage(t *testing.T) {
	foo := newPkg("foo", "1.0")
	c := buildCache(t, nil, []*pkg.Package{foo})

	txn := transaction.New(c, policy.NewInstallPolicy(nil))
	err := txn.Enqueue(foo.Identity, transaction.QReinstall)
	if err == nil {
		t.Fatalf("expected UsageError for reinstalling an uninstalled package")
	}
	if _, ok := err.(*perrors.UsageError); !ok {
		t.Fatalf("expected *perrors.UsageError, got %T: %v", err, err)
	}
}

func TestReinstallRejectsPackageWithNoAvailableSource(t *testing.T) {
	foo := newPkg("foo", "1.0")
	c := buildCache(t, []*pkg.Package{foo}, nil)

	// foo is known only to the installed-package loader: there is no
	// channel to fetch a fresh copy from.
	txn := transaction.New(c, policy.NewInstallPolicy(nil))
	err := txn.Enqueue(foo.Identity, transaction.QReinstall)
	if err == nil {
		t.Fatalf("expected UsageError for a package with no available source")
	}
	if _, ok := err.(*perrors.UsageError); !ok {
		t.Fatalf("expected *perrors.UsageError, got %T: %v", err, err)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

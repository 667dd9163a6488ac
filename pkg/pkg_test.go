package pkg

import (
	"testing"

	"github.com/packagecore/pkgcore/version"
)

func TestPackageOrdering(t *testing.T) {
	a := &Package{Identity: Identity{Name: "foo", Version: version.Parse("2.0")}}
	b := &Package{Identity: Identity{Name: "foo", Version: version.Parse("1.0")}}
	if !a.Less(b) {
		t.Fatalf("expected higher version to sort first within same name")
	}

	c := &Package{Identity: Identity{Name: "bar", Version: version.Parse("9.0")}}
	if !c.Less(a) {
		t.Fatalf("expected name ascending to dominate version")
	}
}

func TestPackageEqual(t *testing.T) {
	a := &Package{Identity: Identity{Name: "foo", Version: version.Parse("1.0"), Tag: "x86"}}
	b := &Package{Identity: Identity{Name: "foo", Version: version.Parse("1.0"), Tag: "x86"}}
	if !a.Equal(b) {
		t.Fatalf("expected identical identities to be equal")
	}
	c := &Package{Identity: Identity{Name: "foo", Version: version.Parse("1.0"), Tag: "arm"}}
	if a.Equal(c) {
		t.Fatalf("expected differing tags to be unequal")
	}
}

package version

import "testing"

func TestParse(t *testing.T) {
	v := Parse("2:1.0-3")
	if !v.HasEpoch || v.Epoch != 2 {
		t.Fatalf("expected epoch 2, got %+v", v)
	}
	if v.Upstream != "1.0" {
		t.Fatalf("expected upstream 1.0, got %q", v.Upstream)
	}
	if !v.HasRel || v.Release != "3" {
		t.Fatalf("expected release 3, got %+v", v)
	}

	v2 := Parse("1.2")
	if v2.HasEpoch || v2.HasRel {
		t.Fatalf("expected no epoch/release, got %+v", v2)
	}
}

func TestCompareEpoch(t *testing.T) {
	a := Parse("1:1.0")
	b := Parse("2.0")
	if Compare(a, b) <= 0 {
		t.Fatalf("expected epoch 1 to outrank missing epoch with higher upstream")
	}
}

func TestCompareNumeric(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2", "1.10", -1},
		{"1.10", "1.2", 1},
		{"1.0", "1.0", 0},
		{"01.0", "1.0", 0},
		{"1.0a", "1.0", 1},
		{"1.0~rc1", "1.0", -1},
		{"1.0~rc1", "1.0~rc2", -1},
	}
	for _, c := range cases {
		got := Compare(Parse(c.a), Parse(c.b))
		if sign(got) != sign(c.want) {
			t.Errorf("Compare(%q,%q) = %d, want sign %d", c.a, c.b, got, c.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestCompareRelease(t *testing.T) {
	noRel := Parse("1.0")
	withRel := Parse("1.0-1")
	if Compare(withRel, noRel) <= 0 {
		t.Fatalf("explicit release should outrank missing release")
	}
	if Compare(noRel, noRel) != 0 {
		t.Fatalf("compare(a,a) must be 0")
	}
}

func TestCompareAntisymmetricAndTransitive(t *testing.T) {
	vs := []string{"1:0.9-2", "1.0", "1.0-1", "1.0-2", "1.1", "2:0.1"}
	for _, a := range vs {
		for _, b := range vs {
			va, vb := Parse(a), Parse(b)
			if sign(Compare(va, vb)) != -sign(Compare(vb, va)) {
				t.Fatalf("antisymmetry violated for %q, %q", a, b)
			}
		}
	}
	for _, a := range vs {
		for _, b := range vs {
			for _, c := range vs {
				va, vb, vc := Parse(a), Parse(b), Parse(c)
				if Compare(va, vb) <= 0 && Compare(vb, vc) <= 0 && Compare(va, vc) > 0 {
					t.Fatalf("transitivity violated for %q <= %q <= %q", a, b, c)
				}
			}
		}
	}
}

func TestMatch(t *testing.T) {
	one := Parse("1.0")
	two := Parse("2.0")

	if !Match(RelNone, nil, nil) {
		t.Fatalf("RelNone must always match")
	}
	if !Match(RelGE, &one, &one) {
		t.Fatalf("1.0 >= 1.0 should match")
	}
	if Match(RelGT, &one, &one) {
		t.Fatalf("1.0 > 1.0 should not match")
	}
	if !Match(RelLT, &one, &two) {
		t.Fatalf("1.0 < 2.0 should match")
	}
	if Match(RelEQ, nil, &one) {
		t.Fatalf("version-less provides must not match a versioned requirement")
	}
	if !Match(RelEQ, nil, nil) {
		t.Fatalf("version-less provides must match a version-less requirement")
	}
}

func TestMatchEqualReleaseWildcard(t *testing.T) {
	withRel := Parse("1.2-3")
	noRel := Parse("1.2")
	otherRel := Parse("1.2-4")

	if !Match(RelEQ, &withRel, &noRel) {
		t.Fatalf("release-less = requirement must match any release")
	}
	if !Match(RelEQ, &withRel, &withRel) {
		t.Fatalf("identical releases must match")
	}
	if Match(RelEQ, &withRel, &otherRel) {
		t.Fatalf("explicit release in the requirement must match exactly")
	}
	if Match(RelEQ, &noRel, &withRel) {
		t.Fatalf("explicit release in the requirement must not match a release-less version")
	}
	// The wildcard applies to = only; ordering relations keep the
	// "explicit release sorts higher" rule.
	if Match(RelLE, &withRel, &noRel) {
		t.Fatalf("1.2-3 <= 1.2 should not hold")
	}
}

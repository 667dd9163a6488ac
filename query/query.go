// Package query implements package selection by name, glob, regex, and
// by relation (whoprovides/whorequires/whoconflicts/whoobsoletes).
// Search and the Who* lookups are independent; combining their
// results is left to the caller.
package query

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/version"
)

const maxSuggestions = 10

// Suggestion is a fuzzy-match candidate with its similarity ratio.
type Suggestion struct {
	Ratio   float64
	Package *pkg.Package
}

// Result is the outcome of a Search: a similarity ratio (1.0 for an
// exact, single-identity match), the matching packages, and, when
// ratio < 1.0, up to maxSuggestions fuzzy suggestions.
type Result struct {
	Ratio       float64
	Packages    []*pkg.Package
	Suggestions []Suggestion
}

var globMeta = regexp.MustCompile(`[*?\[]`)

// Search selects packages by text: a bare name, "name-version",
// "name-version-release", a shell-style glob, or a /regex/. The
// absence of glob metacharacters triggers an exact name match;
// otherwise the pattern is matched against package names.
func Search(c *cache.Cache, text string) Result {
	if strings.HasPrefix(text, "/") && strings.HasSuffix(text, "/") && len(text) > 1 {
		return searchRegex(c, text[1:len(text)-1])
	}
	if globMeta.MatchString(text) {
		return searchGlob(c, text)
	}
	return searchExact(c, text)
}

func searchExact(c *cache.Cache, text string) Result {
	matches := c.GetPackages(text)
	if len(matches) > 0 {
		return Result{Ratio: 1.0, Packages: matches}
	}
	if matches := matchNameVersion(c, text); len(matches) > 0 {
		return Result{Ratio: 1.0, Packages: matches}
	}
	return fuzzyResult(c, text)
}

// matchNameVersion resolves "name-version" and "name-version-release"
// specs. Each '-' in text, tried right to left, splits a candidate name
// from a candidate version; the first split that names known packages
// with a matching version wins.
func matchNameVersion(c *cache.Cache, text string) []*pkg.Package {
	for i := len(text) - 1; i > 0; i-- {
		if text[i] != '-' {
			continue
		}
		name, want := text[:i], version.Parse(text[i+1:])
		var out []*pkg.Package
		for _, p := range c.GetPackages(name) {
			// = matching treats a release-less spec as a wildcard over
			// releases, so "foo-1.0" finds "foo-1.0-3".
			if version.Match(version.RelEQ, &p.Version, &want) {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func searchGlob(c *cache.Cache, pattern string) Result {
	var matches []*pkg.Package
	for _, p := range c.GetPackages("") {
		if ok, _ := filepath.Match(pattern, p.Name); ok {
			matches = append(matches, p)
		}
	}
	sortPackages(matches)
	if len(matches) == 0 {
		return fuzzyResult(c, pattern)
	}
	return Result{Ratio: ratioFor(matches), Packages: matches}
}

func searchRegex(c *cache.Cache, pattern string) Result {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{}
	}
	var matches []*pkg.Package
	for _, p := range c.GetPackages("") {
		if re.MatchString(p.Name) {
			matches = append(matches, p)
		}
	}
	sortPackages(matches)
	if len(matches) == 0 {
		return Result{}
	}
	return Result{Ratio: ratioFor(matches), Packages: matches}
}

// ratioFor returns 1.0 for a single-identity result, else a ratio below
// 1.0 since more than one package matched a non-exact dispatch path.
func ratioFor(matches []*pkg.Package) float64 {
	if len(matches) == 1 {
		return 1.0
	}
	return 0.99
}

// fuzzyResult falls back to a ranked longest-common-substring match
// over package names when no exact/glob/regex match was found.
func fuzzyResult(c *cache.Cache, text string) Result {
	var suggestions []Suggestion
	for _, p := range c.GetPackages("") {
		r := lcsRatio(text, p.Name)
		if r > 0 {
			suggestions = append(suggestions, Suggestion{Ratio: r, Package: p})
		}
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Ratio != suggestions[j].Ratio {
			return suggestions[i].Ratio > suggestions[j].Ratio
		}
		return suggestions[i].Package.Less(suggestions[j].Package)
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return Result{Ratio: 0, Suggestions: suggestions}
}

// lcsRatio is 2*len(lcs(a,b)) / (len(a)+len(b)), the normalized
// longest-common-substring (not subsequence) ratio.
func lcsRatio(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := longestCommonSubstring(a, b)
	if n == 0 {
		return 0
	}
	return 2 * float64(n) / float64(len(a)+len(b))
}

func longestCommonSubstring(a, b string) int {
	prev := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best = cur[j]
				}
			}
		}
		prev = cur
	}
	return best
}

func sortPackages(pkgs []*pkg.Package) {
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Less(pkgs[j]) })
}

// ParseRelSpec splits a "dep[=version]" spec string into a name and an
// optional version string (nil when no "=" is present), as accepted by
// --whoprovides et al.
func ParseRelSpec(spec string) (name string, v *string) {
	if i := strings.IndexByte(spec, '='); i >= 0 {
		val := spec[i+1:]
		return spec[:i], &val
	}
	return spec, nil
}

// WhoProvides returns the packages in c that provide a dependency
// matching name[=version], where name may be a /regex/.
func WhoProvides(c *cache.Cache, spec string) []*pkg.Package {
	return whoRelation(c, spec, c.GetProvides, func(ref cache.ProvidesRef) *pkg.Package { return ref.Pkg })
}

func whoRelation(c *cache.Cache, spec string, lookup func(string) []cache.ProvidesRef, pkgOf func(cache.ProvidesRef) *pkg.Package) []*pkg.Package {
	name, v := ParseRelSpec(spec)
	var refs []cache.ProvidesRef
	if re, ok := tryRegex(name); ok {
		for _, ref := range lookup("") {
			if re.MatchString(nameOfProvides(ref)) {
				refs = append(refs, ref)
			}
		}
	} else {
		refs = lookup(name)
	}

	seen := map[pkg.Identity]bool{}
	var out []*pkg.Package
	for _, ref := range refs {
		if v != nil && (ref.Prov.Version == nil || ref.Prov.Version.String() != *v) {
			continue
		}
		p := pkgOf(ref)
		if !seen[p.Identity] {
			seen[p.Identity] = true
			out = append(out, p)
		}
	}
	sortPackages(out)
	return out
}

func nameOfProvides(ref cache.ProvidesRef) string { return ref.Prov.Name }

// WhoRequires, WhoConflicts, WhoObsoletes are the Depend-shaped
// equivalents of WhoProvides.
func WhoRequires(c *cache.Cache, spec string) []*pkg.Package {
	return whoDepend(c, spec, c.GetRequires)
}
func WhoConflicts(c *cache.Cache, spec string) []*pkg.Package {
	return whoDepend(c, spec, c.GetConflicts)
}
func WhoObsoletes(c *cache.Cache, spec string) []*pkg.Package {
	return whoDepend(c, spec, c.GetObsoletes)
}

func whoDepend(c *cache.Cache, spec string, lookup func(string) []cache.DependRef) []*pkg.Package {
	name, v := ParseRelSpec(spec)
	var refs []cache.DependRef
	if re, ok := tryRegex(name); ok {
		for _, ref := range lookup("") {
			if re.MatchString(ref.Dep.Name) {
				refs = append(refs, ref)
			}
		}
	} else {
		refs = lookup(name)
	}

	seen := map[pkg.Identity]bool{}
	var out []*pkg.Package
	for _, ref := range refs {
		if v != nil {
			if !matchesRelSpecVersion(ref.Dep, *v) {
				continue
			}
		}
		if !seen[ref.Pkg.Identity] {
			seen[ref.Pkg.Identity] = true
			out = append(out, ref.Pkg)
		}
	}
	sortPackages(out)
	return out
}

func matchesRelSpecVersion(d depend.Depend, v string) bool {
	return d.Version != nil && d.Version.String() == v
}

// tryRegex reports whether name contains regex metacharacters (any of
// "^{[*") and, if so, compiles it as a regex.
func tryRegex(name string) (*regexp.Regexp, bool) {
	if !strings.ContainsAny(name, "^{[*") {
		return nil, false
	}
	re, err := regexp.Compile(name)
	if err != nil {
		return nil, false
	}
	return re, true
}

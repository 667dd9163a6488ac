// Package order computes the execution order of a changeset: a
// topological sort such that every REMOVE of a package's
// obsoleters/conflicters precedes its INSTALL, every INSTALL of a
// package's requires precedes its INSTALL, and REMOVEs are ordered
// after every package that still required them is itself scheduled to
// go. Cycles fall back to a single grouped step, executed atomically
// by the backend.
package order

import (
	"sort"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
)

// Step is one entry in the ordered plan handed to the backend: an
// operation and the package identity it applies to. transaction.Commit
// resolves the local path for each INSTALL/REINSTALL step itself, by
// consulting the fetcher, rather than expecting one here.
type Step struct {
	Op      policy.Op
	Pkg     pkg.Identity
	Grouped []pkg.Identity // non-nil for a cycle fallback step; Pkg is unset in that case
}

// node is one changeset entry being ordered, with its precedence edges.
type node struct {
	id   pkg.Identity
	op   policy.Op
	deps map[pkg.Identity]bool // must come before this node
}

// Plan computes the ordered step list for cs against c.
func Plan(cs policy.Changeset, c *cache.Cache) []Step {
	nodes := buildNodes(cs, c)
	groups := topoSort(nodes)

	steps := make([]Step, 0, len(cs))
	for _, g := range groups {
		if len(g) == 1 {
			n := g[0]
			steps = append(steps, Step{Op: n.op, Pkg: n.id})
			continue
		}
		ids := make([]pkg.Identity, 0, len(g))
		for _, n := range g {
			ids = append(ids, n.id)
		}
		sort.Slice(ids, func(i, j int) bool { return identityLess(ids[i], ids[j]) })
		steps = append(steps, Step{Grouped: ids})
	}
	return steps
}

func identityLess(a, b pkg.Identity) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Tag < b.Tag
}

// buildNodes builds one node per changeset entry and wires its
// precedence edges per the four ordering rules.
func buildNodes(cs policy.Changeset, c *cache.Cache) map[pkg.Identity]*node {
	nodes := make(map[pkg.Identity]*node, len(cs))
	for id, op := range cs {
		nodes[id] = &node{id: id, op: op, deps: map[pkg.Identity]bool{}}
	}

	for id, n := range nodes {
		p, ok := c.GetPackage(id)
		if !ok {
			continue
		}
		switch n.op {
		case policy.Install, policy.Reinstall:
			// Requires must install first.
			for _, req := range p.Requires {
				for _, ref := range c.ProvidedBy(p, depend.KindRequires, req) {
					if other, ok := nodes[ref.Pkg.Identity]; ok && isInstalling(other.op) && ref.Pkg.Identity != id {
						n.deps[ref.Pkg.Identity] = true
					}
				}
			}
			// Removal of obsoleters/conflicters must precede this install.
			for _, d := range p.Conflicts {
				for _, ref := range c.ProvidedBy(p, depend.KindConflicts, d) {
					markRemovalDep(nodes, n, ref.Pkg.Identity)
				}
			}
			for _, d := range p.Obsoletes {
				for _, ref := range c.ProvidedBy(p, depend.KindObsoletes, d) {
					markRemovalDep(nodes, n, ref.Pkg.Identity)
				}
			}
		case policy.Remove:
			// Every package that still required this one must itself be
			// removed (or rebuilt/reinstalled) before this REMOVE runs.
			for _, other := range c.GetPackages("") {
				if other.Identity == id {
					continue
				}
				for _, req := range other.Requires {
					for _, ref := range c.ProvidedBy(other, depend.KindRequires, req) {
						if ref.Pkg.Identity != id {
							continue
						}
						if _, ok := nodes[other.Identity]; ok {
							n.deps[other.Identity] = true
						}
					}
				}
			}
		}
	}
	return nodes
}

func markRemovalDep(nodes map[pkg.Identity]*node, n *node, removed pkg.Identity) {
	if other, ok := nodes[removed]; ok && other.op == policy.Remove {
		n.deps[removed] = true
	}
}

func isInstalling(op policy.Op) bool { return op == policy.Install || op == policy.Reinstall }

// topoSort returns nodes grouped into execution batches: singleton
// groups in dependency order (Kahn-style repeated removal of nodes with
// no remaining predecessors). Once no node is ready, every node still
// left, whether in a cycle or only behind one, forms a single final
// grouped step.
func topoSort(nodes map[pkg.Identity]*node) [][]*node {
	remaining := make(map[pkg.Identity]*node, len(nodes))
	for id, n := range nodes {
		remaining[id] = n
	}

	var groups [][]*node
	for len(remaining) > 0 {
		ready := readyNodes(remaining)
		if len(ready) == 0 {
			groups = append(groups, cycleGroup(remaining))
			break
		}
		sort.Slice(ready, func(i, j int) bool { return identityLess(ready[i].id, ready[j].id) })
		for _, n := range ready {
			groups = append(groups, []*node{n})
			delete(remaining, n.id)
		}
	}
	return groups
}

func readyNodes(remaining map[pkg.Identity]*node) []*node {
	var ready []*node
	for _, n := range remaining {
		blocked := false
		for dep := range n.deps {
			if _, ok := remaining[dep]; ok {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, n)
		}
	}
	return ready
}

func cycleGroup(remaining map[pkg.Identity]*node) []*node {
	var g []*node
	for _, n := range remaining {
		g = append(g, n)
	}
	return g
}

// Package transaction implements the queue, the backtracking solver,
// and the changeset it produces. The solver is a bounded, best-first
// depth-first search over provider choice points: each propagation
// round closes over requirements, conflicts, obsoletes, same-name
// replacement and cascade removal, and every unresolved requirement
// becomes a ranked choice point to branch on.
package transaction

import (
	"context"
	"fmt"
	"sort"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/internal/plog"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/version"
)

// QueueOp is a desired operation placed on the transaction's queue,
// which is a superset of the four Changeset ops.
type QueueOp int

const (
	QKeep QueueOp = iota
	QInstall
	QRemove
	QReinstall
	QUpgrade
	QFix
)

// defaultBudget bounds the solver's backtracking work.
const defaultBudget = 10000

// PriorityFunc ranks a candidate identity's originating channel;
// higher wins.
type PriorityFunc func(pkg.Identity) int

// Transaction holds a queue under construction, a reference to the
// cache it will resolve against, and the policy driving that
// resolution.
type Transaction struct {
	Cache    *cache.Cache
	Policy   policy.Policy
	Priority PriorityFunc
	Budget   int
	Log      *plog.Logger

	queue map[pkg.Identity]QueueOp
}

// New returns a Transaction ready for Enqueue calls.
func New(c *cache.Cache, pol policy.Policy) *Transaction {
	return &Transaction{
		Cache:    c,
		Policy:   pol,
		Priority: func(pkg.Identity) int { return 0 },
		Budget:   defaultBudget,
		queue:    make(map[pkg.Identity]QueueOp),
	}
}

// Enqueue places id on the queue under the given op. A REINSTALL is
// rejected with a UsageError unless the identity is present in the
// cache, installed, and also offered by at least one loader that is
// not the installed database: with every loader reporting installed
// there is no source to fetch a fresh copy from.
func (t *Transaction) Enqueue(id pkg.Identity, op QueueOp) error {
	if op == QReinstall {
		p, ok := t.Cache.GetPackage(id)
		if !ok || !p.Installed {
			return perrors.NewUsageError(fmt.Sprintf("%s is not available for reinstallation", id))
		}
		available := false
		for _, l := range p.Loaders {
			if !l.Installed() {
				available = true
				break
			}
		}
		if !available {
			return perrors.NewUsageError(fmt.Sprintf("%s is not available for reinstallation", id))
		}
	}
	t.queue[id] = op
	return nil
}

// Resolve runs the solver to fixpoint (or until its step budget is
// exhausted) and returns a consistent changeset, or a structured
// error.
func (t *Transaction) Resolve(ctx context.Context) (policy.Changeset, error) {
	cs, err := t.seed()
	if err != nil {
		return nil, err
	}

	locked := map[pkg.Identity]bool{}
	if t.Policy != nil {
		locked = t.Policy.LockedSet()
	}

	budget := t.Budget
	if budget <= 0 {
		budget = defaultBudget
	}

	s := &solver{
		c:        t.Cache,
		pol:      t.Policy,
		priority: t.Priority,
		locked:   locked,
		log:      t.Log,
	}

	final, err := s.resolveFrom(ctx, cs, &budget)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// seed folds the queue into an initial changeset. A REINSTALL is
// represented as REMOVE followed by INSTALL of the same identity, but
// recorded in the changeset as the single Reinstall op.
func (t *Transaction) seed() (policy.Changeset, error) {
	cs := make(policy.Changeset, len(t.queue))
	for id, op := range t.queue {
		switch op {
		case QInstall, QUpgrade:
			cs[id] = policy.Install
		case QRemove:
			cs[id] = policy.Remove
		case QReinstall:
			cs[id] = policy.Reinstall
		case QFix, QKeep:
			// No state change requested; left implicitly Keep.
		}
	}
	return cs, nil
}

// effectiveState reports whether id is installed-or-to-be-installed in
// cs: explicit Install/Reinstall wins, explicit Remove loses, and
// absence falls back to the cache's Installed flag.
func effectiveState(cs policy.Changeset, c *cache.Cache, id pkg.Identity) bool {
	if op, ok := cs[id]; ok {
		return op == policy.Install || op == policy.Reinstall
	}
	p, ok := c.GetPackage(id)
	return ok && p.Installed
}

type cacheContext struct{ c *cache.Cache }

func (x cacheContext) Package(id pkg.Identity) (*pkg.Package, bool) { return x.c.GetPackage(id) }

type solver struct {
	c        *cache.Cache
	pol      policy.Policy
	priority PriorityFunc
	locked   map[pkg.Identity]bool
	log      *plog.Logger
}

// choicePoint names an unresolved requirement and its ranked candidate
// providers.
type choicePoint struct {
	requirer   *pkg.Package
	req        depend.Depend
	candidates []*pkg.Package
}

// resolveFrom propagates cs to fixpoint, branching on the first choice
// point it encounters and recursing; it returns the first fully
// consistent changeset found, exploring candidates in ranked
// (best-first) order so the result is deterministic.
func (s *solver) resolveFrom(ctx context.Context, cs policy.Changeset, budget *int) (policy.Changeset, error) {
	cur := cs
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if *budget <= 0 {
			// Step budget exhausted: return the best fully-consistent
			// partial solution found so far.
			return cur, nil
		}
		*budget--

		next, changed, choice, err := s.propagateStep(cur)
		if err != nil {
			return nil, err
		}
		if choice != nil {
			return s.branch(ctx, cur, choice, budget)
		}
		if !changed {
			return next, nil
		}
		cur = next
	}
}

// branch tries choice's candidates in ranked order, recursing into
// resolveFrom for each until one yields a consistent changeset.
func (s *solver) branch(ctx context.Context, cs policy.Changeset, choice *choicePoint, budget *int) (policy.Changeset, error) {
	if s.log != nil {
		s.log.WithField("requirement", choice.req.String()).
			WithField("candidates", len(choice.candidates)).
			Debug("branching on provider choice")
	}
	var lastErr error
	for _, cand := range choice.candidates {
		csTry := cs.Clone()
		csTry[cand.Identity] = policy.Install
		result, err := s.resolveFrom(ctx, csTry, budget)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, perrors.NewDependencyError(
		fmt.Sprintf("no provider satisfies %s required by %s", choice.req, choice.requirer.Identity),
	)
}

// propagateStep applies one round of the propagation rules. It
// returns the updated changeset, whether any deterministic change was
// made, an unresolved choice point (at most one per call; resolveFrom
// loops back after each deterministic change), or a hard failure.
func (s *solver) propagateStep(cs policy.Changeset) (policy.Changeset, bool, *choicePoint, error) {
	ids := sortedIdentities(cs)

	for _, id := range ids {
		if cs[id] != policy.Install && cs[id] != policy.Reinstall {
			continue
		}
		p, ok := s.c.GetPackage(id)
		if !ok {
			continue
		}

		if choice, err := s.checkRequires(cs, p); err != nil {
			return nil, false, nil, err
		} else if choice != nil {
			return cs, false, choice, nil
		}

		if next, changed, err := s.checkConflictsOrObsoletes(cs, p, depend.KindConflicts, p.Conflicts); err != nil {
			return nil, false, nil, err
		} else if changed {
			return next, true, nil, nil
		}
		if next, changed, err := s.checkConflictsOrObsoletes(cs, p, depend.KindObsoletes, p.Obsoletes); err != nil {
			return nil, false, nil, err
		} else if changed {
			return next, true, nil, nil
		}
		// Conflicts, unlike obsoletes, are a symmetric relation: a
		// conflict declared by an already-effective package q against p
		// blocks p's install exactly as one declared by p against q.
		if next, changed, err := s.checkReverseConflicts(cs, p); err != nil {
			return nil, false, nil, err
		} else if changed {
			return next, true, nil, nil
		}
		// A package identity is (name, version, tag): two versions of
		// the same name are distinct identities but cannot coexist
		// installed. Installing p displaces any other effective package
		// of the same name the way an obsoletes match would.
		if next, changed, err := s.checkSameNameReplacement(cs, p); err != nil {
			return nil, false, nil, err
		} else if changed {
			return next, true, nil, nil
		}
	}

	for _, id := range ids {
		if cs[id] != policy.Remove {
			continue
		}
		if next, changed, err := s.cascadeRemoval(cs, id); err != nil {
			return nil, false, nil, err
		} else if changed {
			return next, true, nil, nil
		}
	}

	return cs, false, nil, nil
}

// checkRequires ensures every requirement of p is satisfied by an
// installed-or-to-be-installed provider, returning a choice point when
// one must be selected.
func (s *solver) checkRequires(cs policy.Changeset, p *pkg.Package) (*choicePoint, error) {
	for _, req := range p.Requires {
		if s.requirementSatisfied(cs, p, req) {
			continue
		}

		candidates := s.rankCandidates(cs, p, req)
		if len(candidates) == 0 {
			if len(s.c.ProvidedBy(p, depend.KindRequires, req)) > 0 {
				// Providers exist but every one was excluded by policy
				// (locked), so this is a policy failure, not a missing
				// dependency.
				return nil, perrors.NewPolicyError(
					fmt.Sprintf("no provider of %s meets policy constraints, required by %s", req, p.Identity),
				)
			}
			return nil, perrors.NewDependencyError(
				fmt.Sprintf("nothing provides %s, required by %s", req, p.Identity),
				fmt.Sprintf("%s requires %s", p.Identity, req),
			)
		}
		return &choicePoint{requirer: p, req: req, candidates: candidates}, nil
	}
	return nil, nil
}

func (s *solver) requirementSatisfied(cs policy.Changeset, p *pkg.Package, req depend.Depend) bool {
	for _, ref := range s.c.ProvidedBy(p, depend.KindRequires, req) {
		if effectiveState(cs, s.c, ref.Pkg.Identity) {
			return true
		}
	}
	return false
}

// rankCandidates returns the distinct provider packages for req, locked
// candidates removed, ranked by (1) resulting policy weight ascending,
// (2) channel priority descending, (3) version descending, (4) stable
// identity order.
func (s *solver) rankCandidates(cs policy.Changeset, p *pkg.Package, req depend.Depend) []*pkg.Package {
	seen := map[pkg.Identity]bool{}
	var candidates []*pkg.Package
	for _, ref := range s.c.ProvidedBy(p, depend.KindRequires, req) {
		if seen[ref.Pkg.Identity] || s.locked[ref.Pkg.Identity] {
			continue
		}
		seen[ref.Pkg.Identity] = true
		candidates = append(candidates, ref.Pkg)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if wa, wb := s.weightWith(cs, a), s.weightWith(cs, b); wa != wb {
			return wa < wb
		}
		if pa, pb := s.channelPriority(a.Identity), s.channelPriority(b.Identity); pa != pb {
			return pa > pb
		}
		if c := version.Compare(a.Version, b.Version); c != 0 {
			return c > 0
		}
		return a.Less(b)
	})
	return candidates
}

func (s *solver) weightWith(cs policy.Changeset, cand *pkg.Package) int {
	if s.pol == nil {
		return 0
	}
	try := cs.Clone()
	try[cand.Identity] = policy.Install
	return s.pol.Weight(try, cacheContext{c: s.c})
}

func (s *solver) channelPriority(id pkg.Identity) int {
	if s.priority == nil {
		return 0
	}
	return s.priority(id)
}

// checkConflictsOrObsoletes schedules REMOVE of every
// installed-or-to-be-installed package matched by one of p's
// conflicts/obsoletes, failing with LockedError if the match is
// locked.
func (s *solver) checkConflictsOrObsoletes(cs policy.Changeset, p *pkg.Package, kind depend.Kind, deps []depend.Depend) (policy.Changeset, bool, error) {
	for _, d := range deps {
		for _, ref := range s.c.ProvidedBy(p, kind, d) {
			q := ref.Pkg
			if q.Identity == p.Identity {
				continue
			}
			if !effectiveState(cs, s.c, q.Identity) {
				continue
			}
			if cs[q.Identity] == policy.Remove {
				continue
			}
			if s.locked[q.Identity] {
				return nil, false, perrors.NewLockedError(q.Identity.String())
			}
			next := cs.Clone()
			next[q.Identity] = policy.Remove
			return next, true, nil
		}
	}
	return cs, false, nil
}

// checkReverseConflicts schedules REMOVE of every installed-or-to-be-
// installed package q whose own Conflicts list matches one of p's
// Provides: the other half of the symmetric conflicts relation
// checkConflictsOrObsoletes already covers from p's side.
func (s *solver) checkReverseConflicts(cs policy.Changeset, p *pkg.Package) (policy.Changeset, bool, error) {
	for _, q := range s.c.GetPackages("") {
		if q.Identity == p.Identity || !effectiveState(cs, s.c, q.Identity) || cs[q.Identity] == policy.Remove {
			continue
		}
		for _, d := range q.Conflicts {
			for _, prov := range p.Provides {
				if !d.Matches(prov) {
					continue
				}
				if s.locked[q.Identity] {
					return nil, false, perrors.NewLockedError(q.Identity.String())
				}
				next := cs.Clone()
				next[q.Identity] = policy.Remove
				return next, true, nil
			}
		}
	}
	return cs, false, nil
}

// checkSameNameReplacement schedules REMOVE of every other
// installed-or-to-be-installed package sharing p's name: a package
// identity carries a version, so two versions of "baz" are distinct
// identities, but a backend can only ever have one of them installed
// at a time. Installing baz-2.0 over installed baz-1.0 removes
// baz-1.0 without either side declaring an explicit conflict or
// obsoletes.
func (s *solver) checkSameNameReplacement(cs policy.Changeset, p *pkg.Package) (policy.Changeset, bool, error) {
	for _, q := range s.c.GetPackages(p.Name) {
		if q.Identity == p.Identity || !effectiveState(cs, s.c, q.Identity) || cs[q.Identity] == policy.Remove {
			continue
		}
		if s.locked[q.Identity] {
			return nil, false, perrors.NewLockedError(q.Identity.String())
		}
		next := cs.Clone()
		next[q.Identity] = policy.Remove
		return next, true, nil
	}
	return cs, false, nil
}

// cascadeRemoval schedules REMOVE of every installed package whose
// requirement is satisfied only by q's provides.
func (s *solver) cascadeRemoval(cs policy.Changeset, q pkg.Identity) (policy.Changeset, bool, error) {
	for _, pp := range s.c.GetPackages("") {
		if !pp.Installed || pp.Identity == q {
			continue
		}
		if cs[pp.Identity] == policy.Remove {
			continue
		}
		for _, req := range pp.Requires {
			refs := s.c.ProvidedBy(pp, depend.KindRequires, req)
			if !onlySatisfierIs(cs, s.c, refs, q) {
				continue
			}
			if s.locked[pp.Identity] {
				return nil, false, perrors.NewLockedError(pp.Identity.String())
			}
			next := cs.Clone()
			next[pp.Identity] = policy.Remove
			return next, true, nil
		}
	}
	return cs, false, nil
}

// onlySatisfierIs reports whether q is the sole effectively-installed
// provider among refs.
func onlySatisfierIs(cs policy.Changeset, c *cache.Cache, refs []cache.ProvidesRef, q pkg.Identity) bool {
	foundQ := false
	for _, ref := range refs {
		if !effectiveState(cs, c, ref.Pkg.Identity) {
			continue
		}
		if ref.Pkg.Identity == q {
			foundQ = true
			continue
		}
		return false // some other effective provider exists
	}
	return foundQ
}

func sortedIdentities(cs policy.Changeset) []pkg.Identity {
	ids := make([]pkg.Identity, 0, len(cs))
	for id := range cs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if c := version.Compare(a.Version, b.Version); c != 0 {
			return c > 0
		}
		return a.Tag < b.Tag
	})
	return ids
}

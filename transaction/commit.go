package transaction

import (
	"context"

	"github.com/packagecore/pkgcore/fetch"
	"github.com/packagecore/pkgcore/iface"
	"github.com/packagecore/pkgcore/order"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
)

// Backend applies one ordered step to real system state. A grouped
// cycle-fallback step (order.Step.Grouped non-nil) is applied as a
// single atomic unit; op and identity are meaningless in that case.
type Backend interface {
	Apply(ctx context.Context, op policy.Op, id pkg.Identity, path string) error
	ApplyGroup(ctx context.Context, ids []pkg.Identity) error
}

// URLFor resolves the download URL for an identity about to be
// installed or reinstalled. A non-fetchable identity (already present
// locally) returns "".
type URLFor func(pkg.Identity) string

// Commit resolves a local path for every INSTALL/REINSTALL step up
// front, enqueuing each through fetcher and running the batch once so
// fetches stay concurrent, then walks steps in order handing each to
// backend.Apply. A CommitError stops the loop; already-applied steps
// are not rolled back.
func Commit(ctx context.Context, steps []order.Step, backend Backend, fetcher fetch.Fetcher, urlFor URLFor, ui iface.Interface) error {
	paths, err := resolvePaths(ctx, steps, fetcher, urlFor, ui)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.Grouped != nil {
			if err := backend.ApplyGroup(ctx, step.Grouped); err != nil {
				return perrors.NewCommitError("GROUP", "", err)
			}
			continue
		}

		path := paths[step.Pkg]
		if ui != nil {
			ui.ShowStatus(step.Op.String() + " " + step.Pkg.String())
		}
		if err := backend.Apply(ctx, step.Op, step.Pkg, path); err != nil {
			return perrors.NewCommitError(step.Op.String(), step.Pkg.String(), err)
		}
		if ui != nil {
			ui.HideStatus()
		}
	}
	return nil
}

// resolvePaths enqueues every INSTALL/REINSTALL step's URL and runs
// fetcher once, returning the resulting local path per identity.
func resolvePaths(ctx context.Context, steps []order.Step, fetcher fetch.Fetcher, urlFor URLFor, ui iface.Interface) (map[pkg.Identity]string, error) {
	paths := map[pkg.Identity]string{}
	if fetcher == nil || urlFor == nil {
		return paths, nil
	}

	fetcher.Reset()
	items := map[pkg.Identity]fetch.Item{}
	for _, step := range steps {
		if step.Grouped != nil || (step.Op != policy.Install && step.Op != policy.Reinstall) {
			continue
		}
		u := urlFor(step.Pkg)
		if u == "" {
			continue
		}
		items[step.Pkg] = fetcher.Enqueue(u, fetch.Options{})
	}
	if len(items) == 0 {
		return paths, nil
	}

	if err := fetcher.Run(ctx, ui); err != nil {
		return nil, err
	}
	for id, it := range items {
		if it.Status() != fetch.StatusSucceeded {
			return nil, perrors.NewCommitError(policy.Install.String(), id.String(), it.FailedReason())
		}
		paths[id] = it.TargetPath()
	}
	return paths, nil
}

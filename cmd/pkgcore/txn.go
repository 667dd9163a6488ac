package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/packagecore/pkgcore/fetch"
	"github.com/packagecore/pkgcore/order"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/query"
	"github.com/packagecore/pkgcore/report"
	"github.com/packagecore/pkgcore/transaction"
)

// txnFlags are the common flags shared by install/remove/upgrade/
// reinstall.
type txnFlags struct {
	urls     bool
	metalink bool
	download bool
	stepped  bool
	explain  bool
	yes      bool
}

func (f *txnFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&f.urls, "urls", false, "dump needed urls and don't commit")
	fs.BoolVar(&f.metalink, "metalink", false, "dump metalink xml and don't commit")
	fs.BoolVar(&f.download, "download", false, "download packages and don't commit")
	fs.BoolVar(&f.stepped, "stepped", false, "confirm and commit one step at a time")
	fs.BoolVar(&f.explain, "explain", false, "include additional information about changes")
	fs.BoolVar(&f.yes, "y", false, "do not ask for confirmation")
	fs.BoolVar(&f.yes, "yes", false, "do not ask for confirmation")
}

// resolveArgs maps each of args through query.Search, optionally
// restricted to installed packages (for remove/reinstall), returning
// the matched identities. A spec matching nothing is a UsageError; one
// matching only uninstalled packages when installedOnly is set warns
// and is skipped.
func resolveArgs(c *appContext, args []string, installedOnly bool) ([]pkg.Identity, error) {
	var ids []pkg.Identity
	for _, arg := range args {
		res := query.Search(c.cache, arg)
		if len(res.Packages) == 0 {
			return nil, perrors.NewUsageError(fmt.Sprintf("%q matches no packages", arg))
		}
		found := false
		for _, p := range res.Packages {
			if installedOnly && !p.Installed {
				continue
			}
			found = true
			ids = append(ids, p.Identity)
		}
		if !found {
			c.ui.Warning(fmt.Sprintf("%q matches no installed packages", arg))
		}
	}
	return ids, nil
}

// runTxn drives one enqueue/resolve/report/commit cycle shared by all
// four mutating subcommands.
func runTxn(ctx context.Context, c *appContext, f *txnFlags, op transaction.QueueOp, ids []pkg.Identity) error {
	if len(ids) == 0 {
		c.ui.Info("nothing to do")
		return nil
	}

	upgrade := op == transaction.QUpgrade
	t := buildTransaction(c, upgrade)
	for _, id := range ids {
		if err := t.Enqueue(id, op); err != nil {
			return err
		}
	}

	c.ui.ShowStatus("Computing transaction...")
	cs, err := t.Resolve(ctx)
	c.ui.HideStatus()
	if err != nil {
		if f.explain {
			return perrors.NewDependencyError(perrors.TraceString(err))
		}
		return err
	}

	if len(cs) == 0 {
		c.ui.Info("nothing to do")
		return nil
	}

	rep := report.Classify(cs, c.cache)
	printReport(c, rep, f.explain)

	switch {
	case f.urls:
		return printURLs(c, cs)
	case f.metalink:
		return printMetalink(c, cs)
	case f.download:
		return downloadOnly(ctx, c, cs)
	case f.stepped:
		return commitStepped(ctx, c, f, cs)
	default:
		return commitAll(ctx, c, f, cs)
	}
}

func printReport(c *appContext, r *report.Report, explain bool) {
	for _, p := range r.Install {
		c.ui.Info("install: " + p.Identity.String())
		if explain {
			for _, dep := range r.Requires[p.Identity] {
				c.ui.Info("    requires: " + dep.Identity.String())
			}
			for _, dep := range r.Conflicts[p.Identity] {
				c.ui.Info("    conflicts with: " + dep.Identity.String())
			}
		}
	}
	for _, p := range r.Remove {
		c.ui.Info("remove: " + p.Identity.String())
		if explain {
			for _, dep := range r.RequiredBy[p.Identity] {
				c.ui.Info("    required by: " + dep.Identity.String())
			}
		}
	}
}

func installSteps(cs policy.Changeset, c *appContext) []order.Step {
	var steps []order.Step
	for _, step := range order.Plan(cs, c.cache) {
		if step.Grouped != nil || step.Op == policy.Install || step.Op == policy.Reinstall {
			steps = append(steps, step)
		}
	}
	return steps
}

func printURLs(c *appContext, cs policy.Changeset) error {
	for _, step := range installSteps(cs, c) {
		if step.Grouped != nil {
			continue
		}
		if u := c.urlFor(step.Pkg); u != "" {
			c.ui.Info(u)
		}
	}
	return nil
}

func printMetalink(c *appContext, cs policy.Changeset) error {
	c.ui.Info(`<?xml version="1.0" encoding="utf-8"?>`)
	c.ui.Info(`<metalink version="3.0">`)
	for _, step := range installSteps(cs, c) {
		if step.Grouped != nil {
			continue
		}
		u := c.urlFor(step.Pkg)
		if u == "" {
			continue
		}
		c.ui.Info(fmt.Sprintf(`  <file name=%q><resources><url>%s</url></resources></file>`, step.Pkg.String(), u))
	}
	c.ui.Info(`</metalink>`)
	return nil
}

func downloadOnly(ctx context.Context, c *appContext, cs policy.Changeset) error {
	f := fetch.NewHTTPFetcher(filepath.Join(c.configDir, "downloads"))
	f.Reset()
	var urls []string
	for _, step := range installSteps(cs, c) {
		if step.Grouped != nil {
			continue
		}
		if u := c.urlFor(step.Pkg); u != "" {
			urls = append(urls, u)
			f.Enqueue(u, fetch.Options{})
		}
	}
	if len(urls) == 0 {
		c.ui.Info("nothing to download")
		return nil
	}
	if err := f.Run(ctx, c.ui); err != nil {
		return err
	}
	c.ui.Info(fmt.Sprintf("downloaded %d package(s) to %s", len(urls), f.Dir))
	return nil
}

func commitAll(ctx context.Context, c *appContext, f *txnFlags, cs policy.Changeset) error {
	if !f.yes && !c.ui.AskYesNo("Confirm changes?") {
		c.ui.Info("aborted")
		return nil
	}
	return commitChangeset(ctx, c, cs)
}

// commitStepped confirms and commits one step at a time.
func commitStepped(ctx context.Context, c *appContext, f *txnFlags, cs policy.Changeset) error {
	steps := order.Plan(cs, c.cache)
	backend := newFSBackend(c.cache, c.configDir)
	fetcher := fetch.NewHTTPFetcher(filepath.Join(c.configDir, "downloads"))

	for _, step := range steps {
		label := step.Op.String() + " " + step.Pkg.String()
		if step.Grouped != nil {
			label = fmt.Sprintf("GROUP %v", step.Grouped)
		}
		if !f.yes && !c.ui.AskYesNo("Commit "+label+"?") {
			c.ui.Info("skipped " + label)
			continue
		}
		if err := transaction.Commit(ctx, []order.Step{step}, backend, fetcher, c.urlFor, c.ui); err != nil {
			return err
		}
	}
	return nil
}

func commitChangeset(ctx context.Context, c *appContext, cs policy.Changeset) error {
	steps := order.Plan(cs, c.cache)
	backend := newFSBackend(c.cache, c.configDir)
	fetcher := fetch.NewHTTPFetcher(filepath.Join(c.configDir, "downloads"))
	return transaction.Commit(ctx, steps, backend, fetcher, c.urlFor, c.ui)
}

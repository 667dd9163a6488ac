package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/policy"
	"github.com/packagecore/pkgcore/version"
)

// fsBackend is the reference transaction.Backend: it persists the
// "system" channel's JSON index (the same shape fsloader reads) to
// record installed packages, and copies fetched payloads into a
// package store directory, so a pkgcore install/remove round-trip is
// observable across process invocations without a real OS package
// database.
type fsBackend struct {
	c         *cache.Cache
	indexPath string
	storeDir  string
}

func newFSBackend(c *cache.Cache, configDir string) *fsBackend {
	return &fsBackend{
		c:         c,
		indexPath: filepath.Join(configDir, "installed.json"),
		storeDir:  filepath.Join(configDir, "packages"),
	}
}

type indexDependOnDisk struct {
	Name     string  `json:"name"`
	Relation string  `json:"relation,omitempty"`
	Version  *string `json:"version,omitempty"`
}

type indexProvidesOnDisk struct {
	Name    string  `json:"name"`
	Version *string `json:"version,omitempty"`
}

type indexPackageOnDisk struct {
	Name      string                `json:"name"`
	Version   string                `json:"version"`
	Tag       string                `json:"tag,omitempty"`
	Installed bool                  `json:"installed"`
	Provides  []indexProvidesOnDisk `json:"provides,omitempty"`
	Requires  []indexDependOnDisk   `json:"requires,omitempty"`
	Conflicts []indexDependOnDisk   `json:"conflicts,omitempty"`
	Obsoletes []indexDependOnDisk   `json:"obsoletes,omitempty"`
}

type indexOnDisk struct {
	Packages []indexPackageOnDisk `json:"packages"`
}

// Apply installs, removes, or reinstalls id, updating the persisted
// installed index to match.
func (b *fsBackend) Apply(ctx context.Context, op policy.Op, id pkg.Identity, path string) error {
	idx, err := b.readIndex()
	if err != nil {
		return err
	}

	switch op {
	case policy.Install, policy.Reinstall:
		p, ok := b.c.GetPackage(id)
		if !ok {
			return perrors.NewCommitError(op.String(), id.String(), perrors.NewUsageError("package not found in cache"))
		}
		if path != "" {
			if err := b.storePayload(id, path); err != nil {
				return err
			}
		}
		idx = upsertPackage(idx, toOnDisk(p))
	case policy.Remove:
		idx = removePackage(idx, id)
	case policy.Keep:
		// Nothing to do.
	}

	return b.writeIndex(idx)
}

// ApplyGroup applies a cycle-fallback group by treating every member
// as an install-or-keep: the solver only groups packages that could
// not be ordered relative to each other, so each is committed using
// whatever op the cache already reflects as installed.
func (b *fsBackend) ApplyGroup(ctx context.Context, ids []pkg.Identity) error {
	idx, err := b.readIndex()
	if err != nil {
		return err
	}
	for _, id := range ids {
		p, ok := b.c.GetPackage(id)
		if !ok {
			continue
		}
		idx = upsertPackage(idx, toOnDisk(p))
	}
	return b.writeIndex(idx)
}

func (b *fsBackend) storePayload(id pkg.Identity, path string) error {
	if err := os.MkdirAll(b.storeDir, 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dest := filepath.Join(b.storeDir, id.String())
	return os.WriteFile(dest, data, 0o644)
}

func (b *fsBackend) readIndex() (indexOnDisk, error) {
	data, err := os.ReadFile(b.indexPath)
	if os.IsNotExist(err) {
		return indexOnDisk{}, nil
	}
	if err != nil {
		return indexOnDisk{}, err
	}
	var idx indexOnDisk
	if err := json.Unmarshal(data, &idx); err != nil {
		return indexOnDisk{}, err
	}
	return idx, nil
}

func (b *fsBackend) writeIndex(idx indexOnDisk) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.indexPath, data, 0o644)
}

func upsertPackage(idx indexOnDisk, p indexPackageOnDisk) indexOnDisk {
	for i, existing := range idx.Packages {
		if existing.Name == p.Name && existing.Version == p.Version && existing.Tag == p.Tag {
			idx.Packages[i] = p
			return idx
		}
	}
	idx.Packages = append(idx.Packages, p)
	return idx
}

func removePackage(idx indexOnDisk, id pkg.Identity) indexOnDisk {
	out := idx.Packages[:0]
	for _, p := range idx.Packages {
		if p.Name == id.Name && p.Version == id.Version.String() && p.Tag == id.Tag {
			continue
		}
		out = append(out, p)
	}
	idx.Packages = out
	return idx
}

func toOnDisk(p *pkg.Package) indexPackageOnDisk {
	out := indexPackageOnDisk{
		Name:      p.Name,
		Version:   p.Version.String(),
		Tag:       p.Tag,
		Installed: true,
	}
	for _, pr := range p.Provides {
		out.Provides = append(out.Provides, indexProvidesOnDisk{Name: pr.Name, Version: versionPtrString(pr.Version)})
	}
	out.Requires = toOnDiskDepends(p.Requires)
	out.Conflicts = toOnDiskDepends(p.Conflicts)
	out.Obsoletes = toOnDiskDepends(p.Obsoletes)
	return out
}

func toOnDiskDepends(deps []depend.Depend) []indexDependOnDisk {
	out := make([]indexDependOnDisk, 0, len(deps))
	for _, d := range deps {
		out = append(out, indexDependOnDisk{Name: d.Name, Relation: d.Relation.String(), Version: versionPtrString(d.Version)})
	}
	return out
}

func versionPtrString(v *version.Version) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

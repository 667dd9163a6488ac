// Package fsloader implements a reference pkg.Loader that reads a
// JSON-described local package index from disk, standing in for the
// rpm-md/arch/deb/system-database channel adapters that live outside
// the core. Parsed indexes are memoized in a bolt-backed cache keyed
// by (channel alias, content hash), so repeated Load calls against an
// unchanged file are idempotent without re-parsing.
package fsloader

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/packagecore/pkgcore/depend"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/version"
)

var cacheBucket = []byte("fsloader-index-cache")

// indexProvides/indexDepend/indexPackage/index are the on-disk JSON
// shapes. A version string is parsed with version.Parse; an absent
// "version" field yields a version-less Provides/Depend.
type indexProvides struct {
	Name    string  `json:"name"`
	Version *string `json:"version,omitempty"`
}

type indexDepend struct {
	Name     string  `json:"name"`
	Relation string  `json:"relation,omitempty"`
	Version  *string `json:"version,omitempty"`
}

type indexPackage struct {
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Tag       string          `json:"tag,omitempty"`
	Installed bool            `json:"installed,omitempty"`
	URL       string          `json:"url,omitempty"`
	Provides  []indexProvides `json:"provides,omitempty"`
	Requires  []indexDepend   `json:"requires,omitempty"`
	Conflicts []indexDepend   `json:"conflicts,omitempty"`
	Obsoletes []indexDepend   `json:"obsoletes,omitempty"`
}

type index struct {
	Packages []indexPackage `json:"packages"`
}

// Loader reads Path (a JSON index) into the cache under channel Alias.
// If DB is non-nil, parsed indexes are memoized there, keyed by Alias,
// so a second Load against an unchanged file skips JSON decoding.
type Loader struct {
	Path          string
	Alias         string
	InstalledFlag bool
	DB            *bolt.DB

	urls map[pkg.Identity]string
}

// New returns a Loader for the JSON index at path, under channel alias.
func New(path, alias string, installed bool) *Loader {
	return &Loader{Path: path, Alias: alias, InstalledFlag: installed}
}

// URLs returns the download URL recorded for each package this loader
// last populated, keyed by identity. Packages without a "url" field in
// the index are omitted.
func (l *Loader) URLs() map[pkg.Identity]string {
	out := make(map[pkg.Identity]string, len(l.urls))
	for id, u := range l.urls {
		out[id] = u
	}
	return out
}

func (l *Loader) Installed() bool { return l.InstalledFlag }
func (l *Loader) Channel() string { return l.Alias }

// Unload is a no-op: the cache detaches this loader from its packages
// itself. The URLs recorded by the last Load are kept.
func (l *Loader) Unload() {}

// Load decodes Path (using the bolt-backed cache when available and
// unchanged) and populates c with the resulting packages.
func (l *Loader) Load(c pkg.Populator) error {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return perrors.NewLoaderError(l.Alias, err)
	}

	idx, err := l.decodeWithCache(raw)
	if err != nil {
		return perrors.NewLoaderError(l.Alias, err)
	}

	if l.urls == nil {
		l.urls = map[pkg.Identity]string{}
	}
	for _, ip := range idx.Packages {
		p, err := l.toPackage(ip)
		if err != nil {
			return perrors.NewLoaderError(l.Alias, err)
		}
		if ip.URL != "" {
			l.urls[p.Identity] = ip.URL
		}
		c.AddPackage(p, l)
	}
	return nil
}

func (l *Loader) decodeWithCache(raw []byte) (index, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	if l.DB != nil {
		if idx, ok, err := l.readCache(hash); err != nil {
			return index{}, err
		} else if ok {
			return idx, nil
		}
	}

	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return index{}, errors.Wrapf(err, "parsing index %s", l.Path)
	}

	if l.DB != nil {
		l.writeCache(hash, idx)
	}
	return idx, nil
}

type cacheEntry struct {
	Hash  string `json:"hash"`
	Index index  `json:"index"`
}

func (l *Loader) readCache(hash string) (index, bool, error) {
	var entry cacheEntry
	var found bool
	err := l.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(l.Alias))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil // treat a corrupt cache entry as a miss, not a failure
		}
		found = entry.Hash == hash
		return nil
	})
	if err != nil {
		return index{}, false, errors.Wrap(err, "reading fsloader cache")
	}
	return entry.Index, found, nil
}

func (l *Loader) writeCache(hash string, idx index) {
	entry := cacheEntry{Hash: hash, Index: idx}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = l.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(cacheBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(l.Alias), data)
	})
}

func (l *Loader) toPackage(ip indexPackage) (*pkg.Package, error) {
	p := &pkg.Package{
		Identity: pkg.Identity{
			Name:    ip.Name,
			Version: version.Parse(ip.Version),
			Tag:     ip.Tag,
		},
		Installed: ip.Installed || l.InstalledFlag,
	}

	for _, ipr := range ip.Provides {
		p.Provides = append(p.Provides, depend.Provides{Name: ipr.Name, Version: parseVersionPtr(ipr.Version)})
	}

	var err error
	if p.Requires, err = toDepends(ip.Requires); err != nil {
		return nil, err
	}
	if p.Conflicts, err = toDepends(ip.Conflicts); err != nil {
		return nil, err
	}
	if p.Obsoletes, err = toDepends(ip.Obsoletes); err != nil {
		return nil, err
	}
	return p, nil
}

func toDepends(in []indexDepend) ([]depend.Depend, error) {
	out := make([]depend.Depend, 0, len(in))
	for _, id := range in {
		rel, err := parseRelation(id.Relation)
		if err != nil {
			return nil, err
		}
		out = append(out, depend.Depend{Name: id.Name, Relation: rel, Version: parseVersionPtr(id.Version)})
	}
	return out, nil
}

func parseVersionPtr(s *string) *version.Version {
	if s == nil {
		return nil
	}
	v := version.Parse(*s)
	return &v
}

func parseRelation(s string) (version.Relation, error) {
	switch s {
	case "", "none":
		return version.RelNone, nil
	case "=":
		return version.RelEQ, nil
	case "!=":
		return version.RelNE, nil
	case "<":
		return version.RelLT, nil
	case "<=":
		return version.RelLE, nil
	case ">":
		return version.RelGT, nil
	case ">=":
		return version.RelGE, nil
	default:
		return version.RelNone, errors.Errorf("unknown relation %q", s)
	}
}

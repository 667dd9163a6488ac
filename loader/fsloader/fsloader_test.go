package fsloader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/require"

	"github.com/packagecore/pkgcore/loader/fsloader"
	"github.com/packagecore/pkgcore/pkg"
)

type collector struct {
	added []*pkg.Package
}

func (c *collector) AddPackage(p *pkg.Package, owner pkg.Loader) {
	c.added = append(c.added, p)
}

const indexJSON = `{
  "packages": [
    {
      "name": "alpha",
      "version": "1.0-1",
      "url": "file:///srv/repo/alpha-1.0-1.pkg",
      "provides": [{"name": "alpha"}, {"name": "libalpha", "version": "1.0-1"}],
      "requires": [{"name": "beta", "relation": ">=", "version": "2.0"}]
    },
    {
      "name": "beta",
      "version": "2.0-1",
      "installed": true
    }
  ]
}`

func writeIndex(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "index.json")
	require.NoError(t, os.WriteFile(path, []byte(indexJSON), 0o644))
	return path
}

func TestLoadPopulatesPackages(t *testing.T) {
	dir := t.TempDir()
	path := writeIndex(t, dir)

	l := fsloader.New(path, "core", false)
	c := &collector{}
	require.NoError(t, l.Load(c))

	require.Len(t, c.added, 2)
	require.Equal(t, "alpha", c.added[0].Name)
	require.Len(t, c.added[0].Provides, 2)
	require.Len(t, c.added[0].Requires, 1)
	require.Equal(t, "beta", c.added[0].Requires[0].Name)
	require.True(t, c.added[1].Installed)

	urls := l.URLs()
	require.Equal(t, "file:///srv/repo/alpha-1.0-1.pkg", urls[c.added[0].Identity])
}

func TestLoadIsIdempotentAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := writeIndex(t, dir)

	l := fsloader.New(path, "core", false)
	c1 := &collector{}
	require.NoError(t, l.Load(c1))
	c2 := &collector{}
	require.NoError(t, l.Load(c2))

	require.Equal(t, len(c1.added), len(c2.added))
	require.Equal(t, c1.added[0].Identity, c2.added[0].Identity)
}

func TestLoadUsesBoltCacheOnSecondCall(t *testing.T) {
	dir := t.TempDir()
	path := writeIndex(t, dir)

	db, err := bolt.Open(filepath.Join(dir, "cache.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	l := fsloader.New(path, "core", false)
	l.DB = db

	c1 := &collector{}
	require.NoError(t, l.Load(c1))
	require.Len(t, c1.added, 2)

	// The file is unchanged, so its content hash matches the entry stored
	// under the loader's alias and the second Load is served from bolt.
	c2 := &collector{}
	require.NoError(t, l.Load(c2))
	require.Equal(t, len(c1.added), len(c2.added))
}

func TestLoadRejectsUnknownRelation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"packages":[{"name":"x","version":"1","requires":[{"name":"y","relation":"~="}]}]}`), 0o644))

	l := fsloader.New(path, "core", false)
	err := l.Load(&collector{})
	require.Error(t, err)
}

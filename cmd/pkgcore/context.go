package main

import (
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"github.com/sirupsen/logrus"

	"github.com/packagecore/pkgcore/cache"
	"github.com/packagecore/pkgcore/channel"
	"github.com/packagecore/pkgcore/iface"
	"github.com/packagecore/pkgcore/internal/plog"
	"github.com/packagecore/pkgcore/loader/fsloader"
	"github.com/packagecore/pkgcore/perrors"
	"github.com/packagecore/pkgcore/pkg"
	"github.com/packagecore/pkgcore/sysconf"
)

// appContext bundles the state every subcommand needs. There is no
// project root to discover: state lives under a single config
// directory (default ~/.pkgcore).
type appContext struct {
	configDir string
	store     *sysconf.Store
	cache     *cache.Cache
	urls      map[pkg.Identity]string
	ui        iface.Interface
	log       *plog.Logger
}

func newContext(configDir string, verbose bool, ui iface.Interface) (*appContext, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, perrors.NewUsageError("cannot create config directory " + configDir + ": " + err.Error())
	}

	level := logrus.WarnLevel
	if verbose {
		level = logrus.DebugLevel
	}
	log := plog.New(os.Stderr, level)

	store, err := sysconf.Load(filepath.Join(configDir, "pkgcore.toml"))
	if err != nil {
		return nil, err
	}

	c := &appContext{configDir: configDir, store: store, ui: ui, log: log}
	if err := c.reloadChannels(); err != nil {
		return nil, err
	}
	return c, nil
}

// reloadChannels rebuilds the cache from sysconf's channel records;
// every command starts from a freshly loaded cache.
func (c *appContext) reloadChannels() error {
	db, err := bolt.Open(filepath.Join(c.configDir, "fscache.db"), 0o600, nil)
	if err != nil {
		return perrors.NewLoaderError("fscache", err)
	}

	cc := cache.New(c.log)
	var loaders []*fsloader.Loader

	for alias, data := range c.store.Channels() {
		rec, err := channel.FromMap(alias, data)
		if err != nil {
			return err
		}
		path, _ := rec.Backend["index"].(string)
		if path == "" {
			c.ui.Warning("channel " + alias + " has no index path configured, skipping")
			continue
		}
		ld := fsloader.New(path, alias, rec.Type == "system")
		ld.DB = db
		cc.RegisterLoader(ld)
		loaders = append(loaders, ld)
	}

	if err := cc.Load(); err != nil {
		return err
	}

	urls := map[pkg.Identity]string{}
	for _, ld := range loaders {
		for id, u := range ld.URLs() {
			urls[id] = u
		}
	}

	c.cache = cc
	c.urls = urls
	return nil
}

func (c *appContext) urlFor(id pkg.Identity) string { return c.urls[id] }

func defaultConfigDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pkgcore")
	}
	return ".pkgcore"
}

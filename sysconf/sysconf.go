// Package sysconf implements the persisted, tree-shaped system
// configuration store: channels, package priorities, package locks,
// named flag sets, auto-update, the explain-changesets toggle and the
// default priority. It is TOML backed and keeps the parsed *toml.Tree
// around instead of mapping eagerly onto a fixed Go struct, so keys
// this package doesn't know about survive a read/modify/write cycle
// untouched.
package sysconf

import (
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	keyChannels          = "channels"
	keyPackagePriorities = "package-priorities"
	keyPackageLocks      = "package-locks"
	keyFlags             = "flags"
	keyAutoUpdate        = "auto-update"
	keyExplainChangesets = "explain-changesets"
	keyDefaultPriority   = "default-priority"
	lockTimeout          = 2 * time.Second
)

// Store is an in-memory view over one configuration file's TOML tree.
type Store struct {
	tree *toml.Tree
	path string
}

// Load reads path's TOML tree, or returns an empty Store if path does
// not yet exist (first run).
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		tree, terr := toml.TreeFromMap(map[string]interface{}{})
		if terr != nil {
			return nil, errors.Wrap(terr, "failed to create empty config tree")
		}
		return &Store{tree: tree, path: path}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s as TOML", path)
	}
	return &Store{tree: tree, path: path}, nil
}

// Save writes the store back to its path, holding an advisory file lock
// while it writes so two CLI invocations don't interleave writes. Load
// takes no lock, so two invocations that each load, modify and save can
// still overwrite each other's changes.
func (s *Store) Save() error {
	fl := flock.New(s.path + ".lock")
	deadline := time.Now().Add(lockTimeout)
	var locked bool
	for {
		var err error
		locked, err = fl.TryLock()
		if err != nil {
			return errors.Wrapf(err, "failed to lock config %s", s.path)
		}
		if locked || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !locked {
		return fmt.Errorf("config %s is locked by another process", s.path)
	}
	defer fl.Unlock()

	if err := os.WriteFile(s.path, []byte(s.tree.String()), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config %s", s.path)
	}
	return nil
}

// Channels returns alias -> channel record dict.
func (s *Store) Channels() map[string]map[string]interface{} {
	out := map[string]map[string]interface{}{}
	sub, ok := s.tree.Get(keyChannels).(*toml.Tree)
	if !ok {
		return out
	}
	for _, alias := range sub.Keys() {
		ct, ok := sub.GetPath([]string{alias}).(*toml.Tree)
		if !ok {
			continue
		}
		out[alias] = ct.ToMap()
	}
	return out
}

// SetChannel stores alias's channel record, merging onto (rather than
// replacing) the channels tree so other aliases are left untouched.
// Paths are addressed as explicit key slices so an alias containing a
// dot is one key, not a deeper path.
func (s *Store) SetChannel(alias string, data map[string]interface{}) error {
	ct, err := toml.TreeFromMap(data)
	if err != nil {
		return errors.Wrapf(err, "failed to build channel record for %s", alias)
	}
	s.tree.SetPath([]string{keyChannels, alias}, ct)
	return nil
}

// RemoveChannel deletes alias's channel record, if present.
func (s *Store) RemoveChannel(alias string) {
	_ = s.tree.DeletePath([]string{keyChannels, alias})
}

// PackagePriorities reads the name -> alias-or-"" -> integer tree.
func (s *Store) PackagePriorities() map[string]map[string]int {
	out := map[string]map[string]int{}
	sub, ok := s.tree.Get(keyPackagePriorities).(*toml.Tree)
	if !ok {
		return out
	}
	for _, name := range sub.Keys() {
		nt, ok := sub.GetPath([]string{name}).(*toml.Tree)
		if !ok {
			continue
		}
		byAlias := map[string]int{}
		for _, alias := range nt.Keys() {
			if n, ok := toInt(nt.GetPath([]string{alias})); ok {
				byAlias[alias] = n
			}
		}
		out[name] = byAlias
	}
	return out
}

// SetPackagePriority sets the priority for name under alias (alias may
// be "" for the channel-agnostic default).
func (s *Store) SetPackagePriority(name, alias string, priority int) {
	s.tree.SetPath([]string{keyPackagePriorities, name, alias}, int64(priority))
}

// PackageLocks returns the locked package identity strings.
func (s *Store) PackageLocks() []string {
	return s.stringList([]string{keyPackageLocks})
}

// SetPackageLocks replaces the package-locks list.
func (s *Store) SetPackageLocks(ids []string) {
	s.tree.Set(keyPackageLocks, toAnySlice(ids))
}

// Flags returns the package identities in the named flag set.
func (s *Store) Flags(name string) []string {
	return s.stringList([]string{keyFlags, name})
}

// SetFlag replaces the named flag set's membership.
func (s *Store) SetFlag(name string, ids []string) {
	s.tree.SetPath([]string{keyFlags, name}, toAnySlice(ids))
}

func (s *Store) stringList(keys []string) []string {
	v := s.tree.GetPath(keys)
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if str, ok := e.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// AutoUpdate reports the auto-update flag, default false.
func (s *Store) AutoUpdate() bool { return s.boolOr(keyAutoUpdate, false) }

// SetAutoUpdate sets the auto-update flag.
func (s *Store) SetAutoUpdate(v bool) { s.tree.Set(keyAutoUpdate, v) }

// ExplainChangesets reports whether --explain-style output is on by
// default, default false.
func (s *Store) ExplainChangesets() bool { return s.boolOr(keyExplainChangesets, false) }

// SetExplainChangesets sets the explain-changesets flag.
func (s *Store) SetExplainChangesets(v bool) { s.tree.Set(keyExplainChangesets, v) }

func (s *Store) boolOr(key string, def bool) bool {
	if b, ok := s.tree.Get(key).(bool); ok {
		return b
	}
	return def
}

// DefaultPriority returns the default-priority integer, default 0.
func (s *Store) DefaultPriority() int {
	if n, ok := toInt(s.tree.Get(keyDefaultPriority)); ok {
		return n
	}
	return 0
}

// SetDefaultPriority sets the default-priority integer.
func (s *Store) SetDefaultPriority(n int) { s.tree.Set(keyDefaultPriority, int64(n)) }

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

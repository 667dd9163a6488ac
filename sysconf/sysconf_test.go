package sysconf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packagecore/pkgcore/sysconf"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := sysconf.Load(filepath.Join(dir, "pkgcore.toml"))
	require.NoError(t, err)
	require.False(t, s.AutoUpdate())
	require.Equal(t, 0, s.DefaultPriority())
}

func TestSetChannelAndPackageLocksRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkgcore.toml")
	s, err := sysconf.Load(path)
	require.NoError(t, err)

	require.NoError(t, s.SetChannel("core", map[string]interface{}{
		"type":    "rpm-md",
		"name":    "Core",
		"baseurl": "https://example.test/core",
	}))
	s.SetPackageLocks([]string{"alpha-1.0"})
	s.SetDefaultPriority(50)
	require.NoError(t, s.Save())

	reloaded, err := sysconf.Load(path)
	require.NoError(t, err)

	channels := reloaded.Channels()
	require.Contains(t, channels, "core")
	require.Equal(t, "rpm-md", channels["core"]["type"])
	require.Equal(t, []string{"alpha-1.0"}, reloaded.PackageLocks())
	require.Equal(t, 50, reloaded.DefaultPriority())
}

func TestChannelAliasWithDotIsOneKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkgcore.toml")
	s, err := sysconf.Load(path)
	require.NoError(t, err)

	require.NoError(t, s.SetChannel("core.x86", map[string]interface{}{
		"type": "system",
	}))
	require.NoError(t, s.Save())

	reloaded, err := sysconf.Load(path)
	require.NoError(t, err)
	channels := reloaded.Channels()
	require.Contains(t, channels, "core.x86")

	reloaded.RemoveChannel("core.x86")
	require.NotContains(t, reloaded.Channels(), "core.x86")
}

func TestUnknownKeysSurviveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkgcore.toml")
	raw := "future-feature = \"enabled\"\n\n[channels.core]\ntype = \"rpm-md\"\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := sysconf.Load(path)
	require.NoError(t, err)
	s.SetAutoUpdate(true)
	require.NoError(t, s.Save())

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(out), "future-feature")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quarry-depot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ParsesDepotRootAndRemotes(t *testing.T) {
	path := writeConfig(t, `
depot_root: /var/lib/quarry
project_name: news
default_remote: origin
remotes:
  origin:
    kind: ssh
    addr: crawler.internal:22
    user: quarry
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/quarry", cfg.DepotRoot)
	require.Equal(t, "news", cfg.ProjectName)
	require.Equal(t, "origin", cfg.DefaultRemote)
	require.Equal(t, "ssh", cfg.Remotes["origin"].Kind)
	require.Equal(t, "crawler.internal:22", cfg.Remotes["origin"].Addr)
}

func TestLoad_ExpandsEnvVarsBeforeParsing(t *testing.T) {
	t.Setenv("DEPOT_ROOT_OVERRIDE", "/mnt/depot")
	path := writeConfig(t, `depot_root: ${DEPOT_ROOT_OVERRIDE}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/mnt/depot", cfg.DepotRoot)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "not_a_real_field: 1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv_OverridesDepotRootAndRemote(t *testing.T) {
	t.Setenv(EnvDepotRoot, "/from/env")
	t.Setenv(EnvDefaultRemote, "backup")

	cfg := &Config{DepotRoot: "/from/file", DefaultRemote: "origin", Remotes: map[string]RemoteConfig{
		"backup": {Kind: "local", Path: "/srv/backup"},
	}}
	cfg.ApplyEnv()

	require.Equal(t, "/from/env", cfg.DepotRoot)
	require.Equal(t, "backup", cfg.DefaultRemote)
}

func TestApplyEnv_OverridesRemoteAuthForDefaultRemote(t *testing.T) {
	t.Setenv(EnvRemoteAuth, "/run/secrets/quarry-key")

	cfg := &Config{DefaultRemote: "origin", Remotes: map[string]RemoteConfig{
		"origin": {Kind: "ssh", Addr: "host:22"},
	}}
	cfg.ApplyEnv()

	require.Equal(t, "/run/secrets/quarry-key", cfg.Remotes["origin"].Auth)
}

func TestProxyPools_SortedByName(t *testing.T) {
	cfg := &Config{Proxies: map[string]ProxyPoolConfig{
		"zeta":  {},
		"alpha": {},
	}}
	pools := cfg.ProxyPools()
	require.Len(t, pools, 2)
	require.Equal(t, "alpha", pools[0].Name)
	require.Equal(t, "zeta", pools[1].Name)
}

func TestProxyPools_EmptyReturnsNil(t *testing.T) {
	cfg := &Config{}
	require.Nil(t, cfg.ProxyPools())
}

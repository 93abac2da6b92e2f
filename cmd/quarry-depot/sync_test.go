package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/config"
	"github.com/justapithecus/quarry-depot/remote"
)

func newSyncTestContext(t *testing.T, values map[string]string) *cli.Context {
	t.Helper()
	app := &cli.App{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name := range values {
		fs.String(name, "", "")
	}
	for name, val := range values {
		require.NoError(t, fs.Set(name, val))
	}
	return cli.NewContext(app, fs, nil)
}

func TestParsePullMode_Default(t *testing.T) {
	c := newSyncTestContext(t, map[string]string{"mode": "default"})
	mode, err := parsePullMode(c)
	require.NoError(t, err)
	require.Equal(t, remote.ModeDefault, mode.Kind)
}

func TestParsePullMode_Complete(t *testing.T) {
	c := newSyncTestContext(t, map[string]string{"mode": "complete"})
	mode, err := parsePullMode(c)
	require.NoError(t, err)
	require.Equal(t, remote.ModeComplete, mode.Kind)
}

func TestParsePullMode_PostStatusRequiresStatusFlag(t *testing.T) {
	c := newSyncTestContext(t, map[string]string{"mode": "post-status"})
	_, err := parsePullMode(c)
	require.Error(t, err)
}

func TestParsePullMode_PostStatusWithStatus(t *testing.T) {
	c := newSyncTestContext(t, map[string]string{"mode": "post-status", "status": "s1"})
	mode, err := parsePullMode(c)
	require.NoError(t, err)
	require.Equal(t, remote.ModePostStatus, mode.Kind)
	require.Equal(t, "s1", mode.StatusID)
}

func TestParsePullMode_Unknown(t *testing.T) {
	c := newSyncTestContext(t, map[string]string{"mode": "bogus"})
	_, err := parsePullMode(c)
	require.Error(t, err)
}

func TestSSHClientConfig_PasswordFallback(t *testing.T) {
	rc := config.RemoteConfig{User: "alice", Auth: "not-a-real-file-on-disk"}
	cfg, err := sshClientConfig(rc)
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.User)
	require.Len(t, cfg.Auth, 1)
}

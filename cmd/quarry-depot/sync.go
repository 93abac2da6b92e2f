package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/ssh"

	"github.com/justapithecus/quarry-depot/config"
	"github.com/justapithecus/quarry-depot/remote"
)

// RemoteFlag names the configured remote a sync subcommand targets.
var RemoteFlag = &cli.StringFlag{
	Name:  "remote",
	Usage: "Remote name from config.remotes (defaults to config.default_remote)",
}

// SyncCommand groups push/pull against a configured remote (spec §4.H).
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Push or pull a depot against a configured remote",
		Subcommands: []*cli.Command{
			syncPushCommand(),
			syncPullCommand(),
		},
	}
}

func syncPushCommand() *cli.Command {
	return &cli.Command{
		Name:      "push",
		Usage:     "Push runs/, statuses/, and object-store/ to the remote",
		UsageText: "quarry-depot sync push --config quarry-depot.yaml --remote origin",
		Flags:     append(ReadOnlyFlags(), RemoteFlag),
		Action:    syncPushAction,
	}
}

func syncPullCommand() *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "Pull runs/statuses (and optionally objects) from the remote",
		UsageText: "quarry-depot sync pull --config quarry-depot.yaml --remote origin --mode default",
		Flags: append(ReadOnlyFlags(), RemoteFlag,
			&cli.StringFlag{Name: "mode", Value: "default", Usage: "default, complete, or post-status"},
			&cli.StringFlag{Name: "status", Usage: "Target status id, required when --mode=post-status"},
		),
		Action: syncPullAction,
	}
}

// remoteTransport resolves --remote (or config.DefaultRemote) to a
// config.RemoteConfig and dials the matching remote.Transport.
func remoteTransport(c *cli.Context, cfg *config.Config) (remote.Transport, error) {
	name := c.String("remote")
	if name == "" {
		name = cfg.DefaultRemote
	}
	if name == "" {
		return nil, cli.Exit("sync: no --remote given and config.default_remote is unset", 1)
	}
	rc, ok := cfg.Remotes[name]
	if !ok {
		return nil, cli.Exit(fmt.Sprintf("sync: remote %q not found in config", name), 1)
	}

	switch rc.Kind {
	case "local":
		return remote.NewLocalTransport(rc.Path), nil
	case "ssh":
		sshCfg, err := sshClientConfig(rc)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("sync: remote %q: %v", name, err), 1)
		}
		t, err := remote.Dial(rc.Addr, sshCfg, rc.Path)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("sync: remote %q: %v", name, err), 1)
		}
		return t, nil
	default:
		return nil, cli.Exit(fmt.Sprintf("sync: remote %q has unknown kind %q (want ssh or local)", name, rc.Kind), 1)
	}
}

// sshClientConfig builds an ssh.ClientConfig from a RemoteConfig's User/
// Auth fields: Auth naming an existing file is read as a private key,
// anything else is treated as a password. Host-key verification is not
// configurable from RemoteConfig, so this intentionally accepts any host
// key — acceptable for a CLI talking to operator-chosen hosts, not for an
// adversarial network.
func sshClientConfig(rc config.RemoteConfig) (*ssh.ClientConfig, error) {
	var authMethod ssh.AuthMethod
	if data, err := os.ReadFile(rc.Auth); err == nil {
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", rc.Auth, err)
		}
		authMethod = ssh.PublicKeys(signer)
	} else {
		authMethod = ssh.Password(rc.Auth)
	}

	return &ssh.ClientConfig{
		User:            rc.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}

func syncPushAction(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	t, err := remoteTransport(c, cfg)
	if err != nil {
		return err
	}
	if closer, ok := t.(*remote.SSHTransport); ok {
		defer closer.Close()
	}

	root := filepath.Join(cfg.DepotRoot, cfg.ProjectName)
	if err := remote.Push(ctx, root, t); err != nil {
		return cli.Exit(fmt.Sprintf("sync push: %v", err), 1)
	}
	fmt.Fprintln(c.App.Writer, "push complete")
	return nil
}

func syncPullAction(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	t, err := remoteTransport(c, cfg)
	if err != nil {
		return err
	}
	if closer, ok := t.(*remote.SSHTransport); ok {
		defer closer.Close()
	}

	mode, err := parsePullMode(c)
	if err != nil {
		return err
	}

	root := filepath.Join(cfg.DepotRoot, cfg.ProjectName)
	if err := remote.Pull(ctx, root, t, mode); err != nil {
		return cli.Exit(fmt.Sprintf("sync pull: %v", err), 1)
	}
	fmt.Fprintln(c.App.Writer, "pull complete")
	return nil
}

func parsePullMode(c *cli.Context) (remote.Mode, error) {
	switch c.String("mode") {
	case "default", "":
		return remote.Mode{Kind: remote.ModeDefault}, nil
	case "complete":
		return remote.Mode{Kind: remote.ModeComplete}, nil
	case "post-status":
		statusID := c.String("status")
		if statusID == "" {
			return remote.Mode{}, cli.Exit("sync pull: --status is required when --mode=post-status", 1)
		}
		return remote.Mode{Kind: remote.ModePostStatus, StatusID: statusID}, nil
	default:
		return remote.Mode{}, cli.Exit(fmt.Sprintf("sync pull: unknown mode %q", c.String("mode")), 1)
	}
}

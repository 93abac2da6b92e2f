package remote

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHTransport runs commands over an SSH session and moves files over
// SFTP, grounded on perkeep's use of golang.org/x/crypto/ssh +
// github.com/pkg/sftp for remote-filesystem push/pull (spec §6 names an
// "SSH-like transport" as the remote collaborator's expected shape).
type SSHTransport struct {
	client *ssh.Client
	sftp   *sftp.Client
	cwd    string
}

// Dial opens an SSH connection to addr and an SFTP subsystem over it,
// rooted at cwd.
func Dial(addr string, config *ssh.ClientConfig, cwd string) (*SSHTransport, error) {
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("sshtransport: dial: %w", err)
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("sshtransport: sftp: %w", err)
	}
	return &SSHTransport{client: client, sftp: sftpClient, cwd: cwd}, nil
}

var _ Transport = (*SSHTransport)(nil)

// Close releases the SFTP and SSH connections.
func (t *SSHTransport) Close() error {
	sftpErr := t.sftp.Close()
	sshErr := t.client.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

// Run executes cmd in t.cwd over a fresh SSH session and returns its
// stdout; stderr is not captured.
func (t *SSHTransport) Run(ctx context.Context, cmd string) (string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("sshtransport: session: %w", err)
	}
	defer session.Close()

	full := fmt.Sprintf("cd %s && %s", shellQuote(t.cwd), cmd)

	var out bytes.Buffer
	session.Stdout = &out
	if err := session.Run(full); err != nil {
		return "", fmt.Errorf("sshtransport: run %q: %w", cmd, err)
	}
	return out.String(), nil
}

// Put copies localPath to remotePath (relative to t.cwd) via SFTP.
func (t *SSHTransport) Put(ctx context.Context, localPath, remotePath string) error {
	full := path.Join(t.cwd, remotePath)
	if err := t.sftp.MkdirAll(path.Dir(full)); err != nil {
		return fmt.Errorf("sshtransport: mkdir: %w", err)
	}
	dst, err := t.sftp.Create(full)
	if err != nil {
		return fmt.Errorf("sshtransport: create %s: %w", full, err)
	}
	defer dst.Close()

	src, err := openLocal(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = dst.ReadFrom(src)
	return err
}

// Get copies remotePath (relative to t.cwd) to localPath via SFTP.
func (t *SSHTransport) Get(ctx context.Context, remotePath, localPath string) error {
	full := path.Join(t.cwd, remotePath)
	src, err := t.sftp.Open(full)
	if err != nil {
		return fmt.Errorf("sshtransport: open %s: %w", full, err)
	}
	defer src.Close()

	dst, err := createLocal(localPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = src.WriteTo(dst)
	return err
}

// Cd returns an SSHTransport sharing this one's connection, rooted deeper.
func (t *SSHTransport) Cd(p string) Transport {
	return &SSHTransport{client: t.client, sftp: t.sftp, cwd: path.Join(t.cwd, p)}
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

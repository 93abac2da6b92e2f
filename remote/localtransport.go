package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalTransport is the default Transport: plain os/io copies against a
// second directory on the same machine, matching the spec's synchronous-
// default philosophy (§4.F) applied to remote sync. It is what Push/Pull
// are tested against.
type LocalTransport struct {
	root string
}

// NewLocalTransport returns a Transport rooted at dir.
func NewLocalTransport(dir string) *LocalTransport {
	return &LocalTransport{root: dir}
}

var _ Transport = (*LocalTransport)(nil)

// Run supports exactly the two command forms Push/Pull issue, interpreting
// them as filesystem operations rather than spawning a shell — the local
// analogue of what sshtransport sends over a real session.
func (t *LocalTransport) Run(ctx context.Context, cmd string) (string, error) {
	switch {
	case cmd == "find . -type f":
		return t.findFiles()
	case strings.HasPrefix(cmd, "mkdir -p "):
		rel := strings.TrimPrefix(cmd, "mkdir -p ")
		return "", os.MkdirAll(filepath.Join(t.root, rel), 0o755)
	default:
		return "", fmt.Errorf("localtransport: unsupported command %q", cmd)
	}
}

func (t *LocalTransport) findFiles() (string, error) {
	var paths []string
	err := filepath.Walk(t.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, "./"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("localtransport: walk: %w", err)
	}
	sort.Strings(paths)
	return strings.Join(paths, "\n"), nil
}

// Put copies localPath to remotePath (relative to root), creating parent
// directories as needed.
func (t *LocalTransport) Put(ctx context.Context, localPath, remotePath string) error {
	dst := filepath.Join(t.root, remotePath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("localtransport: mkdir: %w", err)
	}
	return copyFile(localPath, dst)
}

// Get copies remotePath (relative to root) to localPath, creating parent
// directories as needed.
func (t *LocalTransport) Get(ctx context.Context, remotePath, localPath string) error {
	src := filepath.Join(t.root, remotePath)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("localtransport: mkdir: %w", err)
	}
	return copyFile(src, localPath)
}

// Cd returns a LocalTransport rooted at the given path under this one.
func (t *LocalTransport) Cd(path string) Transport {
	return &LocalTransport{root: filepath.Join(t.root, path)}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("localtransport: open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("localtransport: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("localtransport: copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localtransport: close temp: %w", err)
	}
	return os.Rename(tmpPath, dst)
}

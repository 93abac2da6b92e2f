package remote

import (
	"fmt"
	"os"
	"path/filepath"
)

// openLocal opens a local file for reading, used by transports whose
// remote side speaks a binary protocol (SFTP) rather than Run-able shell.
func openLocal(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("remote: open %s: %w", path, err)
	}
	return f, nil
}

// createLocal creates a local file for writing, making parent directories
// as needed.
func createLocal(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("remote: mkdir %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("remote: create %s: %w", path, err)
	}
	return f, nil
}

package lineage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// CacheEntry is one status's cached lineage facts, avoiding a parent-chain
// walk on every Leaf/FullRunTree call.
type CacheEntry struct {
	Parent         string   `msgpack:"parent"` // empty means root
	IntegratedRuns []string `msgpack:"integrated_runs"`
	TreeSize       int      `msgpack:"tree_size"`
}

// Cache is an optional msgpack-encoded index keyed by status id, stored as
// a single side file ("status-cache", spec §6). msgpack is used instead of
// stdlib encoding/gob so the cache file stays byte-compatible with
// remote's batched envelope format, which also speaks msgpack (both
// depend on github.com/vmihailenco/msgpack/v5, a teacher dependency).
type Cache map[string]CacheEntry

// LoadCache reads the status-cache file at path. A missing file is not an
// error: it returns an empty Cache, since the cache's absence must never
// change semantics (spec §4.D invariant) — callers fall back to List/Load.
func LoadCache(path string) (Cache, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Cache{}, nil
		}
		return nil, fmt.Errorf("lineage: read cache %s: %w", path, err)
	}
	var c Cache
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("lineage: unmarshal cache: %w", err)
	}
	return c, nil
}

// SaveCache writes c to path via the standard tempfile-then-rename
// pattern used throughout this module for durable writes.
func SaveCache(path string, c Cache) error {
	b, err := msgpack.Marshal(c)
	if err != nil {
		return fmt.Errorf("lineage: marshal cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-cache-*")
	if err != nil {
		return fmt.Errorf("lineage: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("lineage: write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("lineage: close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Put inserts or replaces an entry for statusID, deriving it from the
// status's own fields and its parent's cached tree size (0 if the parent
// isn't itself cached yet — callers should populate bottom-up from root).
func (c Cache) Put(statusID string, parent string, integratedRuns []string) {
	parentSize := 0
	if parent != "" {
		parentSize = c[parent].TreeSize
	}
	c[statusID] = CacheEntry{
		Parent:         parent,
		IntegratedRuns: integratedRuns,
		TreeSize:       parentSize + len(integratedRuns),
	}
}

package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/quarry-depot/lineage"
)

// pushSubdirs are the depot subtrees Push synchronizes (spec §4.H: "for
// every local subdirectory of runs/, statuses/, object-store/...").
var pushSubdirs = []string{"runs", "statuses", "object-store"}

const statusCacheFile = "status-cache"

// Push is the one-shot, idempotent push algorithm from spec §4.H: create
// missing remote directories, put missing remote files, and merge+push
// status-cache. Push never overwrites — conflicting state surfaces as
// name collisions on content-addressed statuses/objects, not silent
// clobbers.
func Push(ctx context.Context, localRoot string, t Transport) error {
	remoteFiles, err := listRemoteFiles(ctx, t)
	if err != nil {
		return err
	}

	for _, subdir := range pushSubdirs {
		if err := pushSubdir(ctx, t, localRoot, subdir, remoteFiles); err != nil {
			return err
		}
	}

	return pushStatusCache(ctx, t, localRoot)
}

func listRemoteFiles(ctx context.Context, t Transport) (map[string]bool, error) {
	out, err := t.Run(ctx, "find . -type f")
	if err != nil {
		return nil, fmt.Errorf("remote: enumerate remote files: %w", err)
	}
	set := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		set[normalizeRemotePath(line)] = true
	}
	return set, nil
}

func normalizeRemotePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return filepath.ToSlash(p)
}

func pushSubdir(ctx context.Context, t Transport, localRoot, subdir string, remoteFiles map[string]bool) error {
	base := filepath.Join(localRoot, subdir)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil
	}

	createdDirs := make(map[string]bool)

	return filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if remoteFiles[rel] || createdDirs[rel] {
				return nil
			}
			if _, err := t.Run(ctx, "mkdir -p "+rel); err != nil {
				return fmt.Errorf("remote: mkdir -p %s: %w", rel, err)
			}
			createdDirs[rel] = true
			return nil
		}

		if remoteFiles[rel] {
			return nil
		}
		if err := t.Put(ctx, path, rel); err != nil {
			return fmt.Errorf("remote: put %s: %w", rel, err)
		}
		return nil
	})
}

// pushStatusCache merges the local status-cache with whatever the remote
// already has and pushes the merged result (spec §4.H step 4).
func pushStatusCache(ctx context.Context, t Transport, localRoot string) error {
	localPath := filepath.Join(localRoot, statusCacheFile)
	localCache, err := lineage.LoadCache(localPath)
	if err != nil {
		return fmt.Errorf("remote: load local status-cache: %w", err)
	}

	remoteCache, err := fetchRemoteCache(ctx, t)
	if err != nil {
		return err
	}

	merged := mergeCaches(localCache, remoteCache)
	if len(merged) == 0 {
		return nil
	}

	tmp, err := os.CreateTemp("", "status-cache-*")
	if err != nil {
		return fmt.Errorf("remote: create temp status-cache: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := lineage.SaveCache(tmpPath, merged); err != nil {
		return fmt.Errorf("remote: encode merged status-cache: %w", err)
	}
	return t.Put(ctx, tmpPath, statusCacheFile)
}

func fetchRemoteCache(ctx context.Context, t Transport) (lineage.Cache, error) {
	tmp, err := os.CreateTemp("", "remote-status-cache-*")
	if err != nil {
		return nil, fmt.Errorf("remote: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := t.Get(ctx, statusCacheFile, tmpPath); err != nil {
		// No remote cache yet is not an error: push proceeds with local-only.
		return lineage.Cache{}, nil
	}
	return lineage.LoadCache(tmpPath)
}

// mergeCaches unions two caches, preferring the entry with the larger
// TreeSize on key collisions (both sides compute TreeSize deterministically
// from the same lineage, so a larger value means more complete ancestry).
func mergeCaches(a, b lineage.Cache) lineage.Cache {
	merged := make(lineage.Cache, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		if existing, ok := merged[k]; !ok || v.TreeSize > existing.TreeSize {
			merged[k] = v
		}
	}
	return merged
}

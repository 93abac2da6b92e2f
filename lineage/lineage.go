// Package lineage manages the Status DAG: status snapshots, full-run-tree
// computation, and leaf selection (spec §3, §4.D, §6).
package lineage

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/quarry-depot/iox"
	"github.com/justapithecus/quarry-depot/types"
)

const (
	contextFile  = "context.yaml"
	snapshotFile = "db.sqlite.zip"
	snapshotName = "db.sqlite"
)

// ErrNoStatuses is returned by Leaf when the status set is empty (no root
// status has ever been saved).
var ErrNoStatuses = errors.New("lineage: no statuses found")

// ComputeStatusID hashes parent plus the sorted-joined integrated run ids,
// matching spec §3: status_id = hash("<parent_id>::<sorted-joined run_ids>").
func ComputeStatusID(parent *string, integratedRuns []string) string {
	parentStr := ""
	if parent != nil {
		parentStr = *parent
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s::%s", parentStr, types.SortedJoinedRunIDs(integratedRuns))
	return hex.EncodeToString(h.Sum(nil))
}

// Save writes a new status directory under root: context.yaml plus a
// zipped snapshot of the queue database at sqlitePath. Pass an empty
// sqlitePath to skip snapshotting (e.g. the root status, whose queue is
// empty).
func Save(root string, parent *string, integratedRuns []string, sqlitePath string) (types.Status, error) {
	statusID := ComputeStatusID(parent, integratedRuns)
	dir := filepath.Join(root, statusID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Status{}, fmt.Errorf("lineage: mkdir %s: %w", dir, err)
	}

	ctx := types.StatusContext{Parent: parent, IntegratedRuns: integratedRuns}
	if err := writeContextYAML(filepath.Join(dir, contextFile), ctx); err != nil {
		return types.Status{}, err
	}

	if sqlitePath != "" {
		if err := writeSnapshotZip(filepath.Join(dir, snapshotFile), sqlitePath); err != nil {
			return types.Status{}, err
		}
	}

	return types.Status{StatusID: statusID, Context: ctx}, nil
}

func writeContextYAML(path string, ctx types.StatusContext) error {
	b, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("lineage: marshal context: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-context-*")
	if err != nil {
		return fmt.Errorf("lineage: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("lineage: write context: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("lineage: close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// writeSnapshotZip wraps the file at sqlitePath in a single-entry zip,
// reusing objstore's single-member convention without being content-
// addressed (status ids are already content-derived at a coarser grain).
func writeSnapshotZip(zipPath, sqlitePath string) error {
	src, err := os.Open(sqlitePath)
	if err != nil {
		return fmt.Errorf("lineage: open snapshot source %s: %w", sqlitePath, err)
	}
	defer iox.DiscardClose(src)

	tmp, err := os.CreateTemp(filepath.Dir(zipPath), ".tmp-snapshot-*")
	if err != nil {
		return fmt.Errorf("lineage: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: snapshotName, Method: zip.Deflate})
	if err != nil {
		tmp.Close()
		return fmt.Errorf("lineage: create zip entry: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		tmp.Close()
		return fmt.Errorf("lineage: copy snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("lineage: close zip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("lineage: close temp file: %w", err)
	}
	return os.Rename(tmpPath, zipPath)
}

// ExtractSnapshot writes the status's zipped queue database out to destPath,
// for callers (e.g. begin_run) that need to open it as a live sqlite file.
func ExtractSnapshot(root, statusID, destPath string) error {
	zipPath := filepath.Join(root, statusID, snapshotFile)
	f, err := os.Open(zipPath)
	if err != nil {
		return fmt.Errorf("lineage: open %s: %w", zipPath, err)
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("lineage: stat %s: %w", zipPath, err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("lineage: open zip %s: %w", zipPath, err)
	}
	for _, zf := range zr.File {
		if zf.Name != snapshotName {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("lineage: open entry: %w", err)
		}
		defer iox.DiscardClose(rc)

		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("lineage: create %s: %w", destPath, err)
		}
		defer iox.DiscardClose(out)

		if _, err := io.Copy(out, rc); err != nil {
			return fmt.Errorf("lineage: extract snapshot: %w", err)
		}
		return nil
	}
	return fmt.Errorf("lineage: %s missing %q entry", zipPath, snapshotName)
}

// Load reads one status's context.yaml from <root>/<statusID>.
func Load(root, statusID string) (types.Status, error) {
	b, err := os.ReadFile(filepath.Join(root, statusID, contextFile))
	if err != nil {
		return types.Status{}, fmt.Errorf("lineage: read context: %w", err)
	}
	var ctx types.StatusContext
	if err := yaml.Unmarshal(b, &ctx); err != nil {
		return types.Status{}, fmt.Errorf("lineage: unmarshal context: %w", err)
	}
	return types.Status{StatusID: statusID, Context: ctx}, nil
}

// List scans root for every saved status. Directory scan is always a
// correct fallback (spec §4.D invariant: cache absence never changes
// semantics), it is just slower than consulting a Cache.
func List(root string) ([]types.Status, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lineage: read dir %s: %w", root, err)
	}

	statuses := make([]types.Status, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		st, err := Load(root, entry.Name())
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// FullRunTree returns the transitive union of integrated_runs along parent
// pointers for the given status (spec §3 "full run tree" invariant).
func FullRunTree(root string, status types.Status) (map[string]struct{}, error) {
	tree := make(map[string]struct{})
	current := status
	for {
		for _, runID := range current.Context.IntegratedRuns {
			tree[runID] = struct{}{}
		}
		if current.Context.Parent == nil {
			return tree, nil
		}
		parent, err := Load(root, *current.Context.Parent)
		if err != nil {
			return nil, fmt.Errorf("lineage: walk parent %s: %w", *current.Context.Parent, err)
		}
		current = parent
	}
}

// Leaf returns the status with no children and the largest full run tree,
// ties broken by lexicographically smallest status id (spec §3 "leaf
// selection", deterministic by design).
func Leaf(root string) (types.Status, error) {
	statuses, err := List(root)
	if err != nil {
		return types.Status{}, err
	}
	if len(statuses) == 0 {
		return types.Status{}, ErrNoStatuses
	}

	hasChild := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		if s.Context.Parent != nil {
			hasChild[*s.Context.Parent] = true
		}
	}

	type candidate struct {
		status   types.Status
		treeSize int
	}
	var leaves []candidate
	for _, s := range statuses {
		if hasChild[s.StatusID] {
			continue
		}
		tree, err := FullRunTree(root, s)
		if err != nil {
			return types.Status{}, err
		}
		leaves = append(leaves, candidate{status: s, treeSize: len(tree)})
	}
	if len(leaves) == 0 {
		return types.Status{}, ErrNoStatuses
	}

	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].treeSize != leaves[j].treeSize {
			return leaves[i].treeSize > leaves[j].treeSize
		}
		return leaves[i].status.StatusID < leaves[j].status.StatusID
	})
	return leaves[0].status, nil
}

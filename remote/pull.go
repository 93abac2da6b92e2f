package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/justapithecus/quarry-depot/lineage"
	"github.com/justapithecus/quarry-depot/runarchive"
	"github.com/justapithecus/quarry-depot/types"
)

// ModeKind selects one of the three pull strategies from spec §4.H.
type ModeKind int

const (
	// ModeDefault pulls only the statuses and runs not reachable from the
	// local leaf's full-run-tree. No objects.
	ModeDefault ModeKind = iota
	// ModeComplete pulls every remote status, run, and object.
	ModeComplete
	// ModePostStatus pulls exactly what's needed to materialize one
	// target status: its ancestry, the runs in its full run tree not
	// already local, and the objects those runs' Collection events
	// reference.
	ModePostStatus
)

// Mode selects a pull strategy; StatusID is only consulted when Kind is
// ModePostStatus.
type Mode struct {
	Kind     ModeKind
	StatusID string
}

const (
	runsDir        = "runs"
	statusesDir    = "statuses"
	objectStoreDir = "object-store"
	eventsFile     = "events.zip"
	contextFile    = "context.yaml"
	snapshotFile   = "db.sqlite.zip"
)

// Pull synchronizes localRoot from the remote per mode (spec §4.H "Pull
// modes").
func Pull(ctx context.Context, localRoot string, t Transport, mode Mode) error {
	remoteFiles, err := listRemoteFiles(ctx, t)
	if err != nil {
		return err
	}
	remoteStatusIDs, remoteRunIDs := parseRemoteIDs(remoteFiles)
	localStatusIDs, err := localDirNames(filepath.Join(localRoot, statusesDir))
	if err != nil {
		return err
	}
	localRunIDs, err := localDirNames(filepath.Join(localRoot, runsDir))
	if err != nil {
		return err
	}

	var statusesToPull, runsToPull []string
	pullAllObjects := false

	switch mode.Kind {
	case ModeComplete:
		statusesToPull = setDiff(remoteStatusIDs, localStatusIDs)
		runsToPull = setDiff(remoteRunIDs, localRunIDs)
		pullAllObjects = true

	case ModeDefault:
		statusesToPull = setDiff(remoteStatusIDs, localStatusIDs)
		localTree, err := localLeafFullRunTree(localRoot)
		if err != nil {
			return err
		}
		runsToPull = setDiffSet(remoteRunIDs, localTree)

	case ModePostStatus:
		if mode.StatusID == "" {
			return fmt.Errorf("remote: ModePostStatus requires StatusID")
		}
		scratch, err := os.MkdirTemp("", "pull-ancestry-*")
		if err != nil {
			return fmt.Errorf("remote: create scratch dir: %w", err)
		}
		defer os.RemoveAll(scratch)

		ancestry, err := pullAncestryChain(ctx, t, localRoot, scratch, mode.StatusID)
		if err != nil {
			return err
		}
		statusesToPull = setDiff(ancestry, localStatusIDs)

		tree, err := statusFullRunTree(localRoot, scratch, mode.StatusID)
		if err != nil {
			return err
		}
		runsToPull = setDiffSet(keys(tree), toSet(localRunIDs))
	}

	for _, id := range statusesToPull {
		if err := pullStatus(ctx, t, localRoot, id); err != nil {
			return err
		}
	}
	for _, id := range runsToPull {
		if err := pullRun(ctx, t, localRoot, id); err != nil {
			return err
		}
	}

	switch mode.Kind {
	case ModeComplete:
		if pullAllObjects {
			return pullAllRemoteObjects(ctx, t, localRoot, remoteFiles)
		}
	case ModePostStatus:
		return pullObjectsForRuns(ctx, t, localRoot, runsToPull)
	}
	return nil
}

func pullStatus(ctx context.Context, t Transport, localRoot, statusID string) error {
	remoteDir := statusesDir + "/" + statusID
	localDir := filepath.Join(localRoot, statusesDir, statusID)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("remote: mkdir %s: %w", localDir, err)
	}
	if err := t.Get(ctx, remoteDir+"/"+contextFile, filepath.Join(localDir, contextFile)); err != nil {
		return fmt.Errorf("remote: pull status %s context: %w", statusID, err)
	}
	// db.sqlite.zip is optional (the root status has no queue snapshot).
	_ = t.Get(ctx, remoteDir+"/"+snapshotFile, filepath.Join(localDir, snapshotFile))
	return nil
}

func pullRun(ctx context.Context, t Transport, localRoot, runID string) error {
	remoteDir := runsDir + "/" + runID
	localDir := filepath.Join(localRoot, runsDir, runID)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("remote: mkdir %s: %w", localDir, err)
	}
	if err := t.Get(ctx, remoteDir+"/"+contextFile, filepath.Join(localDir, contextFile)); err != nil {
		return fmt.Errorf("remote: pull run %s context: %w", runID, err)
	}
	if err := t.Get(ctx, remoteDir+"/"+eventsFile, filepath.Join(localDir, eventsFile)); err != nil {
		return fmt.Errorf("remote: pull run %s events: %w", runID, err)
	}
	return nil
}

// pullAncestryChain walks statusID's parent chain on the remote, pulling
// each ancestor's context.yaml into scratch so lineage.FullRunTree can walk
// it locally, and returns every status id visited.
func pullAncestryChain(ctx context.Context, t Transport, localRoot, scratch, statusID string) ([]string, error) {
	var visited []string
	current := statusID
	for current != "" {
		visited = append(visited, current)

		// Prefer an already-local copy; else stage a scratch copy.
		if _, err := os.Stat(filepath.Join(localRoot, statusesDir, current, contextFile)); err == nil {
			st, err := lineage.Load(filepath.Join(localRoot, statusesDir), current)
			if err != nil {
				return nil, err
			}
			if st.Context.Parent == nil {
				return visited, nil
			}
			current = *st.Context.Parent
			continue
		}

		dst := filepath.Join(scratch, current)
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return nil, fmt.Errorf("remote: mkdir scratch %s: %w", dst, err)
		}
		if err := t.Get(ctx, statusesDir+"/"+current+"/"+contextFile, filepath.Join(dst, contextFile)); err != nil {
			return nil, fmt.Errorf("remote: pull ancestor %s context: %w", current, err)
		}
		st, err := lineage.Load(scratch, current)
		if err != nil {
			return nil, err
		}
		if st.Context.Parent == nil {
			return visited, nil
		}
		current = *st.Context.Parent
	}
	return visited, nil
}

// statusFullRunTree computes statusID's full run tree, consulting scratch
// for ancestors pulled only there and localRoot/statuses for ones already
// local.
func statusFullRunTree(localRoot, scratch, statusID string) (map[string]struct{}, error) {
	if _, err := os.Stat(filepath.Join(scratch, statusID, contextFile)); err == nil {
		return fullRunTreeAcross(localRoot, scratch, statusID)
	}
	st, err := lineage.Load(filepath.Join(localRoot, statusesDir), statusID)
	if err != nil {
		return nil, err
	}
	return fullRunTreeFrom(localRoot, scratch, st)
}

func fullRunTreeAcross(localRoot, scratch, statusID string) (map[string]struct{}, error) {
	st, err := lineage.Load(scratch, statusID)
	if err != nil {
		return nil, err
	}
	return fullRunTreeFrom(localRoot, scratch, st)
}

func fullRunTreeFrom(localRoot, scratch string, st types.Status) (map[string]struct{}, error) {
	tree := make(map[string]struct{})
	current := st
	for {
		for _, runID := range current.Context.IntegratedRuns {
			tree[runID] = struct{}{}
		}
		if current.Context.Parent == nil {
			return tree, nil
		}
		parentID := *current.Context.Parent
		if _, err := os.Stat(filepath.Join(scratch, parentID, contextFile)); err == nil {
			parent, err := lineage.Load(scratch, parentID)
			if err != nil {
				return nil, err
			}
			current = parent
			continue
		}
		parent, err := lineage.Load(filepath.Join(localRoot, statusesDir), parentID)
		if err != nil {
			return nil, fmt.Errorf("remote: walk parent %s: %w", parentID, err)
		}
		current = parent
	}
}

func localLeafFullRunTree(localRoot string) (map[string]struct{}, error) {
	statusesRoot := filepath.Join(localRoot, statusesDir)
	leaf, err := lineage.Leaf(statusesRoot)
	if err != nil {
		if err == lineage.ErrNoStatuses {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	return lineage.FullRunTree(statusesRoot, leaf)
}

// pullObjectsForRuns reads the just-pulled runs' Collection events and
// fetches only the objects they reference (spec §4.H post-status's
// "selective object materialization").
func pullObjectsForRuns(ctx context.Context, t Transport, localRoot string, runIDs []string) error {
	seen := make(map[string]bool)
	for _, runID := range runIDs {
		_, events, err := runarchive.Load(filepath.Join(localRoot, runsDir, runID))
		if err != nil {
			return fmt.Errorf("remote: load pulled run %s: %w", runID, err)
		}
		for _, ev := range events {
			if ev.Kind != types.KindCollection || !ev.Collection.HasOutput() {
				continue
			}
			name := ev.Collection.OutputBlobName
			if seen[name] {
				continue
			}
			seen[name] = true
			if err := pullObject(ctx, t, localRoot, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func pullAllRemoteObjects(ctx context.Context, t Transport, localRoot string, remoteFiles map[string]bool) error {
	for rel := range remoteFiles {
		if !strings.HasPrefix(rel, objectStoreDir+"/") {
			continue
		}
		name := filepath.Base(rel)
		if err := pullObject(ctx, t, localRoot, name); err != nil {
			return err
		}
	}
	return nil
}

// objectFanoutPrefixLen matches objstore.FSStore's default prefixChars.
const objectFanoutPrefixLen = 2

func pullObject(ctx context.Context, t Transport, localRoot, name string) error {
	prefix := name
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		prefix = name[:dot]
	}
	if len(prefix) > objectFanoutPrefixLen {
		prefix = prefix[:objectFanoutPrefixLen]
	}
	rel := objectStoreDir + "/" + prefix + "/" + name
	local := filepath.Join(localRoot, objectStoreDir, prefix, name)
	if _, err := os.Stat(local); err == nil {
		return nil // already have it
	}
	return t.Get(ctx, rel, local)
}

func parseRemoteIDs(remoteFiles map[string]bool) (statusIDs, runIDs []string) {
	statusSet := make(map[string]bool)
	runSet := make(map[string]bool)
	for rel := range remoteFiles {
		parts := strings.Split(rel, "/")
		if len(parts) < 2 {
			continue
		}
		switch parts[0] {
		case statusesDir:
			statusSet[parts[1]] = true
		case runsDir:
			runSet[parts[1]] = true
		}
	}
	return setKeys(statusSet), setKeys(runSet)
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func localDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("remote: read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func setDiff(a, b []string) []string {
	return setDiffSet(a, toSet(b))
}

func setDiffSet(a []string, b map[string]struct{}) []string {
	var out []string
	for _, id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Package runarchive saves and loads Run directories (spec §4.C, §6): an
// events.zip bundling every event file produced by one execution, plus a
// context.yaml provenance record.
package runarchive

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/quarry-depot/codec"
	"github.com/justapithecus/quarry-depot/iox"
	"github.com/justapithecus/quarry-depot/types"
)

// ErrEmptyRun is returned by Save when the event bundle is empty; per spec
// §3, zero-event runs are discarded and never persisted.
var ErrEmptyRun = errors.New("runarchive: run has no events, not saved")

const (
	eventsFile  = "events.zip"
	contextFile = "context.yaml"
)

// computeRunID hashes the run context and the sorted event-name multiset,
// prefixed with the hex start timestamp, matching spec §3: run_id =
// "<start_timestamp>-<hash(context + sorted_event_names)>".
func computeRunID(ctx types.RunContext, eventNames []string) string {
	h := sha256.New()
	commit := "<nil>"
	if ctx.CommitHash != nil {
		commit = *ctx.CommitHash
	}
	fmt.Fprintf(h, "%s|%v|%s", commit, ctx.DependencyFreeze, types.SortedJoinedEventNames(eventNames))
	digest := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%x-%s", int64(ctx.StartTimestamp), digest)
}

// Save writes events into <dir>/<run_id>/events.zip and the run context
// into <dir>/<run_id>/context.yaml, returning the resulting Run. events
// must be non-empty (ErrEmptyRun otherwise).
func Save(dir string, events []types.Event, runCtx types.RunContext) (types.Run, error) {
	if len(events) == 0 {
		return types.Run{}, ErrEmptyRun
	}

	names := make([]string, 0, len(events))
	encoded := make(map[string][]byte, len(events))
	for _, e := range events {
		name, payload := codec.Encode(e)
		names = append(names, name)
		encoded[name] = payload
	}

	runID := computeRunID(runCtx, names)
	runDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return types.Run{}, fmt.Errorf("runarchive: mkdir %s: %w", runDir, err)
	}

	if err := writeEventsZip(filepath.Join(runDir, eventsFile), names, encoded); err != nil {
		return types.Run{}, err
	}
	if err := writeContextYAML(filepath.Join(runDir, contextFile), runCtx); err != nil {
		return types.Run{}, err
	}

	return types.Run{RunID: runID, Context: runCtx, EventNames: names}, nil
}

func writeEventsZip(path string, names []string, payloads map[string][]byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-events-*")
	if err != nil {
		return fmt.Errorf("runarchive: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			tmp.Close()
			return fmt.Errorf("runarchive: create zip entry %s: %w", name, err)
		}
		if _, err := w.Write(payloads[name]); err != nil {
			tmp.Close()
			return fmt.Errorf("runarchive: write zip entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("runarchive: close zip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("runarchive: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("runarchive: rename: %w", err)
	}
	return nil
}

func writeContextYAML(path string, runCtx types.RunContext) error {
	b, err := yaml.Marshal(runCtx)
	if err != nil {
		return fmt.Errorf("runarchive: marshal context: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-context-*")
	if err != nil {
		return fmt.Errorf("runarchive: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("runarchive: write context: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("runarchive: close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load reads a run directory back into its metadata (Run) and its decoded
// events. dir is the directory containing events.zip/context.yaml, i.e.
// <runsRoot>/<run_id>.
func Load(dir string) (types.Run, []types.Event, error) {
	runID := filepath.Base(dir)

	var runCtx types.RunContext
	ctxBytes, err := os.ReadFile(filepath.Join(dir, contextFile))
	if err != nil {
		return types.Run{}, nil, fmt.Errorf("runarchive: read context: %w", err)
	}
	if err := yaml.Unmarshal(ctxBytes, &runCtx); err != nil {
		return types.Run{}, nil, fmt.Errorf("runarchive: unmarshal context: %w", err)
	}

	f, err := os.Open(filepath.Join(dir, eventsFile))
	if err != nil {
		return types.Run{}, nil, fmt.Errorf("runarchive: open events.zip: %w", err)
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return types.Run{}, nil, fmt.Errorf("runarchive: stat events.zip: %w", err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return types.Run{}, nil, fmt.Errorf("runarchive: open zip: %w", err)
	}

	names := make([]string, 0, len(zr.File))
	events := make([]types.Event, 0, len(zr.File))
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			return types.Run{}, nil, fmt.Errorf("runarchive: open entry %s: %w", zf.Name, err)
		}
		payload, err := io.ReadAll(rc)
		iox.DiscardClose(rc)
		if err != nil {
			return types.Run{}, nil, fmt.Errorf("runarchive: read entry %s: %w", zf.Name, err)
		}

		e, err := codec.Decode(zf.Name, payload)
		if err != nil {
			return types.Run{}, nil, fmt.Errorf("runarchive: decode entry %s: %w", zf.Name, err)
		}
		names = append(names, zf.Name)
		events = append(events, e)
	}

	run := types.Run{RunID: runID, Context: runCtx, EventNames: names}
	return run, events, nil
}

// EventNames lists the names of the event files in <dir>/events.zip without
// decoding their payloads, for callers that need only identity, not
// content.
func EventNames(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, fmt.Errorf("runarchive: open events.zip: %w", err)
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("runarchive: stat events.zip: %w", err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("runarchive: open zip: %w", err)
	}

	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	return names, nil
}

package depot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/quarry-depot/codec"
	"github.com/justapithecus/quarry-depot/types"
)

// loadLooseEvents decodes every event file written by the integrator under
// a workspace's events/ directory, in sorted file-name order so Commit's
// run_id hash is deterministic regardless of filesystem directory order. A
// missing directory (no events integrated yet) yields an empty, non-error
// result.
func loadLooseEvents(dir string) ([]types.Event, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("depot: read events dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	events := make([]types.Event, 0, len(names))
	for _, name := range names {
		payload, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("depot: read event file %s: %w", name, err)
		}
		e, err := codec.Decode(name, payload)
		if err != nil {
			return nil, fmt.Errorf("depot: decode event file %s: %w", name, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func writeRunContext(path string, ctx types.RunContext) error {
	b, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("depot: marshal run context: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("depot: write run context: %w", err)
	}
	return nil
}

func readRunContext(path string) (types.RunContext, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.RunContext{}, fmt.Errorf("depot: read run context: %w", err)
	}
	var ctx types.RunContext
	if err := yaml.Unmarshal(b, &ctx); err != nil {
		return types.RunContext{}, fmt.Errorf("depot: unmarshal run context: %w", err)
	}
	return ctx, nil
}

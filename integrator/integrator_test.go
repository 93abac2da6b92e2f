package integrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justapithecus/quarry-depot/metrics"
	"github.com/justapithecus/quarry-depot/queue"
	"github.com/justapithecus/quarry-depot/types"
)

func TestIntegrate_WritesEventFilesAndUpdatesQueue(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	q, err := queue.Open(filepath.Join(root, "queue.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	in := New(q, filepath.Join(root, "current-run"), metrics.NewCollector("h", "run-1"))

	reg := types.RegistrationEvent{HandlerName: "h", URL: "https://a", Overwrite: false}
	require.NoError(t, in.Integrate(ctx, []types.Event{{Kind: types.KindRegistration, Registration: &reg}}))

	entries, err := os.ReadDir(filepath.Join(root, "current-run", "events"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	batch, err := q.NextBatch(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	snap := in.metrics.Snapshot()
	require.Equal(t, int64(1), snap.EventsIntegrated)
	require.Equal(t, int64(1), snap.RowsRegistered)
}

func TestIntegrate_NilMetricsIsSafe(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	q, err := queue.Open(filepath.Join(root, "queue.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	in := New(q, filepath.Join(root, "current-run"), nil)

	reg := types.RegistrationEvent{HandlerName: "h", URL: "https://a", Overwrite: false}
	require.NoError(t, in.Integrate(ctx, []types.Event{{Kind: types.KindRegistration, Registration: &reg}}))
}

func TestIntegrate_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	q, err := queue.Open(filepath.Join(root, "queue.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	in := New(q, filepath.Join(root, "current-run"), metrics.NewCollector("h", "run-1"))
	require.NoError(t, in.Integrate(ctx, nil))
}

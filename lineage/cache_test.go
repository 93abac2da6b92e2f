package lineage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCache_MissingFileReturnsEmpty(t *testing.T) {
	c, err := LoadCache(filepath.Join(t.TempDir(), "status-cache"))
	require.NoError(t, err)
	require.Empty(t, c)
}

func TestSaveLoadCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status-cache")
	c := Cache{}
	c.Put("root-id", "", nil)
	c.Put("child-id", "root-id", []string{"run-1", "run-2"})

	require.NoError(t, SaveCache(path, c))

	got, err := LoadCache(path)
	require.NoError(t, err)
	require.Equal(t, c["child-id"], got["child-id"])
	require.Equal(t, 2, got["child-id"].TreeSize)
}

func TestCache_PutAccumulatesTreeSize(t *testing.T) {
	c := Cache{}
	c.Put("a", "", []string{"r1"})
	c.Put("b", "a", []string{"r2", "r3"})
	require.Equal(t, 1, c["a"].TreeSize)
	require.Equal(t, 3, c["b"].TreeSize)
}

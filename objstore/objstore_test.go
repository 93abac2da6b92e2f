package objstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStore_DumpReadRoundTrip(t *testing.T) {
	store := NewFSStore(t.TempDir(), 2)

	payload := []byte("hello depot")
	name, err := store.Dump(payload)
	require.NoError(t, err)

	got, err := store.Read(name)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFSStore_DumpIdempotent(t *testing.T) {
	store := NewFSStore(t.TempDir(), 2)

	payload := []byte("same bytes twice")
	name1, err := store.Dump(payload)
	require.NoError(t, err)
	name2, err := store.Dump(payload)
	require.NoError(t, err)

	require.Equal(t, name1, name2)
}

func TestFSStore_ReadNotFound(t *testing.T) {
	store := NewFSStore(t.TempDir(), 2)

	_, err := store.Read("deadbeef.blob")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestFSStore_DumpJSONReadJSON(t *testing.T) {
	store := NewFSStore(t.TempDir(), 2)

	type payload struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	in := payload{A: 7, B: "x"}

	name, err := store.DumpJSON(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, store.ReadJSON(name, &out))
	require.Equal(t, in, out)
}

func TestFSStore_DumpStringReadString(t *testing.T) {
	store := NewFSStore(t.TempDir(), 2)

	name, err := store.DumpString("plain text output")
	require.NoError(t, err)

	got, err := store.ReadString(name)
	require.NoError(t, err)
	require.Equal(t, "plain text output", got)
}

func TestFSStore_DistinctBytesDistinctNames(t *testing.T) {
	store := NewFSStore(t.TempDir(), 2)

	n1, err := store.Dump([]byte("a"))
	require.NoError(t, err)
	n2, err := store.Dump([]byte("b"))
	require.NoError(t, err)

	require.NotEqual(t, n1, n2)
}

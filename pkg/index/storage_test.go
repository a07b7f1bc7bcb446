package index_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/index"
)

func TestFileStorageBackend_WriteCommitReadSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.zvix")

	b := index.NewFileStorageBackend()
	require.NoError(t, b.Open(path, false))

	require.NoError(t, b.WriteSegment(1, []byte("meta-payload")))
	require.NoError(t, b.WriteSegment(2, []byte("codebook-payload")))
	require.NoError(t, b.Commit("ckpt-1"))

	got, err := b.ReadSegment(1)
	require.NoError(t, err)
	require.Equal(t, []byte("meta-payload"), got)

	got2, err := b.ReadSegment(2)
	require.NoError(t, err)
	require.Equal(t, []byte("codebook-payload"), got2)

	_, err = b.ReadSegment(99)
	require.Error(t, err)
}

func TestFileStorageBackend_ReopenSeesLastCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.zvix")

	b := index.NewFileStorageBackend()
	require.NoError(t, b.Open(path, false))
	require.NoError(t, b.WriteSegment(1, []byte("v1")))
	require.NoError(t, b.Commit(""))

	b2 := index.NewFileStorageBackend()
	require.NoError(t, b2.Open(path, false))
	got, err := b2.ReadSegment(1)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	// A second commit only updates the segments it touches; untouched tags
	// from the prior commit must still read back unchanged.
	require.NoError(t, b2.WriteSegment(2, []byte("v2")))
	require.NoError(t, b2.Commit(""))

	b3 := index.NewFileStorageBackend()
	require.NoError(t, b3.Open(path, false))
	first, err := b3.ReadSegment(1)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), first)
	second, err := b3.ReadSegment(2)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), second)
}

func TestFileStorageBackend_ReadOnlyRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.zvix")

	writer := index.NewFileStorageBackend()
	require.NoError(t, writer.Open(path, false))
	require.NoError(t, writer.WriteSegment(1, []byte("data")))
	require.NoError(t, writer.Commit(""))

	reader := index.NewFileStorageBackend()
	require.NoError(t, reader.Open(path, true))

	require.Error(t, reader.WriteSegment(1, []byte("overwrite")))
	require.Error(t, reader.Commit(""))
}

func TestFileStorageBackend_OpenReadOnlyMissingPathFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.zvix")

	b := index.NewFileStorageBackend()
	require.Error(t, b.Open(path, true))
}

func TestFileStorageBackend_Snapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backend.zvix")
	snapPath := filepath.Join(dir, "snapshots", "backend-copy.zvix")

	b := index.NewFileStorageBackend()
	require.NoError(t, b.Open(path, false))
	require.NoError(t, b.WriteSegment(1, []byte("snapshot-me")))
	require.NoError(t, b.Commit(""))

	require.NoError(t, b.Snapshot(snapPath))

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	copied, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	require.Equal(t, original, copied)
}

package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_Put(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir, "http://localhost:8080/blobs/")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "scans/abc-pill.jpg", []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/blobs/scans/abc-pill.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "scans", "abc-pill.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestFSStore_PutOverwrites(t *testing.T) {
	s, err := NewFS(t.TempDir(), "http://files.test")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Put(ctx, "scans/x.jpg", []byte("one"), "image/jpeg")
	require.NoError(t, err)
	url, err := s.Put(ctx, "scans/x.jpg", []byte("two"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://files.test/scans/x.jpg", url)
}

func TestNewFS_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "blobs")
	_, err := NewFS(dir, "http://files.test")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

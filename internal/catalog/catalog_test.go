package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestScanFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "zeta.mkv"), 50)
	writeFile(t, filepath.Join(dir, "alpha.mp4"), 100)
	writeFile(t, filepath.Join(dir, "notes.txt"), 10)
	writeFile(t, filepath.Join(dir, "cover.jpg"), 10)
	writeFile(t, filepath.Join(dir, "sub", "nested.mp4"), 10)

	entries, err := NewScanner(dir, nil).Scan()
	require.NoError(t, err)
	require.Len(t, entries, 2, "only recognized top-level files should be listed")

	assert.Equal(t, "alpha.mp4", entries[0].Name)
	assert.Equal(t, "zeta.mkv", entries[1].Name)
	assert.Equal(t, int64(100), entries[0].Size)
	assert.Equal(t, filepath.Join(dir, "alpha.mp4"), entries[0].Path)
	assert.Equal(t, ".mp4", entries[0].Ext)
}

func TestScanExtensionCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "LOUD.MKV"), 5)

	entries, err := NewScanner(dir, nil).Scan()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "LOUD.MKV", entries[0].Name)
	assert.Equal(t, ".MKV", entries[0].Ext, "original extension casing is preserved")
}

func TestScanMissingDirectory(t *testing.T) {
	s := NewScanner(filepath.Join(t.TempDir(), "absent"), nil)
	entries, err := s.Scan()
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
	assert.Nil(t, entries)
}

func TestScanEmptyDirectory(t *testing.T) {
	entries, err := NewScanner(t.TempDir(), nil).Scan()
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanCustomExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.ogv"), 5)
	writeFile(t, filepath.Join(dir, "movie.mp4"), 5)

	entries, err := NewScanner(dir, []string{"ogv"}).Scan()
	require.NoError(t, err)
	require.Len(t, entries, 1, "only configured extensions should match")
	assert.Equal(t, "clip.ogv", entries[0].Name)
}

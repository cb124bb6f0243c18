package archive

import (
	"archive/zip"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestCompress_DepthZero(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha", "readme.md"), "hello")
	writeFile(t, filepath.Join(root, "alpha", "docs", "guide.md"), "guide")
	writeFile(t, filepath.Join(root, "beta", "main.go"), "package main")
	// Loose files at the root are not archived.
	writeFile(t, filepath.Join(root, "notes.txt"), "loose")

	result, err := Compress(root, 0, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, Result{Archived: 2}, result)

	names := zipNames(t, filepath.Join(root, "alpha.zip"))
	assert.Equal(t, []string{"alpha/docs/", "alpha/docs/guide.md", "alpha/readme.md"}, names)

	names = zipNames(t, filepath.Join(root, "beta.zip"))
	assert.Equal(t, []string{"beta/main.go"}, names)
}

func TestCompress_DepthOne(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "owner", "repo", "readme.md"), "hello")

	result, err := Compress(root, 1, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, Result{Archived: 1}, result)

	// The archive sits next to the folder it packs, not at the root.
	_, err = os.Stat(filepath.Join(root, "owner", "repo.zip"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "owner.zip"))
	assert.True(t, os.IsNotExist(err))
}

func TestCompress_ZipContentRoundTrips(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "r", "file.txt"), "payload")

	_, err := Compress(root, 0, discardLogger())
	require.NoError(t, err)

	r, err := zip.OpenReader(filepath.Join(root, "r.zip"))
	require.NoError(t, err)
	defer r.Close()

	f, err := r.Open("r/file.txt")
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 16)
	n, _ := f.Read(buf)
	assert.Equal(t, "payload", string(buf[:n]))
}

func TestCompress_EmptyRoot(t *testing.T) {
	result, err := Compress(t.TempDir(), 0, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestCompress_MissingRoot(t *testing.T) {
	_, err := Compress(filepath.Join(t.TempDir(), "nope"), 0, discardLogger())
	require.Error(t, err)
}

func TestCompress_RootIsFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file.txt")
	writeFile(t, path, "x")

	_, err := Compress(path, 0, discardLogger())
	require.Error(t, err)
}

func TestCollectDirsAtDepth(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))

	dirs, err := collectDirsAtDepth(root, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(root, "a"), filepath.Join(root, "b")}, dirs)

	dirs, err = collectDirsAtDepth(root, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(root, "a", "x")}, dirs)
}

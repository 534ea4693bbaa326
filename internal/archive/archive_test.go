package archive_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/passcode/internal/archive"
)

func buildTree(t *testing.T, dir string) []string {
	t.Helper()

	project := filepath.Join(dir, "project")

	require.NoError(t, os.MkdirAll(filepath.Join(project, "src", "empty"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(project, "README.md"), []byte("# readme"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(project, "src", "main.go"), []byte("package main"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(project, "src", "skip.tmp"), []byte("scratch"), 0o600))

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("remember the milk"), 0o600))

	return []string{project, notes}
}

func skipTmp(path string, _ fs.DirEntry) bool {
	return filepath.Ext(path) == ".tmp"
}

func TestBundleRoundTrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	items := buildTree(t, src)
	bundle := filepath.Join(t.TempDir(), "encrypted_bundle.zip")

	manifest, err := archive.Bundle(bundle, items, skipTmp)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"project/",
		"project/README.md",
		"project/src/",
		"project/src/empty/",
		"project/src/main.go",
		"notes.txt",
	}, manifest.Entries)
	assert.Equal(t, 3, manifest.Files)
	assert.Equal(t, 3, manifest.Dirs)
	assert.EqualValues(t, len("# readme")+len("package main")+len("remember the milk"), manifest.Bytes)
	assert.Len(t, manifest.Members, len(manifest.Entries))

	require.True(t, archive.IsBundle(bundle))

	dest := t.TempDir()

	roots, err := archive.Unpack(bundle, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "project"), filepath.Join(dest, "notes.txt")}, roots)

	for rel, want := range map[string]string{
		"project/README.md":   "# readme",
		"project/src/main.go": "package main",
		"notes.txt":           "remember the milk",
	} {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	info, err := os.Stat(filepath.Join(dest, "project", "src", "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(dest, "project", "src", "skip.tmp"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = os.Stat(bundle)
	require.ErrorIs(t, err, fs.ErrNotExist, "bundle is consumed by Unpack")
}

func TestBundleIsDeterministic(t *testing.T) {
	t.Parallel()

	items := buildTree(t, t.TempDir())
	out := t.TempDir()

	first := filepath.Join(out, "a.zip")
	second := filepath.Join(out, "b.zip")

	_, err := archive.Bundle(first, items, nil)
	require.NoError(t, err)

	_, err = archive.Bundle(second, items, nil)
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)

	b, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBundleRejectsDuplicates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, sub, "same.txt"), []byte(sub), 0o600))
	}

	bundle := filepath.Join(dir, "dup.zip")

	_, err := archive.Bundle(bundle, []string{
		filepath.Join(dir, "a", "same.txt"),
		filepath.Join(dir, "b", "same.txt"),
	}, nil)
	require.ErrorIs(t, err, archive.ErrDuplicateEntry)

	_, err = os.Stat(bundle)
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = archive.Bundle(bundle, nil, nil)
	require.ErrorIs(t, err, archive.ErrEmptyBundle)
}

func TestUnpackRejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bundle := filepath.Join(dir, "evil.zip")

	f, err := os.Create(bundle)
	require.NoError(t, err)

	zw := zip.NewWriter(f)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "ok.txt", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte("fine"))
	require.NoError(t, err)

	w, err = zw.CreateHeader(&zip.FileHeader{Name: "../escape.txt", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte("gotcha"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "dest")
	require.NoError(t, os.Mkdir(dest, 0o700))

	_, err = archive.Unpack(bundle, dest)
	require.ErrorIs(t, err, archive.ErrUnsafeEntry)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = os.Stat(bundle)
	require.NoError(t, err, "a rejected bundle is kept")
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)

	for name, content := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestIsBundle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	plain := filepath.Join(dir, "fake.zip")
	require.NoError(t, os.WriteFile(plain, []byte("not a zip"), 0o600))
	assert.False(t, archive.IsBundle(plain))

	foreign := filepath.Join(dir, "photos.zip")
	writeZip(t, foreign, map[string]string{"notes.txt": "inside"})
	assert.False(t, archive.IsBundle(foreign), "zip files not written by Bundle are not bundles")

	genuine := filepath.Join(dir, "real.ZIP")
	_, err := archive.Bundle(genuine, buildTree(t, t.TempDir()), nil)
	require.NoError(t, err)
	assert.True(t, archive.IsBundle(genuine))

	wrongExt := filepath.Join(dir, "real.bin")
	require.NoError(t, os.Rename(genuine, wrongExt))
	assert.False(t, archive.IsBundle(wrongExt))

	assert.False(t, archive.IsBundle(filepath.Join(dir, "missing.zip")))
}

func TestUnpackRefusesExistingFiles(t *testing.T) {
	t.Parallel()

	items := buildTree(t, t.TempDir())
	bundle := filepath.Join(t.TempDir(), "bundle.zip")

	_, err := archive.Bundle(bundle, items, nil)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "project", "src"), 0o700))

	existing := filepath.Join(dest, "notes.txt")
	require.NoError(t, os.WriteFile(existing, []byte("mine"), 0o600))

	_, err = archive.Unpack(bundle, dest)
	require.ErrorIs(t, err, archive.ErrTargetExists)

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(got))

	_, err = os.Stat(filepath.Join(dest, "project", "README.md"))
	require.ErrorIs(t, err, fs.ErrNotExist, "nothing is written on conflict")

	_, err = os.Stat(bundle)
	require.NoError(t, err, "a refused bundle is kept")

	require.NoError(t, os.Remove(existing))

	_, err = archive.Unpack(bundle, dest)
	require.NoError(t, err, "existing directories are merged into")
}

func TestBundleSkipsItself(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o600))

	bundle := filepath.Join(dir, "bundle.zip")

	manifest, err := archive.Bundle(bundle, []string{dir}, nil)
	require.NoError(t, err)

	base := filepath.Base(dir)
	assert.Equal(t, []string{base + "/", base + "/a.txt"}, manifest.Entries)
	assert.NotContains(t, manifest.Members, bundle)
}

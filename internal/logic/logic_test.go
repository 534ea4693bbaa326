package logic_test

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/passcode/internal/config"
	"github.com/idelchi/passcode/internal/logic"
	"github.com/idelchi/passcode/pkg/passcode"
)

type harness struct {
	cfg    *config.Config
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()

	return &harness{
		dir: dir,
		cfg: &config.Config{
			KeyFile:    filepath.Join(dir, "passcode.key"),
			ChunkSize:  "1KiB",
			Parallel:   2,
			Timeout:    config.DefaultTimeout,
			BundleName: config.DefaultBundleName,
			LogLevel:   "error",
		},
	}
}

func (h *harness) runner(t *testing.T, password string, files ...string) *logic.Runner {
	t.Helper()

	h.cfg.Files = files
	h.stdout.Reset()
	h.stderr.Reset()

	r, err := logic.New(h.cfg, []byte(password), &h.stdout, &h.stderr)
	require.NoError(t, err)

	return r
}

func (h *harness) generate(t *testing.T) {
	t.Helper()

	require.NoError(t, h.runner(t, "pw").GenerateKey())
}

func write(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestKeyCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)
	assert.Contains(t, h.stdout.String(), "Generated key file")

	err := h.runner(t, "pw").GenerateKey()
	require.ErrorIs(t, err, logic.ErrKeyFileExists)

	require.NoError(t, h.runner(t, "pw").CheckKey())
	assert.Contains(t, h.stdout.String(), "matches the password")

	err = h.runner(t, "nope").CheckKey()
	require.ErrorIs(t, err, passcode.ErrInvalidPassword)

	h.cfg.Force = true
	require.NoError(t, h.runner(t, "other").GenerateKey())
	require.NoError(t, h.runner(t, "other").CheckKey())
}

func TestEncryptDecryptFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	a := filepath.Join(h.dir, "a.txt")
	b := filepath.Join(h.dir, "b.txt")
	write(t, a, "alpha")
	write(t, b, string(bytes.Repeat([]byte("b"), 5000)))

	require.NoError(t, h.runner(t, "pw", a, b).Encrypt(context.Background()))
	assert.Contains(t, h.stdout.String(), `Processed "`+a+`" -> "`+a+passcode.Suffix+`"`)

	for _, path := range []string{a, b} {
		_, err := os.Stat(path)
		require.ErrorIs(t, err, fs.ErrNotExist, "original is erased")
	}

	require.NoError(t, h.runner(t, "pw", h.dir).Decrypt(context.Background()))

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	got, err = os.ReadFile(b)
	require.NoError(t, err)
	assert.Len(t, got, 5000)

	_, err = os.Stat(a + passcode.Suffix)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestEncryptKeepAndStats(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	a := filepath.Join(h.dir, "a.txt")
	write(t, a, "alpha")

	h.cfg.Keep = true
	h.cfg.Stats = true
	h.cfg.Quiet = true

	require.NoError(t, h.runner(t, "pw", a).Encrypt(context.Background()))
	assert.Empty(t, h.stdout.String())
	assert.Contains(t, h.stderr.String(), "Processed: 1")

	_, err := os.Stat(a)
	require.NoError(t, err, "--keep retains the original")

	_, err = os.Stat(a + passcode.Suffix)
	require.NoError(t, err)
}

func TestEncryptDirectoryAsBundle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	project := filepath.Join(h.dir, "project")
	write(t, filepath.Join(project, "main.go"), "package main")
	write(t, filepath.Join(project, "docs", "readme.md"), "# readme")

	require.NoError(t, h.runner(t, "pw", project).Encrypt(context.Background()))

	container := project + ".zip" + passcode.Suffix
	_, err := os.Stat(container)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(project, "main.go"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, h.runner(t, "pw", container).Decrypt(context.Background()))

	got, err := os.ReadFile(filepath.Join(project, "docs", "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "# readme", string(got))

	_, err = os.Stat(project + ".zip")
	require.ErrorIs(t, err, fs.ErrNotExist, "decrypted bundle is unpacked and removed")
}

func TestEncryptDirectoryExcludes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	project := filepath.Join(h.dir, "project")
	write(t, filepath.Join(project, "main.go"), "package main")
	write(t, filepath.Join(project, "cache", "x.tmp"), "scratch")

	h.cfg.Exclude = []string{"*.tmp"}

	require.NoError(t, h.runner(t, "pw", project).Encrypt(context.Background()))

	got, err := os.ReadFile(filepath.Join(project, "cache", "x.tmp"))
	require.NoError(t, err, "excluded files are neither bundled nor erased")
	assert.Equal(t, "scratch", string(got))

	_, err = os.Stat(filepath.Join(project, "main.go"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestEncryptFoldsFilesInsideDirectory(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	project := filepath.Join(h.dir, "project")
	a := filepath.Join(project, "a.txt")
	write(t, a, "alpha")

	require.NoError(t, h.runner(t, "pw", project, a).Encrypt(context.Background()))

	_, err := os.Stat(a + passcode.Suffix)
	require.ErrorIs(t, err, fs.ErrNotExist, "the file is bundled with its directory only")

	container := project + ".zip" + passcode.Suffix
	require.NoError(t, h.runner(t, "pw", container).Decrypt(context.Background()))

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))
}

func TestEncryptBundleFoldsNestedItems(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	work := filepath.Join(h.dir, "work")
	a := filepath.Join(work, "a.txt")
	write(t, a, "alpha")

	h.cfg.Bundle = true
	require.NoError(t, h.runner(t, "pw", a, work).Encrypt(context.Background()))

	container := filepath.Join(h.dir, config.DefaultBundleName) + passcode.Suffix
	_, err := os.Stat(container)
	require.NoError(t, err)

	h.cfg.Bundle = false
	require.NoError(t, h.runner(t, "pw", container).Decrypt(context.Background()))

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name())
}

func TestEncryptTimeoutLeavesNoTemporaryFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	a := filepath.Join(h.dir, "a.txt")
	write(t, a, string(bytes.Repeat([]byte("a"), 64<<10)))

	h.cfg.Timeout = time.Nanosecond

	err := h.runner(t, "pw", a).Encrypt(context.Background())
	require.ErrorIs(t, err, passcode.ErrTimeout)

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)

	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), e.Name())
		assert.False(t, strings.HasPrefix(e.Name(), ".verify-"), e.Name())
	}

	_, plainErr := os.Stat(a)
	_, lockErr := os.Stat(a + passcode.Suffix)
	assert.NotEqual(t, plainErr == nil, lockErr == nil, "either untouched or fully protected")
}

func TestEncryptBundleFlag(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	a := filepath.Join(h.dir, "a.txt")
	b := filepath.Join(h.dir, "b.txt")
	write(t, a, "alpha")
	write(t, b, "beta")

	h.cfg.Bundle = true

	require.NoError(t, h.runner(t, "pw", a, b).Encrypt(context.Background()))

	container := filepath.Join(h.dir, config.DefaultBundleName) + passcode.Suffix
	_, err := os.Stat(container)
	require.NoError(t, err)

	h.cfg.Bundle = false
	require.NoError(t, h.runner(t, "pw", container).Decrypt(context.Background()))

	got, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))
}

func TestEncryptWrongPassword(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	a := filepath.Join(h.dir, "a.txt")
	write(t, a, "alpha")

	err := h.runner(t, "wrong", a).Encrypt(context.Background())
	require.ErrorIs(t, err, passcode.ErrInvalidPassword)

	_, err = os.Stat(a)
	require.NoError(t, err)
}

func TestDecryptDamagedContainer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	a := filepath.Join(h.dir, "a.txt")
	write(t, a, string(bytes.Repeat([]byte("a"), 100)))

	require.NoError(t, h.runner(t, "pw", a).Encrypt(context.Background()))

	container := a + passcode.Suffix
	// Header plus the start of the first record.
	require.NoError(t, os.Truncate(container, 30))

	err := h.runner(t, "pw", container).Decrypt(context.Background())
	require.ErrorIs(t, err, logic.ErrJobsFailed)
	assert.Contains(t, h.stderr.String(), "Error processing")

	_, err = os.Stat(container)
	require.NoError(t, err, "failed decryption keeps the container")

	_, err = os.Stat(a)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDecryptOutputNeedsOneContainer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	write(t, filepath.Join(h.dir, "x", "a.txt.lock"), "")
	write(t, filepath.Join(h.dir, "x", "b.txt.lock"), "")

	h.cfg.Output = filepath.Join(h.dir, "out")

	err := h.runner(t, "pw", filepath.Join(h.dir, "x")).Decrypt(context.Background())
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestHash(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	path := filepath.Join(h.dir, "abc.txt")
	write(t, path, "abc")

	require.NoError(t, h.runner(t, "", path).Hash(context.Background()))
	assert.Equal(t, "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=  "+path+"\n", h.stdout.String())
}

func TestCancelledContextSkipsJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generate(t)

	a := filepath.Join(h.dir, "a.txt")
	write(t, a, "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.runner(t, "pw", a).Encrypt(ctx)
	require.ErrorIs(t, err, passcode.ErrCancelled)

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))
}

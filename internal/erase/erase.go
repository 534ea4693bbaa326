// Package erase overwrites files with random data before deleting them.
package erase

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/idelchi/passcode/internal/fileutil"
)

// windowSize is the size of each random overwrite.
const windowSize = 1024

// File overwrites path's full length with random bytes, syncs and deletes it.
// A missing path is not an error. Symbolic links are removed without touching their target.
func File(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fileutil.Wrap("stat", path, err)
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return fileutil.Wrap("remove", path, os.Remove(path))
	case !info.Mode().IsRegular():
		return fileutil.Wrap("erase", path, fmt.Errorf("not a regular file (%s)", info.Mode().Type()))
	}

	if err := overwrite(path, info.Size()); err != nil {
		return err
	}

	return fileutil.Wrap("remove", path, os.Remove(path))
}

func overwrite(path string, size int64) (err error) {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY, 0)
	if err != nil {
		return fileutil.Wrap("open", path, err)
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fileutil.Wrap("close", path, closeErr)
		}
	}()

	buf := make([]byte, windowSize)

	for written := int64(0); written < size; {
		n := int(min(int64(windowSize), size-written))

		if _, err := io.ReadFull(rand.Reader, buf[:n]); err != nil {
			return fmt.Errorf("erasing %q: generating random data: %w", path, err)
		}

		if _, err := f.Write(buf[:n]); err != nil {
			return fileutil.Wrap("overwrite", path, err)
		}

		written += int64(n)
	}

	if err := f.Sync(); err != nil {
		return fileutil.Wrap("sync", path, err)
	}

	return nil
}

// Members erases the listed files and then removes the listed directories
// that are empty, deepest first. Directories still holding unlisted entries are kept.
// Missing paths are skipped.
func Members(paths []string) error {
	var (
		dirs []string
		errs []error
	)

	for _, path := range paths {
		info, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			errs = append(errs, fileutil.Wrap("stat", path, err))

			continue
		}

		if info.IsDir() {
			dirs = append(dirs, filepath.Clean(path))

			continue
		}

		if err := File(path); err != nil {
			errs = append(errs, err)
		}
	}

	// Longer paths first puts children before their parents.
	slices.SortFunc(dirs, func(a, b string) int { return len(b) - len(a) })

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = append(errs, fileutil.Wrap("read directory", dir, err))

			continue
		}

		if len(entries) > 0 {
			continue
		}

		if err := os.Remove(dir); err != nil {
			errs = append(errs, fileutil.Wrap("remove directory", dir, err))
		}
	}

	return errors.Join(errs...)
}

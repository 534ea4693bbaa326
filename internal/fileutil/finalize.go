// Package fileutil provides shared file operation helpers.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempContext holds state for an atomic file write operation.
type TempContext struct {
	TmpFile *os.File
	TmpName string
	Target  string
}

// NewTempContext creates a hidden temp file next to target for atomic writing.
// Caller must defer CleanupOnError.
func NewTempContext(target string) (*TempContext, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return nil, Wrap("create temporary file for", target, err)
	}

	return &TempContext{
		TmpFile: tmpFile,
		TmpName: tmpFile.Name(),
		Target:  target,
	}, nil
}

// Commit syncs and closes the temp file, applies perm and renames it onto the target.
// It returns the size of the committed file.
func (tc *TempContext) Commit(perm os.FileMode) (int64, error) {
	if err := tc.TmpFile.Sync(); err != nil {
		return 0, Wrap("sync", tc.TmpName, err)
	}

	info, err := tc.TmpFile.Stat()
	if err != nil {
		return 0, Wrap("stat", tc.TmpName, err)
	}

	if err := tc.TmpFile.Close(); err != nil {
		return 0, Wrap("close", tc.TmpName, err)
	}

	if err := os.Chmod(tc.TmpName, perm); err != nil {
		return 0, Wrap("chmod", tc.TmpName, err)
	}

	if err := os.Rename(tc.TmpName, tc.Target); err != nil {
		return 0, Wrap("rename", tc.Target, err)
	}

	return info.Size(), nil
}

// CleanupOnError closes the temp file and removes it if the write failed.
func (tc *TempContext) CleanupOnError(errp *error) {
	tc.TmpFile.Close() //nolint:errcheck,gosec // best-effort cleanup, may already be closed

	if *errp != nil {
		os.Remove(tc.TmpName) //nolint:errcheck,gosec // best-effort cleanup
	}
}

// Size returns the size of the file at path.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, Wrap("stat", path, err)
	}

	return info.Size(), nil
}

// Exists reports whether path exists. Errors other than "not exist" are returned.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)

	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("checking %q: %w", path, err)
	}
}

// Package archive bundles several files and directories into one zip stream
// and unpacks such bundles again.
//
// Bundles use the Store method with fixed timestamps and lexical ordering,
// so the same tree always produces the same bytes. Every bundle carries a
// fixed archive comment that tells it apart from zip files of other origins.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/idelchi/passcode/internal/fileutil"
)

const (
	// Extension marks a file as a bundle candidate.
	Extension = ".zip"
	// Comment is the archive comment written into every bundle.
	Comment = "passcode bundle v1"
)

var (
	// ErrDuplicateEntry is returned when two items map to the same entry name.
	ErrDuplicateEntry = errors.New("duplicate bundle entry")
	// ErrUnsafeEntry is returned for entry names that would escape the destination.
	ErrUnsafeEntry = errors.New("unsafe bundle entry")
	// ErrEmptyBundle is returned when there is nothing to bundle.
	ErrEmptyBundle = errors.New("nothing to bundle")
	// ErrTargetExists is returned when unpacking would replace an existing file.
	ErrTargetExists = errors.New("unpack target already exists")
)

//nolint:gochecknoglobals
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Manifest describes what went into a bundle.
type Manifest struct {
	// Entries lists entry names in write order. Directories end with "/".
	Entries []string
	// Members are the filesystem paths that were bundled, excluding skipped ones.
	Members []string
	// Files and Dirs count the entries by kind.
	Files, Dirs int
	// Bytes is the total payload size.
	Bytes int64
}

// SkipFunc reports whether a path should be left out of a bundle.
type SkipFunc func(path string, d fs.DirEntry) bool

// Bundle writes items into a new bundle at dest, replacing it atomically.
// Entry names are relative to each item's parent directory.
// dest and its temporary file are never bundled, even when an item contains them.
func Bundle(dest string, items []string, skip SkipFunc) (_ Manifest, err error) {
	if len(items) == 0 {
		return Manifest{}, ErrEmptyBundle
	}

	tc, err := fileutil.NewTempContext(dest)
	if err != nil {
		return Manifest{}, err
	}

	defer tc.CleanupOnError(&err)

	own, err := absolutes(dest, tc.TmpName)
	if err != nil {
		return Manifest{}, err
	}

	b := &bundler{
		zw:   zip.NewWriter(tc.TmpFile),
		seen: make(map[string]string),
		own:  own,
		skip: skip,
	}

	for _, item := range items {
		if err = b.add(item); err != nil {
			return Manifest{}, err
		}
	}

	if err = b.zw.SetComment(Comment); err != nil {
		return Manifest{}, fmt.Errorf("marking bundle: %w", err)
	}

	if err = b.zw.Close(); err != nil {
		return Manifest{}, fileutil.Wrap("finish bundle", dest, err)
	}

	if len(b.manifest.Entries) == 0 {
		err = ErrEmptyBundle

		return Manifest{}, err
	}

	if _, err = tc.Commit(0o600); err != nil {
		return Manifest{}, err
	}

	return b.manifest, nil
}

type bundler struct {
	zw   *zip.Writer
	seen map[string]string
	// own holds the absolute paths of the bundle being written.
	own      map[string]bool
	skip     SkipFunc
	manifest Manifest
}

func absolutes(paths ...string) (map[string]bool, error) {
	set := make(map[string]bool, len(paths))

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fileutil.Wrap("resolve", path, err)
		}

		set[abs] = true
	}

	return set, nil
}

func (b *bundler) add(item string) error {
	item = filepath.Clean(item)
	base := filepath.Dir(item)

	return filepath.WalkDir(item, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fileutil.Wrap("walk", path, err)
		}

		if b.skip != nil && b.skip(path, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		if !d.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return fileutil.Wrap("resolve", path, err)
			}

			if b.own[abs] {
				return nil
			}
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("naming %q: %w", path, err)
		}

		name := filepath.ToSlash(rel)
		if d.IsDir() {
			name += "/"
		}

		if previous, ok := b.seen[name]; ok {
			return fmt.Errorf("%w: %q from %q and %q", ErrDuplicateEntry, name, previous, path)
		}

		b.seen[name] = path

		info, err := d.Info()
		if err != nil {
			return fileutil.Wrap("stat", path, err)
		}

		return b.write(name, path, info)
	})
}

func (b *bundler) write(name, path string, info fs.FileInfo) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: epoch,
	}
	header.SetMode(info.Mode())

	w, err := b.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("adding %q: %w", name, err)
	}

	b.manifest.Entries = append(b.manifest.Entries, name)
	b.manifest.Members = append(b.manifest.Members, path)

	if info.IsDir() {
		b.manifest.Dirs++

		return nil
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fileutil.Wrap("open", path, err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return fileutil.Wrap("bundle", path, err)
	}

	b.manifest.Files++
	b.manifest.Bytes += n

	return nil
}

// IsBundle reports whether path has the bundle extension and is a zip archive
// written by Bundle. Other zip files are left alone.
func IsBundle(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return false
	}

	reader, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return false
	}
	defer reader.Close()

	return reader.Comment == Comment
}

// Unpack extracts bundle into destDir, directories first and then files,
// and deletes the bundle afterwards. It returns the top-level paths it produced.
// Nothing is written when any entry name is unsafe or any file entry would
// replace an existing file; existing directories are merged into.
func Unpack(bundle, destDir string) ([]string, error) {
	roots, err := extract(bundle, destDir)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(bundle); err != nil {
		return roots, fileutil.Wrap("remove bundle", bundle, err)
	}

	return roots, nil
}

func extract(bundle, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(bundle)
	if err != nil {
		return nil, fileutil.Wrap("open bundle", bundle, err)
	}
	defer reader.Close()

	var (
		roots []string
		seen  = make(map[string]bool)
	)

	for _, f := range reader.File {
		rel := filepath.FromSlash(strings.TrimSuffix(f.Name, "/"))
		if !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafeEntry, f.Name)
		}

		if err := checkFree(filepath.Join(destDir, rel), f.FileInfo().IsDir()); err != nil {
			return nil, err
		}

		first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")

		root := filepath.Join(destDir, first)
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}

	for _, f := range reader.File {
		if !f.FileInfo().IsDir() {
			continue
		}

		dir := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fileutil.Wrap("create directory", dir, err)
		}
	}

	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		if err := materialize(f, filepath.Join(destDir, filepath.FromSlash(f.Name))); err != nil {
			return nil, err
		}
	}

	return roots, nil
}

// checkFree fails when target is taken by something other than a directory
// that a directory entry can merge into.
func checkFree(target string, dir bool) error {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fileutil.Wrap("stat", target, err)
	}

	if dir && info.IsDir() {
		return nil
	}

	return fmt.Errorf("%w: %q", ErrTargetExists, target)
}

func materialize(f *zip.File, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fileutil.Wrap("create directory", filepath.Dir(target), err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading entry %q: %w", f.Name, err)
	}
	defer src.Close()

	tc, err := fileutil.NewTempContext(target)
	if err != nil {
		return err
	}

	defer tc.CleanupOnError(&err)

	if _, err = io.Copy(tc.TmpFile, src); err != nil {
		return fileutil.Wrap("extract", target, err)
	}

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o600
	}

	_, err = tc.Commit(perm)

	return err
}

// Package selection turns command-line arguments into encryption and decryption targets.
package selection

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/idelchi/passcode/internal/fileutil"
)

// Kind tells whether a target is a single file or a directory tree.
type Kind int

const (
	// File is a regular file.
	File Kind = iota
	// Dir is a directory tree, encrypted as one bundle.
	Dir
)

// Target is one resolved argument.
type Target struct {
	Path string
	Kind Kind
}

// Filter excludes paths matching any of its patterns. A nil Filter excludes nothing.
type Filter struct {
	excludes Matcher
}

// NewFilter compiles exclude patterns.
func NewFilter(excludes []string) (*Filter, error) {
	matcher, err := NewMatcher(excludes)
	if err != nil {
		return nil, fmt.Errorf("compiling exclude patterns: %w", err)
	}

	return &Filter{excludes: matcher}, nil
}

// Excluded reports whether path matches an exclude pattern.
func (f *Filter) Excluded(path string) bool {
	if f == nil {
		return false
	}

	_, ok := f.excludes.Match(filepath.ToSlash(filepath.Clean(path)))

	return ok
}

// Skip adapts Excluded to directory walkers.
func (f *Filter) Skip(path string, _ fs.DirEntry) bool {
	return f.Excluded(path)
}

// Resolve stats each argument and returns it as a file or directory target.
// Explicitly named files bypass the filter; directories are kept whole and
// filtered when they are walked. Arguments inside a directory argument are
// folded into it, so no path is claimed by two targets.
// scanned counts the regular files covered.
func Resolve(args []string, flt *Filter) (targets []Target, scanned int, err error) {
	var (
		abs  []string
		seen = make(map[string]struct{})
	)

	for _, arg := range args {
		arg = filepath.Clean(arg)

		full, err := filepath.Abs(arg)
		if err != nil {
			return nil, 0, fileutil.Wrap("resolve", arg, err)
		}

		if _, ok := seen[full]; ok {
			continue
		}

		seen[full] = struct{}{}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, 0, fileutil.Wrap("stat", arg, err)
		}

		switch {
		case info.Mode().IsRegular():
			targets = append(targets, Target{Path: arg, Kind: File})
		case info.IsDir():
			targets = append(targets, Target{Path: arg, Kind: Dir})
		default:
			return nil, 0, fmt.Errorf("%q is not a regular file or directory", arg)
		}

		abs = append(abs, full)
	}

	targets = fold(targets, abs)

	if len(targets) == 0 {
		return nil, 0, fmt.Errorf("no files selected: %v", args)
	}

	for _, t := range targets {
		if t.Kind == File {
			scanned++

			continue
		}

		count, err := countFiles(t.Path, flt)
		if err != nil {
			return nil, 0, err
		}

		scanned += count
	}

	return targets, scanned, nil
}

// fold drops targets that lie inside a directory target. abs holds the
// absolute path of each target.
func fold(targets []Target, abs []string) []Target {
	kept := make([]Target, 0, len(targets))

	for i, t := range targets {
		nested := false

		for j, d := range targets {
			if d.Kind == Dir && i != j && within(abs[i], abs[j]) {
				nested = true

				break
			}
		}

		if !nested {
			kept = append(kept, t)
		}
	}

	return kept
}

// within reports whether path lies strictly below dir.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)

	return err == nil && rel != "." && filepath.IsLocal(rel)
}

// Containers resolves decrypt arguments. Files are taken as given;
// directories are searched recursively for names ending in suffix.
func Containers(args []string, flt *Filter, suffix string) (files []string, scanned int, err error) {
	files, scanned, err = expand(args, flt, func(path string) bool { return strings.HasSuffix(path, suffix) })
	if err != nil {
		return nil, 0, err
	}

	if len(files) == 0 {
		return nil, scanned, fmt.Errorf("no %s files found in %v", suffix, args)
	}

	return files, scanned, nil
}

// Files resolves arguments to regular files, walking directories.
func Files(args []string, flt *Filter) (files []string, scanned int, err error) {
	files, scanned, err = expand(args, flt, func(string) bool { return true })
	if err != nil {
		return nil, 0, err
	}

	if len(files) == 0 {
		return nil, scanned, fmt.Errorf("no files found in %v", args)
	}

	return files, scanned, nil
}

// expand takes files as given and collects the files under directories that keep accepts.
func expand(args []string, flt *Filter, keep func(path string) bool) (files []string, scanned int, err error) {
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}

		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, arg := range args {
		arg = filepath.Clean(arg)

		info, err := os.Stat(arg)
		if err != nil {
			return nil, 0, fileutil.Wrap("stat", arg, err)
		}

		if !info.IsDir() {
			scanned++

			add(arg)

			continue
		}

		err = walk(arg, flt, func(path string) {
			scanned++

			if keep(path) {
				add(path)
			}
		})
		if err != nil {
			return nil, 0, err
		}
	}

	return files, scanned, nil
}

func countFiles(root string, flt *Filter) (int, error) {
	count := 0

	err := walk(root, flt, func(string) { count++ })

	return count, err
}

// walk calls fn for every regular file under root that the filter keeps.
// Excluded directories are not descended into.
func walk(root string, flt *Filter, fn func(path string)) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != root && flt.Excluded(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.Type().IsRegular() {
			fn(path)
		}

		return nil
	})
	if err != nil {
		return fileutil.Wrap("walk", root, err)
	}

	return nil
}

// LoadPatterns reads a JSONC array of glob patterns.
func LoadPatterns(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fileutil.Wrap("read patterns file", path, err)
	}

	var patterns []string
	if err := json.Unmarshal(jsonc.ToJSONInPlace(data), &patterns); err != nil {
		return nil, fmt.Errorf("parsing patterns file %q: %w", path, err)
	}

	return patterns, nil
}

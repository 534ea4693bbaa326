package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrIO is returned for read, write and filesystem failures.
	ErrIO = errors.New("i/o error")
	// ErrAccessDenied is returned when the operating system refuses access to a path.
	// It is kept apart from ErrIO so callers can suggest a fix.
	ErrAccessDenied = errors.New("access denied")
)

// Wrap classifies err as ErrAccessDenied or ErrIO and records the operation and path.
// A nil err yields nil.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}

	kind := ErrIO
	if errors.Is(err, fs.ErrPermission) {
		kind = ErrAccessDenied
	}

	return fmt.Errorf("%w: %s %q: %w", kind, op, path, err)
}

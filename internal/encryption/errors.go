package encryption

import "errors"

var (
	// ErrNoKeyLoaded is returned when an operation needs the active key and none is set.
	ErrNoKeyLoaded = errors.New("no key loaded")
	// ErrInvalidKeyFileFormat is returned when a key file cannot be parsed.
	ErrInvalidKeyFileFormat = errors.New("invalid key file format")
	// ErrInvalidPassword is returned when the password does not reproduce the stored key.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrCipher is returned when the random source or a cipher primitive fails.
	ErrCipher = errors.New("cipher failure")
	// ErrPadding is returned when decryption ends in invalid padding or a damaged container.
	// A wrong key and a corrupted container are indistinguishable in CBC mode.
	ErrPadding = errors.New("bad padding: wrong key or corrupted container")
	// ErrInvalidChunkSize is returned when the chunk size is zero, negative or too large.
	ErrInvalidChunkSize = errors.New("invalid chunk size")
	// ErrNotContainer is returned when a path cannot be a container, e.g. it lacks the suffix.
	ErrNotContainer = errors.New("not a container")
)

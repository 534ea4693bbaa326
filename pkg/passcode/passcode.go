// Package passcode is the entry point for front ends: it protects files with a
// password-derived key, verifies every new container and erases the plaintext.
//
// A Session holds one active key. Operations take file paths and return file paths.
package passcode

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/idelchi/passcode/internal/archive"
	"github.com/idelchi/passcode/internal/encryption"
	"github.com/idelchi/passcode/internal/erase"
	"github.com/idelchi/passcode/internal/fileutil"
	"github.com/idelchi/passcode/internal/logging"
	"github.com/idelchi/passcode/internal/scheduler"
	"github.com/idelchi/passcode/internal/verify"
)

// Suffix is appended to a file's name to name its container.
const Suffix = encryption.Suffix

// Errors returned by Session operations, for use with errors.Is.
var (
	// ErrNoKeyLoaded is returned by operations that need a key before one is generated or loaded.
	ErrNoKeyLoaded = encryption.ErrNoKeyLoaded
	// ErrInvalidKeyFileFormat is returned for a truncated or malformed key file.
	ErrInvalidKeyFileFormat = encryption.ErrInvalidKeyFileFormat
	// ErrInvalidPassword is returned when the password does not derive the stored key.
	ErrInvalidPassword = encryption.ErrInvalidPassword
	// ErrCipher is returned when the random source or a cipher primitive fails.
	ErrCipher = encryption.ErrCipher
	// ErrPadding is returned when decrypted data ends in invalid padding.
	ErrPadding = encryption.ErrPadding
	// ErrInvalidChunkSize is returned when the chunk size is zero, negative or too large.
	ErrInvalidChunkSize = encryption.ErrInvalidChunkSize
	// ErrNotContainer is returned when a path cannot be a container.
	ErrNotContainer = encryption.ErrNotContainer
	// ErrAccessDenied is returned when the operating system refuses access to a path.
	ErrAccessDenied = fileutil.ErrAccessDenied
	// ErrIO is returned for read, write and filesystem failures.
	ErrIO = fileutil.ErrIO
	// ErrVerificationFailed is returned when a new container does not decrypt to the original.
	ErrVerificationFailed = verify.ErrVerificationFailed
	// ErrTimeout is returned when a batch outlives its timeout.
	ErrTimeout = scheduler.ErrTimeout
	// ErrCancelled is returned when jobs were skipped because the batch was cancelled.
	ErrCancelled = scheduler.ErrCancelled
	// ErrTargetExists is returned when unpacking a bundle would replace an existing file.
	ErrTargetExists = archive.ErrTargetExists

	// ErrBundleExists is returned when the intermediate bundle path is taken.
	ErrBundleExists = errors.New("bundle path already exists")
)

// Progress receives a fraction in [0, 1].
type Progress func(fraction float64)

// VerificationResult carries both digests compared after encryption.
type VerificationResult = verify.Result

// Outcome describes a protect operation.
type Outcome struct {
	// Container is the path of the new container.
	Container string
	// Verification is the round-trip check of the container.
	Verification VerificationResult
	// Erased lists the plaintext paths that were securely erased.
	Erased []string
}

type encrypter interface {
	Encrypt(key *encryption.Key, path string, chunkSize int, opts ...encryption.Option) (string, error)
}

// Session holds the active key and the components that use it.
// It is safe for concurrent use.
type Session struct {
	keys      *encryption.KeyStore
	engine    *encryption.Engine
	encrypter encrypter
	verifier  *verify.Verifier
	logger    *slog.Logger
	keep      bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithKeep keeps originals after a verified encryption instead of erasing them.
func WithKeep(keep bool) Option {
	return func(s *Session) {
		s.keep = keep
	}
}

// New returns a Session without an active key.
func New(opts ...Option) *Session {
	s := &Session{keys: encryption.NewKeyStore()}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = logging.OrDiscard(s.logger)
	s.engine = encryption.NewEngine(s.logger)
	s.encrypter = s.engine
	s.verifier = verify.New(s.engine, s.logger)

	return s
}

// GenerateKey derives a new key from password, writes its key file to keyPath
// and makes it the active key.
func (s *Session) GenerateKey(keyPath string, password []byte) error {
	if _, err := s.keys.GenerateFile(keyPath, password); err != nil {
		return err
	}

	s.logger.Info("key generated", "path", keyPath)

	return nil
}

// LoadKey loads the key file at keyPath with password and makes it the active key.
// With a wrong password the active key stays as it was.
func (s *Session) LoadKey(keyPath string, password []byte) error {
	if _, err := s.keys.LoadFile(keyPath, password); err != nil {
		return err
	}

	s.logger.Debug("key loaded", "path", keyPath)

	return nil
}

// Key returns the active key.
func (s *Session) Key() (*encryption.Key, error) {
	return s.keys.Active()
}

// EncryptFile encrypts path into path+".lock" with the active key.
// It neither verifies nor erases; see Protect for that.
func (s *Session) EncryptFile(path string, chunkSize int) (string, error) {
	key, err := s.keys.Active()
	if err != nil {
		return "", err
	}

	return s.encrypter.Encrypt(key, path, chunkSize)
}

// DecryptFile decrypts container into output, or next to it without the suffix
// when output is empty. The container is deleted only on success.
func (s *Session) DecryptFile(container, output string) (string, error) {
	key, err := s.keys.Active()
	if err != nil {
		return "", err
	}

	return s.engine.DecryptFile(key, container, output)
}

// HashFile returns the base64 SHA-256 digest of path.
func (s *Session) HashFile(path string) (string, error) {
	return verify.HashFile(path)
}

// Protect encrypts path, verifies the container and, unless the session keeps
// originals, securely erases path. When verification fails the original and
// the container are both left in place.
func (s *Session) Protect(path string, chunkSize int, progress Progress) (Outcome, error) {
	key, err := s.keys.Active()
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := s.protect(key, path, chunkSize, progress)
	if err != nil {
		return outcome, err
	}

	if s.keep {
		return outcome, nil
	}

	if err := erase.File(path); err != nil {
		return outcome, fmt.Errorf("erasing %q: %w", path, err)
	}

	outcome.Erased = []string{path}

	return outcome, nil
}

// ProtectBundle bundles items into bundlePath, protects the bundle and, unless
// the session keeps originals, erases the bundled members. skip leaves paths out.
// bundlePath must not exist yet; the intermediate bundle is always erased.
func (s *Session) ProtectBundle(
	items []string,
	bundlePath string,
	chunkSize int,
	skip func(path string, d fs.DirEntry) bool,
	progress Progress,
) (_ Outcome, err error) {
	key, err := s.keys.Active()
	if err != nil {
		return Outcome{}, err
	}

	if err := encryption.ValidateChunkSize(chunkSize); err != nil {
		return Outcome{}, err
	}

	exists, err := fileutil.Exists(bundlePath)
	if err != nil {
		return Outcome{}, err
	}

	if exists {
		return Outcome{}, fmt.Errorf("%w: %q", ErrBundleExists, bundlePath)
	}

	manifest, err := archive.Bundle(bundlePath, items, skip)
	if err != nil {
		return Outcome{}, fmt.Errorf("bundling: %w", err)
	}

	defer func() {
		if eraseErr := erase.File(bundlePath); eraseErr != nil && err == nil {
			err = fmt.Errorf("erasing bundle: %w", eraseErr)
		}
	}()

	s.logger.Debug("bundled",
		"path", bundlePath,
		"files", manifest.Files,
		"dirs", manifest.Dirs,
		"bytes", manifest.Bytes,
	)

	outcome, err := s.protect(key, bundlePath, chunkSize, progress)
	if err != nil {
		return outcome, err
	}

	if s.keep {
		return outcome, nil
	}

	if err := erase.Members(manifest.Members); err != nil {
		return outcome, fmt.Errorf("erasing bundled items: %w", err)
	}

	outcome.Erased = manifest.Members

	return outcome, nil
}

func (s *Session) protect(key *encryption.Key, path string, chunkSize int, progress Progress) (Outcome, error) {
	container, err := s.encrypter.Encrypt(key, path, chunkSize, encryption.WithProgress(scaled(progress, 0, 0.5))) //nolint:mnd
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Container: container}

	outcome.Verification, err = s.verifier.Verify(key, path, container, scaled(progress, 0.5, 0.5)) //nolint:mnd
	if err != nil {
		s.logger.Warn("keeping original after failed verification", "path", path, "container", container)

		return outcome, err
	}

	return outcome, nil
}

// Restore decrypts container and, when the payload is a bundle written by
// ProtectBundle, unpacks it next to the decrypted bundle and deletes the bundle.
// Other zip files are restored as they are. Unpacking never replaces existing
// files; on conflict the decrypted bundle is left in place. It returns the restored paths.
func (s *Session) Restore(container, output string, progress Progress) ([]string, error) {
	key, err := s.keys.Active()
	if err != nil {
		return nil, err
	}

	plain, err := s.engine.DecryptFile(key, container, output, encryption.WithProgress(scaled(progress, 0, 1)))
	if err != nil {
		return nil, err
	}

	if !archive.IsBundle(plain) {
		return []string{plain}, nil
	}

	roots, err := archive.Unpack(plain, filepath.Dir(plain))
	if err != nil {
		return nil, fmt.Errorf("unpacking %q: %w", plain, err)
	}

	s.logger.Debug("unpacked bundle", "path", plain, "items", len(roots))

	return roots, nil
}

// scaled maps byte progress onto [offset, offset+span] of a Progress.
func scaled(progress Progress, offset, span float64) func(done, total int64) {
	if progress == nil {
		return func(int64, int64) {}
	}

	return func(done, total int64) {
		if total <= 0 {
			progress(offset + span)

			return
		}

		progress(offset + span*float64(done)/float64(total))
	}
}

// Package verify checks that a fresh container decrypts back to its original
// before the original is allowed to be destroyed.
package verify

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/idelchi/passcode/internal/encryption"
	"github.com/idelchi/passcode/internal/fileutil"
	"github.com/idelchi/passcode/internal/logging"
)

// hashBufferSize is the fixed read window used while hashing.
const hashBufferSize = 8 * 1024

// ErrVerificationFailed is returned when a container does not reproduce its original.
// Decryption failures during verification carry both this and the underlying error.
var ErrVerificationFailed = errors.New("verification failed")

// Result is the outcome of one verification.
type Result struct {
	Passed          bool
	OriginalDigest  string
	RoundTripDigest string
}

// Decrypter is the part of the engine a Verifier needs.
type Decrypter interface {
	DecryptTo(key *encryption.Key, container string, w io.Writer, opts ...encryption.Option) error
}

// Verifier round-trips containers through a temporary plaintext file.
type Verifier struct {
	engine Decrypter
	logger *slog.Logger
}

// New returns a Verifier that decrypts with engine.
func New(engine Decrypter, logger *slog.Logger) *Verifier {
	return &Verifier{engine: engine, logger: logging.OrDiscard(logger)}
}

// Verify decrypts container next to original, hashes both and compares the digests.
// The temporary plaintext is always removed. The container and the original are never touched.
// progress, if set, receives the decrypt progress.
func (v *Verifier) Verify(key *encryption.Key, original, container string, progress func(done, total int64)) (Result, error) {
	tmp, err := os.CreateTemp(filepath.Dir(original), ".verify-*")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrVerificationFailed, fileutil.Wrap("create temporary file for", original, err))
	}

	defer func() {
		tmp.Close()           //nolint:errcheck,gosec // may already be closed
		os.Remove(tmp.Name()) //nolint:errcheck,gosec // best-effort cleanup
	}()

	var opts []encryption.Option
	if progress != nil {
		opts = append(opts, encryption.WithProgress(progress))
	}

	if err := v.engine.DecryptTo(key, container, tmp, opts...); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrVerificationFailed, fileutil.Wrap("close", tmp.Name(), err))
	}

	originalDigest, err := HashFile(original)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	roundTripDigest, err := HashFile(tmp.Name())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	result := Result{
		Passed:          originalDigest == roundTripDigest,
		OriginalDigest:  originalDigest,
		RoundTripDigest: roundTripDigest,
	}

	if !result.Passed {
		v.logger.Warn("verification mismatch", "path", original, "container", container)

		return result, fmt.Errorf("%w: %q: digest %s, round trip %s",
			ErrVerificationFailed, original, originalDigest, roundTripDigest)
	}

	v.logger.Debug("verified", "path", original, "container", container, "digest", originalDigest)

	return result, nil
}

// HashFile returns the standard base64 encoding of the SHA-256 digest of path's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fileutil.Wrap("open", path, err)
	}
	defer f.Close()

	digest, err := HashReader(f)
	if err != nil {
		return "", fileutil.Wrap("read", path, err)
	}

	return digest, nil
}

// HashReader hashes r through a fixed-size buffer.
func HashReader(r io.Reader) (string, error) {
	hash := sha256.New()
	buf := make([]byte, hashBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return "", err
		}
	}

	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}

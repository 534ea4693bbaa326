package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the only salt length a key file may carry.
	SaltSize = 16
	// KeySize is the derived key length (AES-256).
	KeySize = 32
	// Iterations is the PBKDF2-HMAC-SHA256 work factor.
	Iterations = 100_000

	// maxKeyFileField bounds the declared key length so a damaged file cannot request huge allocations.
	maxKeyFileField = 1 << 10
)

// Key is a handle to derived key material.
// It is safe for concurrent use as long as Destroy is not called while in use.
type Key struct {
	material []byte
}

// NewKey wraps a copy of raw key bytes. The length must be KeySize.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrCipher, KeySize, len(raw))
	}

	material := make([]byte, KeySize)
	copy(material, raw)

	return &Key{material: material}, nil
}

// DeriveKey derives a key from password and salt with PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte) (*Key, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrCipher, SaltSize, len(salt))
	}

	return &Key{material: pbkdf2.Key(password, salt, Iterations, KeySize, sha256.New)}, nil
}

// Equal reports in constant time whether k holds the same material as raw.
func (k *Key) Equal(raw []byte) bool {
	return subtle.ConstantTimeCompare(k.material, raw) == 1
}

// Destroy zeroes the key material. The key must not be used afterward.
func (k *Key) Destroy() {
	clear(k.material)
}

// block builds a fresh AES block cipher. Every stream gets its own.
func (k *Key) block() (cipher.Block, error) {
	block, err := aes.NewCipher(k.material)
	if err != nil {
		return nil, fmt.Errorf("%w: creating cipher: %w", ErrCipher, err)
	}

	return block, nil
}

// KeyFile is the persisted form of a derived key.
//
// It stores the derived key bytes themselves rather than a separate verifier,
// so whoever holds the file can decrypt without the password.
type KeyFile struct {
	Salt []byte
	Key  []byte
}

// NewSalt draws a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("%w: generating salt: %w", ErrCipher, err)
	}

	return salt, nil
}

// MarshalBinary encodes the key file as saltLen | salt | keyLen | key, big-endian lengths.
func (f KeyFile) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	buf.Grow(4 + len(f.Salt) + 4 + len(f.Key))

	//nolint:gosec // lengths are bounded by SaltSize and KeySize
	binary.Write(&buf, binary.BigEndian, uint32(len(f.Salt))) //nolint:errcheck // bytes.Buffer writes do not fail
	buf.Write(f.Salt)
	binary.Write(&buf, binary.BigEndian, uint32(len(f.Key))) //nolint:errcheck,gosec
	buf.Write(f.Key)

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a key file, rejecting any salt length other than SaltSize.
func (f *KeyFile) UnmarshalBinary(data []byte) error {
	reader := bytes.NewReader(data)

	var saltLen uint32
	if err := binary.Read(reader, binary.BigEndian, &saltLen); err != nil {
		return fmt.Errorf("%w: reading salt length: %w", ErrInvalidKeyFileFormat, err)
	}

	if saltLen != SaltSize {
		return fmt.Errorf("%w: salt length %d, want %d", ErrInvalidKeyFileFormat, saltLen, SaltSize)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(reader, salt); err != nil {
		return fmt.Errorf("%w: reading salt: %w", ErrInvalidKeyFileFormat, err)
	}

	var keyLen uint32
	if err := binary.Read(reader, binary.BigEndian, &keyLen); err != nil {
		return fmt.Errorf("%w: reading key length: %w", ErrInvalidKeyFileFormat, err)
	}

	if keyLen > maxKeyFileField {
		return fmt.Errorf("%w: key length %d too large", ErrInvalidKeyFileFormat, keyLen)
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return fmt.Errorf("%w: reading key: %w", ErrInvalidKeyFileFormat, err)
	}

	if reader.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidKeyFileFormat, reader.Len())
	}

	f.Salt, f.Key = salt, key

	return nil
}

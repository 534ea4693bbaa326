package encryption

import (
	"crypto/aes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Suffix is appended to a file's path to name its container.
	Suffix = ".lock"
	// MaxChunkSize is the largest accepted chunk size.
	MaxChunkSize = 1 << 30
	// HeaderSize is the size of the container header: chunk size and IV.
	HeaderSize = 4 + aes.BlockSize

	// maxRecordSize bounds a single record; anything larger means the container is damaged.
	maxRecordSize = MaxChunkSize + 2*aes.BlockSize
)

// ContainerPath returns the container path for a plaintext path.
func ContainerPath(path string) string {
	return path + Suffix
}

// PlaintextPath strips the container suffix, or returns ErrNotContainer.
func PlaintextPath(container string) (string, error) {
	if !strings.HasSuffix(container, Suffix) || len(container) == len(Suffix) {
		return "", fmt.Errorf("%w: %q has no %q suffix", ErrNotContainer, container, Suffix)
	}

	return strings.TrimSuffix(container, Suffix), nil
}

// ValidateChunkSize rejects chunk sizes outside 1..MaxChunkSize.
func ValidateChunkSize(chunkSize int) error {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidChunkSize, chunkSize, MaxChunkSize)
	}

	return nil
}

func writeHeader(w io.Writer, chunkSize int, iv []byte) error {
	var header [HeaderSize]byte

	binary.BigEndian.PutUint32(header[:4], uint32(chunkSize)) //nolint:gosec // bounded by MaxChunkSize
	copy(header[4:], iv)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	return nil
}

func readHeader(r io.Reader) (chunkSize uint32, iv []byte, err error) {
	var header [HeaderSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("%w: header truncated", ErrPadding)
		}

		return 0, nil, fmt.Errorf("reading header: %w", err)
	}

	iv = make([]byte, aes.BlockSize)
	copy(iv, header[4:])

	return binary.BigEndian.Uint32(header[:4]), iv, nil
}

// writeRecord writes one length-prefixed record. Empty records are written too.
func writeRecord(w io.Writer, record []byte) error {
	var prefix [4]byte

	binary.BigEndian.PutUint32(prefix[:], uint32(len(record))) //nolint:gosec // bounded by maxRecordSize

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing record length: %w", err)
	}

	if _, err := w.Write(record); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	return nil
}

// readRecord reads the next record into buf, growing it as needed.
// It returns io.EOF only when the stream ends cleanly between records.
func readRecord(r io.Reader, buf []byte) ([]byte, error) {
	var prefix [4]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: record length truncated", ErrPadding)
		default:
			return nil, fmt.Errorf("reading record length: %w", err)
		}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxRecordSize {
		return nil, fmt.Errorf("%w: record of %d bytes exceeds limit", ErrPadding, size)
	}

	if cap(buf) < int(size) {
		buf = make([]byte, size)
	}

	buf = buf[:size]

	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: record truncated", ErrPadding)
		}

		return nil, fmt.Errorf("reading record: %w", err)
	}

	return buf, nil
}

package encryption

import (
	"bufio"
	"crypto/aes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/idelchi/passcode/internal/fileutil"
	"github.com/idelchi/passcode/internal/logging"
)

const (
	// defaultBufferSize sizes the buffered reader used while decrypting.
	defaultBufferSize = 32 * 1024

	containerPerm = 0o600
)

// Engine encrypts and decrypts files into the chunked container format.
// An Engine holds no key; every call takes one, so a single Engine may serve
// concurrent jobs.
type Engine struct {
	logger *slog.Logger
}

// NewEngine returns an Engine that logs to logger. A nil logger discards.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logging.OrDiscard(logger)}
}

// Option configures a single engine call.
type Option func(*options)

type options struct {
	progress func(done, total int64)
}

// WithProgress reports consumed input bytes against the input size.
func WithProgress(fn func(done, total int64)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

func collect(opts []Option) options {
	var o options

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Encrypt writes path's container to path+".lock" and returns the container path.
// The source is left untouched and a partial container is never visible.
func (e *Engine) Encrypt(key *Key, path string, chunkSize int, opts ...Option) (_ string, err error) {
	if key == nil {
		return "", ErrNoKeyLoaded
	}

	if err := ValidateChunkSize(chunkSize); err != nil {
		return "", err
	}

	start := time.Now()
	container := ContainerPath(path)

	src, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fileutil.Wrap("open", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fileutil.Wrap("stat", path, err)
	}

	tc, err := fileutil.NewTempContext(container)
	if err != nil {
		return "", err
	}

	defer tc.CleanupOnError(&err)

	o := collect(opts)

	if err = e.encryptStream(key, o.wrap(src, info.Size()), tc.TmpFile, chunkSize); err != nil {
		return "", classify(err, path)
	}

	if _, err = tc.Commit(containerPerm); err != nil {
		return "", err
	}

	e.logger.Debug("encrypted",
		"path", path,
		"container", container,
		"chunk_size", chunkSize,
		"elapsed", time.Since(start),
	)

	return container, nil
}

// EncryptStream encrypts r into w as a container with the given chunk size.
func (e *Engine) EncryptStream(key *Key, r io.Reader, w io.Writer, chunkSize int) error {
	if key == nil {
		return ErrNoKeyLoaded
	}

	if err := ValidateChunkSize(chunkSize); err != nil {
		return err
	}

	return e.encryptStream(key, r, w, chunkSize)
}

func (e *Engine) encryptStream(key *Key, r io.Reader, w io.Writer, chunkSize int) error {
	block, err := key.block()
	if err != nil {
		return err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return fmt.Errorf("%w: generating IV: %w", ErrCipher, err)
	}

	if err := writeHeader(w, chunkSize, iv); err != nil {
		return err
	}

	enc := newCBCEncrypter(block, iv)
	buf := make([]byte, chunkSize)

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := writeRecord(w, enc.Update(buf[:n])); err != nil {
				return err
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}

		if readErr != nil {
			return fmt.Errorf("reading input: %w", readErr)
		}
	}

	return writeRecord(w, enc.Final())
}

// DecryptFile decrypts container into output and deletes the container on success.
// An empty output strips the ".lock" suffix from container.
// On any failure the container is kept and no output is left behind.
func (e *Engine) DecryptFile(key *Key, container, output string, opts ...Option) (_ string, err error) {
	if key == nil {
		return "", ErrNoKeyLoaded
	}

	if output == "" {
		if output, err = PlaintextPath(container); err != nil {
			return "", err
		}
	}

	start := time.Now()

	tc, err := fileutil.NewTempContext(output)
	if err != nil {
		return "", err
	}

	defer tc.CleanupOnError(&err)

	if err = e.decryptTo(key, container, tc.TmpFile, opts); err != nil {
		return "", err
	}

	if _, err = tc.Commit(containerPerm); err != nil {
		return "", err
	}

	if err := os.Remove(container); err != nil {
		return output, fileutil.Wrap("remove container", container, err)
	}

	e.logger.Debug("decrypted",
		"container", container,
		"path", output,
		"elapsed", time.Since(start),
	)

	return output, nil
}

// DecryptTo decrypts container into w. The container is never deleted.
func (e *Engine) DecryptTo(key *Key, container string, w io.Writer, opts ...Option) error {
	if key == nil {
		return ErrNoKeyLoaded
	}

	return e.decryptTo(key, container, w, opts)
}

func (e *Engine) decryptTo(key *Key, container string, w io.Writer, opts []Option) error {
	src, err := os.Open(filepath.Clean(container))
	if err != nil {
		return fileutil.Wrap("open", container, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fileutil.Wrap("stat", container, err)
	}

	o := collect(opts)

	if err := e.decryptStream(key, o.wrap(src, info.Size()), w); err != nil {
		return classify(err, container)
	}

	return nil
}

// DecryptStream decrypts a container read from r into w.
func (e *Engine) DecryptStream(key *Key, r io.Reader, w io.Writer) error {
	if key == nil {
		return ErrNoKeyLoaded
	}

	return e.decryptStream(key, r, w)
}

func (e *Engine) decryptStream(key *Key, r io.Reader, w io.Writer) error {
	block, err := key.block()
	if err != nil {
		return err
	}

	reader := bufio.NewReaderSize(r, defaultBufferSize)

	chunkSize, iv, err := readHeader(reader)
	if err != nil {
		return err
	}

	e.logger.Debug("container header", "chunk_size", chunkSize)

	dec := newCBCDecrypter(block, iv)

	var record []byte

	for {
		record, err = readRecord(reader, record)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return err
		}

		if plain := dec.Update(record); len(plain) > 0 {
			if _, err := w.Write(plain); err != nil {
				return fmt.Errorf("writing plaintext: %w", err)
			}
		}
	}

	last, err := dec.Final()
	if err != nil {
		return err
	}

	if _, err := w.Write(last); err != nil {
		return fmt.Errorf("writing plaintext: %w", err)
	}

	return nil
}

// classify tags untyped failures as I/O errors on path, leaving cipher and
// padding errors as they are.
func classify(err error, path string) error {
	switch {
	case errors.Is(err, ErrPadding),
		errors.Is(err, ErrCipher),
		errors.Is(err, fileutil.ErrIO),
		errors.Is(err, fileutil.ErrAccessDenied):
		return err
	default:
		return fileutil.Wrap("process", path, err)
	}
}

// progressReader counts bytes read and reports them.
type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    func(done, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}

	return n, err
}

func (o options) wrap(r io.Reader, total int64) io.Reader {
	if o.progress == nil {
		return r
	}

	return &progressReader{r: r, total: total, fn: o.progress}
}

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// cbcEncrypter is a streaming AES-CBC encrypter with PKCS#7 padding.
// Update emits every complete block and buffers the remainder (< one block).
type cbcEncrypter struct {
	mode    cipher.BlockMode
	pending []byte
}

func newCBCEncrypter(block cipher.Block, iv []byte) *cbcEncrypter {
	return &cbcEncrypter{
		mode:    cipher.NewCBCEncrypter(block, iv),
		pending: make([]byte, 0, aes.BlockSize),
	}
}

// Update encrypts as many whole blocks of pending+src as possible.
// The result may be empty.
func (c *cbcEncrypter) Update(src []byte) []byte {
	total := len(c.pending) + len(src)
	n := total - total%aes.BlockSize

	out := make([]byte, n)
	if n == 0 {
		c.pending = append(c.pending, src...)

		return out
	}

	offset := 0

	if len(c.pending) > 0 {
		need := aes.BlockSize - len(c.pending)
		c.pending = append(c.pending, src[:need]...)
		c.mode.CryptBlocks(out[:aes.BlockSize], c.pending)
		src = src[need:]
		offset = aes.BlockSize
		c.pending = c.pending[:0]
	}

	rest := n - offset
	c.mode.CryptBlocks(out[offset:], src[:rest])
	c.pending = append(c.pending, src[rest:]...)

	return out
}

// Final pads the buffered remainder and encrypts it. It always yields exactly one block.
func (c *cbcEncrypter) Final() []byte {
	padded := pkcs7Pad(append([]byte(nil), c.pending...), aes.BlockSize)
	c.pending = c.pending[:0]

	out := make([]byte, len(padded))
	c.mode.CryptBlocks(out, padded)

	return out
}

// cbcDecrypter is the streaming counterpart of cbcEncrypter.
// Update always holds back the last whole block so Final can strip the padding.
type cbcDecrypter struct {
	mode    cipher.BlockMode
	pending []byte
}

func newCBCDecrypter(block cipher.Block, iv []byte) *cbcDecrypter {
	return &cbcDecrypter{
		mode:    cipher.NewCBCDecrypter(block, iv),
		pending: make([]byte, 0, aes.BlockSize),
	}
}

// Update decrypts whole blocks of pending+src, keeping between one and
// BlockSize bytes back. The result may be empty.
func (d *cbcDecrypter) Update(src []byte) []byte {
	total := len(d.pending) + len(src)

	keep := total % aes.BlockSize
	if keep == 0 {
		keep = aes.BlockSize
	}

	n := total - keep
	if n <= 0 {
		d.pending = append(d.pending, src...)

		return nil
	}

	out := make([]byte, n)
	offset := 0

	if len(d.pending) > 0 {
		need := aes.BlockSize - len(d.pending)
		d.pending = append(d.pending, src[:need]...)
		d.mode.CryptBlocks(out[:aes.BlockSize], d.pending)
		src = src[need:]
		offset = aes.BlockSize
		d.pending = d.pending[:0]
	}

	rest := n - offset
	d.mode.CryptBlocks(out[offset:], src[:rest])
	d.pending = append(d.pending, src[rest:]...)

	return out
}

// Final decrypts the held-back block and removes its padding.
func (d *cbcDecrypter) Final() ([]byte, error) {
	if len(d.pending) != aes.BlockSize {
		return nil, fmt.Errorf("%w: %d trailing bytes do not form a final block", ErrPadding, len(d.pending))
	}

	last := make([]byte, aes.BlockSize)
	d.mode.CryptBlocks(last, d.pending)
	d.pending = d.pending[:0]

	return pkcs7Unpad(last)
}

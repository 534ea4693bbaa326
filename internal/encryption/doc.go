// Package encryption derives password keys and streams files through the
// chunked AES-256-CBC container format.
//
// A container is
//
//	uint32 chunkSize | iv[16] | repeated(uint32 len | ciphertext[len])
//
// with big-endian integers. Each record holds what the cipher emitted for one
// chunk window of plaintext, possibly nothing; the last record holds the
// padded final block. Containers are not authenticated, so callers are
// expected to verify a fresh container before discarding its plaintext.
//
// Key files hold the salt and the derived key bytes themselves. Anyone who
// can read a key file can decrypt without knowing the password, so key files
// are written with owner-only permissions and must be kept private.
package encryption

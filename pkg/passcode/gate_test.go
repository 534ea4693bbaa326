package passcode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/passcode/internal/encryption"
)

// corruptingEncrypter damages every container it produces.
type corruptingEncrypter struct {
	inner encrypter
}

func (c corruptingEncrypter) Encrypt(key *encryption.Key, path string, chunkSize int, opts ...encryption.Option) (string, error) {
	container, err := c.inner.Encrypt(key, path, chunkSize, opts...)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(container)
	if err != nil {
		return "", err
	}

	raw[encryption.HeaderSize+4] ^= 0x01

	return container, os.WriteFile(container, raw, 0o600)
}

func TestVerificationGateKeepsOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	session := New()
	session.encrypter = corruptingEncrypter{inner: session.engine}

	require.NoError(t, session.GenerateKey(filepath.Join(dir, "k"), []byte("pw")))

	path := filepath.Join(dir, "precious.txt")
	data := []byte("the only copy of something important, long enough for two blocks")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	outcome, err := session.Protect(path, 4096, nil)
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.False(t, outcome.Verification.Passed)
	assert.Empty(t, outcome.Erased)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got, "original must survive a failed verification")

	_, err = os.Stat(outcome.Container)
	require.NoError(t, err, "container is kept for inspection")
}

package encryption

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/idelchi/passcode/internal/fileutil"
)

// keyFilePerm keeps key files private to the owner.
const keyFilePerm = 0o600

// KeyStore holds the single active key of a session.
// The active key is replaced only by a successful Generate or Load.
type KeyStore struct {
	mu     sync.RWMutex
	active *Key
}

// NewKeyStore returns an empty KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{}
}

// Generate derives a key from password and a fresh salt, makes it active
// and returns it together with the encoded key file.
func (s *KeyStore) Generate(password []byte) (*Key, []byte, error) {
	key, data, err := generate(password)
	if err != nil {
		return nil, nil, err
	}

	s.setActive(key)

	return key, data, nil
}

// Load re-derives the key stored in keyFile from password.
// On a mismatch it returns ErrInvalidPassword and the active key is left as it was.
func (s *KeyStore) Load(password, keyFile []byte) (*Key, error) {
	var file KeyFile
	if err := file.UnmarshalBinary(keyFile); err != nil {
		return nil, err
	}

	key, err := DeriveKey(password, file.Salt)
	if err != nil {
		return nil, err
	}

	if !key.Equal(file.Key) {
		key.Destroy()

		return nil, ErrInvalidPassword
	}

	s.setActive(key)

	return key, nil
}

// GenerateFile generates a key and writes its key file atomically to path.
// The key becomes active only once the file is in place.
func (s *KeyStore) GenerateFile(path string, password []byte) (_ *Key, err error) {
	key, data, err := generate(password)
	if err != nil {
		return nil, err
	}

	tc, err := fileutil.NewTempContext(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer tc.CleanupOnError(&err)

	if _, err = tc.TmpFile.Write(data); err != nil {
		return nil, fileutil.Wrap("write", tc.TmpName, err)
	}

	if _, err = tc.Commit(keyFilePerm); err != nil {
		return nil, err
	}

	s.setActive(key)

	return key, nil
}

// LoadFile reads the key file at path and loads it with password.
func (s *KeyStore) LoadFile(path string, password []byte) (*Key, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fileutil.Wrap("read key file", path, err)
	}

	key, err := s.Load(password, data)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}

	return key, nil
}

// Active returns the active key or ErrNoKeyLoaded.
func (s *KeyStore) Active() (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil, ErrNoKeyLoaded
	}

	return s.active, nil
}

// Clear forgets the active key. The key itself is not zeroed,
// since batches started earlier may still hold it.
func (s *KeyStore) Clear() {
	s.setActive(nil)
}

func (s *KeyStore) setActive(key *Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = key
}

func generate(password []byte) (*Key, []byte, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, nil, err
	}

	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, nil, err
	}

	data, err := KeyFile{Salt: salt, Key: key.material}.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoding key file: %w", ErrCipher, err)
	}

	return key, data, nil
}

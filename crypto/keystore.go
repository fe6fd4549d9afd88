package crypto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"
)

var (
	// ErrKeystorePath is returned when no keystore file is named.
	ErrKeystorePath = errors.New("crypto: keystore path required")
	// ErrWrongPassphrase is returned when a keystore does not decrypt.
	ErrWrongPassphrase = errors.New("crypto: keystore passphrase does not match")
	// ErrKeystoreMismatch is returned when the decrypted key does not control
	// the address recorded in the file.
	ErrKeystoreMismatch = errors.New("crypto: keystore address does not match its key")
)

// SaveToKeystore writes key as a scrypt-encrypted v3 keystore. The file is
// staged next to path and renamed into place with 0600 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil || key.PrivateKey == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return ErrKeystorePath
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("crypto: keystore id: %w", err)
	}
	blob, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    key.PubKey().Address().Raw(),
		PrivateKey: key.PrivateKey,
	}, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt keystore: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	staged, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return err
	}
	defer os.Remove(staged.Name())
	if _, err := staged.Write(blob); err != nil {
		staged.Close()
		return err
	}
	if err := staged.Chmod(0o600); err != nil {
		staged.Close()
		return err
	}
	if err := staged.Close(); err != nil {
		return err
	}
	return os.Rename(staged.Name(), path)
}

// LoadFromKeystore decrypts the key stored at path.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, ErrKeystorePath
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(blob, passphrase)
	if errors.Is(err, keystore.ErrDecrypt) {
		return nil, fmt.Errorf("%w: %s", ErrWrongPassphrase, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("crypto: read keystore %s: %w", filepath.Base(path), err)
	}
	key := &PrivateKey{decrypted.PrivateKey}
	if key.PubKey().Address().Raw() != decrypted.Address {
		return nil, ErrKeystoreMismatch
	}
	return key, nil
}

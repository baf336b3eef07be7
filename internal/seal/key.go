package seal

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/pagemark/pagemark/internal/errors"
)

// KDF parameters. The work factor is fixed and documented: changing it
// silently would make existing sealed data undecryptable under a
// freshly-derived key.
const (
	kdfIterations = 210_000
	keySize       = 32
	saltSize      = 16
)

// saltFile is the per-user salt filename under the base directory.
const saltFile = "salt"

// KeyContext holds the symmetric key for one session. It is constructed on
// login, lives in memory only, and is zeroed on logout.
type KeyContext struct {
	key []byte
}

// Derive builds a KeyContext from a user secret and a per-user salt using
// PBKDF2-SHA-256 with the fixed work factor.
func Derive(secret, salt []byte) *KeyContext {
	return &KeyContext{key: pbkdf2.Key(secret, salt, kdfIterations, keySize, sha256.New)}
}

// Key returns the derived key, or an error after logout.
func (kc *KeyContext) Key() ([]byte, error) {
	if kc == nil || len(kc.key) == 0 {
		return nil, apperrors.NewInternal(errors.New("no session key: not logged in"))
	}
	return kc.key, nil
}

// Zero wipes the derived key. Called on logout.
func (kc *KeyContext) Zero() {
	for i := range kc.key {
		kc.key[i] = 0
	}
	kc.key = nil
}

// saltDomain separates the salt derivation from any other use of the hash.
const saltDomain = "pagemark/salt/v1"

// LoadOrCreateSalt returns the per-user KDF salt, caching it under baseDir.
// The salt is derived deterministically from the user id so every device of
// the same user arrives at the same key: a KDF salt only needs to be unique
// per user, not secret or random. A per-device salt would make every
// cross-device pull fail to decrypt.
func LoadOrCreateSalt(baseDir, userID string) ([]byte, error) {
	if userID == "" {
		return nil, apperrors.NewValidation("user id is required to derive the salt")
	}

	path := filepath.Join(baseDir, saltFile)
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != saltSize {
			return nil, apperrors.NewInternal(errors.New("salt file is corrupt"))
		}
		return salt, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NewInternal(err)
	}

	sum := sha256.Sum256([]byte(saltDomain + "|" + userID))
	salt = sum[:saltSize]
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return salt, nil
}

// Package seal implements envelope encryption for note fields.
// It has no knowledge of storage or sync: callers hand it plaintext and a
// session key context and get back a self-describing sealed envelope.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	apperrors "github.com/pagemark/pagemark/internal/errors"
)

// Algorithm is the fixed AEAD cipher identifier carried in every envelope.
const Algorithm = "AES-256-GCM"

// ivSize is the GCM nonce size in bytes.
const ivSize = 12

// Envelope is ciphertext stored alongside its IV and algorithm tag as a
// self-describing unit.
type Envelope struct {
	Encrypted []byte `json:"encrypted"`
	IV        []byte `json:"iv"`
	Algorithm string `json:"algorithm"`
}

// Seal encrypts plaintext under the session key. A fresh random IV is
// generated on every call; IV reuse under the same key breaks GCM, so the IV
// is never caller-supplied.
func Seal(plaintext []byte, kc *KeyContext) (*Envelope, error) {
	key, err := kc.Key()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	return &Envelope{
		Encrypted: gcm.Seal(nil, iv, plaintext, nil),
		IV:        iv,
		Algorithm: Algorithm,
	}, nil
}

// Open decrypts an envelope. It fails with DECRYPTION_FAILED when the
// tag/IV/key combination does not authenticate or the envelope is malformed;
// callers must treat that as per-note and non-fatal.
func Open(env *Envelope, kc *KeyContext) ([]byte, error) {
	if env == nil || env.Algorithm != Algorithm || len(env.IV) != ivSize {
		return nil, apperrors.NewDecryptionFailed("")
	}

	key, err := kc.Key()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	plaintext, err := gcm.Open(nil, env.IV, env.Encrypted, nil)
	if err != nil {
		return nil, apperrors.NewDecryptionFailed("")
	}
	return plaintext, nil
}

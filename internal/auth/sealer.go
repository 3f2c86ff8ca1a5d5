package auth

// TOKEN SEALING:
// Session rows hold live refresh tokens. Anyone who can read the database
// file could otherwise sign in as every persisted user, so tokens are
// encrypted at rest with NaCl secretbox (XSalsa20 + Poly1305).
//
// Output format (base64url, no padding):
//
//	<24-byte random nonce><ciphertext + 16-byte tag>
//
// The key is derived from the configured secret with Argon2id so short
// human-chosen secrets are not trivially brute-forced from a stolen file.

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// kdfSalt is fixed: the derived key must be reproducible across restarts
// from the secret alone.
var kdfSalt = []byte("gitviz/session-sealer/v1")

// ErrUnseal is returned when a sealed value is corrupt or was sealed with
// another key.
var ErrUnseal = errors.New("auth: sealed value cannot be opened")

// Sealer encrypts and authenticates short secrets.
type Sealer struct {
	key [keySize]byte
}

// NewSealer derives a sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("auth: sealer secret must not be empty")
	}
	s := &Sealer{}
	copy(s.key[:], argon2.IDKey([]byte(secret), kdfSalt, 1, 19*1024, 1, keySize))
	return s, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("auth: generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnseal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(plain), nil
}

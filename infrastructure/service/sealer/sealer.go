// Package sealer encrypts session material at rest and derives the
// purpose-specific keys used by the portal from SESSION_SECRET.
package sealer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24

	PurposeCookie  = "portal/session-cookie"
	PurposeStorage = "portal/session-storage"
)

var ErrOpenFailed = errors.New("sealer: ciphertext could not be opened")

// DeriveKey expands secret into a 32-byte key bound to purpose.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("sealer: empty secret")
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("sealer: derive key: %w", err)
	}
	return key, nil
}

// Sealer wraps values with NaCl secretbox.
type Sealer struct {
	key [keySize]byte
}

func New(secret string) (*Sealer, error) {
	raw, err := DeriveKey(secret, PurposeStorage)
	if err != nil {
		return nil, err
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal returns base64(nonce || box).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("sealer: nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return nil, ErrOpenFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// ErrUndecryptable is returned when a stored credential cannot be decrypted,
// typically after a master key rotation without re-encryption.
var ErrUndecryptable = errors.New("auth: credential undecryptable")

// KeyCipher encrypts owner API keys at rest with AES-256-GCM. The nonce is
// prepended to the ciphertext.
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher derives a 256-bit key from the configured master secret.
func NewKeyCipher(masterSecret string) (*KeyCipher, error) {
	if masterSecret == "" {
		return nil, errors.New("auth: master secret is required")
	}
	key := sha256.Sum256([]byte(masterSecret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create GCM: %w", err)
	}
	return &KeyCipher{aead: aead}, nil
}

// Encrypt seals a plaintext API key.
func (c *KeyCipher) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("auth: failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a sealed API key.
func (c *KeyCipher) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return "", ErrUndecryptable
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrUndecryptable
	}
	return string(plaintext), nil
}

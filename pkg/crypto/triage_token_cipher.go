package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// TokenCipher seals mailbox credentials at rest with AES-256-GCM.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher derives a 32-byte key with SHA-256 when the secret has
// a different length.
func NewTokenCipher(secret []byte) (*TokenCipher, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption secret is empty")
	}
	key := secret
	if len(key) != 32 {
		sum := sha256.Sum256(secret)
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenCipher{gcm: gcm}, nil
}

// Seal returns base64(nonce || ciphertext).
func (c *TokenCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (c *TokenCipher) Open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize+c.gcm.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := c.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// OpenOrPlain tolerates credentials written before encryption was enabled.
func (c *TokenCipher) OpenOrPlain(value string) string {
	if c == nil || value == "" {
		return value
	}
	plain, err := c.Open(value)
	if err != nil {
		return value
	}
	return plain
}

// Package fieldcrypt is the field-level symmetric encryption used for personal
// columns (national id, phone) of the members table.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed 密文格式错误
var ErrMalformed = errors.New("malformed ciphertext")

// Cipher encrypts and decrypts single column values.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// New returns an AES-GCM cipher for a hex key, or Plain when the key is empty.
func New(hexKey string) (Cipher, error) {
	if hexKey == "" {
		return Plain{}, nil
	}
	return NewAESGCM(hexKey)
}

// Plain stores values unencrypted.
type Plain struct{}

func (Plain) Encrypt(plain string) (string, error)      { return plain, nil }
func (Plain) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

// AESGCM base64(nonce || sealed) encoding.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM key must decode to 16, 24 or 32 bytes.
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid field key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid field key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init gcm: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

func (c *AESGCM) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESGCM) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plain), nil
}

// Package cryptox encrypts sensitive expense fields at rest.
//
// Values are stored as base64(nonce || AES-GCM ciphertext) with a fresh
// 12-byte random nonce per call.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const nonceSize = 12

var (
	ErrInvalidKey = errors.New("cryptox: key must be 16, 24 or 32 bytes")
	ErrMalformed  = errors.New("cryptox: malformed ciphertext")
	ErrDecrypt    = errors.New("cryptox: authentication failed")
)

// Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

func New(key []byte) (*Cipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromBase64 accepts the key in the form it is kept in configuration.
func NewFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", ErrInvalidKey)
	}
	return New(key)
}

func (c *Cipher) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt returns nil for an empty input.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}
	if len(raw) < nonceSize+c.aead.Overhead() {
		return nil, ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (c *Cipher) EncryptString(s string) (string, error) {
	return c.Encrypt([]byte(s))
}

func (c *Cipher) DecryptString(s string) (string, error) {
	plain, err := c.Decrypt(s)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (c *Cipher) EncryptJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return c.Encrypt(data)
}

// DecryptJSON leaves v untouched when s is empty.
func (c *Cipher) DecryptJSON(s string, v any) error {
	plain, err := c.Decrypt(s)
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return nil
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

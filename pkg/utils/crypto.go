package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const KeySize = 32 // AES-256

// Sealed is an AES-GCM ciphertext with its nonce and authentication tag kept apart.
type Sealed struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// ParseKey accepts a 32-byte key encoded as hex (with or without 0x) or base64.
func ParseKey(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, errors.New("encryption key cannot be empty")
	}

	if b, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	return nil, fmt.Errorf("encryption key must decode to %d bytes (hex or base64)", KeySize)
}

func Seal(key, plaintext, additionalData []byte) (*Sealed, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := gcm.Seal(nil, nonce, plaintext, additionalData)
	split := len(out) - gcm.Overhead()
	return &Sealed{
		Nonce:      nonce,
		Tag:        out[split:],
		Ciphertext: out[:split],
	}, nil
}

func Open(key []byte, s *Sealed, additionalData []byte) ([]byte, error) {
	if s == nil || len(s.Ciphertext) == 0 {
		return nil, errors.New("ciphertext cannot be empty")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}
	if len(s.Tag) != gcm.Overhead() {
		return nil, errors.New("invalid tag size")
	}

	buf := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := gcm.Open(nil, s.Nonce, buf, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes long", KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Package broker provides provider adapter plumbing and session encryption.
package broker

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size of the AES-256 key in bytes.
	KeySize = 32
	// SecretSize is the size of a generated per-install secret in bytes.
	SecretSize = 32
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be at least 32 characters")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor seals and opens session blobs.
type Encryptor struct {
	masterKey []byte
}

// NewEncryptor creates a new Encryptor with the given master secret.
// The secret should be at least 32 characters for security.
func NewEncryptor(secret string) (*Encryptor, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidKey
	}
	hash := sha256.Sum256([]byte(secret))
	return &Encryptor{masterKey: hash[:]}, nil
}

// LoadOrCreateSecret reads the per-install secret at path, generating and
// persisting a random one on first use.
func LoadOrCreateSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(data))
		if len(secret) < 32 {
			return "", fmt.Errorf("install key %s: %w", path, ErrInvalidKey)
		}
		return secret, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading install key: %w", err)
	}

	raw := make([]byte, SecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating install key: %w", err)
	}
	secret := hex.EncodeToString(raw)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		return "", fmt.Errorf("writing install key: %w", err)
	}
	return secret, nil
}

// DeriveKey derives a purpose-specific encryption key using PBKDF2.
func (e *Encryptor) DeriveKey(purpose string) []byte {
	return pbkdf2.Key(e.masterKey, []byte("purpose:"+purpose), PBKDF2Iterations, KeySize, sha256.New)
}

// Seal encrypts plaintext with AES-256-GCM and returns nonce||ciphertext.
func (e *Encryptor) Seal(plaintext []byte, purpose string) ([]byte, error) {
	gcm, err := e.gcm(purpose)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (e *Encryptor) Open(blob []byte, purpose string) ([]byte, error) {
	gcm, err := e.gcm(purpose)
	if err != nil {
		return nil, err
	}

	if len(blob) <= gcm.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (e *Encryptor) gcm(purpose string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.DeriveKey(purpose))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

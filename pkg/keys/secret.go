// Package keys holds the custody engine's key material: the secret provider
// that releases the master mnemonic, the process-wide Seed and the HD
// derivation paths for every supported chain.
package keys

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeySize = 32
	sealKeyInfo   = "custody-mnemonic-seal-v1"
)

var (
	ErrMissingSecret  = errors.New("secret not configured")
	ErrInvalidMaster  = errors.New("master key must be 32 bytes (AES-256)")
	ErrDecryptFailure = errors.New("failed to decrypt secret")
)

// SecretProvider releases the master mnemonic. It is called once at startup.
type SecretProvider interface {
	Mnemonic(ctx context.Context) (string, error)
}

// CipherSecretProvider decrypts an AES-256-GCM sealed mnemonic.
type CipherSecretProvider struct {
	encrypted string
	masterKey []byte
}

// NewCipherSecretProvider creates a provider for a base64 blob of nonce || ciphertext || tag.
func NewCipherSecretProvider(encrypted string, masterKey []byte) (*CipherSecretProvider, error) {
	if len(masterKey) != masterKeySize {
		return nil, ErrInvalidMaster
	}
	if strings.TrimSpace(encrypted) == "" {
		return nil, fmt.Errorf("%w: encrypted mnemonic", ErrMissingSecret)
	}
	return &CipherSecretProvider{encrypted: encrypted, masterKey: masterKey}, nil
}

// Mnemonic decrypts and returns the mnemonic.
func (p *CipherSecretProvider) Mnemonic(_ context.Context) (string, error) {
	plain, err := Decrypt(p.encrypted, p.masterKey)
	if err != nil {
		return "", err
	}
	defer wipe(plain)
	return string(plain), nil
}

// EnvSecretProvider reads a plaintext mnemonic from an environment variable.
// Only for development networks.
type EnvSecretProvider struct {
	name string
}

// NewEnvSecretProvider creates a provider reading the variable name.
func NewEnvSecretProvider(name string) *EnvSecretProvider {
	return &EnvSecretProvider{name: name}
}

// Mnemonic returns the variable's value.
func (p *EnvSecretProvider) Mnemonic(_ context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(p.name))
	if v == "" {
		return "", fmt.Errorf("%w: $%s is empty", ErrMissingSecret, p.name)
	}
	return v, nil
}

// MasterKeyFromEnv reads a base64 encoded 32-byte key from the variable name.
func MasterKeyFromEnv(name string) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("%w: $%s is empty", ErrMissingSecret, name)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) != masterKeySize {
		return nil, ErrInvalidMaster
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under a key expanded from
// masterKey with HKDF-SHA256. The result is base64 of nonce || ciphertext || tag.
func Encrypt(plaintext, masterKey []byte) (string, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(encrypted string, masterKey []byte) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encrypted))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptFailure)
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return plaintext, nil
}

func newGCM(masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) != masterKeySize {
		return nil, ErrInvalidMaster
	}
	sealKey := make([]byte, masterKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealKeyInfo)), sealKey); err != nil {
		return nil, fmt.Errorf("failed to derive seal key: %w", err)
	}
	defer wipe(sealKey)

	block, err := aes.NewCipher(sealKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Package secrets seals small values such as provider API keys before they
// are written to the settings table.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyKey is returned by NewManager when no encryption key is configured.
var ErrEmptyKey = errors.New("encryption key is empty")

type Manager struct {
	aead cipher.AEAD
}

// NewManager derives an AES-256-GCM key from encryptionKey.
func NewManager(encryptionKey string) (*Manager, error) {
	if encryptionKey == "" {
		return nil, ErrEmptyKey
	}
	sum := sha256.Sum256([]byte(encryptionKey))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Manager{aead: aead}, nil
}

// Encrypt returns hex(nonce || ciphertext).
func (m *Manager) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(m.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (m *Manager) Decrypt(encrypted string) (string, error) {
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode hex: %w", err)
	}
	n := m.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := m.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// SettingsStore is the key/value table sealed values live in.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Vault stores encrypted values in a SettingsStore under "secret.<name>".
type Vault struct {
	m     *Manager
	store SettingsStore
}

func NewVault(m *Manager, store SettingsStore) *Vault {
	return &Vault{m: m, store: store}
}

func settingKey(name string) string { return "secret." + name }

func (v *Vault) Put(ctx context.Context, name, value string) error {
	sealed, err := v.m.Encrypt(value)
	if err != nil {
		return err
	}
	return v.store.SetSetting(ctx, settingKey(name), sealed)
}

// Get returns "" with no error when name was never stored.
func (v *Vault) Get(ctx context.Context, name string) (string, error) {
	sealed, err := v.store.GetSetting(ctx, settingKey(name))
	if err != nil || sealed == "" {
		return "", err
	}
	plain, err := v.m.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("open secret %s: %w", name, err)
	}
	return plain, nil
}

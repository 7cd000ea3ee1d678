package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func mustManager(t *testing.T, key string) *Manager {
	t.Helper()
	m, err := NewManager(key)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := mustManager(t, "test-key")

	for _, plaintext := range []string{"", "sk-ant-api03-xyz", strings.Repeat("k", 512), "café"} {
		encrypted, err := m.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		decrypted, err := m.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip = %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	m := mustManager(t, "test-key")
	a, _ := m.Encrypt("same")
	b, _ := m.Encrypt("same")
	if a == b {
		t.Error("two encryptions of the same value should differ")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	sealed, err := mustManager(t, "key-a").Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mustManager(t, "key-b").Decrypt(sealed); err == nil {
		t.Error("expected error decrypting with the wrong key")
	}
}

func TestDecryptMalformed(t *testing.T) {
	m := mustManager(t, "test-key")
	for _, in := range []string{"not-hex", "abcd"} {
		if _, err := m.Decrypt(in); err == nil {
			t.Errorf("Decrypt(%q) should fail", in)
		}
	}
}

func TestNewManagerEmptyKey(t *testing.T) {
	if _, err := NewManager(""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	k, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(k) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(k))
	}
}

type memSettings map[string]string

func (m memSettings) GetSetting(_ context.Context, key string) (string, error) {
	return m[key], nil
}

func (m memSettings) SetSetting(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestVault(t *testing.T) {
	store := memSettings{}
	v := NewVault(mustManager(t, "vault-key"), store)
	ctx := context.Background()

	got, err := v.Get(ctx, "anthropic_api_key")
	if err != nil || got != "" {
		t.Fatalf("missing secret = %q, %v", got, err)
	}

	if err := v.Put(ctx, "anthropic_api_key", "sk-live"); err != nil {
		t.Fatal(err)
	}
	if raw := store["secret.anthropic_api_key"]; raw == "" || strings.Contains(raw, "sk-live") {
		t.Fatalf("stored value should be sealed, got %q", raw)
	}
	got, err = v.Get(ctx, "anthropic_api_key")
	if err != nil || got != "sk-live" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

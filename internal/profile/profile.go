// Package profile manages the isolated state directory and initial
// configuration document of one tenant's runtime profile.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anyclaw/anyclaw/internal/logger"
)

const (
	// ConfigFile is the document the runtime reads inside each state dir.
	ConfigFile = "openclaw.json"

	runtimeVersion   = "2026.2.14"
	anthropicBaseURL = "https://api.anthropic.com"
	defaultModelName = "Claude Sonnet"
	ackEmoji         = "👀"
)

// KeyResolver supplies the model-provider credential written into new
// profiles. An empty key is not an error.
type KeyResolver interface {
	ResolveKey(ctx context.Context) string
}

// Manager lays out profiles as <root>/.openclaw-<profile>/openclaw.json.
type Manager struct {
	root  string
	model string
	keys  KeyResolver
	now   func() time.Time
}

func NewManager(root, model string, keys KeyResolver) *Manager {
	return &Manager{root: root, model: model, keys: keys, now: time.Now}
}

func (m *Manager) StateDir(profile string) string {
	return filepath.Join(m.root, ".openclaw-"+profile)
}

func (m *Manager) ConfigPath(profile string) string {
	return filepath.Join(m.StateDir(profile), ConfigFile)
}

// Provision creates the state directory and writes a fresh configuration
// document bound to port. Existing directories are reused; the document is
// always rewritten.
func (m *Manager) Provision(ctx context.Context, profile string, port int) error {
	dir := m.StateDir(profile)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}

	key := ""
	if m.keys != nil {
		key = m.keys.ResolveKey(ctx)
	}
	if key == "" {
		logger.Warn("No Anthropic API key found for profile %s; agent registration will fail until one is configured", profile)
	}

	doc := m.initialDocument(port, key)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile config: %w", err)
	}
	if err := writeFileAtomic(m.ConfigPath(profile), data, 0o600); err != nil {
		return fmt.Errorf("write profile config: %w", err)
	}
	return nil
}

// Teardown removes the state directory. A missing directory is not an error.
func (m *Manager) Teardown(profile string) error {
	dir := m.StateDir(profile)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state dir %s: %w", dir, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

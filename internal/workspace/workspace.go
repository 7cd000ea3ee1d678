// Package workspace writes an agent's identity files where the runtime
// expects to find them.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	IdentityFile = "IDENTITY.md"
	UserFile     = "USER.md"
	MemoryFile   = "MEMORY.md"
)

// Builder lays out <base>/<agentID>/ for each agent.
type Builder struct {
	base string
	now  func() time.Time
}

func NewBuilder(base string) *Builder {
	return &Builder{base: base, now: time.Now}
}

func (b *Builder) Path(agentID string) string {
	return filepath.Join(b.base, agentID)
}

// Build creates the workspace and (re)writes its files. identity is written
// byte for byte. USER.md is only written when userMD is non-empty, and a
// stale one is removed otherwise. MEMORY.md is reset on every call.
func (b *Builder) Build(agentID, name, identity, userMD string) (string, error) {
	if agentID == "" || strings.ContainsAny(agentID, `/\`) || agentID == "." || agentID == ".." {
		return "", fmt.Errorf("invalid agent id %q", agentID)
	}

	dir := b.Path(agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, IdentityFile), []byte(identity), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", IdentityFile, err)
	}

	userPath := filepath.Join(dir, UserFile)
	if userMD != "" {
		if err := os.WriteFile(userPath, []byte(userMD), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", UserFile, err)
		}
	} else if err := os.Remove(userPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale %s: %w", UserFile, err)
	}

	memory := fmt.Sprintf("# Memory for %s\n\nCreated: %s\n", name, b.now().UTC().Format(time.RFC3339Nano))
	if err := os.WriteFile(filepath.Join(dir, MemoryFile), []byte(memory), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", MemoryFile, err)
	}
	return dir, nil
}

package openclaw

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ConfigEditor applies read→mutate→write edits to a profile's JSON
// configuration document. Keys it does not touch are preserved.
//
// Edits are serialized per path within this process only. The runtime
// rewrites the same file on its own schedule and there is no lock shared
// with it, so an edit can still lose a concurrent write by the runtime (or
// the runtime can lose ours). Callers should batch related changes into one
// Edit to keep that window small.
type ConfigEditor struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewConfigEditor() *ConfigEditor {
	return &ConfigEditor{locks: make(map[string]*sync.Mutex)}
}

func (e *ConfigEditor) lockFor(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[path]
	if !ok {
		l = &sync.Mutex{}
		e.locks[path] = l
	}
	return l
}

// Edit reads the document at path, hands it to mutate, and writes it back if
// mutate returns nil. Numbers are kept as json.Number so values the runtime
// wrote are not reformatted.
func (e *ConfigEditor) Edit(path string, mutate func(doc map[string]any) error) error {
	l := e.lockFor(path)
	l.Lock()
	defer l.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read runtime config: %w", err)
	}
	doc := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parse runtime config %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	if err := mutate(doc); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode runtime config: %w", err)
	}

	perm := os.FileMode(0o600)
	if fi, err := os.Stat(path); err == nil {
		perm = fi.Mode().Perm()
	}
	return writeAtomic(path, buf.Bytes(), perm)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write runtime config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write runtime config: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("write runtime config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write runtime config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace runtime config: %w", err)
	}
	return nil
}

// AddDMBinding appends a WhatsApp DM binding for agentID unless the document
// already routes that agent. It reports whether the document changed.
func AddDMBinding(doc map[string]any, agentID, peerID string) bool {
	bindings, _ := doc["bindings"].([]any)
	for _, b := range bindings {
		if m, ok := b.(map[string]any); ok && m["agentId"] == agentID {
			return false
		}
	}
	doc["bindings"] = append(bindings, map[string]any{
		"agentId": agentID,
		"match": map[string]any{
			"channel": "whatsapp",
			"peer":    map[string]any{"kind": "dm", "id": peerID},
		},
	})
	return true
}

// AllowPeer adds phone to channels.whatsapp.allowFrom and groupAllowFrom,
// creating missing sections. Existing entries are never duplicated.
func AllowPeer(doc map[string]any, phone string) bool {
	channels, _ := doc["channels"].(map[string]any)
	if channels == nil {
		channels = map[string]any{}
		doc["channels"] = channels
	}
	wa, _ := channels["whatsapp"].(map[string]any)
	if wa == nil {
		wa = map[string]any{}
		channels["whatsapp"] = wa
	}
	a := appendUnique(wa, "allowFrom", phone)
	g := appendUnique(wa, "groupAllowFrom", phone)
	return a || g
}

func appendUnique(section map[string]any, key, value string) bool {
	list, _ := section[key].([]any)
	for _, v := range list {
		if v == value {
			return false
		}
	}
	if list == nil {
		list = []any{}
	}
	section[key] = append(list, value)
	return true
}

// Package persist mirrors the active conversation id to durable storage.
//
// The store is a single slot. Absence of the slot means "no active
// conversation" and is distinct from an empty string, which is never a
// legal id. Message contents are never cached locally; history is always
// re-fetched from the remote service.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Adapter is the durable single-slot store for the active conversation id.
type Adapter interface {
	// Read returns the stored id, or ok=false when the slot is absent.
	Read() (id string, ok bool, err error)
	// Write stores the id, replacing any previous value.
	Write(id string) error
	// Remove clears the slot. Removing an absent slot is a no-op.
	Remove() error
}

// slot is the on-disk shape of the persisted id.
type slot struct {
	ActiveConversationID string `json:"active_conversation_id"`
}

// File is a file-backed Adapter. Writes go through a temp file and an
// atomic rename so a crash never leaves a torn slot.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file-backed adapter at the given path, creating
// parent directories as needed on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultPath returns the per-user slot location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "chatsync", "active_conversation.json"), nil
}

// Read implements Adapter.
func (f *File) Read() (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read slot: %w", err)
	}

	var s slot
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false, fmt.Errorf("failed to decode slot %s: %w", f.path, err)
	}
	if s.ActiveConversationID == "" {
		return "", false, nil
	}
	return s.ActiveConversationID, true, nil
}

// Write implements Adapter.
func (f *File) Write(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create slot dir: %w", err)
	}

	data, err := json.Marshal(slot{ActiveConversationID: id})
	if err != nil {
		return fmt.Errorf("failed to encode slot: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write slot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace slot: %w", err)
	}
	return nil
}

// Remove implements Adapter.
func (f *File) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove slot: %w", err)
	}
	return nil
}

// Memory is an in-memory Adapter for tests and ephemeral sessions.
type Memory struct {
	mu      sync.Mutex
	id      string
	present bool
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{}
}

// Read implements Adapter.
func (m *Memory) Read() (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.present, nil
}

// Write implements Adapter.
func (m *Memory) Write(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	m.present = true
	return nil
}

// Remove implements Adapter.
func (m *Memory) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	m.present = false
	return nil
}

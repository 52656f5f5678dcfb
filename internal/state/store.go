package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fluxops-io/fluxops/internal/ir"
)

// Manager handles reading and writing of provisioned state for one
// environment. Snapshots are durable across process restarts so an
// interrupted apply or destroy can be inspected and safely resumed.
type Manager struct {
	path string
}

// NewManager creates a manager for the state file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// DefaultPath returns the conventional state location for an
// environment under the project directory.
func DefaultPath(projectDir, environment string) string {
	return filepath.Join(projectDir, ".fluxops", environment, "state.json")
}

// Read loads the state from the configured path. A missing file yields
// a fresh empty state. Encrypted files are transparently decrypted.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return &ir.State{Version: 1, Serial: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	content, err := DecryptState(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	var state ir.State
	if err := json.Unmarshal(content, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state from %s: %w", m.path, err)
	}

	return &state, nil
}

// Write saves the state to the configured path. If
// FLUXOPS_STATE_ENCRYPTION_KEY is set, the file is transparently
// encrypted.
func (m *Manager) Write(ctx context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	encrypted, err := EncryptState(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	if err := os.WriteFile(m.path, encrypted, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}

	return nil
}

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fluxops-io/fluxops/internal/ir"
)

// PlanStore persists plan artifacts next to the state file so a
// reviewed plan survives process restarts.
type PlanStore struct {
	dir string
}

// NewPlanStore creates a plan store rooted at dir.
func NewPlanStore(dir string) *PlanStore {
	return &PlanStore{dir: dir}
}

// DefaultPlanDir returns the conventional plan artifact location for an
// environment under the project directory.
func DefaultPlanDir(projectDir, environment string) string {
	return filepath.Join(projectDir, ".fluxops", environment, "plans")
}

// Save writes the plan as a timestamped JSON artifact and returns its
// reference (the file path).
func (ps *PlanStore) Save(ctx context.Context, plan *ir.Plan) (string, error) {
	if err := os.MkdirAll(ps.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plan directory: %w", err)
	}

	ref := filepath.Join(ps.dir, fmt.Sprintf("plan-%s.json", time.Now().UTC().Format("20060102T150405Z")))

	content, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize plan: %w", err)
	}

	if err := os.WriteFile(ref, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write plan artifact: %w", err)
	}

	return ref, nil
}

// Load reads a previously saved plan artifact.
func (ps *PlanStore) Load(ctx context.Context, ref string) (*ir.Plan, error) {
	content, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan artifact %s: %w", ref, err)
	}

	var plan ir.Plan
	if err := json.Unmarshal(content, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan artifact %s: %w", ref, err)
	}

	return &plan, nil
}

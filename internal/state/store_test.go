package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxops-io/fluxops/internal/ir"
)

func sampleState() *ir.State {
	return &ir.State{
		Version: 1,
		Serial:  3,
		Lineage: "test-lineage",
		Units: []*ir.UnitState{
			{
				Name:     "store",
				Kind:     ir.KindObjectStore,
				Provider: "aws",
				Status:   ir.StatusApplied,
				Params:   map[string]any{"bucket": "models"},
				Outputs:  map[string]any{"bucket": "models", "arn": "arn:aws:s3:::models"},
			},
			{
				Name:         "endpoint",
				Kind:         ir.KindComputeEndpoint,
				Provider:     "aws",
				Status:       ir.StatusApplied,
				Dependencies: []string{"store"},
			},
		},
		Outputs: map[string]any{"endpointUrl": "https://example.test"},
	}
}

func TestManager_ReadMissingFileYieldsEmptyState(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))

	st, err := mgr.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
	assert.Equal(t, 0, st.Serial)
	assert.Empty(t, st.Units)
}

func TestManager_WriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".fluxops", "dev", "state.json")
	mgr := NewManager(path)
	ctx := context.Background()

	require.NoError(t, mgr.Write(ctx, sampleState()))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Serial)
	assert.Equal(t, "test-lineage", got.Lineage)
	require.Len(t, got.Units, 2)

	us := got.Unit("store")
	require.NotNil(t, us)
	assert.Equal(t, ir.StatusApplied, us.Status)
	assert.Equal(t, "models", us.Outputs["bucket"])
	assert.Equal(t, []string{"store"}, got.Unit("endpoint").Dependencies)
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "0123456789abcdef0123456789abcdef")

	path := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(path)
	ctx := context.Background()

	require.NoError(t, mgr.Write(ctx, sampleState()))

	// The bytes on disk must not be readable JSON.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "models")

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Serial)
	assert.Equal(t, "models", got.Unit("store").Outputs["bucket"])
}

func TestManager_EncryptedStateWithoutKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	t.Setenv(EncryptionKeyEnvVar, "0123456789abcdef0123456789abcdef")
	require.NoError(t, NewManager(path).Write(ctx, sampleState()))

	t.Setenv(EncryptionKeyEnvVar, "")
	_, err := NewManager(path).Read(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EncryptionKeyEnvVar)
}

func TestManager_LockBlocksSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(path)

	require.NoError(t, mgr.Lock())

	other := NewManager(path)
	err := other.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	require.NoError(t, mgr.Unlock())
	require.NoError(t, other.Lock())
	require.NoError(t, other.Unlock())
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("proj", ".fluxops", "prod", "state.json"),
		DefaultPath("proj", "prod"))
}

func TestPlanStore_SaveLoadRoundTrip(t *testing.T) {
	ps := NewPlanStore(filepath.Join(t.TempDir(), "plans"))
	ctx := context.Background()

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{Timestamp: "2026-01-02T03:04:05Z", Environment: "dev"},
		Changes: []*ir.UnitChange{
			{Name: "store", Kind: ir.KindObjectStore, Action: ir.ActionCreate},
		},
		Summary: &ir.PlanSummary{Create: 1},
	}

	ref, err := ps.Save(ctx, plan)
	require.NoError(t, err)
	assert.Contains(t, ref, "plan-")

	got, err := ps.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "dev", got.Metadata.Environment)
	require.Len(t, got.Changes, 1)
	assert.Equal(t, ir.ActionCreate, got.Changes[0].Action)
	assert.True(t, got.HasChanges())
}

func TestEncryptState_PassthroughWithoutKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")

	content := []byte(`{"version":1}`)
	out, err := EncryptState(content)
	require.NoError(t, err)
	assert.Equal(t, content, out)
	assert.False(t, IsEncrypted(out))
}

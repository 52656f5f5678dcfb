package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxops-io/fluxops/internal/ir"
)

func TestCreatePlan_FreshStateIsAllCreates(t *testing.T) {
	exec, _ := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	plan, err := exec.CreatePlan(graph, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 3)
	for _, change := range plan.Changes {
		assert.Equal(t, ir.ActionCreate, change.Action)
	}
	assert.Equal(t, 3, plan.Summary.Create)
	assert.True(t, plan.HasChanges())

	// Changes come in apply order.
	assert.Equal(t, "store", plan.Changes[0].Name)
	assert.Equal(t, "secrets", plan.Changes[1].Name)
	assert.Equal(t, "endpoint", plan.Changes[2].Name)

	// Planned units are recorded in-memory but not applied.
	assert.Equal(t, ir.StatusPlanned, st.Unit("store").Status)
}

func TestCreatePlan_AfterApplyIsAllNoops(t *testing.T) {
	exec, lp := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))
	callsBefore := len(lp.Calls())

	plan, err := exec.CreatePlan(graph, st)
	require.NoError(t, err)

	assert.False(t, plan.HasChanges())
	assert.Equal(t, 3, plan.Summary.NoOp)

	// Planning is a pure dry-run: no provider was contacted.
	assert.Len(t, lp.Calls(), callsBefore)
}

func TestCreatePlan_ChangedParamsIsUpdate(t *testing.T) {
	exec, _ := newTestExecutor(t)

	units := servingStack()
	graph, err := BuildGraph(units)
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	units[0].Params = map[string]any{"bucket": "models-v2"}
	graph, err = BuildGraph(units)
	require.NoError(t, err)

	plan, err := exec.CreatePlan(graph, st)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Summary.Update)
	assert.Equal(t, 2, plan.Summary.NoOp)
	assert.Equal(t, ir.ActionUpdate, plan.Changes[0].Action)
	assert.Equal(t, "store", plan.Changes[0].Name)
}

func TestCreatePlan_UndeclaredUnitIsDelete(t *testing.T) {
	exec, _ := newTestExecutor(t)

	units := servingStack()
	graph, err := BuildGraph(units)
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	graph, err = BuildGraph(units[:2])
	require.NoError(t, err)

	plan, err := exec.CreatePlan(graph, st)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Summary.Delete)

	var deleted *ir.UnitChange
	for _, c := range plan.Changes {
		if c.Action == ir.ActionDelete {
			deleted = c
		}
	}
	require.NotNil(t, deleted)
	assert.Equal(t, "endpoint", deleted.Name)
	assert.NotNil(t, deleted.Prior)
}

func TestCreatePlan_FailedUnitIsRecreated(t *testing.T) {
	exec, _ := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	st.Upsert(&ir.UnitState{
		Name: "store", Kind: ir.KindObjectStore, Provider: "local",
		Status: ir.StatusFailed, ParamsHash: ParamsHash(map[string]any{"bucket": "models"}),
	})

	plan, err := exec.CreatePlan(graph, st)
	require.NoError(t, err)

	// A failed unit plans as CREATE regardless of its recorded hash.
	assert.Equal(t, ir.ActionCreate, plan.Changes[0].Action)
	assert.Equal(t, "store", plan.Changes[0].Name)
}

func TestParamsHash_Stable(t *testing.T) {
	a := map[string]any{"bucket": "models", "versioned": true, "tags": map[string]any{"env": "dev"}}
	b := map[string]any{"tags": map[string]any{"env": "dev"}, "versioned": true, "bucket": "models"}

	// Key order must not affect the hash.
	assert.Equal(t, ParamsHash(a), ParamsHash(b))
	assert.NotEqual(t, ParamsHash(a), ParamsHash(map[string]any{"bucket": "other"}))
	assert.Len(t, ParamsHash(a), 64)
}

func TestParamsHash_NormalizesAnyKeyedMaps(t *testing.T) {
	// PKL evaluation can yield map[any]any; hashing must treat it the
	// same as map[string]any.
	a := map[string]any{"tags": map[any]any{"env": "dev"}}
	b := map[string]any{"tags": map[string]any{"env": "dev"}}
	assert.Equal(t, ParamsHash(a), ParamsHash(b))
}

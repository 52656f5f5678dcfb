package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/provider"
	"github.com/fluxops-io/fluxops/providers/local"
)

func newTestExecutor(t *testing.T) (*Executor, *local.Provider) {
	t.Helper()
	lp := local.New()
	reg := provider.NewRegistry()
	reg.Register("local", func() (provider.Provider, error) { return lp, nil })
	return NewExecutor(reg), lp
}

func servingStack() []*ir.Unit {
	return []*ir.Unit{
		{Name: "store", Kind: ir.KindObjectStore, Provider: "local",
			Params: map[string]any{"bucket": "models"}},
		{Name: "secrets", Kind: ir.KindSecretStore, Provider: "local",
			Params: map[string]any{"secretName": "api-key"}},
		{Name: "endpoint", Kind: ir.KindComputeEndpoint, Provider: "local",
			DependsOn: []string{"store", "secrets"},
			Params:    map[string]any{"runtime": "python3.12"}},
	}
}

func TestApply_CreatesInDependencyOrder(t *testing.T) {
	exec, lp := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	assert.Equal(t, []string{"store", "secrets", "endpoint"}, lp.CreateCalls())
	assert.Equal(t, 1, st.Serial)

	for _, name := range []string{"store", "secrets", "endpoint"} {
		us := st.Unit(name)
		require.NotNil(t, us, name)
		assert.Equal(t, ir.StatusApplied, us.Status)
		assert.NotEmpty(t, us.ParamsHash)
		assert.NotEmpty(t, us.Outputs["id"])
	}
}

func TestApply_InjectsDependencyOutputs(t *testing.T) {
	exec, _ := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	// The local provider echoes which dependency outputs it received.
	outputs := st.Unit("endpoint").Outputs
	assert.Equal(t, true, outputs["dep:store"])
	assert.Equal(t, true, outputs["dep:secrets"])
}

func TestApply_SecondApplyIsIdempotent(t *testing.T) {
	exec, lp := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))
	require.Len(t, lp.CreateCalls(), 3)

	// Unchanged parameters: nothing is recreated.
	require.NoError(t, exec.Apply(context.Background(), graph, st))
	assert.Len(t, lp.CreateCalls(), 3)
	assert.Equal(t, 2, st.Serial)
}

func TestApply_ChangedParamsRecreateOnlyThatUnit(t *testing.T) {
	exec, lp := newTestExecutor(t)

	units := servingStack()
	graph, err := BuildGraph(units)
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))
	require.Len(t, lp.CreateCalls(), 3)

	units[1].Params = map[string]any{"secretName": "rotated-key"}
	graph, err = BuildGraph(units)
	require.NoError(t, err)

	require.NoError(t, exec.Apply(context.Background(), graph, st))
	assert.Equal(t, []string{"store", "secrets", "endpoint", "secrets"}, lp.CreateCalls())
}

func TestApply_FailureHaltsAndPreservesEarlierUnits(t *testing.T) {
	exec, lp := newTestExecutor(t)
	lp.FailOn("secrets", errors.New("access denied"))

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	err = exec.Apply(context.Background(), graph, st)
	require.Error(t, err)

	var uf *UnitFailureError
	require.ErrorAs(t, err, &uf)
	assert.Equal(t, "secrets", uf.Unit)
	assert.Equal(t, "create", uf.Action)

	// store applied before the failure and keeps its state; endpoint was
	// never reached.
	assert.Equal(t, ir.StatusApplied, st.Unit("store").Status)
	assert.Equal(t, ir.StatusFailed, st.Unit("secrets").Status)
	assert.NotEmpty(t, st.Unit("secrets").Error)
	assert.Nil(t, st.Unit("endpoint"))
	assert.Equal(t, []string{"store", "secrets"}, lp.CreateCalls())
}

func TestApply_ResumesFromFailedUnit(t *testing.T) {
	exec, lp := newTestExecutor(t)
	lp.FailOn("secrets", errors.New("access denied"))

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.Error(t, exec.Apply(context.Background(), graph, st))

	// The cause is fixed; the retry resumes at the failed unit without
	// re-creating what already succeeded.
	lp.FailOn("secrets", nil)
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	assert.Equal(t, []string{"store", "secrets", "secrets", "endpoint"}, lp.CreateCalls())
	for _, name := range []string{"store", "secrets", "endpoint"} {
		assert.Equal(t, ir.StatusApplied, st.Unit(name).Status, name)
	}
}

func TestApply_RemovesOrphanedUnits(t *testing.T) {
	exec, lp := newTestExecutor(t)

	units := servingStack()
	graph, err := BuildGraph(units)
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	// The endpoint disappears from the declaration: the next apply
	// destroys it and drops it from state.
	graph, err = BuildGraph(units[:2])
	require.NoError(t, err)
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	assert.Equal(t, []string{"endpoint"}, lp.DestroyCalls())
	assert.Nil(t, st.Unit("endpoint"))
	assert.Equal(t, ir.StatusApplied, st.Unit("store").Status)
}

func TestApply_CancelledContext(t *testing.T) {
	exec, lp := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &ir.State{Version: 1}
	err = exec.Apply(ctx, graph, st)
	require.Error(t, err)
	assert.Empty(t, lp.CreateCalls())
}

func TestApply_CheckpointAfterEveryTransition(t *testing.T) {
	exec, _ := newTestExecutor(t)

	var checkpoints int
	exec.Checkpoint = func(ctx context.Context, state *ir.State) error {
		checkpoints++
		return nil
	}

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	// Two transitions per unit: applying, then applied.
	assert.Equal(t, 6, checkpoints)
}

func TestDestroy_ReverseOrder(t *testing.T) {
	exec, lp := newTestExecutor(t)

	graph, err := BuildGraph(servingStack())
	require.NoError(t, err)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Apply(context.Background(), graph, st))

	require.NoError(t, exec.Destroy(context.Background(), st))

	assert.Equal(t, []string{"endpoint", "secrets", "store"}, lp.DestroyCalls())
	for _, name := range []string{"store", "secrets", "endpoint"} {
		assert.Equal(t, ir.StatusDestroyed, st.Unit(name).Status, name)
	}
}

func TestDestroy_EmptyStateIsNoop(t *testing.T) {
	exec, lp := newTestExecutor(t)

	st := &ir.State{Version: 1}
	require.NoError(t, exec.Destroy(context.Background(), st))
	assert.Empty(t, lp.DestroyCalls())
	assert.Equal(t, 0, st.Serial)
}

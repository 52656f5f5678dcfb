package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/provider"
	"github.com/fluxops-io/fluxops/providers/local"
)

// memStore keeps state in memory for one environment.
type memStore struct {
	st     *ir.State
	writes int
}

func (m *memStore) Read(ctx context.Context) (*ir.State, error) {
	if m.st == nil {
		return &ir.State{Version: 1}, nil
	}
	return m.st, nil
}

func (m *memStore) Write(ctx context.Context, state *ir.State) error {
	m.st = state
	m.writes++
	return nil
}

// memPlans records saved plans.
type memPlans struct {
	saved []*ir.Plan
}

func (m *memPlans) Save(ctx context.Context, plan *ir.Plan) (string, error) {
	m.saved = append(m.saved, plan)
	return "mem://plan-1", nil
}

type testHarness struct {
	orch  *Orchestrator
	lp    *local.Provider
	store *memStore
	plans *memPlans
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	lp := local.New()
	reg := provider.NewRegistry()
	reg.Register("local", func() (provider.Provider, error) { return lp, nil })

	store := &memStore{}
	plans := &memPlans{}

	orch := NewOrchestrator(
		engine.NewExecutor(reg),
		reg,
		func(string) Store { return store },
		func(string) PlanSaver { return plans },
	)

	return &testHarness{orch: orch, lp: lp, store: store, plans: plans}
}

func testStack() *ir.Stack {
	return &ir.Stack{
		Units: []*ir.Unit{
			{Name: "store", Kind: ir.KindObjectStore, Provider: "local",
				Params: map[string]any{"bucket": "models"}},
			{Name: "endpoint", Kind: ir.KindComputeEndpoint, Provider: "local",
				DependsOn: []string{"store"},
				Params:    map[string]any{"runtime": "python3.12"}},
		},
		Environments: map[string]*ir.EnvironmentPolicy{
			"dev":  {AutoDeploy: true, RequireApproval: false, AllowTeardown: true},
			"prod": {AutoDeploy: false, RequireApproval: true, AllowTeardown: false},
		},
	}
}

func TestRun_AutoDeploySucceeds(t *testing.T) {
	h := newHarness(t)

	run := ir.NewPipelineRun("run-1", "dev", ir.TriggerCommit)
	require.NoError(t, h.orch.Run(context.Background(), run, testStack()))

	assert.Equal(t, ir.RunSucceeded, run.Result)
	for _, stage := range []ir.Stage{ir.StageValidate, ir.StagePlan, ir.StageDeploy, ir.StageTest} {
		assert.Equal(t, ir.OutcomeSuccess, run.Stages[stage], stage)
	}
	assert.Equal(t, ir.OutcomePending, run.Stages[ir.StageTeardown])

	assert.Equal(t, []string{"store", "endpoint"}, h.lp.CreateCalls())
	assert.Len(t, h.plans.saved, 1)
	assert.Equal(t, "mem://plan-1", run.PlanRef)

	// Outputs captured from the applied units.
	require.Contains(t, run.Outputs, "endpoint")

	// State persisted with everything applied.
	require.NotNil(t, h.store.st)
	assert.Equal(t, ir.StatusApplied, h.store.st.Unit("store").Status)
	assert.Equal(t, ir.StatusApplied, h.store.st.Unit("endpoint").Status)
}

// gateNotifier resolves the approval gate as soon as a run suspends,
// recording how many provider calls had happened by then.
type gateNotifier struct {
	gate        *ApprovalGate
	lp          *local.Provider
	approve     bool
	callsAtGate int
	sawGate     bool
}

func (n *gateNotifier) Notify(ctx context.Context, run *ir.PipelineRun, stage ir.Stage, outcome ir.Outcome) {
	if outcome != ir.OutcomeAwaitingApproval {
		return
	}
	n.sawGate = true
	n.callsAtGate = len(n.lp.Calls())
	if n.approve {
		_ = n.gate.Approve(run.ID)
	} else {
		_ = n.gate.Reject(run.ID)
	}
}

func TestRun_GatedDeployWaitsForApproval(t *testing.T) {
	h := newHarness(t)
	notifier := &gateNotifier{gate: h.orch.Gate(), lp: h.lp, approve: true}
	h.orch.Notifier = notifier

	run := ir.NewPipelineRun("run-2", "prod", ir.TriggerCommit)
	require.NoError(t, h.orch.Run(context.Background(), run, testStack()))

	assert.True(t, notifier.sawGate)
	// Nothing was provisioned before the approval arrived.
	assert.Equal(t, 0, notifier.callsAtGate)

	assert.Equal(t, ir.RunSucceeded, run.Result)
	assert.Equal(t, []string{"store", "endpoint"}, h.lp.CreateCalls())
}

func TestRun_RejectedDeployCancelsRun(t *testing.T) {
	h := newHarness(t)
	h.orch.Notifier = &gateNotifier{gate: h.orch.Gate(), lp: h.lp, approve: false}

	run := ir.NewPipelineRun("run-3", "prod", ir.TriggerCommit)
	require.NoError(t, h.orch.Run(context.Background(), run, testStack()))

	assert.Equal(t, ir.RunCancelled, run.Result)
	assert.Equal(t, ir.OutcomeCancelled, run.Stages[ir.StageDeploy])
	assert.Equal(t, ir.OutcomeSkipped, run.Stages[ir.StageTest])
	assert.Empty(t, h.lp.CreateCalls())
}

func TestRun_ApprovalTimeoutCancelsRun(t *testing.T) {
	h := newHarness(t)
	h.orch.ApprovalTimeout = 20 * time.Millisecond

	run := ir.NewPipelineRun("run-4", "prod", ir.TriggerSchedule)
	require.NoError(t, h.orch.Run(context.Background(), run, testStack()))

	assert.Equal(t, ir.RunCancelled, run.Result)
	assert.Contains(t, run.Error, "timed out")
	assert.Empty(t, h.lp.CreateCalls())
}

func TestRun_UndeclaredEnvironmentRequiresApproval(t *testing.T) {
	h := newHarness(t)
	h.orch.ApprovalTimeout = 20 * time.Millisecond

	// "staging" has no declared policy: the conservative default gates it.
	run := ir.NewPipelineRun("run-5", "staging", ir.TriggerCommit)
	require.NoError(t, h.orch.Run(context.Background(), run, testStack()))

	assert.Equal(t, ir.RunCancelled, run.Result)
	assert.Empty(t, h.lp.CreateCalls())
}

func TestRun_ValidateFailureSkipsEverything(t *testing.T) {
	h := newHarness(t)

	stack := testStack()
	stack.Units[1].DependsOn = []string{"missing"}

	run := ir.NewPipelineRun("run-6", "dev", ir.TriggerCommit)
	err := h.orch.Run(context.Background(), run, stack)
	require.Error(t, err)

	var unknown *engine.UnknownDependencyError
	assert.ErrorAs(t, err, &unknown)

	assert.Equal(t, ir.RunFailed, run.Result)
	assert.Equal(t, ir.OutcomeFailed, run.Stages[ir.StageValidate])
	assert.Equal(t, ir.OutcomeSkipped, run.Stages[ir.StagePlan])
	assert.Equal(t, ir.OutcomeSkipped, run.Stages[ir.StageDeploy])
	assert.Equal(t, ir.OutcomeSkipped, run.Stages[ir.StageTest])
	assert.Equal(t, "graph-validation", run.FailedStep)
	assert.Empty(t, h.lp.Calls())
}

func TestRun_ApplyFailureRecordsFailingUnit(t *testing.T) {
	h := newHarness(t)
	h.lp.FailOn("endpoint", errors.New("quota exceeded"))

	run := ir.NewPipelineRun("run-7", "dev", ir.TriggerCommit)
	err := h.orch.Run(context.Background(), run, testStack())
	require.Error(t, err)

	assert.Equal(t, ir.RunFailed, run.Result)
	assert.Equal(t, ir.OutcomeFailed, run.Stages[ir.StageDeploy])
	assert.Equal(t, "apply:endpoint", run.FailedStep)

	// Partial progress is durable: store stayed applied, and the state
	// was persisted despite the failure.
	require.NotNil(t, h.store.st)
	assert.Equal(t, ir.StatusApplied, h.store.st.Unit("store").Status)
	assert.Equal(t, ir.StatusFailed, h.store.st.Unit("endpoint").Status)
}

type failingChecker struct{}

func (failingChecker) Check(context.Context, map[string]any) error {
	return errors.New("predict returned 500")
}

func TestRun_TestFailureLeavesInfrastructureApplied(t *testing.T) {
	h := newHarness(t)
	h.orch.Checker = failingChecker{}

	run := ir.NewPipelineRun("run-8", "dev", ir.TriggerCommit)
	err := h.orch.Run(context.Background(), run, testStack())
	require.Error(t, err)

	assert.Equal(t, ir.RunFailed, run.Result)
	assert.Equal(t, ir.OutcomeFailed, run.Stages[ir.StageTest])
	assert.Equal(t, "functional-check", run.FailedStep)

	// A failed test run never triggers teardown.
	assert.Empty(t, h.lp.DestroyCalls())
	assert.Equal(t, ir.StatusApplied, h.store.st.Unit("endpoint").Status)
}

type fakeTrainer struct {
	published string
}

func (f *fakeTrainer) Train(ctx context.Context) ([]byte, map[string]float64, error) {
	return []byte("model-bytes"), map[string]float64{"accuracy": 0.97}, nil
}

func (f *fakeTrainer) Publish(ctx context.Context, artifact []byte, storeOutputs map[string]any) (string, error) {
	f.published = "s3://models/model_v1.pkl"
	return f.published, nil
}

type recordingDeployer struct {
	artifactURI string
	outputs     map[string]any
}

func (d *recordingDeployer) Deploy(ctx context.Context, artifactURI string, endpointOutputs map[string]any) error {
	d.artifactURI = artifactURI
	d.outputs = endpointOutputs
	return nil
}

func TestRun_TrainerAndDeployerWiring(t *testing.T) {
	h := newHarness(t)
	trainer := &fakeTrainer{}
	deployer := &recordingDeployer{}
	h.orch.Trainer = trainer
	h.orch.Deployer = deployer

	run := ir.NewPipelineRun("run-9", "dev", ir.TriggerCommit)
	require.NoError(t, h.orch.Run(context.Background(), run, testStack()))

	assert.Equal(t, "s3://models/model_v1.pkl", run.ArtifactURI)
	assert.Equal(t, run.ArtifactURI, deployer.artifactURI)
	assert.NotEmpty(t, deployer.outputs["id"], "deployer should receive the endpoint outputs")
}

func TestTeardown_DisallowedByPolicy(t *testing.T) {
	h := newHarness(t)

	run := ir.NewPipelineRun("run-10", "prod", ir.TriggerManual)
	err := h.orch.Teardown(context.Background(), run, testStack())
	require.Error(t, err)

	assert.Equal(t, ir.RunFailed, run.Result)
	assert.Equal(t, "policy", run.FailedStep)
	assert.Empty(t, h.lp.DestroyCalls())
}

func TestTeardown_DestroysInReverseOrder(t *testing.T) {
	h := newHarness(t)

	run := ir.NewPipelineRun("run-11", "dev", ir.TriggerCommit)
	require.NoError(t, h.orch.Run(context.Background(), run, testStack()))

	down := ir.NewPipelineRun("run-12", "dev", ir.TriggerManual)
	require.NoError(t, h.orch.Teardown(context.Background(), down, testStack()))

	assert.Equal(t, ir.RunDestroyed, down.Result)
	assert.Equal(t, []string{"endpoint", "store"}, h.lp.DestroyCalls())
	assert.Equal(t, ir.StatusDestroyed, h.store.st.Unit("endpoint").Status)
}

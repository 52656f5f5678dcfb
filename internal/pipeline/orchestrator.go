package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/logging"
	"github.com/fluxops-io/fluxops/internal/provider"
)

// Orchestrator drives pipeline runs through the stage state machine
// Validate -> Plan -> Deploy -> Test, with Teardown as a separate,
// explicitly triggered action. Stages within one run execute strictly
// sequentially; no stage begins before the prior stage succeeds.
type Orchestrator struct {
	executor   *engine.Executor
	registry   *provider.Registry
	gate       *ApprovalGate
	locks      *envLocks
	stores     func(environment string) Store
	planStores func(environment string) PlanSaver

	// Collaborators, consumed as black boxes. Nil collaborators are
	// simply skipped.
	Trainer  ModelTrainer
	Deployer EndpointDeployer
	Tests    TestSuite
	Checker  FunctionalChecker
	Notifier Notifier

	// ApprovalTimeout bounds the awaiting-approval suspension. Zero
	// means wait indefinitely.
	ApprovalTimeout time.Duration
}

func NewOrchestrator(
	executor *engine.Executor,
	registry *provider.Registry,
	stores func(environment string) Store,
	planStores func(environment string) PlanSaver,
) *Orchestrator {
	return &Orchestrator{
		executor:   executor,
		registry:   registry,
		gate:       NewApprovalGate(),
		locks:      newEnvLocks(),
		stores:     stores,
		planStores: planStores,
		Notifier:   NoopNotifier{},
	}
}

// Gate exposes the approval signal interface for this orchestrator's
// runs. Approve and Reject are consumed only while a run is suspended
// at the gate.
func (o *Orchestrator) Gate() *ApprovalGate {
	return o.gate
}

// Run executes the pipeline for one run: Validate, Plan, Deploy
// (possibly suspended awaiting approval), Test. The run always ends in
// a terminal result; the returned error carries the failure detail.
func (o *Orchestrator) Run(ctx context.Context, run *ir.PipelineRun, stack *ir.Stack) error {
	graph, err := o.validate(ctx, run, stack)
	if err != nil {
		return err
	}

	store := o.stores(run.Environment)

	st, err := o.plan(ctx, run, graph, store)
	if err != nil {
		return err
	}

	cancelled, err := o.deploy(ctx, run, stack, graph, st, store)
	if err != nil || cancelled {
		return err
	}

	if err := o.test(ctx, run, graph, st); err != nil {
		return err
	}

	run.Result = ir.RunSucceeded
	logging.Info("pipeline run succeeded", "run", run.ID, "environment", run.Environment)
	return nil
}

func (o *Orchestrator) validate(ctx context.Context, run *ir.PipelineRun, stack *ir.Stack) (*engine.Graph, error) {
	o.enterStage(ctx, run, ir.StageValidate)

	graph, err := engine.BuildGraph(stack.Units)
	if err != nil {
		return nil, o.failStage(ctx, run, ir.StageValidate, "graph-validation", err)
	}

	o.completeStage(ctx, run, ir.StageValidate)
	return graph, nil
}

func (o *Orchestrator) plan(ctx context.Context, run *ir.PipelineRun, graph *engine.Graph, store Store) (*ir.State, error) {
	o.enterStage(ctx, run, ir.StagePlan)

	st, err := store.Read(ctx)
	if err != nil {
		return nil, o.failStage(ctx, run, ir.StagePlan, "state-read", err)
	}

	plan, err := o.executor.CreatePlan(graph, st)
	if err != nil {
		return nil, o.failStage(ctx, run, ir.StagePlan, "plan", err)
	}
	plan.Metadata.Environment = run.Environment

	ref, err := o.planStores(run.Environment).Save(ctx, plan)
	if err != nil {
		return nil, o.failStage(ctx, run, ir.StagePlan, "plan-save", err)
	}
	run.PlanRef = ref

	o.completeStage(ctx, run, ir.StagePlan)
	return st, nil
}

// deploy runs the gated apply and the downstream sub-steps. It returns
// cancelled=true when the run was rejected at the approval gate, which
// is a terminal Cancelled outcome, not a failure.
func (o *Orchestrator) deploy(ctx context.Context, run *ir.PipelineRun, stack *ir.Stack, graph *engine.Graph, st *ir.State, store Store) (cancelled bool, err error) {
	run.Stage = ir.StageDeploy

	policy := stack.Policy(run.Environment)

	// Anything but an explicit auto-deploy policy requires a human.
	if policy.RequireApproval || !policy.AutoDeploy {
		o.gate.Register(run.ID)
		run.Stages[ir.StageDeploy] = ir.OutcomeAwaitingApproval
		o.Notifier.Notify(ctx, run, ir.StageDeploy, ir.OutcomeAwaitingApproval)
		logging.Info("awaiting approval", "run", run.ID, "environment", run.Environment)

		decision, waitErr := o.gate.Wait(ctx, run.ID, o.ApprovalTimeout)
		if waitErr != nil || decision == DecisionRejected {
			run.Stages[ir.StageDeploy] = ir.OutcomeCancelled
			run.Result = ir.RunCancelled
			o.skipRemaining(run, ir.StageDeploy)
			if waitErr != nil {
				run.Error = waitErr.Error()
			}
			o.Notifier.Notify(ctx, run, ir.StageDeploy, ir.OutcomeCancelled)
			logging.Info("run cancelled at approval gate", "run", run.ID)
			return true, nil
		}
	}

	if err := o.locks.acquire(run.Environment, run.ID); err != nil {
		return false, o.failStage(ctx, run, ir.StageDeploy, "environment-lock", err)
	}
	defer o.locks.release(run.Environment, run.ID)

	o.enterStage(ctx, run, ir.StageDeploy)

	// Once apply begins it runs to completion or failure; persist the
	// state either way so partial progress is durable.
	applyErr := o.executor.Apply(ctx, graph, st)
	if writeErr := store.Write(ctx, st); writeErr != nil {
		logging.Error("failed to persist state", "error", writeErr)
	}
	if applyErr != nil {
		step := "apply"
		var uf *engine.UnitFailureError
		if errors.As(applyErr, &uf) {
			step = "apply:" + uf.Unit
		}
		return false, o.failStage(ctx, run, ir.StageDeploy, step, applyErr)
	}

	o.captureOutputs(run, graph, st)

	if o.Trainer != nil {
		artifact, metrics, trainErr := o.Trainer.Train(ctx)
		if trainErr != nil {
			return false, o.failStage(ctx, run, ir.StageDeploy, "train", trainErr)
		}
		logging.Info("model trained", "run", run.ID, "metrics", metrics)

		storeOutputs := unitOutputsByKind(graph, st, ir.KindObjectStore)
		uri, pubErr := o.Trainer.Publish(ctx, artifact, storeOutputs)
		if pubErr != nil {
			return false, o.failStage(ctx, run, ir.StageDeploy, "publish-model", pubErr)
		}
		run.ArtifactURI = uri
	}

	if o.Deployer != nil {
		endpointOutputs := unitOutputsByKind(graph, st, ir.KindComputeEndpoint)
		if deployErr := o.Deployer.Deploy(ctx, run.ArtifactURI, endpointOutputs); deployErr != nil {
			return false, o.failStage(ctx, run, ir.StageDeploy, "deploy-endpoint", deployErr)
		}
	}

	o.completeStage(ctx, run, ir.StageDeploy)
	return false, nil
}

func (o *Orchestrator) test(ctx context.Context, run *ir.PipelineRun, graph *engine.Graph, st *ir.State) error {
	o.enterStage(ctx, run, ir.StageTest)

	// A test failure is terminal but never tears down applied
	// infrastructure; teardown stays a separate, explicit action.
	if err := o.healthCheck(ctx, graph, st); err != nil {
		return o.failStage(ctx, run, ir.StageTest, "health-check", err)
	}

	if o.Checker != nil {
		endpointOutputs := unitOutputsByKind(graph, st, ir.KindComputeEndpoint)
		if err := o.Checker.Check(ctx, endpointOutputs); err != nil {
			return o.failStage(ctx, run, ir.StageTest, "functional-check", err)
		}
	}

	if o.Tests != nil {
		if err := o.Tests.Run(ctx); err != nil {
			return o.failStage(ctx, run, ir.StageTest, "test-suite", err)
		}
	}

	o.completeStage(ctx, run, ir.StageTest)
	return nil
}

// Teardown destroys the environment's provisioned units. It is only
// reachable via an explicit manual or scheduled trigger, never as an
// automatic consequence of a failed run, and only where the
// environment's policy allows it.
func (o *Orchestrator) Teardown(ctx context.Context, run *ir.PipelineRun, stack *ir.Stack) error {
	run.Stage = ir.StageTeardown

	policy := stack.Policy(run.Environment)
	if !policy.AllowTeardown {
		err := fmt.Errorf("teardown is not allowed for environment %q", run.Environment)
		return o.failStage(ctx, run, ir.StageTeardown, "policy", err)
	}

	if err := o.locks.acquire(run.Environment, run.ID); err != nil {
		return o.failStage(ctx, run, ir.StageTeardown, "environment-lock", err)
	}
	defer o.locks.release(run.Environment, run.ID)

	o.enterStage(ctx, run, ir.StageTeardown)

	store := o.stores(run.Environment)
	st, err := store.Read(ctx)
	if err != nil {
		return o.failStage(ctx, run, ir.StageTeardown, "state-read", err)
	}

	destroyErr := o.executor.Destroy(ctx, st)
	if writeErr := store.Write(ctx, st); writeErr != nil {
		logging.Error("failed to persist state", "error", writeErr)
	}
	if destroyErr != nil {
		step := "destroy"
		var uf *engine.UnitFailureError
		if errors.As(destroyErr, &uf) {
			step = "destroy:" + uf.Unit
		}
		return o.failStage(ctx, run, ir.StageTeardown, step, destroyErr)
	}

	run.Stages[ir.StageTeardown] = ir.OutcomeSuccess
	run.Result = ir.RunDestroyed
	o.Notifier.Notify(ctx, run, ir.StageTeardown, ir.OutcomeSuccess)
	logging.Info("environment destroyed", "run", run.ID, "environment", run.Environment)
	return nil
}

// healthCheck polls every applied unit's reported status via its
// provider.
func (o *Orchestrator) healthCheck(ctx context.Context, graph *engine.Graph, st *ir.State) error {
	for _, name := range graph.Order() {
		us := st.Unit(name)
		if us == nil || us.Status != ir.StatusApplied {
			return fmt.Errorf("unit %q is not applied", name)
		}

		prov, err := o.registry.Get(us.Provider)
		if err != nil {
			return err
		}

		report, err := prov.Describe(ctx, us.Kind, us.Name)
		if err != nil {
			return fmt.Errorf("describe failed for unit %q: %w", name, err)
		}
		if !report.Exists {
			return fmt.Errorf("unit %q no longer exists", name)
		}
		if !report.Healthy {
			return fmt.Errorf("unit %q is unhealthy: %s", name, report.Detail)
		}
	}
	return nil
}

func (o *Orchestrator) enterStage(ctx context.Context, run *ir.PipelineRun, stage ir.Stage) {
	run.Stage = stage
	run.Stages[stage] = ir.OutcomeRunning
	o.Notifier.Notify(ctx, run, stage, ir.OutcomeRunning)
	logging.Debug("stage started", "run", run.ID, "stage", stage)
}

func (o *Orchestrator) completeStage(ctx context.Context, run *ir.PipelineRun, stage ir.Stage) {
	run.Stages[stage] = ir.OutcomeSuccess
	o.Notifier.Notify(ctx, run, stage, ir.OutcomeSuccess)
	logging.Debug("stage succeeded", "run", run.ID, "stage", stage)
}

// failStage records a stage failure with enough detail (failing
// sub-step, error kind) to resume or diagnose without logs, marks the
// run terminally failed, and skips the stages that never ran.
func (o *Orchestrator) failStage(ctx context.Context, run *ir.PipelineRun, stage ir.Stage, step string, err error) error {
	run.Stages[stage] = ir.OutcomeFailed
	run.FailedStep = step
	run.Error = err.Error()
	run.Result = ir.RunFailed
	o.skipRemaining(run, stage)
	o.Notifier.Notify(ctx, run, stage, ir.OutcomeFailed)
	logging.Error("stage failed", "run", run.ID, "stage", stage, "step", step, "error", err)
	return err
}

// skipRemaining marks the pipeline stages after the given one as
// skipped. Teardown is excluded: it is never part of the automatic
// sequence.
func (o *Orchestrator) skipRemaining(run *ir.PipelineRun, after ir.Stage) {
	order := []ir.Stage{ir.StageValidate, ir.StagePlan, ir.StageDeploy, ir.StageTest}
	seen := false
	for _, s := range order {
		if seen && run.Stages[s] == ir.OutcomePending {
			run.Stages[s] = ir.OutcomeSkipped
		}
		if s == after {
			seen = true
		}
	}
}

// captureOutputs copies each unit's outputs onto the run.
func (o *Orchestrator) captureOutputs(run *ir.PipelineRun, graph *engine.Graph, st *ir.State) {
	outputs := make(map[string]any)
	for _, name := range graph.Order() {
		if us := st.Unit(name); us != nil && len(us.Outputs) > 0 {
			outputs[name] = us.Outputs
		}
	}
	run.Outputs = outputs
}

// unitOutputsByKind returns the outputs of the first declared unit of
// the given kind, or nil when the stack has none.
func unitOutputsByKind(graph *engine.Graph, st *ir.State, kind string) map[string]any {
	for _, u := range graph.Units() {
		if u.Kind != kind {
			continue
		}
		if us := st.Unit(u.Name); us != nil {
			return us.Outputs
		}
	}
	return nil
}

package ir

import "time"

// Stage identifies one stage of the pipeline state machine.
type Stage string

const (
	StageValidate Stage = "validate"
	StagePlan     Stage = "plan"
	StageDeploy   Stage = "deploy"
	StageTest     Stage = "test"
	StageTeardown Stage = "teardown"
)

// Outcome is the result of a stage, or of the run as a whole.
type Outcome string

const (
	OutcomePending          Outcome = "pending"
	OutcomeRunning          Outcome = "running"
	OutcomeSuccess          Outcome = "success"
	OutcomeFailed           Outcome = "failed"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeAwaitingApproval Outcome = "awaiting-approval"
	OutcomeCancelled        Outcome = "cancelled"
)

// Trigger kinds for pipeline run creation.
type Trigger string

const (
	TriggerCommit   Trigger = "commit"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Run terminal results.
type RunResult string

const (
	RunSucceeded RunResult = "succeeded"
	RunFailed    RunResult = "failed"
	RunCancelled RunResult = "cancelled"
	RunDestroyed RunResult = "destroyed"
)

// PipelineRun is one execution instance of the pipeline.
type PipelineRun struct {
	ID          string            `json:"id"`
	Environment string            `json:"environment"`
	Trigger     Trigger           `json:"trigger"`
	CreatedAt   time.Time         `json:"createdAt"`
	Stage       Stage             `json:"stage"`
	Stages      map[Stage]Outcome `json:"stages"`
	Result      RunResult         `json:"result,omitempty"`
	PlanRef     string            `json:"planRef,omitempty"`  // persisted plan artifact
	Outputs     map[string]any    `json:"outputs,omitempty"`  // captured resource outputs
	ArtifactURI string            `json:"artifactUri,omitempty"`
	FailedStep  string            `json:"failedStep,omitempty"` // failing sub-step or unit
	Error       string            `json:"error,omitempty"`
}

// NewPipelineRun creates a run in its initial state, all stages pending.
func NewPipelineRun(id, environment string, trigger Trigger) *PipelineRun {
	return &PipelineRun{
		ID:          id,
		Environment: environment,
		Trigger:     trigger,
		CreatedAt:   time.Now().UTC(),
		Stage:       StageValidate,
		Stages: map[Stage]Outcome{
			StageValidate: OutcomePending,
			StagePlan:     OutcomePending,
			StageDeploy:   OutcomePending,
			StageTest:     OutcomePending,
			StageTeardown: OutcomePending,
		},
	}
}

// Terminal reports whether the run has reached a terminal result.
func (r *PipelineRun) Terminal() bool {
	return r.Result != ""
}

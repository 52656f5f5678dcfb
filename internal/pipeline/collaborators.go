package pipeline

import (
	"context"

	"github.com/fluxops-io/fluxops/internal/ir"
)

// ModelTrainer produces a model artifact and publishes it to the
// provisioned object store. The pipeline treats it as a black box.
type ModelTrainer interface {
	// Train produces the model artifact bytes and its metrics.
	Train(ctx context.Context) (artifact []byte, metrics map[string]float64, err error)

	// Publish uploads the artifact to the object store described by
	// storeOutputs and returns the artifact URI.
	Publish(ctx context.Context, artifact []byte, storeOutputs map[string]any) (string, error)
}

// EndpointDeployer pushes the serving code package to the provisioned
// compute endpoint.
type EndpointDeployer interface {
	Deploy(ctx context.Context, artifactURI string, endpointOutputs map[string]any) error
}

// TestSuite runs the model code's own test suite during the test stage.
type TestSuite interface {
	Run(ctx context.Context) error
}

// FunctionalChecker exercises the deployed endpoints (health, predict)
// during the test stage.
type FunctionalChecker interface {
	Check(ctx context.Context, endpointOutputs map[string]any) error
}

// Notifier receives stage transition notifications. Implementations
// must tolerate being called from the middle of a run; a notification
// failure never fails the pipeline.
type Notifier interface {
	Notify(ctx context.Context, run *ir.PipelineRun, stage ir.Stage, outcome ir.Outcome)
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, *ir.PipelineRun, ir.Stage, ir.Outcome) {}

// Store abstracts durable state access for one environment.
type Store interface {
	Read(ctx context.Context) (*ir.State, error)
	Write(ctx context.Context, state *ir.State) error
}

// PlanSaver abstracts plan artifact persistence for one environment.
type PlanSaver interface {
	Save(ctx context.Context, plan *ir.Plan) (string, error)
}

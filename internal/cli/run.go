package cli

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/eval"
	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/pipeline"
	"github.com/fluxops-io/fluxops/internal/state"
	"github.com/fluxops-io/fluxops/internal/trainer"
)

var (
	runEnvironment  string
	runTrigger      string
	runAutoApprove  bool
	runProperties   map[string]string
	runModelPath    string
	runModelVersion string
	runSNSTopic     string
	runTestCommand  string
	runApprovalWait time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Execute the full pipeline for an environment",
	Long: `Runs the pipeline stages in order: validate, plan, deploy, test.
Deploys into environments whose policy requires approval suspend until
approved; a rejection cancels the run without touching infrastructure.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runEnvironment, "env", "dev", "Target environment")
	runCmd.Flags().StringVar(&runTrigger, "trigger", "manual", "Run trigger: commit, schedule, or manual")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve the deploy stage without prompting")
	runCmd.Flags().StringToStringVarP(&runProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	runCmd.Flags().StringVar(&runModelPath, "model", "", "Path to the model artifact to train and publish")
	runCmd.Flags().StringVar(&runModelVersion, "model-version", "v1", "Version label for the published model artifact")
	runCmd.Flags().StringVar(&runSNSTopic, "sns-topic", "", "SNS topic ARN for stage notifications")
	runCmd.Flags().StringVar(&runTestCommand, "test-cmd", "", "Shell command to run as the model test suite")
	runCmd.Flags().DurationVar(&runApprovalWait, "approval-timeout", 0, "How long to wait for approval (0 = forever)")
}

// promptNotifier asks the operator for a decision when a run suspends at
// the approval gate, and forwards every notification to the wrapped
// notifier.
type promptNotifier struct {
	gate        *pipeline.ApprovalGate
	autoApprove bool
	next        pipeline.Notifier
}

func (n *promptNotifier) Notify(ctx context.Context, run *ir.PipelineRun, stage ir.Stage, outcome ir.Outcome) {
	if n.next != nil {
		n.next.Notify(ctx, run, stage, outcome)
	}
	if outcome != ir.OutcomeAwaitingApproval {
		return
	}

	if n.autoApprove {
		_ = n.gate.Approve(run.ID)
		return
	}

	fmt.Printf("\nPlan saved to %s\n", run.PlanRef)
	if confirm(fmt.Sprintf("Deploy to %q requires approval. Proceed? (y/n): ", run.Environment)) {
		_ = n.gate.Approve(run.ID)
	} else {
		_ = n.gate.Reject(run.ID)
	}
}

// commandSuite runs a shell command as the model test suite.
type commandSuite struct {
	command string
	dir     string
}

func (s *commandSuite) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", s.command)
	cmd.Dir = s.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("test suite failed: %w\n%s", err, out)
	}
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	trigger := ir.Trigger(runTrigger)
	switch trigger {
	case ir.TriggerCommit, ir.TriggerSchedule, ir.TriggerManual:
	default:
		return fmt.Errorf("unknown trigger %q (want commit, schedule, or manual)", runTrigger)
	}

	fmt.Print("Loading stack... ")
	stack, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint, runProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load stack: %w", err)
	}
	fmt.Println("OK")

	registry := newRegistry()
	executor := engine.NewExecutor(registry)
	executor.Events = func(ev engine.Event) {
		if ev.Status == "completed" || ev.Status == "failed" {
			fmt.Printf("  %s: %s %s\n", ev.Unit, ev.Action, ev.Status)
		}
	}

	orch := pipeline.NewOrchestrator(
		executor,
		registry,
		func(environment string) pipeline.Store {
			store, err := openStore(wd, environment)
			if err != nil {
				panic(err) // openStore only fails on misconfigured backends, caught below
			}
			return store
		},
		func(environment string) pipeline.PlanSaver {
			return state.NewPlanStore(state.DefaultPlanDir(wd, environment))
		},
	)
	orch.ApprovalTimeout = runApprovalWait
	orch.Checker = pipeline.NewHTTPChecker()

	// Validate the backend configuration up front so the stores func
	// cannot panic mid-run.
	if _, err := openStore(wd, runEnvironment); err != nil {
		return err
	}

	var notifier pipeline.Notifier = pipeline.NoopNotifier{}
	needsAWS := runModelPath != "" || runSNSTopic != ""
	if needsAWS {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("unable to load SDK config: %w", err)
		}
		if runModelPath != "" {
			orch.Trainer = trainer.NewLocalTrainer(s3.NewFromConfig(cfg), runModelPath, runModelVersion)
			orch.Deployer = pipeline.NewLambdaDeployer(lambda.NewFromConfig(cfg))
		}
		if runSNSTopic != "" {
			notifier = pipeline.NewSNSNotifier(sns.NewFromConfig(cfg), runSNSTopic)
		}
	}
	orch.Notifier = &promptNotifier{gate: orch.Gate(), autoApprove: runAutoApprove, next: notifier}

	if runTestCommand != "" {
		orch.Tests = &commandSuite{command: runTestCommand, dir: wd}
	}

	run := ir.NewPipelineRun(uuid.NewString(), runEnvironment, trigger)
	fmt.Printf("Starting run %s (environment=%s, trigger=%s)\n", run.ID, run.Environment, run.Trigger)

	runErr := orch.Run(ctx, run, stack)

	fmt.Printf("\nRun %s finished: %s\n", run.ID, run.Result)
	for _, stage := range []ir.Stage{ir.StageValidate, ir.StagePlan, ir.StageDeploy, ir.StageTest} {
		fmt.Printf("  %-9s %s\n", stage, run.Stages[stage])
	}
	if run.ArtifactURI != "" {
		fmt.Printf("\nModel artifact: %s\n", run.ArtifactURI)
	}
	if len(run.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for unit, outputs := range run.Outputs {
			fmt.Printf("  %s = %v\n", unit, outputs)
		}
	}
	if runErr != nil {
		return fmt.Errorf("run failed at %s: %w", run.FailedStep, runErr)
	}
	return nil
}

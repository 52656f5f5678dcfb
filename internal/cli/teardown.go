package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/eval"
	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/pipeline"
	"github.com/fluxops-io/fluxops/internal/state"
)

var (
	teardownEnvironment string
	teardownAutoApprove bool
	teardownProperties  map[string]string
)

var teardownCmd = &cobra.Command{
	Use:   "teardown [path]",
	Short: "Destroy the environment's provisioned units",
	Long: `Destroys every provisioned unit in reverse dependency order.
Teardown never runs as part of the pipeline; it must be invoked
explicitly, and only environments whose policy allows teardown accept it.`,
	RunE: runTeardown,
}

func init() {
	teardownCmd.Flags().StringVar(&teardownEnvironment, "env", "dev", "Target environment")
	teardownCmd.Flags().BoolVar(&teardownAutoApprove, "auto-approve", false, "Skip the interactive confirmation")
	teardownCmd.Flags().StringToStringVarP(&teardownProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runTeardown(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	stack, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint, teardownProperties)
	if err != nil {
		return fmt.Errorf("failed to load stack: %w", err)
	}

	if !teardownAutoApprove {
		if !confirm(fmt.Sprintf("This will destroy all units in environment %q. Continue? (y/n): ", teardownEnvironment)) {
			fmt.Println("Teardown cancelled.")
			return nil
		}
	}

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
				panic(err)
			}
			return store
		},
		func(environment string) pipeline.PlanSaver {
			return state.NewPlanStore(state.DefaultPlanDir(wd, environment))
		},
	)
	if _, err := openStore(wd, teardownEnvironment); err != nil {
		return err
	}

	run := ir.NewPipelineRun(uuid.NewString(), teardownEnvironment, ir.TriggerManual)
	if err := orch.Teardown(ctx, run, stack); err != nil {
		return fmt.Errorf("teardown failed at %s: %w", run.FailedStep, err)
	}

	fmt.Printf("\nEnvironment %q destroyed.\n", teardownEnvironment)
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/eval"
	"github.com/fluxops-io/fluxops/internal/state"
)

var (
	planEnvironment string
	planProperties  map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show the changes an apply would make",
	Long:  `Computes the execution plan by diffing the declared stack against the recorded state. No provider calls are made.`,
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planEnvironment, "env", "dev", "Target environment")
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Print("Loading stack... ")
	stack, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint, planProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load stack: %w", err)
	}
	fmt.Println("OK")

	graph, err := engine.BuildGraph(stack.Units)
	if err != nil {
		return err
	}

	store, err := openStore(wd, planEnvironment)
	if err != nil {
		return err
	}
	st, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	executor := engine.NewExecutor(newRegistry())
	plan, err := executor.CreatePlan(graph, st)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}
	plan.Metadata.Environment = planEnvironment

	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nFluxOps will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	ref, err := state.NewPlanStore(state.DefaultPlanDir(wd, planEnvironment)).Save(ctx, plan)
	if err != nil {
		return fmt.Errorf("failed to save plan artifact: %w", err)
	}
	fmt.Printf("\nPlan saved to %s\n", ref)

	return nil
}

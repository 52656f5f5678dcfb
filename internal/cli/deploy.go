package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/eval"
)

var (
	deployEnvironment string
	deployAutoApprove bool
	deployProperties  map[string]string
)

var deployCmd = &cobra.Command{
	Use:   "deploy [path]",
	Short: "Provision the declared units",
	Long: `Builds or changes infrastructure according to the stack definition.
Units are applied one at a time in dependency order; a failure halts the
sweep and the partial state is persisted so a later deploy resumes from
the failed unit.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployEnvironment, "env", "dev", "Target environment")
	deployCmd.Flags().BoolVar(&deployAutoApprove, "auto-approve", false, "Skip interactive approval of the plan before applying")
	deployCmd.Flags().StringToStringVarP(&deployProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Print("Loading stack... ")
	stack, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint, deployProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load stack: %w", err)
	}
	fmt.Println("OK")

	graph, err := engine.BuildGraph(stack.Units)
	if err != nil {
		return err
	}

	store, err := openStore(wd, deployEnvironment)
	if err != nil {
		return err
	}
	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	st, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	executor := engine.NewExecutor(newRegistry())
	executor.Checkpoint = store.Write
	executor.Events = func(ev engine.Event) {
		switch ev.Status {
		case "started":
			fmt.Printf("  %s: %s...\n", ev.Unit, ev.Action)
		case "completed":
			fmt.Printf("  %s: %s complete (%s)\n", ev.Unit, ev.Action, ev.Duration.Round(time.Millisecond))
		case "skipped":
			fmt.Printf("  %s: unchanged, skipping\n", ev.Unit)
		case "failed":
			fmt.Printf("  %s: %s FAILED: %v\n", ev.Unit, ev.Action, ev.Err)
		}
	}

	fmt.Print("Calculating plan... ")
	plan, err := executor.CreatePlan(graph, st)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nFluxOps will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !deployAutoApprove {
		if !confirm("\nDo you want to perform these actions? (y/n): ") {
			fmt.Println("Deploy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", plan.Summary.Create+plan.Summary.Update+plan.Summary.Delete)

	applyErr := executor.Apply(ctx, graph, st)
	if writeErr := store.Write(ctx, st); writeErr != nil {
		return fmt.Errorf("failed to write state: %w", writeErr)
	}
	if applyErr != nil {
		return fmt.Errorf("deploy failed: %w", applyErr)
	}

	fmt.Printf("\nDeploy complete! Units: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Delete)

	if len(st.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range st.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}

	return nil
}

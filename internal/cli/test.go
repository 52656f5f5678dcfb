package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/eval"
	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/pipeline"
)

var (
	testEnvironment string
	testProperties  map[string]string
)

var testCmd = &cobra.Command{
	Use:   "test [path]",
	Short: "Check the health of the provisioned units",
	Long: `Asks each unit's provider for its live status and exercises the
deployed endpoints over HTTP. Fails if any unit is missing or unhealthy.`,
	RunE: runTest,
}

func init() {
	testCmd.Flags().StringVar(&testEnvironment, "env", "dev", "Target environment")
	testCmd.Flags().StringToStringVarP(&testProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runTest(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	stack, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint, testProperties)
	if err != nil {
		return fmt.Errorf("failed to load stack: %w", err)
	}

	graph, err := engine.BuildGraph(stack.Units)
	if err != nil {
		return err
	}

	store, err := openStore(wd, testEnvironment)
	if err != nil {
		return err
	}
	st, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	registry := newRegistry()
	failures := 0
	for _, name := range graph.Order() {
		us := st.Unit(name)
		if us == nil || us.Status != ir.StatusApplied {
			fmt.Printf("  %s: NOT APPLIED\n", name)
			failures++
			continue
		}

		if err := registry.Load(us.Provider); err != nil {
			return err
		}
		prov, err := registry.Get(us.Provider)
		if err != nil {
			return err
		}

		report, err := prov.Describe(ctx, us.Kind, us.Name)
		switch {
		case err != nil:
			fmt.Printf("  %s: CHECK FAILED: %v\n", name, err)
			failures++
		case !report.Exists:
			fmt.Printf("  %s: MISSING\n", name)
			failures++
		case !report.Healthy:
			fmt.Printf("  %s: UNHEALTHY (%s)\n", name, report.Detail)
			failures++
		default:
			fmt.Printf("  %s: healthy\n", name)
		}
	}

	checker := pipeline.NewHTTPChecker()
	for _, u := range graph.Units() {
		if u.Kind != ir.KindComputeEndpoint {
			continue
		}
		us := st.Unit(u.Name)
		if us == nil || len(us.Outputs) == 0 {
			continue
		}
		if err := checker.Check(ctx, us.Outputs); err != nil {
			fmt.Printf("  %s: FUNCTIONAL CHECK FAILED: %v\n", u.Name, err)
			failures++
		} else {
			fmt.Printf("  %s: functional checks passed\n", u.Name)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxops-io/fluxops/internal/engine"
	"github.com/fluxops-io/fluxops/internal/eval"
)

var validateProperties map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the stack definition",
	Long:  `Evaluates the stack and checks that every dependency reference resolves and the dependency graph is acyclic.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVarP(&validateProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Print("Loading stack... ")
	stack, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint, validateProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load stack: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("Validating dependency graph... ")
	graph, err := engine.BuildGraph(stack.Units)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	fmt.Printf("\nStack is valid: %d units, creation order:\n", len(stack.Units))
	for i, name := range graph.Order() {
		fmt.Printf("  %d. %s\n", i+1, name)
	}
	return nil
}
